package common

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// SetupLogging configures the standard logrus logger for a CLI run.
func SetupLogging(out io.Writer, verbose bool, format string, operationID string) error {
	logrus.SetOutput(out)
	switch format {
	case "", "text":
		logrus.SetFormatter(&logrus.TextFormatter{})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q, must be one of: text, json", format)
	}

	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}

	logrus.AddHook(&BuildHook{OperationID: operationID})
	return nil
}
