package common

import (
	"github.com/sirupsen/logrus"
)

// BuildHook stamps every log entry with the commit the binary was built
// from and, when set, the operation the entry belongs to.
type BuildHook struct {
	OperationID string
}

func (h *BuildHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *BuildHook) Fire(e *logrus.Entry) error {
	e.Data["build_commit"] = BuildCommit
	if h.OperationID != "" {
		e.Data[OperationIDKey] = h.OperationID
	}
	return nil
}
