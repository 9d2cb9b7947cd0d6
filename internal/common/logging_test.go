package common

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestSetupLoggingJSON(t *testing.T) {
	defer logrus.StandardLogger().ReplaceHooks(make(logrus.LevelHooks))

	var buf bytes.Buffer
	require.NoError(t, SetupLogging(&buf, true, "json", "op-1"))
	require.Equal(t, logrus.DebugLevel, logrus.GetLevel())

	logrus.Info("hello")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "hello", entry["msg"])
	require.Equal(t, "op-1", entry[OperationIDKey])
	require.Equal(t, BuildCommit, entry["build_commit"])
}

func TestSetupLoggingUnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	require.Error(t, SetupLogging(&buf, false, "xml", ""))
}
