package common

import (
	"github.com/segmentio/ksuid"
)

const OperationIDKey string = "operation_id"

// GenerateOperationID returns a time-sortable globally unique identifier used
// to correlate the log lines, metrics and uploaded templates of one CLI run.
func GenerateOperationID() string {
	return ksuid.New().String()
}
