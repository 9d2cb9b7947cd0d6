package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace       = "ecsapp_infra"
	AWSSubsystem    = "aws"
	SynthSubsystem  = "synth"
	ResultSuccess   = "success"
	ResultFailure   = "failure"
	ResultUnchanged = "unchanged"
)

// WriteTextfile dumps every registered metric to path in the text
// exposition format, for the node exporter textfile collector.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}

// Result maps an error to the result label.
func Result(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}
