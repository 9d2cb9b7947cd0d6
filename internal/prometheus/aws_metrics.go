package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StackOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name:      "stack_operations",
		Namespace: Namespace,
		Subsystem: AWSSubsystem,
		Help:      "Total CloudFormation stack operations",
	}, []string{"operation", "result"})

	StackOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:      "stack_operation_duration_seconds",
		Namespace: Namespace,
		Subsystem: AWSSubsystem,
		Help:      "Duration of CloudFormation stack operations, including waiting for them to settle",
		Buckets:   []float64{1, 10, 30, 60, 120, 300, 600, 1200, 1800, 3600},
	}, []string{"operation"})

	UploadedTemplates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name:      "uploaded_templates",
		Namespace: Namespace,
		Subsystem: AWSSubsystem,
		Help:      "Total templates uploaded to S3",
	}, []string{"result"})
)

func ObserveStackOperation(operation string) ObserveFunc {
	pt := prometheus.NewTimer(StackOperationDuration.WithLabelValues(operation))
	return pt.ObserveDuration
}

func CountStackOperation(operation, result string) {
	StackOperations.WithLabelValues(operation, result).Inc()
}
