// Package metrics provides Prometheus metrics for population runs.
package metrics

// Recorder defines a minimal interface for recording metrics.
type Recorder interface {
	// RecordOperation records an operation with its status, e.g.
	// ("stage:entries", "completed").
	RecordOperation(operation, status string)

	// RecordDuration records the duration of an operation in seconds.
	RecordDuration(operation string, seconds float64)

	// RecordError records an error occurrence with its type, usually the
	// error category.
	RecordError(operation, errorType string)
}
