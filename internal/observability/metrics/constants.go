package metrics

import "time"

// Operation names understood by IngestMetrics. Stage operations carry the
// stage name after a colon, e.g. "stage:annotations".
const (
	// OpStage is a whole population stage.
	OpStage = "stage"
	// OpChunkCommit is one committed chunk of the annotation join.
	OpChunkCommit = "chunk_commit"
	// OpDbQuery is a single SQL statement.
	OpDbQuery = "db_query"
	// OpDownload is a remote source download.
	OpDownload = "download"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Histogram bucket configuration constants.
const (
	// BucketStart1ms is the starting bucket for 1ms histograms.
	BucketStart1ms = 0.001
	// BucketStart10ms is the starting bucket for 10ms histograms.
	BucketStart10ms = 0.01
	// BucketStart1s is the starting bucket for 1s histograms.
	BucketStart1s = 1.0

	// BucketFactor2 is the common exponential growth factor of 2 for histogram buckets.
	BucketFactor2 = 2

	// BucketCount15 defines 15 exponential buckets.
	BucketCount15 = 15
)

// ShutdownTimeout bounds the graceful shutdown of the metrics endpoint.
const ShutdownTimeout = 5 * time.Second

// SplitPartsCount is the expected number of parts when splitting operation strings.
const SplitPartsCount = 2
