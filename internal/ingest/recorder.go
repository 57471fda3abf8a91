package ingest

import (
	"os"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/tphakala/interpro-loader/internal/observability/metrics"
)

// Operation names passed to a Recorder.
const (
	opChunkCommit = metrics.OpChunkCommit
	opStagePrefix = metrics.OpStage + ":"
)

// Record outcomes passed to Recorder.AddRecords.
const (
	outcomeWritten    = "written"
	outcomeMalformed  = "malformed"
	outcomeUnresolved = "unresolved"
)

// Recorder receives pipeline metrics. *metrics.IngestMetrics satisfies it.
type Recorder interface {
	metrics.Recorder

	AddRecords(kind, outcome string, n int64)
	SetResidentMemory(bytes uint64)
}

type nopRecorder struct{}

func (nopRecorder) RecordOperation(string, string)   {}
func (nopRecorder) RecordDuration(string, float64)   {}
func (nopRecorder) RecordError(string, string)       {}
func (nopRecorder) AddRecords(string, string, int64) {}
func (nopRecorder) SetResidentMemory(uint64)         {}

// MemorySampler returns the resident set size of the process.
type MemorySampler func() (uint64, error)

// processRSS reads the RSS of the current process.
func processRSS() (uint64, error) {
	proc, err := process.NewProcess(int32(os.Getpid())) //nolint:gosec // pid fits in int32
	if err != nil {
		return 0, err
	}
	info, err := proc.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return info.RSS, nil
}
