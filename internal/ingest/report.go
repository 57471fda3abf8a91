package ingest

import (
	"fmt"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tphakala/interpro-loader/internal/datastore"
)

// Outcome is the overall result of a population run.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial" // a stage after the first failed
	OutcomeFailed  Outcome = "failed"
)

// Status is the result of a single stage.
type Status string

const (
	StatusPending          Status = "pending"
	StatusCompleted        Status = "completed"
	StatusAlreadyPopulated Status = "already-populated"
	StatusFailed           Status = "failed"
)

// StageReport describes what one stage did.
type StageReport struct {
	Stage    Stage         `yaml:"stage"`
	Status   Status        `yaml:"status"`
	Source   string        `yaml:"source,omitempty"`
	Duration time.Duration `yaml:"duration"`

	Read       int64 `yaml:"read"`       // well-formed records parsed
	Written    int64 `yaml:"written"`    // rows inserted or updated
	Malformed  int64 `yaml:"malformed"`  // lines skipped by the parser
	Unresolved int64 `yaml:"unresolved"` // records skipped for a missing reference
	Chunks     int64 `yaml:"chunks,omitempty"`

	Error string `yaml:"error,omitempty"`
}

// Report is the outcome of Populate. FailedStage and Error describe the
// stage that aborted a failed run, or the first stage that failed in a
// partial run; every failed stage is also listed in Warnings.
type Report struct {
	RunID       string        `yaml:"run_id"`
	Outcome     Outcome       `yaml:"outcome"`
	FailedStage Stage         `yaml:"failed_stage,omitempty"`
	Error       string        `yaml:"error,omitempty"`
	StartedAt   time.Time     `yaml:"started_at"`
	FinishedAt  time.Time     `yaml:"finished_at"`
	Stages      []StageReport `yaml:"stages"`
	Warnings    []string      `yaml:"warnings,omitempty"`

	// UnresolvedKeys lists the distinct entry accessions that annotations
	// referenced but the store did not contain, sorted.
	UnresolvedKeys []string `yaml:"unresolved_keys,omitempty"`

	Summary datastore.Summary `yaml:"summary"`
}

func newReport(runID string, started time.Time) *Report {
	r := &Report{RunID: runID, Outcome: OutcomeSuccess, StartedAt: started}
	for _, s := range Stages() {
		r.Stages = append(r.Stages, StageReport{Stage: s, Status: StatusPending})
	}
	return r
}

// Stage returns the report of stage s, or nil for an unknown stage.
func (r *Report) Stage(s Stage) *StageReport {
	for i := range r.Stages {
		if r.Stages[i].Stage == s {
			return &r.Stages[i]
		}
	}
	return nil
}

// Succeeded reports whether no fatal error stopped the run. Partial runs
// count as succeeded; their failures are in Warnings.
func (r *Report) Succeeded() bool { return r.Outcome != OutcomeFailed }

// HasWarnings reports whether anything was skipped or degraded.
func (r *Report) HasWarnings() bool { return len(r.Warnings) > 0 }

// AllAlreadyPopulated reports whether every stage was skipped.
func (r *Report) AllAlreadyPopulated() bool {
	for i := range r.Stages {
		if r.Stages[i].Status != StatusAlreadyPopulated {
			return false
		}
	}
	return true
}

// Duration returns the wall time of the run.
func (r *Report) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// YAML renders the report.
func (r *Report) YAML() ([]byte, error) {
	return yaml.Marshal(r)
}

func (r *Report) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r *Report) setUnresolved(keys map[string]struct{}) {
	r.UnresolvedKeys = r.UnresolvedKeys[:0]
	for k := range keys {
		r.UnresolvedKeys = append(r.UnresolvedKeys, k)
	}
	slices.Sort(r.UnresolvedKeys)
}
