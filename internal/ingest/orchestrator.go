// Package ingest runs the population pipeline: entries, then the
// hierarchy, then cross-references, then the annotation join. Each stage
// commits on its own, so a re-run skips what is already stored.
package ingest

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/tphakala/interpro-loader/internal/datastore"
	"github.com/tphakala/interpro-loader/internal/errors"
	"github.com/tphakala/interpro-loader/internal/logger"
	"github.com/tphakala/interpro-loader/internal/parser"
	"github.com/tphakala/interpro-loader/internal/source"
)

const component = "ingest"

// Sources are the dataset locations, one per stage.
type Sources struct {
	Entries   string
	Hierarchy string
	CrossRef  string
	Join      string
}

// Options control a single Populate call.
type Options struct {
	ChunkSize int  // join rows per commit, DefaultChunkSize when <= 0
	Force     bool // run stages even when their tables are populated
}

// Store is the persistence the pipeline needs.
type Store interface {
	datastore.ReadWriter
	Summarize(ctx context.Context) (datastore.Summary, error)
}

// Notifier is told about every finished run, successful or not.
type Notifier interface {
	NotifyRun(ctx context.Context, report *Report) error
}

// Orchestrator sequences the stages.
type Orchestrator struct {
	store               Store
	opener              source.Opener
	log                 logger.Logger
	recorder            Recorder
	notifier            Notifier
	sampleMemory        MemorySampler
	progressInterval    time.Duration
	maxUnresolvedLogged int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithNotifier sets the run notifier.
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithMemorySampler replaces the process RSS sampler.
func WithMemorySampler(fn MemorySampler) Option {
	return func(o *Orchestrator) { o.sampleMemory = fn }
}

// WithProgressInterval sets the minimum time between progress logs.
// Zero logs after every chunk.
func WithProgressInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.progressInterval = d }
}

// WithMaxUnresolvedLogged caps the unresolved keys written to the log.
// The report always lists all of them.
func WithMaxUnresolvedLogged(n int) Option {
	return func(o *Orchestrator) { o.maxUnresolvedLogged = n }
}

// New creates an Orchestrator reading sources through opener.
func New(store Store, opener source.Opener, log logger.Logger, opts ...Option) *Orchestrator {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	o := &Orchestrator{
		store:               store,
		opener:              opener,
		log:                 log.Module(component),
		recorder:            nopRecorder{},
		sampleMemory:        processRSS,
		progressInterval:    10 * time.Second,
		maxUnresolvedLogged: 20,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Populate runs every stage in order. A failure of the entries stage, or
// cancellation, stops the run and is returned. Failures of later stages
// are recorded in the report as warnings and the run continues. The
// report is returned in every case.
func (o *Orchestrator) Populate(ctx context.Context, src Sources, opts Options) (*Report, error) {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	runID := uuid.NewString()
	log := o.log.With(logger.String("run_id", runID))
	report := newReport(runID, time.Now())

	log.Info("population started",
		logger.Bool("force", opts.Force),
		logger.Int("chunk_size", opts.ChunkSize))

	var fatal error
	for _, stage := range Stages() {
		if err := ctx.Err(); err != nil {
			fatal = o.fail(log, report, stage, cancelled(err, stage))
			break
		}

		err := o.runStage(ctx, log, report, stage, src, opts)
		if err == nil {
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.IsCategory(err, errors.CategoryCancellation) {
			err = cancelled(ctxErr, stage)
		}
		if stage == StageEntries || errors.IsCategory(err, errors.CategoryCancellation) {
			fatal = o.fail(log, report, stage, err)
			break
		}

		report.Outcome = OutcomePartial
		if report.FailedStage == "" {
			report.FailedStage = stage
			report.Error = err.Error()
		}
		report.warnf("%s stage failed: %v", stage, err)
		log.Warn("stage failed, continuing with the next stage",
			logger.String("stage", string(stage)),
			logger.Error(err))
	}

	// The run may have been cancelled; the summary and the notification
	// still describe it.
	detached := context.WithoutCancel(ctx)
	if summary, err := o.store.Summarize(detached); err == nil {
		report.Summary = summary
	} else {
		log.Warn("failed to summarize store", logger.Error(err))
	}
	report.FinishedAt = time.Now()

	log.Info("population finished",
		logger.String("outcome", string(report.Outcome)),
		logger.Duration("duration", report.Duration()),
		logger.Int("warnings", len(report.Warnings)),
		logger.Int64("entries", report.Summary.Entries),
		logger.Int64("annotations", report.Summary.Annotations))

	if o.notifier != nil {
		if err := o.notifier.NotifyRun(detached, report); err != nil {
			log.Warn("run notification failed", logger.Error(err))
		}
	}
	return report, fatal
}

func (o *Orchestrator) fail(log logger.Logger, report *Report, stage Stage, err error) error {
	sr := report.Stage(stage)
	sr.Status = StatusFailed
	sr.Error = err.Error()
	report.Outcome = OutcomeFailed
	report.FailedStage = stage
	report.Error = err.Error()
	log.Error("population aborted",
		logger.String("stage", string(stage)),
		logger.Error(err))
	return err
}

func (o *Orchestrator) runStage(ctx context.Context, log logger.Logger, report *Report, stage Stage, src Sources, opts Options) error {
	sr := report.Stage(stage)
	op := opStagePrefix + string(stage)
	log = log.With(logger.String("stage", string(stage)))

	if !opts.Force {
		populated, err := o.IsPopulated(ctx, stage)
		if err != nil {
			return err
		}
		if populated {
			sr.Status = StatusAlreadyPopulated
			o.recorder.RecordOperation(op, string(StatusAlreadyPopulated))
			log.Info("stage already populated, skipping")
			return nil
		}
	}

	location := src.location(stage)
	sr.Source = errors.ScrubLocation(location)
	start := time.Now()
	log.Info("stage started", logger.String("source", sr.Source))

	err := o.runStageBody(ctx, log, report, stage, location, opts)
	sr.Duration = time.Since(start)
	o.recorder.RecordDuration(op, sr.Duration.Seconds())

	if sr.Malformed > 0 {
		report.warnf("%s: skipped %d malformed lines", stage, sr.Malformed)
	}
	if sr.Unresolved > 0 {
		report.warnf("%s: skipped %d records referencing unknown entries", stage, sr.Unresolved)
	}

	if err != nil {
		sr.Status = StatusFailed
		sr.Error = err.Error()
		o.recorder.RecordOperation(op, string(StatusFailed))
		o.recorder.RecordError(op, string(errors.CategoryOf(err)))
		return err
	}
	sr.Status = StatusCompleted
	o.recorder.RecordOperation(op, string(StatusCompleted))
	log.Info("stage completed",
		logger.Duration("duration", sr.Duration),
		logger.Int64("read", sr.Read),
		logger.Int64("written", sr.Written))
	return nil
}

func (o *Orchestrator) runStageBody(ctx context.Context, log logger.Logger, report *Report, stage Stage, location string, opts Options) error {
	rc, err := o.open(ctx, stage, location)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rc.Close(); cerr != nil {
			log.Debug("failed to close source", logger.Error(cerr))
		}
	}()

	env := &stageEnv{
		store:    o.store,
		log:      log,
		report:   report.Stage(stage),
		recorder: o.recorder,
	}
	switch stage {
	case StageEntries:
		return populateEntries(ctx, env, rc)
	case StageHierarchy:
		return populateHierarchy(ctx, env, rc)
	case StageCrossRefs:
		return populateCrossRefs(ctx, env, rc)
	case StageAnnotations:
		unresolved, err := populateAnnotations(ctx, env, rc, opts.ChunkSize, o.progressLogger(log))
		if len(unresolved) > 0 {
			report.setUnresolved(unresolved)
			report.warnf("annotations: %d distinct entry keys not found", len(unresolved))
			o.logUnresolved(log, report.UnresolvedKeys)
		}
		return err
	default:
		return errors.Newf("unknown stage %q", stage).
			Component(component).
			Category(errors.CategoryValidation).
			Build()
	}
}

// open fetches a stage source. Every failure here is a source-fetch error
// tagged with the stage.
func (o *Orchestrator) open(ctx context.Context, stage Stage, location string) (io.ReadCloser, error) {
	if location == "" {
		return nil, errors.Newf("no source configured for stage %s", stage).
			Component(component).
			Category(errors.CategorySourceFetch).
			Priority(errors.PriorityHigh).
			SourceContext(string(stage), "").
			Build()
	}
	if o.opener == nil {
		return nil, errors.Newf("no source opener").
			Component(component).
			Category(errors.CategoryConfiguration).
			Build()
	}
	rc, err := o.opener.Open(ctx, location)
	if err != nil {
		category := errors.CategorySourceFetch
		if errors.IsCategory(err, errors.CategoryCancellation) {
			category = errors.CategoryCancellation
		}
		return nil, errors.New(err).
			Component(component).
			Category(category).
			Priority(errors.PriorityHigh).
			SourceContext(string(stage), location).
			Build()
	}
	return rc, nil
}

// progressLogger logs annotation progress at most once per interval and
// samples process memory with it.
func (o *Orchestrator) progressLogger(log logger.Logger) func(AnnotationStats) {
	every := &rate.Sometimes{Interval: o.progressInterval}
	if o.progressInterval <= 0 {
		every = &rate.Sometimes{Every: 1}
	}
	return func(s AnnotationStats) {
		every.Do(func() {
			fields := []logger.Field{
				logger.Int64("rows", s.Rows),
				logger.Int64("annotations", s.Annotations),
				logger.Int64("subjects", s.Subjects),
				logger.Int64("unresolved_rows", s.Unresolved),
				logger.Int64("chunks", s.Chunks),
			}
			if o.sampleMemory != nil {
				if rss, err := o.sampleMemory(); err == nil {
					o.recorder.SetResidentMemory(rss)
					fields = append(fields, logger.Uint64("rss_bytes", rss))
				}
			}
			log.Info("annotation progress", fields...)
		})
	}
}

func (o *Orchestrator) logUnresolved(log logger.Logger, keys []string) {
	shown := keys
	if o.maxUnresolvedLogged >= 0 && len(shown) > o.maxUnresolvedLogged {
		shown = shown[:o.maxUnresolvedLogged]
	}
	log.Warn("annotations referenced unknown entries",
		logger.Int("distinct_keys", len(keys)),
		logger.Any("keys", shown))
}

// IsPopulated reports whether the target table of stage has any rows.
func (o *Orchestrator) IsPopulated(ctx context.Context, stage Stage) (bool, error) {
	kind := stage.TargetKind()
	if kind == "" {
		return false, errors.Newf("unknown stage %q", stage).
			Component(component).
			Category(errors.CategoryValidation).
			Build()
	}
	n, err := o.store.Count(ctx, kind)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CountEntities returns the number of stored records of kind.
func (o *Orchestrator) CountEntities(ctx context.Context, kind datastore.Kind) (int64, error) {
	return o.store.Count(ctx, kind)
}

// GetByKey looks up a record by natural key. Cross-reference keys may be
// given with or without the "GO:" prefix.
func (o *Orchestrator) GetByKey(ctx context.Context, kind datastore.Kind, key string) (datastore.Record, bool, error) {
	if kind == datastore.KindCrossRef {
		key = parser.NormalizeTermKey(key)
	}
	return o.store.GetByKey(ctx, kind, key)
}

func cancelled(err error, stage Stage) error {
	return errors.New(err).
		Component(component).
		Category(errors.CategoryCancellation).
		Context("stage", string(stage)).
		Build()
}
