package ingest

import (
	"context"
	"io"
	"time"

	"github.com/tphakala/interpro-loader/internal/datastore"
	"github.com/tphakala/interpro-loader/internal/errors"
	"github.com/tphakala/interpro-loader/internal/identity"
	"github.com/tphakala/interpro-loader/internal/logger"
	"github.com/tphakala/interpro-loader/internal/parser"
)

// DefaultChunkSize is the number of join rows read per commit.
const DefaultChunkSize = 5000

// pendingRow is a join row whose entry resolved.
type pendingRow struct {
	row     parser.JoinRow
	entryID uint
}

// subjectRun holds the resolved rows of one subject.
type subjectRun struct {
	key  string
	rows []pendingRow
}

// AnnotationStats counts what the join ingester did.
type AnnotationStats struct {
	Rows        int64 // well-formed rows read
	Annotations int64 // annotations inserted
	Subjects    int64 // subjects with at least one annotation
	Unresolved  int64 // rows skipped for an unknown entry
	Chunks      int64
}

// AnnotationIngester merges the subject-sorted join file into annotations,
// committing once per chunk.
//
// The subject cursor survives chunk boundaries: rows of the subject still
// being read when a chunk ends are carried into the next chunk, so the
// result does not depend on the chunk size. A subject is stored only when
// at least one of its rows resolved to a known entry.
type AnnotationIngester struct {
	store     datastore.ReadWriter
	entries   *identity.Cache[*datastore.Entry]
	subjects  *identity.Cache[*datastore.Subject]
	chunkSize int
	log       logger.Logger
	recorder  Recorder
	progress  func(AnnotationStats)

	current    subjectRun
	finalized  []subjectRun
	unresolved map[string]struct{}
	stats      AnnotationStats
}

// AnnotationOption configures an AnnotationIngester.
type AnnotationOption func(*AnnotationIngester)

// WithChunkSize sets the number of rows per commit.
func WithChunkSize(n int) AnnotationOption {
	return func(a *AnnotationIngester) {
		if n > 0 {
			a.chunkSize = n
		}
	}
}

// WithProgress is called after every committed chunk.
func WithProgress(fn func(AnnotationStats)) AnnotationOption {
	return func(a *AnnotationIngester) { a.progress = fn }
}

// WithIngestLogger sets the logger.
func WithIngestLogger(log logger.Logger) AnnotationOption {
	return func(a *AnnotationIngester) { a.log = log }
}

// WithAnnotationRecorder sets the metrics recorder.
func WithAnnotationRecorder(r Recorder) AnnotationOption {
	return func(a *AnnotationIngester) { a.recorder = r }
}

// NewAnnotationIngester resolves entries and subjects through store. It
// never creates entries.
func NewAnnotationIngester(store datastore.ReadWriter, opts ...AnnotationOption) *AnnotationIngester {
	a := &AnnotationIngester{
		store:   store,
		entries: newEntryCache(store),
		subjects: identity.New(string(datastore.KindSubject),
			identity.FromFinder(store.FindSubject, datastore.ErrNotFound)),
		chunkSize:  DefaultChunkSize,
		log:        logger.NewDiscardLogger(),
		recorder:   nopRecorder{},
		unresolved: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Ingest reads r to the end. A read failure is returned as is; chunks
// committed before it stay committed.
func (a *AnnotationIngester) Ingest(ctx context.Context, r io.Reader, opts ...parser.Option) error {
	reader := parser.NewJoinReader(r, opts...)
	var buf []parser.JoinRow
	for {
		if err := ctx.Err(); err != nil {
			return cancelled(err, StageAnnotations)
		}
		rows, err := reader.ReadChunk(buf, a.chunkSize)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		buf = rows

		for i := range rows {
			if err := a.add(ctx, rows[i]); err != nil {
				return err
			}
		}
		if err := a.commit(ctx); err != nil {
			return err
		}
	}

	a.finalize()
	return a.commit(ctx)
}

// add routes one row to the in-progress subject.
func (a *AnnotationIngester) add(ctx context.Context, row parser.JoinRow) error {
	a.stats.Rows++
	if row.Subject != a.current.key {
		a.finalize()
		a.current.key = row.Subject
	}

	if _, missing := a.unresolved[row.Entry]; missing {
		a.skip(row)
		return nil
	}
	entry, ok, err := a.entries.Resolve(ctx, row.Entry)
	if err != nil {
		return err
	}
	if !ok {
		a.unresolved[row.Entry] = struct{}{}
		a.skip(row)
		return nil
	}

	// row is a copy, so the reader may reuse its buffer.
	a.current.rows = append(a.current.rows, pendingRow{row: row, entryID: entry.ID})
	return nil
}

func (a *AnnotationIngester) skip(row parser.JoinRow) {
	a.stats.Unresolved++
	a.recorder.AddRecords(string(datastore.KindAnnotation), outcomeUnresolved, 1)
	a.log.Trace("skipping annotation for unknown entry",
		logger.String("subject", row.Subject),
		logger.String("entry", row.Entry),
		logger.Int("line", row.Line))
}

// finalize closes the in-progress subject. Subjects with no resolved rows
// are dropped.
func (a *AnnotationIngester) finalize() {
	if len(a.current.rows) > 0 {
		a.finalized = append(a.finalized, a.current)
	}
	a.current = subjectRun{}
}

// commit writes every finalized subject in one transaction. The subject
// in progress is left for the next chunk.
func (a *AnnotationIngester) commit(ctx context.Context) error {
	if len(a.finalized) == 0 {
		return nil
	}
	start := time.Now()

	keys := make([]string, 0, len(a.finalized))
	handles := make([]*datastore.Subject, 0, len(a.finalized))
	for _, run := range a.finalized {
		s, err := a.subjects.GetOrCreate(ctx, run.key, func() *datastore.Subject {
			return &datastore.Subject{Accession: run.key}
		})
		if err != nil {
			a.subjects.Discard()
			return err
		}
		keys = append(keys, run.key)
		handles = append(handles, s)
	}
	created := a.subjects.Pending()

	var inserted int64
	err := a.store.Transaction(ctx, func(tx *datastore.Tx) error {
		if err := tx.CreateSubjects(created); err != nil {
			return err
		}
		var rows []datastore.Annotation
		for i, run := range a.finalized {
			for _, p := range run.rows {
				rows = append(rows, datastore.Annotation{
					EntryID:   p.entryID,
					SubjectID: handles[i].ID,
					Tag:       p.row.Tag,
					SpanStart: p.row.Start,
					SpanEnd:   p.row.End,
				})
			}
		}
		n, err := tx.CreateAnnotations(rows)
		inserted = n
		return err
	})
	if err != nil {
		a.subjects.Discard()
		a.recorder.RecordError(opChunkCommit, string(errors.CategoryOf(err)))
		return err
	}
	a.subjects.Commit()
	a.subjects.Forget(keys...)

	a.stats.Chunks++
	a.stats.Subjects += int64(len(created))
	a.stats.Annotations += inserted
	a.finalized = a.finalized[:0]

	a.recorder.RecordDuration(opChunkCommit, time.Since(start).Seconds())
	a.recorder.AddRecords(string(datastore.KindSubject), outcomeWritten, int64(len(created)))
	a.recorder.AddRecords(string(datastore.KindAnnotation), outcomeWritten, inserted)
	if a.progress != nil {
		a.progress(a.stats)
	}
	return nil
}

// Stats returns the counters so far.
func (a *AnnotationIngester) Stats() AnnotationStats { return a.stats }

// Unresolved returns the distinct entry keys that could not be resolved.
func (a *AnnotationIngester) Unresolved() map[string]struct{} { return a.unresolved }

// populateAnnotations is the annotations stage body.
func populateAnnotations(ctx context.Context, env *stageEnv, r io.Reader, chunkSize int, progress func(AnnotationStats)) (map[string]struct{}, error) {
	ing := NewAnnotationIngester(env.store,
		WithChunkSize(chunkSize),
		WithIngestLogger(env.log),
		WithAnnotationRecorder(env.recorder),
		WithProgress(progress))

	err := ing.Ingest(ctx, r, env.malformedCounter())
	stats := ing.Stats()
	env.report.Read = stats.Rows
	env.report.Written = stats.Annotations
	env.report.Unresolved = stats.Unresolved
	env.report.Chunks = stats.Chunks

	env.log.Info("annotations committed",
		logger.Int64("rows", stats.Rows),
		logger.Int64("annotations", stats.Annotations),
		logger.Int64("subjects", stats.Subjects),
		logger.Int64("unresolved_rows", stats.Unresolved),
		logger.Int("unresolved_keys", len(ing.Unresolved())))
	return ing.Unresolved(), err
}
