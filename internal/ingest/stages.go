package ingest

import (
	"context"
	"io"

	"github.com/tphakala/interpro-loader/internal/datastore"
	"github.com/tphakala/interpro-loader/internal/errors"
	"github.com/tphakala/interpro-loader/internal/identity"
	"github.com/tphakala/interpro-loader/internal/logger"
	"github.com/tphakala/interpro-loader/internal/parser"
)

// Stage names one step of a population run.
type Stage string

const (
	StageEntries     Stage = "entries"
	StageHierarchy   Stage = "hierarchy"
	StageCrossRefs   Stage = "xrefs"
	StageAnnotations Stage = "annotations"
)

// Stages returns every stage in execution order.
func Stages() []Stage {
	return []Stage{StageEntries, StageHierarchy, StageCrossRefs, StageAnnotations}
}

// ParseStage converts a stage name.
func ParseStage(s string) (Stage, bool) {
	for _, st := range Stages() {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// TargetKind is the entity kind whose count decides whether the stage
// already ran.
func (s Stage) TargetKind() datastore.Kind {
	switch s {
	case StageEntries:
		return datastore.KindEntry
	case StageHierarchy:
		return datastore.KindParentLink
	case StageCrossRefs:
		return datastore.KindEntryCrossRef
	case StageAnnotations:
		return datastore.KindAnnotation
	default:
		return ""
	}
}

// location returns the source of stage s.
func (src Sources) location(s Stage) string {
	switch s {
	case StageEntries:
		return src.Entries
	case StageHierarchy:
		return src.Hierarchy
	case StageCrossRefs:
		return src.CrossRef
	case StageAnnotations:
		return src.Join
	default:
		return ""
	}
}

// stageEnv is what every stage body receives.
type stageEnv struct {
	store    datastore.ReadWriter
	log      logger.Logger
	report   *StageReport
	recorder Recorder
}

// malformedCounter counts and logs skipped lines.
func (e *stageEnv) malformedCounter() parser.Option {
	return parser.OnMalformed(func(m parser.Malformed) {
		e.report.Malformed++
		e.recorder.AddRecords(m.File, outcomeMalformed, 1)
		e.log.Debug("skipping malformed line",
			logger.String("file", m.File),
			logger.Int("line", m.Line),
			logger.String("reason", m.Reason))
	})
}

func newEntryCache(store datastore.Reader) *identity.Cache[*datastore.Entry] {
	return identity.New(string(datastore.KindEntry),
		identity.FromFinder(store.FindEntry, datastore.ErrNotFound))
}

// stagedEntry is an entry whose type may not have an ID yet.
type stagedEntry struct {
	*datastore.Entry
	typ *datastore.EntryType
}

func (s *stagedEntry) typeID() uint {
	if s.typ != nil {
		return s.typ.ID
	}
	return s.TypeID
}

// sameEntry reports whether an existing accession matches a repeated
// definition with the given name and type.
func sameEntry(existing *stagedEntry, name string, typ *datastore.EntryType) bool {
	if existing.Name != name {
		return false
	}
	if existing.typ != nil && existing.typ == typ {
		return true
	}
	return existing.typeID() != 0 && existing.typeID() == typ.ID
}

// populateEntries loads entry.list. Types are created on first use. The
// whole file commits in one transaction.
func populateEntries(ctx context.Context, env *stageEnv, r io.Reader) error {
	types := identity.New(string(datastore.KindType),
		identity.FromFinder(env.store.FindType, datastore.ErrNotFound))
	entries := identity.New(string(datastore.KindEntry),
		identity.FromFinder(func(ctx context.Context, key string) (*stagedEntry, error) {
			e, err := env.store.FindEntry(ctx, key)
			if err != nil {
				return nil, err
			}
			return &stagedEntry{Entry: e}, nil
		}, datastore.ErrNotFound))

	reader := parser.NewEntryReader(r, env.malformedCounter())
	for reader.Next() {
		rec := reader.Record()
		env.report.Read++

		typ, err := types.GetOrCreate(ctx, rec.Type, func() *datastore.EntryType {
			return &datastore.EntryType{Name: rec.Type}
		})
		if err != nil {
			return err
		}
		_, err = entries.GetOrCreateMatching(ctx, rec.Accession, func() *stagedEntry {
			return &stagedEntry{
				Entry: &datastore.Entry{Accession: rec.Accession, Name: rec.Name},
				typ:   typ,
			}
		}, func(existing *stagedEntry) bool {
			return sameEntry(existing, rec.Name, typ)
		})
		if err != nil {
			return errors.New(err).
				Component(component).
				Context("line", rec.Line).
				Build()
		}
	}
	if err := reader.Err(); err != nil {
		return err
	}

	pendingTypes := types.Pending()
	pendingEntries := entries.Pending()
	err := env.store.Transaction(ctx, func(tx *datastore.Tx) error {
		if err := tx.CreateTypes(pendingTypes); err != nil {
			return err
		}
		rows := make([]*datastore.Entry, 0, len(pendingEntries))
		for _, s := range pendingEntries {
			s.TypeID = s.typeID()
			rows = append(rows, s.Entry)
		}
		return tx.CreateEntries(rows)
	})
	if err != nil {
		types.Discard()
		entries.Discard()
		return err
	}
	types.Commit()
	entries.Commit()

	env.report.Written = int64(len(pendingEntries))
	env.recorder.AddRecords(string(datastore.KindType), outcomeWritten, int64(len(pendingTypes)))
	env.recorder.AddRecords(string(datastore.KindEntry), outcomeWritten, int64(len(pendingEntries)))
	env.log.Info("entries committed",
		logger.Int("types_created", len(pendingTypes)),
		logger.Int("entries_created", len(pendingEntries)),
		logger.Int64("malformed", env.report.Malformed))
	return nil
}

// populateHierarchy assigns parents from the tree file. Relations naming
// an unknown entry are skipped; the links commit in one transaction.
func populateHierarchy(ctx context.Context, env *stageEnv, r io.Reader) error {
	entries := newEntryCache(env.store)
	parents := make(map[uint]uint)
	var links []datastore.ParentLink

	reader := parser.NewHierarchyReader(r, env.malformedCounter())
	for reader.Next() {
		rel := reader.Relation()
		env.report.Read++
		if rel.IsRoot() {
			continue
		}

		child, ok, err := entries.Resolve(ctx, rel.Child)
		if err != nil {
			return err
		}
		if !ok {
			env.unresolved("hierarchy child", rel.Child, rel.Line)
			continue
		}
		parent, ok, err := entries.Resolve(ctx, rel.Parent)
		if err != nil {
			return err
		}
		if !ok {
			env.unresolved("hierarchy parent", rel.Parent, rel.Line)
			continue
		}

		if prev, seen := parents[child.ID]; seen {
			if prev != parent.ID {
				env.report.Malformed++
				env.log.Warn("entry listed under two parents, keeping the first",
					logger.String("accession", rel.Child),
					logger.Int("line", rel.Line))
			}
			continue
		}
		parents[child.ID] = parent.ID
		links = append(links, datastore.ParentLink{ChildID: child.ID, ParentID: parent.ID})
	}
	if err := reader.Err(); err != nil {
		return err
	}

	if err := checkForest(parents); err != nil {
		return err
	}

	err := env.store.Transaction(ctx, func(tx *datastore.Tx) error {
		return tx.SetParents(links)
	})
	if err != nil {
		return err
	}

	env.report.Written = int64(len(links))
	env.recorder.AddRecords(string(datastore.KindParentLink), outcomeWritten, int64(len(links)))
	env.log.Info("hierarchy committed",
		logger.Int("links", len(links)),
		logger.Int64("unresolved", env.report.Unresolved))
	return nil
}

// checkForest rejects parent assignments that form a cycle.
func checkForest(parents map[uint]uint) error {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[uint]int, len(parents))
	for start := range parents {
		var path []uint
		node := start
		for {
			if state[node] == done {
				break
			}
			if state[node] == visiting {
				return errors.New(datastore.ErrHierarchyCycle).
					Component(component).
					Category(errors.CategoryValidation).
					Priority(errors.PriorityHigh).
					Context("entry_id", node).
					Build()
			}
			state[node] = visiting
			path = append(path, node)
			next, ok := parents[node]
			if !ok {
				break
			}
			node = next
		}
		for _, n := range path {
			state[n] = done
		}
	}
	return nil
}

type termLink struct {
	entry *datastore.Entry
	term  *datastore.CrossRefTerm
}

// compatibleTerm treats an empty name as unknown rather than different.
func compatibleTerm(existing *datastore.CrossRefTerm, name string) bool {
	return existing.Name == "" || name == "" || existing.Name == name
}

// populateCrossRefs loads the entry to GO mapping. Terms are created on
// first use; links to unknown entries are skipped.
func populateCrossRefs(ctx context.Context, env *stageEnv, r io.Reader) error {
	entries := newEntryCache(env.store)
	terms := identity.New(string(datastore.KindCrossRef),
		identity.FromFinder(env.store.FindTerm, datastore.ErrNotFound))

	seen := make(map[termLink]struct{})
	var links []termLink

	reader := parser.NewCrossRefReader(r, env.malformedCounter())
	for reader.Next() {
		rec := reader.Record()
		env.report.Read++

		entry, ok, err := entries.Resolve(ctx, rec.EntryKey)
		if err != nil {
			return err
		}
		if !ok {
			env.unresolved("cross-reference entry", rec.EntryKey, rec.Line)
			continue
		}
		term, err := terms.GetOrCreateMatching(ctx, rec.TermKey, func() *datastore.CrossRefTerm {
			return &datastore.CrossRefTerm{Key: rec.TermKey, Name: rec.TermName}
		}, func(existing *datastore.CrossRefTerm) bool {
			return compatibleTerm(existing, rec.TermName)
		})
		if err != nil {
			return err
		}
		if term.Name == "" && rec.TermName != "" {
			term.Name = rec.TermName
		}

		link := termLink{entry: entry, term: term}
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}
		links = append(links, link)
	}
	if err := reader.Err(); err != nil {
		return err
	}

	pendingTerms := terms.Pending()
	var added int64
	err := env.store.Transaction(ctx, func(tx *datastore.Tx) error {
		if err := tx.CreateTerms(pendingTerms); err != nil {
			return err
		}
		rows := make([]datastore.EntryCrossRef, 0, len(links))
		for _, l := range links {
			rows = append(rows, datastore.EntryCrossRef{EntryID: l.entry.ID, TermID: l.term.ID})
		}
		n, err := tx.LinkTerms(rows)
		added = n
		return err
	})
	if err != nil {
		terms.Discard()
		return err
	}
	terms.Commit()

	env.report.Written = added
	env.recorder.AddRecords(string(datastore.KindCrossRef), outcomeWritten, int64(len(pendingTerms)))
	env.recorder.AddRecords(string(datastore.KindEntryCrossRef), outcomeWritten, added)
	env.log.Info("cross-references committed",
		logger.Int("terms_created", len(pendingTerms)),
		logger.Int64("links_added", added),
		logger.Int64("unresolved", env.report.Unresolved))
	return nil
}

// unresolved counts a record skipped for a missing entry.
func (e *stageEnv) unresolved(what, key string, line int) {
	e.report.Unresolved++
	e.recorder.AddRecords(string(datastore.KindEntry), outcomeUnresolved, 1)
	e.log.Debug("skipping record with unknown reference",
		logger.String("reference", what),
		logger.String("key", key),
		logger.Int("line", line))
}
