package datastore

import (
	"context"
	"strconv"

	"gorm.io/gorm"

	"github.com/tphakala/interpro-loader/internal/errors"
)

// MaxHierarchyDepth bounds ancestor walks.
const MaxHierarchyDepth = 64

// Count returns the number of stored rows of kind.
func (s *Store) Count(ctx context.Context, kind Kind) (int64, error) {
	q := s.db.WithContext(ctx)
	switch kind {
	case KindType:
		q = q.Model(&EntryType{})
	case KindEntry:
		q = q.Model(&Entry{})
	case KindParentLink:
		q = q.Model(&Entry{}).Where("parent_id IS NOT NULL")
	case KindCrossRef:
		q = q.Model(&CrossRefTerm{})
	case KindEntryCrossRef:
		q = q.Model(&EntryCrossRef{})
	case KindSubject:
		q = q.Model(&Subject{})
	case KindAnnotation:
		q = q.Model(&Annotation{})
	default:
		return 0, validationError(ErrUnknownKind, "kind", string(kind))
	}

	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, dbError(err, "count", "", "kind", string(kind))
	}
	return n, nil
}

// GetByKey looks up a record by natural key. A missing record is reported
// as found == false with a nil error.
func (s *Store) GetByKey(ctx context.Context, kind Kind, key string) (Record, bool, error) {
	var (
		rec Record
		err error
	)
	switch kind {
	case KindType:
		rec, err = s.FindType(ctx, key)
	case KindEntry:
		rec, err = s.FindEntry(ctx, key)
	case KindCrossRef:
		rec, err = s.FindTerm(ctx, key)
	case KindSubject:
		rec, err = s.FindSubject(ctx, key)
	default:
		return nil, false, validationError(ErrUnknownKind, "kind", string(kind))
	}
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// first loads the single row where column equals value.
func first[T any](ctx context.Context, db *gorm.DB, kind Kind, column, value string) (*T, error) {
	var row T
	err := db.WithContext(ctx).Where(column+" = ?", value).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFoundError(kind, value)
	}
	if err != nil {
		return nil, dbError(err, "get_by_key", "", "kind", string(kind), "key", value)
	}
	return &row, nil
}

// FindType returns the type with the given name.
func (s *Store) FindType(ctx context.Context, name string) (*EntryType, error) {
	return first[EntryType](ctx, s.db, KindType, "name", name)
}

// FindEntry returns the entry with the given accession.
func (s *Store) FindEntry(ctx context.Context, accession string) (*Entry, error) {
	return first[Entry](ctx, s.db, KindEntry, "accession", accession)
}

// FindEntryByName returns the entry with the given display name.
func (s *Store) FindEntryByName(ctx context.Context, name string) (*Entry, error) {
	return first[Entry](ctx, s.db, KindEntry, "name", name)
}

// FindTerm returns the cross-reference term with the given key.
func (s *Store) FindTerm(ctx context.Context, key string) (*CrossRefTerm, error) {
	return first[CrossRefTerm](ctx, s.db, KindCrossRef, "term_key", key)
}

// FindSubject returns the subject with the given accession.
func (s *Store) FindSubject(ctx context.Context, accession string) (*Subject, error) {
	return first[Subject](ctx, s.db, KindSubject, "accession", accession)
}

// GetEntryByID returns the entry with the given primary key.
func (s *Store) GetEntryByID(ctx context.Context, id uint) (*Entry, error) {
	var e Entry
	err := s.db.WithContext(ctx).Take(&e, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFoundError(KindEntry, strconv.FormatUint(uint64(id), 10))
	}
	if err != nil {
		return nil, dbError(err, "get_entry_by_id", "", "id", id)
	}
	return &e, nil
}

// TypeName returns the name of the type with the given ID.
func (s *Store) TypeName(ctx context.Context, typeID uint) (string, error) {
	var t EntryType
	err := s.db.WithContext(ctx).Take(&t, typeID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", notFoundError(KindType, strconv.FormatUint(uint64(typeID), 10))
	}
	if err != nil {
		return "", dbError(err, "get_type_by_id", "", "id", typeID)
	}
	return t.Name, nil
}

// Children returns the direct children of an entry, ordered by accession.
func (s *Store) Children(ctx context.Context, entryID uint) ([]Entry, error) {
	var children []Entry
	err := s.db.WithContext(ctx).
		Where("parent_id = ?", entryID).
		Order("accession").
		Find(&children).Error
	if err != nil {
		return nil, dbError(err, "children", "", "entry_id", entryID)
	}
	return children, nil
}

// Ancestors returns the parent chain of an entry, nearest first. The walk
// fails with ErrHierarchyCycle if an entry repeats and with
// ErrHierarchyTooDeep past MaxHierarchyDepth.
func (s *Store) Ancestors(ctx context.Context, entryID uint) ([]Entry, error) {
	current, err := s.GetEntryByID(ctx, entryID)
	if err != nil {
		return nil, err
	}

	seen := map[uint]struct{}{current.ID: {}}
	var chain []Entry
	for current.ParentID != nil {
		if len(chain) >= MaxHierarchyDepth {
			return chain, validationError(ErrHierarchyTooDeep, "entry_id", entryID)
		}
		parentID := *current.ParentID
		if _, dup := seen[parentID]; dup {
			return chain, validationError(ErrHierarchyCycle, "entry_id", entryID)
		}
		seen[parentID] = struct{}{}

		parent, err := s.GetEntryByID(ctx, parentID)
		if err != nil {
			return chain, err
		}
		chain = append(chain, *parent)
		current = parent
	}
	return chain, nil
}

// Roots returns parentless entries that have at least one child.
func (s *Store) Roots(ctx context.Context) ([]Entry, error) {
	db := s.db.WithContext(ctx)
	parents := db.Model(&Entry{}).Select("parent_id").Where("parent_id IS NOT NULL")

	var roots []Entry
	err := db.Where("parent_id IS NULL AND id IN (?)", parents).
		Order("accession").
		Find(&roots).Error
	if err != nil {
		return nil, dbError(err, "roots", "")
	}
	return roots, nil
}

// TermsForEntry returns the cross-reference terms linked to an entry.
func (s *Store) TermsForEntry(ctx context.Context, entryID uint) ([]CrossRefTerm, error) {
	var terms []CrossRefTerm
	err := s.db.WithContext(ctx).
		Joins("JOIN entry_cross_refs ON entry_cross_refs.term_id = cross_ref_terms.id").
		Where("entry_cross_refs.entry_id = ?", entryID).
		Order("cross_ref_terms.term_key").
		Find(&terms).Error
	if err != nil {
		return nil, dbError(err, "terms_for_entry", "", "entry_id", entryID)
	}
	return terms, nil
}

// EntriesForTerm returns the entries linked to a cross-reference term.
func (s *Store) EntriesForTerm(ctx context.Context, termID uint) ([]Entry, error) {
	var entries []Entry
	err := s.db.WithContext(ctx).
		Joins("JOIN entry_cross_refs ON entry_cross_refs.entry_id = entries.id").
		Where("entry_cross_refs.term_id = ?", termID).
		Order("entries.accession").
		Find(&entries).Error
	if err != nil {
		return nil, dbError(err, "entries_for_term", "", "term_id", termID)
	}
	return entries, nil
}

// AnnotationView is an annotation with its keys resolved.
type AnnotationView struct {
	Subject string `yaml:"subject"`
	Entry   string `yaml:"entry"`
	Tag     string `yaml:"tag"`
	Start   int    `gorm:"column:span_start" yaml:"start"`
	End     int    `gorm:"column:span_end" yaml:"end"`
}

// AnnotationsForSubject returns a subject's annotations ordered by position.
func (s *Store) AnnotationsForSubject(ctx context.Context, subjectID uint) ([]AnnotationView, error) {
	var rows []AnnotationView
	err := s.db.WithContext(ctx).
		Table("annotations").
		Select("subjects.accession AS subject, entries.accession AS entry, annotations.tag AS tag, " +
			"annotations.span_start AS span_start, annotations.span_end AS span_end").
		Joins("JOIN subjects ON subjects.id = annotations.subject_id").
		Joins("JOIN entries ON entries.id = annotations.entry_id").
		Where("annotations.subject_id = ?", subjectID).
		Order("annotations.span_start, entries.accession, annotations.tag").
		Scan(&rows).Error
	if err != nil {
		return nil, dbError(err, "annotations_for_subject", "", "subject_id", subjectID)
	}
	return rows, nil
}

// Summary is a count of every stored kind.
type Summary struct {
	Types       int64 `yaml:"types"`
	Entries     int64 `yaml:"entries"`
	ParentLinks int64 `yaml:"parent_links"`
	Terms       int64 `yaml:"xref_terms"`
	TermLinks   int64 `yaml:"entry_xref_links"`
	Subjects    int64 `yaml:"subjects"`
	Annotations int64 `yaml:"annotations"`
}

// Summarize counts every kind.
func (s *Store) Summarize(ctx context.Context) (Summary, error) {
	var sum Summary
	targets := map[Kind]*int64{
		KindType:          &sum.Types,
		KindEntry:         &sum.Entries,
		KindParentLink:    &sum.ParentLinks,
		KindCrossRef:      &sum.Terms,
		KindEntryCrossRef: &sum.TermLinks,
		KindSubject:       &sum.Subjects,
		KindAnnotation:    &sum.Annotations,
	}
	for _, kind := range Kinds() {
		n, err := s.Count(ctx, kind)
		if err != nil {
			return Summary{}, err
		}
		*targets[kind] = n
	}
	return sum, nil
}
