package datastore

import "strconv"

// Kind names a persisted entity kind.
type Kind string

const (
	KindType       Kind = "type"
	KindEntry      Kind = "entry"
	KindCrossRef   Kind = "xref"
	KindSubject    Kind = "subject"
	KindAnnotation Kind = "annotation"

	// Relation kinds, countable but without a natural key lookup.
	KindParentLink    Kind = "parent_link"
	KindEntryCrossRef Kind = "entry_xref"
)

// Kinds lists the kinds accepted by Count, in summary order.
func Kinds() []Kind {
	return []Kind{KindType, KindEntry, KindParentLink, KindCrossRef, KindEntryCrossRef, KindSubject, KindAnnotation}
}

// ParseKind accepts the kind names and a few common aliases.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "type", "types":
		return KindType, true
	case "entry", "entries", "interpro":
		return KindEntry, true
	case "xref", "xrefs", "term", "go":
		return KindCrossRef, true
	case "subject", "subjects", "protein":
		return KindSubject, true
	case "annotation", "annotations":
		return KindAnnotation, true
	case "parent_link", "hierarchy":
		return KindParentLink, true
	case "entry_xref":
		return KindEntryCrossRef, true
	}
	return "", false
}

// Record is any entity addressable by a natural key.
type Record interface {
	Kind() Kind
	NaturalKey() string
}

// EntryType classifies entries (Family, Domain, Repeat, ...).
type EntryType struct {
	ID   uint   `gorm:"primaryKey" yaml:"id"`
	Name string `gorm:"size:255;not null;uniqueIndex" yaml:"name"`
}

// TableName returns the table name for GORM.
func (EntryType) TableName() string { return "entry_types" }

func (EntryType) Kind() Kind { return KindType }
func (t EntryType) NaturalKey() string { return t.Name }

// Entry is a classification entry. ParentID is a plain FK column; parent and
// children are resolved through explicit queries, never through associations.
type Entry struct {
	ID        uint   `gorm:"primaryKey" yaml:"id"`
	Accession string `gorm:"size:32;not null;uniqueIndex" yaml:"accession"`
	Name      string `gorm:"size:255;not null;uniqueIndex" yaml:"name"`
	TypeID    uint   `gorm:"not null;index" yaml:"type_id"`
	ParentID  *uint  `gorm:"index" yaml:"parent_id,omitempty"`
}

// TableName returns the table name for GORM.
func (Entry) TableName() string { return "entries" }

func (Entry) Kind() Kind { return KindEntry }
func (e Entry) NaturalKey() string { return e.Accession }

// CrossRefTerm is an external vocabulary term, e.g. a GO term.
type CrossRefTerm struct {
	ID   uint   `gorm:"primaryKey" yaml:"id"`
	Key  string `gorm:"column:term_key;size:32;not null;uniqueIndex" yaml:"key"`
	Name string `gorm:"size:255" yaml:"name,omitempty"`
}

// TableName returns the table name for GORM.
func (CrossRefTerm) TableName() string { return "cross_ref_terms" }

func (CrossRefTerm) Kind() Kind { return KindCrossRef }
func (c CrossRefTerm) NaturalKey() string { return c.Key }

// EntryCrossRef links an entry to a term.
type EntryCrossRef struct {
	EntryID uint `gorm:"primaryKey;autoIncrement:false" yaml:"entry_id"`
	TermID  uint `gorm:"primaryKey;autoIncrement:false;index" yaml:"term_id"`
}

// TableName returns the table name for GORM.
func (EntryCrossRef) TableName() string { return "entry_cross_refs" }

// Subject is an externally annotated entity, e.g. a protein.
type Subject struct {
	ID        uint   `gorm:"primaryKey" yaml:"id"`
	Accession string `gorm:"size:32;not null;uniqueIndex" yaml:"accession"`
}

// TableName returns the table name for GORM.
func (Subject) TableName() string { return "subjects" }

func (Subject) Kind() Kind { return KindSubject }
func (s Subject) NaturalKey() string { return s.Accession }

// Annotation places an entry on a subject at a span, under a source tag.
type Annotation struct {
	ID        uint   `gorm:"primaryKey" yaml:"id"`
	EntryID   uint   `gorm:"not null;uniqueIndex:idx_annotation_identity;index" yaml:"entry_id"`
	SubjectID uint   `gorm:"not null;uniqueIndex:idx_annotation_identity" yaml:"subject_id"`
	Tag       string `gorm:"size:64;not null;uniqueIndex:idx_annotation_identity" yaml:"tag"`
	SpanStart int    `gorm:"not null;uniqueIndex:idx_annotation_identity" yaml:"start"`
	SpanEnd   int    `gorm:"not null;uniqueIndex:idx_annotation_identity" yaml:"end"`
}

// TableName returns the table name for GORM.
func (Annotation) TableName() string { return "annotations" }

func (Annotation) Kind() Kind { return KindAnnotation }

// NaturalKey renders the composite identity; annotations have no single key.
func (a Annotation) NaturalKey() string {
	return strconv.FormatUint(uint64(a.EntryID), 10) + ":" +
		strconv.FormatUint(uint64(a.SubjectID), 10) + ":" + a.Tag + ":" +
		strconv.Itoa(a.SpanStart) + "-" + strconv.Itoa(a.SpanEnd)
}

// ParentLink sets ChildID's parent to ParentID.
type ParentLink struct {
	ChildID  uint
	ParentID uint
}

// models lists every table managed by AutoMigrate, parents first.
func models() []any {
	return []any{
		&EntryType{},
		&Entry{},
		&CrossRefTerm{},
		&EntryCrossRef{},
		&Subject{},
		&Annotation{},
	}
}
