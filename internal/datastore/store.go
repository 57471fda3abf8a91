// Package datastore persists the classification graph with GORM on SQLite or MySQL.
//
// Relations are plain FK columns. Parent, children and cross-reference
// lookups are explicit queries in queries.go; no GORM associations are
// declared, so nothing is loaded implicitly.
package datastore

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tphakala/interpro-loader/internal/conf"
	"github.com/tphakala/interpro-loader/internal/errors"
	"github.com/tphakala/interpro-loader/internal/logger"
)

// insertBatchSize keeps multi-row inserts under SQLite's bound variable limit.
const insertBatchSize = 500

// Manager owns a database connection and its schema.
type Manager interface {
	Initialize() error
	DB() *gorm.DB
	Path() string
	IsMySQL() bool
	Exists() bool
	Close() error
	Delete() error
}

// Reader is the read side of the store.
type Reader interface {
	Count(ctx context.Context, kind Kind) (int64, error)
	GetByKey(ctx context.Context, kind Kind, key string) (Record, bool, error)
	FindType(ctx context.Context, name string) (*EntryType, error)
	FindEntry(ctx context.Context, accession string) (*Entry, error)
	FindTerm(ctx context.Context, key string) (*CrossRefTerm, error)
	FindSubject(ctx context.Context, accession string) (*Subject, error)
}

// Writer commits a unit of work atomically.
type Writer interface {
	Transaction(ctx context.Context, fn func(tx *Tx) error) error
}

// ReadWriter is what an ingestion stage needs.
type ReadWriter interface {
	Reader
	Writer
}

// Store is the query layer over a Manager.
type Store struct {
	manager Manager
	db      *gorm.DB
	log     logger.Logger
}

var _ ReadWriter = (*Store)(nil)

// Option configures Open.
type Option func(*options)

type options struct {
	onQuery func(elapsed time.Duration, err error)
}

// WithQueryObserver receives the duration and error of every SQL statement.
func WithQueryObserver(fn func(elapsed time.Duration, err error)) Option {
	return func(o *options) { o.onQuery = fn }
}

// Open connects to the configured backend and creates missing tables.
func Open(settings *conf.DatabaseSettings, log logger.Logger, opts ...Option) (*Store, error) {
	if settings == nil {
		return nil, validationError(ErrNotInitialized, "database", nil)
	}
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	log = log.Module(component)

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	gormLogger := logger.NewGormLoggerAdapter(log, settings.SlowQueryThreshold)
	if o.onQuery != nil {
		gormLogger.OnQuery(o.onQuery)
	}
	gormCfg := &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	}

	var (
		manager Manager
		err     error
	)
	switch strings.ToLower(settings.Type) {
	case "", "sqlite":
		manager, err = NewSQLiteManager(settings.SQLite.Path, gormCfg)
	case "mysql":
		manager, err = NewMySQLManager(MySQLConfig{
			Host:     settings.MySQL.Host,
			Port:     settings.MySQL.Port,
			Username: settings.MySQL.Username,
			Password: settings.MySQL.Password,
			Database: settings.MySQL.Database,
		}, gormCfg)
	default:
		return nil, validationError(errors.Newf("unsupported database type %q", settings.Type).Build(), "database.type", settings.Type)
	}
	if err != nil {
		return nil, err
	}

	if err := manager.Initialize(); err != nil {
		_ = manager.Close()
		return nil, err
	}

	log.Debug("database ready",
		logger.String("path", manager.Path()),
		logger.Bool("mysql", manager.IsMySQL()))

	return NewStore(manager, log), nil
}

// NewStore wraps an initialized Manager.
func NewStore(manager Manager, log logger.Logger) *Store {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	return &Store{manager: manager, db: manager.DB(), log: log}
}

// Manager returns the underlying connection manager.
func (s *Store) Manager() Manager { return s.manager }

// Close closes the database connection.
func (s *Store) Close() error {
	if s.manager == nil {
		return nil
	}
	return s.manager.Close()
}

// Transaction runs fn inside a database transaction. Returning an error
// from fn rolls back everything fn wrote.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Tx) error) error {
	if s.db == nil {
		return ErrNotInitialized
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&Tx{db: db})
	})
}

// Tx is the write side of the store, valid only inside Transaction.
type Tx struct {
	db *gorm.DB
}

// CreateTypes inserts types and fills in their IDs.
func (t *Tx) CreateTypes(types []*EntryType) error {
	if len(types) == 0 {
		return nil
	}
	if err := t.db.CreateInBatches(types, insertBatchSize).Error; err != nil {
		return dbError(err, "create_types", errors.PriorityHigh, "count", len(types))
	}
	return nil
}

// CreateEntries inserts entries and fills in their IDs. Every TypeID must
// reference an existing type.
func (t *Tx) CreateEntries(entries []*Entry) error {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if e.TypeID == 0 {
			return validationError(errors.Newf("entry %s has no type", e.Accession).Build(), "type_id", e.Accession)
		}
	}
	if err := t.db.CreateInBatches(entries, insertBatchSize).Error; err != nil {
		return dbError(err, "create_entries", errors.PriorityHigh, "count", len(entries))
	}
	return nil
}

// SetParents writes parent FKs. Re-applying the same link is a no-op.
func (t *Tx) SetParents(links []ParentLink) error {
	for _, link := range links {
		if link.ChildID == link.ParentID {
			return validationError(ErrHierarchyCycle, "parent_id", link.ChildID)
		}
		err := t.db.Model(&Entry{}).
			Where("id = ?", link.ChildID).
			Update("parent_id", link.ParentID).Error
		if err != nil {
			return dbError(err, "set_parent", "", "child_id", link.ChildID, "parent_id", link.ParentID)
		}
	}
	return nil
}

// CreateTerms inserts cross-reference terms and fills in their IDs.
func (t *Tx) CreateTerms(terms []*CrossRefTerm) error {
	if len(terms) == 0 {
		return nil
	}
	if err := t.db.CreateInBatches(terms, insertBatchSize).Error; err != nil {
		return dbError(err, "create_terms", errors.PriorityHigh, "count", len(terms))
	}
	return nil
}

// LinkTerms inserts entry to term links, ignoring links that already exist.
// It returns the number of new links.
func (t *Tx) LinkTerms(links []EntryCrossRef) (int64, error) {
	if len(links) == 0 {
		return 0, nil
	}
	res := t.db.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(links, insertBatchSize)
	if res.Error != nil {
		return 0, dbError(res.Error, "link_terms", "", "count", len(links))
	}
	return res.RowsAffected, nil
}

// CreateSubjects inserts subjects and fills in their IDs.
func (t *Tx) CreateSubjects(subjects []*Subject) error {
	if len(subjects) == 0 {
		return nil
	}
	if err := t.db.CreateInBatches(subjects, insertBatchSize).Error; err != nil {
		return dbError(err, "create_subjects", errors.PriorityHigh, "count", len(subjects))
	}
	return nil
}

// CreateAnnotations appends annotations, ignoring exact duplicates of rows
// already stored. It returns the number of new rows.
func (t *Tx) CreateAnnotations(annotations []Annotation) (int64, error) {
	if len(annotations) == 0 {
		return 0, nil
	}
	for i := range annotations {
		if annotations[i].EntryID == 0 || annotations[i].SubjectID == 0 {
			return 0, validationError(errors.NewStd("annotation references an unsaved entity"), "annotation", annotations[i].NaturalKey())
		}
	}
	res := t.db.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(annotations, insertBatchSize)
	if res.Error != nil {
		return 0, dbError(res.Error, "create_annotations", "", "count", len(annotations))
	}
	return res.RowsAffected, nil
}
