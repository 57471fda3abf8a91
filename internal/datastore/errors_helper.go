package datastore

import (
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"

	"github.com/tphakala/interpro-loader/internal/errors"
)

const component = "datastore"

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// Sentinel errors for store lookups.
var (
	ErrNotFound         = errors.NewStd("record not found")
	ErrUnknownKind      = errors.NewStd("unknown entity kind")
	ErrHierarchyCycle   = errors.NewStd("hierarchy cycle detected")
	ErrHierarchyTooDeep = errors.NewStd("hierarchy deeper than limit")
	ErrNotInitialized   = errors.NewStd("database connection is not initialized")
)

// dbError creates a properly categorized database error with context
func dbError(err error, operation, priority string, context ...any) error {
	if isDuplicateKey(err) {
		return duplicateKeyError(err, operation, context...)
	}

	builder := errors.New(err).
		Component(component).
		Category(errors.CategoryDatabase).
		Context("operation", operation)

	if priority != "" {
		builder = builder.Priority(priority)
	}
	return withPairs(builder, context).Build()
}

// duplicateKeyError marks a unique constraint violation as fatal.
func duplicateKeyError(err error, operation string, context ...any) error {
	builder := errors.New(err).
		Component(component).
		Category(errors.CategoryDuplicateKey).
		Priority(errors.PriorityHigh).
		Context("operation", operation)
	return withPairs(builder, context).Build()
}

// notFoundError wraps ErrNotFound with the kind and key searched for.
func notFoundError(kind Kind, key string) error {
	return errors.New(ErrNotFound).
		Component(component).
		Category(errors.CategoryNotFound).
		Priority(errors.PriorityLow).
		Context("kind", string(kind)).
		Context("key", key).
		Build()
}

func validationError(err error, field string, value any) error {
	return errors.New(err).
		Component(component).
		Category(errors.CategoryValidation).
		Context("field", field).
		Context("value", value).
		Build()
}

func withPairs(builder *errors.ErrorBuilder, context []any) *errors.ErrorBuilder {
	for i := 0; i < len(context)-1; i += 2 {
		if key, ok := context[i].(string); ok {
			builder = builder.Context(key, context[i+1])
		}
	}
	return builder
}

// isDuplicateKey reports unique or primary key violations from either backend.
// gorm translates most of them when TranslateError is on; the driver checks
// catch the ones raised inside batch inserts.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}

	var mysqlErr *mysqldriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlDuplicateEntry
	}
	return false
}

// IsDuplicateKey reports whether err is a duplicate key conflict.
func IsDuplicateKey(err error) bool {
	return errors.IsCategory(err, errors.CategoryDuplicateKey) || isDuplicateKey(err)
}
