package datastore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/interpro-loader/internal/conf"
	"github.com/tphakala/interpro-loader/internal/errors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	settings := &conf.DatabaseSettings{
		Type:   "sqlite",
		SQLite: conf.SQLiteSettings{Path: filepath.Join(t.TempDir(), "test.db")},
	}
	store, err := Open(settings, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// seedTree stores Root -> {ChildA, ChildB -> Grandchild} plus an unrelated Lone entry.
func seedTree(t *testing.T, store *Store) map[string]*Entry {
	t.Helper()
	ctx := context.Background()

	family := &EntryType{Name: "Family"}
	entries := map[string]*Entry{}
	for _, acc := range []string{"Root", "ChildA", "ChildB", "Grandchild", "Lone"} {
		entries[acc] = &Entry{Accession: acc, Name: acc + " name"}
	}

	err := store.Transaction(ctx, func(tx *Tx) error {
		if err := tx.CreateTypes([]*EntryType{family}); err != nil {
			return err
		}
		batch := make([]*Entry, 0, len(entries))
		for _, e := range entries {
			e.TypeID = family.ID
			batch = append(batch, e)
		}
		if err := tx.CreateEntries(batch); err != nil {
			return err
		}
		return tx.SetParents([]ParentLink{
			{ChildID: entries["ChildA"].ID, ParentID: entries["Root"].ID},
			{ChildID: entries["ChildB"].ID, ParentID: entries["Root"].ID},
			{ChildID: entries["Grandchild"].ID, ParentID: entries["ChildB"].ID},
		})
	})
	require.NoError(t, err)
	return entries
}

func TestOpen_CreatesSchema(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	assert.True(t, store.Manager().Exists())
	assert.False(t, store.Manager().IsMySQL())
	for _, kind := range Kinds() {
		n, err := store.Count(t.Context(), kind)
		require.NoError(t, err, "kind %s", kind)
		assert.Zero(t, n)
	}
}

func TestOpen_RejectsUnknownBackend(t *testing.T) {
	t.Parallel()
	_, err := Open(&conf.DatabaseSettings{Type: "postgres"}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestCount_UnknownKind(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	_, err := store.Count(t.Context(), Kind("nope"))
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestGetByKey(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	seedTree(t, store)
	ctx := t.Context()

	rec, found, err := store.GetByKey(ctx, KindEntry, "ChildB")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, KindEntry, rec.Kind())
	assert.Equal(t, "ChildB", rec.NaturalKey())

	rec, found, err = store.GetByKey(ctx, KindType, "Family")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Family", rec.NaturalKey())

	_, found, err = store.GetByKey(ctx, KindEntry, "IPR999")
	require.NoError(t, err)
	assert.False(t, found)

	_, err = store.FindEntry(ctx, "IPR999")
	require.ErrorIs(t, err, ErrNotFound)
	assert.True(t, errors.IsNotFound(err))

	byName, err := store.FindEntryByName(ctx, "Lone name")
	require.NoError(t, err)
	assert.Equal(t, "Lone", byName.Accession)
}

func TestHierarchyQueries(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	entries := seedTree(t, store)
	ctx := t.Context()

	children, err := store.Children(ctx, entries["Root"].ID)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "ChildA", children[0].Accession)
	assert.Equal(t, "ChildB", children[1].Accession)

	ancestors, err := store.Ancestors(ctx, entries["Grandchild"].ID)
	require.NoError(t, err)
	require.Len(t, ancestors, 2)
	assert.Equal(t, "ChildB", ancestors[0].Accession)
	assert.Equal(t, "Root", ancestors[1].Accession)

	roots, err := store.Roots(ctx)
	require.NoError(t, err)
	require.Len(t, roots, 1, "Lone has no children and is not a hierarchy root")
	assert.Equal(t, "Root", roots[0].Accession)

	links, err := store.Count(ctx, KindParentLink)
	require.NoError(t, err)
	assert.Equal(t, int64(3), links)
}

func TestAncestors_DetectsCycle(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	entries := seedTree(t, store)
	ctx := t.Context()

	// Close the loop Root -> Grandchild behind the store's back.
	err := store.Transaction(ctx, func(tx *Tx) error {
		return tx.SetParents([]ParentLink{{ChildID: entries["Root"].ID, ParentID: entries["Grandchild"].ID}})
	})
	require.NoError(t, err)

	_, err = store.Ancestors(ctx, entries["ChildA"].ID)
	require.ErrorIs(t, err, ErrHierarchyCycle)
}

func TestSetParents_RejectsSelfLink(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	entries := seedTree(t, store)

	err := store.Transaction(t.Context(), func(tx *Tx) error {
		return tx.SetParents([]ParentLink{{ChildID: entries["Lone"].ID, ParentID: entries["Lone"].ID}})
	})
	require.ErrorIs(t, err, ErrHierarchyCycle)
}

func TestCreateEntries_DuplicateAccessionIsFatal(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	entries := seedTree(t, store)
	ctx := t.Context()

	err := store.Transaction(ctx, func(tx *Tx) error {
		return tx.CreateEntries([]*Entry{{Accession: "Root", Name: "another", TypeID: entries["Root"].TypeID}})
	})
	require.Error(t, err)
	assert.True(t, IsDuplicateKey(err))
	assert.True(t, errors.IsFatal(err))

	n, err := store.Count(ctx, KindEntry)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n, "failed transaction must not change the store")
}

func TestCrossRefsAndAnnotations(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	entries := seedTree(t, store)
	ctx := t.Context()

	term := &CrossRefTerm{Key: "GO:0003677", Name: "DNA binding"}
	subject := &Subject{Accession: "P12345"}
	annotations := []Annotation{
		{EntryID: entries["ChildA"].ID, Tag: "PF00001", SpanStart: 10, SpanEnd: 50},
		{EntryID: entries["Root"].ID, Tag: "PS50001", SpanStart: 1, SpanEnd: 120},
	}

	write := func() (int64, int64) {
		var links, added int64
		err := store.Transaction(ctx, func(tx *Tx) error {
			if term.ID == 0 {
				if err := tx.CreateTerms([]*CrossRefTerm{term}); err != nil {
					return err
				}
				if err := tx.CreateSubjects([]*Subject{subject}); err != nil {
					return err
				}
			}
			var err error
			links, err = tx.LinkTerms([]EntryCrossRef{
				{EntryID: entries["Root"].ID, TermID: term.ID},
				{EntryID: entries["ChildB"].ID, TermID: term.ID},
			})
			if err != nil {
				return err
			}
			batch := make([]Annotation, len(annotations))
			for i, a := range annotations {
				a.SubjectID = subject.ID
				batch[i] = a
			}
			added, err = tx.CreateAnnotations(batch)
			return err
		})
		require.NoError(t, err)
		return links, added
	}

	links, added := write()
	assert.Equal(t, int64(2), links)
	assert.Equal(t, int64(2), added)

	// Replaying the same rows adds nothing.
	write()
	sum, err := store.Summarize(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{
		Types: 1, Entries: 5, ParentLinks: 3,
		Terms: 1, TermLinks: 2, Subjects: 1, Annotations: 2,
	}, sum)

	terms, err := store.TermsForEntry(ctx, entries["ChildB"].ID)
	require.NoError(t, err)
	require.Len(t, terms, 1)
	assert.Equal(t, "DNA binding", terms[0].Name)

	linked, err := store.EntriesForTerm(ctx, term.ID)
	require.NoError(t, err)
	assert.Len(t, linked, 2)

	views, err := store.AnnotationsForSubject(ctx, subject.ID)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, AnnotationView{Subject: "P12345", Entry: "Root", Tag: "PS50001", Start: 1, End: 120}, views[0])
}

func TestCreateAnnotations_RequiresSavedReferences(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	err := store.Transaction(t.Context(), func(tx *Tx) error {
		_, err := tx.CreateAnnotations([]Annotation{{EntryID: 1, Tag: "x"}})
		return err
	})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestTransaction_CancelledContext(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	called := false
	err := store.Transaction(ctx, func(*Tx) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestParseKind(t *testing.T) {
	t.Parallel()
	tests := map[string]Kind{
		"entries":   KindEntry,
		"go":        KindCrossRef,
		"protein":   KindSubject,
		"hierarchy": KindParentLink,
	}
	for in, want := range tests {
		got, ok := ParseKind(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ParseKind("detections")
	assert.False(t, ok)
}

func TestMySQLConfigDSN(t *testing.T) {
	t.Parallel()
	dsn := MySQLConfig{Host: "db.local", Port: "3307", Username: "loader", Password: "pw", Database: "interpro"}.DSN()
	assert.Contains(t, dsn, "loader:pw@tcp(db.local:3307)/interpro?")
	assert.Contains(t, dsn, "charset=utf8mb4")
	assert.Contains(t, dsn, "parseTime=true")
}
