package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/interpro-loader/internal/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type record struct {
	Key  string
	Name string
}

// fakeStore counts lookups so tests can tell memo hits from store hits.
type fakeStore struct {
	rows    map[string]*record
	lookups int
	err     error
}

func (s *fakeStore) lookup(_ context.Context, key string) (*record, bool, error) {
	s.lookups++
	if s.err != nil {
		return nil, false, s.err
	}
	r, ok := s.rows[key]
	return r, ok, nil
}

func newRecord(key string) func() *record {
	return func() *record { return &record{Key: key} }
}

func hasName(name string) func(*record) bool {
	return func(existing *record) bool { return existing.Name == name }
}

func TestGetOrCreate_ReturnsIdenticalHandle(t *testing.T) {
	t.Parallel()
	store := &fakeStore{rows: map[string]*record{}}
	c := New[*record]("entry", store.lookup)
	ctx := t.Context()

	factoryCalls := 0
	factory := func() *record {
		factoryCalls++
		return &record{Key: "IPR1", Name: "first"}
	}

	a, err := c.GetOrCreate(ctx, "IPR1", factory)
	require.NoError(t, err)
	b, err := c.GetOrCreate(ctx, "IPR1", factory)
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, 1, factoryCalls)
	assert.Equal(t, 1, store.lookups, "second call must be served from the memo")
	require.Len(t, c.Pending(), 1)
	assert.Same(t, a, c.Pending()[0])
	assert.Equal(t, Stats{MemoHits: 1, Created: 1}, c.Stats())
}

func TestGetOrCreate_PrefersStore(t *testing.T) {
	t.Parallel()
	stored := &record{Key: "IPR2", Name: "stored"}
	store := &fakeStore{rows: map[string]*record{"IPR2": stored}}
	c := New[*record]("entry", store.lookup)

	got, err := c.GetOrCreate(t.Context(), "IPR2", func() *record {
		t.Fatal("factory must not run for stored keys")
		return nil
	})
	require.NoError(t, err)
	assert.Same(t, stored, got)
	assert.Empty(t, c.Pending())
}

func TestGetOrCreateMatching_ConflictingAttributes(t *testing.T) {
	t.Parallel()
	store := &fakeStore{rows: map[string]*record{"IPR3": {Key: "IPR3", Name: "old"}}}
	c := New[*record]("entry", store.lookup)
	ctx := t.Context()

	_, err := c.GetOrCreateMatching(ctx, "IPR3", newRecord("IPR3"), hasName("old"))
	require.NoError(t, err, "identical attributes are not a conflict")

	_, err = c.GetOrCreateMatching(ctx, "IPR3", newRecord("IPR3"), hasName("old"))
	require.NoError(t, err)

	_, err = c.GetOrCreateMatching(ctx, "IPR3", newRecord("IPR3"), hasName("new"))
	require.Error(t, err, "a conflict after earlier matching repeats is still caught")
	assert.True(t, errors.IsCategory(err, errors.CategoryDuplicateKey))
	assert.True(t, errors.IsFatal(err))
}

func TestGetOrCreateMatching_FactoryOnlyForNewKeys(t *testing.T) {
	t.Parallel()
	c := New[*record]("term", nil)
	ctx := t.Context()

	built := 0
	factory := func() *record {
		built++
		return &record{Key: "GO:0003677", Name: "DNA binding"}
	}
	for range 5 {
		got, err := c.GetOrCreateMatching(ctx, "GO:0003677", factory, hasName("DNA binding"))
		require.NoError(t, err)
		assert.Equal(t, "DNA binding", got.Name)
	}

	assert.Equal(t, 1, built, "repeats are checked against the memoized handle")
	assert.Equal(t, int64(4), c.Stats().MemoHits)
	assert.Len(t, c.Pending(), 1)
}

func TestGetOrCreate_LookupFailure(t *testing.T) {
	t.Parallel()
	store := &fakeStore{err: errors.NewStd("database is locked")}
	c := New[*record]("entry", store.lookup)

	_, err := c.GetOrCreate(t.Context(), "IPR4", func() *record { return &record{Key: "IPR4"} })
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryDatabase))
	assert.Empty(t, c.Pending())
}

func TestResolve_NeverCreates(t *testing.T) {
	t.Parallel()
	store := &fakeStore{rows: map[string]*record{"IPR5": {Key: "IPR5"}}}
	c := New[*record]("entry", store.lookup)
	ctx := t.Context()

	_, found, err := c.Resolve(ctx, "IPR999")
	require.NoError(t, err)
	assert.False(t, found)

	first, found, err := c.Resolve(ctx, "IPR5")
	require.NoError(t, err)
	require.True(t, found)
	second, _, err := c.Resolve(ctx, "IPR5")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 2, store.lookups)
	assert.Empty(t, c.Pending())
	assert.Equal(t, int64(1), c.Stats().Misses)
}

func TestCommitAndDiscard(t *testing.T) {
	t.Parallel()
	store := &fakeStore{rows: map[string]*record{}}
	c := New[*record]("subject", store.lookup)
	ctx := t.Context()

	_, err := c.GetOrCreate(ctx, "P1", newRecord("P1"))
	require.NoError(t, err)
	c.Commit()
	assert.Empty(t, c.Pending())
	assert.Equal(t, 1, c.Len(), "committed handles stay memoized")

	_, err = c.GetOrCreate(ctx, "P2", newRecord("P2"))
	require.NoError(t, err)
	c.Discard()
	assert.Empty(t, c.Pending())
	assert.Equal(t, 1, c.Len())

	c.Forget("P1")
	assert.Zero(t, c.Len())
}

func TestResolve_CancelledContext(t *testing.T) {
	t.Parallel()
	store := &fakeStore{rows: map[string]*record{}}
	c := New[*record]("entry", store.lookup)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, _, err := c.Resolve(ctx, "IPR1")
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, store.lookups)
}

func TestFromFinder(t *testing.T) {
	t.Parallel()
	notFound := errors.NewStd("not found")
	lookup := FromFinder(func(_ context.Context, key string) (*record, error) {
		if key == "known" {
			return &record{Key: key}, nil
		}
		return nil, notFound
	}, notFound)

	r, found, err := lookup(t.Context(), "known")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "known", r.Key)

	_, found, err = lookup(t.Context(), "missing")
	require.NoError(t, err)
	assert.False(t, found)
}
