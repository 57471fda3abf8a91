package source

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/interpro-loader/internal/conf"
	"github.com/tphakala/interpro-loader/internal/errors"
	"github.com/tphakala/interpro-loader/internal/httpclient"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const entryList = "ENTRY_AC\tENTRY_TYPE\tENTRY_NAME\nIPR000001\tDomain\tKringle\n"

func newTestFetcher(t *testing.T, mt *httpmock.MockTransport, opts ...Option) *Fetcher {
	t.Helper()
	settings := &conf.SourceSettings{CacheDir: t.TempDir(), Timeout: time.Minute}
	if mt != nil {
		opts = append([]Option{WithHTTPClient(httpclient.New(&httpclient.Config{Transport: mt}))}, opts...)
	}
	f := New(settings, nil, opts...)
	t.Cleanup(f.Close)
	return f
}

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	return string(data)
}

func gzipBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestOpen_LocalFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "entry.list")
	require.NoError(t, os.WriteFile(path, []byte(entryList), 0o600))

	f := newTestFetcher(t, nil)
	rc, err := f.Open(t.Context(), path)
	require.NoError(t, err)
	assert.Equal(t, entryList, readAll(t, rc))

	rc, err = f.Open(t.Context(), "file://"+path)
	require.NoError(t, err)
	assert.Equal(t, entryList, readAll(t, rc))
}

func TestOpen_DetectsGzipByMagic(t *testing.T) {
	t.Parallel()
	// No .gz suffix: detection must rely on content only.
	path := filepath.Join(t.TempDir(), "protein2ipr.dat")
	payload := "P00001\tIPR000001\tKringle\tPF00051\t10\t80\n"
	require.NoError(t, os.WriteFile(path, gzipBytes(t, payload), 0o600))

	f := newTestFetcher(t, nil)
	rc, err := f.Open(t.Context(), path)
	require.NoError(t, err)
	assert.Equal(t, payload, readAll(t, rc))
}

func TestDecompress_ShortAndEmptyStreams(t *testing.T) {
	t.Parallel()
	for _, in := range []string{"", "x"} {
		rc, err := Decompress(io.NopCloser(bytes.NewReader([]byte(in))))
		require.NoError(t, err)
		assert.Equal(t, in, readAll(t, rc))
	}
}

func TestOpen_MissingLocalFileIsFatal(t *testing.T) {
	t.Parallel()
	f := newTestFetcher(t, nil)

	_, err := f.Open(t.Context(), filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategorySourceFetch))
	assert.True(t, errors.IsFatal(err))
}

func TestOpen_UnsupportedScheme(t *testing.T) {
	t.Parallel()
	f := newTestFetcher(t, nil)

	_, err := f.Open(t.Context(), "gopher://example.org/entry.list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported source scheme")
}

func TestFetch_HTTPDownloadIsCached(t *testing.T) {
	t.Parallel()
	const url = "https://mirror.example.org/interpro/entry.list"
	mt := httpmock.NewMockTransport()
	mt.RegisterResponder(http.MethodGet, url, httpmock.NewStringResponder(http.StatusOK, entryList))

	f := newTestFetcher(t, mt)
	ctx := t.Context()

	first, err := f.Fetch(ctx, url)
	require.NoError(t, err)
	second, err := f.Fetch(ctx, url)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, mt.GetTotalCallCount(), "second fetch must use the cache")

	expected, err := f.CachePath(url)
	require.NoError(t, err)
	assert.Equal(t, expected, first)
	data, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, entryList, string(data))
}

func TestFetch_ForceDownload(t *testing.T) {
	t.Parallel()
	const url = "https://mirror.example.org/interpro/interpro2go"
	mt := httpmock.NewMockTransport()
	mt.RegisterResponder(http.MethodGet, url, httpmock.NewStringResponder(http.StatusOK, "!comment\n"))

	f := newTestFetcher(t, mt, WithForceDownload(true))
	for range 2 {
		_, err := f.Fetch(t.Context(), url)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, mt.GetTotalCallCount())
}

func TestFetch_HTTPErrorLeavesNoCacheFile(t *testing.T) {
	t.Parallel()
	const url = "https://mirror.example.org/interpro/ParentChildTreeFile.txt"
	mt := httpmock.NewMockTransport()
	mt.RegisterResponder(http.MethodGet, url, httpmock.NewStringResponder(http.StatusNotFound, "not found"))

	var observed []error
	f := newTestFetcher(t, mt, WithDownloadObserver(func(scheme string, _ int64, _ time.Duration, err error) {
		assert.Equal(t, "https", scheme)
		observed = append(observed, err)
	}))

	_, err := f.Fetch(t.Context(), url)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategorySourceFetch))

	target, perr := f.CachePath(url)
	require.NoError(t, perr)
	_, statErr := os.Stat(target)
	assert.True(t, os.IsNotExist(statErr))

	entries, err := os.ReadDir(filepath.Dir(target))
	require.NoError(t, err)
	assert.Empty(t, entries, "partial download must be removed")

	require.Len(t, observed, 1)
	assert.Error(t, observed[0])
}

func TestFetch_CancelledContext(t *testing.T) {
	t.Parallel()
	f := newTestFetcher(t, httpmock.NewMockTransport())

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := f.Fetch(ctx, "https://mirror.example.org/entry.list")
	require.ErrorIs(t, err, context.Canceled)
}

func TestFetch_SFTPRequiresCredentials(t *testing.T) {
	t.Parallel()
	f := newTestFetcher(t, nil)

	_, err := f.Fetch(t.Context(), "sftp://mirror.example.org/data/entry.list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no authentication method")
}

func TestPrefetch(t *testing.T) {
	t.Parallel()
	mt := httpmock.NewMockTransport()
	urls := []string{
		"https://mirror.example.org/a/entry.list",
		"https://mirror.example.org/a/ParentChildTreeFile.txt",
		"https://mirror.example.org/a/interpro2go",
	}
	for _, u := range urls {
		mt.RegisterResponder(http.MethodGet, u, httpmock.NewStringResponder(http.StatusOK, u))
	}

	var mu sync.Mutex
	downloaded := 0
	f := newTestFetcher(t, mt, WithDownloadObserver(func(string, int64, time.Duration, error) {
		mu.Lock()
		downloaded++
		mu.Unlock()
	}))

	local := filepath.Join(t.TempDir(), "protein2ipr.dat")
	require.NoError(t, os.WriteFile(local, []byte("x"), 0o600))

	paths, err := f.Prefetch(t.Context(), append(urls, local, "")...)
	require.NoError(t, err)
	require.Len(t, paths, 5)
	for i, u := range urls {
		data, err := os.ReadFile(paths[i])
		require.NoError(t, err)
		assert.Equal(t, u, string(data))
	}
	assert.Equal(t, local, paths[3])
	assert.Empty(t, paths[4])
	assert.Equal(t, 3, downloaded)
}

func TestPrefetch_FailureCancelsOthers(t *testing.T) {
	t.Parallel()
	mt := httpmock.NewMockTransport()
	mt.RegisterResponder(http.MethodGet, "https://mirror.example.org/ok",
		httpmock.NewStringResponder(http.StatusOK, "ok"))
	mt.RegisterResponder(http.MethodGet, "https://mirror.example.org/broken",
		httpmock.NewErrorResponder(errors.NewStd("connection reset")))

	f := newTestFetcher(t, mt)
	_, err := f.Prefetch(t.Context(), "https://mirror.example.org/ok", "https://mirror.example.org/broken")
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}
