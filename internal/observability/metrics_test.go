package observability

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/interpro-loader/internal/logger"
)

// TestNewMetricsConcurrency verifies that NewMetrics can be called
// concurrently; every instance owns a private registry.
func TestNewMetricsConcurrency(t *testing.T) {
	t.Parallel()
	const numGoroutines = 20

	var wg sync.WaitGroup
	for range numGoroutines {
		wg.Go(func() {
			m, err := NewMetrics()
			if err != nil {
				t.Errorf("NewMetrics failed: %v", err)
				return
			}
			if m.registry == nil || m.Ingest == nil {
				t.Error("metrics not fully initialized")
			}
		})
	}
	wg.Wait()
}

func TestWriteTextfile(t *testing.T) {
	t.Parallel()
	m, err := NewMetrics()
	require.NoError(t, err)

	m.Ingest.RecordOperation("stage:entries", "completed")
	m.Ingest.AddRecords("entry", "written", 44)

	path := filepath.Join(t.TempDir(), "interpro_loader.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `interpro_loader_stage_runs_total{stage="entries",status="completed"} 1`)
	assert.Contains(t, string(data), `interpro_loader_records_total{kind="entry",outcome="written"} 44`)
}

func TestWriteTextfileEmptyPathIsNoop(t *testing.T) {
	t.Parallel()
	m, err := NewMetrics()
	require.NoError(t, err)
	require.NoError(t, m.WriteTextfile(""))
}

func TestWriteTextfileMissingDirectory(t *testing.T) {
	t.Parallel()
	m, err := NewMetrics()
	require.NoError(t, err)
	err = m.WriteTextfile(filepath.Join(t.TempDir(), "missing", "metrics.prom"))
	require.Error(t, err)
}

func TestEndpointServesMetrics(t *testing.T) {
	t.Parallel()
	m, err := NewMetrics()
	require.NoError(t, err)
	m.Ingest.SetResidentMemory(1 << 20)

	ctx, cancel := context.WithCancel(t.Context())
	e := NewEndpoint("127.0.0.1:0", m, logger.NewDiscardLogger())
	wait, err := e.Start(ctx)
	require.NoError(t, err)
	t.Cleanup(func() {
		cancel()
		wait()
	})
	assert.Same(t, m, e.GetMetrics())

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+e.Addr().String()+"/metrics", http.NoBody)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "interpro_loader_resident_memory_bytes 1.048576e+06")
}

func TestEndpointBindFailure(t *testing.T) {
	t.Parallel()
	m, err := NewMetrics()
	require.NoError(t, err)

	_, err = NewEndpoint("127.0.0.1:-1", m, nil).Start(t.Context())
	require.Error(t, err)
}
