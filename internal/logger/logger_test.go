package logger_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tphakala/interpro-loader/internal/logger"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for line := range strings.SplitSeq(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), "line: %s", line)
		out = append(out, m)
	}
	return out
}

func TestSlogLoggerLevels(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelInfo, time.UTC)

	log.Trace("hidden trace")
	log.Debug("hidden debug")
	log.Info("visible info", logger.Int("count", 3))
	log.Warn("visible warn")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "visible info", lines[0]["msg"])
	assert.Equal(t, "INFO", lines[0]["level"])
	assert.InDelta(t, 3, lines[0]["count"], 0)
	assert.Equal(t, "WARN", lines[1]["level"])
}

func TestTraceLevelName(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelTrace, time.UTC)
	log.Trace("sql query")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "TRACE", lines[0]["level"])
}

func TestModuleAndFieldAccumulation(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	base := logger.NewSlogLogger(buf, logger.LogLevelDebug, time.UTC)

	runLog := base.Module("ingest").Module("annotations").With(logger.String("run_id", "r-1"))
	runLog.Debug("chunk committed", logger.Int("rows", 10), logger.Error(errors.New("boom")))
	base.Info("no module")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "ingest.annotations", lines[0]["module"])
	assert.Equal(t, "r-1", lines[0]["run_id"])
	assert.Equal(t, "boom", lines[0]["error"])
	assert.NotContains(t, lines[1], "module")
	assert.NotContains(t, lines[1], "run_id")
}

func TestWithContextTraceID(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelInfo, time.UTC)

	ctx := logger.WithTraceID(t.Context(), "trace-42")
	log.WithContext(ctx).Info("with trace")
	log.WithContext(t.Context()).Info("without trace")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "trace-42", lines[0]["trace_id"])
	assert.NotContains(t, lines[1], "trace_id")
}

func TestCentralLoggerConsoleAndFile(t *testing.T) {
	t.Parallel()

	console := &bytes.Buffer{}
	logPath := filepath.Join(t.TempDir(), "logs", "loader.log")

	central, err := logger.NewCentralLogger(&logger.LoggingConfig{
		DefaultLevel: "info",
		Timezone:     "UTC",
		Console:      &logger.ConsoleOutput{Enabled: true, Level: "info"},
		FileOutput:   &logger.FileOutput{Enabled: true, Path: logPath, Level: "debug"},
		ModuleLevels: map[string]string{"datastore": "debug"},
	}, logger.WithConsoleWriter(console))
	require.NoError(t, err)

	central.Module("ingest").Info("stage committed", logger.String("stage", "entries"))
	central.Module("ingest").Debug("filtered by module level")
	central.Module("datastore").Debug("store opened")

	require.NoError(t, central.Close())

	consoleOut := console.String()
	assert.Contains(t, consoleOut, "stage committed")
	assert.Contains(t, consoleOut, "module=ingest")
	assert.NotContains(t, consoleOut, "store opened", "console level is info")
	assert.NotContains(t, consoleOut, "time=")

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	fileOut := string(data)
	assert.Contains(t, fileOut, `"msg":"stage committed"`)
	assert.Contains(t, fileOut, `"msg":"store opened"`)
	assert.NotContains(t, fileOut, "filtered by module level")
}

func TestCentralLoggerInvalidTimezone(t *testing.T) {
	t.Parallel()

	_, err := logger.NewCentralLogger(&logger.LoggingConfig{Timezone: "Mars/Olympus"})
	require.Error(t, err)

	_, err = logger.NewCentralLogger(nil)
	require.Error(t, err)
}

func TestGormLoggerAdapter(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelInfo, time.UTC)

	var queries int
	adapter := logger.NewGormLoggerAdapter(log, 50*time.Millisecond).
		OnQuery(func(time.Duration, error) { queries++ })

	fc := func() (string, int64) { return "SELECT 1", 1 }
	ctx := t.Context()

	adapter.Trace(ctx, time.Now(), fc, nil)
	adapter.Trace(ctx, time.Now(), fc, gorm.ErrRecordNotFound)
	adapter.Trace(ctx, time.Now(), fc, errors.New("constraint failed"))
	adapter.Trace(ctx, time.Now().Add(-time.Second), fc, nil)

	assert.Equal(t, 4, queries)

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2, "plain and not-found queries stay at trace")
	assert.Equal(t, "query error", lines[0]["msg"])
	assert.Equal(t, "constraint failed", lines[0]["error"])
	assert.Equal(t, "slow query", lines[1]["msg"])
}
