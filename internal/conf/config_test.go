package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/interpro-loader/internal/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaultsFromEmbeddedConfig(t *testing.T) {
	path := writeConfig(t, string(DefaultConfig()))

	settings, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", settings.Database.Type)
	assert.Equal(t, DefaultSQLitePath, settings.Database.SQLite.Path)
	assert.Equal(t, DefaultChunkSize, settings.Ingest.ChunkSize)
	assert.Equal(t, DefaultJoinURL, settings.Sources.Join)
	assert.Equal(t, 500*time.Millisecond, settings.Database.SlowQueryThreshold)
	assert.Equal(t, 30*time.Minute, settings.Sources.Timeout)
	assert.NotEmpty(t, settings.Sources.CacheDir)
	assert.Equal(t, path, settings.ConfigFile)
	require.NotNil(t, settings.Logging.Console)
	assert.True(t, settings.Logging.Console.Enabled)
}

func TestLoadExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "ingest:\n  chunk_size: 100\n")

	t.Setenv("INTERPRO_CHUNK_SIZE", "250")
	t.Setenv("INTERPRO_DB_PATH", "/tmp/override.db")
	t.Setenv("INTERPRO_SOURCES_TIMEOUT", "2m")

	settings, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, 250, settings.Ingest.ChunkSize)
	assert.Equal(t, "/tmp/override.db", settings.Database.SQLite.Path)
	assert.Equal(t, 2*time.Minute, settings.Sources.Timeout)
}

func TestLoadInvalidEnvironmentValue(t *testing.T) {
	path := writeConfig(t, "")
	t.Setenv("INTERPRO_DB_TYPE", "postgres")

	_, err := Load(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INTERPRO_DB_TYPE")
}

func TestLoadFlagsTakePrecedence(t *testing.T) {
	path := writeConfig(t, "ingest:\n  chunk_size: 100\n  force: false\n")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("chunk-size", 0, "")
	flags.Bool("force", false, "")
	flags.String("unrelated", "", "")
	require.NoError(t, flags.Parse([]string{"--chunk-size=7", "--force"}))

	settings, err := Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, 7, settings.Ingest.ChunkSize)
	assert.True(t, settings.Ingest.Force)
}

func TestLoadUnsetFlagsKeepConfigValues(t *testing.T) {
	path := writeConfig(t, "ingest:\n  chunk_size: 100\n")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("chunk-size", 1, "")
	require.NoError(t, flags.Parse(nil))

	settings, err := Load(path, flags)
	require.NoError(t, err)
	assert.Equal(t, 100, settings.Ingest.ChunkSize)
}

func TestLoadDebugRaisesLogLevel(t *testing.T) {
	path := writeConfig(t, "debug: true\n")

	settings, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "debug", settings.Logging.DefaultLevel)
	assert.Equal(t, "debug", settings.Logging.Console.Level)
}

func TestWriteDefaultConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, WriteDefaultConfig(path, false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), data)

	err = WriteDefaultConfig(path, false)
	require.Error(t, err, "existing file must not be replaced")
	require.NoError(t, WriteDefaultConfig(path, true))
}

func TestSaveYAMLConfigRoundTrip(t *testing.T) {
	base := writeConfig(t, "")
	settings, err := Load(base, nil)
	require.NoError(t, err)

	settings.Ingest.ChunkSize = 1234
	settings.Database.Type = "mysql"
	settings.Database.MySQL.Database = "ipr"

	path := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, SaveYAMLConfig(path, settings))

	reloaded, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 1234, reloaded.Ingest.ChunkSize)
	assert.Equal(t, "mysql", reloaded.Database.Type)
	assert.Equal(t, "ipr", reloaded.Database.MySQL.Database)
	assert.Equal(t, settings.Sources.Timeout, reloaded.Sources.Timeout)
}

func TestRedacted(t *testing.T) {
	t.Parallel()

	s := &Settings{}
	s.Database.MySQL.Password = "hunter2"
	s.Telemetry.SentryDSN = "https://key@sentry.example.org/1"
	s.Notification.URLs = []string{"slack://token@channel"}

	r := s.Redacted()
	assert.Equal(t, redacted, r.Database.MySQL.Password)
	assert.Equal(t, redacted, r.Telemetry.SentryDSN)
	assert.Equal(t, []string{redacted}, r.Notification.URLs)
	assert.Equal(t, "hunter2", s.Database.MySQL.Password, "original is untouched")
	assert.Equal(t, "slack://token@channel", s.Notification.URLs[0])
}
