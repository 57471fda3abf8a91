package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/interpro-loader/internal/errors"
)

func validSettings() *Settings {
	s := &Settings{}
	s.Database.Type = "sqlite"
	s.Database.SQLite.Path = "interpro.db"
	s.Ingest.ChunkSize = DefaultChunkSize
	s.Sources.Entries = "testdata/entry.list"
	s.Sources.Hierarchy = DefaultHierarchyURL
	s.Sources.CrossRef = "https://mirror.example.org/interpro2go"
	s.Sources.Join = "sftp://mirror.example.org/data/protein2ipr.dat.gz"
	s.Telemetry.SampleRate = 1
	return s
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{"valid", func(*Settings) {}, ""},
		{"database type is normalized", func(s *Settings) { s.Database.Type = " SQLite " }, ""},
		{"unknown database", func(s *Settings) { s.Database.Type = "postgres" }, "database.type"},
		{"mysql without host", func(s *Settings) {
			s.Database.Type = "mysql"
			s.Database.MySQL.Database = "interpro"
			s.Database.MySQL.Port = "3306"
		}, "database.mysql.host"},
		{"mysql bad port", func(s *Settings) {
			s.Database.Type = "mysql"
			s.Database.MySQL.Host = "db"
			s.Database.MySQL.Database = "interpro"
			s.Database.MySQL.Port = "70000"
		}, "database.mysql.port"},
		{"zero chunk size", func(s *Settings) { s.Ingest.ChunkSize = 0 }, "ingest.chunk_size"},
		{"empty source", func(s *Settings) { s.Sources.Join = "" }, "sources.join"},
		{"unsupported scheme", func(s *Settings) { s.Sources.Entries = "gopher://host/entry.list" }, "unsupported source scheme"},
		{"notifications without urls", func(s *Settings) { s.Notification.Enabled = true }, "notification.urls"},
		{"sample rate out of range", func(s *Settings) { s.Telemetry.SampleRate = 2 }, "telemetry.sample_rate"},
		{"metrics listen address", func(s *Settings) { s.Metrics.Listen = "localhost:9464" }, ""},
		{"metrics listen without port", func(s *Settings) { s.Metrics.Listen = "localhost" }, "metrics.listen"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := validSettings()
			tt.mutate(s)

			err := s.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
		})
	}
}

func TestValidateNormalizesDatabaseType(t *testing.T) {
	t.Parallel()

	s := validSettings()
	s.Database.Type = "MySQL"
	s.Database.MySQL.Host = "db"
	s.Database.MySQL.Database = "interpro"
	s.Database.MySQL.Port = "3306"

	require.NoError(t, s.Validate())
	assert.Equal(t, "mysql", s.Database.Type)
}

func TestValidateEnvHelpers(t *testing.T) {
	t.Parallel()

	require.NoError(t, validateEnvBool(" true "))
	require.Error(t, validateEnvBool("yes"))
	require.NoError(t, validateEnvChunkSize("5000"))
	require.Error(t, validateEnvChunkSize("0"))
	require.Error(t, validateEnvChunkSize("lots"))
	require.NoError(t, validateEnvPort("3306"))
	require.Error(t, validateEnvPort("0"))
	require.NoError(t, validateEnvSource("/data/entry.list"))
	require.Error(t, validateEnvSource("ftp:///no-host"))
}
