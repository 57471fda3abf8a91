package conf

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Default EBI locations of the InterPro release files.
const (
	DefaultEntriesURL   = "ftp://ftp.ebi.ac.uk/pub/databases/interpro/current_release/entry.list"
	DefaultHierarchyURL = "ftp://ftp.ebi.ac.uk/pub/databases/interpro/current_release/ParentChildTreeFile.txt"
	DefaultCrossRefURL  = "ftp://ftp.ebi.ac.uk/pub/databases/interpro/current_release/interpro2go"
	DefaultJoinURL      = "ftp://ftp.ebi.ac.uk/pub/databases/interpro/current_release/protein2ipr.dat.gz"
)

const (
	DefaultChunkSize     = 5000
	MaxChunkSize         = 1_000_000
	DefaultSQLitePath    = "interpro.db"
	DefaultMySQLPort     = "3306"
	DefaultSourceTimeout = 30 * time.Minute
)

// setDefaultConfig sets default values on v.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.sqlite.path", DefaultSQLitePath)
	v.SetDefault("database.mysql.host", "localhost")
	v.SetDefault("database.mysql.port", DefaultMySQLPort)
	v.SetDefault("database.mysql.username", "")
	v.SetDefault("database.mysql.password", "")
	v.SetDefault("database.mysql.database", "interpro")
	v.SetDefault("database.slow_query_threshold", 500*time.Millisecond)

	v.SetDefault("sources.entries", DefaultEntriesURL)
	v.SetDefault("sources.hierarchy", DefaultHierarchyURL)
	v.SetDefault("sources.crossref", DefaultCrossRefURL)
	v.SetDefault("sources.join", DefaultJoinURL)
	v.SetDefault("sources.cache_dir", defaultCacheDir())
	v.SetDefault("sources.timeout", DefaultSourceTimeout)
	v.SetDefault("sources.user_agent", appName)
	v.SetDefault("sources.sftp.known_hosts_file", defaultKnownHostsFile())
	v.SetDefault("sources.sftp.insecure_ignore_host_key", false)

	v.SetDefault("ingest.chunk_size", DefaultChunkSize)
	v.SetDefault("ingest.force", false)
	v.SetDefault("ingest.force_download", false)
	v.SetDefault("ingest.max_unresolved_logged", 20)
	v.SetDefault("ingest.progress_interval", 10*time.Second)

	v.SetDefault("logging.default_level", "info")
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", "info")
	v.SetDefault("logging.file_output.enabled", false)
	v.SetDefault("logging.file_output.path", "logs/interpro-loader.log")
	v.SetDefault("logging.file_output.level", "debug")

	v.SetDefault("telemetry.sentry_dsn", "")
	v.SetDefault("telemetry.environment", "production")
	v.SetDefault("telemetry.sample_rate", 1.0)

	v.SetDefault("notification.enabled", false)
	v.SetDefault("notification.urls", []string{})
	v.SetDefault("notification.timeout", 10*time.Second)
	v.SetDefault("notification.on_success", true)
	v.SetDefault("notification.on_failure", true)

	v.SetDefault("metrics.textfile_path", "")
	v.SetDefault("metrics.listen", "")
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, appName)
	}
	return filepath.Join(os.TempDir(), appName)
}

func defaultKnownHostsFile() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".ssh", "known_hosts")
	}
	return ""
}
