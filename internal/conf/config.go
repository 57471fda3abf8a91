// Package conf provides configuration management for the InterPro loader.
//
// Settings are built explicitly by Load and passed down; nothing is read or
// created at package initialization.
package conf

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tphakala/interpro-loader/internal/errors"
	"github.com/tphakala/interpro-loader/internal/logger"
)

//go:embed config.yaml
var defaultConfigYAML []byte

const appName = "interpro-loader"

// Settings is the complete loader configuration.
type Settings struct {
	Debug        bool                 `mapstructure:"debug" yaml:"debug"`
	Database     DatabaseSettings     `mapstructure:"database" yaml:"database"`
	Sources      SourceSettings       `mapstructure:"sources" yaml:"sources"`
	Ingest       IngestSettings       `mapstructure:"ingest" yaml:"ingest"`
	Logging      logger.LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Telemetry    TelemetrySettings    `mapstructure:"telemetry" yaml:"telemetry"`
	Notification NotificationSettings `mapstructure:"notification" yaml:"notification"`
	Metrics      MetricsSettings      `mapstructure:"metrics" yaml:"metrics"`

	// ConfigFile is the file the settings were read from, empty when defaults only.
	ConfigFile string `mapstructure:"-" yaml:"-"`
}

// DatabaseSettings selects and configures the persistent store.
type DatabaseSettings struct {
	Type               string         `mapstructure:"type" yaml:"type"` // sqlite or mysql
	SQLite             SQLiteSettings `mapstructure:"sqlite" yaml:"sqlite"`
	MySQL              MySQLSettings  `mapstructure:"mysql" yaml:"mysql"`
	SlowQueryThreshold time.Duration  `mapstructure:"slow_query_threshold" yaml:"slow_query_threshold"`
}

// SQLiteSettings contains settings for the SQLite store.
type SQLiteSettings struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// MySQLSettings contains settings for the MySQL store.
type MySQLSettings struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     string `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	Database string `mapstructure:"database" yaml:"database"`
}

// SourceSettings locates the four input datasets. Locations are local paths
// or http(s)://, ftp:// and sftp:// URLs.
type SourceSettings struct {
	Entries   string `mapstructure:"entries" yaml:"entries"`
	Hierarchy string `mapstructure:"hierarchy" yaml:"hierarchy"`
	CrossRef  string `mapstructure:"crossref" yaml:"crossref"`
	Join      string `mapstructure:"join" yaml:"join"`

	CacheDir  string        `mapstructure:"cache_dir" yaml:"cache_dir"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	UserAgent string        `mapstructure:"user_agent" yaml:"user_agent"`
	SFTP      SFTPSettings  `mapstructure:"sftp" yaml:"sftp"`
}

// SFTPSettings configures host key checking for sftp:// sources.
type SFTPSettings struct {
	KnownHostsFile        string `mapstructure:"known_hosts_file" yaml:"known_hosts_file"`
	InsecureIgnoreHostKey bool   `mapstructure:"insecure_ignore_host_key" yaml:"insecure_ignore_host_key"`
}

// IngestSettings tunes the population run.
type IngestSettings struct {
	ChunkSize           int           `mapstructure:"chunk_size" yaml:"chunk_size"`
	Force               bool          `mapstructure:"force" yaml:"force"`
	ForceDownload       bool          `mapstructure:"force_download" yaml:"force_download"`
	MaxUnresolvedLogged int           `mapstructure:"max_unresolved_logged" yaml:"max_unresolved_logged"`
	ProgressInterval    time.Duration `mapstructure:"progress_interval" yaml:"progress_interval"`
}

// TelemetrySettings enables Sentry error reporting when SentryDSN is set.
type TelemetrySettings struct {
	SentryDSN   string  `mapstructure:"sentry_dsn" yaml:"sentry_dsn"`
	Environment string  `mapstructure:"environment" yaml:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
}

// NotificationSettings sends run results to shoutrrr service URLs.
type NotificationSettings struct {
	Enabled   bool          `mapstructure:"enabled" yaml:"enabled"`
	URLs      []string      `mapstructure:"urls" yaml:"urls"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	OnSuccess bool          `mapstructure:"on_success" yaml:"on_success"`
	OnFailure bool          `mapstructure:"on_failure" yaml:"on_failure"`
}

// MetricsSettings controls the Prometheus textfile export and the
// optional scrape endpoint kept open while a run is in progress.
type MetricsSettings struct {
	TextfilePath string `mapstructure:"textfile_path" yaml:"textfile_path"`
	Listen       string `mapstructure:"listen" yaml:"listen"` // e.g. "localhost:9464", empty disables
}

// Load builds Settings from defaults, an optional config file, the
// environment and, when flags is non-nil, command-line flags.
// An explicit configFile must exist; otherwise the default search paths
// are tried and a missing file is not an error.
func Load(configFile string, flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()
	setDefaultConfig(v)

	v.SetEnvPrefix("INTERPRO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnvVars(v); err != nil {
		return nil, configError(err, "bind_env")
	}

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, configError(err, "bind_flags")
		}
	}

	if err := readConfigFile(v, configFile); err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, configError(fmt.Errorf("error unmarshaling config into struct: %w", err), "unmarshal")
	}
	settings.ConfigFile = v.ConfigFileUsed()

	if settings.Debug {
		settings.Logging.DefaultLevel = string(logger.LogLevelDebug)
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = string(logger.LogLevelDebug)
		}
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

func readConfigFile(v *viper.Viper, configFile string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return configError(fmt.Errorf("error reading config file %s: %w", configFile, err), "read_config")
		}
		return nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, path := range DefaultConfigPaths() {
		v.AddConfigPath(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return configError(fmt.Errorf("fatal error reading config file: %w", err), "read_config")
	}
	return nil
}

// DefaultConfigPaths returns the directories searched for config.yaml.
func DefaultConfigPaths() []string {
	paths := []string{"."}
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".config", appName))
	}
	return append(paths, filepath.Join("/etc", appName))
}

// DefaultConfig returns the embedded default configuration file.
func DefaultConfig() []byte {
	return defaultConfigYAML
}

func configError(err error, operation string) error {
	return errors.New(err).
		Component("conf").
		Category(errors.CategoryConfiguration).
		Context("operation", operation).
		Build()
}
