package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings lists variables whose names do not follow the INTERPRO_<KEY> scheme
// or that need validation before use.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"database.type", "INTERPRO_DB_TYPE", validateEnvDatabaseType},
		{"database.sqlite.path", "INTERPRO_DB_PATH", nil},
		{"database.mysql.host", "INTERPRO_DB_HOST", nil},
		{"database.mysql.port", "INTERPRO_DB_PORT", validateEnvPort},
		{"database.mysql.username", "INTERPRO_DB_USER", nil},
		{"database.mysql.password", "INTERPRO_DB_PASSWORD", nil},
		{"database.mysql.database", "INTERPRO_DB_NAME", nil},

		{"ingest.chunk_size", "INTERPRO_CHUNK_SIZE", validateEnvChunkSize},
		{"ingest.force", "INTERPRO_FORCE", validateEnvBool},

		{"sources.cache_dir", "INTERPRO_CACHE_DIR", nil},
		{"sources.entries", "INTERPRO_ENTRIES_SOURCE", validateEnvSource},
		{"sources.hierarchy", "INTERPRO_HIERARCHY_SOURCE", validateEnvSource},
		{"sources.crossref", "INTERPRO_CROSSREF_SOURCE", validateEnvSource},
		{"sources.join", "INTERPRO_JOIN_SOURCE", validateEnvSource},

		{"telemetry.sentry_dsn", "SENTRY_DSN", nil},
		{"debug", "INTERPRO_DEBUG", validateEnvBool},
	}
}

// bindEnvVars binds the explicit environment variables and validates set values.
func bindEnvVars(v *viper.Viper) error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		if envValue, ok := os.LookupEnv(binding.EnvVar); ok && envValue != "" {
			if err := binding.Validate(envValue); err != nil {
				warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

// flagBindings maps config keys to the persistent and per-command flag names.
var flagBindings = map[string]string{
	"debug":                 "debug",
	"database.type":         "db-type",
	"database.sqlite.path":  "sqlite-path",
	"ingest.chunk_size":     "chunk-size",
	"ingest.force":          "force",
	"ingest.force_download": "force-download",
	"sources.entries":       "entries",
	"sources.hierarchy":     "hierarchy",
	"sources.crossref":      "xref",
	"sources.join":          "join",
	"sources.cache_dir":     "cache-dir",
	"metrics.textfile_path": "metrics-file",
	"metrics.listen":        "metrics-listen",
}

// bindFlags binds whichever of the known flags exist in flags.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for key, name := range flagBindings {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("error binding flag %s: %w", name, err)
		}
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("invalid boolean value '%s': must be true/false, 1/0, t/f", value)
	}
	return nil
}

func validateEnvDatabaseType(value string) error {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "sqlite", "mysql":
		return nil
	default:
		return fmt.Errorf("database type must be sqlite or mysql, got '%s'", value)
	}
}

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid port: %w", err)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

func validateEnvChunkSize(value string) error {
	size, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid chunk size: %w", err)
	}
	if size < 1 || size > MaxChunkSize {
		return fmt.Errorf("chunk size must be between 1 and %d, got %d", MaxChunkSize, size)
	}
	return nil
}

// validateEnvSource accepts local paths and URLs with a supported scheme.
func validateEnvSource(value string) error {
	return validateSourceLocation(value)
}

func validateSourceLocation(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("source location is empty")
	}
	if !strings.Contains(value, "://") {
		return nil
	}
	u, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid source URL: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "ftp", "sftp", "file":
	default:
		return fmt.Errorf("unsupported source scheme %q", u.Scheme)
	}
	if u.Scheme != "file" && u.Host == "" {
		return fmt.Errorf("source URL has no host")
	}
	return nil
}
