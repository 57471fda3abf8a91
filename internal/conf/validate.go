package conf

import (
	"fmt"
	"net"
	"strings"

	"github.com/tphakala/interpro-loader/internal/errors"
)

// ValidationError collects every problem found in a Settings value.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration:\n  - %s", strings.Join(e.Problems, "\n  - "))
}

// Validate checks the settings and normalizes the database type.
func (s *Settings) Validate() error {
	var problems []string

	s.Database.Type = strings.ToLower(strings.TrimSpace(s.Database.Type))
	switch s.Database.Type {
	case "sqlite":
		if s.Database.SQLite.Path == "" {
			problems = append(problems, "database.sqlite.path is required for sqlite")
		}
	case "mysql":
		if s.Database.MySQL.Host == "" {
			problems = append(problems, "database.mysql.host is required for mysql")
		}
		if s.Database.MySQL.Database == "" {
			problems = append(problems, "database.mysql.database is required for mysql")
		}
		if err := validateEnvPort(s.Database.MySQL.Port); err != nil {
			problems = append(problems, "database.mysql.port: "+err.Error())
		}
	default:
		problems = append(problems, fmt.Sprintf("database.type must be sqlite or mysql, got %q", s.Database.Type))
	}

	if s.Ingest.ChunkSize < 1 || s.Ingest.ChunkSize > MaxChunkSize {
		problems = append(problems, fmt.Sprintf("ingest.chunk_size must be between 1 and %d, got %d", MaxChunkSize, s.Ingest.ChunkSize))
	}
	if s.Ingest.MaxUnresolvedLogged < 0 {
		problems = append(problems, "ingest.max_unresolved_logged must not be negative")
	}

	for key, location := range map[string]string{
		"sources.entries":   s.Sources.Entries,
		"sources.hierarchy": s.Sources.Hierarchy,
		"sources.crossref":  s.Sources.CrossRef,
		"sources.join":      s.Sources.Join,
	} {
		if err := validateSourceLocation(location); err != nil {
			problems = append(problems, key+": "+err.Error())
		}
	}
	if s.Sources.Timeout < 0 {
		problems = append(problems, "sources.timeout must not be negative")
	}

	if s.Telemetry.SampleRate < 0 || s.Telemetry.SampleRate > 1 {
		problems = append(problems, fmt.Sprintf("telemetry.sample_rate must be between 0 and 1, got %g", s.Telemetry.SampleRate))
	}

	if s.Notification.Enabled && len(s.Notification.URLs) == 0 {
		problems = append(problems, "notification.urls must not be empty when notifications are enabled")
	}

	if s.Metrics.Listen != "" {
		if _, _, err := net.SplitHostPort(s.Metrics.Listen); err != nil {
			problems = append(problems, "metrics.listen: "+err.Error())
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.New(&ValidationError{Problems: problems}).
		Component("conf").
		Category(errors.CategoryValidation).
		Context("problem_count", len(problems)).
		Build()
}
