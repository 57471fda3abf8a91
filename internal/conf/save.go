package conf

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const redacted = "[REDACTED]"

// Redacted returns a copy of s with secrets masked, for display.
func (s *Settings) Redacted() *Settings {
	c := *s
	if c.Database.MySQL.Password != "" {
		c.Database.MySQL.Password = redacted
	}
	if c.Telemetry.SentryDSN != "" {
		c.Telemetry.SentryDSN = redacted
	}
	if len(c.Notification.URLs) > 0 {
		c.Notification.URLs = make([]string, len(s.Notification.URLs))
		for i := range c.Notification.URLs {
			c.Notification.URLs[i] = redacted
		}
	}
	return &c
}

// MarshalYAMLBytes renders s as YAML.
func (s *Settings) MarshalYAMLBytes() ([]byte, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("error marshaling settings to YAML: %w", err)
	}
	return data, nil
}

// WriteDefaultConfig writes the embedded default configuration to path.
// An existing file is only replaced when overwrite is set.
func WriteDefaultConfig(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return configError(fmt.Errorf("config file %s already exists", path), "write_default")
		}
	}
	return writeFileAtomic(path, defaultConfigYAML)
}

// SaveYAMLConfig writes settings to configPath, replacing the file atomically.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	data, err := settings.MarshalYAMLBytes()
	if err != nil {
		return configError(err, "save")
	}
	return writeFileAtomic(configPath, data)
}

// writeFileAtomic writes to a temp file in the target directory and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return configError(fmt.Errorf("error creating directories for config file: %w", err), "write")
	}

	tempFile, err := os.CreateTemp(dir, "config-*.yaml")
	if err != nil {
		return configError(fmt.Errorf("error creating temporary file: %w", err), "write")
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return configError(fmt.Errorf("error writing to temporary file: %w", err), "write")
	}
	if err := tempFile.Close(); err != nil {
		return configError(fmt.Errorf("error closing temporary file: %w", err), "write")
	}
	if err := os.Chmod(tempFileName, 0o600); err != nil {
		return configError(fmt.Errorf("error setting config permissions: %w", err), "write")
	}
	if err := os.Rename(tempFileName, path); err != nil {
		return configError(fmt.Errorf("error replacing config file: %w", err), "write")
	}
	return nil
}
