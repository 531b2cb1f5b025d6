package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fedragon/go-sidecar/internal/core"
	"github.com/fedragon/go-sidecar/internal/resolver"
)

// Validate ensures the configuration is usable for any command.
func (c *Config) Validate() error {
	if err := c.validateRestore(); err != nil {
		return err
	}
	if err := c.validateMatching(); err != nil {
		return err
	}
	if err := c.validateExiftool(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if c.Paths.Journal == "" {
		return errors.New("paths.journal is required")
	}
	return nil
}

// ValidateForRestore additionally checks the trees a restoration run reads
// and writes.
func (c *Config) ValidateForRestore() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Paths.Source == "" {
		return errors.New("paths.source is required")
	}
	info, err := os.Stat(c.Paths.Source)
	if err != nil {
		return fmt.Errorf("paths.source: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("paths.source: %v is not a directory", c.Paths.Source)
	}

	if c.Paths.Output != "" {
		if c.Paths.Output == c.Paths.Source {
			return errors.New("paths.output must differ from paths.source")
		}
		if within(c.Paths.Output, c.Paths.Source) {
			return errors.New("paths.output must not be inside paths.source")
		}
	}

	return nil
}

func within(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (c *Config) validateRestore() error {
	if c.Restore.Workers < 1 || c.Restore.Workers > core.MaxWorkers {
		return fmt.Errorf("restore.workers must be between 1 and %d, got %d", core.MaxWorkers, c.Restore.Workers)
	}
	if len(c.Restore.Extensions) == 0 {
		return errors.New("restore.extensions must list at least one extension")
	}
	if _, err := core.ParseBackupPolicy(c.Restore.Backup); err != nil {
		return fmt.Errorf("restore.backup: %w", err)
	}
	return nil
}

func (c *Config) validateMatching() error {
	if c.Matching.PrefixChars < resolver.MinMatchChars {
		return fmt.Errorf("matching.prefix_chars must be at least %d", resolver.MinMatchChars)
	}
	if c.Matching.SubstringChars < resolver.MinMatchChars {
		return fmt.Errorf("matching.substring_chars must be at least %d", resolver.MinMatchChars)
	}
	if c.Matching.TimestampToleranceSeconds <= 0 {
		return errors.New("matching.timestamp_tolerance_seconds must be positive")
	}
	return nil
}

func (c *Config) validateExiftool() error {
	if strings.TrimSpace(c.Exiftool.Binary) == "" {
		return errors.New("exiftool.binary is required")
	}
	if c.Exiftool.TimeoutSeconds < 0 {
		return errors.New("exiftool.timeout_seconds must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("logging.format must be auto, console or json, got %q", c.Logging.Format)
	}
	return nil
}
