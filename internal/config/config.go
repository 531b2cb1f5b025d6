// Package config holds the settings of a restoration run. Values come from
// an optional TOML file and are then overridden by command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fedragon/go-sidecar/internal/core"
	"github.com/fedragon/go-sidecar/internal/exiftool"
	"github.com/fedragon/go-sidecar/internal/fs"
	"github.com/fedragon/go-sidecar/internal/resolver"

	"github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultWorkers     = 4
	DefaultJournalPath = "~/.local/share/go-sidecar/journal.db"
	DefaultReportDir   = "sidecar-report"

	lockName = ".go-sidecar.lock"
)

type Paths struct {
	Source      string `toml:"source"`
	Output      string `toml:"output"`
	Journal     string `toml:"journal"`
	ReportDir   string `toml:"report_dir"`
	MetricsFile string `toml:"metrics_file"`
}

type Restore struct {
	Workers    int      `toml:"workers"`
	Extensions []string `toml:"extensions"`
	Backup     string   `toml:"backup"`
	NoBackup   bool     `toml:"no_backup"`
	DryRun     bool     `toml:"dry_run"`
	Resume     bool     `toml:"resume"`
}

type Exiftool struct {
	Binary         string `toml:"binary"`
	TimeoutSeconds int    `toml:"timeout_seconds"` // 0 disables the timeout
}

type Matching struct {
	PrefixChars               int `toml:"prefix_chars"`
	SubstringChars            int `toml:"substring_chars"`
	TimestampToleranceSeconds int `toml:"timestamp_tolerance_seconds"`
}

type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // auto, console or json
}

type Config struct {
	Paths    Paths    `toml:"paths"`
	Restore  Restore  `toml:"restore"`
	Exiftool Exiftool `toml:"exiftool"`
	Matching Matching `toml:"matching"`
	Logging  Logging  `toml:"logging"`
}

func Default() *Config {
	return &Config{
		Paths: Paths{
			Journal:   DefaultJournalPath,
			ReportDir: DefaultReportDir,
		},
		Restore: Restore{
			Workers:    DefaultWorkers,
			Extensions: append([]string(nil), fs.DefaultMediaTypes...),
			Backup:     core.KeepBackup.String(),
		},
		Exiftool: Exiftool{
			Binary:         exiftool.DefaultBinary,
			TimeoutSeconds: int(exiftool.DefaultTimeout / time.Second),
		},
		Matching: Matching{
			PrefixChars:               resolver.DefaultPrefixChars,
			SubstringChars:            resolver.DefaultSubstringChars,
			TimestampToleranceSeconds: int(resolver.DefaultTimestampTolerance / time.Second),
		},
		Logging: Logging{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load reads the TOML file at path on top of the defaults. An empty path
// returns the defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.normalize()
	}

	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("config path %v: %w", path, err)
	}

	file, err := os.Open(expanded)
	if err != nil {
		return nil, fmt.Errorf("cannot open config %v: %w", expanded, err)
	}
	defer func() {
		_ = file.Close()
	}()

	decoder := toml.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("config %v: %v", expanded, strict.String())
		}
		return nil, fmt.Errorf("config %v: %w", expanded, err)
	}

	return cfg, cfg.normalize()
}

// Normalize expands paths and canonicalizes extensions. It must be called
// again after flags changed any value.
func (c *Config) Normalize() error {
	return c.normalize()
}

func (c *Config) normalize() error {
	var err error
	for name, p := range map[string]*string{
		"paths.source":       &c.Paths.Source,
		"paths.output":       &c.Paths.Output,
		"paths.journal":      &c.Paths.Journal,
		"paths.report_dir":   &c.Paths.ReportDir,
		"paths.metrics_file": &c.Paths.MetricsFile,
	} {
		if *p, err = expandPath(*p); err != nil {
			return fmt.Errorf("%v: %w", name, err)
		}
	}

	exts := make([]string, 0, len(c.Restore.Extensions))
	seen := make(map[string]bool)
	for _, e := range c.Restore.Extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if !seen[e] {
			seen[e] = true
			exts = append(exts, e)
		}
	}
	c.Restore.Extensions = exts

	c.Restore.Backup = strings.ToLower(strings.TrimSpace(c.Restore.Backup))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))

	return nil
}

func expandPath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", nil
	}

	expanded, err := homedir.Expand(p)
	if err != nil {
		return "", err
	}
	return filepath.Abs(expanded)
}

func (c *Config) ToolTimeout() time.Duration {
	return time.Duration(c.Exiftool.TimeoutSeconds) * time.Second
}

func (c *Config) ResolverOptions() resolver.Options {
	return resolver.Options{
		PrefixChars:        c.Matching.PrefixChars,
		SubstringChars:     c.Matching.SubstringChars,
		TimestampTolerance: time.Duration(c.Matching.TimestampToleranceSeconds) * time.Second,
	}
}

func (c *Config) BackupPolicy() core.BackupPolicy {
	p, _ := core.ParseBackupPolicy(c.Restore.Backup)
	return p
}

// LockPath is the file guarding the tree a run writes into.
func (c *Config) LockPath() string {
	root := c.Paths.Output
	if root == "" {
		root = c.Paths.Source
	}
	return filepath.Join(root, lockName)
}
