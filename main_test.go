package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRestoreDryRun(t *testing.T) {
	base := t.TempDir()
	source := filepath.Join(base, "takeout")
	require.NoError(t, os.MkdirAll(source, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(source, "IMG_1.jpg"), []byte("jpeg"), 0o644))
	require.NoError(t, os.WriteFile(
		filepath.Join(source, "IMG_1.jpg.supplemental-metadata.json"),
		[]byte(`{"title": "IMG_1.jpg", "photoTakenTime": {"timestamp": "1700000000"}}`),
		0o644,
	))

	var stdout, stderr bytes.Buffer
	err := newApp(&stdout, &stderr).Run([]string{
		"go-sidecar",
		"--journal", filepath.Join(base, "journal.db"),
		"--log-format", "json",
		"restore",
		"--source", source,
		"--report-dir", filepath.Join(base, "report"),
		"--dry-run",
	})
	require.NoError(t, err)

	assert.Contains(t, stdout.String(), "dry_run")
	assert.Contains(t, stderr.String(), `"msg":"Restored file"`)
	assert.FileExists(t, filepath.Join(base, "report", "results.csv"))
}

func TestReportOnEmptyJournal(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := newApp(&stdout, &stderr).Run([]string{
		"go-sidecar",
		"--journal", filepath.Join(t.TempDir(), "journal.db"),
		"--log-level", "error",
		"report",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, stdout.String())
}

func TestRestoreRejectsBadFlags(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := newApp(&stdout, &stderr).Run([]string{
		"go-sidecar",
		"--journal", filepath.Join(t.TempDir(), "journal.db"),
		"restore",
		"--source", t.TempDir(),
		"--workers", "64",
	})
	assert.Error(t, err)
}

func TestRestoreRejectsFractionalDurations(t *testing.T) {
	for _, args := range [][]string{
		{"--tool-timeout", "500ms"},
		{"--timestamp-tolerance", "1500ms"},
	} {
		var stdout, stderr bytes.Buffer
		err := newApp(&stdout, &stderr).Run(append([]string{
			"go-sidecar",
			"--journal", filepath.Join(t.TempDir(), "journal.db"),
			"restore",
			"--source", t.TempDir(),
			"--dry-run",
		}, args...))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "whole number of seconds")
	}
}

func TestWholeSeconds(t *testing.T) {
	cases := []struct {
		in       time.Duration
		expected int
		ok       bool
	}{
		{in: 0, expected: 0, ok: true},
		{in: 90 * time.Second, expected: 90, ok: true},
		{in: 2 * time.Minute, expected: 120, ok: true},
		{in: 500 * time.Millisecond},
		{in: 1500 * time.Millisecond},
	}

	for _, c := range cases {
		got, err := wholeSeconds(c.in)
		if got != c.expected || (err == nil) != c.ok {
			t.Errorf("%v\n\tExpected %v (%v) but got %v (%v) instead", c.in, c.expected, c.ok, got, err)
		}
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	logger, err := newLogger("warn", "json", &buf)
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	_, err = newLogger("loud", "json", &buf)
	assert.Error(t, err)
}
