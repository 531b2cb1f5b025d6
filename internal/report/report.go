// Package report collects everything a run decided about every sidecar and
// renders it as CSV manifests and a summary table.
package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fedragon/go-sidecar/internal/models"

	"github.com/natefinch/atomic"
	"go.uber.org/multierr"
)

const (
	ResultsFile     = "results.csv"
	UnparseableFile = "unparseable.csv"
	UnmatchedFile   = "unmatched.csv"
	NoMetadataFile  = "no_metadata.csv"
)

type Unparseable struct {
	Sidecar string
	Detail  string
}

type Unmatched struct {
	Sidecar   string
	Title     string
	LastStage int
	Reason    string
}

const noCandidate = "no candidate found"

type NoMetadata struct {
	Sidecar string
	Media   string
}

// Report is filled by a single goroutine; results are appended in the
// order they complete.
type Report struct {
	Results     []models.ExecutionResult
	Unparseable []Unparseable
	Unmatched   []Unmatched
	NoMetadata  []NoMetadata
	Resumed     []string
	Ignored     []string
}

func (r *Report) AddResult(res models.ExecutionResult) {
	r.Results = append(r.Results, res)
}

func (r *Report) AddUnparseable(sidecar string, err error) {
	r.Unparseable = append(r.Unparseable, Unparseable{Sidecar: sidecar, Detail: err.Error()})
}

func (r *Report) AddUnmatched(sidecar, title string, lastStage int) {
	r.Unmatched = append(r.Unmatched, Unmatched{Sidecar: sidecar, Title: title, LastStage: lastStage, Reason: noCandidate})
}

// AddClaimed records a sidecar whose media file is already restored in place
// from another sidecar.
func (r *Report) AddClaimed(sidecar, title, media, claimedBy string) {
	r.Unmatched = append(r.Unmatched, Unmatched{
		Sidecar:   sidecar,
		Title:     title,
		LastStage: -1,
		Reason:    fmt.Sprintf("media %v already claimed by %v", media, claimedBy),
	})
}

func (r *Report) AddNoMetadata(sidecar, media string) {
	r.NoMetadata = append(r.NoMetadata, NoMetadata{Sidecar: sidecar, Media: media})
}

// AddResumed records a sidecar restored by an earlier run.
func (r *Report) AddResumed(sidecar string) {
	r.Resumed = append(r.Resumed, sidecar)
}

// AddIgnored records a JSON file that is not a sidecar.
func (r *Report) AddIgnored(path string) {
	r.Ignored = append(r.Ignored, path)
}

func stage(n int) string {
	if n < 0 {
		return "none"
	}
	return strconv.Itoa(n)
}

func note(res models.ExecutionResult) string {
	var parts []string
	for _, p := range []string{res.Item.ExtensionNote, res.Detail} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "; ")
}

// Write stores the results and the three failure manifests under dir and
// returns the files written.
func Write(dir string, r *Report) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("unable to create report directory %v: %w", dir, err)
	}

	results := [][]string{{"sidecar", "media", "strategy", "outcome", "exit_code", "fields", "gps", "destination", "note"}}
	for _, res := range r.Results {
		results = append(results, []string{
			res.Item.SidecarPath,
			res.Item.MediaPath,
			res.Item.Strategy.String(),
			res.Outcome.String(),
			strconv.Itoa(res.ExitCode),
			res.Item.Metadata.Summary(),
			strconv.FormatBool(res.Item.Metadata.HasGPS),
			res.Item.Destination,
			note(res),
		})
	}

	unparseable := [][]string{{"sidecar", "error"}}
	for _, u := range r.Unparseable {
		unparseable = append(unparseable, []string{u.Sidecar, u.Detail})
	}

	unmatched := [][]string{{"sidecar", "title", "last_stage", "reason"}}
	for _, u := range r.Unmatched {
		unmatched = append(unmatched, []string{u.Sidecar, u.Title, stage(u.LastStage), u.Reason})
	}

	noMetadata := [][]string{{"sidecar", "media"}}
	for _, n := range r.NoMetadata {
		noMetadata = append(noMetadata, []string{n.Sidecar, n.Media})
	}

	var (
		written []string
		errs    error
	)
	for _, f := range []struct {
		name string
		rows [][]string
	}{
		{ResultsFile, results},
		{UnparseableFile, unparseable},
		{UnmatchedFile, unmatched},
		{NoMetadataFile, noMetadata},
	} {
		path := filepath.Join(dir, f.name)
		if err := writeCSV(path, f.rows); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		written = append(written, path)
	}

	return written, errs
}

func writeCSV(path string, rows [][]string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("cannot encode %v: %w", path, err)
	}

	if err := atomic.WriteFile(path, &buf); err != nil {
		return fmt.Errorf("cannot write %v: %w", path, err)
	}
	return nil
}
