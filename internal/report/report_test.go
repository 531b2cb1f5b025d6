package report

import (
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fedragon/go-sidecar/internal/db"
	"github.com/fedragon/go-sidecar/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() *Report {
	r := &Report{}
	r.AddResult(models.ExecutionResult{
		Item: models.WorkItem{
			SidecarPath:   "/in/a.jpg.json",
			MediaPath:     "/in/a.jpg",
			Strategy:      models.FilenameExact,
			Metadata:      models.Metadata{TakenAt: time.Unix(1, 0), HasGPS: true},
			Destination:   "/out/1970/01/a.png",
			ExtensionNote: "extension corrected from .jpg to .png",
		},
		Outcome: models.Success,
	})
	r.AddResult(models.ExecutionResult{
		Item:     models.WorkItem{SidecarPath: "/in/b.json", MediaPath: "/in/b.jpg", Strategy: models.Timestamp},
		Outcome:  models.ToolFailed,
		ExitCode: 1,
		Detail:   "Error: Not a valid JPG",
	})
	r.AddUnparseable("/in/c.json", errors.New("unexpected end of JSON input"))
	r.AddUnmatched("/in/d.json", "d.jpg", 6)
	r.AddUnmatched("/in/e.json", "", -1)
	r.AddNoMetadata("/in/f.json", "/in/f.jpg")
	r.AddResumed("/in/g.json")
	r.AddIgnored("/in/metadata.json")
	return r
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() {
		_ = f.Close()
	}()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestSummary(t *testing.T) {
	s := sample().Summary()

	assert.Equal(t, 6, s.Sidecars)
	assert.Equal(t, 1, s.Outcomes[models.Success])
	assert.Equal(t, 1, s.Outcomes[models.ToolFailed])
	assert.Equal(t, 1, s.Strategies[models.Timestamp])
	assert.Equal(t, 1, s.Failed())
	assert.Equal(t, 2, s.Unmatched)
	assert.Equal(t, 1, s.Ignored)

	table := s.Table()
	for _, want := range []string{"success", "tool_failed", "already_restored", "matched by filename_exact", "matched by timestamp"} {
		assert.Contains(t, table, want)
	}
	assert.NotContains(t, table, "dry_run")
}

func TestWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "report")

	written, err := Write(dir, sample())
	require.NoError(t, err)
	assert.Len(t, written, 4)

	results := readCSV(t, filepath.Join(dir, ResultsFile))
	require.Len(t, results, 3)
	assert.Equal(t, []string{"sidecar", "media", "strategy", "outcome", "exit_code", "fields", "gps", "destination", "note"}, results[0])
	assert.Equal(t, []string{"/in/a.jpg.json", "/in/a.jpg", "filename_exact", "success", "0", "taken+gps", "true", "/out/1970/01/a.png", "extension corrected from .jpg to .png"}, results[1])
	assert.Equal(t, "Error: Not a valid JPG", results[2][8])

	unmatched := readCSV(t, filepath.Join(dir, UnmatchedFile))
	assert.Equal(t, [][]string{
		{"sidecar", "title", "last_stage", "reason"},
		{"/in/d.json", "d.jpg", "6", "no candidate found"},
		{"/in/e.json", "", "none", "no candidate found"},
	}, unmatched)

	unparseable := readCSV(t, filepath.Join(dir, UnparseableFile))
	assert.Equal(t, []string{"/in/c.json", "unexpected end of JSON input"}, unparseable[1])

	noMetadata := readCSV(t, filepath.Join(dir, NoMetadataFile))
	assert.Equal(t, []string{"/in/f.json", "/in/f.jpg"}, noMetadata[1])
}

func TestWriteClaimedMedia(t *testing.T) {
	dir := t.TempDir()
	r := &Report{}
	r.AddClaimed("/in/a.jpg.supplemental-metadata(1).json", "a.jpg", "/in/a.jpg", "/in/a.jpg.supplemental-metadata.json")

	_, err := Write(dir, r)
	require.NoError(t, err)

	unmatched := readCSV(t, filepath.Join(dir, UnmatchedFile))
	require.Len(t, unmatched, 2)
	assert.Equal(t, []string{
		"/in/a.jpg.supplemental-metadata(1).json",
		"a.jpg",
		"none",
		"media /in/a.jpg already claimed by /in/a.jpg.supplemental-metadata.json",
	}, unmatched[1])
	assert.Equal(t, 1, r.Summary().Unmatched)
}

func TestWriteEmptyReportStillWritesManifests(t *testing.T) {
	dir := t.TempDir()

	written, err := Write(dir, &Report{})
	require.NoError(t, err)
	assert.Len(t, written, 4)

	assert.Len(t, readCSV(t, filepath.Join(dir, NoMetadataFile)), 1)
}

func TestJournalTable(t *testing.T) {
	table := JournalTable([]db.Entry{{
		Sidecar:    "/in/a.json",
		Outcome:    "success",
		Media:      "/in/a.jpg",
		RunID:      "run-1",
		RecordedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}})

	assert.True(t, strings.Contains(table, "/in/a.json"))
	assert.Contains(t, table, "2024-05-01 10:00:00")
}
