package resolver

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fedragon/go-sidecar/internal/index"
	"github.com/fedragon/go-sidecar/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Unix(1700000000, 0).UTC()

func media(path string, mod time.Time) models.MediaFile {
	name := filepath.Base(path)
	return models.MediaFile{
		Path:    path,
		Name:    name,
		Base:    strings.TrimSuffix(name, filepath.Ext(name)),
		Dir:     filepath.Dir(path),
		ModTime: mod,
	}
}

func newResolver(paths ...string) *Resolver {
	files := make([]models.MediaFile, 0, len(paths))
	for _, p := range paths {
		files = append(files, media(p, epoch))
	}
	return New(index.Build(files), DefaultOptions())
}

func TestResolve(t *testing.T) {
	cases := []struct {
		name     string
		files    []string
		sidecar  string
		title    string
		path     string
		strategy models.Strategy
	}{
		{
			name:     "sidecar with the full supplemental suffix matches by file name",
			files:    []string{"/t/album/IMG_001.jpg"},
			sidecar:  "/t/album/IMG_001.jpg.supplemental-metadata.json",
			title:    "IMG_001.jpg",
			path:     "/t/album/IMG_001.jpg",
			strategy: models.FilenameExact,
		},
		{
			name:     "duplicate index recovered from the sidecar name selects the same duplicate",
			files:    []string{"/t/a/photo(1).jpg", "/t/a/photo(2).jpg"},
			sidecar:  "/t/a/photo.supp(1).json",
			title:    "photo.jpg",
			path:     "/t/a/photo(1).jpg",
			strategy: models.FilenameDuplicateIndex,
		},
		{
			name:     "fully truncated sidecar matches a unique prefix anywhere in the tree",
			files:    []string{"/t/a/vacation_beach_2019.jpg", "/t/b/other.jpg"},
			sidecar:  "/t/x/vacation.json",
			path:     "/t/a/vacation_beach_2019.jpg",
			strategy: models.FilenamePrefix,
		},
		{
			name:     "derived name with a duplicate index falls back to the name without it",
			files:    []string{"/t/a/photo.jpg"},
			sidecar:  "/t/a/photo(1).jpg.supplemental-metadata.json",
			path:     "/t/a/photo.jpg",
			strategy: models.FilenameStrippedIndex,
		},
		{
			name:     "file name match wins over the title",
			files:    []string{"/t/a/IMG_001.jpg", "/t/a/other.jpg"},
			sidecar:  "/t/a/IMG_001.jpg.supplemental-metadata.json",
			title:    "other.jpg",
			path:     "/t/a/IMG_001.jpg",
			strategy: models.FilenameExact,
		},
		{
			name:     "title matches case-insensitively",
			files:    []string{"/t/a/Photo.JPG"},
			sidecar:  "/t/a/zzzz.json",
			title:    "photo.jpg",
			path:     "/t/a/Photo.JPG",
			strategy: models.TitleExact,
		},
		{
			name:     "title matches across unicode normalization forms",
			files:    []string{"/t/a/Caf\u00e9.jpg"},
			sidecar:  "/t/a/zzzz.json",
			title:    "Cafe\u0301.jpg",
			path:     "/t/a/Caf\u00e9.jpg",
			strategy: models.TitleNormalized,
		},
		{
			name:     "duplicate index is stripped from the title",
			files:    []string{"/t/a/photo.jpg"},
			sidecar:  "/t/a/zzzz.json",
			title:    "photo(1).jpg",
			path:     "/t/a/photo.jpg",
			strategy: models.TitleDuplicateIndex,
		},
		{
			name:     "duplicate index is stripped from the media names",
			files:    []string{"/t/a/photo(1).jpg"},
			sidecar:  "/t/a/zzzz.json",
			title:    "photo.jpg",
			path:     "/t/a/photo(1).jpg",
			strategy: models.TitleDuplicateIndex,
		},
		{
			name:     "title base name matches a file with a different extension",
			files:    []string{"/t/a/IMG_100.HEIC"},
			sidecar:  "/t/a/zzzz.json",
			title:    "IMG_100.jpg",
			path:     "/t/a/IMG_100.HEIC",
			strategy: models.BaseName,
		},
		{
			name:     "long title matches a truncated media name by prefix",
			files:    []string{"/t/a/A_very_long_descriptive_na.jpg"},
			sidecar:  "/t/a/zzzz.json",
			title:    "A_very_long_descriptive_name_of_photo.jpg",
			path:     "/t/a/A_very_long_descriptive_na.jpg",
			strategy: models.Prefix,
		},
		{
			name:     "prefix candidates are narrowed to the sidecar directory first",
			files:    []string{"/t/a/A_very_long_descriptive_na.jpg", "/t/b/A_very_long_descriptive_nb.jpg"},
			sidecar:  "/t/a/zzzz.json",
			title:    "A_very_long_descriptive_name_of_photo.jpg",
			path:     "/t/a/A_very_long_descriptive_na.jpg",
			strategy: models.Prefix,
		},
		{
			name:     "title contained in an edited media name matches by substring",
			files:    []string{"/t/a/edited-IMG_holiday_in_rome.jpg"},
			sidecar:  "/t/a/zzzz.json",
			title:    "IMG_holiday_in_rome.jpg",
			path:     "/t/a/edited-IMG_holiday_in_rome.jpg",
			strategy: models.Substring,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := newResolver(c.files...)
			got := r.Resolve(Query{SidecarPath: c.sidecar, Title: c.title})

			require.True(t, got.Matched(), "expected a match, got %+v", got)
			assert.Equal(t, c.path, got.Path)
			assert.Equal(t, c.strategy, got.Strategy)
			assert.Equal(t, c.strategy.Stage(), got.LastStage)
		})
	}
}

func TestResolveNeverGuesses(t *testing.T) {
	cases := []struct {
		name      string
		files     []string
		sidecar   string
		title     string
		lastStage int
	}{
		{
			name:      "ambiguous prefix of a fully truncated sidecar",
			files:     []string{"/t/a/vacation_beach.jpg", "/t/b/vacation2.jpg"},
			sidecar:   "/t/x/vacation.json",
			lastStage: 0,
		},
		{
			name:      "same title in two other directories",
			files:     []string{"/t/a/IMG.jpg", "/t/b/IMG.jpg"},
			sidecar:   "/t/c/zzzz.json",
			title:     "IMG.jpg",
			lastStage: 4,
		},
		{
			name:      "prefix and substring ambiguous outside the sidecar directory",
			files:     []string{"/t/a/A_very_long_descriptive_na.jpg", "/t/b/A_very_long_descriptive_nb.jpg"},
			sidecar:   "/t/c/zzzz.json",
			title:     "A_very_long_descriptive_name_of_photo.jpg",
			lastStage: 6,
		},
		{
			name:      "two duplicates when the title has no marker",
			files:     []string{"/t/a/photo(1).jpg", "/t/a/photo(2).jpg"},
			sidecar:   "/t/b/zzzz.json",
			title:     "photo.jpg",
			lastStage: 6,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := newResolver(c.files...).Resolve(Query{SidecarPath: c.sidecar, Title: c.title})

			assert.False(t, got.Matched(), "expected no match, got %+v", got)
			assert.Equal(t, models.NoMatch, got.Strategy)
			assert.Equal(t, c.lastStage, got.LastStage)
		})
	}
}

func TestResolveNearestTimestamp(t *testing.T) {
	files := func(mods map[string]time.Duration) *Resolver {
		var mf []models.MediaFile
		for _, p := range []string{"/t/a/DSC0001.jpg", "/t/a/DSC0002.jpg", "/t/b/DSC0003.jpg"} {
			if d, ok := mods[p]; ok {
				mf = append(mf, media(p, epoch.Add(d)))
			}
		}
		return New(index.Build(mf), DefaultOptions())
	}

	t.Run("closest file in the sidecar directory within tolerance", func(t *testing.T) {
		r := files(map[string]time.Duration{
			"/t/a/DSC0001.jpg": 100 * time.Second,
			"/t/a/DSC0002.jpg": -5000 * time.Second,
			"/t/b/DSC0003.jpg": 0,
		})
		got := r.Resolve(Query{SidecarPath: "/t/a/zzzz.json", CapturedAt: &epoch})

		assert.Equal(t, "/t/a/DSC0001.jpg", got.Path)
		assert.Equal(t, models.Timestamp, got.Strategy)
	})

	t.Run("closest file beyond tolerance", func(t *testing.T) {
		r := files(map[string]time.Duration{"/t/a/DSC0001.jpg": 48 * time.Hour})
		got := r.Resolve(Query{SidecarPath: "/t/a/zzzz.json", CapturedAt: &epoch})

		assert.False(t, got.Matched())
		assert.Equal(t, 7, got.LastStage)
	})

	t.Run("two files equally close", func(t *testing.T) {
		r := files(map[string]time.Duration{
			"/t/a/DSC0001.jpg": 100 * time.Second,
			"/t/a/DSC0002.jpg": -100 * time.Second,
		})
		got := r.Resolve(Query{SidecarPath: "/t/a/zzzz.json", CapturedAt: &epoch})

		assert.False(t, got.Matched())
	})

	t.Run("files in other directories are never considered", func(t *testing.T) {
		r := files(map[string]time.Duration{"/t/b/DSC0003.jpg": 0})
		got := r.Resolve(Query{SidecarPath: "/t/a/zzzz.json", CapturedAt: &epoch})

		assert.False(t, got.Matched())
	})
}

func TestResolveIsDeterministic(t *testing.T) {
	r := newResolver(
		"/t/a/IMG_001.jpg",
		"/t/b/IMG_001.jpg",
		"/t/a/photo(1).jpg",
		"/t/a/photo(2).jpg",
		"/t/a/A_very_long_descriptive_na.jpg",
	)

	queries := []Query{
		{SidecarPath: "/t/a/IMG_001.jpg.supplemental-metadata.json", Title: "IMG_001.jpg"},
		{SidecarPath: "/t/c/zzzz.json", Title: "IMG_001.jpg"},
		{SidecarPath: "/t/a/photo.supp(2).json"},
		{SidecarPath: "/t/c/zzzz.json", Title: "A_very_long_descriptive_name.png", CapturedAt: &epoch},
	}

	for _, q := range queries {
		first := r.Resolve(q)
		second := r.Resolve(q)
		assert.Equal(t, first, second, "query %+v", q)
	}
}

func TestNewAppliesMinimums(t *testing.T) {
	r := New(index.Build(nil), Options{PrefixChars: 2, SubstringChars: 1})

	assert.Equal(t, DefaultPrefixChars, r.opts.PrefixChars)
	assert.Equal(t, DefaultSubstringChars, r.opts.SubstringChars)
	assert.Equal(t, DefaultTimestampTolerance, r.opts.TimestampTolerance)
}
