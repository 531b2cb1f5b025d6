// Package resolver maps a sidecar record to the single media file it
// describes.
//
// Resolution is an ordered cascade of strategies. The first strategy that
// yields exactly one candidate wins; strategies are never combined or scored
// against each other. Whenever a strategy finds several candidates it prefers
// a unique one in the sidecar's own directory, then a unique one across the
// whole tree, and otherwise gives up so the next strategy can try. Nothing is
// ever guessed.
package resolver

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/fedragon/go-sidecar/internal/index"
	"github.com/fedragon/go-sidecar/internal/models"
)

const (
	DefaultPrefixChars        = 20
	DefaultSubstringChars     = 12
	DefaultTimestampTolerance = 24 * time.Hour

	MinMatchChars     = 5
	minFilenamePrefix = 4
)

type Options struct {
	PrefixChars        int
	SubstringChars     int
	TimestampTolerance time.Duration
}

func DefaultOptions() Options {
	return Options{
		PrefixChars:        DefaultPrefixChars,
		SubstringChars:     DefaultSubstringChars,
		TimestampTolerance: DefaultTimestampTolerance,
	}
}

// Query is the input of a single resolution.
type Query struct {
	SidecarPath string
	Title       string
	CapturedAt  *time.Time
}

func (q Query) dir() string {
	return filepath.Dir(q.SidecarPath)
}

// hit is what a stage reports: whether it had enough input to run at all,
// and the match if it found a unique candidate.
type hit struct {
	tried    bool
	path     string
	strategy models.Strategy
}

func (h hit) matched() bool {
	return h.path != ""
}

type stage struct {
	number int
	run    func(r *Resolver, q Query) hit
}

// stages in priority order
var stages = []stage{
	{0, (*Resolver).fromSidecarName},
	{1, (*Resolver).titleExact},
	{2, (*Resolver).titleNormalized},
	{3, (*Resolver).titleDuplicateIndex},
	{4, (*Resolver).titleBaseName},
	{5, (*Resolver).titlePrefix},
	{6, (*Resolver).titleSubstring},
	{7, (*Resolver).nearestTimestamp},
}

type Resolver struct {
	idx  *index.Index
	opts Options
}

func New(idx *index.Index, opts Options) *Resolver {
	if opts.PrefixChars < MinMatchChars {
		opts.PrefixChars = DefaultPrefixChars
	}
	if opts.SubstringChars < MinMatchChars {
		opts.SubstringChars = DefaultSubstringChars
	}
	if opts.TimestampTolerance <= 0 {
		opts.TimestampTolerance = DefaultTimestampTolerance
	}
	return &Resolver{idx: idx, opts: opts}
}

// Resolve runs the cascade for one sidecar. It is a pure function of the
// index and the query.
func (r *Resolver) Resolve(q Query) models.MatchResult {
	q.Title = strings.TrimSpace(q.Title)

	last := -1
	for _, s := range stages {
		h := s.run(r, q)
		if h.tried {
			last = s.number
		}
		if h.matched() {
			return models.MatchResult{Path: h.path, Strategy: h.strategy, LastStage: s.number}
		}
	}

	return models.MatchResult{Strategy: models.NoMatch, LastStage: last}
}

// pick applies the tie-break shared by all stages.
func pick(candidates []models.MediaFile, dir string) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}

	dirKey := index.DirKey(dir)
	var local []models.MediaFile
	for _, c := range candidates {
		if index.DirKey(c.Dir) == dirKey {
			local = append(local, c)
		}
	}
	if len(local) == 1 {
		return local[0].Path, true
	}

	if unique := distinct(candidates); len(unique) == 1 {
		return unique[0], true
	}

	return "", false
}

func distinct(candidates []models.MediaFile) []string {
	seen := make(map[string]bool, len(candidates))
	var paths []string
	for _, c := range candidates {
		if !seen[c.Path] {
			seen[c.Path] = true
			paths = append(paths, c.Path)
		}
	}
	return paths
}

func found(candidates []models.MediaFile, q Query, s models.Strategy) hit {
	if path, ok := pick(candidates, q.dir()); ok {
		return hit{tried: true, path: path, strategy: s}
	}
	return hit{tried: true}
}

func firstRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func runeLen(s string) int {
	return len([]rune(s))
}

// stage 0
func (r *Resolver) fromSidecarName(q Query) hit {
	inf := inferMediaName(filepath.Base(q.SidecarPath))
	if inf.Name == "" {
		return hit{}
	}

	if inf.Index != "" {
		var candidates []models.MediaFile
		if inf.HasExt() {
			candidates = r.idx.ByName(index.Key(inf.WithIndex()))
		} else {
			candidates = r.idx.ByBase(index.Key(inf.WithIndex()))
		}
		if h := found(candidates, q, models.FilenameDuplicateIndex); h.matched() {
			return h
		}
	}

	if h := found(r.idx.ByName(index.Key(inf.Name)), q, models.FilenameExact); h.matched() {
		return h
	}

	if stripped, _, ok := index.StripDuplicateIndex(inf.Name); ok {
		if h := found(r.idx.ByName(index.Key(stripped)), q, models.FilenameStrippedIndex); h.matched() {
			return h
		}
	}

	if !inf.HasExt() || inf.Degenerate {
		prefix := index.Key(inf.Name)
		if runeLen(prefix) >= minFilenamePrefix {
			candidates := r.idx.MatchName(func(k string) bool { return strings.HasPrefix(k, prefix) })
			if h := found(candidates, q, models.FilenamePrefix); h.matched() {
				return h
			}
		}
	}

	return hit{tried: true}
}

// stage 1
func (r *Resolver) titleExact(q Query) hit {
	if q.Title == "" {
		return hit{}
	}
	return found(r.idx.ByName(strings.ToLower(q.Title)), q, models.TitleExact)
}

// stage 2
func (r *Resolver) titleNormalized(q Query) hit {
	if q.Title == "" {
		return hit{}
	}
	return found(r.idx.ByName(index.Key(q.Title)), q, models.TitleNormalized)
}

// stage 3
func (r *Resolver) titleDuplicateIndex(q Query) hit {
	if q.Title == "" {
		return hit{}
	}

	if stripped, _, ok := index.StripDuplicateIndex(q.Title); ok {
		return found(r.idx.ByName(index.Key(stripped)), q, models.TitleDuplicateIndex)
	}

	// the title has no marker: look for media that gained one
	return found(r.idx.ByStripped(index.Key(q.Title)), q, models.TitleDuplicateIndex)
}

func titleBase(title string) string {
	return index.Key(strings.TrimSuffix(title, filepath.Ext(title)))
}

// stage 4
func (r *Resolver) titleBaseName(q Query) hit {
	if q.Title == "" {
		return hit{}
	}
	base := titleBase(q.Title)
	if base == "" {
		return hit{}
	}
	return found(r.idx.ByBase(base), q, models.BaseName)
}

// stage 5
func (r *Resolver) titlePrefix(q Query) hit {
	base := titleBase(q.Title)
	if runeLen(base) < MinMatchChars {
		return hit{}
	}

	prefix := firstRunes(base, r.opts.PrefixChars)
	candidates := r.idx.MatchBase(func(k string) bool { return strings.HasPrefix(k, prefix) })
	return found(candidates, q, models.Prefix)
}

// stage 6
func (r *Resolver) titleSubstring(q Query) hit {
	base := titleBase(q.Title)
	if runeLen(base) < MinMatchChars {
		return hit{}
	}

	sub := firstRunes(base, r.opts.SubstringChars)
	candidates := r.idx.MatchBase(func(k string) bool { return strings.Contains(k, sub) })
	return found(candidates, q, models.Substring)
}

// stage 7
func (r *Resolver) nearestTimestamp(q Query) hit {
	if q.CapturedAt == nil || q.CapturedAt.IsZero() {
		return hit{}
	}

	files := r.idx.InDir(q.dir())
	if len(files) == 0 {
		return hit{tried: true}
	}

	var (
		best     string
		bestDiff time.Duration
		tie      bool
	)
	for i, f := range files {
		diff := f.ModTime.Sub(*q.CapturedAt)
		if diff < 0 {
			diff = -diff
		}
		switch {
		case i == 0 || diff < bestDiff:
			best, bestDiff, tie = f.Path, diff, false
		case diff == bestDiff && f.Path != best:
			tie = true
		}
	}

	if tie || bestDiff >= r.opts.TimestampTolerance {
		return hit{tried: true}
	}
	return hit{tried: true, path: best, strategy: models.Timestamp}
}
