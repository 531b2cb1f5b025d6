// Package index holds the read-only lookup structures the resolver matches
// sidecar records against.
package index

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/fedragon/go-sidecar/internal/models"

	"golang.org/x/text/unicode/norm"
)

var duplicateIndexRE = regexp.MustCompile(`^(.*)\((\d+)\)$`)

// Key normalizes s for lookups: NFC composed and lower-cased.
func Key(s string) string {
	return strings.ToLower(norm.NFC.String(s))
}

// StripDuplicateIndex removes a trailing "(N)" marker from the base of name,
// keeping its extension. It returns the stripped name, N as a string and
// whether a marker was found.
func StripDuplicateIndex(name string) (string, string, bool) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	m := duplicateIndexRE.FindStringSubmatch(base)
	if m == nil || m[1] == "" {
		return name, "", false
	}
	return m[1] + ext, m[2], true
}

type Index struct {
	byName     map[string][]models.MediaFile
	byBase     map[string][]models.MediaFile
	byDir      map[string][]models.MediaFile
	byStripped map[string][]models.MediaFile
	baseKeys   []string
	names      []keyed
	size       int
}

type keyed struct {
	key  string
	file models.MediaFile
}

// Build indexes files in a single pass.
func Build(files []models.MediaFile) *Index {
	idx := &Index{
		byName:     make(map[string][]models.MediaFile, len(files)),
		byBase:     make(map[string][]models.MediaFile, len(files)),
		byDir:      make(map[string][]models.MediaFile),
		byStripped: make(map[string][]models.MediaFile),
		size:       len(files),
	}

	for _, f := range files {
		idx.byName[Key(f.Name)] = append(idx.byName[Key(f.Name)], f)

		base := Key(f.Base)
		if _, ok := idx.byBase[base]; !ok {
			idx.baseKeys = append(idx.baseKeys, base)
		}
		idx.byBase[base] = append(idx.byBase[base], f)

		idx.byDir[DirKey(f.Dir)] = append(idx.byDir[DirKey(f.Dir)], f)

		if stripped, _, ok := StripDuplicateIndex(f.Name); ok {
			idx.byStripped[Key(stripped)] = append(idx.byStripped[Key(stripped)], f)
		}
	}

	// grouped by base like MatchBase
	idx.names = make([]keyed, 0, len(files))
	for _, k := range idx.baseKeys {
		for _, f := range idx.byBase[k] {
			idx.names = append(idx.names, keyed{key: Key(f.Name), file: f})
		}
	}

	return idx
}

func DirKey(dir string) string {
	return Key(filepath.Clean(dir))
}

func (idx *Index) Len() int {
	return idx.size
}

// ByName returns media files whose file name equals key.
func (idx *Index) ByName(key string) []models.MediaFile {
	return idx.byName[key]
}

// ByBase returns media files whose extension-less name equals key.
func (idx *Index) ByBase(key string) []models.MediaFile {
	return idx.byBase[key]
}

// ByStripped returns media files that carry a duplicate-index marker and
// whose name without that marker equals key.
func (idx *Index) ByStripped(key string) []models.MediaFile {
	return idx.byStripped[key]
}

func (idx *Index) InDir(dir string) []models.MediaFile {
	return idx.byDir[DirKey(dir)]
}

// MatchBase collects the media files of every base-name key accepted by pred,
// in insertion order.
func (idx *Index) MatchBase(pred func(key string) bool) []models.MediaFile {
	var out []models.MediaFile
	for _, k := range idx.baseKeys {
		if pred(k) {
			out = append(out, idx.byBase[k]...)
		}
	}
	return out
}

// MatchName is MatchBase over full file names.
func (idx *Index) MatchName(pred func(key string) bool) []models.MediaFile {
	var out []models.MediaFile
	for _, n := range idx.names {
		if pred(n.key) {
			out = append(out, n.file)
		}
	}
	return out
}
