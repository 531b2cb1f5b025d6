package resolver

import (
	"path/filepath"
	"regexp"
	"strings"
)

const supplementalSuffix = "supplemental-metadata"

var (
	trailingIndexRE = regexp.MustCompile(`^(.*)\((\d+)\)$`)
	multiDotRE      = regexp.MustCompile(`\.{2,}`)
)

type inferMode int

const (
	// the full ".supplemental-metadata" suffix was present
	inferExact inferMode = iota
	// a truncated form of it was present, e.g. ".supp" or ".suppl"
	inferSupplement
	// only the sidecar extension could be removed
	inferFallback
)

// inference is the media file name derived from a sidecar's own file name.
type inference struct {
	Name string
	// Index is the duplicate index recovered from a "(N)" marker, or "".
	Index      string
	Mode       inferMode
	Degenerate bool
}

func (i inference) HasExt() bool {
	return filepath.Ext(i.Name) != ""
}

// WithIndex returns the derived name with the duplicate index reinserted
// before its extension: "photo.jpg" + 1 => "photo(1).jpg".
func (i inference) WithIndex() string {
	ext := filepath.Ext(i.Name)
	return strings.TrimSuffix(i.Name, ext) + "(" + i.Index + ")" + ext
}

// inferMediaName strips the sidecar suffix patterns produced by the exporter
// from a sidecar file name:
//
//	IMG_001.jpg.supplemental-metadata.json    -> IMG_001.jpg
//	IMG_001.jpg.supplemental-metadata(1).json -> IMG_001.jpg, index 1
//	IMG_001.jpg.supp.json                     -> IMG_001.jpg
//	IMG_001.jpg(1).json                       -> IMG_001.jpg, index 1
//	IMG_001..json                             -> IMG_001 (degenerate)
//	vacation.json                             -> vacation (fallback)
func inferMediaName(sidecarName string) inference {
	stem := sidecarName
	if ext := filepath.Ext(stem); strings.EqualFold(ext, ".json") {
		stem = strings.TrimSuffix(stem, ext)
	}

	var inf inference

	if m := trailingIndexRE.FindStringSubmatch(stem); m != nil && m[1] != "" {
		stem = m[1]
		inf.Index = m[2]
	}

	if collapsed := strings.TrimRight(multiDotRE.ReplaceAllString(stem, "."), "."); collapsed != stem && collapsed != "" {
		stem = collapsed
		inf.Degenerate = true
	}

	lower := strings.ToLower(stem)
	switch {
	case strings.HasSuffix(lower, "."+supplementalSuffix) && len(stem) > len(supplementalSuffix)+1:
		stem = stem[:len(stem)-len(supplementalSuffix)-1]
		inf.Mode = inferExact
	case isTruncatedSupplement(lower):
		stem = stem[:strings.LastIndex(stem, ".")]
		inf.Mode = inferSupplement
	default:
		inf.Mode = inferFallback
		inf.Degenerate = true
	}

	inf.Name = strings.TrimRight(stem, ".")
	return inf
}

// isTruncatedSupplement reports whether the last dot-separated segment of
// name is a non-empty prefix of "supplemental-metadata".
func isTruncatedSupplement(name string) bool {
	i := strings.LastIndex(name, ".")
	if i <= 0 || i == len(name)-1 {
		return false
	}
	return strings.HasPrefix(supplementalSuffix, name[i+1:])
}
