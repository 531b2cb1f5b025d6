// Package filetype detects a media file's real type from its content.
package filetype

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

type Detector interface {
	// Detect returns the canonical extension (with the leading dot) of the
	// file at path, or false when the type is unknown or not a media type.
	Detect(path string) (string, bool)
}

// Sniffer reads the file's leading bytes.
type Sniffer struct{}

func (Sniffer) Detect(path string) (string, bool) {
	mime, err := mimetype.DetectFile(path)
	if err != nil {
		return "", false
	}

	for m := mime; m != nil; m = m.Parent() {
		if isMedia(m.String()) && m.Extension() != "" {
			return strings.ToLower(m.Extension()), true
		}
	}

	return "", false
}

func isMedia(mime string) bool {
	return strings.HasPrefix(mime, "image/") || strings.HasPrefix(mime, "video/")
}

// equivalent groups extensions that name the same format.
var equivalent = map[string]string{
	".jpeg": ".jpg",
	".jpe":  ".jpg",
	".tiff": ".tif",
	".heif": ".heic",
	".qt":   ".mov",
	".m4v":  ".mp4",
	".mpeg": ".mpg",
}

func canonical(ext string) string {
	ext = strings.ToLower(ext)
	if c, ok := equivalent[ext]; ok {
		return c
	}
	return ext
}

// Equivalent reports whether two extensions name the same format.
func Equivalent(a, b string) bool {
	return canonical(a) == canonical(b)
}

// containers maps a detected format to the extensions of formats stored
// inside it. Camera RAW files are TIFF underneath and sniff as plain TIFF.
var containers = map[string]map[string]bool{
	".tif": {
		".dng": true, ".nef": true, ".arw": true, ".cr2": true,
		".orf": true, ".raw": true, ".rw2": true, ".pef": true, ".srw": true,
	},
}

// agrees reports whether content detected as detected may carry the
// extension current.
func agrees(current, detected string) bool {
	if Equivalent(current, detected) {
		return true
	}
	return containers[canonical(detected)][strings.ToLower(current)]
}

// Correct returns name with its extension replaced by the one detected from
// the content of path, and a note describing the change. When the content
// agrees with the extension, or the type cannot be detected, name is
// returned unchanged with an empty note.
func Correct(d Detector, path, name string) (string, string) {
	detected, ok := d.Detect(path)
	if !ok {
		return name, ""
	}

	current := filepath.Ext(name)
	if agrees(current, detected) {
		return name, ""
	}

	fixed := strings.TrimSuffix(name, current) + detected
	return fixed, "extension corrected from " + orNone(current) + " to " + detected
}

func orNone(ext string) string {
	if ext == "" {
		return "(none)"
	}
	return ext
}
