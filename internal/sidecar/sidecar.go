// Package sidecar loads the JSON description records written next to media
// files by the photo export.
package sidecar

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/fedragon/go-sidecar/internal/models"
)

// ErrNotSidecar is returned for well-formed JSON files that do not describe a
// media file (album metadata, exporter bookkeeping files, ...).
var ErrNotSidecar = errors.New("not a sidecar record")

var albumMetadataRE = regexp.MustCompile(`^metadata(\(\d+\))?\.json$`)

type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse sidecar %v: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func IsParseError(err error) bool {
	var e *ParseError
	return errors.As(err, &e)
}

// timestamp accepts both quoted and bare unix seconds.
type timestamp struct {
	Timestamp json.RawMessage `json:"timestamp"`
}

func (t *timestamp) time() (*time.Time, error) {
	if t == nil || len(t.Timestamp) == 0 {
		return nil, nil
	}

	raw := strings.Trim(string(bytes.TrimSpace(t.Timestamp)), `"`)
	if raw == "" || raw == "null" {
		return nil, nil
	}

	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil {
			return nil, fmt.Errorf("invalid timestamp %q: %w", raw, err)
		}
		secs = int64(f)
	}

	// zero is the exporter's placeholder for "unknown"
	if secs <= 0 {
		return nil, nil
	}

	ts := time.Unix(secs, 0).UTC()
	return &ts, nil
}

type geoData struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
}

func (g *geoData) location() *models.GeoLocation {
	if g == nil {
		return nil
	}
	loc := &models.GeoLocation{Latitude: g.Latitude, Longitude: g.Longitude, Altitude: g.Altitude}
	if !loc.Present() {
		return nil
	}
	return loc
}

type document struct {
	Title            *string    `json:"title"`
	OriginalFilename string     `json:"originalFilename"`
	Description      *string    `json:"description"`
	PhotoTakenTime   *timestamp `json:"photoTakenTime"`
	CreationTime     *timestamp `json:"creationTime"`
	GeoData          *geoData   `json:"geoData"`
	GeoDataExif      *geoData   `json:"geoDataExif"`
}

// looksLikeSidecar requires a title plus at least one restorable field.
func (d document) looksLikeSidecar() bool {
	if d.Title == nil {
		return false
	}
	return d.PhotoTakenTime != nil || d.CreationTime != nil || d.GeoData != nil || d.GeoDataExif != nil || d.Description != nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// IsAlbumMetadata reports whether name is a per-album description file
// ("metadata.json", "metadata(1).json", ...) rather than a media sidecar.
func IsAlbumMetadata(name string) bool {
	return albumMetadataRE.MatchString(strings.ToLower(name))
}

// Load reads and validates the sidecar at path.
func Load(path string) (models.SidecarRecord, error) {
	if IsAlbumMetadata(filepath.Base(path)) {
		return models.SidecarRecord{}, ErrNotSidecar
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return models.SidecarRecord{}, &ParseError{Path: path, Err: err}
	}

	return Parse(path, data)
}

func Parse(path string, data []byte) (models.SidecarRecord, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field == "" {
			// valid JSON, but not an object
			return models.SidecarRecord{}, ErrNotSidecar
		}
		return models.SidecarRecord{}, &ParseError{Path: path, Err: err}
	}

	if !doc.looksLikeSidecar() {
		return models.SidecarRecord{}, ErrNotSidecar
	}

	captured, err := doc.PhotoTakenTime.time()
	if err != nil {
		return models.SidecarRecord{}, &ParseError{Path: path, Err: fmt.Errorf("photoTakenTime: %w", err)}
	}
	created, err := doc.CreationTime.time()
	if err != nil {
		return models.SidecarRecord{}, &ParseError{Path: path, Err: fmt.Errorf("creationTime: %w", err)}
	}

	title := deref(doc.Title)
	if title == "" {
		title = strings.TrimSpace(doc.OriginalFilename)
	}

	return models.SidecarRecord{
		Path:             path,
		Title:            title,
		OriginalFilename: strings.TrimSpace(doc.OriginalFilename),
		CapturedAt:       captured,
		CreatedAt:        created,
		Description:      deref(doc.Description),
		Geo:              doc.GeoData.location(),
		GeoFallback:      doc.GeoDataExif.location(),
	}, nil
}
