// Package builder turns a resolved sidecar into an immutable work item:
// the metadata to restore and the file to restore it onto.
package builder

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fedragon/go-sidecar/internal/filetype"
	"github.com/fedragon/go-sidecar/internal/models"
)

var (
	// ErrNoMetadata means the sidecar matched but carries nothing restorable.
	ErrNoMetadata = errors.New("nothing to restore")
	ErrUnmatched  = errors.New("sidecar is not matched to a media file")
)

const unknownBucket = "unknown"

type Options struct {
	// OutputDir is the root of the dated output tree. Empty means in place.
	OutputDir string
}

type Builder struct {
	opts      Options
	detector  filetype.Detector
	allocator *Allocator
}

func New(opts Options, detector filetype.Detector, allocator *Allocator) *Builder {
	if allocator == nil {
		allocator = NewAllocator()
	}
	return &Builder{opts: opts, detector: detector, allocator: allocator}
}

// Build must be called from a single goroutine or with a shared Allocator;
// destination allocation is serialized either way.
func (b *Builder) Build(rec models.SidecarRecord, match models.MatchResult) (models.WorkItem, error) {
	if !match.Matched() {
		return models.WorkItem{}, ErrUnmatched
	}

	meta := ExtractMetadata(rec)
	if meta.Empty() {
		return models.WorkItem{}, fmt.Errorf("%v: %w", rec.Path, ErrNoMetadata)
	}

	item := models.WorkItem{
		SidecarPath: rec.Path,
		MediaPath:   match.Path,
		Strategy:    match.Strategy,
		Metadata:    meta,
	}

	if b.opts.OutputDir == "" {
		return item, nil
	}

	name := filepath.Base(match.Path)
	if b.detector != nil {
		name, item.ExtensionNote = filetype.Correct(b.detector, match.Path, name)
	}

	item.Destination = b.allocator.Allocate(Bucket(b.opts.OutputDir, meta), name)
	return item, nil
}

// ExtractMetadata collects the restorable values of a sidecar. The creation
// time stands in for the modification time, and the capture time stands in
// for both when the creation time is missing.
func ExtractMetadata(rec models.SidecarRecord) models.Metadata {
	var meta models.Metadata

	if rec.CapturedAt != nil && !rec.CapturedAt.IsZero() {
		meta.TakenAt = rec.CapturedAt.UTC()
	}

	switch {
	case rec.CreatedAt != nil && !rec.CreatedAt.IsZero():
		meta.ModifiedAt = rec.CreatedAt.UTC()
	case !meta.TakenAt.IsZero():
		meta.ModifiedAt = meta.TakenAt
	}

	meta.Title = strings.TrimSpace(rec.Title)
	meta.Description = strings.TrimSpace(rec.Description)

	if loc := rec.Location(); loc != nil {
		meta.GPS = *loc
		meta.HasGPS = true
	}

	return meta
}

// Bucket returns root/YYYY/MM for the capture time, else the creation time,
// else root/unknown/00.
func Bucket(root string, meta models.Metadata) string {
	t := meta.TakenAt
	if t.IsZero() {
		t = meta.ModifiedAt
	}
	if t.IsZero() {
		return filepath.Join(root, unknownBucket, "00")
	}

	return filepath.Join(root, fmt.Sprintf("%04d", t.Year()), fmt.Sprintf("%02d", int(t.Month())))
}
