package models

import (
	"strings"
	"time"
)

// Metadata is the set of values restored onto a media file. Zero values mean
// "absent".
type Metadata struct {
	TakenAt     time.Time
	ModifiedAt  time.Time
	Title       string
	Description string
	GPS         GeoLocation
	HasGPS      bool
}

func (m Metadata) Empty() bool {
	return m.TakenAt.IsZero() && m.ModifiedAt.IsZero() && m.Title == "" && m.Description == "" && !m.HasGPS
}

// Fields lists the restored fields, in a stable order, for reporting.
func (m Metadata) Fields() []string {
	var fields []string
	if !m.TakenAt.IsZero() {
		fields = append(fields, "taken")
	}
	if !m.ModifiedAt.IsZero() {
		fields = append(fields, "modified")
	}
	if m.Title != "" {
		fields = append(fields, "title")
	}
	if m.Description != "" {
		fields = append(fields, "description")
	}
	if m.HasGPS {
		fields = append(fields, "gps")
	}
	return fields
}

func (m Metadata) Summary() string {
	return strings.Join(m.Fields(), "+")
}

// WorkItem is built once by the builder and never modified afterwards; it is
// passed by value to the coordinator.
type WorkItem struct {
	SidecarPath string
	MediaPath   string
	Strategy    Strategy
	Metadata    Metadata
	// Destination is empty when the media file is updated in place.
	Destination   string
	ExtensionNote string
}

func (w WorkItem) InPlace() bool {
	return w.Destination == ""
}

// Target is the file the metadata writer operates on.
func (w WorkItem) Target() string {
	if w.InPlace() {
		return w.MediaPath
	}
	return w.Destination
}

type Outcome int

const (
	Success Outcome = iota
	SuccessWithWarning
	CopyFailed
	ToolFailed
	Exception
	DryRun
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case SuccessWithWarning:
		return "success_with_warning"
	case CopyFailed:
		return "copy_failed"
	case ToolFailed:
		return "tool_failed"
	case Exception:
		return "exception"
	case DryRun:
		return "dry_run"
	default:
		return "unknown"
	}
}

func (o Outcome) Succeeded() bool {
	return o == Success || o == SuccessWithWarning
}

type ExecutionResult struct {
	Item     WorkItem
	Outcome  Outcome
	ExitCode int
	Detail   string
	Duration time.Duration
}
