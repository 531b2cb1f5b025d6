package exiftool

import (
	"math"
	"strconv"
	"strings"

	"github.com/fedragon/go-sidecar/internal/models"
)

const (
	exifTimeLayout = "2006:01:02 15:04:05"
	fileTimeLayout = "2006:01:02 15:04:05-07:00"
)

// Args builds the argument list for restoring meta onto target. The target
// is always the last argument.
func Args(meta models.Metadata, target string, overwrite bool) []string {
	args := []string{"-charset", "filename=utf8"}
	if overwrite {
		args = append(args, "-overwrite_original")
	}

	var tags []string
	if !meta.TakenAt.IsZero() {
		taken := meta.TakenAt.UTC().Format(exifTimeLayout)
		tags = append(tags, tag("DateTimeOriginal", taken), tag("CreateDate", taken))
	}
	if !meta.ModifiedAt.IsZero() {
		tags = append(tags,
			tag("ModifyDate", meta.ModifiedAt.UTC().Format(exifTimeLayout)),
			tag("FileModifyDate", meta.ModifiedAt.UTC().Format(fileTimeLayout)),
		)
	}
	if meta.Title != "" {
		tags = append(tags, tag("XMP-dc:Title", meta.Title))
	}
	if meta.Description != "" {
		tags = append(tags, tag("ImageDescription", meta.Description), tag("XMP-dc:Description", meta.Description))
	}
	if meta.HasGPS {
		tags = append(tags, gpsTags(meta.GPS)...)
	}

	// argfile lines cannot hold a newline: switch to C-style escapes
	if needsEscape(tags) {
		args = append(args, "-ec")
		for i := range tags {
			tags[i] = escape(tags[i])
		}
	}

	args = append(args, tags...)
	return append(args, target)
}

func tag(name, value string) string {
	return "-" + name + "=" + value
}

func gpsTags(g models.GeoLocation) []string {
	latRef, lonRef := "N", "E"
	if g.Latitude < 0 {
		latRef = "S"
	}
	if g.Longitude < 0 {
		lonRef = "W"
	}

	tags := []string{
		tag("GPSLatitude", formatFloat(math.Abs(g.Latitude))),
		tag("GPSLatitudeRef", latRef),
		tag("GPSLongitude", formatFloat(math.Abs(g.Longitude))),
		tag("GPSLongitudeRef", lonRef),
	}

	if g.Altitude != 0 {
		altRef := "0"
		if g.Altitude < 0 {
			altRef = "1"
		}
		tags = append(tags,
			tag("GPSAltitude", formatFloat(math.Abs(g.Altitude))),
			tag("GPSAltitudeRef", altRef),
		)
	}

	return tags
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func needsEscape(tags []string) bool {
	for _, t := range tags {
		if strings.ContainsAny(t, "\r\n") {
			return true
		}
	}
	return false
}

var escaper = strings.NewReplacer(`\`, `\\`, "\r\n", `\n`, "\n", `\n`, "\r", `\n`)

func escape(s string) string {
	return escaper.Replace(s)
}
