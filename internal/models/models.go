package models

import "time"

type MediaFile struct {
	Path    string
	Name    string
	Base    string
	Dir     string
	ModTime time.Time
	Err     error `json:"-"`
}

// GeoLocation with both Latitude and Longitude exactly zero is the exporter's
// placeholder for "no data".
type GeoLocation struct {
	Latitude  float64
	Longitude float64
	Altitude  float64
}

func (g *GeoLocation) Present() bool {
	return g != nil && !(g.Latitude == 0 && g.Longitude == 0)
}

type SidecarRecord struct {
	Path             string
	Title            string
	OriginalFilename string
	CapturedAt       *time.Time
	CreatedAt        *time.Time
	Description      string
	Geo              *GeoLocation
	GeoFallback      *GeoLocation
}

// Location returns the primary geolocation, falling back to the secondary
// source when the primary one is absent.
func (r SidecarRecord) Location() *GeoLocation {
	if r.Geo.Present() {
		return r.Geo
	}
	if r.GeoFallback.Present() {
		return r.GeoFallback
	}
	return nil
}
