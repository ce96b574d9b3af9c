// Package routedoc defines the canonical in-memory Route Document — the
// representation every export format (GPX, GeoJSON, Mapy, Google) derives
// from, and the shape the AI Invoker must produce.
package routedoc

import (
	"errors"
	"fmt"
	"math"
)

// Document is the canonical route representation: a feature collection of
// line segments and points of interest plus aggregate properties.
type Document struct {
	Properties Properties `json:"properties"`
	Features   []Feature  `json:"features"`
}

// Properties carries the aggregate, derived values an AI generation produces
// alongside the geometry.
type Properties struct {
	Title           string   `json:"title"`
	TotalDistanceKm float64  `json:"total_distance_km"`
	TotalDurationH  float64  `json:"total_duration_h"`
	Highlights      []string `json:"highlights"`
	Days            int      `json:"days"`
}

// FeatureKind distinguishes the two feature shapes a Document can hold.
type FeatureKind string

const (
	KindLineString FeatureKind = "line_string"
	KindPoint      FeatureKind = "point"
)

// Coordinate is a WGS84 (longitude, latitude) pair. Field order matches the
// GeoJSON convention (lon, lat), which is the opposite of Google's lat,lon
// URL contract — a deliberate asymmetry, not an oversight.
type Coordinate struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Feature is either a LineString route segment or a Point of interest.
// Exactly one of the two geometry fields is populated, selected by Kind.
type Feature struct {
	Kind FeatureKind `json:"kind"`

	// LineString fields.
	Coordinates []Coordinate `json:"coordinates,omitempty"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Day         int          `json:"day"`
	Segment     int          `json:"segment,omitempty"`
	DistanceKm  float64      `json:"distance_km,omitempty"`
	DurationH   float64      `json:"duration_h,omitempty"`

	// Point fields.
	Coordinate Coordinate `json:"coordinate,omitempty"`
	PointKind  string     `json:"point_kind,omitempty"`
}

// Errors returned by Validate. Callers should map ErrInvalidDocument (and
// its wrapped detail) to the coordinator's invalid_route error kind.
var (
	ErrInvalidDocument = errors.New("invalid route document")
)

// Validate enforces every Route Document invariant from spec.md §3/§4.2:
// ordering, segment touching, coordinate bounds, no NaN/Inf, positive
// distances/durations, and a minimum of two coordinates per LineString.
// It returns an error wrapping ErrInvalidDocument with a human-readable
// reason on the first violation found.
func Validate(d *Document) error {
	if d == nil {
		return fmt.Errorf("%w: nil document", ErrInvalidDocument)
	}
	if len(d.Features) == 0 {
		return fmt.Errorf("%w: no features", ErrInvalidDocument)
	}

	lastDay, lastSegment := 0, 0
	first := true
	var pendingTail *Coordinate // last coordinate of the previous segment within the same day

	for i, f := range d.Features {
		switch f.Kind {
		case KindLineString:
			if f.Day < 1 {
				return fmt.Errorf("%w: feature %d: day must be >= 1", ErrInvalidDocument, i)
			}
			if f.Segment < 1 {
				return fmt.Errorf("%w: feature %d: segment must be >= 1", ErrInvalidDocument, i)
			}
			if len(f.Coordinates) < 2 {
				return fmt.Errorf("%w: feature %d: line string needs >= 2 coordinates", ErrInvalidDocument, i)
			}
			if f.DistanceKm <= 0 {
				return fmt.Errorf("%w: feature %d: distance_km must be > 0", ErrInvalidDocument, i)
			}
			if f.DurationH <= 0 {
				return fmt.Errorf("%w: feature %d: duration_h must be > 0", ErrInvalidDocument, i)
			}
			for j, c := range f.Coordinates {
				if err := validateCoordinate(c); err != nil {
					return fmt.Errorf("%w: feature %d coordinate %d: %v", ErrInvalidDocument, i, j, err)
				}
			}

			if !first {
				if f.Day < lastDay || (f.Day == lastDay && f.Segment < lastSegment) {
					return fmt.Errorf("%w: feature %d: ordering violation, want (day asc, segment asc)", ErrInvalidDocument, i)
				}
				if f.Day == lastDay && pendingTail != nil {
					head := f.Coordinates[0]
					if head != *pendingTail {
						return fmt.Errorf("%w: feature %d: segment does not touch previous segment's tail", ErrInvalidDocument, i)
					}
				}
			}

			tail := f.Coordinates[len(f.Coordinates)-1]
			pendingTail = &tail
			lastDay, lastSegment = f.Day, f.Segment
			first = false

		case KindPoint:
			if f.Day < 1 {
				return fmt.Errorf("%w: feature %d: day must be >= 1", ErrInvalidDocument, i)
			}
			if err := validateCoordinate(f.Coordinate); err != nil {
				return fmt.Errorf("%w: feature %d: %v", ErrInvalidDocument, i, err)
			}

		default:
			return fmt.Errorf("%w: feature %d: unknown kind %q", ErrInvalidDocument, i, f.Kind)
		}
	}

	return nil
}

func validateCoordinate(c Coordinate) error {
	if math.IsNaN(c.Lon) || math.IsInf(c.Lon, 0) || math.IsNaN(c.Lat) || math.IsInf(c.Lat, 0) {
		return fmt.Errorf("non-finite coordinate")
	}
	if c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("longitude %f out of range", c.Lon)
	}
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("latitude %f out of range", c.Lat)
	}
	return nil
}

// LineStrings returns only the LineString features, already in document
// (day, segment) order.
func (d *Document) LineStrings() []Feature {
	var out []Feature
	for _, f := range d.Features {
		if f.Kind == KindLineString {
			out = append(out, f)
		}
	}
	return out
}

// Points returns only the Point-of-interest features.
func (d *Document) Points() []Feature {
	var out []Feature
	for _, f := range d.Features {
		if f.Kind == KindPoint {
			out = append(out, f)
		}
	}
	return out
}

// FlattenCoordinates produces a single ordered coordinate sequence across
// all LineString features, deduplicating the junction point where one
// segment's tail matches the next segment's head (spec.md §4.2 step 1-2).
func (d *Document) FlattenCoordinates() []Coordinate {
	var out []Coordinate
	for _, f := range d.LineStrings() {
		if len(out) > 0 && out[len(out)-1] == f.Coordinates[0] {
			out = append(out, f.Coordinates[1:]...)
		} else {
			out = append(out, f.Coordinates...)
		}
	}
	return out
}
