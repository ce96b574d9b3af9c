package exporter

import (
	"encoding/json"
	"fmt"

	"github.com/ridetrace/itinerary-coordinator/internal/routedoc"
)

type geoJSONFeatureCollection struct {
	Type       string            `json:"type"`
	Properties geoJSONProperties `json:"properties"`
	Features   []geoJSONFeature  `json:"features"`
}

type geoJSONProperties struct {
	Title           string   `json:"title"`
	TotalDistanceKm float64  `json:"total_distance_km"`
	TotalDurationH  float64  `json:"total_duration_h"`
	Highlights      []string `json:"highlights"`
	Days            int      `json:"days"`
}

type geoJSONFeature struct {
	Type       string               `json:"type"`
	Geometry   geoJSONGeometry      `json:"geometry"`
	Properties geoJSONFeatureProps `json:"properties"`
}

type geoJSONGeometry struct {
	Type        string      `json:"type"`
	Coordinates interface{} `json:"coordinates"`
}

type geoJSONFeatureProps struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Day         int     `json:"day"`
	Segment     int     `json:"segment,omitempty"`
	DistanceKm  float64 `json:"distance_km,omitempty"`
	DurationH   float64 `json:"duration_h,omitempty"`
	Kind        string  `json:"kind,omitempty"`
}

// GeoJSON renders a routedoc.Document as a GeoJSON FeatureCollection, with
// property keys and feature ordering mirroring the in-memory document
// exactly so the round trip (GeoJSON -> routedoc.Document) is lossless
// modulo float formatting.
func GeoJSON(d *routedoc.Document) ([]byte, error) {
	if d == nil {
		return nil, fmt.Errorf("exporter: nil document")
	}

	fc := geoJSONFeatureCollection{
		Type: "FeatureCollection",
		Properties: geoJSONProperties{
			Title:           d.Properties.Title,
			TotalDistanceKm: d.Properties.TotalDistanceKm,
			TotalDurationH:  d.Properties.TotalDurationH,
			Highlights:      d.Properties.Highlights,
			Days:            d.Properties.Days,
		},
	}

	for _, f := range d.Features {
		switch f.Kind {
		case routedoc.KindLineString:
			coords := make([][2]float64, len(f.Coordinates))
			for i, c := range f.Coordinates {
				coords[i] = [2]float64{c.Lon, c.Lat}
			}
			fc.Features = append(fc.Features, geoJSONFeature{
				Type:     "Feature",
				Geometry: geoJSONGeometry{Type: "LineString", Coordinates: coords},
				Properties: geoJSONFeatureProps{
					Name: f.Name, Description: f.Description, Day: f.Day,
					Segment: f.Segment, DistanceKm: f.DistanceKm, DurationH: f.DurationH,
				},
			})
		case routedoc.KindPoint:
			fc.Features = append(fc.Features, geoJSONFeature{
				Type:     "Feature",
				Geometry: geoJSONGeometry{Type: "Point", Coordinates: [2]float64{f.Coordinate.Lon, f.Coordinate.Lat}},
				Properties: geoJSONFeatureProps{
					Name: f.Name, Description: f.Description, Day: f.Day, Kind: f.PointKind,
				},
			})
		}
	}

	return json.Marshal(fc)
}

// ParseGeoJSON reverses GeoJSON, reconstructing a routedoc.Document. Used by
// round-trip tests (spec.md §8: "GeoJSON round-trip is lossless").
func ParseGeoJSON(data []byte) (*routedoc.Document, error) {
	var fc geoJSONFeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("exporter: parse geojson: %w", err)
	}

	d := &routedoc.Document{
		Properties: routedoc.Properties{
			Title:           fc.Properties.Title,
			TotalDistanceKm: fc.Properties.TotalDistanceKm,
			TotalDurationH:  fc.Properties.TotalDurationH,
			Highlights:      fc.Properties.Highlights,
			Days:            fc.Properties.Days,
		},
	}

	for _, gf := range fc.Features {
		switch gf.Geometry.Type {
		case "LineString":
			raw, ok := gf.Geometry.Coordinates.([]interface{})
			if !ok {
				return nil, fmt.Errorf("exporter: malformed LineString coordinates")
			}
			coords := make([]routedoc.Coordinate, 0, len(raw))
			for _, pt := range raw {
				pair, ok := pt.([]interface{})
				if !ok || len(pair) != 2 {
					return nil, fmt.Errorf("exporter: malformed coordinate pair")
				}
				lon, _ := pair[0].(float64)
				lat, _ := pair[1].(float64)
				coords = append(coords, routedoc.Coordinate{Lon: lon, Lat: lat})
			}
			d.Features = append(d.Features, routedoc.Feature{
				Kind: routedoc.KindLineString, Coordinates: coords,
				Name: gf.Properties.Name, Description: gf.Properties.Description,
				Day: gf.Properties.Day, Segment: gf.Properties.Segment,
				DistanceKm: gf.Properties.DistanceKm, DurationH: gf.Properties.DurationH,
			})
		case "Point":
			pair, ok := gf.Geometry.Coordinates.([]interface{})
			if !ok || len(pair) != 2 {
				return nil, fmt.Errorf("exporter: malformed Point coordinates")
			}
			lon, _ := pair[0].(float64)
			lat, _ := pair[1].(float64)
			d.Features = append(d.Features, routedoc.Feature{
				Kind: routedoc.KindPoint, Coordinate: routedoc.Coordinate{Lon: lon, Lat: lat},
				Name: gf.Properties.Name, Description: gf.Properties.Description,
				Day: gf.Properties.Day, PointKind: gf.Properties.Kind,
			})
		default:
			return nil, fmt.Errorf("exporter: unknown geometry type %q", gf.Geometry.Type)
		}
	}

	return d, nil
}
