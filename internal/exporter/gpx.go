// Package exporter implements the pure, I/O-free functions that turn a
// routedoc.Document into GPX, GeoJSON, and the two quick-preview map URLs.
package exporter

import (
	"fmt"
	"strings"

	"github.com/ridetrace/itinerary-coordinator/internal/routedoc"
)

const coordinatePrecision = 6

// GPX renders a routedoc.Document as GPX 1.1 text: one <trk> per day, one
// <trkseg> per segment within that day, Point features as top-level <wpt>.
func GPX(d *routedoc.Document) (string, error) {
	if d == nil {
		return "", fmt.Errorf("exporter: nil document")
	}

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<gpx version="1.1" creator="itinerary-coordinator" xmlns="http://www.topografix.com/GPX/1/1">` + "\n")

	b.WriteString("<metadata>\n")
	fmt.Fprintf(&b, "<name>%s</name>\n", escapeXML(d.Properties.Title))
	fmt.Fprintf(&b, "<desc>%s</desc>\n", escapeXML(summaryText(d.Properties)))
	b.WriteString("</metadata>\n")

	for _, p := range d.Points() {
		b.WriteString("<wpt lat=\"" + formatCoord(p.Coordinate.Lat) + "\" lon=\"" + formatCoord(p.Coordinate.Lon) + "\">\n")
		fmt.Fprintf(&b, "<name>%s</name>\n", escapeXML(p.Name))
		if p.Description != "" {
			fmt.Fprintf(&b, "<desc>%s</desc>\n", escapeXML(p.Description))
		}
		b.WriteString("</wpt>\n")
	}

	currentDay := 0
	inTrack := false
	for _, f := range d.LineStrings() {
		if f.Day != currentDay {
			if inTrack {
				b.WriteString("</trk>\n")
			}
			fmt.Fprintf(&b, "<trk>\n<name>Day %d</name>\n", f.Day)
			currentDay = f.Day
			inTrack = true
		}

		b.WriteString("<trkseg>\n")
		for _, c := range f.Coordinates {
			b.WriteString("<trkpt lat=\"" + formatCoord(c.Lat) + "\" lon=\"" + formatCoord(c.Lon) + "\"/>\n")
		}
		b.WriteString("</trkseg>\n")
	}
	if inTrack {
		b.WriteString("</trk>\n")
	}

	b.WriteString("</gpx>\n")
	return b.String(), nil
}

func formatCoord(v float64) string {
	return fmt.Sprintf("%.*f", coordinatePrecision, v)
}

func escapeXML(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)
	return r.Replace(s)
}

func summaryText(p routedoc.Properties) string {
	return fmt.Sprintf("%.1f km, %.1f h, %d day(s)", p.TotalDistanceKm, p.TotalDurationH, p.Days)
}
