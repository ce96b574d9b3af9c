package exporter

import "github.com/ridetrace/itinerary-coordinator/internal/routedoc"

// Summary mirrors routedoc.Properties for read surfaces (note lists) that
// need the aggregate fields without the full geometry — spec.md §4.2's
// "ExtractedSummary helper".
type Summary struct {
	Title           string   `json:"title"`
	TotalDistanceKm float64  `json:"total_distance_km"`
	TotalDurationH  float64  `json:"total_duration_h"`
	Highlights      []string `json:"highlights"`
}

// ExtractSummary derives a Summary from a Document's properties so callers
// never persist a second copy of this data.
func ExtractSummary(d *routedoc.Document) Summary {
	return Summary{
		Title:           d.Properties.Title,
		TotalDistanceKm: d.Properties.TotalDistanceKm,
		TotalDurationH:  d.Properties.TotalDurationH,
		Highlights:      d.Properties.Highlights,
	}
}
