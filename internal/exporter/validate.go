package exporter

import "github.com/ridetrace/itinerary-coordinator/internal/routedoc"

// ValidateIngest re-exports routedoc.Validate under the name the
// Coordinator calls, applied to a Document returned by the AI Invoker (spec.md §4.2 "Validation (on ingest from AI)").
func ValidateIngest(d *routedoc.Document) error {
	return routedoc.Validate(d)
}
