package coordinator

import "context"

// Preferences is the resolved per-note routing preference set (spec.md §4.1
// step 2). Profile CRUD itself is conventional glue out of scope for this
// subsystem; ProfileProvider is the narrow seam the Coordinator depends on.
type Preferences struct {
	Terrain            string
	RoadType           string
	TypicalDurationH   float64
	TypicalDistanceKm  float64
	terrainSet         bool
	roadTypeSet        bool
	typicalDurationSet bool
	typicalDistanceSet bool
}

// Complete reports whether every field required for prompt resolution is
// present (spec.md §4.1 step 2: "non-null terrain, road type, typical
// duration, typical distance").
func (p Preferences) Complete() bool {
	return p.terrainSet && p.roadTypeSet && p.typicalDurationSet && p.typicalDistanceSet
}

// NewPreferences builds a Preferences value with every field marked present.
// Use the zero value (Preferences{}) to represent an incomplete profile.
func NewPreferences(terrain, roadType string, typicalDurationH, typicalDistanceKm float64) Preferences {
	return Preferences{
		Terrain: terrain, RoadType: roadType,
		TypicalDurationH: typicalDurationH, TypicalDistanceKm: typicalDistanceKm,
		terrainSet: true, roadTypeSet: true, typicalDurationSet: true, typicalDistanceSet: true,
	}
}

// ProfileProvider resolves a note's effective preferences: per-note
// overrides falling back to profile defaults falling back to built-in
// defaults (spec.md §4.1 "Build the prompt").
type ProfileProvider interface {
	ResolvePreferences(ctx context.Context, ownerID, noteID string) (Preferences, error)
}

// NoteInfo is the subset of note state the Coordinator needs.
type NoteInfo struct {
	Body     string
	Archived bool
}

// NoteProvider answers note existence, ownership, and archival checks
// (spec.md §4.1 step 3). Returns ErrNoteNotFound when the note doesn't
// exist or isn't owned by ownerID — the two cases the Coordinator must
// not distinguish to the caller.
type NoteProvider interface {
	GetNote(ctx context.Context, ownerID, noteID string) (NoteInfo, error)
}

// ErrNoteNotFound is returned by NoteProvider when the note doesn't exist
// or isn't owned by the caller.
var ErrNoteNotFound = noteNotFoundError{}

type noteNotFoundError struct{}

func (noteNotFoundError) Error() string { return "note not found" }
