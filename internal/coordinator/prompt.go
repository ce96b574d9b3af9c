package coordinator

import (
	"fmt"
	"sync"
)

// buildPrompt resolves the note body and preferences into the text handed
// to the AI Invoker (spec.md §4.1 "Build the prompt from note body +
// resolved preferences"). Prompt engineering itself is a non-goal (spec.md
// §1); this is a direct, unadorned template.
func buildPrompt(noteBody string, prefs Preferences) string {
	return fmt.Sprintf(
		"Ride note:\n%s\n\nRider preferences:\n- terrain: %s\n- road type: %s\n- typical duration (hours): %.1f\n- typical distance (km): %.1f\n",
		noteBody, prefs.Terrain, prefs.RoadType, prefs.TypicalDurationH, prefs.TypicalDistanceKm,
	)
}

// promptCache holds prompts built at Generate time, keyed by itinerary_id,
// until the worker that processes the job consumes and deletes them.
type promptCache struct {
	mu      sync.Mutex
	prompts map[string]string
}

func newPromptCache() *promptCache {
	return &promptCache{prompts: make(map[string]string)}
}

func (p *promptCache) set(itineraryID, prompt string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts[itineraryID] = prompt
}

func (p *promptCache) take(itineraryID string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	prompt := p.prompts[itineraryID]
	delete(p.prompts, itineraryID)
	return prompt
}
