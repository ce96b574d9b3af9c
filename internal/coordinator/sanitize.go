package coordinator

import "strings"

// sanitizeFilename collapses a route title into a safe download filename
// stem (spec.md §6 "Content-Disposition: attachment;
// filename=\"<sanitized-title>.<ext>\""), truncated to 120 bytes and
// falling back to fallback (the itinerary ID) when the title sanitizes to
// empty.
func sanitizeFilename(title, fallback string) string {
	var b strings.Builder
	lastWasDash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastWasDash = false
		default:
			if !lastWasDash && b.Len() > 0 {
				b.WriteByte('-')
				lastWasDash = true
			}
		}
	}
	out := strings.TrimRight(b.String(), "-")
	if out == "" {
		return fallback
	}
	if len(out) > 120 {
		out = out[:120]
	}
	return out
}
