package exporter

import "github.com/ridetrace/itinerary-coordinator/internal/routedoc"

// downsample uniformly reduces coords to exactly limit points by index,
// always preserving the first and last point (spec.md §4.2 step 4, §8
// "index-monotonic in the source": pair k has source index
// round(k * (n-1) / (limit-1))).
func downsample(coords []routedoc.Coordinate, limit int) []routedoc.Coordinate {
	n := len(coords)
	if n <= limit {
		return coords
	}
	if limit < 2 {
		limit = 2
	}

	out := make([]routedoc.Coordinate, limit)
	for k := 0; k < limit; k++ {
		idx := roundDiv(k*(n-1), limit-1)
		out[k] = coords[idx]
	}
	return out
}

// roundDiv computes round(a/b) for non-negative a, positive b using integer
// arithmetic only.
func roundDiv(a, b int) int {
	return (a + b/2) / b
}
