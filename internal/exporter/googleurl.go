package exporter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ridetrace/itinerary-coordinator/internal/routedoc"
)

// GooglePointLimit is the maximum waypoint count a Google Maps directions
// URL can encode.
const GooglePointLimit = 25

// GoogleURL builds a Google Maps directions URL (spec.md §4.2). Google
// expects lat,lon ordering — the opposite of Mapy's lon,lat contract.
func GoogleURL(d *routedoc.Document) (string, error) {
	coords, err := sampledCoordinates(d, GooglePointLimit)
	if err != nil {
		return "", err
	}

	origin := coords[0]
	destination := coords[len(coords)-1]
	middle := coords[1 : len(coords)-1]

	if len(middle) == 0 {
		return fmt.Sprintf("https://www.google.com/maps/dir/?api=1&origin=%s&destination=%s&travelmode=driving",
			formatLatLon(origin), formatLatLon(destination)), nil
	}

	parts := make([]string, len(middle))
	for i, c := range middle {
		parts[i] = formatLatLon(c)
	}
	return fmt.Sprintf("https://www.google.com/maps/dir/?api=1&origin=%s&destination=%s&waypoints=%s&travelmode=driving",
		formatLatLon(origin), formatLatLon(destination), strings.Join(parts, "|")), nil
}

func formatLatLon(c routedoc.Coordinate) string {
	return strconv.FormatFloat(c.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lon, 'f', -1, 64)
}
