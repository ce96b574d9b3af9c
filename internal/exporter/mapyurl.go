package exporter

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ridetrace/itinerary-coordinator/internal/routedoc"
)

// ErrTooManyPoints is returned by the URL builders when the limit passed in
// cannot sensibly be sampled (below 2 points) — mapped by the coordinator to
// the too_many_points error kind.
var ErrTooManyPoints = errors.New("exporter: route exceeds provider point limit")

// MapyPointLimit is the maximum waypoint count a Mapy.com URL can encode.
const MapyPointLimit = 15

// MapyURL builds a https://mapy.com/... route URL (spec.md §4.2). Mapy
// expects lon,lat ordering.
func MapyURL(d *routedoc.Document) (string, error) {
	coords, err := sampledCoordinates(d, MapyPointLimit)
	if err != nil {
		return "", err
	}

	start := coords[0]
	end := coords[len(coords)-1]
	middle := coords[1 : len(coords)-1]

	if len(middle) == 0 {
		return fmt.Sprintf("https://mapy.com/fnc/v1/route?start=%s&end=%s&routeType=car_fast",
			formatLonLat(start), formatLonLat(end)), nil
	}

	parts := make([]string, len(middle))
	for i, c := range middle {
		parts[i] = formatLonLat(c)
	}
	return fmt.Sprintf("https://mapy.com/fnc/v1/route?start=%s&end=%s&waypoints=%s&routeType=car_fast",
		formatLonLat(start), formatLonLat(end), strings.Join(parts, ";")), nil
}

func sampledCoordinates(d *routedoc.Document, limit int) ([]routedoc.Coordinate, error) {
	if limit < 2 {
		return nil, ErrTooManyPoints
	}
	flat := d.FlattenCoordinates()
	if len(flat) < 2 {
		return nil, fmt.Errorf("exporter: route needs at least 2 coordinates")
	}
	return downsample(flat, limit), nil
}

func formatLonLat(c routedoc.Coordinate) string {
	return strconv.FormatFloat(c.Lon, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lat, 'f', -1, 64)
}
