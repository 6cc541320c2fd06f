package parse

import (
	"fmt"
	"strconv"
	"strings"
)

// Location is a parsed "lat,long" pair.
type Location struct {
	Latitude  float64
	Longitude float64
}

// InRange reports whether the pair is a real coordinate.
func (l Location) InRange() bool {
	return l.Latitude >= -90 && l.Latitude <= 90 && l.Longitude >= -180 && l.Longitude <= 180
}

// ParseLocation splits raw on ',' into exactly two float components.
func ParseLocation(raw string) (Location, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return Location{}, fmt.Errorf("location %q must be \"lat,long\"", raw)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Location{}, fmt.Errorf("latitude in %q is not a float", raw)
	}
	long, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Location{}, fmt.Errorf("longitude in %q is not a float", raw)
	}
	return Location{Latitude: lat, Longitude: long}, nil
}
