package model

import (
	"errors"
	"fmt"
	"strings"
)

// Location is the tag of a safe respawn location ("outpost", "bandit").
// Value type, used as a map key for cooldowns and spawn points.
type Location string

const (
	LocationOutpost Location = "outpost"
	LocationBandit  Location = "bandit"
)

// DefaultLocation is used when a spawn command carries no argument.
const DefaultLocation = LocationOutpost

// ErrUnknownLocation is returned by ParseLocation for unsupported tags.
var ErrUnknownLocation = errors.New("unknown respawn location")

// Locations returns all known locations in display order.
func Locations() []Location {
	return []Location{LocationOutpost, LocationBandit}
}

// ParseLocation parses a location tag case-insensitively.
// Empty input resolves to DefaultLocation.
func ParseLocation(s string) (Location, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultLocation, nil
	}

	for _, loc := range Locations() {
		if string(loc) == s {
			return loc, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownLocation, s)
}

// String returns the tag.
func (l Location) String() string {
	return string(l)
}
