package model

import "strconv"

// PlayerID is the host's stable player identifier (e.g. a Steam ID).
type PlayerID uint64

// String returns the decimal form used by permission lookups.
func (id PlayerID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParsePlayerID parses the decimal form.
func ParsePlayerID(s string) (PlayerID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return PlayerID(v), nil
}

// Vitals overrides applied after a successful respawn.
// Nil field leaves the host value untouched.
type Vitals struct {
	Health *float64 `json:"health,omitempty"`
	Food   *float64 `json:"food,omitempty"`
	Water  *float64 `json:"water,omitempty"`
}

// IsEmpty reports whether no override is set.
func (v Vitals) IsEmpty() bool {
	return v.Health == nil && v.Food == nil && v.Water == nil
}
