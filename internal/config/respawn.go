package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/udisondev/saferespawn/internal/model"
)

// LocationSettings configures one safe respawn location.
type LocationSettings struct {
	Enabled  bool          `yaml:"enabled"`
	Label    string        `yaml:"label"`
	Cooldown time.Duration `yaml:"cooldown"`
	Offset   model.Vec3    `yaml:"offset"`

	// Keywords are matched as substrings of the lowercased landmark name.
	Keywords []string `yaml:"keywords"`
	// PreferredLandmark picks a landmark by exact name when several match.
	PreferredLandmark string `yaml:"preferred_landmark"`

	Color   string `yaml:"color"`
	IconURL string `yaml:"icon_url"`
}

// VitalSetting is one optional post-respawn override.
type VitalSetting struct {
	Enabled bool    `yaml:"enabled"`
	Value   float64 `yaml:"value"`
}

// Vitals holds health/food/water overrides.
type Vitals struct {
	Health VitalSetting `yaml:"health"`
	Food   VitalSetting `yaml:"food"`
	Water  VitalSetting `yaml:"water"`
}

// Model converts enabled settings to model.Vitals.
func (v Vitals) Model() model.Vitals {
	var out model.Vitals
	if v.Health.Enabled {
		h := v.Health.Value
		out.Health = &h
	}
	if v.Food.Enabled {
		f := v.Food.Value
		out.Food = &f
	}
	if v.Water.Enabled {
		w := v.Water.Value
		out.Water = &w
	}
	return out
}

// Hostility configures temporary hostility suppression after a safe respawn.
type Hostility struct {
	Enabled  bool          `yaml:"enabled"`
	Duration time.Duration `yaml:"duration"`
}

// Respawn holds the safe respawn rules.
type Respawn struct {
	Outpost LocationSettings `yaml:"outpost"`
	Bandit  LocationSettings `yaml:"bandit"`

	HeightAboveGround float64 `yaml:"height_above_ground"`

	// RevealDelays are chained: each delay starts when the previous reveal fired.
	RevealDelays    []time.Duration `yaml:"reveal_delays"`
	RefreshInterval time.Duration   `yaml:"refresh_interval"`

	Vitals    Vitals    `yaml:"vitals"`
	Hostility Hostility `yaml:"hostility"`
}

// DefaultRespawn returns the stock rules: outpost only, 120s cooldown.
func DefaultRespawn() Respawn {
	return Respawn{
		Outpost: LocationSettings{
			Enabled:  true,
			Label:    "OUTPOST",
			Cooldown: 120 * time.Second,
			Offset:   model.NewVec3(0, 0, -23),
			Keywords: []string{"outpost", "compound"},
			Color:    "0.42 0.55 0.24 1",
		},
		Bandit: LocationSettings{
			Enabled:  false,
			Label:    "BANDIT",
			Cooldown: 120 * time.Second,
			Offset:   model.NewVec3(0, 0, -25),
			Keywords: []string{"bandit"},
			Color:    "0.55 0.42 0.24 1",
		},
		HeightAboveGround: 0.3,
		RevealDelays:      []time.Duration{4 * time.Second, 500 * time.Millisecond, 500 * time.Millisecond},
		RefreshInterval:   time.Second,
		Vitals: Vitals{
			Health: VitalSetting{Enabled: true, Value: 100},
			Food:   VitalSetting{Enabled: true, Value: 300},
			Water:  VitalSetting{Enabled: true, Value: 200},
		},
		Hostility: Hostility{
			Enabled:  false,
			Duration: 5 * time.Second,
		},
	}
}

// Location returns settings for loc.
func (r Respawn) Location(loc model.Location) (LocationSettings, bool) {
	switch loc {
	case model.LocationOutpost:
		return r.Outpost, true
	case model.LocationBandit:
		return r.Bandit, true
	default:
		return LocationSettings{}, false
	}
}

// Enabled returns enabled locations in display order.
func (r Respawn) Enabled() []model.Location {
	out := make([]model.Location, 0, 2)
	for _, loc := range model.Locations() {
		if s, ok := r.Location(loc); ok && s.Enabled {
			out = append(out, loc)
		}
	}
	return out
}

// Windows returns the cooldown window of every location.
func (r Respawn) Windows() map[model.Location]time.Duration {
	out := make(map[model.Location]time.Duration, 2)
	for _, loc := range model.Locations() {
		s, _ := r.Location(loc)
		out[loc] = s.Cooldown
	}
	return out
}

// Validate checks the respawn rules.
func (r Respawn) Validate() error {
	var errs []error

	for _, loc := range model.Locations() {
		s, _ := r.Location(loc)
		if s.Cooldown < 0 {
			errs = append(errs, fmt.Errorf("respawn.%s.cooldown must not be negative", loc))
		}
		if s.Enabled && len(s.Keywords) == 0 {
			errs = append(errs, fmt.Errorf("respawn.%s.keywords must not be empty", loc))
		}
	}
	if r.RefreshInterval <= 0 {
		errs = append(errs, errors.New("respawn.refresh_interval must be positive"))
	}
	for i, d := range r.RevealDelays {
		if d < 0 {
			errs = append(errs, fmt.Errorf("respawn.reveal_delays[%d] must not be negative", i))
		}
	}
	if r.Hostility.Enabled && r.Hostility.Duration <= 0 {
		errs = append(errs, errors.New("respawn.hostility.duration must be positive"))
	}

	return errors.Join(errs...)
}
