// Package landmark resolves named world landmarks into ground-clamped
// spawn points.
package landmark

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/udisondev/saferespawn/internal/model"
)

// ErrNoLandmarks is returned when no rule matched any landmark.
var ErrNoLandmarks = errors.New("no safe zone landmark found")

// Terrain answers ground height queries at a horizontal position.
type Terrain interface {
	GroundHeight(ctx context.Context, x, z float64) (float64, error)
}

// Rule maps landmark names to a respawn location.
type Rule struct {
	Location model.Location
	// Keywords are lowercase substrings tested against the lowercased name.
	Keywords []string
	// Preferred wins over other candidates when the names match exactly.
	Preferred string
	Offset    model.Vec3
}

// Matches reports whether name contains any keyword.
func (r Rule) Matches(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range r.Keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// Result holds the resolved spawn points by location.
type Result map[model.Location]model.SpawnPoint

// Resolver turns a landmark list into spawn points.
// Stateless; safe for concurrent use.
type Resolver struct {
	rules     []Rule
	clearance float64
}

// NewResolver creates a resolver. Rule order decides which rule claims a
// landmark matching several rules.
func NewResolver(rules []Rule, clearance float64) *Resolver {
	return &Resolver{
		rules:     slices.Clone(rules),
		clearance: clearance,
	}
}

// Resolve scans landmarks once and computes a spawn point per matched rule:
// anchor + offset, with the vertical coordinate replaced by
// ground height + clearance.
//
// Selection does not depend on the host's enumeration order: the rule's
// preferred landmark wins, otherwise the candidate with the smallest
// (lowercased name, X, Z).
//
// Any terrain error aborts resolution; no partial result is returned.
func (r *Resolver) Resolve(ctx context.Context, landmarks []model.Landmark, terrain Terrain) (Result, error) {
	candidates := make([][]model.Landmark, len(r.rules))

	for _, lm := range landmarks {
		for i, rule := range r.rules {
			if rule.Matches(lm.Name) {
				candidates[i] = append(candidates[i], lm)
				break
			}
		}
	}

	result := make(Result, len(r.rules))
	for i, rule := range r.rules {
		if len(candidates[i]) == 0 {
			slog.Debug("no landmark for location", "location", rule.Location)
			continue
		}

		anchor := pickAnchor(rule, candidates[i])
		if len(candidates[i]) > 1 {
			slog.Warn("several landmarks match location, using one",
				"location", rule.Location,
				"candidates", len(candidates[i]),
				"chosen", anchor.Name)
		}

		point := anchor.Position.Add(rule.Offset)
		ground, err := terrain.GroundHeight(ctx, point.X, point.Z)
		if err != nil {
			return nil, fmt.Errorf("querying ground height for %s at %v: %w", rule.Location, point, err)
		}
		point = point.WithY(ground + r.clearance)

		result[rule.Location] = model.SpawnPoint{
			Location: rule.Location,
			Anchor:   anchor,
			Position: point,
		}

		slog.Info("spawn point resolved",
			"location", rule.Location,
			"landmark", anchor.Name,
			"anchor", anchor.Position,
			"spawn", point)
	}

	if len(result) == 0 {
		return nil, fmt.Errorf("%w among %d landmarks", ErrNoLandmarks, len(landmarks))
	}
	return result, nil
}

func pickAnchor(rule Rule, candidates []model.Landmark) model.Landmark {
	if rule.Preferred != "" {
		for _, lm := range candidates {
			if strings.EqualFold(lm.Name, rule.Preferred) {
				return lm
			}
		}
	}

	return slices.MinFunc(candidates, func(a, b model.Landmark) int {
		return cmp.Or(
			cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)),
			cmp.Compare(a.Position.X, b.Position.X),
			cmp.Compare(a.Position.Z, b.Position.Z),
		)
	})
}
