package model

// Landmark is a named point of interest reported by the host world
// (e.g. "assets/bundled/prefabs/autospawn/monument/medium/compound.prefab").
type Landmark struct {
	Name     string `json:"name"`
	Position Vec3   `json:"position"`
}

// SpawnPoint is a ground-clamped position near an anchor landmark.
// Immutable once computed; recomputed only by re-running resolution.
type SpawnPoint struct {
	Location Location
	Anchor   Landmark
	Position Vec3
}

// Facing returns the rotation aimed from the spawn point toward its anchor.
func (s SpawnPoint) Facing() Rotation {
	return LookRotation(s.Anchor.Position.Sub(s.Position).Normalized())
}
