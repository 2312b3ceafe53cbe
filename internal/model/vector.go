package model

import (
	"fmt"
	"math"
)

// Vec3 is a point or direction in world space. Y is the vertical axis.
// Value type, passed by value (immutable).
type Vec3 struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
	Z float64 `yaml:"z" json:"z"`
}

// NewVec3 creates a Vec3.
func NewVec3(x, y, z float64) Vec3 {
	return Vec3{X: x, Y: y, Z: z}
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// WithY returns a copy with the vertical coordinate replaced.
func (v Vec3) WithY(y float64) Vec3 {
	v.Y = y
	return v
}

// Length returns the euclidean length.
func (v Vec3) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Normalized returns the unit vector, or the zero vector for zero input.
func (v Vec3) Normalized() Vec3 {
	l := v.Length()
	if l == 0 {
		return Vec3{}
	}
	return Vec3{X: v.X / l, Y: v.Y / l, Z: v.Z / l}
}

func (v Vec3) String() string {
	return fmt.Sprintf("(%.2f, %.2f, %.2f)", v.X, v.Y, v.Z)
}

// Rotation is a facing expressed in degrees.
// Yaw turns around the vertical axis starting at +Z, clockwise towards +X.
// Pitch is positive when looking up.
type Rotation struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
}

// LookRotation returns the rotation that faces along dir.
// Zero direction yields the identity rotation.
func LookRotation(dir Vec3) Rotation {
	if dir.Length() == 0 {
		return Rotation{}
	}

	horizontal := math.Hypot(dir.X, dir.Z)
	return Rotation{
		Yaw:   math.Atan2(dir.X, dir.Z) * 180 / math.Pi,
		Pitch: math.Atan2(dir.Y, horizontal) * 180 / math.Pi,
	}
}
