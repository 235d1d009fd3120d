package model

import "math"

// Vec3 is a continuous position inside the placement space.
type Vec3 struct {
	X, Y, Z float64
}

// DistanceTo returns the straight-line distance between two points.
func (v Vec3) DistanceTo(other Vec3) float64 {
	dx := v.X - other.X
	dy := v.Y - other.Y
	dz := v.Z - other.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Add returns v + other.
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Div returns v with each axis divided by k.
func (v Vec3) Div(k float64) Vec3 {
	return Vec3{X: v.X / k, Y: v.Y / k, Z: v.Z / k}
}

// Cell is a discrete lattice cell. Constraints block whole cells.
type Cell struct {
	X, Y, Z int
}

// CellOf floors each coordinate of p to find the cell it falls in.
func CellOf(p Vec3) Cell {
	return Cell{
		X: int(math.Floor(p.X)),
		Y: int(math.Floor(p.Y)),
		Z: int(math.Floor(p.Z)),
	}
}

// Center returns the lattice corner of the cell as a continuous point.
func (c Cell) Center() Vec3 {
	return Vec3{X: float64(c.X), Y: float64(c.Y), Z: float64(c.Z)}
}

// Space holds the integer dimensions of the placement volume.
type Space struct {
	X, Y, Z int
}

// Volume returns the number of lattice cells in the space.
func (s Space) Volume() int {
	return s.X * s.Y * s.Z
}

// Valid reports whether every dimension is positive.
func (s Space) Valid() bool {
	return s.X > 0 && s.Y > 0 && s.Z > 0
}

// Contains reports whether p lies inside [0, dim] on every axis.
func (s Space) Contains(p Vec3) bool {
	return p.X >= 0 && p.X <= float64(s.X) &&
		p.Y >= 0 && p.Y <= float64(s.Y) &&
		p.Z >= 0 && p.Z <= float64(s.Z)
}

// Denormalize maps a point expressed in unit coordinates onto the space.
// Values outside [0, 1] are scaled as-is.
func (s Space) Denormalize(p Vec3) Vec3 {
	return Vec3{X: p.X * float64(s.X), Y: p.Y * float64(s.Y), Z: p.Z * float64(s.Z)}
}

// Normalize divides each coordinate by the matching dimension.
func (s Space) Normalize(p Vec3) Vec3 {
	return Vec3{X: p.X / float64(s.X), Y: p.Y / float64(s.Y), Z: p.Z / float64(s.Z)}
}
