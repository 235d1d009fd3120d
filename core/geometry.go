package core

import (
	"math"

	"github.com/signalsfoundry/junctionbox-simulator/model"
)

// centroid returns the arithmetic mean of the points, or the zero vector when
// the slice is empty.
func centroid(points []model.Vec3) model.Vec3 {
	if len(points) == 0 {
		return model.Vec3{}
	}
	var sum model.Vec3
	for _, p := range points {
		sum = sum.Add(p)
	}
	return sum.Div(float64(len(points)))
}

// stdDev returns the per-axis population standard deviation of the points.
func stdDev(points []model.Vec3) model.Vec3 {
	if len(points) == 0 {
		return model.Vec3{}
	}
	mean := centroid(points)
	var acc model.Vec3
	for _, p := range points {
		dx := p.X - mean.X
		dy := p.Y - mean.Y
		dz := p.Z - mean.Z
		acc.X += dx * dx
		acc.Y += dy * dy
		acc.Z += dz * dz
	}
	n := float64(len(points))
	return model.Vec3{
		X: math.Sqrt(acc.X / n),
		Y: math.Sqrt(acc.Y / n),
		Z: math.Sqrt(acc.Z / n),
	}
}
