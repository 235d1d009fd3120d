package model

// Sensor is a fixed point of a given type that must be wired to exactly one
// junction box of the same type. Sensors never change once generated.
type Sensor struct {
	ID       int
	Position Vec3
	Type     int
}
