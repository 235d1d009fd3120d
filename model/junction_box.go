package model

// JunctionBox is a placed device serving sensors of one type. Boxes are
// appended to an episode and never moved or removed.
type JunctionBox struct {
	ID           int
	Position     Vec3
	SensorType   int
	PortCapacity int
}

// PortOptions are the three discrete capacities a box may be built with,
// ordered smallest first.
type PortOptions [3]int

// DefaultPortOptions matches the standard 6/12/24 port enclosures.
var DefaultPortOptions = PortOptions{6, 12, 24}

const (
	portThresholdLow  = 0.33
	portThresholdHigh = 0.67
)

// Discretize picks a capacity from a continuous action value:
// < 0.33 selects the first option, < 0.67 the second, anything else the third.
func (p PortOptions) Discretize(v float64) int {
	switch {
	case v < portThresholdLow:
		return p[0]
	case v < portThresholdHigh:
		return p[1]
	default:
		return p[2]
	}
}

// Max returns the largest capacity.
func (p PortOptions) Max() int {
	m := p[0]
	for _, v := range p[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// Valid reports whether every option is positive.
func (p PortOptions) Valid() bool {
	for _, v := range p {
		if v <= 0 {
			return false
		}
	}
	return true
}
