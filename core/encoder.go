package core

import "github.com/signalsfoundry/junctionbox-simulator/model"

// ObservationSize is the fixed length of every encoded observation.
const ObservationSize = 512

// FeaturesPerType is the width of each per-type block at the head of the
// observation: centroid (3), spread (3), share of all sensors, unconnected
// share within the type.
const FeaturesPerType = 8

// Offsets inside a per-type block.
const (
	FeatureCentroid        = 0
	FeatureSpread          = 3
	FeatureTypeShare       = 6
	FeatureUnconnectedRate = 7
)

// spaceNormalizer is the divisor applied to raw space dimensions.
const spaceNormalizer = 100.0

// ObservationView is the read-only slice of episode state the encoder needs.
type ObservationView struct {
	Space          model.Space
	NumSensorTypes int
	Sensors        []model.Sensor
	Constraints    *ConstraintIndex
	Boxes          []model.JunctionBox
	Connections    *Connections
	MaxBoxes       int
	Step           int
	PortOptions    model.PortOptions
}

// TypeBlockOffset returns the index where the block for sensor type t starts.
func TypeBlockOffset(t int) int {
	return t * FeaturesPerType
}

// EncodeObservation builds the feature vector for the current state. The
// feature order is fixed; the result is zero-padded or truncated to exactly
// ObservationSize entries.
func EncodeObservation(v ObservationView) []float32 {
	features := make([]float64, 0, ObservationSize)
	total := len(v.Sensors)

	byType := make([][]model.Sensor, v.NumSensorTypes)
	for _, s := range v.Sensors {
		if s.Type >= 0 && s.Type < v.NumSensorTypes {
			byType[s.Type] = append(byType[s.Type], s)
		}
	}

	// Per-type sensor distribution.
	for t := 0; t < v.NumSensorTypes; t++ {
		sensors := byType[t]
		if len(sensors) == 0 {
			features = append(features, 0, 0, 0, 0, 0, 0, 0, 0)
			continue
		}
		points := make([]model.Vec3, len(sensors))
		unconnected := 0
		for i, s := range sensors {
			points[i] = s.Position
			if !v.Connections.IsConnected(s.ID) {
				unconnected++
			}
		}
		c := v.Space.Normalize(centroid(points))
		sd := v.Space.Normalize(stdDev(points))
		features = append(features,
			c.X, c.Y, c.Z,
			sd.X, sd.Y, sd.Z,
			float64(len(sensors))/float64(total),
			float64(unconnected)/float64(len(sensors)),
		)
	}

	// Constraints.
	volume := float64(v.Space.Volume())
	features = append(features, float64(v.Constraints.Len())/volume)
	if v.Constraints.Len() > 0 {
		c := v.Space.Normalize(v.Constraints.Centroid())
		features = append(features, c.X, c.Y, c.Z)
	} else {
		features = append(features, 0, 0, 0)
	}

	// Boxes placed so far.
	features = append(features, float64(len(v.Boxes))/float64(v.MaxBoxes))
	if len(v.Boxes) > 0 {
		points := make([]model.Vec3, len(v.Boxes))
		ports := 0
		for i, b := range v.Boxes {
			points[i] = b.Position
			ports += b.PortCapacity
		}
		c := v.Space.Normalize(centroid(points))
		meanPorts := float64(ports) / float64(len(v.Boxes))
		features = append(features, c.X, c.Y, c.Z, meanPorts/float64(v.PortOptions.Max()))
	} else {
		features = append(features, 0, 0, 0, 0)
	}

	// Coverage.
	connected := v.Connections.Len()
	features = append(features, Coverage(connected, total))
	if total > 0 {
		features = append(features, float64(connected)/float64(total))
	} else {
		features = append(features, 0)
	}

	// Unconnected sensors per type, as a share of all sensors.
	for t := 0; t < v.NumSensorTypes; t++ {
		if total == 0 {
			features = append(features, 0)
			continue
		}
		unconnected := 0
		for _, s := range byType[t] {
			if !v.Connections.IsConnected(s.ID) {
				unconnected++
			}
		}
		features = append(features, float64(unconnected)/float64(total))
	}

	features = append(features,
		float64(v.Space.X)/spaceNormalizer,
		float64(v.Space.Y)/spaceNormalizer,
		float64(v.Space.Z)/spaceNormalizer,
	)

	features = append(features, float64(v.Step)/float64(v.MaxBoxes))

	obs := make([]float32, ObservationSize)
	for i := 0; i < len(features) && i < ObservationSize; i++ {
		obs[i] = float32(features[i])
	}
	return obs
}

// Coverage is the fraction of sensors connected. An empty population counts
// as fully covered.
func Coverage(connected, total int) float64 {
	if total == 0 {
		return 1.0
	}
	return float64(connected) / float64(total)
}
