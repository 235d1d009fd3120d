package agent

import (
	"fmt"

	"github.com/signalsfoundry/junctionbox-simulator/core"
	"github.com/signalsfoundry/junctionbox-simulator/internal/sim/episode"
)

// CentroidAgent places the largest box at the centroid of the sensor type
// with the most unconnected sensors.
type CentroidAgent struct {
	numTypes int
}

// NewCentroid returns a CentroidAgent for an environment with numTypes
// sensor types.
func NewCentroid(numTypes int) *CentroidAgent {
	if numTypes < 1 {
		numTypes = 1
	}
	return &CentroidAgent{numTypes: numTypes}
}

// SelectAction reads the per-type feature blocks. A type's pending weight is
// its share of all sensors times the unconnected share within the type; ties
// go to the lower type.
func (a *CentroidAgent) SelectAction(observation []float32) ([]float64, error) {
	need := core.TypeBlockOffset(a.numTypes)
	if len(observation) < need {
		return nil, fmt.Errorf("%w: need %d features for %d sensor types, got %d",
			ErrObservationTooShort, need, a.numTypes, len(observation))
	}

	best, bestWeight := 0, -1.0
	for t := 0; t < a.numTypes; t++ {
		block := observation[core.TypeBlockOffset(t):]
		weight := float64(block[core.FeatureTypeShare]) * float64(block[core.FeatureUnconnectedRate])
		if weight > bestWeight {
			best, bestWeight = t, weight
		}
	}

	c := observation[core.TypeBlockOffset(best)+core.FeatureCentroid:]
	return []float64{
		float64(c[0]),
		float64(c[1]),
		float64(c[2]),
		episode.TypeActionValue(best, a.numTypes),
		1,
	}, nil
}
