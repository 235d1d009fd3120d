package agent

import (
	"math/rand/v2"

	"github.com/signalsfoundry/junctionbox-simulator/internal/sim/episode"
)

// RandomAgent samples every action component uniformly from [0, 1).
type RandomAgent struct {
	rng *rand.Rand
}

// NewRandom returns a RandomAgent with its own seeded source.
func NewRandom(seed uint64) *RandomAgent {
	return &RandomAgent{rng: rand.New(rand.NewPCG(seed, ^seed))}
}

// SelectAction ignores the observation.
func (a *RandomAgent) SelectAction(_ []float32) ([]float64, error) {
	action := make([]float64, episode.ActionSize)
	for i := range action {
		action[i] = a.rng.Float64()
	}
	return action, nil
}
