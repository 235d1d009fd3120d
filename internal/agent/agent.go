// Package agent provides placement policies that turn observations into
// actions. The baselines here are reference points for learned policies.
package agent

import (
	"errors"
	"fmt"
	"strings"
)

// ErrObservationTooShort is returned when an observation lacks the features a
// policy reads.
var ErrObservationTooShort = errors.New("observation too short")

// Agent picks the next placement action from an encoded observation.
// Implementations are not required to be safe for concurrent use.
type Agent interface {
	SelectAction(observation []float32) ([]float64, error)
}

// Kind names a built-in agent.
type Kind string

const (
	KindRandom   Kind = "random"
	KindCentroid Kind = "centroid"
)

// New builds a built-in agent by name. numTypes is the number of sensor types
// the environment was configured with.
func New(kind string, seed uint64, numTypes int) (Agent, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(kind))) {
	case KindRandom, "":
		return NewRandom(seed), nil
	case KindCentroid:
		return NewCentroid(numTypes), nil
	default:
		return nil, fmt.Errorf("unknown agent %q", kind)
	}
}
