package rollout

import (
	"context"

	"github.com/signalsfoundry/junctionbox-simulator/core"
	"github.com/signalsfoundry/junctionbox-simulator/internal/sim/episode"
)

// Env is the slice of an environment a rollout needs. Local environments and
// remote gRPC sessions both satisfy it.
type Env interface {
	// Reset starts a new episode and returns its first observation and id.
	Reset(ctx context.Context, seed uint64) ([]float32, string, error)
	Step(ctx context.Context, action []float64) (episode.StepResult, error)
	Close(ctx context.Context) error
}

// LocalEnv adapts an in-process Environment to Env.
type LocalEnv struct {
	Env *episode.Environment
	// Scenario, when set, replays a fixed layout on every reset.
	Scenario *core.Scenario
}

// NewLocalEnv wraps env. scenario may be nil.
func NewLocalEnv(env *episode.Environment, scenario *core.Scenario) *LocalEnv {
	return &LocalEnv{Env: env, Scenario: scenario}
}

func (l *LocalEnv) Reset(_ context.Context, seed uint64) ([]float32, string, error) {
	obs, info, err := l.Env.Reset(episode.ResetOptions{Seed: &seed, Scenario: l.Scenario})
	if err != nil {
		return nil, "", err
	}
	return obs, info.EpisodeID, nil
}

func (l *LocalEnv) Step(_ context.Context, action []float64) (episode.StepResult, error) {
	return l.Env.Step(action)
}

func (l *LocalEnv) Close(context.Context) error { return nil }
