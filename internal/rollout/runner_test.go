package rollout

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/signalsfoundry/junctionbox-simulator/core"
	"github.com/signalsfoundry/junctionbox-simulator/internal/agent"
	"github.com/signalsfoundry/junctionbox-simulator/internal/logging"
	"github.com/signalsfoundry/junctionbox-simulator/internal/sim/episode"
	"github.com/signalsfoundry/junctionbox-simulator/model"
)

func smallConfig() episode.Config {
	cfg := episode.DefaultConfig()
	cfg.Space = model.Space{X: 12, Y: 12, Z: 12}
	cfg.SensorsPerType = []int{6, 4, 2}
	cfg.MaxJunctionBoxes = 8
	return cfg
}

func localFactory(t *testing.T, cfg episode.Config, scenario *core.Scenario) func(context.Context) (Env, error) {
	t.Helper()
	return func(context.Context) (Env, error) {
		env, err := episode.NewEnvironment(cfg, logging.Noop())
		if err != nil {
			return nil, err
		}
		return NewLocalEnv(env, scenario), nil
	}
}

func randomAgents(seed uint64) (agent.Agent, error) {
	return agent.NewRandom(seed), nil
}

type failingAgent struct{}

func (failingAgent) SelectAction([]float32) ([]float64, error) {
	return nil, errors.New("policy exploded")
}

func TestRunEpisodeCentroidSucceeds(t *testing.T) {
	space := model.Space{X: 10, Y: 10, Z: 10}
	cfg := episode.Config{
		Space:            space,
		NumSensorTypes:   1,
		SensorsPerType:   []int{3},
		MaxJunctionBoxes: 3,
	}
	sc := &core.Scenario{
		Space: space,
		Sensors: []model.Sensor{
			{ID: 0, Position: model.Vec3{X: 4, Y: 4, Z: 4}, Type: 0},
			{ID: 1, Position: model.Vec3{X: 5, Y: 4, Z: 4}, Type: 0},
			{ID: 2, Position: model.Vec3{X: 4, Y: 5, Z: 4}, Type: 0},
		},
		Constraints: core.NewConstraintIndex(nil),
	}
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	r := &Runner{
		NewEnv: localFactory(t, cfg, sc),
		NewAgent: func(uint64) (agent.Agent, error) {
			return agent.NewCentroid(1), nil
		},
		AgentName: "centroid",
		RunID:     "run-1",
		now:       func() time.Time { return fixed },
	}

	res, err := r.RunEpisode(context.Background(), 5)
	if err != nil {
		t.Fatalf("RunEpisode: %v", err)
	}
	if res.Outcome != OutcomeTerminated || !res.Success || res.Steps != 1 || res.NumBoxes != 1 {
		t.Fatalf("result = %+v", res)
	}
	if res.Coverage != 1 || res.Violations != 0 {
		t.Fatalf("coverage=%v violations=%d", res.Coverage, res.Violations)
	}
	if res.RunID != "run-1" || res.Agent != "centroid" || res.Seed != 5 || res.EpisodeID == "" || !res.FinishedAt.Equal(fixed) {
		t.Fatalf("metadata = %+v", res)
	}
}

func TestRunEpisodeStepLimit(t *testing.T) {
	r := &Runner{
		NewEnv:   localFactory(t, smallConfig(), nil),
		NewAgent: randomAgents,
		MaxSteps: 2,
	}
	res, err := r.RunEpisode(context.Background(), 1)
	if err != nil {
		t.Fatalf("RunEpisode: %v", err)
	}
	if res.Steps > 2 {
		t.Fatalf("steps = %d, want at most 2", res.Steps)
	}
	if res.Steps == 2 && res.Outcome != OutcomeStepLimit && res.Outcome != OutcomeTerminated {
		t.Fatalf("outcome = %q", res.Outcome)
	}
}

func TestRunEpisodeAgentError(t *testing.T) {
	r := &Runner{
		NewEnv:   localFactory(t, smallConfig(), nil),
		NewAgent: func(uint64) (agent.Agent, error) { return failingAgent{}, nil },
	}
	if _, err := r.RunEpisode(context.Background(), 1); err == nil {
		t.Fatalf("expected agent error to propagate")
	}
}

func TestRunnerRequiresFactories(t *testing.T) {
	if _, err := (&Runner{}).Run(context.Background(), Seeds(0, 1), 1); err == nil {
		t.Fatalf("expected error for missing factories")
	}
}

func TestRunParallelMatchesSerial(t *testing.T) {
	t.Parallel()

	seeds := Seeds(100, 12)
	newRunner := func() *Runner {
		return &Runner{
			NewEnv:   localFactory(t, smallConfig(), nil),
			NewAgent: randomAgents,
		}
	}

	serial, err := newRunner().Run(context.Background(), seeds, 1)
	if err != nil {
		t.Fatalf("serial Run: %v", err)
	}
	parallel, err := newRunner().Run(context.Background(), seeds, 4)
	if err != nil {
		t.Fatalf("parallel Run: %v", err)
	}
	if len(serial) != len(seeds) || len(parallel) != len(seeds) {
		t.Fatalf("result counts = %d / %d", len(serial), len(parallel))
	}

	strip := func(rs []Result) []Result {
		out := make([]Result, len(rs))
		for i, r := range rs {
			r.EpisodeID = ""
			r.FinishedAt = time.Time{}
			r.Duration = 0
			out[i] = r
		}
		return out
	}
	if !reflect.DeepEqual(strip(serial), strip(parallel)) {
		t.Fatalf("parallel results differ from serial results")
	}
	for i, r := range serial {
		if r.Seed != seeds[i] {
			t.Fatalf("result %d has seed %d, want %d", i, r.Seed, seeds[i])
		}
	}
}

func TestRunInvokesOnResult(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []uint64
	)
	r := &Runner{
		NewEnv:   localFactory(t, smallConfig(), nil),
		NewAgent: randomAgents,
		OnResult: func(_ context.Context, res Result) error {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, res.Seed)
			return nil
		},
	}
	if _, err := r.Run(context.Background(), Seeds(0, 5), 3); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(seen) != 5 {
		t.Fatalf("OnResult called %d times, want 5", len(seen))
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &Runner{
		NewEnv:   localFactory(t, smallConfig(), nil),
		NewAgent: randomAgents,
	}
	if _, err := r.Run(ctx, Seeds(0, 3), 2); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
}
