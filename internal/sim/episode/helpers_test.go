package episode

import (
	"math/rand/v2"
	"testing"

	"github.com/signalsfoundry/junctionbox-simulator/core"
	"github.com/signalsfoundry/junctionbox-simulator/internal/logging"
	"github.com/signalsfoundry/junctionbox-simulator/model"
)

func seedPtr(v uint64) *uint64 { return &v }

func newTestEnv(t *testing.T, cfg Config, opts ...Option) *Environment {
	t.Helper()
	env, err := NewEnvironment(cfg, logging.Noop(), opts...)
	if err != nil {
		t.Fatalf("NewEnvironment: %v", err)
	}
	return env
}

func fixedScenario(space model.Space, sensors []model.Sensor, cells []model.Cell) *core.Scenario {
	for i := range sensors {
		sensors[i].ID = i
	}
	return &core.Scenario{
		Space:       space,
		Sensors:     sensors,
		Constraints: core.NewConstraintIndex(cells),
	}
}

func randomAction(rng *rand.Rand) []float64 {
	a := make([]float64, ActionSize)
	for i := range a {
		a[i] = rng.Float64()
	}
	return a
}

type recordedEvent struct {
	kind    string
	outcome string
	reward  float64
}

type fakeRecorder struct {
	events []recordedEvent
}

func (f *fakeRecorder) EpisodeStarted(sensors, constraints int) {
	f.events = append(f.events, recordedEvent{kind: "started"})
}

func (f *fakeRecorder) StepObserved(reward, coverage float64) {
	f.events = append(f.events, recordedEvent{kind: "step", reward: reward})
}

func (f *fakeRecorder) EpisodeFinished(outcome string, steps int, coverage float64) {
	f.events = append(f.events, recordedEvent{kind: "finished", outcome: outcome})
}
