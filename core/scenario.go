package core

import (
	"errors"
	"math/rand/v2"

	"github.com/signalsfoundry/junctionbox-simulator/model"
)

// maxPlacementAttempts bounds rejection sampling for a single sensor.
const maxPlacementAttempts = 100

// ErrInvalidScenario is returned when a loaded scenario breaks an invariant.
var ErrInvalidScenario = errors.New("invalid scenario")

// Scenario is the immutable layout of one episode: the space, the sensor
// population indexed by id, and the constraint cells.
type Scenario struct {
	Space       model.Space
	Sensors     []model.Sensor
	Constraints *ConstraintIndex
}

// ScenarioParams controls random scenario generation.
type ScenarioParams struct {
	Space           model.Space
	SensorsPerType  []int
	ConstraintRatio float64
}

// GenerateScenario samples a constraint set and then a sensor population that
// avoids it. Constraint cells are drawn uniformly over the lattice and may
// repeat. Each sensor is resampled up to maxPlacementAttempts times while its
// cell is blocked; a sensor that never finds a free cell is dropped, so a
// dense space can yield fewer sensors than requested. The same params and rng
// state always produce the same scenario.
func GenerateScenario(params ScenarioParams, rng *rand.Rand) *Scenario {
	space := params.Space

	numConstraints := int(float64(space.Volume()) * params.ConstraintRatio)
	if numConstraints < 0 {
		numConstraints = 0
	}
	cells := make([]model.Cell, 0, numConstraints)
	for i := 0; i < numConstraints; i++ {
		cells = append(cells, model.Cell{
			X: rng.IntN(space.X),
			Y: rng.IntN(space.Y),
			Z: rng.IntN(space.Z),
		})
	}
	constraints := NewConstraintIndex(cells)

	total := 0
	for _, n := range params.SensorsPerType {
		total += n
	}
	sensors := make([]model.Sensor, 0, total)
	for typeID, count := range params.SensorsPerType {
		for i := 0; i < count; i++ {
			for attempt := 0; attempt < maxPlacementAttempts; attempt++ {
				p := model.Vec3{
					X: rng.Float64() * float64(space.X),
					Y: rng.Float64() * float64(space.Y),
					Z: rng.Float64() * float64(space.Z),
				}
				if constraints.IsBlocked(p) {
					continue
				}
				sensors = append(sensors, model.Sensor{
					ID:       len(sensors),
					Position: p,
					Type:     typeID,
				})
				break
			}
		}
	}

	return &Scenario{
		Space:       space,
		Sensors:     sensors,
		Constraints: constraints,
	}
}

// Clone returns a scenario with its own sensor slice. The constraint index
// is read-only after construction and is shared.
func (s *Scenario) Clone() *Scenario {
	out := *s
	out.Sensors = append([]model.Sensor(nil), s.Sensors...)
	return &out
}

// SensorsOfType returns the sensors of the given type in id order.
func (s *Scenario) SensorsOfType(t int) []model.Sensor {
	var out []model.Sensor
	for _, sensor := range s.Sensors {
		if sensor.Type == t {
			out = append(out, sensor)
		}
	}
	return out
}
