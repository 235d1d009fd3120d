// core/scenario_loader.go
package core

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/signalsfoundry/junctionbox-simulator/model"
)

// internal JSON shapes – keep them unexported so we’re free to evolve them.
type scenarioJSON struct {
	Space       spaceJSON    `json:"space"`
	Sensors     []sensorJSON `json:"sensors"`
	Constraints []cellJSON   `json:"constraints"`
}

type spaceJSON struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

type sensorJSON struct {
	Type int     `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Z    float64 `json:"z"`
}

type cellJSON struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// LoadScenario reads a fixed scenario from JSON. Sensor ids are assigned
// densely in file order; any id present in the input is ignored.
//
// It fails on JSON errors and on a non-positive space. Type ranges are checked
// later by Validate, since the loader does not know the episode's type count.
func LoadScenario(r io.Reader) (*Scenario, error) {
	var payload scenarioJSON
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("LoadScenario: decode failed: %w", err)
	}

	space := model.Space{X: payload.Space.X, Y: payload.Space.Y, Z: payload.Space.Z}
	if !space.Valid() {
		return nil, fmt.Errorf("%w: space dimensions must be positive, got %dx%dx%d",
			ErrInvalidScenario, space.X, space.Y, space.Z)
	}

	cells := make([]model.Cell, 0, len(payload.Constraints))
	for _, c := range payload.Constraints {
		cells = append(cells, model.Cell{X: c.X, Y: c.Y, Z: c.Z})
	}

	sensors := make([]model.Sensor, 0, len(payload.Sensors))
	for i, s := range payload.Sensors {
		sensors = append(sensors, model.Sensor{
			ID:       i,
			Position: model.Vec3{X: s.X, Y: s.Y, Z: s.Z},
			Type:     s.Type,
		})
	}

	return &Scenario{
		Space:       space,
		Sensors:     sensors,
		Constraints: NewConstraintIndex(cells),
	}, nil
}

// Validate checks that sensor ids are dense, types fall in [0, numTypes) and
// every sensor lies inside the space.
func (s *Scenario) Validate(numTypes int) error {
	if s == nil {
		return fmt.Errorf("%w: scenario is nil", ErrInvalidScenario)
	}
	if !s.Space.Valid() {
		return fmt.Errorf("%w: space dimensions must be positive", ErrInvalidScenario)
	}
	for i, sensor := range s.Sensors {
		if sensor.ID != i {
			return fmt.Errorf("%w: sensor at index %d has id %d", ErrInvalidScenario, i, sensor.ID)
		}
		if sensor.Type < 0 || sensor.Type >= numTypes {
			return fmt.Errorf("%w: sensor %d has type %d outside [0, %d)", ErrInvalidScenario, i, sensor.Type, numTypes)
		}
		if !s.Space.Contains(sensor.Position) {
			return fmt.Errorf("%w: sensor %d at (%g, %g, %g) is outside the space",
				ErrInvalidScenario, i, sensor.Position.X, sensor.Position.Y, sensor.Position.Z)
		}
	}
	return nil
}
