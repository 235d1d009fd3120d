package episode

import (
	"fmt"

	"github.com/signalsfoundry/junctionbox-simulator/model"
)

// Config is fixed for the lifetime of an Environment.
type Config struct {
	Space            model.Space
	NumSensorTypes   int
	SensorsPerType   []int
	ConstraintRatio  float64
	MaxJunctionBoxes int
	PortOptions      model.PortOptions
	// Seed makes the environment reproducible. When nil a seed is drawn
	// from the wall clock at construction.
	Seed *uint64
}

// DefaultSensorsPerType is used when Config.SensorsPerType is empty. Configs
// with fewer sensor types take its leading entries.
var DefaultSensorsPerType = []int{20, 15, 10}

// DefaultConfig returns the standard 50x50x50 scenario with three sensor types.
func DefaultConfig() Config {
	return Config{
		Space:            model.Space{X: 50, Y: 50, Z: 50},
		NumSensorTypes:   3,
		SensorsPerType:   append([]int(nil), DefaultSensorsPerType...),
		ConstraintRatio:  0.1,
		MaxJunctionBoxes: 20,
		PortOptions:      model.DefaultPortOptions,
	}
}

// withDefaults fills optional fields without touching anything the caller set.
func (c Config) withDefaults() Config {
	if len(c.SensorsPerType) == 0 {
		defaults := DefaultSensorsPerType
		if c.NumSensorTypes > 0 && c.NumSensorTypes < len(defaults) {
			defaults = defaults[:c.NumSensorTypes]
		}
		c.SensorsPerType = append([]int(nil), defaults...)
	} else {
		c.SensorsPerType = append([]int(nil), c.SensorsPerType...)
	}
	if c.PortOptions == (model.PortOptions{}) {
		c.PortOptions = model.DefaultPortOptions
	}
	if c.Seed != nil {
		seed := *c.Seed
		c.Seed = &seed
	}
	return c
}

// Validate reports the first configuration problem found.
func (c Config) Validate() error {
	if !c.Space.Valid() {
		return fmt.Errorf("%w: space dimensions must be positive, got %dx%dx%d",
			ErrInvalidConfig, c.Space.X, c.Space.Y, c.Space.Z)
	}
	if c.NumSensorTypes <= 0 {
		return fmt.Errorf("%w: num_sensor_types must be positive, got %d", ErrInvalidConfig, c.NumSensorTypes)
	}
	if len(c.SensorsPerType) != c.NumSensorTypes {
		return fmt.Errorf("%w: sensors_per_type has %d entries for %d sensor types",
			ErrInvalidConfig, len(c.SensorsPerType), c.NumSensorTypes)
	}
	for i, n := range c.SensorsPerType {
		if n < 0 {
			return fmt.Errorf("%w: sensors_per_type[%d] is negative", ErrInvalidConfig, i)
		}
	}
	if c.ConstraintRatio < 0 || c.ConstraintRatio >= 1 {
		return fmt.Errorf("%w: constraint_ratio must be in [0, 1), got %v", ErrInvalidConfig, c.ConstraintRatio)
	}
	if c.MaxJunctionBoxes <= 0 {
		return fmt.Errorf("%w: max_junction_boxes must be positive, got %d", ErrInvalidConfig, c.MaxJunctionBoxes)
	}
	if !c.PortOptions.Valid() {
		return fmt.Errorf("%w: port options must be positive, got %v", ErrInvalidConfig, c.PortOptions)
	}
	return nil
}
