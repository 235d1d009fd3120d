package episode

import (
	"errors"
	"testing"

	"github.com/signalsfoundry/junctionbox-simulator/internal/logging"
	"github.com/signalsfoundry/junctionbox-simulator/model"
)

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero dimension", mutate: func(c *Config) { c.Space.Y = 0 }},
		{name: "negative dimension", mutate: func(c *Config) { c.Space.Z = -3 }},
		{name: "zero sensor types", mutate: func(c *Config) { c.NumSensorTypes = 0 }},
		{name: "sensors per type mismatch", mutate: func(c *Config) { c.SensorsPerType = []int{1, 2} }},
		{name: "negative sensor count", mutate: func(c *Config) { c.SensorsPerType = []int{1, -1, 2} }},
		{name: "ratio of one", mutate: func(c *Config) { c.ConstraintRatio = 1 }},
		{name: "negative ratio", mutate: func(c *Config) { c.ConstraintRatio = -0.1 }},
		{name: "no box budget", mutate: func(c *Config) { c.MaxJunctionBoxes = 0 }},
		{name: "bad ports", mutate: func(c *Config) { c.PortOptions = model.PortOptions{6, 0, 24} }},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			tc.mutate(&cfg)
			env, err := NewEnvironment(cfg, logging.Noop())
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("NewEnvironment error = %v, want ErrInvalidConfig", err)
			}
			if env != nil {
				t.Fatalf("expected no environment on config error")
			}
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{
		Space:            model.Space{X: 5, Y: 5, Z: 5},
		NumSensorTypes:   3,
		MaxJunctionBoxes: 4,
	}
	env, err := NewEnvironment(cfg, nil)
	if err != nil {
		t.Fatalf("NewEnvironment: %v", err)
	}
	got := env.Config()
	if len(got.SensorsPerType) != 3 || got.SensorsPerType[0] != 20 || got.SensorsPerType[2] != 10 {
		t.Fatalf("SensorsPerType default = %v, want [20 15 10]", got.SensorsPerType)
	}
	if got.PortOptions != model.DefaultPortOptions {
		t.Fatalf("PortOptions default = %v", got.PortOptions)
	}
}

func TestConfigDefaultsFollowTypeCount(t *testing.T) {
	tests := []struct {
		types   int
		want    []int
		wantErr bool
	}{
		{types: 1, want: []int{20}},
		{types: 2, want: []int{20, 15}},
		{types: 3, want: []int{20, 15, 10}},
		{types: 4, wantErr: true},
	}

	for _, tc := range tests {
		cfg := Config{
			Space:            model.Space{X: 5, Y: 5, Z: 5},
			NumSensorTypes:   tc.types,
			MaxJunctionBoxes: 4,
		}
		env, err := NewEnvironment(cfg, nil)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("%d types: error = %v, want ErrInvalidConfig", tc.types, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%d types: NewEnvironment: %v", tc.types, err)
		}
		got := env.Config().SensorsPerType
		if len(got) != len(tc.want) {
			t.Fatalf("%d types: SensorsPerType = %v, want %v", tc.types, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("%d types: SensorsPerType = %v, want %v", tc.types, got, tc.want)
			}
		}
	}
	if len(DefaultSensorsPerType) != 3 {
		t.Fatalf("DefaultSensorsPerType mutated: %v", DefaultSensorsPerType)
	}
}

func TestConfigIsCopiedAtConstruction(t *testing.T) {
	counts := []int{2}
	seed := uint64(7)
	cfg := Config{
		Space:            model.Space{X: 5, Y: 5, Z: 5},
		NumSensorTypes:   1,
		SensorsPerType:   counts,
		MaxJunctionBoxes: 4,
		Seed:             &seed,
	}
	env, err := NewEnvironment(cfg, nil)
	if err != nil {
		t.Fatalf("NewEnvironment: %v", err)
	}
	counts[0] = 99
	seed = 8
	got := env.Config()
	if got.SensorsPerType[0] != 2 || *got.Seed != 7 {
		t.Fatalf("config aliased caller data: %+v seed=%d", got.SensorsPerType, *got.Seed)
	}
}
