// Package config loads jboxsim settings from a YAML file and JBOX_*
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/junctionbox-simulator/internal/logging"
	"github.com/signalsfoundry/junctionbox-simulator/internal/observability"
	"github.com/signalsfoundry/junctionbox-simulator/internal/sim/episode"
	"github.com/signalsfoundry/junctionbox-simulator/model"
)

// Config is the full file configuration for both binaries' subcommands.
type Config struct {
	// Environment describes the episodes served or rolled out.
	Environment EnvironmentConfig `json:"environment" yaml:"environment"`

	// Server configures the gRPC environment service.
	Server ServerConfig `json:"server" yaml:"server"`

	// Rollout configures local baseline runs.
	Rollout RolloutConfig `json:"rollout" yaml:"rollout"`

	// Storage selects where rollout results are written.
	Storage StorageConfig `json:"storage" yaml:"storage"`

	Logging LoggingConfig `json:"logging" yaml:"logging"`

	Tracing observability.TracingConfig `json:"tracing" yaml:"tracing"`
}

// EnvironmentConfig mirrors episode.Config in file form.
type EnvironmentConfig struct {
	Space            SpaceConfig `json:"space" yaml:"space"`
	NumSensorTypes   int         `json:"num_sensor_types" yaml:"num_sensor_types"`
	SensorsPerType   []int       `json:"sensors_per_type" yaml:"sensors_per_type"`
	ConstraintRatio  float64     `json:"constraint_ratio" yaml:"constraint_ratio"`
	MaxJunctionBoxes int         `json:"max_junction_boxes" yaml:"max_junction_boxes"`

	// PortOptions lists exactly three ascending box capacities.
	PortOptions []int `json:"port_options" yaml:"port_options"`

	// Seed fixes the scenario stream. Omit for a wall-clock seed.
	Seed *uint64 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

type SpaceConfig struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
	Z int `json:"z" yaml:"z"`
}

type ServerConfig struct {
	GRPCAddr    string `json:"grpc_addr" yaml:"grpc_addr"`
	MetricsAddr string `json:"metrics_addr" yaml:"metrics_addr"`

	// MaxSessions caps concurrently open sessions. Zero means unlimited.
	MaxSessions int `json:"max_sessions" yaml:"max_sessions"`
}

type RolloutConfig struct {
	Episodes int    `json:"episodes" yaml:"episodes"`
	Parallel int    `json:"parallel" yaml:"parallel"`
	Agent    string `json:"agent" yaml:"agent"`
	Seed     uint64 `json:"seed" yaml:"seed"`
	MaxSteps int    `json:"max_steps" yaml:"max_steps"`

	// Scenario is an optional JSON layout replayed on every episode.
	Scenario string `json:"scenario,omitempty" yaml:"scenario,omitempty"`

	// Remote, when set, is the address of a jboxsim server to roll out
	// against instead of in-process environments.
	Remote string `json:"remote,omitempty" yaml:"remote,omitempty"`
}

type StorageConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `json:"backend" yaml:"backend"`
	Path    string `json:"path" yaml:"path"`
}

type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level" yaml:"level"`
	// Format is "text" or "json".
	Format string `json:"format" yaml:"format"`
}

// Default returns a Config matching episode.DefaultConfig and local-only
// serving defaults.
func Default() *Config {
	env := episode.DefaultConfig()
	return &Config{
		Environment: EnvironmentConfig{
			Space:            SpaceConfig{X: env.Space.X, Y: env.Space.Y, Z: env.Space.Z},
			NumSensorTypes:   env.NumSensorTypes,
			SensorsPerType:   env.SensorsPerType,
			ConstraintRatio:  env.ConstraintRatio,
			MaxJunctionBoxes: env.MaxJunctionBoxes,
			PortOptions:      env.PortOptions[:],
		},
		Server: ServerConfig{
			GRPCAddr:    ":50051",
			MetricsAddr: ":9090",
		},
		Rollout: RolloutConfig{
			Episodes: 10,
			Parallel: 1,
			Agent:    "random",
		},
		Storage: StorageConfig{
			Backend: "memory",
			Path:    "jboxsim.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Tracing: observability.DefaultTracingConfig(),
	}
}

// Load returns defaults overlaid with the YAML file at path (when path is
// non-empty) and then with JBOX_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		fileCfg, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile reads a YAML file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overlays JBOX_* environment variables. Malformed numeric values
// are reported rather than ignored.
func ApplyEnv(cfg *Config) error {
	if v := os.Getenv("JBOX_GRPC_ADDR"); v != "" {
		cfg.Server.GRPCAddr = v
	}
	if v := os.Getenv("JBOX_METRICS_ADDR"); v != "" {
		cfg.Server.MetricsAddr = v
	}
	if v := os.Getenv("JBOX_MAX_SESSIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("JBOX_MAX_SESSIONS: %w", err)
		}
		cfg.Server.MaxSessions = n
	}
	if v := os.Getenv("JBOX_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("JBOX_SEED: %w", err)
		}
		cfg.Environment.Seed = &seed
	}
	if v := os.Getenv("JBOX_STORE"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("JBOX_DB_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("JBOX_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("JBOX_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	observability.ApplyTracingEnv(&cfg.Tracing)
	return nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if n := len(c.Environment.PortOptions); n != len(model.PortOptions{}) {
		return fmt.Errorf("environment: port_options needs %d entries, got %d", len(model.PortOptions{}), n)
	}
	if err := c.EpisodeConfig().Validate(); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	if c.Server.MaxSessions < 0 {
		return fmt.Errorf("server: max_sessions must be non-negative, got %d", c.Server.MaxSessions)
	}
	if c.Rollout.Episodes < 0 {
		return fmt.Errorf("rollout: episodes must be non-negative, got %d", c.Rollout.Episodes)
	}
	if c.Rollout.Parallel < 1 {
		return fmt.Errorf("rollout: parallel must be at least 1, got %d", c.Rollout.Parallel)
	}
	if c.Rollout.MaxSteps < 0 {
		return fmt.Errorf("rollout: max_steps must be non-negative, got %d", c.Rollout.MaxSteps)
	}

	validBackends := map[string]bool{"memory": true, "sqlite": true}
	if !validBackends[c.Storage.Backend] {
		return fmt.Errorf("storage: invalid backend %q (valid: memory, sqlite)", c.Storage.Backend)
	}
	if c.Storage.Backend == "sqlite" && strings.TrimSpace(c.Storage.Path) == "" {
		return fmt.Errorf("storage: path is required for the sqlite backend")
	}

	validLevels := map[string]bool{"": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging: invalid level %q", c.Logging.Level)
	}
	validFormats := map[string]bool{"": true, "text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("logging: invalid format %q", c.Logging.Format)
	}

	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing: sample_ratio must be between 0 and 1, got %v", c.Tracing.SampleRatio)
	}
	return nil
}

// EpisodeConfig converts the environment section for episode.NewEnvironment.
func (c *Config) EpisodeConfig() episode.Config {
	e := c.Environment
	cfg := episode.Config{
		Space:            model.Space{X: e.Space.X, Y: e.Space.Y, Z: e.Space.Z},
		NumSensorTypes:   e.NumSensorTypes,
		SensorsPerType:   append([]int(nil), e.SensorsPerType...),
		ConstraintRatio:  e.ConstraintRatio,
		MaxJunctionBoxes: e.MaxJunctionBoxes,
	}
	copy(cfg.PortOptions[:], e.PortOptions)
	if e.Seed != nil {
		seed := *e.Seed
		cfg.Seed = &seed
	}
	return cfg
}

// LoggerConfig converts the logging section for logging.New.
func (c *Config) LoggerConfig() logging.Config {
	return logging.Config{Level: c.Logging.Level, Format: c.Logging.Format}
}
