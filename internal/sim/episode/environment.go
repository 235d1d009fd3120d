package episode

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/signalsfoundry/junctionbox-simulator/core"
	"github.com/signalsfoundry/junctionbox-simulator/internal/logging"
	"github.com/signalsfoundry/junctionbox-simulator/model"
)

// MetricsRecorder receives episode lifecycle events.
type MetricsRecorder interface {
	EpisodeStarted(sensors, constraints int)
	StepObserved(reward, coverage float64)
	EpisodeFinished(outcome string, steps int, coverage float64)
}

// Option customises Environment construction.
type Option func(*Environment)

// WithMetricsRecorder attaches an optional metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(e *Environment) {
		e.metrics = m
	}
}

// WithEpisodeIDs overrides how episode ids are minted at each Reset.
func WithEpisodeIDs(next func() string) Option {
	return func(e *Environment) {
		if next != nil {
			e.nextID = next
		}
	}
}

// ResetOptions tune a single Reset call.
type ResetOptions struct {
	// Seed reseeds the environment's random source before generation.
	Seed *uint64
	// Scenario replaces random generation with a fixed layout. Its space must
	// match the configured space.
	Scenario *core.Scenario
}

// Environment owns one episode at a time. It is not safe for concurrent use;
// run one Environment per goroutine.
type Environment struct {
	cfg     Config
	rng     *rand.Rand
	log     logging.Logger
	baseLog logging.Logger
	metrics MetricsRecorder
	nextID  func() string

	episodeID   string
	scenario    *core.Scenario
	boxes       []model.JunctionBox
	conns       *core.Connections
	step        int
	status      Status
	totalReward float64
	lastInfo    StepInfo
}

// NewEnvironment validates cfg and returns an environment waiting for Reset.
func NewEnvironment(cfg Config, log logging.Logger, opts ...Option) (*Environment, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.Noop()
	}

	seed := uint64(time.Now().UnixNano())
	if cfg.Seed != nil {
		seed = *cfg.Seed
	}

	env := &Environment{
		cfg:     cfg,
		rng:     newRNG(seed),
		log:     log,
		baseLog: log,
		nextID:  logging.NewID,
		conns:   core.NewConnections(),
		status:  StatusPending,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(env)
		}
	}
	return env, nil
}

func newRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Config returns a copy of the environment configuration.
func (e *Environment) Config() Config {
	return e.cfg.withDefaults()
}

// Reset discards the current episode, builds a new scenario and returns the
// initial observation. A fixed scenario is copied, so later edits by the
// caller do not reach the episode. The environment is Active afterwards.
func (e *Environment) Reset(opts ResetOptions) ([]float32, ResetInfo, error) {
	if opts.Scenario != nil {
		if opts.Scenario.Space != e.cfg.Space {
			return nil, ResetInfo{}, fmt.Errorf("%w: scenario space %+v does not match configured space %+v",
				core.ErrInvalidScenario, opts.Scenario.Space, e.cfg.Space)
		}
		if err := opts.Scenario.Validate(e.cfg.NumSensorTypes); err != nil {
			return nil, ResetInfo{}, err
		}
	}
	if opts.Seed != nil {
		e.rng = newRNG(*opts.Seed)
	}

	if e.status == StatusActive && e.step > 0 && e.metrics != nil {
		e.metrics.EpisodeFinished("abandoned", e.step, e.coverage())
	}

	if opts.Scenario != nil {
		e.scenario = opts.Scenario.Clone()
	} else {
		e.scenario = core.GenerateScenario(core.ScenarioParams{
			Space:           e.cfg.Space,
			SensorsPerType:  e.cfg.SensorsPerType,
			ConstraintRatio: e.cfg.ConstraintRatio,
		}, e.rng)
	}

	e.episodeID = e.nextID()
	e.boxes = nil
	e.conns = core.NewConnections()
	e.step = 0
	e.totalReward = 0
	e.lastInfo = StepInfo{Coverage: e.coverage(), NumUnconnected: len(e.scenario.Sensors)}
	e.status = StatusActive

	ctx, log := logging.WithEpisodeLogger(context.Background(), e.baseLog, e.episodeID)
	e.log = log

	info := ResetInfo{
		EpisodeID:      e.episodeID,
		NumSensors:     len(e.scenario.Sensors),
		NumConstraints: e.scenario.Constraints.Len(),
		SpaceVolume:    e.cfg.Space.Volume(),
	}

	if e.metrics != nil {
		e.metrics.EpisodeStarted(info.NumSensors, info.NumConstraints)
	}
	e.log.Info(ctx, "episode reset",
		logging.Int("sensors", info.NumSensors),
		logging.Int("constraints", info.NumConstraints),
		logging.Int("space_volume", info.SpaceVolume),
	)

	return e.observe(), info, nil
}

// Step places one junction box, connects sensors to it and scores the move.
// It fails with ErrEpisodeNotActive unless the episode is Active.
func (e *Environment) Step(action []float64) (StepResult, error) {
	if e.status != StatusActive {
		return StepResult{}, fmt.Errorf("%w: status is %s", ErrEpisodeNotActive, e.status)
	}

	box, err := DecodeAction(action, len(e.boxes), e.cfg.Space, e.cfg.NumSensorTypes, e.cfg.PortOptions)
	if err != nil {
		return StepResult{}, err
	}
	e.boxes = append(e.boxes, box)

	newly := core.ConnectSensors(box, e.scenario.Sensors, e.conns)
	allConnected := e.conns.Len() == len(e.scenario.Sensors)
	components := core.ScoreRewards(core.RewardInput{
		Box:            box,
		NewlyConnected: newly,
		Blocked:        e.scenario.Constraints.IsBlocked(box.Position),
		AllConnected:   allConnected,
		BoxesPlaced:    len(e.boxes),
		SensorCount:    len(e.scenario.Sensors),
	})
	reward := components.Total()

	terminated := allConnected
	truncated := len(e.boxes) >= e.cfg.MaxJunctionBoxes && !terminated

	e.step++
	e.totalReward += reward
	obs := e.observe()
	info := e.buildInfo(components)
	e.lastInfo = info

	switch {
	case terminated:
		e.status = StatusTerminated
	case truncated:
		e.status = StatusTruncated
	}

	ctx := logging.ContextWithEpisodeID(context.Background(), e.episodeID)
	e.log.Debug(ctx, "box placed",
		logging.Int("step", e.step),
		logging.Int("box_id", box.ID),
		logging.Int("sensor_type", box.SensorType),
		logging.Int("ports", box.PortCapacity),
		logging.Int("connected", len(newly)),
		logging.Float("reward", reward),
	)
	if e.metrics != nil {
		e.metrics.StepObserved(reward, info.Coverage)
	}
	if e.status.Done() {
		e.log.Info(ctx, "episode finished",
			logging.String("outcome", e.status.String()),
			logging.Int("steps", e.step),
			logging.Float("coverage", info.Coverage),
			logging.Float("total_reward", e.totalReward),
			logging.Float("cable_length", info.TotalCableLength),
		)
		if e.metrics != nil {
			e.metrics.EpisodeFinished(e.status.String(), e.step, info.Coverage)
		}
	}

	return StepResult{
		Observation: obs,
		Reward:      reward,
		Terminated:  terminated,
		Truncated:   truncated,
		Info:        info,
	}, nil
}

func (e *Environment) buildInfo(components core.RewardComponents) StepInfo {
	connected := e.conns.Len()
	return StepInfo{
		TotalCableLength:     e.totalCableLength(),
		NumBoxes:             len(e.boxes),
		Coverage:             e.coverage(),
		NumConnected:         connected,
		NumUnconnected:       len(e.scenario.Sensors) - connected,
		ConstraintViolations: e.constraintViolations(),
		RewardComponents:     components,
		Step:                 e.step,
	}
}

func (e *Environment) observe() []float32 {
	return core.EncodeObservation(core.ObservationView{
		Space:          e.cfg.Space,
		NumSensorTypes: e.cfg.NumSensorTypes,
		Sensors:        e.scenario.Sensors,
		Constraints:    e.scenario.Constraints,
		Boxes:          e.boxes,
		Connections:    e.conns,
		MaxBoxes:       e.cfg.MaxJunctionBoxes,
		Step:           e.step,
		PortOptions:    e.cfg.PortOptions,
	})
}

// totalCableLength rescans every box and sums the distance to each sensor
// bound to it. It is recomputed on each call rather than accumulated.
func (e *Environment) totalCableLength() float64 {
	total := 0.0
	for _, box := range e.boxes {
		for _, id := range e.conns.SensorsOn(box.ID) {
			total += e.scenario.Sensors[id].Position.DistanceTo(box.Position)
		}
	}
	return total
}

func (e *Environment) constraintViolations() int {
	n := 0
	for _, box := range e.boxes {
		if e.scenario.Constraints.IsBlocked(box.Position) {
			n++
		}
	}
	return n
}

func (e *Environment) coverage() float64 {
	if e.scenario == nil {
		return 0
	}
	return core.Coverage(e.conns.Len(), len(e.scenario.Sensors))
}

// Status returns the current lifecycle state.
func (e *Environment) Status() Status { return e.status }

// EpisodeID returns the id minted by the last Reset.
func (e *Environment) EpisodeID() string { return e.episodeID }

// Info returns the most recent step info. It stays queryable after the
// episode ends.
func (e *Environment) Info() StepInfo { return e.lastInfo }

// TotalReward returns the sum of step rewards in the current episode.
func (e *Environment) TotalReward() float64 { return e.totalReward }

// StepCount returns the number of steps taken in the current episode.
func (e *Environment) StepCount() int { return e.step }

// Sensors returns a copy of the current sensor population.
func (e *Environment) Sensors() []model.Sensor {
	if e.scenario == nil {
		return nil
	}
	return append([]model.Sensor(nil), e.scenario.Sensors...)
}

// Constraints returns a copy of the current constraint list.
func (e *Environment) Constraints() []model.Cell {
	if e.scenario == nil {
		return nil
	}
	return e.scenario.Constraints.Cells()
}

// Boxes returns a copy of the boxes placed so far.
func (e *Environment) Boxes() []model.JunctionBox {
	return append([]model.JunctionBox(nil), e.boxes...)
}

// ConnectedTo returns the ids of sensors bound to boxID.
func (e *Environment) ConnectedTo(boxID int) []int {
	return e.conns.SensorsOn(boxID)
}

// IsConnected reports whether the sensor is bound to any box.
func (e *Environment) IsConnected(sensorID int) bool {
	return e.conns.IsConnected(sensorID)
}
