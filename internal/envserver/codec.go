package envserver

import (
	"bytes"
	"fmt"
	"math"
	"strconv"

	"github.com/signalsfoundry/junctionbox-simulator/core"
	"github.com/signalsfoundry/junctionbox-simulator/internal/sim/episode"
	"github.com/signalsfoundry/junctionbox-simulator/model"
	"google.golang.org/protobuf/types/known/structpb"
)

// Message field names shared by the server and the client.
const (
	fieldSessionID      = "session_id"
	fieldEpisodeID      = "episode_id"
	fieldSeed           = "seed"
	fieldConfig         = "config"
	fieldScenario       = "scenario"
	fieldAction         = "action"
	fieldObservation    = "observation"
	fieldReward         = "reward"
	fieldTerminated     = "terminated"
	fieldTruncated      = "truncated"
	fieldInfo           = "info"
	fieldStatus         = "status"
	fieldStep           = "step"
	fieldTotalReward    = "total_reward"
	fieldRender         = "render"
	fieldNumSensorTypes = "num_sensor_types"
)

// maxExactInteger is the largest integer a float64 holds exactly.
const maxExactInteger = 1 << 53

func numberValue(v float64) *structpb.Value { return structpb.NewNumberValue(v) }

func intValue(v int) *structpb.Value { return structpb.NewNumberValue(float64(v)) }

func float32List(xs []float32) *structpb.Value {
	values := make([]*structpb.Value, len(xs))
	for i, x := range xs {
		values[i] = numberValue(float64(x))
	}
	return structpb.NewListValue(&structpb.ListValue{Values: values})
}

func float64List(xs []float64) *structpb.Value {
	values := make([]*structpb.Value, len(xs))
	for i, x := range xs {
		values[i] = numberValue(x)
	}
	return structpb.NewListValue(&structpb.ListValue{Values: values})
}

func intList(xs []int) *structpb.Value {
	values := make([]*structpb.Value, len(xs))
	for i, x := range xs {
		values[i] = intValue(x)
	}
	return structpb.NewListValue(&structpb.ListValue{Values: values})
}

func structValue(fields map[string]*structpb.Value) *structpb.Value {
	return structpb.NewStructValue(&structpb.Struct{Fields: fields})
}

func resetInfoValue(info episode.ResetInfo) *structpb.Value {
	return structValue(map[string]*structpb.Value{
		fieldEpisodeID:    structpb.NewStringValue(info.EpisodeID),
		"num_sensors":     intValue(info.NumSensors),
		"num_constraints": intValue(info.NumConstraints),
		"space_volume":    intValue(info.SpaceVolume),
	})
}

func stepInfoValue(info episode.StepInfo) *structpb.Value {
	components := make(map[string]*structpb.Value, 6)
	for name, v := range info.RewardComponents.Map() {
		components[name] = numberValue(v)
	}
	return structValue(map[string]*structpb.Value{
		"total_cable_length":    numberValue(info.TotalCableLength),
		"num_boxes":             intValue(info.NumBoxes),
		"coverage":              numberValue(info.Coverage),
		"num_connected":         intValue(info.NumConnected),
		"num_unconnected":       intValue(info.NumUnconnected),
		"constraint_violations": intValue(info.ConstraintViolations),
		"reward_components":     structValue(components),
		fieldStep:               intValue(info.Step),
	})
}

func configValue(cfg episode.Config) *structpb.Value {
	return structValue(map[string]*structpb.Value{
		"space": structValue(map[string]*structpb.Value{
			"x": intValue(cfg.Space.X),
			"y": intValue(cfg.Space.Y),
			"z": intValue(cfg.Space.Z),
		}),
		fieldNumSensorTypes:  intValue(cfg.NumSensorTypes),
		"sensors_per_type":   intList(cfg.SensorsPerType),
		"constraint_ratio":   numberValue(cfg.ConstraintRatio),
		"max_junction_boxes": intValue(cfg.MaxJunctionBoxes),
		"port_options":       intList(cfg.PortOptions[:]),
	})
}

func stringField(s *structpb.Struct, key string) (string, error) {
	v, ok := s.GetFields()[key]
	if !ok {
		return "", nil
	}
	str, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", ErrInvalidRequest, key)
	}
	return str.StringValue, nil
}

func numberField(s *structpb.Struct, key string) (float64, bool, error) {
	v, ok := s.GetFields()[key]
	if !ok {
		return 0, false, nil
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, false, fmt.Errorf("%w: %s must be a number", ErrInvalidRequest, key)
	}
	return n.NumberValue, true, nil
}

func toInt(key string, f float64) (int, error) {
	if f != math.Trunc(f) || math.Abs(f) > maxExactInteger {
		return 0, fmt.Errorf("%w: %s must be an integer, got %v", ErrInvalidRequest, key, f)
	}
	return int(f), nil
}

func intField(s *structpb.Struct, key string) (int, bool, error) {
	f, ok, err := numberField(s, key)
	if err != nil || !ok {
		return 0, ok, err
	}
	n, err := toInt(key, f)
	return n, true, err
}

func boolField(s *structpb.Struct, key string) bool {
	return s.GetFields()[key].GetBoolValue()
}

func numberList(s *structpb.Struct, key string) ([]float64, bool, error) {
	v, ok := s.GetFields()[key]
	if !ok {
		return nil, false, nil
	}
	list, ok := v.GetKind().(*structpb.Value_ListValue)
	if !ok {
		return nil, false, fmt.Errorf("%w: %s must be a list", ErrInvalidRequest, key)
	}
	out := make([]float64, len(list.ListValue.GetValues()))
	for i, item := range list.ListValue.GetValues() {
		n, ok := item.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, false, fmt.Errorf("%w: %s[%d] must be a number", ErrInvalidRequest, key, i)
		}
		out[i] = n.NumberValue
	}
	return out, true, nil
}

func intListField(s *structpb.Struct, key string) ([]int, bool, error) {
	nums, ok, err := numberList(s, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	out := make([]int, len(nums))
	for i, f := range nums {
		if out[i], err = toInt(fmt.Sprintf("%s[%d]", key, i), f); err != nil {
			return nil, false, err
		}
	}
	return out, true, nil
}

func structField(s *structpb.Struct, key string) (*structpb.Struct, bool, error) {
	v, ok := s.GetFields()[key]
	if !ok {
		return nil, false, nil
	}
	st, ok := v.GetKind().(*structpb.Value_StructValue)
	if !ok {
		return nil, false, fmt.Errorf("%w: %s must be an object", ErrInvalidRequest, key)
	}
	return st.StructValue, true, nil
}

// seedField accepts a non-negative integer number or, for seeds above 2^53,
// a decimal string.
func seedField(s *structpb.Struct) (*uint64, error) {
	v, ok := s.GetFields()[fieldSeed]
	if !ok {
		return nil, nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		f := k.NumberValue
		if f < 0 || f != math.Trunc(f) || f > maxExactInteger {
			return nil, fmt.Errorf("%w: seed must be a non-negative integer up to 2^53, got %v", ErrInvalidRequest, f)
		}
		seed := uint64(f)
		return &seed, nil
	case *structpb.Value_StringValue:
		seed, err := strconv.ParseUint(k.StringValue, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: seed: %v", ErrInvalidRequest, err)
		}
		return &seed, nil
	case *structpb.Value_NullValue:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: seed must be a number or decimal string", ErrInvalidRequest)
	}
}

func actionField(s *structpb.Struct) ([]float64, error) {
	action, ok, err := numberList(s, fieldAction)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: action is required", ErrInvalidRequest)
	}
	return action, nil
}

// configOverlay applies the fields present in the request's config object
// on top of base.
func configOverlay(s *structpb.Struct, base episode.Config) (episode.Config, error) {
	cfg := base
	cfg.SensorsPerType = append([]int(nil), base.SensorsPerType...)

	raw, ok, err := structField(s, fieldConfig)
	if err != nil || !ok {
		return cfg, err
	}

	if space, ok, err := structField(raw, "space"); err != nil {
		return cfg, err
	} else if ok {
		for key, dst := range map[string]*int{"x": &cfg.Space.X, "y": &cfg.Space.Y, "z": &cfg.Space.Z} {
			n, present, err := intField(space, key)
			if err != nil {
				return cfg, err
			}
			if present {
				*dst = n
			}
		}
	}
	for key, dst := range map[string]*int{
		fieldNumSensorTypes:  &cfg.NumSensorTypes,
		"max_junction_boxes": &cfg.MaxJunctionBoxes,
	} {
		n, present, err := intField(raw, key)
		if err != nil {
			return cfg, err
		}
		if present {
			*dst = n
		}
	}
	if ratio, present, err := numberField(raw, "constraint_ratio"); err != nil {
		return cfg, err
	} else if present {
		cfg.ConstraintRatio = ratio
	}
	if counts, present, err := intListField(raw, "sensors_per_type"); err != nil {
		return cfg, err
	} else if present {
		cfg.SensorsPerType = counts
	}
	if ports, present, err := intListField(raw, "port_options"); err != nil {
		return cfg, err
	} else if present {
		if len(ports) != len(model.PortOptions{}) {
			return cfg, fmt.Errorf("%w: port_options needs %d entries, got %d", ErrInvalidRequest, len(model.PortOptions{}), len(ports))
		}
		copy(cfg.PortOptions[:], ports)
	}
	return cfg, nil
}

// scenarioField decodes an inline scenario in the same JSON shape
// core.LoadScenario reads from files.
func scenarioField(s *structpb.Struct) (*core.Scenario, error) {
	raw, ok, err := structField(s, fieldScenario)
	if err != nil || !ok {
		return nil, err
	}
	data, err := raw.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("%w: scenario: %v", ErrInvalidRequest, err)
	}
	return core.LoadScenario(bytes.NewReader(data))
}

func decodeObservation(s *structpb.Struct) ([]float32, error) {
	nums, ok, err := numberList(s, fieldObservation)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: response has no observation", ErrInvalidRequest)
	}
	out := make([]float32, len(nums))
	for i, f := range nums {
		out[i] = float32(f)
	}
	return out, nil
}

func decodeResetInfo(s *structpb.Struct) episode.ResetInfo {
	f := s.GetFields()
	return episode.ResetInfo{
		EpisodeID:      f[fieldEpisodeID].GetStringValue(),
		NumSensors:     int(f["num_sensors"].GetNumberValue()),
		NumConstraints: int(f["num_constraints"].GetNumberValue()),
		SpaceVolume:    int(f["space_volume"].GetNumberValue()),
	}
}

func decodeStepInfo(s *structpb.Struct) episode.StepInfo {
	f := s.GetFields()
	rc := f["reward_components"].GetStructValue().GetFields()
	return episode.StepInfo{
		TotalCableLength:     f["total_cable_length"].GetNumberValue(),
		NumBoxes:             int(f["num_boxes"].GetNumberValue()),
		Coverage:             f["coverage"].GetNumberValue(),
		NumConnected:         int(f["num_connected"].GetNumberValue()),
		NumUnconnected:       int(f["num_unconnected"].GetNumberValue()),
		ConstraintViolations: int(f["constraint_violations"].GetNumberValue()),
		RewardComponents: core.RewardComponents{
			Coverage:   rc[core.ComponentCoverage].GetNumberValue(),
			Cable:      rc[core.ComponentCable].GetNumberValue(),
			BoxCost:    rc[core.ComponentBoxCost].GetNumberValue(),
			Constraint: rc[core.ComponentConstraint].GetNumberValue(),
			Progress:   rc[core.ComponentProgress].GetNumberValue(),
			Completion: rc[core.ComponentCompletion].GetNumberValue(),
		},
		Step: int(f[fieldStep].GetNumberValue()),
	}
}
