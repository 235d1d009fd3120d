package episode

import "github.com/signalsfoundry/junctionbox-simulator/core"

// Status is the episode lifecycle state.
type Status int

const (
	// StatusPending means Reset has not been called yet.
	StatusPending Status = iota
	// StatusActive accepts Step calls.
	StatusActive
	// StatusTerminated means every sensor was connected.
	StatusTerminated
	// StatusTruncated means the box budget ran out first.
	StatusTruncated
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusActive:
		return "active"
	case StatusTerminated:
		return "terminated"
	case StatusTruncated:
		return "truncated"
	default:
		return "unknown"
	}
}

// Done reports whether the episode has ended.
func (s Status) Done() bool {
	return s == StatusTerminated || s == StatusTruncated
}

// ResetInfo describes the scenario generated by Reset.
type ResetInfo struct {
	EpisodeID      string `json:"episode_id"`
	NumSensors     int    `json:"num_sensors"`
	NumConstraints int    `json:"num_constraints"`
	SpaceVolume    int    `json:"space_volume"`
}

// StepInfo is the diagnostic record returned with every step. The field set
// is the same on every code path.
type StepInfo struct {
	TotalCableLength     float64               `json:"total_cable_length"`
	NumBoxes             int                   `json:"num_boxes"`
	Coverage             float64               `json:"coverage"`
	NumConnected         int                   `json:"num_connected"`
	NumUnconnected       int                   `json:"num_unconnected"`
	ConstraintViolations int                   `json:"constraint_violations"`
	RewardComponents     core.RewardComponents `json:"reward_components"`
	Step                 int                   `json:"step"`
}

// StepResult bundles everything Step hands back to the caller.
type StepResult struct {
	Observation []float32
	Reward      float64
	Terminated  bool
	Truncated   bool
	Info        StepInfo
}
