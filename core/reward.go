package core

import "github.com/signalsfoundry/junctionbox-simulator/model"

// Reward weights for a single placement.
const (
	CoverageRewardPerSensor = 100.0
	CablePenaltyPerUnit     = 0.5
	BoxPenalty              = 10.0
	ConstraintPenalty       = 1000.0
	NoProgressPenalty       = 50.0
	CompletionBonus         = 1000.0
	EfficiencyBonus         = 500.0
)

// Reward component names as exposed in step info.
const (
	ComponentCoverage   = "coverage"
	ComponentCable      = "cable"
	ComponentBoxCost    = "box_cost"
	ComponentConstraint = "constraint"
	ComponentProgress   = "progress"
	ComponentCompletion = "completion"
)

// ComponentOrder is the order Total adds components in.
var ComponentOrder = []string{
	ComponentCoverage,
	ComponentCable,
	ComponentBoxCost,
	ComponentConstraint,
	ComponentProgress,
	ComponentCompletion,
}

// RewardComponents is the additive breakdown of one placement's reward.
// Penalties are stored with their negative sign.
type RewardComponents struct {
	Coverage   float64 `json:"coverage"`
	Cable      float64 `json:"cable"`
	BoxCost    float64 `json:"box_cost"`
	Constraint float64 `json:"constraint"`
	Progress   float64 `json:"progress"`
	Completion float64 `json:"completion"`
}

// Total sums the components in declaration order. Step rewards are produced
// by this method, so the breakdown always reconciles with the reward.
func (rc RewardComponents) Total() float64 {
	return rc.Coverage + rc.Cable + rc.BoxCost + rc.Constraint + rc.Progress + rc.Completion
}

// Map returns the components keyed by their stable names. Map iteration
// order is random and float addition is order-sensitive, so reconcile a
// breakdown with its reward through SumComponents.
func (rc RewardComponents) Map() map[string]float64 {
	return map[string]float64{
		ComponentCoverage:   rc.Coverage,
		ComponentCable:      rc.Cable,
		ComponentBoxCost:    rc.BoxCost,
		ComponentConstraint: rc.Constraint,
		ComponentProgress:   rc.Progress,
		ComponentCompletion: rc.Completion,
	}
}

// SumComponents adds a component map in ComponentOrder, which reproduces
// Total bit for bit. Unknown keys are ignored.
func SumComponents(components map[string]float64) float64 {
	var total float64
	for _, name := range ComponentOrder {
		total += components[name]
	}
	return total
}

// RewardInput is everything ScoreRewards needs about the placement just made.
type RewardInput struct {
	Box            model.JunctionBox
	NewlyConnected []model.Sensor
	// Blocked is true when the box sits in a constraint cell.
	Blocked bool
	// AllConnected is true when every sensor is connected after this placement.
	AllConnected bool
	// BoxesPlaced counts boxes including this one.
	BoxesPlaced int
	SensorCount int
}

// ScoreRewards computes the reward breakdown for one placement.
func ScoreRewards(in RewardInput) RewardComponents {
	var rc RewardComponents

	rc.Coverage = CoverageRewardPerSensor * float64(len(in.NewlyConnected))

	cable := 0.0
	for _, s := range in.NewlyConnected {
		cable += s.Position.DistanceTo(in.Box.Position)
	}
	rc.Cable = -CablePenaltyPerUnit * cable

	rc.BoxCost = -BoxPenalty

	if in.Blocked {
		rc.Constraint = -ConstraintPenalty
	}

	if len(in.NewlyConnected) == 0 {
		rc.Progress = -NoProgressPenalty
	}

	if in.AllConnected {
		rc.Completion = CompletionBonus
		if float64(in.BoxesPlaced) < float64(in.SensorCount)/4 {
			rc.Completion += EfficiencyBonus
		}
	}

	return rc
}
