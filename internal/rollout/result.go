package rollout

import (
	"time"

	"github.com/signalsfoundry/junctionbox-simulator/internal/sim/episode"
)

// Outcome values recorded on a Result.
const (
	OutcomeTerminated = "terminated"
	OutcomeTruncated  = "truncated"
	// OutcomeStepLimit marks an episode cut short by Runner.MaxSteps.
	OutcomeStepLimit = "step_limit"
)

// Result is the summary of one finished episode.
type Result struct {
	RunID       string  `json:"run_id"`
	EpisodeID   string  `json:"episode_id"`
	Seed        uint64  `json:"seed"`
	Agent       string  `json:"agent"`
	TotalReward float64 `json:"total_reward"`
	Coverage    float64 `json:"coverage"`
	CableLength float64 `json:"cable_length"`
	NumBoxes    int     `json:"num_boxes"`
	Violations  int     `json:"constraint_violations"`
	Steps       int     `json:"steps"`
	Outcome     string  `json:"outcome"`
	Success     bool    `json:"success"`
	// Duration is the wall-clock time from reset to the last step.
	Duration   time.Duration `json:"duration"`
	FinishedAt time.Time     `json:"finished_at"`
}

// IsSuccess reports whether every sensor was connected without any box
// sitting in a constraint cell.
func IsSuccess(info episode.StepInfo) bool {
	return info.Coverage >= 1 && info.ConstraintViolations == 0
}

// Tally aggregates a batch of results.
type Tally struct {
	Episodes     int
	Terminated   int
	Truncated    int
	StepLimited  int
	Successes    int
	MeanReward   float64
	MeanCoverage float64
}

// Summarize counts outcomes and averages reward and coverage.
func Summarize(results []Result) Tally {
	var t Tally
	for _, r := range results {
		t.Episodes++
		switch r.Outcome {
		case OutcomeTerminated:
			t.Terminated++
		case OutcomeTruncated:
			t.Truncated++
		case OutcomeStepLimit:
			t.StepLimited++
		}
		if r.Success {
			t.Successes++
		}
		t.MeanReward += r.TotalReward
		t.MeanCoverage += r.Coverage
	}
	if t.Episodes > 0 {
		t.MeanReward /= float64(t.Episodes)
		t.MeanCoverage /= float64(t.Episodes)
	}
	return t
}

// SuccessRate is the fraction of successful episodes.
func (t Tally) SuccessRate() float64 {
	if t.Episodes == 0 {
		return 0
	}
	return float64(t.Successes) / float64(t.Episodes)
}
