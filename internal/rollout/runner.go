// Package rollout drives agents through environments and collects per-episode
// results, one episode per goroutine when run in parallel.
package rollout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/junctionbox-simulator/internal/agent"
	"github.com/signalsfoundry/junctionbox-simulator/internal/logging"
)

// Runner holds the factories for one batch of episodes. Every episode gets a
// fresh environment and agent, so episodes never share mutable state.
type Runner struct {
	NewEnv   func(ctx context.Context) (Env, error)
	NewAgent func(seed uint64) (agent.Agent, error)
	// AgentName is copied onto every Result.
	AgentName string
	// MaxSteps caps an episode independently of the box budget. Zero means
	// no cap.
	MaxSteps int
	RunID    string
	Log      logging.Logger
	// OnResult, when set, is called after every episode. It may be called
	// from several goroutines at once.
	OnResult func(ctx context.Context, res Result) error
	now      func() time.Time
}

func (r *Runner) validate() error {
	if r.NewEnv == nil {
		return errors.New("rollout: NewEnv is required")
	}
	if r.NewAgent == nil {
		return errors.New("rollout: NewAgent is required")
	}
	return nil
}

func (r *Runner) logger() logging.Logger {
	if r.Log == nil {
		return logging.Noop()
	}
	return r.Log
}

func (r *Runner) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now().UTC()
}

// RunEpisode plays one episode to the end with the given seed.
func (r *Runner) RunEpisode(ctx context.Context, seed uint64) (Result, error) {
	if err := r.validate(); err != nil {
		return Result{}, err
	}

	env, err := r.NewEnv(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("create environment: %w", err)
	}
	defer func() { _ = env.Close(context.WithoutCancel(ctx)) }()

	ag, err := r.NewAgent(seed)
	if err != nil {
		return Result{}, fmt.Errorf("create agent: %w", err)
	}

	start := r.clock()
	obs, episodeID, err := env.Reset(ctx, seed)
	if err != nil {
		return Result{}, fmt.Errorf("reset: %w", err)
	}
	ctx, log := logging.WithEpisodeLogger(ctx, r.logger(), episodeID)

	res := Result{
		RunID:     r.RunID,
		EpisodeID: episodeID,
		Seed:      seed,
		Agent:     r.AgentName,
	}
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		action, err := ag.SelectAction(obs)
		if err != nil {
			return Result{}, fmt.Errorf("select action at step %d: %w", res.Steps, err)
		}
		step, err := env.Step(ctx, action)
		if err != nil {
			return Result{}, fmt.Errorf("step %d: %w", res.Steps, err)
		}
		obs = step.Observation
		res.Steps++
		res.TotalReward += step.Reward
		res.Coverage = step.Info.Coverage
		res.CableLength = step.Info.TotalCableLength
		res.NumBoxes = step.Info.NumBoxes
		res.Violations = step.Info.ConstraintViolations
		res.Success = IsSuccess(step.Info)

		if step.Terminated {
			res.Outcome = OutcomeTerminated
			break
		}
		if step.Truncated {
			res.Outcome = OutcomeTruncated
			break
		}
		if r.MaxSteps > 0 && res.Steps >= r.MaxSteps {
			res.Outcome = OutcomeStepLimit
			break
		}
	}
	res.FinishedAt = r.clock()
	res.Duration = res.FinishedAt.Sub(start)

	log.Info(ctx, "rollout episode finished",
		logging.Any("seed", seed),
		logging.String("outcome", res.Outcome),
		logging.Int("steps", res.Steps),
		logging.Float("total_reward", res.TotalReward),
		logging.Float("coverage", res.Coverage),
		logging.Bool("success", res.Success),
	)

	if r.OnResult != nil {
		if err := r.OnResult(ctx, res); err != nil {
			return Result{}, fmt.Errorf("record result: %w", err)
		}
	}
	return res, nil
}

// Run plays one episode per seed using at most parallelism goroutines and
// returns results in seed order. The first error cancels the remaining
// episodes.
func (r *Runner) Run(ctx context.Context, seeds []uint64, parallelism int) ([]Result, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	if parallelism <= 0 {
		parallelism = 1
	}

	results := make([]Result, len(seeds))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, seed := range seeds {
		i, seed := i, seed
		g.Go(func() error {
			res, err := r.RunEpisode(gctx, seed)
			if err != nil {
				return fmt.Errorf("episode with seed %d: %w", seed, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Seeds returns n consecutive seeds starting at base.
func Seeds(base uint64, n int) []uint64 {
	if n <= 0 {
		return nil
	}
	out := make([]uint64, n)
	for i := range out {
		out[i] = base + uint64(i)
	}
	return out
}
