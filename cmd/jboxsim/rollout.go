package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/junctionbox-simulator/core"
	"github.com/signalsfoundry/junctionbox-simulator/internal/agent"
	"github.com/signalsfoundry/junctionbox-simulator/internal/config"
	"github.com/signalsfoundry/junctionbox-simulator/internal/envserver"
	"github.com/signalsfoundry/junctionbox-simulator/internal/logging"
	"github.com/signalsfoundry/junctionbox-simulator/internal/observability"
	"github.com/signalsfoundry/junctionbox-simulator/internal/rollout"
	"github.com/signalsfoundry/junctionbox-simulator/internal/sim/episode"
	"github.com/signalsfoundry/junctionbox-simulator/internal/storage"
)

// rolloutOptions are the rollout settings that only exist as flags.
type rolloutOptions struct {
	RunID       string
	MetricsFile string
	JSON        bool
}

func newRolloutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollout",
		Short: "Run a baseline agent for a batch of episodes",
		Long: `Rollout plays --episodes episodes with consecutive seeds starting at --seed,
using the random or centroid baseline agent. Episodes run in-process unless
--remote names a jboxsim server. Every result is written to the selected
store and a summary is printed at the end.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			applyRolloutFlags(cmd, cfg)

			opts := rolloutOptions{}
			opts.RunID, _ = cmd.Flags().GetString("run-id")
			opts.MetricsFile, _ = cmd.Flags().GetString("metrics-file")
			opts.JSON, _ = cmd.Flags().GetBool("json")

			ctx, log, cleanup, err := startCommand(cmd, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			_, err = runRollout(ctx, cfg, opts, log, cmd.OutOrStdout())
			return err
		},
	}

	cmd.Flags().Int("episodes", 10, "Number of episodes to run")
	cmd.Flags().Int("parallel", 1, "Episodes run concurrently")
	cmd.Flags().String("agent", "random", "Baseline agent: random or centroid")
	cmd.Flags().Uint64("seed", 0, "Seed of the first episode")
	cmd.Flags().Int("max-steps", 0, "Step cap per episode (0 = box budget only)")
	cmd.Flags().String("store", "memory", "Result store: memory or sqlite")
	cmd.Flags().String("db", "jboxsim.db", "SQLite database path")
	cmd.Flags().String("scenario", "", "JSON scenario file replayed on every episode")
	cmd.Flags().String("remote", "", "Address of a jboxsim server to run against")
	cmd.Flags().String("run-id", "", "Identifier stored with every result (default: random)")
	cmd.Flags().String("metrics-file", "", "Write rollout metrics in Prometheus text format to this path")
	cmd.Flags().Bool("json", false, "Print the summary as JSON")
	return cmd
}

// applyRolloutFlags overrides cfg with the flags the user set explicitly.
func applyRolloutFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("episodes") {
		cfg.Rollout.Episodes, _ = flags.GetInt("episodes")
	}
	if flags.Changed("parallel") {
		cfg.Rollout.Parallel, _ = flags.GetInt("parallel")
	}
	if flags.Changed("agent") {
		cfg.Rollout.Agent, _ = flags.GetString("agent")
	}
	if flags.Changed("seed") {
		cfg.Rollout.Seed, _ = flags.GetUint64("seed")
	}
	if flags.Changed("max-steps") {
		cfg.Rollout.MaxSteps, _ = flags.GetInt("max-steps")
	}
	if flags.Changed("store") {
		cfg.Storage.Backend, _ = flags.GetString("store")
	}
	if flags.Changed("db") {
		cfg.Storage.Path, _ = flags.GetString("db")
	}
	if flags.Changed("scenario") {
		cfg.Rollout.Scenario, _ = flags.GetString("scenario")
	}
	if flags.Changed("remote") {
		cfg.Rollout.Remote, _ = flags.GetString("remote")
	}
}

// rolloutSummary is the printed outcome of a batch.
type rolloutSummary struct {
	RunID        string  `json:"run_id"`
	Agent        string  `json:"agent"`
	Episodes     int     `json:"episodes"`
	Terminated   int     `json:"terminated"`
	Truncated    int     `json:"truncated"`
	StepLimited  int     `json:"step_limited"`
	Successes    int     `json:"successes"`
	SuccessRate  float64 `json:"success_rate"`
	MeanReward   float64 `json:"mean_reward"`
	MeanCoverage float64 `json:"mean_coverage"`
	Stored       int     `json:"stored"`
}

// runRollout plays the configured batch, stores every result and writes a
// summary to out.
func runRollout(ctx context.Context, cfg *config.Config, opts rolloutOptions, log logging.Logger, out io.Writer) (rollout.Tally, error) {
	if _, err := agent.New(cfg.Rollout.Agent, 0, 1); err != nil {
		return rollout.Tally{}, err
	}
	runID := opts.RunID
	if runID == "" {
		runID = logging.NewID()
	}
	log = log.With(logging.String("run_id", runID))

	store, err := storage.NewStore(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		return rollout.Tally{}, err
	}
	if err := store.Init(ctx); err != nil {
		return rollout.Tally{}, fmt.Errorf("init store: %w", err)
	}
	defer store.Close()

	collector, err := observability.NewRolloutCollector(prometheus.NewRegistry())
	if err != nil {
		return rollout.Tally{}, fmt.Errorf("initialise rollout metrics: %w", err)
	}

	newEnv, closeEnvs, err := envFactory(cfg, log)
	if err != nil {
		return rollout.Tally{}, err
	}
	defer closeEnvs()

	epCfg := cfg.EpisodeConfig()
	runner := &rollout.Runner{
		NewEnv: newEnv,
		NewAgent: func(seed uint64) (agent.Agent, error) {
			return agent.New(cfg.Rollout.Agent, seed, epCfg.NumSensorTypes)
		},
		AgentName: cfg.Rollout.Agent,
		MaxSteps:  cfg.Rollout.MaxSteps,
		RunID:     runID,
		Log:       log,
		OnResult: func(ctx context.Context, res rollout.Result) error {
			collector.ObserveEpisode(res.Agent, res.Outcome, res.TotalReward, res.Duration)
			return store.SaveResult(ctx, res)
		},
	}

	log.Info(ctx, "starting rollout",
		logging.String("agent", cfg.Rollout.Agent),
		logging.Int("episodes", cfg.Rollout.Episodes),
		logging.Int("parallel", cfg.Rollout.Parallel),
		logging.Any("seed", cfg.Rollout.Seed),
		logging.String("store", cfg.Storage.Backend),
		logging.Bool("remote", cfg.Rollout.Remote != ""),
	)
	results, err := runner.Run(ctx, rollout.Seeds(cfg.Rollout.Seed, cfg.Rollout.Episodes), cfg.Rollout.Parallel)
	if err != nil {
		return rollout.Tally{}, fmt.Errorf("rollout: %w", err)
	}

	tally := rollout.Summarize(results)
	collector.SetSuccessRatio(tally.SuccessRate())
	if opts.MetricsFile != "" {
		if err := collector.WriteTextfile(opts.MetricsFile); err != nil {
			return tally, fmt.Errorf("write metrics file: %w", err)
		}
	}

	stored, err := store.ListResults(ctx, runID)
	if err != nil {
		return tally, fmt.Errorf("list stored results: %w", err)
	}

	summary := rolloutSummary{
		RunID:        runID,
		Agent:        cfg.Rollout.Agent,
		Episodes:     tally.Episodes,
		Terminated:   tally.Terminated,
		Truncated:    tally.Truncated,
		StepLimited:  tally.StepLimited,
		Successes:    tally.Successes,
		SuccessRate:  tally.SuccessRate(),
		MeanReward:   tally.MeanReward,
		MeanCoverage: tally.MeanCoverage,
		Stored:       len(stored),
	}
	log.Info(ctx, "rollout finished",
		logging.Int("episodes", summary.Episodes),
		logging.Int("successes", summary.Successes),
		logging.Float("mean_reward", summary.MeanReward),
		logging.Float("mean_coverage", summary.MeanCoverage),
	)
	return tally, printSummary(out, summary, opts.JSON)
}

func printSummary(out io.Writer, s rolloutSummary, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
	_, err := fmt.Fprintf(out,
		"run %s (%s): %d episodes, %d terminated, %d truncated, %d step-limited\n"+
			"success rate %.2f, mean reward %.2f, mean coverage %.2f%%, %d results stored\n",
		s.RunID, s.Agent, s.Episodes, s.Terminated, s.Truncated, s.StepLimited,
		s.SuccessRate, s.MeanReward, s.MeanCoverage*100, s.Stored,
	)
	return err
}

// envFactory returns a constructor for per-episode environments and a
// function releasing anything the constructors share.
func envFactory(cfg *config.Config, log logging.Logger) (func(context.Context) (rollout.Env, error), func(), error) {
	epCfg := cfg.EpisodeConfig()

	if cfg.Rollout.Remote != "" {
		var scenario *structpb.Struct
		if cfg.Rollout.Scenario != "" {
			data, err := os.ReadFile(cfg.Rollout.Scenario)
			if err != nil {
				return nil, nil, fmt.Errorf("read scenario: %w", err)
			}
			scenario = &structpb.Struct{}
			if err := scenario.UnmarshalJSON(data); err != nil {
				return nil, nil, fmt.Errorf("parse scenario %s: %w", cfg.Rollout.Scenario, err)
			}
		}

		conn, err := grpc.NewClient(cfg.Rollout.Remote,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
			grpc.WithUnaryInterceptor(envserver.RequestIDUnaryClientInterceptor()),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("dial %s: %w", cfg.Rollout.Remote, err)
		}
		client := envserver.NewClient(conn)
		newEnv := func(context.Context) (rollout.Env, error) {
			return client.NewRemoteEnv(&epCfg, scenario), nil
		}
		return newEnv, func() { _ = conn.Close() }, nil
	}

	var scenario *core.Scenario
	if cfg.Rollout.Scenario != "" {
		f, err := os.Open(cfg.Rollout.Scenario)
		if err != nil {
			return nil, nil, fmt.Errorf("open scenario: %w", err)
		}
		defer f.Close()
		if scenario, err = core.LoadScenario(f); err != nil {
			return nil, nil, err
		}
		if err := scenario.Validate(epCfg.NumSensorTypes); err != nil {
			return nil, nil, err
		}
	}

	newEnv := func(context.Context) (rollout.Env, error) {
		env, err := episode.NewEnvironment(epCfg, log)
		if err != nil {
			return nil, err
		}
		return rollout.NewLocalEnv(env, scenario), nil
	}
	return newEnv, func() {}, nil
}
