package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/signalsfoundry/junctionbox-simulator/internal/config"
	"github.com/signalsfoundry/junctionbox-simulator/internal/envserver"
	"github.com/signalsfoundry/junctionbox-simulator/internal/logging"
)

func testLogger() logging.Logger {
	return logging.New(logging.Config{Level: "warn", Format: "text"})
}

// startTestServer runs the serve loop on a loopback listener until the test
// ends and returns its address.
func startTestServer(t *testing.T, cfg *config.Config) string {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, cfg, testLogger(), lis)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("run returned error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Errorf("server did not shut down within timeout")
		}
	})
	return lis.Addr().String()
}

func writeScenario(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.json")
	data := `{
  "space": {"x": 10, "y": 10, "z": 10},
  "sensors": [{"type": 0, "x": 5, "y": 5, "z": 5}],
  "constraints": [{"x": 0, "y": 0, "z": 0}]
}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write scenario: %v", err)
	}
	return path
}

func smallConfig() *config.Config {
	cfg := config.Default()
	cfg.Environment.Space = config.SpaceConfig{X: 10, Y: 10, Z: 10}
	cfg.Environment.NumSensorTypes = 1
	cfg.Environment.SensorsPerType = []int{1}
	cfg.Environment.MaxJunctionBoxes = 5
	cfg.Server.MetricsAddr = ""
	return cfg
}

func TestServeStartupSmoke(t *testing.T) {
	cfg := config.Default()
	cfg.Server.MetricsAddr = ""
	addr := startTestServer(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	defer conn.Close()

	seed := uint64(9)
	client := envserver.NewClient(conn)
	reply, err := client.Reset(ctx, envserver.ResetRequest{Seed: &seed})
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if reply.Info.NumSensors != 45 || reply.Info.SpaceVolume != 50*50*50 {
		t.Fatalf("reset info = %+v", reply.Info)
	}
	if err := client.Close(ctx, reply.SessionID); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestRolloutLocalSQLite(t *testing.T) {
	dir := t.TempDir()
	cfg := smallConfig()
	cfg.Rollout.Agent = "centroid"
	cfg.Rollout.Episodes = 3
	cfg.Rollout.Parallel = 2
	cfg.Rollout.Seed = 100
	cfg.Rollout.Scenario = writeScenario(t)
	cfg.Storage.Backend = "sqlite"
	cfg.Storage.Path = filepath.Join(dir, "results.db")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	metricsPath := filepath.Join(dir, "rollout.prom")
	var out bytes.Buffer
	tally, err := runRollout(context.Background(), cfg, rolloutOptions{RunID: "run-1", MetricsFile: metricsPath, JSON: true}, testLogger(), &out)
	if err != nil {
		t.Fatalf("runRollout: %v", err)
	}
	if tally.Episodes != 3 || tally.Successes != 3 || tally.Terminated != 3 {
		t.Fatalf("tally = %+v", tally)
	}

	var summary rolloutSummary
	if err := json.Unmarshal(out.Bytes(), &summary); err != nil {
		t.Fatalf("decode summary %q: %v", out.String(), err)
	}
	if summary.RunID != "run-1" || summary.Stored != 3 || summary.SuccessRate != 1 {
		t.Fatalf("summary = %+v", summary)
	}

	metrics, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatalf("read metrics file: %v", err)
	}
	if !strings.Contains(string(metrics), `rollout_episodes_total{agent="centroid",outcome="terminated"} 3`) {
		t.Fatalf("metrics file missing episode counter:\n%s", metrics)
	}
}

func TestRolloutRemote(t *testing.T) {
	cfg := smallConfig()
	addr := startTestServer(t, cfg)

	cfg.Rollout.Remote = addr
	cfg.Rollout.Agent = "random"
	cfg.Rollout.Episodes = 2
	cfg.Rollout.MaxSteps = 2
	cfg.Rollout.Scenario = writeScenario(t)

	var out bytes.Buffer
	tally, err := runRollout(context.Background(), cfg, rolloutOptions{}, testLogger(), &out)
	if err != nil {
		t.Fatalf("runRollout: %v", err)
	}
	if tally.Episodes != 2 {
		t.Fatalf("tally = %+v", tally)
	}
	if !strings.Contains(out.String(), "2 episodes") || !strings.Contains(out.String(), "2 results stored") {
		t.Fatalf("summary = %q", out.String())
	}
}

func TestRolloutUnknownAgent(t *testing.T) {
	cfg := smallConfig()
	cfg.Rollout.Agent = "greedy"

	_, err := runRollout(context.Background(), cfg, rolloutOptions{}, testLogger(), &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "unknown agent") {
		t.Fatalf("runRollout error = %v, want unknown agent", err)
	}
}

func TestRolloutMissingScenario(t *testing.T) {
	cfg := smallConfig()
	cfg.Rollout.Scenario = filepath.Join(t.TempDir(), "missing.json")

	if _, err := runRollout(context.Background(), cfg, rolloutOptions{}, testLogger(), &bytes.Buffer{}); err == nil {
		t.Fatalf("expected error for a missing scenario file")
	}
}

func TestApplyRolloutFlags(t *testing.T) {
	cmd := newRolloutCmd()
	if err := cmd.ParseFlags([]string{"--episodes=4", "--agent=centroid", "--seed=18446744073709551615", "--store=sqlite", "--db=/tmp/x.db"}); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}

	cfg := config.Default()
	cfg.Rollout.Parallel = 3
	applyRolloutFlags(cmd, cfg)

	if cfg.Rollout.Episodes != 4 || cfg.Rollout.Agent != "centroid" || cfg.Rollout.Seed != ^uint64(0) {
		t.Fatalf("rollout = %+v", cfg.Rollout)
	}
	if cfg.Storage.Backend != "sqlite" || cfg.Storage.Path != "/tmp/x.db" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.Rollout.Parallel != 3 {
		t.Fatalf("unset flag overrode parallel: %d", cfg.Rollout.Parallel)
	}
}

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	want := map[string]bool{"version": false, "serve": false, "rollout": false}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out.String(), "jboxsim version "+version) {
		t.Fatalf("version output = %q", out.String())
	}
}
