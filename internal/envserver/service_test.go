package envserver

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/signalsfoundry/junctionbox-simulator/core"
	"github.com/signalsfoundry/junctionbox-simulator/internal/logging"
	"github.com/signalsfoundry/junctionbox-simulator/internal/sim/episode"
	"github.com/signalsfoundry/junctionbox-simulator/model"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

func testDefaults() episode.Config {
	return episode.Config{
		Space:            model.Space{X: 10, Y: 10, Z: 10},
		NumSensorTypes:   1,
		SensorsPerType:   []int{1},
		MaxJunctionBoxes: 5,
		PortOptions:      model.DefaultPortOptions,
	}
}

// startServer runs the service on an in-memory listener and returns a
// client connected to it.
func startServer(t *testing.T, maxSessions int) (*Client, *EnvironmentService) {
	t.Helper()

	var n atomic.Int64
	svc := NewEnvironmentService(NewSessionRegistry(maxSessions), testDefaults(), logging.Noop(),
		WithSessionIDs(func() string { return fmt.Sprintf("session-%d", n.Add(1)) }),
	)
	srv := NewGRPCServer(svc, nil, logging.Noop())

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(RequestIDUnaryClientInterceptor()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return NewClient(conn), svc
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func singleSensorScenario(t *testing.T) *structpb.Struct {
	t.Helper()
	sc, err := structpb.NewStruct(map[string]interface{}{
		"space":       map[string]interface{}{"x": 10, "y": 10, "z": 10},
		"sensors":     []interface{}{map[string]interface{}{"type": 0, "x": 5, "y": 5, "z": 5}},
		"constraints": []interface{}{},
	})
	if err != nil {
		t.Fatalf("structpb.NewStruct: %v", err)
	}
	return sc
}

func seedPtr(v uint64) *uint64 { return &v }

func wantCode(t *testing.T, err error, code codes.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v error, got nil", code)
	}
	if got := status.Code(err); got != code {
		t.Fatalf("code = %v, want %v (err=%v)", got, code, err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()

	client, svc := startServer(t, 0)
	ctx := testContext(t)

	reply, err := client.Reset(ctx, ResetRequest{Seed: seedPtr(7), Scenario: singleSensorScenario(t)})
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if reply.SessionID != "session-1" {
		t.Fatalf("session id = %q, want session-1", reply.SessionID)
	}
	if len(reply.Observation) != core.ObservationSize {
		t.Fatalf("observation length = %d, want %d", len(reply.Observation), core.ObservationSize)
	}
	if reply.Info.NumSensors != 1 || reply.Info.SpaceVolume != 1000 || reply.Info.EpisodeID == "" {
		t.Fatalf("reset info = %+v", reply.Info)
	}
	if svc.Registry().Len() != 1 {
		t.Fatalf("registry has %d sessions, want 1", svc.Registry().Len())
	}

	info, err := client.Info(ctx, reply.SessionID)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Status != "active" || info.Step != 0 || info.EpisodeID != reply.Info.EpisodeID {
		t.Fatalf("info before step = %+v", info)
	}

	res, err := client.Step(ctx, reply.SessionID, []float64{0.5, 0.5, 0.5, 0, 0})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if !res.Terminated || res.Truncated || res.Reward != 1090 {
		t.Fatalf("step = terminated %v truncated %v reward %v", res.Terminated, res.Truncated, res.Reward)
	}
	if res.Info.Coverage != 1 || res.Info.NumBoxes != 1 || res.Info.RewardComponents.Completion != 1000 {
		t.Fatalf("step info = %+v", res.Info)
	}

	info, err = client.Info(ctx, reply.SessionID)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Status != "terminated" || info.Step != 1 || info.TotalReward != 1090 {
		t.Fatalf("info after step = %+v", info)
	}
	if !strings.Contains(info.Render, "Coverage: 100.00%") {
		t.Fatalf("render = %q", info.Render)
	}

	_, err = client.Step(ctx, reply.SessionID, []float64{0.5, 0.5, 0.5, 0, 0})
	wantCode(t, err, codes.FailedPrecondition)

	if err := client.Close(ctx, reply.SessionID); err != nil {
		t.Fatalf("Close: %v", err)
	}
	_, err = client.Info(ctx, reply.SessionID)
	wantCode(t, err, codes.NotFound)
	if svc.Registry().Len() != 0 {
		t.Fatalf("registry has %d sessions after close", svc.Registry().Len())
	}
}

func TestResetExistingSessionStartsNewEpisode(t *testing.T) {
	t.Parallel()

	client, _ := startServer(t, 0)
	ctx := testContext(t)

	first, err := client.Reset(ctx, ResetRequest{Seed: seedPtr(3)})
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	second, err := client.Reset(ctx, ResetRequest{SessionID: first.SessionID, Seed: seedPtr(3)})
	if err != nil {
		t.Fatalf("Reset existing: %v", err)
	}
	if second.SessionID != first.SessionID {
		t.Fatalf("session changed from %q to %q", first.SessionID, second.SessionID)
	}
	if second.Info.EpisodeID == first.Info.EpisodeID {
		t.Fatalf("episode id was not renewed")
	}
	for i := range first.Observation {
		if first.Observation[i] != second.Observation[i] {
			t.Fatalf("observation[%d] differs for the same seed: %v vs %v", i, first.Observation[i], second.Observation[i])
		}
	}
}

func TestRequestErrors(t *testing.T) {
	t.Parallel()

	client, svc := startServer(t, 0)
	ctx := testContext(t)

	open, err := client.Reset(ctx, ResetRequest{Seed: seedPtr(1)})
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}

	mustStruct := func(m map[string]interface{}) *structpb.Struct {
		s, err := structpb.NewStruct(m)
		if err != nil {
			t.Fatalf("structpb.NewStruct: %v", err)
		}
		return s
	}

	tests := []struct {
		name   string
		method string
		req    *structpb.Struct
		code   codes.Code
	}{
		{
			name:   "negative seed",
			method: ResetMethod,
			req:    mustStruct(map[string]interface{}{"seed": -1}),
			code:   codes.InvalidArgument,
		},
		{
			name:   "fractional seed",
			method: ResetMethod,
			req:    mustStruct(map[string]interface{}{"seed": 1.5}),
			code:   codes.InvalidArgument,
		},
		{
			name:   "config on existing session",
			method: ResetMethod,
			req: mustStruct(map[string]interface{}{
				"session_id": open.SessionID,
				"config":     map[string]interface{}{"max_junction_boxes": 2},
			}),
			code: codes.InvalidArgument,
		},
		{
			name:   "invalid config",
			method: ResetMethod,
			req:    mustStruct(map[string]interface{}{"config": map[string]interface{}{"num_sensor_types": 0}}),
			code:   codes.InvalidArgument,
		},
		{
			name:   "short port options",
			method: ResetMethod,
			req:    mustStruct(map[string]interface{}{"config": map[string]interface{}{"port_options": []interface{}{6, 12}}}),
			code:   codes.InvalidArgument,
		},
		{
			name:   "scenario outside configured space",
			method: ResetMethod,
			req: mustStruct(map[string]interface{}{"scenario": map[string]interface{}{
				"space":   map[string]interface{}{"x": 20, "y": 20, "z": 20},
				"sensors": []interface{}{},
			}}),
			code: codes.InvalidArgument,
		},
		{
			name:   "unknown session reset",
			method: ResetMethod,
			req:    mustStruct(map[string]interface{}{"session_id": "missing"}),
			code:   codes.NotFound,
		},
		{
			name:   "step without session",
			method: StepMethod,
			req:    mustStruct(map[string]interface{}{"action": []interface{}{0.5, 0.5, 0.5, 0, 0}}),
			code:   codes.InvalidArgument,
		},
		{
			name:   "step without action",
			method: StepMethod,
			req:    mustStruct(map[string]interface{}{"session_id": open.SessionID}),
			code:   codes.InvalidArgument,
		},
		{
			name:   "short action",
			method: StepMethod,
			req: mustStruct(map[string]interface{}{
				"session_id": open.SessionID,
				"action":     []interface{}{0.5, 0.5, 0.5},
			}),
			code: codes.InvalidArgument,
		},
		{
			name:   "non-numeric action",
			method: StepMethod,
			req: mustStruct(map[string]interface{}{
				"session_id": open.SessionID,
				"action":     []interface{}{"a", 0.5, 0.5, 0, 0},
			}),
			code: codes.InvalidArgument,
		},
		{
			name:   "info unknown session",
			method: InfoMethod,
			req:    mustStruct(map[string]interface{}{"session_id": "missing"}),
			code:   codes.NotFound,
		},
		{
			name:   "close without session",
			method: CloseMethod,
			req:    mustStruct(map[string]interface{}{}),
			code:   codes.InvalidArgument,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := client.invoke(ctx, tc.method, tc.req)
			wantCode(t, err, tc.code)
		})
	}

	// Failed opens must not leak sessions.
	if svc.Registry().Len() != 1 {
		t.Fatalf("registry has %d sessions, want 1", svc.Registry().Len())
	}
}

func TestSessionLimit(t *testing.T) {
	t.Parallel()

	client, _ := startServer(t, 1)
	ctx := testContext(t)

	first, err := client.Reset(ctx, ResetRequest{Seed: seedPtr(1)})
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	_, err = client.Reset(ctx, ResetRequest{Seed: seedPtr(2)})
	wantCode(t, err, codes.ResourceExhausted)

	if err := client.Close(ctx, first.SessionID); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := client.Reset(ctx, ResetRequest{Seed: seedPtr(2)}); err != nil {
		t.Fatalf("Reset after close: %v", err)
	}
}

func TestResetConfigOverlay(t *testing.T) {
	t.Parallel()

	client, _ := startServer(t, 0)
	ctx := testContext(t)

	cfg := testDefaults()
	cfg.NumSensorTypes = 2
	cfg.SensorsPerType = []int{2, 3}
	cfg.ConstraintRatio = 0.05

	reply, err := client.Reset(ctx, ResetRequest{Seed: seedPtr(11), Config: &cfg})
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if reply.Info.NumSensors != 5 || reply.Info.NumConstraints != 50 {
		t.Fatalf("reset info = %+v, want 5 sensors and 50 constraints", reply.Info)
	}

	out, err := client.invoke(ctx, InfoMethod, &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldSessionID: structpb.NewStringValue(reply.SessionID),
	}})
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	got := out.GetFields()[fieldConfig].GetStructValue().GetFields()
	if n := got[fieldNumSensorTypes].GetNumberValue(); n != 2 {
		t.Fatalf("num_sensor_types = %v, want 2", n)
	}
	if n := got["max_junction_boxes"].GetNumberValue(); n != 5 {
		t.Fatalf("max_junction_boxes = %v, want the default 5", n)
	}
}

func TestMaxSeedRoundTrip(t *testing.T) {
	t.Parallel()

	client, _ := startServer(t, 0)
	ctx := testContext(t)

	const seed = ^uint64(0)
	a, err := client.Reset(ctx, ResetRequest{Seed: seedPtr(seed)})
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	b, err := client.Reset(ctx, ResetRequest{Seed: seedPtr(seed)})
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	for i := range a.Observation {
		if a.Observation[i] != b.Observation[i] {
			t.Fatalf("observation[%d] differs across sessions with the same seed", i)
		}
	}
}
