package envserver

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/signalsfoundry/junctionbox-simulator/internal/sim/episode"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client is a typed wrapper over EnvironmentService.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// ResetRequest selects what Reset does. An empty SessionID opens a session.
type ResetRequest struct {
	SessionID string
	Seed      *uint64
	// Config overrides the server defaults for a new session.
	Config *episode.Config
	// Scenario is an inline layout in the scenario file JSON shape.
	Scenario *structpb.Struct
}

// ResetReply carries the first observation of a new episode.
type ResetReply struct {
	SessionID   string
	Observation []float32
	Info        episode.ResetInfo
}

// InfoReply is a session's current state.
type InfoReply struct {
	SessionID   string
	EpisodeID   string
	Status      string
	Step        int
	TotalReward float64
	Info        episode.StepInfo
	Render      string
}

func (c *Client) invoke(ctx context.Context, method string, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Reset opens or resets a session.
func (c *Client) Reset(ctx context.Context, req ResetRequest, opts ...grpc.CallOption) (ResetReply, error) {
	fields := map[string]*structpb.Value{}
	if req.SessionID != "" {
		fields[fieldSessionID] = structpb.NewStringValue(req.SessionID)
	}
	if req.Seed != nil {
		fields[fieldSeed] = structpb.NewStringValue(strconv.FormatUint(*req.Seed, 10))
	}
	if req.Config != nil {
		fields[fieldConfig] = configValue(*req.Config)
	}
	if req.Scenario != nil {
		fields[fieldScenario] = structpb.NewStructValue(req.Scenario)
	}

	out, err := c.invoke(ctx, ResetMethod, &structpb.Struct{Fields: fields}, opts...)
	if err != nil {
		return ResetReply{}, err
	}
	obs, err := decodeObservation(out)
	if err != nil {
		return ResetReply{}, err
	}
	return ResetReply{
		SessionID:   out.GetFields()[fieldSessionID].GetStringValue(),
		Observation: obs,
		Info:        decodeResetInfo(out.GetFields()[fieldInfo].GetStructValue()),
	}, nil
}

// Step applies action to the session.
func (c *Client) Step(ctx context.Context, sessionID string, action []float64, opts ...grpc.CallOption) (episode.StepResult, error) {
	out, err := c.invoke(ctx, StepMethod, &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldSessionID: structpb.NewStringValue(sessionID),
		fieldAction:    float64List(action),
	}}, opts...)
	if err != nil {
		return episode.StepResult{}, err
	}
	obs, err := decodeObservation(out)
	if err != nil {
		return episode.StepResult{}, err
	}
	return episode.StepResult{
		Observation: obs,
		Reward:      out.GetFields()[fieldReward].GetNumberValue(),
		Terminated:  boolField(out, fieldTerminated),
		Truncated:   boolField(out, fieldTruncated),
		Info:        decodeStepInfo(out.GetFields()[fieldInfo].GetStructValue()),
	}, nil
}

// Info fetches a session's state.
func (c *Client) Info(ctx context.Context, sessionID string, opts ...grpc.CallOption) (InfoReply, error) {
	out, err := c.invoke(ctx, InfoMethod, &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldSessionID: structpb.NewStringValue(sessionID),
	}}, opts...)
	if err != nil {
		return InfoReply{}, err
	}
	f := out.GetFields()
	return InfoReply{
		SessionID:   f[fieldSessionID].GetStringValue(),
		EpisodeID:   f[fieldEpisodeID].GetStringValue(),
		Status:      f[fieldStatus].GetStringValue(),
		Step:        int(f[fieldStep].GetNumberValue()),
		TotalReward: f[fieldTotalReward].GetNumberValue(),
		Info:        decodeStepInfo(f[fieldInfo].GetStructValue()),
		Render:      f[fieldRender].GetStringValue(),
	}, nil
}

// Close releases the session.
func (c *Client) Close(ctx context.Context, sessionID string, opts ...grpc.CallOption) error {
	_, err := c.invoke(ctx, CloseMethod, &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldSessionID: structpb.NewStringValue(sessionID),
	}}, opts...)
	return err
}

// RemoteEnv drives one server session through the rollout Env contract. The
// session is opened on the first Reset and reused afterwards.
type RemoteEnv struct {
	client    *Client
	config    *episode.Config
	scenario  *structpb.Struct
	sessionID string
}

// NewRemoteEnv returns an environment backed by a server session. cfg and
// scenario may be nil to use the server defaults and random layouts.
func (c *Client) NewRemoteEnv(cfg *episode.Config, scenario *structpb.Struct) *RemoteEnv {
	return &RemoteEnv{client: c, config: cfg, scenario: scenario}
}

// SessionID returns the server session, or "" before the first Reset.
func (r *RemoteEnv) SessionID() string { return r.sessionID }

func (r *RemoteEnv) Reset(ctx context.Context, seed uint64) ([]float32, string, error) {
	req := ResetRequest{SessionID: r.sessionID, Seed: &seed, Scenario: r.scenario}
	if r.sessionID == "" {
		req.Config = r.config
	}
	reply, err := r.client.Reset(ctx, req)
	if err != nil {
		return nil, "", err
	}
	r.sessionID = reply.SessionID
	return reply.Observation, reply.Info.EpisodeID, nil
}

func (r *RemoteEnv) Step(ctx context.Context, action []float64) (episode.StepResult, error) {
	if r.sessionID == "" {
		return episode.StepResult{}, errors.New("remote environment has no session; call Reset first")
	}
	return r.client.Step(ctx, r.sessionID, action)
}

func (r *RemoteEnv) Close(ctx context.Context) error {
	if r.sessionID == "" {
		return nil
	}
	if err := r.client.Close(ctx, r.sessionID); err != nil {
		return fmt.Errorf("close session %s: %w", r.sessionID, err)
	}
	r.sessionID = ""
	return nil
}
