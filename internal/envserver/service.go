// Package envserver exposes episode environments over gRPC. Clients open a
// session with Reset, drive it with Step, inspect it with Info and release it
// with Close. Messages are google.protobuf.Struct values so the wire format
// needs no generated code.
package envserver

import (
	"context"

	"github.com/signalsfoundry/junctionbox-simulator/internal/logging"
	"github.com/signalsfoundry/junctionbox-simulator/internal/sim/episode"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "junctionbox.v1.EnvironmentService"

// Full method names.
const (
	ResetMethod = "/" + ServiceName + "/Reset"
	StepMethod  = "/" + ServiceName + "/Step"
	InfoMethod  = "/" + ServiceName + "/Info"
	CloseMethod = "/" + ServiceName + "/Close"
)

// EnvironmentServer is the server API for EnvironmentService.
type EnvironmentServer interface {
	Reset(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Step(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Info(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Close(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// EnvironmentService implements EnvironmentServer over a SessionRegistry.
//
// Semantics:
//   - Reset without session_id opens a new session built from the service
//     defaults overlaid with the optional config object, then resets it.
//   - Reset with session_id resets that session's environment in place; a
//     config object is rejected since the environment config is immutable.
//   - Step, Info and Close require session_id.
type EnvironmentService struct {
	registry *SessionRegistry
	defaults episode.Config
	metrics  episode.MetricsRecorder
	log      logging.Logger
	newID    func() string
}

// ServiceOption customises an EnvironmentService.
type ServiceOption func(*EnvironmentService)

// WithMetricsRecorder attaches episode metrics to every session's environment.
func WithMetricsRecorder(m episode.MetricsRecorder) ServiceOption {
	return func(s *EnvironmentService) {
		s.metrics = m
	}
}

// WithSessionIDs overrides session id generation.
func WithSessionIDs(next func() string) ServiceOption {
	return func(s *EnvironmentService) {
		if next != nil {
			s.newID = next
		}
	}
}

// NewEnvironmentService constructs a service whose new sessions start from
// defaults.
func NewEnvironmentService(registry *SessionRegistry, defaults episode.Config, log logging.Logger, opts ...ServiceOption) *EnvironmentService {
	if registry == nil {
		registry = NewSessionRegistry(0)
	}
	if log == nil {
		log = logging.Noop()
	}
	s := &EnvironmentService{
		registry: registry,
		defaults: defaults,
		log:      log,
		newID:    logging.NewID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Registry returns the session registry backing the service.
func (s *EnvironmentService) Registry() *SessionRegistry { return s.registry }

func (s *EnvironmentService) logger(ctx context.Context) logging.Logger {
	if l := logging.LoggerFromContext(ctx); l != nil {
		return l
	}
	return s.log
}

// Reset opens or resets a session and returns its first observation.
func (s *EnvironmentService) Reset(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sessionID, err := stringField(req, fieldSessionID)
	if err != nil {
		return nil, ToStatusError(err)
	}
	seed, err := seedField(req)
	if err != nil {
		return nil, ToStatusError(err)
	}
	scenario, err := scenarioField(req)
	if err != nil {
		return nil, ToStatusError(err)
	}

	ctx, span := StartSessionSpan(ctx, "Reset", sessionID)
	defer span.End()

	var sess *Session
	created := false
	if sessionID == "" {
		if sess, err = s.openSession(req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, ToStatusError(err)
		}
		created = true
		span.SetAttributes(attrSessionID.String(sess.ID))
	} else {
		if _, present := req.GetFields()[fieldConfig]; present {
			return nil, ToStatusError(errConfigOnExistingSession)
		}
		if sess, err = s.registry.Get(sessionID); err != nil {
			return nil, ToStatusError(err)
		}
	}

	var (
		obs  []float32
		info episode.ResetInfo
	)
	err = sess.Do(func(env *episode.Environment) error {
		var resetErr error
		obs, info, resetErr = env.Reset(episode.ResetOptions{Seed: seed, Scenario: scenario})
		return resetErr
	})
	if err != nil {
		if created {
			_ = s.registry.Remove(sess.ID)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, ToStatusError(err)
	}
	ctx = tagEpisode(ctx, span, info.EpisodeID)

	s.logger(ctx).Info(ctx, "session reset",
		logging.String("session_id", sess.ID),
		logging.String("episode_id", info.EpisodeID),
		logging.Bool("new_session", created),
		logging.Int("sensors", info.NumSensors),
	)

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldSessionID:   structpb.NewStringValue(sess.ID),
		fieldEpisodeID:   structpb.NewStringValue(info.EpisodeID),
		fieldObservation: float32List(obs),
		fieldInfo:        resetInfoValue(info),
	}}, nil
}

func (s *EnvironmentService) openSession(req *structpb.Struct) (*Session, error) {
	cfg, err := configOverlay(req, s.defaults)
	if err != nil {
		return nil, err
	}
	id := s.newID()
	sessLog := s.log.With(logging.String("session_id", id))
	env, err := episode.NewEnvironment(cfg, sessLog, episode.WithMetricsRecorder(s.metrics))
	if err != nil {
		return nil, err
	}
	sess := NewSession(id, env)
	if err := s.registry.Add(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Step applies one action to a session.
func (s *EnvironmentService) Step(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sess, err := s.sessionFrom(req)
	if err != nil {
		return nil, ToStatusError(err)
	}
	action, err := actionField(req)
	if err != nil {
		return nil, ToStatusError(err)
	}

	ctx, span := StartSessionSpan(ctx, "Step", sess.ID)
	defer span.End()

	var (
		res       episode.StepResult
		episodeID string
	)
	err = sess.Do(func(env *episode.Environment) error {
		var stepErr error
		episodeID = env.EpisodeID()
		res, stepErr = env.Step(action)
		return stepErr
	})
	ctx = tagEpisode(ctx, span, episodeID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, ToStatusError(err)
	}
	span.SetAttributes(
		attribute.Float64("reward", res.Reward),
		attribute.Bool("terminated", res.Terminated),
		attribute.Bool("truncated", res.Truncated),
	)
	if res.Terminated || res.Truncated {
		s.logger(ctx).Info(ctx, "session episode finished",
			logging.String("session_id", sess.ID),
			logging.String("episode_id", logging.EpisodeIDFromContext(ctx)),
			logging.Float("coverage", res.Info.Coverage),
			logging.Int("steps", res.Info.Step),
		)
	}

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldObservation: float32List(res.Observation),
		fieldReward:      numberValue(res.Reward),
		fieldTerminated:  structpb.NewBoolValue(res.Terminated),
		fieldTruncated:   structpb.NewBoolValue(res.Truncated),
		fieldInfo:        stepInfoValue(res.Info),
	}}, nil
}

// Info reports a session's lifecycle state and latest step info.
func (s *EnvironmentService) Info(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sess, err := s.sessionFrom(req)
	if err != nil {
		return nil, ToStatusError(err)
	}

	var fields map[string]*structpb.Value
	_ = sess.Do(func(env *episode.Environment) error {
		cfg := env.Config()
		fields = map[string]*structpb.Value{
			fieldSessionID:   structpb.NewStringValue(sess.ID),
			fieldEpisodeID:   structpb.NewStringValue(env.EpisodeID()),
			fieldStatus:      structpb.NewStringValue(env.Status().String()),
			fieldStep:        intValue(env.StepCount()),
			fieldTotalReward: numberValue(env.TotalReward()),
			fieldInfo:        stepInfoValue(env.Info()),
			fieldConfig:      configValue(cfg),
			fieldRender:      structpb.NewStringValue(env.Render()),
		}
		return nil
	})
	return &structpb.Struct{Fields: fields}, nil
}

// Close releases a session.
func (s *EnvironmentService) Close(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sessionID, err := stringField(req, fieldSessionID)
	if err != nil {
		return nil, ToStatusError(err)
	}
	if sessionID == "" {
		return nil, ToStatusError(errMissingSessionID)
	}
	if err := s.registry.Remove(sessionID); err != nil {
		return nil, ToStatusError(err)
	}
	s.logger(ctx).Info(ctx, "session closed", logging.String("session_id", sessionID))
	return &structpb.Struct{}, nil
}

func (s *EnvironmentService) sessionFrom(req *structpb.Struct) (*Session, error) {
	sessionID, err := stringField(req, fieldSessionID)
	if err != nil {
		return nil, err
	}
	if sessionID == "" {
		return nil, errMissingSessionID
	}
	return s.registry.Get(sessionID)
}

// RegisterEnvironmentServer registers srv on s.
func RegisterEnvironmentServer(s grpc.ServiceRegistrar, srv EnvironmentServer) {
	s.RegisterService(&EnvironmentServiceDesc, srv)
}

// EnvironmentServiceDesc is the grpc.ServiceDesc for EnvironmentService.
var EnvironmentServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EnvironmentServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Reset", Handler: unaryHandler(ResetMethod, EnvironmentServer.Reset)},
		{MethodName: "Step", Handler: unaryHandler(StepMethod, EnvironmentServer.Step)},
		{MethodName: "Info", Handler: unaryHandler(InfoMethod, EnvironmentServer.Info)},
		{MethodName: "Close", Handler: unaryHandler(CloseMethod, EnvironmentServer.Close)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "junctionbox/v1/environment.proto",
}

type unaryMethod func(EnvironmentServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(EnvironmentServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(EnvironmentServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}
