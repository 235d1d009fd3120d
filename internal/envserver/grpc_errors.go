package envserver

import (
	"errors"
	"fmt"

	"github.com/signalsfoundry/junctionbox-simulator/core"
	"github.com/signalsfoundry/junctionbox-simulator/internal/sim/episode"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrSessionNotFound is returned when a request names an unknown session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExists is returned when a session id is registered twice.
	ErrSessionExists = errors.New("session already exists")
	// ErrSessionLimit is returned when the registry is full.
	ErrSessionLimit = errors.New("session limit reached")
	// ErrInvalidRequest is used for malformed request payloads.
	ErrInvalidRequest = errors.New("invalid request")
)

// ToStatusError maps environment errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, ErrSessionNotFound):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, episode.ErrInvalidConfig),
		errors.Is(err, episode.ErrInvalidAction),
		errors.Is(err, core.ErrInvalidScenario):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, episode.ErrEpisodeNotActive):
		return status.Error(codes.FailedPrecondition, err.Error())

	case errors.Is(err, ErrSessionExists):
		return status.Error(codes.AlreadyExists, err.Error())

	case errors.Is(err, ErrSessionLimit):
		return status.Error(codes.ResourceExhausted, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}

var (
	errMissingSessionID        = fmt.Errorf("%w: session_id is required", ErrInvalidRequest)
	errConfigOnExistingSession = fmt.Errorf("%w: config can only be set when opening a session", ErrInvalidRequest)
)
