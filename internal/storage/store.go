// Package storage persists rollout results.
package storage

import (
	"context"
	"errors"

	"github.com/signalsfoundry/junctionbox-simulator/internal/rollout"
)

// ErrNotInitialized is returned by operations on a store before Init.
var ErrNotInitialized = errors.New("store is not initialized")

// Store records per-episode rollout results grouped by run id.
type Store interface {
	Init(ctx context.Context) error
	// SaveResult inserts or replaces the result keyed by (run id, episode id).
	SaveResult(ctx context.Context, res rollout.Result) error
	// ListResults returns a run's results ordered by seed, then episode id.
	ListResults(ctx context.Context, runID string) ([]rollout.Result, error)
	Close() error
}
