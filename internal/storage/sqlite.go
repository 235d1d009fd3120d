package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/signalsfoundry/junctionbox-simulator/internal/rollout"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}
	// Parallel rollouts write concurrently; a single connection avoids
	// SQLITE_BUSY on the file.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveResult(ctx context.Context, res rollout.Result) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO episode_results (
			run_id, episode_id, seed, agent, total_reward, coverage, cable_length,
			num_boxes, constraint_violations, steps, outcome, success, duration_ns, finished_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, episode_id) DO UPDATE SET
			seed = excluded.seed,
			agent = excluded.agent,
			total_reward = excluded.total_reward,
			coverage = excluded.coverage,
			cable_length = excluded.cable_length,
			num_boxes = excluded.num_boxes,
			constraint_violations = excluded.constraint_violations,
			steps = excluded.steps,
			outcome = excluded.outcome,
			success = excluded.success,
			duration_ns = excluded.duration_ns,
			finished_at = excluded.finished_at
	`,
		res.RunID, res.EpisodeID, strconv.FormatUint(res.Seed, 10), res.Agent,
		res.TotalReward, res.Coverage, res.CableLength,
		res.NumBoxes, res.Violations, res.Steps, res.Outcome, res.Success, int64(res.Duration),
		res.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStore) ListResults(ctx context.Context, runID string) ([]rollout.Result, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT episode_id, seed, agent, total_reward, coverage, cable_length,
			num_boxes, constraint_violations, steps, outcome, success, duration_ns, finished_at
		FROM episode_results
		WHERE run_id = ?
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rollout.Result
	for rows.Next() {
		res := rollout.Result{RunID: runID}
		var (
			seed, finishedAt string
			durationNS       int64
		)
		if err := rows.Scan(
			&res.EpisodeID, &seed, &res.Agent, &res.TotalReward, &res.Coverage, &res.CableLength,
			&res.NumBoxes, &res.Violations, &res.Steps, &res.Outcome, &res.Success, &durationNS, &finishedAt,
		); err != nil {
			return nil, err
		}
		res.Duration = time.Duration(durationNS)
		if res.Seed, err = strconv.ParseUint(seed, 10, 64); err != nil {
			return nil, fmt.Errorf("decode seed for episode %s: %w", res.EpisodeID, err)
		}
		if res.FinishedAt, err = time.Parse(time.RFC3339Nano, finishedAt); err != nil {
			return nil, fmt.Errorf("decode finished_at for episode %s: %w", res.EpisodeID, err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortResults(out)
	return out, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, ErrNotInitialized
	}
	return s.db, nil
}

// Seeds are stored as decimal text since SQLite integers are signed 64-bit.
func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS episode_results (
			run_id TEXT NOT NULL,
			episode_id TEXT NOT NULL,
			seed TEXT NOT NULL,
			agent TEXT NOT NULL,
			total_reward REAL NOT NULL,
			coverage REAL NOT NULL,
			cable_length REAL NOT NULL,
			num_boxes INTEGER NOT NULL,
			constraint_violations INTEGER NOT NULL,
			steps INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			success BOOLEAN NOT NULL,
			duration_ns INTEGER NOT NULL,
			finished_at TEXT NOT NULL,
			PRIMARY KEY (run_id, episode_id)
		);
	`)
	return err
}
