package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/skillwave/internal/engine"
	"github.com/roach88/skillwave/internal/ir"
	"github.com/roach88/skillwave/internal/planner"
)

// ErrRunNotFound is returned when a run id is not in the log.
var ErrRunNotFound = errors.New("run not found")

// RunRecord is one row of the run log.
type RunRecord struct {
	ID            string        `json:"id"`
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration_ns"`
	Units         int           `json:"units"`
	Waves         int           `json:"waves"`
	Executed      int           `json:"executed"`
	Skipped       int           `json:"skipped"`
	Failed        int           `json:"failed"`
	Cancelled     bool          `json:"cancelled,omitempty"`
	EngineVersion string        `json:"engine_version"`
}

// UnitRecord is the persisted result of one unit in a run.
type UnitRecord struct {
	RunID    string             `json:"run_id"`
	UnitID   string             `json:"unit_id"`
	Seq      int64              `json:"seq"`
	Wave     int                `json:"wave"`
	Hash     ir.Hash            `json:"hash,omitempty"`
	Outcome  ir.Outcome         `json:"outcome"`
	Reason   planner.Reason     `json:"reason,omitempty"`
	Failure  engine.FailureKind `json:"failure,omitempty"`
	Error    string             `json:"error,omitempty"`
	Duration time.Duration      `json:"duration_ns"`
	Shared   bool               `json:"shared,omitempty"`
}

// RecordRun writes a summary and its unit results in one transaction.
// Uses ON CONFLICT DO NOTHING for idempotency - recording the same run
// twice is a no-op.
//
// Implements engine.Recorder.
func (s *Store) RecordRun(ctx context.Context, summary *engine.RunSummary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record run: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, started_at, duration_ns, units, waves, executed, skipped, failed, cancelled, engine_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		summary.RunID,
		toUnixNano(summary.StartedAt),
		int64(summary.Duration),
		len(summary.Results),
		len(summary.Waves),
		summary.Executed,
		summary.Skipped,
		summary.Failed,
		boolToInt(summary.Cancelled),
		ir.EngineVersion,
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO unit_results
		(run_id, unit_id, seq, wave, hash, outcome, reason, failure, error_text, duration_ns, shared)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("record run: prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range summary.Results {
		_, err := stmt.ExecContext(ctx,
			summary.RunID,
			r.UnitID,
			r.Seq,
			r.Wave,
			string(r.Hash),
			string(r.Outcome),
			string(r.Reason),
			string(r.Failure),
			r.Error,
			int64(r.Duration),
			boolToInt(r.Shared),
		)
		if err != nil {
			return fmt.Errorf("record run: unit %s: %w", r.UnitID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record run: commit: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
// A limit of 0 or less returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query := `
		SELECT id, started_at, duration_ns, units, waves, executed, skipped, failed, cancelled, engine_version
		FROM runs
		ORDER BY started_at DESC, id COLLATE BINARY DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunRecord{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// GetRun returns one run. Returns ErrRunNotFound for an unknown id.
func (s *Store) GetRun(ctx context.Context, id string) (RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, duration_ns, units, waves, executed, skipped, failed, cancelled, engine_version
		FROM runs
		WHERE id = ?
	`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return r, err
}

// RunResults returns the unit results of a run ordered by wave, then unit id.
func (s *Store) RunResults(ctx context.Context, runID string) ([]UnitRecord, error) {
	return s.queryUnits(ctx, `
		SELECT run_id, unit_id, seq, wave, hash, outcome, reason, failure, error_text, duration_ns, shared
		FROM unit_results
		WHERE run_id = ?
		ORDER BY wave ASC, unit_id COLLATE BINARY ASC
	`, runID)
}

// ResultsByHash returns every recorded unit result with the given content
// hash, oldest run first.
func (s *Store) ResultsByHash(ctx context.Context, hash ir.Hash) ([]UnitRecord, error) {
	return s.queryUnits(ctx, `
		SELECT u.run_id, u.unit_id, u.seq, u.wave, u.hash, u.outcome, u.reason, u.failure, u.error_text, u.duration_ns, u.shared
		FROM unit_results u
		JOIN runs r ON r.id = u.run_id
		WHERE u.hash = ?
		ORDER BY r.started_at ASC, u.run_id COLLATE BINARY ASC, u.unit_id COLLATE BINARY ASC
	`, string(hash))
}

func (s *Store) queryUnits(ctx context.Context, query string, args ...any) ([]UnitRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query unit results: %w", err)
	}
	defer rows.Close()

	units := []UnitRecord{}
	for rows.Next() {
		var (
			u                              UnitRecord
			hash, outcome, reason, failure string
			duration                       int64
			shared                         int
		)
		if err := rows.Scan(&u.RunID, &u.UnitID, &u.Seq, &u.Wave, &hash, &outcome, &reason, &failure, &u.Error, &duration, &shared); err != nil {
			return nil, fmt.Errorf("scan unit result: %w", err)
		}
		u.Hash = ir.Hash(hash)
		u.Outcome = ir.Outcome(outcome)
		u.Reason = planner.Reason(reason)
		u.Failure = engine.FailureKind(failure)
		u.Duration = time.Duration(duration)
		u.Shared = shared != 0
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unit results: %w", err)
	}
	return units, nil
}

func scanRun(row scanner) (RunRecord, error) {
	var (
		r                   RunRecord
		startedAt, duration int64
		cancelled           int
	)
	err := row.Scan(&r.ID, &startedAt, &duration, &r.Units, &r.Waves, &r.Executed, &r.Skipped, &r.Failed, &cancelled, &r.EngineVersion)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunRecord{}, err
		}
		return RunRecord{}, fmt.Errorf("scan run: %w", err)
	}
	r.StartedAt = fromUnixNano(startedAt)
	r.Duration = time.Duration(duration)
	r.Cancelled = cancelled != 0
	return r, nil
}
