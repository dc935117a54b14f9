package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/skillwave/internal/cache"
	"github.com/roach88/skillwave/internal/ir"
)

// SaveEntry upserts a cache entry. A recomputation replaces the previous
// row for the same hash atomically.
//
// Implements cache.Backend.
func (s *Store) SaveEntry(ctx context.Context, e cache.Entry) error {
	outputJSON, err := marshalOutput(e.Output)
	if err != nil {
		return fmt.Errorf("save entry: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cache_entries
		(hash, status, output, error_text, unit_id, run_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET
			status = excluded.status,
			output = excluded.output,
			error_text = excluded.error_text,
			unit_id = excluded.unit_id,
			run_id = excluded.run_id,
			created_at = excluded.created_at
	`,
		string(e.Hash),
		string(e.Status),
		outputJSON,
		e.Error,
		e.Provenance.UnitID,
		e.Provenance.RunID,
		toUnixNano(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("save entry: %w", err)
	}
	return nil
}

// LoadEntry returns the entry for hash. Returns (Entry{}, false, nil) when
// no row exists.
//
// Implements cache.Backend.
func (s *Store) LoadEntry(ctx context.Context, hash ir.Hash) (cache.Entry, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT hash, status, output, error_text, unit_id, run_id, created_at
		FROM cache_entries
		WHERE hash = ?
	`, string(hash))

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return cache.Entry{}, false, nil
	}
	if err != nil {
		return cache.Entry{}, false, err
	}
	return e, true, nil
}

// DeleteEntries removes every entry matched by sel and returns how many
// rows were deleted.
//
// Implements cache.Backend.
func (s *Store) DeleteEntries(ctx context.Context, sel cache.Selector) (int, error) {
	sel, err := sel.Normalize()
	if err != nil {
		return 0, err
	}

	var res sql.Result
	if sel.UnitID != "" {
		res, err = s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE unit_id = ?`, sel.UnitID)
	} else {
		prefix := sel.HashPrefix
		// substr avoids LIKE wildcard semantics.
		res, err = s.db.ExecContext(ctx,
			`DELETE FROM cache_entries WHERE substr(hash, 1, ?) = ?`, len(prefix), prefix)
	}
	if err != nil {
		return 0, fmt.Errorf("delete entries: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete entries: %w", err)
	}
	return int(n), nil
}

// ListEntries returns entries ordered by unit id, then hash. An empty
// unitID lists every entry.
func (s *Store) ListEntries(ctx context.Context, unitID string) ([]cache.Entry, error) {
	query := `
		SELECT hash, status, output, error_text, unit_id, run_id, created_at
		FROM cache_entries`
	var args []any
	if unitID != "" {
		query += ` WHERE unit_id = ?`
		args = append(args, unitID)
	}
	query += ` ORDER BY unit_id COLLATE BINARY ASC, hash ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	entries := []cache.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// CountEntries returns the number of persisted cache entries.
func (s *Store) CountEntries(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (cache.Entry, error) {
	var (
		hash, status, outputJSON string
		e                        cache.Entry
		createdAt                int64
	)
	err := row.Scan(&hash, &status, &outputJSON, &e.Error, &e.Provenance.UnitID, &e.Provenance.RunID, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cache.Entry{}, err
		}
		return cache.Entry{}, fmt.Errorf("scan entry: %w", err)
	}

	output, err := unmarshalOutput(outputJSON)
	if err != nil {
		return cache.Entry{}, fmt.Errorf("entry %s: %w", ir.Hash(hash).Short(), err)
	}
	e.Hash = ir.Hash(hash)
	e.Status = cache.Status(status)
	e.Output = output
	e.CreatedAt = fromUnixNano(createdAt)
	return e, nil
}
