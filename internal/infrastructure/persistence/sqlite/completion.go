package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/alem-hub/stellar-map/internal/domain/completion"
	"github.com/alem-hub/stellar-map/internal/domain/shared"
)

// Find returns the completion record for (learnerID, nodeID).
func (s *Store) Find(ctx context.Context, learnerID, nodeID string) (*completion.Record, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, learner_id, node_id, reward, completed_at FROM node_completions WHERE learner_id = ? AND node_id = ?`,
		learnerID, nodeID)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrCompletionNotFound
		}
		return nil, shared.WrapError("completion", "Find", shared.ErrExternalService, "sqlite", err)
	}
	return &rec, nil
}

// Insert stores rec; the (learner_id, node_id) unique index rejects duplicates.
func (s *Store) Insert(ctx context.Context, rec completion.Record) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO node_completions (id, learner_id, node_id, reward, completed_at) VALUES (?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.LearnerID, rec.NodeID, rec.Reward, toMillis(rec.CompletedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return shared.ErrCompletionExists
		}
		return shared.WrapError("completion", "Insert", shared.ErrExternalService, "sqlite", err)
	}
	return nil
}

// ListByLearner returns a learner's records, newest first.
func (s *Store) ListByLearner(ctx context.Context, learnerID string) ([]completion.Record, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, learner_id, node_id, reward, completed_at FROM node_completions WHERE learner_id = ? ORDER BY completed_at DESC`,
		learnerID)
	if err != nil {
		return nil, shared.WrapError("completion", "ListByLearner", shared.ErrExternalService, "sqlite", err)
	}
	defer rows.Close()

	var out []completion.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (completion.Record, error) {
	var rec completion.Record
	var id string
	var at int64
	if err := row.Scan(&id, &rec.LearnerID, &rec.NodeID, &rec.Reward, &at); err != nil {
		return rec, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return rec, fmt.Errorf("parse completion id: %w", err)
	}
	rec.ID = parsed
	rec.CompletedAt = fromMillis(at)
	return rec, nil
}

// GetExperience returns the learner's total, or shared.ErrProfileNotFound.
func (s *Store) GetExperience(ctx context.Context, learnerID string) (int64, error) {
	var xp int64
	err := s.sqlDB.QueryRowContext(ctx, `SELECT xp FROM learner_profiles WHERE learner_id = ?`, learnerID).Scan(&xp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, shared.ErrProfileNotFound
		}
		return 0, shared.WrapError("profile", "GetExperience", shared.ErrExternalService, "sqlite", err)
	}
	return xp, nil
}

// AddExperience increments the learner's total and records the change in
// xp_history within one transaction.
func (s *Store) AddExperience(ctx context.Context, learnerID string, delta int64, reason, nodeID string) (int64, error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, shared.WrapError("profile", "AddExperience", shared.ErrExternalService, "sqlite", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := toMillis(s.now())
	var total int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO learner_profiles (learner_id, xp, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (learner_id) DO UPDATE SET xp = xp + excluded.xp, updated_at = excluded.updated_at
		RETURNING xp`, learnerID, delta, now).Scan(&total)
	if err != nil {
		return 0, shared.WrapError("profile", "AddExperience", shared.ErrExternalService, "sqlite", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO xp_history (learner_id, delta, reason, node_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		learnerID, delta, reason, nodeID, now); err != nil {
		return 0, shared.WrapError("profile", "AddExperience", shared.ErrExternalService, "sqlite", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, shared.WrapError("profile", "AddExperience", shared.ErrExternalService, "sqlite", err)
	}
	return total, nil
}

// SetExperience overwrites a learner's total. Used for seeding and tests.
func (s *Store) SetExperience(ctx context.Context, learnerID string, xp int64) error {
	_, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO learner_profiles (learner_id, xp, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (learner_id) DO UPDATE SET xp = excluded.xp, updated_at = excluded.updated_at`,
		learnerID, xp, toMillis(s.now()))
	if err != nil {
		return fmt.Errorf("set experience: %w", err)
	}
	return nil
}

// History returns the xp_history deltas for a learner, oldest first.
func (s *Store) History(ctx context.Context, learnerID string) ([]int64, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT delta FROM xp_history WHERE learner_id = ? ORDER BY id`, learnerID)
	if err != nil {
		return nil, fmt.Errorf("list xp history: %w", err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var d int64
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
