package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/stellar-map/internal/domain/completion"
	"github.com/alem-hub/stellar-map/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETION REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// CompletionRepository implements completion.Store. The unique constraint on
// (learner_id, node_id) makes Insert the arbiter between racing completions.
type CompletionRepository struct {
	conn *Connection
}

// NewCompletionRepository creates a new CompletionRepository.
func NewCompletionRepository(conn *Connection) *CompletionRepository {
	return &CompletionRepository{conn: conn}
}

// Find returns the record for (learnerID, nodeID).
func (r *CompletionRepository) Find(ctx context.Context, learnerID, nodeID string) (*completion.Record, error) {
	row := r.conn.QueryRow(ctx, `
		SELECT id, learner_id, node_id, reward, completed_at
		FROM node_completions
		WHERE learner_id = $1 AND node_id = $2
	`, learnerID, nodeID)

	rec, err := scanCompletion(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrCompletionNotFound
		}
		return nil, shared.WrapError("completion", "Find", shared.ErrExternalService, "postgres", err)
	}
	return &rec, nil
}

// Insert stores rec. A duplicate pair yields shared.ErrCompletionExists.
func (r *CompletionRepository) Insert(ctx context.Context, rec completion.Record) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO node_completions (id, learner_id, node_id, reward, completed_at)
		VALUES ($1, $2, $3, $4, $5)
	`, rec.ID, rec.LearnerID, rec.NodeID, rec.Reward, rec.CompletedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrCompletionExists
		}
		return shared.WrapError("completion", "Insert", shared.ErrExternalService, "postgres", err)
	}
	return nil
}

// ListByLearner returns a learner's records, newest first.
func (r *CompletionRepository) ListByLearner(ctx context.Context, learnerID string) ([]completion.Record, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, learner_id, node_id, reward, completed_at
		FROM node_completions
		WHERE learner_id = $1
		ORDER BY completed_at DESC
	`, learnerID)
	if err != nil {
		return nil, shared.WrapError("completion", "ListByLearner", shared.ErrExternalService, "postgres", err)
	}
	defer rows.Close()

	var out []completion.Record
	for rows.Next() {
		rec, err := scanCompletion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan completion: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanCompletion(row pgx.Row) (completion.Record, error) {
	var rec completion.Record
	err := row.Scan(&rec.ID, &rec.LearnerID, &rec.NodeID, &rec.Reward, &rec.CompletedAt)
	return rec, err
}
