package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/stellar-map/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// ProfileRepository implements completion.ProfileStore.
type ProfileRepository struct {
	conn *Connection
}

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(conn *Connection) *ProfileRepository {
	return &ProfileRepository{conn: conn}
}

// GetExperience returns the learner's total, or shared.ErrProfileNotFound.
func (r *ProfileRepository) GetExperience(ctx context.Context, learnerID string) (int64, error) {
	var xp int64
	err := r.conn.QueryRow(ctx, `SELECT xp FROM learner_profiles WHERE learner_id = $1`, learnerID).Scan(&xp)
	if err != nil {
		if IsNoRows(err) {
			return 0, shared.ErrProfileNotFound
		}
		return 0, shared.WrapError("profile", "GetExperience", shared.ErrExternalService, "postgres", err)
	}
	return xp, nil
}

// AddExperience increments the learner's total and appends an xp_history row
// in one transaction. A missing profile is created.
func (r *ProfileRepository) AddExperience(ctx context.Context, learnerID string, delta int64, reason, nodeID string) (int64, error) {
	var total int64
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO learner_profiles (learner_id, xp, updated_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (learner_id) DO UPDATE
			SET xp = learner_profiles.xp + EXCLUDED.xp, updated_at = NOW()
			RETURNING xp
		`, learnerID, delta).Scan(&total)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO xp_history (learner_id, delta, reason, node_id)
			VALUES ($1, $2, $3, NULLIF($4, ''))
		`, learnerID, delta, reason, nodeID)
		return err
	})
	if err != nil {
		return 0, shared.WrapError("profile", "AddExperience", shared.ErrExternalService, "postgres", err)
	}
	return total, nil
}
