package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/alem-hub/stellar-map/internal/domain/hierarchy"
	"github.com/alem-hub/stellar-map/internal/domain/shared"
	"github.com/alem-hub/stellar-map/internal/domain/visibility"
)

type nodeMetadata struct {
	Skills []string `json:"skills,omitempty"`
}

// CreateFamily inserts a family.
func (s *Store) CreateFamily(ctx context.Context, f hierarchy.Family) (string, error) {
	if strings.TrimSpace(f.Name) == "" {
		return "", shared.NewDomainError("content", "CreateFamily", shared.ErrEmptyValue, "family name is required")
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO families (id, name, core, display_order) VALUES (?, ?, ?, ?)`,
		f.ID, f.Name, string(f.Core), f.DisplayOrder)
	if err != nil {
		if isUniqueViolation(err) {
			return "", shared.NewDomainError("content", "CreateFamily", shared.ErrAlreadyExists, "family "+f.Name+" exists")
		}
		return "", fmt.Errorf("create family: %w", err)
	}
	return f.ID, nil
}

// CreateConstellation inserts a constellation.
func (s *Store) CreateConstellation(ctx context.Context, c hierarchy.Constellation) (string, error) {
	if strings.TrimSpace(c.Name) == "" {
		return "", shared.NewDomainError("content", "CreateConstellation", shared.ErrEmptyValue, "constellation name is required")
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO constellations (id, family_id, name, core, display_order, color) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.FamilyID, c.Name, string(c.Core), c.DisplayOrder, c.Color)
	if err != nil {
		if isUniqueViolation(err) {
			return "", shared.NewDomainError("content", "CreateConstellation", shared.ErrAlreadyExists, "constellation "+c.Name+" exists")
		}
		return "", fmt.Errorf("create constellation: %w", err)
	}
	return c.ID, nil
}

// ListFamilies returns every family in display order.
func (s *Store) ListFamilies(ctx context.Context) ([]hierarchy.Family, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, name, core, display_order FROM families ORDER BY core, display_order, name`)
	if err != nil {
		return nil, unavailable("ListFamilies", err)
	}
	defer rows.Close()

	var out []hierarchy.Family
	for rows.Next() {
		var f hierarchy.Family
		var core string
		if err := rows.Scan(&f.ID, &f.Name, &core, &f.DisplayOrder); err != nil {
			return nil, fmt.Errorf("scan family: %w", err)
		}
		f.Core = visibility.Core(core)
		out = append(out, f)
	}
	return out, rows.Err()
}

// ListConstellations returns every constellation in display order.
func (s *Store) ListConstellations(ctx context.Context) ([]hierarchy.Constellation, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, name, family_id, core, display_order, color FROM constellations ORDER BY core, display_order, name`)
	if err != nil {
		return nil, unavailable("ListConstellations", err)
	}
	defer rows.Close()

	var out []hierarchy.Constellation
	for rows.Next() {
		var c hierarchy.Constellation
		var core string
		if err := rows.Scan(&c.ID, &c.Name, &c.FamilyID, &core, &c.DisplayOrder, &c.Color); err != nil {
			return nil, fmt.Errorf("scan constellation: %w", err)
		}
		c.Core = visibility.Core(core)
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListNodes returns the nodes of one core within a difficulty range,
// ordered by difficulty.
func (s *Store) ListNodes(ctx context.Context, q hierarchy.NodeQuery) ([]hierarchy.RawNode, error) {
	query := `SELECT id, title, link, difficulty, difficulty_label, COALESCE(constellation_id, ''),
		family_alias, constellation_alias, xp_threshold, xp_reward, metadata
		FROM stellar_nodes
		WHERE core = ? AND difficulty BETWEEN ? AND ?`
	args := []any{string(q.Core), q.Range.Min, q.Range.Max}
	if q.MaxUnlockXP != nil {
		query += ` AND xp_threshold <= ?`
		args = append(args, *q.MaxUnlockXP)
	}
	query += ` ORDER BY difficulty, created_at, id`

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("ListNodes", err)
	}
	defer rows.Close()

	var out []hierarchy.RawNode
	for rows.Next() {
		var n hierarchy.RawNode
		var meta string
		if err := rows.Scan(&n.ID, &n.Title, &n.Link, &n.Difficulty, &n.DifficultyLabel,
			&n.ConstellationID, &n.FamilyAlias, &n.ConstellationAlias,
			&n.XPThreshold, &n.XPReward, &meta); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		var m nodeMetadata
		if json.Unmarshal([]byte(meta), &m) == nil {
			n.Skills = m.Skills
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// FindNode returns one node by id.
func (s *Store) FindNode(ctx context.Context, id string) (hierarchy.RawNode, error) {
	var n hierarchy.RawNode
	var meta string
	err := s.sqlDB.QueryRowContext(ctx, `SELECT id, title, link, difficulty, difficulty_label,
		COALESCE(constellation_id, ''), family_alias, constellation_alias, xp_threshold, xp_reward, metadata
		FROM stellar_nodes WHERE id = ?`, id).Scan(&n.ID, &n.Title, &n.Link, &n.Difficulty, &n.DifficultyLabel,
		&n.ConstellationID, &n.FamilyAlias, &n.ConstellationAlias, &n.XPThreshold, &n.XPReward, &meta)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return n, shared.ErrNodeNotFound
		}
		return n, unavailable("FindNode", err)
	}
	var m nodeMetadata
	if json.Unmarshal([]byte(meta), &m) == nil {
		n.Skills = m.Skills
	}
	return n, nil
}

// FindConstellation resolves a constellation by name within a core.
func (s *Store) FindConstellation(ctx context.Context, name string, core visibility.Core) (hierarchy.Constellation, error) {
	var c hierarchy.Constellation
	var coreStr string
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, name, family_id, core, display_order, color FROM constellations WHERE name = ? AND core = ?`,
		name, string(core)).Scan(&c.ID, &c.Name, &c.FamilyID, &coreStr, &c.DisplayOrder, &c.Color)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c, shared.ErrConstellationNotFound
		}
		return c, unavailable("FindConstellation", err)
	}
	c.Core = visibility.Core(coreStr)
	return c, nil
}

// InsertNode stores a node with aliases copied from its parents.
func (s *Store) InsertNode(ctx context.Context, n hierarchy.NewNode) (string, error) {
	meta, err := json.Marshal(nodeMetadata{Skills: n.Skills})
	if err != nil {
		return "", fmt.Errorf("marshal node metadata: %w", err)
	}
	id := uuid.NewString()
	res, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO stellar_nodes (
			id, title, link, constellation_id, core, difficulty, difficulty_label,
			family_alias, constellation_alias, xp_threshold, xp_reward, metadata, created_at
		)
		SELECT ?, ?, ?, c.id, ?, ?, ?, f.name, c.name, ?, ?, ?, ?
		FROM constellations c JOIN families f ON f.id = c.family_id
		WHERE c.id = ?`,
		id, n.Title, n.Link, string(n.Core), n.Difficulty, n.DifficultyLabel,
		n.XPThreshold, n.XPReward, string(meta), toMillis(s.now()), n.ConstellationID)
	if err != nil {
		return "", unavailable("InsertNode", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return "", shared.ErrConstellationNotFound
	}
	return id, nil
}

// InsertRawNode stores a node row exactly as given, aliases included. It
// exists to load legacy data whose denormalized columns may be stale.
func (s *Store) InsertRawNode(ctx context.Context, core visibility.Core, n hierarchy.RawNode) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	meta, err := json.Marshal(nodeMetadata{Skills: n.Skills})
	if err != nil {
		return fmt.Errorf("marshal node metadata: %w", err)
	}
	var constellationID any
	if n.ConstellationID != "" {
		constellationID = n.ConstellationID
	}
	_, err = s.sqlDB.ExecContext(ctx, `
		INSERT INTO stellar_nodes (
			id, title, link, constellation_id, core, difficulty, difficulty_label,
			family_alias, constellation_alias, xp_threshold, xp_reward, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.Title, n.Link, constellationID, string(core), n.Difficulty, n.DifficultyLabel,
		n.FamilyAlias, n.ConstellationAlias, n.XPThreshold, n.XPReward, string(meta), toMillis(s.now()))
	if err != nil {
		if isUniqueViolation(err) {
			return shared.NewDomainError("content", "InsertRawNode", shared.ErrAlreadyExists, "node "+n.ID+" exists")
		}
		return fmt.Errorf("insert raw node: %w", err)
	}
	return nil
}

func unavailable(op string, err error) error {
	return shared.WrapError("content", op, shared.ErrExternalService, "sqlite", err)
}
