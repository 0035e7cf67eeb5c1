package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/stellar-map/internal/domain/hierarchy"
	"github.com/alem-hub/stellar-map/internal/domain/shared"
	"github.com/alem-hub/stellar-map/internal/domain/visibility"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONTENT REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// ContentRepository implements hierarchy.ContentStore and
// hierarchy.ContentWriter.
type ContentRepository struct {
	conn *Connection
}

// NewContentRepository creates a new ContentRepository.
func NewContentRepository(conn *Connection) *ContentRepository {
	return &ContentRepository{conn: conn}
}

type nodeMetadata struct {
	Skills []string `json:"skills,omitempty"`
}

// ListFamilies returns every family in display order.
func (r *ContentRepository) ListFamilies(ctx context.Context) ([]hierarchy.Family, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id::text, name, core, display_order
		FROM families
		ORDER BY core, display_order, name
	`)
	if err != nil {
		return nil, unavailable("ListFamilies", err)
	}
	defer rows.Close()

	var out []hierarchy.Family
	for rows.Next() {
		var f hierarchy.Family
		var core string
		if err := rows.Scan(&f.ID, &f.Name, &core, &f.DisplayOrder); err != nil {
			return nil, fmt.Errorf("failed to scan family: %w", err)
		}
		f.Core = visibility.Core(core)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("ListFamilies", err)
	}
	return out, nil
}

// ListConstellations returns every constellation in display order.
func (r *ContentRepository) ListConstellations(ctx context.Context) ([]hierarchy.Constellation, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id::text, name, family_id::text, core, display_order, COALESCE(color, '')
		FROM constellations
		ORDER BY core, display_order, name
	`)
	if err != nil {
		return nil, unavailable("ListConstellations", err)
	}
	defer rows.Close()

	var out []hierarchy.Constellation
	for rows.Next() {
		var c hierarchy.Constellation
		var core string
		if err := rows.Scan(&c.ID, &c.Name, &c.FamilyID, &core, &c.DisplayOrder, &c.Color); err != nil {
			return nil, fmt.Errorf("failed to scan constellation: %w", err)
		}
		c.Core = visibility.Core(core)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("ListConstellations", err)
	}
	return out, nil
}

// ListNodes returns the nodes of one core within a difficulty range,
// ordered by difficulty.
func (r *ContentRepository) ListNodes(ctx context.Context, q hierarchy.NodeQuery) ([]hierarchy.RawNode, error) {
	query := `
		SELECT id::text, title, COALESCE(link, ''), difficulty, COALESCE(difficulty_label, ''),
		       COALESCE(constellation_id::text, ''), COALESCE(family_alias, ''),
		       COALESCE(constellation_alias, ''), xp_threshold, xp_reward, metadata
		FROM stellar_nodes
		WHERE core = $1 AND difficulty BETWEEN $2 AND $3
	`
	args := []any{string(q.Core), q.Range.Min, q.Range.Max}
	if q.MaxUnlockXP != nil {
		query += " AND xp_threshold <= $4"
		args = append(args, *q.MaxUnlockXP)
	}
	query += " ORDER BY difficulty, created_at, id"

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, unavailable("ListNodes", err)
	}
	defer rows.Close()

	var out []hierarchy.RawNode
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("ListNodes", err)
	}
	return out, nil
}

func scanNode(row pgx.Row) (hierarchy.RawNode, error) {
	var n hierarchy.RawNode
	var meta []byte
	err := row.Scan(&n.ID, &n.Title, &n.Link, &n.Difficulty, &n.DifficultyLabel,
		&n.ConstellationID, &n.FamilyAlias, &n.ConstellationAlias,
		&n.XPThreshold, &n.XPReward, &meta)
	if err != nil {
		return n, fmt.Errorf("failed to scan node: %w", err)
	}
	if len(meta) > 0 {
		var m nodeMetadata
		if err := json.Unmarshal(meta, &m); err == nil {
			n.Skills = m.Skills
		}
	}
	return n, nil
}

// FindNode returns one node by id.
func (r *ContentRepository) FindNode(ctx context.Context, id string) (hierarchy.RawNode, error) {
	n, err := scanNode(r.conn.QueryRow(ctx, `
		SELECT id::text, title, COALESCE(link, ''), difficulty, COALESCE(difficulty_label, ''),
		       COALESCE(constellation_id::text, ''), COALESCE(family_alias, ''),
		       COALESCE(constellation_alias, ''), xp_threshold, xp_reward, metadata
		FROM stellar_nodes
		WHERE id::text = $1
	`, id))
	if err != nil {
		if IsNoRows(err) {
			return n, shared.ErrNodeNotFound
		}
		return n, unavailable("FindNode", err)
	}
	return n, nil
}

// FindConstellation resolves a constellation by name within a core.
func (r *ContentRepository) FindConstellation(ctx context.Context, name string, core visibility.Core) (hierarchy.Constellation, error) {
	var c hierarchy.Constellation
	var coreStr string
	err := r.conn.QueryRow(ctx, `
		SELECT id::text, name, family_id::text, core, display_order, COALESCE(color, '')
		FROM constellations
		WHERE name = $1 AND core = $2
	`, name, string(core)).Scan(&c.ID, &c.Name, &c.FamilyID, &coreStr, &c.DisplayOrder, &c.Color)
	if err != nil {
		if IsNoRows(err) {
			return c, shared.ErrConstellationNotFound
		}
		return c, unavailable("FindConstellation", err)
	}
	c.Core = visibility.Core(coreStr)
	return c, nil
}

// InsertNode stores a node, copying its parents' names into the alias
// columns, and returns the new id.
func (r *ContentRepository) InsertNode(ctx context.Context, n hierarchy.NewNode) (string, error) {
	meta, err := json.Marshal(nodeMetadata{Skills: n.Skills})
	if err != nil {
		return "", fmt.Errorf("failed to marshal node metadata: %w", err)
	}

	var id string
	err = r.conn.QueryRow(ctx, `
		INSERT INTO stellar_nodes (
			title, link, constellation_id, core, difficulty, difficulty_label,
			family_alias, constellation_alias, xp_threshold, xp_reward, metadata
		)
		SELECT $1, NULLIF($2, ''), c.id, $4, $5, NULLIF($6, ''), f.name, c.name, $7, $8, $9
		FROM constellations c
		JOIN families f ON f.id = c.family_id
		WHERE c.id = $3::uuid
		RETURNING id::text
	`, n.Title, n.Link, n.ConstellationID, string(n.Core), n.Difficulty, n.DifficultyLabel,
		n.XPThreshold, n.XPReward, meta).Scan(&id)
	if err != nil {
		if IsNoRows(err) {
			return "", shared.ErrConstellationNotFound
		}
		return "", unavailable("InsertNode", err)
	}
	return id, nil
}

// CreateFamily inserts a family and returns its id.
func (r *ContentRepository) CreateFamily(ctx context.Context, f hierarchy.Family) (string, error) {
	var id string
	err := r.conn.QueryRow(ctx, `
		INSERT INTO families (id, name, core, display_order)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4)
		RETURNING id::text
	`, f.ID, f.Name, string(f.Core), f.DisplayOrder).Scan(&id)
	if err != nil {
		if IsUniqueViolation(err) {
			return "", shared.NewDomainError("content", "CreateFamily", shared.ErrAlreadyExists, "family "+f.Name+" exists")
		}
		return "", unavailable("CreateFamily", err)
	}
	return id, nil
}

// CreateConstellation inserts a constellation and returns its id.
func (r *ContentRepository) CreateConstellation(ctx context.Context, c hierarchy.Constellation) (string, error) {
	var id string
	err := r.conn.QueryRow(ctx, `
		INSERT INTO constellations (id, family_id, name, core, display_order, color)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2::uuid, $3, $4, $5, NULLIF($6, ''))
		RETURNING id::text
	`, c.ID, c.FamilyID, c.Name, string(c.Core), c.DisplayOrder, c.Color).Scan(&id)
	if err != nil {
		if IsUniqueViolation(err) {
			return "", shared.NewDomainError("content", "CreateConstellation", shared.ErrAlreadyExists, "constellation "+c.Name+" exists")
		}
		if IsForeignKeyViolation(err) {
			return "", shared.NewDomainError("content", "CreateConstellation", shared.ErrNotFound, "family "+c.FamilyID+" not found")
		}
		return "", unavailable("CreateConstellation", err)
	}
	return id, nil
}

func unavailable(op string, err error) error {
	return shared.WrapError("content", op, shared.ErrExternalService, "postgres", err)
}
