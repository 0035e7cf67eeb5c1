package postgres

// Migrations returns the embedded schema migrations in version order.
func Migrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_content", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_learners", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_completions", UpSQL: migration003Up, DownSQL: migration003Down},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CONTENT CATALOG
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS families (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    name VARCHAR(200) NOT NULL,
    core VARCHAR(30) NOT NULL,
    display_order INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT families_name_core_unique UNIQUE (name, core)
);

CREATE INDEX IF NOT EXISTS idx_families_core_order ON families(core, display_order);

CREATE TABLE IF NOT EXISTS constellations (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    family_id UUID NOT NULL REFERENCES families(id) ON DELETE CASCADE,
    name VARCHAR(200) NOT NULL,
    core VARCHAR(30) NOT NULL,
    display_order INTEGER NOT NULL DEFAULT 0,
    color VARCHAR(20),
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT constellations_name_core_unique UNIQUE (name, core)
);

CREATE INDEX IF NOT EXISTS idx_constellations_family ON constellations(family_id, display_order);

CREATE TABLE IF NOT EXISTS stellar_nodes (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    title VARCHAR(500) NOT NULL,
    link TEXT,
    constellation_id UUID REFERENCES constellations(id) ON DELETE SET NULL,
    core VARCHAR(30) NOT NULL,
    difficulty INTEGER NOT NULL,
    difficulty_label VARCHAR(50),
    family_alias VARCHAR(200),
    constellation_alias VARCHAR(200),
    xp_threshold BIGINT NOT NULL DEFAULT 0,
    xp_reward BIGINT NOT NULL DEFAULT 50,
    metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT stellar_nodes_difficulty_range CHECK (difficulty BETWEEN 0 AND 10),
    CONSTRAINT stellar_nodes_reward_positive CHECK (xp_reward >= 0)
);

CREATE INDEX IF NOT EXISTS idx_stellar_nodes_core_difficulty ON stellar_nodes(core, difficulty);
`

const migration001Down = `
DROP TABLE IF EXISTS stellar_nodes;
DROP TABLE IF EXISTS constellations;
DROP TABLE IF EXISTS families;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: LEARNER EXPERIENCE
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS learner_profiles (
    learner_id VARCHAR(100) PRIMARY KEY,
    xp BIGINT NOT NULL DEFAULT 0,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT learner_profiles_xp_positive CHECK (xp >= 0)
);

CREATE TABLE IF NOT EXISTS xp_history (
    id BIGSERIAL PRIMARY KEY,
    learner_id VARCHAR(100) NOT NULL REFERENCES learner_profiles(learner_id) ON DELETE CASCADE,
    delta BIGINT NOT NULL,
    reason VARCHAR(50) NOT NULL,
    node_id VARCHAR(100),
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_xp_history_learner ON xp_history(learner_id, created_at DESC);
`

const migration002Down = `
DROP TABLE IF EXISTS xp_history;
DROP TABLE IF EXISTS learner_profiles;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: COMPLETIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS node_completions (
    id UUID PRIMARY KEY,
    learner_id VARCHAR(100) NOT NULL,
    node_id VARCHAR(100) NOT NULL,
    reward BIGINT NOT NULL,
    completed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT node_completions_learner_node_unique UNIQUE (learner_id, node_id)
);

CREATE INDEX IF NOT EXISTS idx_node_completions_learner ON node_completions(learner_id, completed_at DESC);
`

const migration003Down = `
DROP TABLE IF EXISTS node_completions;
`
