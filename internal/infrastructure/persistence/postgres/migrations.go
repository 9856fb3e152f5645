package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE CONTENT
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create content tables
-- Version: 001

CREATE TABLE IF NOT EXISTS sets (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS translations (
    id TEXT PRIMARY KEY,
    word TEXT NOT NULL DEFAULT '',
    translation TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS set_translations (
    set_id TEXT NOT NULL REFERENCES sets(id) ON DELETE CASCADE,
    translation_id TEXT NOT NULL REFERENCES translations(id) ON DELETE CASCADE,
    PRIMARY KEY (set_id, translation_id)
);

CREATE INDEX IF NOT EXISTS idx_set_translations_translation ON set_translations(translation_id);
`

const migration001Down = `
DROP TABLE IF EXISTS set_translations;
DROP TABLE IF EXISTS translations;
DROP TABLE IF EXISTS sets;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE TRAININGS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create training plan tables
-- Version: 002

CREATE TABLE IF NOT EXISTS trainings (
    id TEXT PRIMARY KEY,
    seed BIGINT NOT NULL,
    pool_size INTEGER NOT NULL DEFAULT 0,
    current_stage_id INTEGER,
    current_cycle_id INTEGER,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_pool_size CHECK (pool_size >= 0),
    CONSTRAINT valid_active CHECK (current_cycle_id IS NULL OR current_stage_id IS NOT NULL)
);

CREATE TABLE IF NOT EXISTS training_sets (
    training_id TEXT NOT NULL REFERENCES trainings(id) ON DELETE CASCADE,
    set_id TEXT NOT NULL REFERENCES sets(id) ON DELETE CASCADE,
    PRIMARY KEY (training_id, set_id)
);

CREATE TABLE IF NOT EXISTS stages (
    training_id TEXT NOT NULL REFERENCES trainings(id) ON DELETE CASCADE,
    stage_id INTEGER NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    PRIMARY KEY (training_id, stage_id),

    CONSTRAINT valid_stage_id CHECK (stage_id >= 1)
);

CREATE TABLE IF NOT EXISTS cycles (
    training_id TEXT NOT NULL,
    stage_id INTEGER NOT NULL,
    cycle_id INTEGER NOT NULL,
    PRIMARY KEY (training_id, stage_id, cycle_id),
    FOREIGN KEY (training_id, stage_id) REFERENCES stages(training_id, stage_id) ON DELETE CASCADE,

    CONSTRAINT valid_cycle_id CHECK (cycle_id >= 1)
);

CREATE TABLE IF NOT EXISTS cycle_translations (
    training_id TEXT NOT NULL,
    stage_id INTEGER NOT NULL,
    cycle_id INTEGER NOT NULL,
    translation_id TEXT NOT NULL REFERENCES translations(id) ON DELETE CASCADE,
    PRIMARY KEY (training_id, stage_id, cycle_id, translation_id),
    FOREIGN KEY (training_id, stage_id, cycle_id)
        REFERENCES cycles(training_id, stage_id, cycle_id) ON DELETE CASCADE
);
`

const migration002Down = `
DROP TABLE IF EXISTS cycle_translations;
DROP TABLE IF EXISTS cycles;
DROP TABLE IF EXISTS stages;
DROP TABLE IF EXISTS training_sets;
DROP TABLE IF EXISTS trainings;
`

// ══════════════════════════════════════════════════════════════════════════════
// EMBEDDED MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_content",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "create_trainings",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
	}
}
