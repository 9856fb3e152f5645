package sqlite

import (
	"context"
	"fmt"
)

// schema is applied on every Open; every statement is idempotent.
var schema = []struct {
	name string
	ddl  string
}{
	{"sets", `
		CREATE TABLE IF NOT EXISTS sets (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`},
	{"translations", `
		CREATE TABLE IF NOT EXISTS translations (
			id TEXT PRIMARY KEY,
			word TEXT NOT NULL DEFAULT '',
			translation TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`},
	{"set_translations", `
		CREATE TABLE IF NOT EXISTS set_translations (
			set_id TEXT NOT NULL REFERENCES sets(id),
			translation_id TEXT NOT NULL REFERENCES translations(id),
			PRIMARY KEY (set_id, translation_id)
		)`},
	{"trainings", `
		CREATE TABLE IF NOT EXISTS trainings (
			id TEXT PRIMARY KEY,
			seed INTEGER NOT NULL,
			pool_size INTEGER NOT NULL DEFAULT 0,
			current_stage_id INTEGER,
			current_cycle_id INTEGER,
			created_at TIMESTAMP NOT NULL
		)`},
	{"training_sets", `
		CREATE TABLE IF NOT EXISTS training_sets (
			training_id TEXT NOT NULL REFERENCES trainings(id),
			set_id TEXT NOT NULL REFERENCES sets(id),
			PRIMARY KEY (training_id, set_id)
		)`},
	{"stages", `
		CREATE TABLE IF NOT EXISTS stages (
			training_id TEXT NOT NULL REFERENCES trainings(id),
			stage_id INTEGER NOT NULL,
			PRIMARY KEY (training_id, stage_id)
		)`},
	{"cycles", `
		CREATE TABLE IF NOT EXISTS cycles (
			training_id TEXT NOT NULL,
			stage_id INTEGER NOT NULL,
			cycle_id INTEGER NOT NULL,
			PRIMARY KEY (training_id, stage_id, cycle_id),
			FOREIGN KEY (training_id, stage_id) REFERENCES stages(training_id, stage_id)
		)`},
	{"cycle_translations", `
		CREATE TABLE IF NOT EXISTS cycle_translations (
			training_id TEXT NOT NULL,
			stage_id INTEGER NOT NULL,
			cycle_id INTEGER NOT NULL,
			translation_id TEXT NOT NULL REFERENCES translations(id),
			PRIMARY KEY (training_id, stage_id, cycle_id, translation_id),
			FOREIGN KEY (training_id, stage_id, cycle_id) REFERENCES cycles(training_id, stage_id, cycle_id)
		)`},
	{"idx_set_translations_translation", `
		CREATE INDEX IF NOT EXISTS idx_set_translations_translation
		ON set_translations(translation_id)`},
}

func (c *Connection) initializeSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := c.db.ExecContext(ctx, stmt.ddl); err != nil {
			return fmt.Errorf("failed to create %s: %w", stmt.name, err)
		}
	}
	return nil
}
