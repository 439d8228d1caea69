package snapshot

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
)

// Action records one structural change a migration made (or would make).
type Action struct {
	Component string `json:"component"`
	Action    string `json:"action"`
}

// Migrate brings an older snapshot database up to the current schema
// version in place. Every change is additive; existing rows are never
// rewritten. With dryRun set the database is only inspected.
func Migrate(dbPath string, dryRun bool, logger zerolog.Logger) ([]Action, error) {
	db, err := OpenDB(dbPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	version, err := StoredSchemaVersion(db)
	if err != nil {
		return nil, err
	}
	if version == SchemaVersion {
		logger.Info().Str("version", version).Msg("snapshot already at current schema")
		return nil, nil
	}

	var actions []Action
	step := func(component, action string, apply func() error) error {
		actions = append(actions, Action{Component: component, Action: action})
		if dryRun {
			return nil
		}
		return apply()
	}

	hasDOI, err := columnExists(db, "paper", "doi")
	if err != nil {
		return nil, err
	}
	if !hasDOI {
		err := step("paper", "add doi column", func() error {
			_, err := db.Exec(`ALTER TABLE paper ADD COLUMN doi TEXT`)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("adding doi column: %w", err)
		}
	}

	tables := []struct {
		name string
		ddl  string
	}{
		{"paper_key_alias", `
			CREATE TABLE IF NOT EXISTS paper_key_alias (
				paper_key TEXT PRIMARY KEY,
				paper_id TEXT NOT NULL,
				paper_key_type TEXT NOT NULL,
				meta_fingerprint TEXT,
				FOREIGN KEY (paper_id) REFERENCES paper(paper_id) ON DELETE CASCADE
			);
			CREATE INDEX IF NOT EXISTS idx_alias_paper_id ON paper_key_alias(paper_id);`},
		{"paper_bibtex", `
			CREATE TABLE IF NOT EXISTS paper_bibtex (
				paper_id TEXT PRIMARY KEY,
				bibtex_raw TEXT NOT NULL,
				bibtex_key TEXT,
				entry_type TEXT,
				FOREIGN KEY (paper_id) REFERENCES paper(paper_id) ON DELETE CASCADE
			);`},
		{"snapshot_meta", `
			CREATE TABLE IF NOT EXISTS snapshot_meta (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL
			);`},
	}
	for _, t := range tables {
		exists, err := tableExists(db, t.name)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}
		ddl := t.ddl
		err = step(t.name, "create table", func() error {
			_, err := db.Exec(ddl)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("creating %s: %w", t.name, err)
		}
	}

	if !hasDOI || version == "" {
		// Legacy snapshots predate the alias table; seed it from the primary
		// keys so identity continuity survives the first post-migration build.
		err := step("paper_key_alias", "seed from paper keys", func() error {
			return seedAliasesFromPapers(db)
		})
		if err != nil {
			return nil, fmt.Errorf("seeding aliases: %w", err)
		}
	}

	err = step("snapshot_meta", "stamp schema version "+SchemaVersion, func() error {
		_, err := db.Exec(
			`INSERT INTO snapshot_meta(key, value) VALUES ('schema_version', ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			SchemaVersion,
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("stamping schema version: %w", err)
	}

	logger.Info().Int("actions", len(actions)).Bool("dry_run", dryRun).
		Str("from", version).Str("to", SchemaVersion).Msg("snapshot migrated")
	return actions, nil
}

func seedAliasesFromPapers(db *sql.DB) error {
	_, err := db.Exec(`
		INSERT OR IGNORE INTO paper_key_alias (paper_key, paper_id, paper_key_type)
		SELECT paper_key, paper_id, paper_key_type FROM paper
		WHERE paper_key IS NOT NULL AND paper_key != ''`)
	return err
}
