// Package snapshot builds, supplements, and updates the durable paper
// catalog: a SQLite database plus a content-addressed static export tree.
package snapshot

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SchemaVersion is the current catalog schema generation. Opening a snapshot
// with a different stored version is an explicit error; see Migrate.
const SchemaVersion = "2"

const schemaDDL = `
	-- One row per resolved paper identity.
	CREATE TABLE IF NOT EXISTS paper (
		paper_id TEXT PRIMARY KEY,
		paper_key TEXT NOT NULL,
		paper_key_type TEXT NOT NULL,
		title TEXT NOT NULL,
		year TEXT,
		month TEXT,
		publication_date TEXT,
		venue TEXT,
		doi TEXT,
		preferred_summary_template TEXT,
		summary_preview TEXT,
		paper_index INTEGER,
		source_hash TEXT,
		output_language TEXT,
		provider TEXT,
		model TEXT,
		prompt_template TEXT,
		extracted_at TEXT,
		pdf_content_hash TEXT,
		source_md_content_hash TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_paper_source_hash ON paper(source_hash)
		WHERE source_hash IS NOT NULL AND source_hash != '';
	CREATE INDEX IF NOT EXISTS idx_paper_md_hash ON paper(source_md_content_hash)
		WHERE source_md_content_hash IS NOT NULL AND source_md_content_hash != '';

	-- Every candidate key ever observed, many keys to one paper.
	CREATE TABLE IF NOT EXISTS paper_key_alias (
		paper_key TEXT PRIMARY KEY,
		paper_id TEXT NOT NULL,
		paper_key_type TEXT NOT NULL,
		meta_fingerprint TEXT,
		FOREIGN KEY (paper_id) REFERENCES paper(paper_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_alias_paper_id ON paper_key_alias(paper_id);

	CREATE TABLE IF NOT EXISTS paper_summary (
		paper_id TEXT NOT NULL,
		template_tag TEXT NOT NULL,
		PRIMARY KEY (paper_id, template_tag)
	);

	CREATE TABLE IF NOT EXISTS paper_translation (
		paper_id TEXT NOT NULL,
		lang TEXT NOT NULL,
		md_content_hash TEXT,
		PRIMARY KEY (paper_id, lang)
	);

	CREATE TABLE IF NOT EXISTS paper_bibtex (
		paper_id TEXT PRIMARY KEY,
		bibtex_raw TEXT NOT NULL,
		bibtex_key TEXT,
		entry_type TEXT,
		FOREIGN KEY (paper_id) REFERENCES paper(paper_id) ON DELETE CASCADE
	);

	-- Per-paper facet values; the source for facet count rebuilds.
	CREATE TABLE IF NOT EXISTS paper_author (
		paper_id TEXT NOT NULL,
		name TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (paper_id, name)
	);
	CREATE TABLE IF NOT EXISTS paper_tag (
		paper_id TEXT NOT NULL,
		tag TEXT NOT NULL,
		PRIMARY KEY (paper_id, tag)
	);
	CREATE TABLE IF NOT EXISTS paper_keyword (
		paper_id TEXT NOT NULL,
		keyword TEXT NOT NULL,
		PRIMARY KEY (paper_id, keyword)
	);
	CREATE TABLE IF NOT EXISTS paper_institution (
		paper_id TEXT NOT NULL,
		institution TEXT NOT NULL,
		PRIMARY KEY (paper_id, institution)
	);

	-- Derived facet counts, recomputed from scratch on every build.
	CREATE TABLE IF NOT EXISTS facet_author (
		name TEXT PRIMARY KEY,
		paper_count INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS facet_venue (
		name TEXT PRIMARY KEY,
		paper_count INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS facet_tag (
		name TEXT PRIMARY KEY,
		paper_count INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS facet_keyword (
		name TEXT PRIMARY KEY,
		paper_count INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS facet_institution (
		name TEXT PRIMARY KEY,
		paper_count INTEGER NOT NULL
	);

	-- Pairwise facet co-occurrence for graph-style browsing.
	CREATE TABLE IF NOT EXISTS facet_cooccur (
		kind_a TEXT NOT NULL,
		value_a TEXT NOT NULL,
		kind_b TEXT NOT NULL,
		value_b TEXT NOT NULL,
		weight INTEGER NOT NULL,
		PRIMARY KEY (kind_a, value_a, kind_b, value_b)
	);

	CREATE TABLE IF NOT EXISTS snapshot_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
`

const ftsDDL = `
	CREATE VIRTUAL TABLE IF NOT EXISTS paper_fts USING fts5(
		paper_id UNINDEXED,
		title,
		venue,
		authors,
		tags,
		doi
	);
`

// OpenDB opens (or creates) a snapshot catalog database.
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot db: %w", err)
	}
	// SQLite does not support concurrent writers.
	db.SetMaxOpenConns(1)
	return db, nil
}

// OpenDBReadOnly opens an existing snapshot without write access.
func OpenDBReadOnly(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("opening snapshot db read-only: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// InitSchema creates all tables for a fresh snapshot and stamps the schema
// version.
func InitSchema(db *sql.DB) error {
	if _, err := db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("creating snapshot schema: %w", err)
	}
	if _, err := db.Exec(ftsDDL); err != nil {
		return fmt.Errorf("creating FTS table: %w", err)
	}
	if _, err := db.Exec(
		`INSERT INTO snapshot_meta(key, value) VALUES ('schema_version', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		SchemaVersion,
	); err != nil {
		return fmt.Errorf("stamping schema version: %w", err)
	}
	return nil
}

// StoredSchemaVersion reads the snapshot's stamped schema version. A missing
// meta table or row reports version "" (legacy snapshot).
func StoredSchemaVersion(db *sql.DB) (string, error) {
	ok, err := tableExists(db, "snapshot_meta")
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	var version string
	err = db.QueryRow(`SELECT value FROM snapshot_meta WHERE key = 'schema_version'`).Scan(&version)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

func tableExists(db *sql.DB, name string) (bool, error) {
	var n int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking table %s: %w", name, err)
	}
	return n > 0, nil
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("reading columns of %s: %w", table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
