package snapshot

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

// newLegacyDB creates a pre-versioned snapshot: no doi column, no alias,
// bibtex, or meta tables.
func newLegacyDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "legacy.db")
	db, err := OpenDB(path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	_, err = db.Exec(`
		CREATE TABLE paper (
			paper_id TEXT PRIMARY KEY,
			paper_key TEXT NOT NULL,
			paper_key_type TEXT NOT NULL,
			title TEXT NOT NULL
		);
		INSERT INTO paper VALUES ('id-1', 'meta:old paper', 'meta', 'Old Paper');
	`)
	if err != nil {
		t.Fatal(err)
	}
	return path
}

func TestMigrateLegacySnapshot(t *testing.T) {
	path := newLegacyDB(t)

	actions, err := Migrate(path, false, zerolog.Nop())
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if len(actions) == 0 {
		t.Fatal("no actions reported for legacy snapshot")
	}

	db := openTestDB(t, path)
	if ok, _ := columnExists(db, "paper", "doi"); !ok {
		t.Error("doi column not added")
	}
	for _, table := range []string{"paper_key_alias", "paper_bibtex", "snapshot_meta"} {
		if ok, _ := tableExists(db, table); !ok {
			t.Errorf("table %s not created", table)
		}
	}
	if v := queryString(t, db, `SELECT value FROM snapshot_meta WHERE key = 'schema_version'`); v != SchemaVersion {
		t.Errorf("schema version = %q", v)
	}
	// Alias table seeded from existing paper keys.
	if got := queryString(t, db,
		`SELECT paper_id FROM paper_key_alias WHERE paper_key = 'meta:old paper'`); got != "id-1" {
		t.Errorf("seeded alias points at %q", got)
	}
	// Existing rows untouched.
	if got := queryString(t, db, `SELECT title FROM paper WHERE paper_id = 'id-1'`); got != "Old Paper" {
		t.Errorf("paper row rewritten: %q", got)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	path := newLegacyDB(t)
	if _, err := Migrate(path, false, zerolog.Nop()); err != nil {
		t.Fatal(err)
	}
	actions, err := Migrate(path, false, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if len(actions) != 0 {
		t.Errorf("second migrate reported %d actions: %+v", len(actions), actions)
	}
}

func TestMigrateDryRun(t *testing.T) {
	path := newLegacyDB(t)
	actions, err := Migrate(path, true, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if len(actions) == 0 {
		t.Fatal("dry run reported nothing")
	}
	db := openTestDB(t, path)
	if ok, _ := columnExists(db, "paper", "doi"); ok {
		t.Error("dry run added the doi column")
	}
	if ok, _ := tableExists(db, "paper_key_alias"); ok {
		t.Error("dry run created tables")
	}
}

func TestReadInfo(t *testing.T) {
	env := newTestEnv(t)
	opts := buildFixture(t, env, batchOne)

	info, err := ReadInfo(opts.OutputDB)
	if err != nil {
		t.Fatalf("ReadInfo: %v", err)
	}
	if info.SchemaVersion != SchemaVersion {
		t.Errorf("schema version = %q", info.SchemaVersion)
	}
	if info.Papers != 2 {
		t.Errorf("papers = %d", info.Papers)
	}
	if info.WithDOI != 1 {
		t.Errorf("with doi = %d", info.WithDOI)
	}
	if info.Summaries != 2 {
		t.Errorf("summaries = %d", info.Summaries)
	}
	if info.Aliases == 0 {
		t.Error("no aliases counted")
	}
	if info.Authors != 3 {
		t.Errorf("authors = %d", info.Authors)
	}
}

func TestReadInfoLegacySnapshot(t *testing.T) {
	path := newLegacyDB(t)
	info, err := ReadInfo(path)
	if err != nil {
		t.Fatalf("ReadInfo on legacy: %v", err)
	}
	if info.SchemaVersion != "" {
		t.Errorf("legacy schema version = %q", info.SchemaVersion)
	}
	if info.Papers != 1 {
		t.Errorf("papers = %d", info.Papers)
	}
	if info.Aliases != 0 {
		t.Errorf("aliases = %d on a snapshot without the table", info.Aliases)
	}
}
