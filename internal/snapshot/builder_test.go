package snapshot

import (
	"database/sql"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/hallvard/papervault/internal/blobstore"
)

// testEnv lays out one build's working directories.
type testEnv struct {
	dir       string
	mdRoot    string
	pdfRoot   string
	trRoot    string
	staticDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		dir:       dir,
		mdRoot:    filepath.Join(dir, "md"),
		pdfRoot:   filepath.Join(dir, "pdf"),
		trRoot:    filepath.Join(dir, "translated"),
		staticDir: filepath.Join(dir, "static"),
	}
	for _, d := range []string{env.mdRoot, env.pdfRoot, env.trRoot} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return env
}

func (e *testEnv) writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func (e *testEnv) writeBatch(t *testing.T, name, content string) string {
	t.Helper()
	return e.writeFile(t, e.dir, name, content)
}

func (e *testEnv) options(inputs ...string) BuildOptions {
	return BuildOptions{
		InputPaths:        inputs,
		MDRoots:           []string{e.mdRoot},
		TranslatedMDRoots: []string{e.trRoot},
		PDFRoots:          []string{e.pdfRoot},
		OutputDB:          filepath.Join(e.dir, "catalog.db"),
		StaticDir:         e.staticDir,
		Workers:           2,
	}
}

func openTestDB(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := OpenDB(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func queryString(t *testing.T, db *sql.DB, query string, args ...any) string {
	t.Helper()
	var v string
	if err := db.QueryRow(query, args...).Scan(&v); err != nil {
		t.Fatalf("query %q: %v", query, err)
	}
	return v
}

func queryInt(t *testing.T, db *sql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	if err := db.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("query %q: %v", query, err)
	}
	return n
}

const batchOne = `{
	"template_tag": "deep",
	"papers": [
		{
			"paper_title": "Adaptive Protocols for Sensor Networks",
			"paper_authors": ["Ada Smith", "Bob Jones"],
			"publication_date": "2021-06-01",
			"publication_venue": "SenSys",
			"doi": "10.1234/sensors",
			"ai_generated_tags": ["networking", "sensors"],
			"source_path": "runs/Adaptive_Protocols_For_Sensor_Networks.md",
			"source_hash": "hash-adaptive",
			"summary": "We present adaptive protocols."
		},
		{
			"paper_title": "Marine Biology of Coastal Ecosystems",
			"paper_authors": ["Carol Reef"],
			"publication_date": "2019",
			"source_hash": "hash-marine"
		}
	]
}`

func TestBuildCreatesSnapshot(t *testing.T) {
	env := newTestEnv(t)
	env.writeFile(t, env.mdRoot, "Adaptive_Protocols_For_Sensor_Networks.md", "# adaptive")
	input := env.writeBatch(t, "batch1.json", batchOne)

	opts := env.options(input)
	report, err := Build(opts, zerolog.Nop())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if report.Papers != 2 || report.NewPapers != 2 || report.InheritedPapers != 0 {
		t.Errorf("report = %+v", report)
	}
	if report.MarkdownResolved != 1 {
		t.Errorf("markdown resolved = %d, want 1", report.MarkdownResolved)
	}
	if report.SummariesStored != 2 {
		t.Errorf("summaries stored = %d, want 2", report.SummariesStored)
	}

	db := openTestDB(t, opts.OutputDB)
	if got := queryInt(t, db, `SELECT COUNT(*) FROM paper`); got != 2 {
		t.Errorf("paper rows = %d", got)
	}
	if got := queryString(t, db,
		`SELECT doi FROM paper WHERE title = 'Adaptive Protocols for Sensor Networks'`); got != "10.1234/sensors" {
		t.Errorf("doi = %q", got)
	}
	if got := queryString(t, db,
		`SELECT year FROM paper WHERE title = 'Adaptive Protocols for Sensor Networks'`); got != "2021" {
		t.Errorf("year = %q", got)
	}
	// Paper ids are 32 hex chars.
	id := queryString(t, db, `SELECT paper_id FROM paper LIMIT 1`)
	if len(id) != 32 {
		t.Errorf("paper id %q has length %d", id, len(id))
	}
	// DOI paper carries its full candidate key set.
	if got := queryInt(t, db,
		`SELECT COUNT(*) FROM paper_key_alias WHERE paper_key = 'doi:10.1234/sensors'`); got != 1 {
		t.Errorf("doi alias rows = %d", got)
	}
	// Newest year first in the paper index.
	if got := queryString(t, db, `SELECT title FROM paper WHERE paper_index = 0`); got != "Adaptive Protocols for Sensor Networks" {
		t.Errorf("paper_index 0 = %q", got)
	}
	// Facets and search index are populated.
	if got := queryInt(t, db, `SELECT paper_count FROM facet_author WHERE name = 'Ada Smith'`); got != 1 {
		t.Errorf("author facet count = %d", got)
	}
	if got := queryInt(t, db, `SELECT COUNT(*) FROM paper_fts`); got != 2 {
		t.Errorf("fts rows = %d", got)
	}
	if got := queryInt(t, db,
		`SELECT weight FROM facet_cooccur WHERE kind_a = 'tag' AND value_a = 'networking' AND value_b = 'sensors'`); got != 1 {
		t.Errorf("tag cooccur weight = %d", got)
	}
	if v := queryString(t, db, `SELECT value FROM snapshot_meta WHERE key = 'schema_version'`); v != SchemaVersion {
		t.Errorf("schema version = %q", v)
	}
	// Summary blobs landed under the template tag.
	if _, err := os.Stat(filepath.Join(env.staticDir, "summary", id)); err != nil && !os.IsNotExist(err) {
		t.Errorf("summary tree: %v", err)
	}
}

func TestBuildInheritsIdentityAndMetadata(t *testing.T) {
	env := newTestEnv(t)
	first := env.writeBatch(t, "run1.json", `{
		"template_tag": "deep",
		"papers": [{
			"paper_title": "Adaptive Protocols for Sensor Networks",
			"paper_authors": ["Ada Smith"],
			"publication_date": "2021",
			"publication_venue": "SenSys",
			"source_hash": "hash-adaptive"
		}]
	}`)
	opts := env.options(first)
	if _, err := Build(opts, zerolog.Nop()); err != nil {
		t.Fatalf("first build: %v", err)
	}
	db1 := openTestDB(t, opts.OutputDB)
	originalID := queryString(t, db1, `SELECT paper_id FROM paper`)
	db1.Close()

	// Second run: same paper, now with a DOI, without a venue.
	second := env.writeBatch(t, "run2.json", `{
		"template_tag": "brief",
		"papers": [{
			"paper_title": "Adaptive Protocols for Sensor Networks!",
			"paper_authors": ["Ada Smith"],
			"publication_date": "2021",
			"doi": "10.1234/sensors",
			"source_hash": "hash-adaptive"
		}]
	}`)
	opts2 := env.options(second)
	opts2.OutputDB = filepath.Join(env.dir, "catalog2.db")
	opts2.PreviousDB = opts.OutputDB
	report, err := Build(opts2, zerolog.Nop())
	if err != nil {
		t.Fatalf("second build: %v", err)
	}
	if report.NewPapers != 0 || report.InheritedPapers != 1 {
		t.Errorf("report = %+v", report)
	}

	db2 := openTestDB(t, opts2.OutputDB)
	if got := queryInt(t, db2, `SELECT COUNT(*) FROM paper`); got != 1 {
		t.Fatalf("paper rows = %d", got)
	}
	if got := queryString(t, db2, `SELECT paper_id FROM paper`); got != originalID {
		t.Errorf("paper id changed: %q -> %q", originalID, got)
	}
	// New non-empty field overrides, absent field is retained.
	if got := queryString(t, db2, `SELECT doi FROM paper`); got != "10.1234/sensors" {
		t.Errorf("doi not adopted: %q", got)
	}
	if got := queryString(t, db2, `SELECT venue FROM paper`); got != "SenSys" {
		t.Errorf("venue not retained: %q", got)
	}
	// The DOI key joined the alias set and points at the original id.
	if got := queryString(t, db2,
		`SELECT paper_id FROM paper_key_alias WHERE paper_key = 'doi:10.1234/sensors'`); got != originalID {
		t.Errorf("doi alias points at %q", got)
	}
	// Both template tags are registered.
	if got := queryInt(t, db2,
		`SELECT COUNT(*) FROM paper_summary WHERE paper_id = ?`, originalID); got != 2 {
		t.Errorf("summary rows = %d, want 2", got)
	}
}

func TestBuildCarriesUnmatchedPriorPapers(t *testing.T) {
	env := newTestEnv(t)
	both := env.writeBatch(t, "both.json", batchOne)
	opts := env.options(both)
	if _, err := Build(opts, zerolog.Nop()); err != nil {
		t.Fatal(err)
	}

	onlyOne := env.writeBatch(t, "one.json", `{"papers": [{
		"paper_title": "Adaptive Protocols for Sensor Networks",
		"source_hash": "hash-adaptive",
		"doi": "10.1234/sensors"
	}]}`)
	opts2 := env.options(onlyOne)
	opts2.OutputDB = filepath.Join(env.dir, "catalog2.db")
	opts2.PreviousDB = opts.OutputDB
	report, err := Build(opts2, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if report.Papers != 2 || report.CarriedPapers != 1 {
		t.Errorf("report = %+v", report)
	}
	db := openTestDB(t, opts2.OutputDB)
	if got := queryInt(t, db, `SELECT COUNT(*) FROM paper WHERE title = 'Marine Biology of Coastal Ecosystems'`); got != 1 {
		t.Error("untouched prior paper dropped")
	}
}

func TestBuildRejectsPriorSchemaMismatch(t *testing.T) {
	env := newTestEnv(t)
	prior := filepath.Join(env.dir, "old.db")
	db, err := OpenDB(prior)
	if err != nil {
		t.Fatal(err)
	}
	if err := InitSchema(db); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`UPDATE snapshot_meta SET value = '1' WHERE key = 'schema_version'`); err != nil {
		t.Fatal(err)
	}
	db.Close()

	input := env.writeBatch(t, "b.json", `{"papers": [{"paper_title": "T"}]}`)
	opts := env.options(input)
	opts.PreviousDB = prior
	if _, err := Build(opts, zerolog.Nop()); !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("err = %v, want schema mismatch", err)
	}
}

func TestBuildDegradesOnCorruptPrior(t *testing.T) {
	env := newTestEnv(t)
	prior := env.writeFile(t, env.dir, "garbage.db", "this is not a database")

	input := env.writeBatch(t, "b.json", `{"papers": [{"paper_title": "Some Paper"}]}`)
	opts := env.options(input)
	opts.PreviousDB = prior
	report, err := Build(opts, zerolog.Nop())
	if err != nil {
		t.Fatalf("corrupt prior should degrade, got %v", err)
	}
	if report.PriorSnapshotError == "" {
		t.Error("degradation not reported")
	}
	if report.NewPapers != 1 {
		t.Errorf("new papers = %d", report.NewPapers)
	}
}

func TestBuildRerunIsStable(t *testing.T) {
	env := newTestEnv(t)
	input := env.writeBatch(t, "b.json", batchOne)
	opts := env.options(input)
	if _, err := Build(opts, zerolog.Nop()); err != nil {
		t.Fatal(err)
	}
	db1 := openTestDB(t, opts.OutputDB)
	ids1 := allPaperIDs(t, db1)
	db1.Close()

	opts2 := opts
	opts2.OutputDB = filepath.Join(env.dir, "catalog2.db")
	opts2.PreviousDB = opts.OutputDB
	report, err := Build(opts2, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if report.NewPapers != 0 {
		t.Errorf("rerun allocated %d new ids", report.NewPapers)
	}
	db2 := openTestDB(t, opts2.OutputDB)
	ids2 := allPaperIDs(t, db2)
	if len(ids1) != len(ids2) {
		t.Fatalf("paper count changed: %d -> %d", len(ids1), len(ids2))
	}
	for id := range ids1 {
		if !ids2[id] {
			t.Errorf("id %s lost on rerun", id)
		}
	}
}

func allPaperIDs(t *testing.T, db *sql.DB) map[string]bool {
	t.Helper()
	rows, err := db.Query(`SELECT paper_id FROM paper`)
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()
	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			t.Fatal(err)
		}
		ids[id] = true
	}
	return ids
}

func TestBuildStoresTranslations(t *testing.T) {
	env := newTestEnv(t)
	env.writeFile(t, env.mdRoot, "My_Paper_About_Distributed_Consensus.md", "# source")
	env.writeFile(t, env.trRoot, "My_Paper_About_Distributed_Consensus.zh.md", "# chinese")
	input := env.writeBatch(t, "b.json", `{"papers": [{
		"paper_title": "My Paper About Distributed Consensus",
		"source_path": "My_Paper_About_Distributed_Consensus.md"
	}]}`)

	opts := env.options(input)
	report, err := Build(opts, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if report.TranslationsStored != 1 {
		t.Errorf("translations stored = %d", report.TranslationsStored)
	}
	db := openTestDB(t, opts.OutputDB)
	lang := queryString(t, db, `SELECT lang FROM paper_translation`)
	if lang != "zh" {
		t.Errorf("lang = %q", lang)
	}
	hash := queryString(t, db, `SELECT md_content_hash FROM paper_translation`)
	blob := filepath.Join(env.staticDir, "md_translate", "zh", hash+".md")
	if _, err := os.Stat(blob); err != nil {
		t.Errorf("translation blob missing: %v", err)
	}
}

func TestBuildLocalizesMarkdownImages(t *testing.T) {
	env := newTestEnv(t)
	inline := []byte("inline-image-bytes")
	local := []byte("local-image-bytes")
	if err := os.MkdirAll(filepath.Join(env.mdRoot, "figs"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(env.mdRoot, "figs", "chip.png"), local, 0o644); err != nil {
		t.Fatal(err)
	}
	md := "# adaptive\n\n![a](data:image/png;base64," +
		base64.StdEncoding.EncodeToString(inline) + ")\n![b](figs/chip.png)\n"
	env.writeFile(t, env.mdRoot, "Adaptive_Protocols_For_Sensor_Networks.md", md)
	input := env.writeBatch(t, "batch1.json", batchOne)

	opts := env.options(input)
	report, err := Build(opts, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if report.ImagesStored != 2 {
		t.Errorf("images stored = %d, want 2", report.ImagesStored)
	}
	if report.ImagesMissing != 0 {
		t.Errorf("images missing = %d", report.ImagesMissing)
	}

	db := openTestDB(t, opts.OutputDB)
	mdHash := queryString(t, db,
		`SELECT source_md_content_hash FROM paper WHERE source_hash = 'hash-adaptive'`)
	stored, err := os.ReadFile(filepath.Join(env.staticDir, "md", mdHash+".md"))
	if err != nil {
		t.Fatalf("localized markdown blob missing: %v", err)
	}
	inlineHash := blobstore.HashBytes(inline)
	localHash := blobstore.HashBytes(local)
	for _, want := range []string{"images/" + inlineHash + ".png", "images/" + localHash + ".png"} {
		if !strings.Contains(string(stored), want) {
			t.Errorf("stored markdown lacks %s", want)
		}
	}
	if strings.Contains(string(stored), "data:image") {
		t.Error("data URL survived localization")
	}
	for _, h := range []string{inlineHash, localHash} {
		if _, err := os.Stat(filepath.Join(env.staticDir, "images", h+".png")); err != nil {
			t.Errorf("image blob %s missing: %v", h, err)
		}
	}
	if blobstore.HashBytes(stored) != mdHash {
		t.Error("catalog hash does not address the localized markdown")
	}

	// Localization is deterministic, so a rebuild addresses the same blob.
	opts2 := env.options(input)
	opts2.OutputDB = filepath.Join(env.dir, "catalog2.db")
	opts2.PreviousDB = opts.OutputDB
	if _, err := Build(opts2, zerolog.Nop()); err != nil {
		t.Fatalf("second build: %v", err)
	}
	db2 := openTestDB(t, opts2.OutputDB)
	again := queryString(t, db2,
		`SELECT source_md_content_hash FROM paper WHERE source_hash = 'hash-adaptive'`)
	if again != mdHash {
		t.Errorf("markdown hash changed across rebuilds: %s vs %s", again, mdHash)
	}
}

func TestBuildReportsMissingImageReference(t *testing.T) {
	env := newTestEnv(t)
	md := "# adaptive\n![gone](figs/nope.png)\n"
	env.writeFile(t, env.mdRoot, "Adaptive_Protocols_For_Sensor_Networks.md", md)
	input := env.writeBatch(t, "batch1.json", batchOne)

	report, err := Build(env.options(input), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if report.ImagesMissing != 1 {
		t.Errorf("images missing = %d, want 1", report.ImagesMissing)
	}
	if report.ImagesStored != 0 {
		t.Errorf("images stored = %d", report.ImagesStored)
	}

	// The unresolvable reference is left as written.
	db := openTestDB(t, filepath.Join(env.dir, "catalog.db"))
	mdHash := queryString(t, db,
		`SELECT source_md_content_hash FROM paper WHERE source_hash = 'hash-adaptive'`)
	stored, err := os.ReadFile(filepath.Join(env.staticDir, "md", mdHash+".md"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(stored), "![gone](figs/nope.png)") {
		t.Errorf("missing reference rewritten: %s", stored)
	}
}
