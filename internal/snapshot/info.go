package snapshot

import (
	"database/sql"
	"fmt"
	"strings"
)

// Info summarizes one snapshot database for inspection.
type Info struct {
	Path          string `json:"path"`
	SchemaVersion string `json:"schema_version"`
	Papers        int    `json:"papers"`
	Aliases       int    `json:"aliases"`
	Summaries     int    `json:"summaries"`
	Translations  int    `json:"translations"`
	BibtexEntries int    `json:"bibtex_entries"`
	WithPDF       int    `json:"with_pdf"`
	WithMarkdown  int    `json:"with_markdown"`
	WithDOI       int    `json:"with_doi"`
	Authors       int    `json:"authors"`
	Venues        int    `json:"venues"`
	Tags          int    `json:"tags"`
}

// ReadInfo collects summary counts from a snapshot without modifying it.
func ReadInfo(path string) (*Info, error) {
	db, err := OpenDBReadOnly(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	info := &Info{Path: path}
	info.SchemaVersion, err = StoredSchemaVersion(db)
	if err != nil {
		return nil, err
	}

	counts := []struct {
		dst   *int
		query string
	}{
		{&info.Papers, `SELECT COUNT(*) FROM paper`},
		{&info.Aliases, `SELECT COUNT(*) FROM paper_key_alias`},
		{&info.Summaries, `SELECT COUNT(*) FROM paper_summary`},
		{&info.Translations, `SELECT COUNT(*) FROM paper_translation`},
		{&info.BibtexEntries, `SELECT COUNT(*) FROM paper_bibtex`},
		{&info.WithPDF, `SELECT COUNT(*) FROM paper WHERE pdf_content_hash IS NOT NULL AND pdf_content_hash != ''`},
		{&info.WithMarkdown, `SELECT COUNT(*) FROM paper WHERE source_md_content_hash IS NOT NULL AND source_md_content_hash != ''`},
		{&info.WithDOI, `SELECT COUNT(*) FROM paper WHERE doi IS NOT NULL AND doi != ''`},
		{&info.Authors, `SELECT COUNT(*) FROM facet_author`},
		{&info.Venues, `SELECT COUNT(*) FROM facet_venue`},
		{&info.Tags, `SELECT COUNT(*) FROM facet_tag`},
	}
	for _, c := range counts {
		if err := countQuery(db, c.query, c.dst); err != nil {
			return nil, err
		}
	}
	return info, nil
}

// countQuery tolerates missing tables and columns so info works on
// pre-migration snapshots too.
func countQuery(db *sql.DB, query string, dst *int) error {
	err := db.QueryRow(query).Scan(dst)
	if err != nil {
		*dst = 0
		if isMissingSchema(err) {
			return nil
		}
		return fmt.Errorf("counting: %w", err)
	}
	return nil
}

func isMissingSchema(err error) bool {
	if err == nil || err == sql.ErrNoRows {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "no such table") || strings.Contains(msg, "no such column")
}
