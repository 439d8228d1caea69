package snapshot

import (
	"database/sql"
	"fmt"
)

// MissingKind selects which artifact a missing-papers query reports on.
type MissingKind string

const (
	MissingSourceMD    MissingKind = "source_md"
	MissingPDF         MissingKind = "pdf"
	MissingTemplate    MissingKind = "template"
	MissingTranslation MissingKind = "translation"
)

// ParseMissingKind validates a kind flag value.
func ParseMissingKind(s string) (MissingKind, error) {
	switch MissingKind(s) {
	case MissingSourceMD, MissingPDF, MissingTemplate, MissingTranslation:
		return MissingKind(s), nil
	}
	return "", fmt.Errorf("unknown missing kind %q (want source_md, pdf, template, or translation)", s)
}

// MissingPaper is one catalog row lacking the queried artifact. The source
// hashes are included so the list can feed a re-extraction run.
type MissingPaper struct {
	PaperID             string `json:"paper_id"`
	Title               string `json:"title"`
	SourceHash          string `json:"source_hash,omitempty"`
	SourceMDContentHash string `json:"source_md_content_hash,omitempty"`
}

// MissingReport summarizes artifact coverage across a snapshot: how many
// papers lack source markdown or a PDF, and how many carry each summary
// template and translation language.
type MissingReport struct {
	Papers              int            `json:"papers"`
	NoSourceMD          int            `json:"no_source_md"`
	NoPDF               int            `json:"no_pdf"`
	TemplateCoverage    map[string]int `json:"template_coverage"`
	TranslationCoverage map[string]int `json:"translation_coverage"`
}

// ReadMissingReport computes coverage counts from a snapshot, read-only.
func ReadMissingReport(dbPath string) (*MissingReport, error) {
	db, err := OpenDBReadOnly(dbPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	report := &MissingReport{
		TemplateCoverage:    make(map[string]int),
		TranslationCoverage: make(map[string]int),
	}
	err = db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN source_md_content_hash IS NULL OR source_md_content_hash = '' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN pdf_content_hash IS NULL OR pdf_content_hash = '' THEN 1 ELSE 0 END), 0)
		FROM paper`).Scan(&report.Papers, &report.NoSourceMD, &report.NoPDF)
	if err != nil {
		return nil, fmt.Errorf("counting papers: %w", err)
	}

	if err := countByGroup(db,
		`SELECT template_tag, COUNT(*) FROM paper_summary GROUP BY template_tag`,
		report.TemplateCoverage); err != nil {
		return nil, err
	}
	if err := countByGroup(db,
		`SELECT lang, COUNT(*) FROM paper_translation GROUP BY lang`,
		report.TranslationCoverage); err != nil {
		return nil, err
	}
	return report, nil
}

func countByGroup(db *sql.DB, query string, out map[string]int) error {
	rows, err := db.Query(query)
	if err != nil {
		return fmt.Errorf("coverage query: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		out[key] = n
	}
	return rows.Err()
}

// ListMissing returns the papers lacking one artifact, in snapshot order.
// Template and translation kinds need the template tag or language to check.
func ListMissing(dbPath string, kind MissingKind, template, lang string) ([]MissingPaper, error) {
	var query string
	var args []any
	switch kind {
	case MissingSourceMD:
		query = `
			SELECT paper_id, COALESCE(title, ''), COALESCE(source_hash, ''), ''
			FROM paper
			WHERE source_md_content_hash IS NULL OR source_md_content_hash = ''
			ORDER BY paper_index`
	case MissingPDF:
		query = `
			SELECT paper_id, COALESCE(title, ''), COALESCE(source_hash, ''), ''
			FROM paper
			WHERE pdf_content_hash IS NULL OR pdf_content_hash = ''
			ORDER BY paper_index`
	case MissingTemplate:
		if template == "" {
			return nil, fmt.Errorf("template tag required when listing missing templates")
		}
		query = `
			SELECT paper_id, COALESCE(title, ''), COALESCE(source_hash, ''),
			       COALESCE(source_md_content_hash, '')
			FROM paper
			WHERE paper_id NOT IN (SELECT paper_id FROM paper_summary WHERE template_tag = ?)
			ORDER BY paper_index`
		args = append(args, template)
	case MissingTranslation:
		if lang == "" {
			return nil, fmt.Errorf("language required when listing missing translations")
		}
		query = `
			SELECT paper_id, COALESCE(title, ''), COALESCE(source_hash, ''), ''
			FROM paper
			WHERE paper_id NOT IN (SELECT paper_id FROM paper_translation WHERE lang = ?)
			ORDER BY paper_index`
		args = append(args, lang)
	default:
		return nil, fmt.Errorf("unknown missing kind %q", kind)
	}

	db, err := OpenDBReadOnly(dbPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing missing %s: %w", kind, err)
	}
	defer rows.Close()

	out := []MissingPaper{}
	for rows.Next() {
		var p MissingPaper
		if err := rows.Scan(&p.PaperID, &p.Title, &p.SourceHash, &p.SourceMDContentHash); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
