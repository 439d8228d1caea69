package snapshot

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/hallvard/papervault/internal/blobstore"
	"github.com/hallvard/papervault/internal/record"
)

// UpdateMode selects which catalog rows an update pass reconciles against
// the static export tree.
type UpdateMode string

const (
	UpdateAll          UpdateMode = "all"
	UpdateTranslations UpdateMode = "translations"
	UpdateSummaries    UpdateMode = "summaries"
	UpdateMetadata     UpdateMode = "metadata"
)

// ParseUpdateMode validates a mode flag value.
func ParseUpdateMode(s string) (UpdateMode, error) {
	switch UpdateMode(s) {
	case UpdateAll, UpdateTranslations, UpdateSummaries, UpdateMetadata:
		return UpdateMode(s), nil
	}
	return "", fmt.Errorf("unknown update mode %q (want all, translations, summaries, or metadata)", s)
}

// UpdateOptions describes one reconciliation pass.
type UpdateOptions struct {
	DBPath    string
	StaticDir string
	Mode      UpdateMode
	DryRun    bool
}

// UpdateStats accounts for what an update pass found and changed.
type UpdateStats struct {
	TranslationsFound   int      `json:"translations_found"`
	TranslationsAdded   int      `json:"translations_added"`
	SummariesFound      int      `json:"summaries_found"`
	SummariesAdded      int      `json:"summaries_added"`
	MetadataRefreshed   int      `json:"metadata_refreshed"`
	OrphanedPaths       []string `json:"orphaned_paths,omitempty"`
	DryRun              bool     `json:"dry_run"`
}

// Update reconciles the snapshot database with the static export tree:
// translation and summary files present on disk but missing from the catalog
// get rows, and metadata mode refreshes derived paper columns from the
// stored summary blobs. Files naming a paper the catalog does not know are
// reported as orphans and left alone.
func Update(opts UpdateOptions, logger zerolog.Logger) (*UpdateStats, error) {
	db, err := OpenDB(opts.DBPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	version, err := StoredSchemaVersion(db)
	if err != nil {
		return nil, err
	}
	if version != SchemaVersion {
		return nil, ErrSchemaMismatch
	}

	known, err := knownPaperIDs(db)
	if err != nil {
		return nil, err
	}

	stats := &UpdateStats{DryRun: opts.DryRun}
	if opts.Mode == UpdateAll || opts.Mode == UpdateTranslations {
		if err := updateTranslations(db, opts, known, stats, logger); err != nil {
			return nil, err
		}
	}
	if opts.Mode == UpdateAll || opts.Mode == UpdateSummaries {
		if err := updateSummaries(db, opts, known, stats, logger); err != nil {
			return nil, err
		}
	}
	if opts.Mode == UpdateAll || opts.Mode == UpdateMetadata {
		if err := updateMetadata(db, opts, stats); err != nil {
			return nil, err
		}
	}

	logger.Info().
		Str("mode", string(opts.Mode)).
		Bool("dry_run", opts.DryRun).
		Int("translations_added", stats.TranslationsAdded).
		Int("summaries_added", stats.SummariesAdded).
		Int("metadata_refreshed", stats.MetadataRefreshed).
		Msg("update pass complete")
	return stats, nil
}

func knownPaperIDs(db *sql.DB) (map[string]bool, error) {
	rows, err := db.Query(`SELECT paper_id FROM paper`)
	if err != nil {
		return nil, fmt.Errorf("listing papers: %w", err)
	}
	defer rows.Close()
	known := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		known[id] = true
	}
	return known, rows.Err()
}

// updateTranslations scans md_translate/<lang>/<paper_id>.md. The legacy
// per-paper layout names translation files by paper id rather than content
// hash; rows are inserted for known papers only and existing rows are kept.
func updateTranslations(db *sql.DB, opts UpdateOptions, known map[string]bool, stats *UpdateStats, logger zerolog.Logger) error {
	root := filepath.Join(opts.StaticDir, "md_translate")
	langs, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading translation tree: %w", err)
	}
	for _, langEntry := range langs {
		if !langEntry.IsDir() {
			continue
		}
		lang := langEntry.Name()
		files, err := os.ReadDir(filepath.Join(root, lang))
		if err != nil {
			return fmt.Errorf("reading translation dir %s: %w", lang, err)
		}
		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), ".md") {
				continue
			}
			stats.TranslationsFound++
			paperID := strings.TrimSuffix(f.Name(), ".md")
			path := filepath.Join(root, lang, f.Name())
			if !known[paperID] {
				stats.OrphanedPaths = append(stats.OrphanedPaths, path)
				logger.Debug().Str("path", path).Msg("translation file for unknown paper")
				continue
			}
			var n int
			err := db.QueryRow(
				`SELECT COUNT(*) FROM paper_translation WHERE paper_id = ? AND lang = ?`,
				paperID, lang,
			).Scan(&n)
			if err != nil {
				return fmt.Errorf("checking translation row %s/%s: %w", paperID, lang, err)
			}
			if n > 0 {
				continue
			}
			stats.TranslationsAdded++
			if opts.DryRun {
				continue
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading translation %s: %w", path, err)
			}
			if _, err := db.Exec(
				`INSERT INTO paper_translation (paper_id, lang, md_content_hash) VALUES (?, ?, ?)`,
				paperID, lang, blobstore.HashBytes(data),
			); err != nil {
				return fmt.Errorf("inserting translation row %s/%s: %w", paperID, lang, err)
			}
		}
	}
	return nil
}

// updateSummaries scans summary/<paper_id>/<tag>.json, plus the legacy flat
// summary/<paper_id>.json layout which registers under the "default" tag.
func updateSummaries(db *sql.DB, opts UpdateOptions, known map[string]bool, stats *UpdateStats, logger zerolog.Logger) error {
	root := filepath.Join(opts.StaticDir, "summary")
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading summary tree: %w", err)
	}

	insert := func(paperID, tag, path string) error {
		stats.SummariesFound++
		if !known[paperID] {
			stats.OrphanedPaths = append(stats.OrphanedPaths, path)
			logger.Debug().Str("path", path).Msg("summary file for unknown paper")
			return nil
		}
		var n int
		err := db.QueryRow(
			`SELECT COUNT(*) FROM paper_summary WHERE paper_id = ? AND template_tag = ?`,
			paperID, tag,
		).Scan(&n)
		if err != nil {
			return fmt.Errorf("checking summary row %s/%s: %w", paperID, tag, err)
		}
		if n > 0 {
			return nil
		}
		stats.SummariesAdded++
		if opts.DryRun {
			return nil
		}
		if _, err := db.Exec(
			`INSERT INTO paper_summary (paper_id, template_tag) VALUES (?, ?)`,
			paperID, tag,
		); err != nil {
			return fmt.Errorf("inserting summary row %s/%s: %w", paperID, tag, err)
		}
		return nil
	}

	for _, e := range entries {
		if e.IsDir() {
			paperID := e.Name()
			files, err := os.ReadDir(filepath.Join(root, paperID))
			if err != nil {
				return fmt.Errorf("reading summary dir %s: %w", paperID, err)
			}
			for _, f := range files {
				if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
					continue
				}
				tag := strings.TrimSuffix(f.Name(), ".json")
				if err := insert(paperID, tag, filepath.Join(root, paperID, f.Name())); err != nil {
					return err
				}
			}
			continue
		}
		if strings.HasSuffix(e.Name(), ".json") {
			paperID := strings.TrimSuffix(e.Name(), ".json")
			if err := insert(paperID, "default", filepath.Join(root, e.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}

// updateMetadata refreshes derived paper columns from stored summary blobs:
// an empty summary preview, DOI, or venue is filled from the paper's
// preferred template summary when that blob still parses.
func updateMetadata(db *sql.DB, opts UpdateOptions, stats *UpdateStats) error {
	rows, err := db.Query(`
		SELECT paper_id,
		       COALESCE(preferred_summary_template, ''),
		       COALESCE(summary_preview, ''),
		       COALESCE(doi, ''),
		       COALESCE(venue, '')
		FROM paper`)
	if err != nil {
		return fmt.Errorf("listing papers for metadata refresh: %w", err)
	}
	type row struct {
		id, tag, preview, doi, venue string
	}
	var papers []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.tag, &r.preview, &r.doi, &r.venue); err != nil {
			rows.Close()
			return err
		}
		papers = append(papers, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	store, err := blobstore.Open(opts.StaticDir)
	if err != nil {
		return err
	}
	for _, r := range papers {
		if r.preview != "" && r.doi != "" && r.venue != "" {
			continue
		}
		tag := r.tag
		if tag == "" {
			tag = "default"
		}
		data, err := os.ReadFile(store.SummaryPath(r.id, tag))
		if err != nil {
			continue
		}
		var p record.Paper
		if err := json.Unmarshal(data, &p); err != nil {
			continue
		}
		enr := record.Enrich(&p, tag)
		sets := []string{}
		args := []any{}
		if r.preview == "" {
			if preview := summaryPreview(p.Summary, p.Abstract); preview != "" {
				sets = append(sets, "summary_preview = ?")
				args = append(args, preview)
			}
		}
		if r.doi == "" && enr.DOI != "" {
			sets = append(sets, "doi = ?")
			args = append(args, enr.DOI)
		}
		if r.venue == "" && enr.Venue != "" {
			sets = append(sets, "venue = ?")
			args = append(args, enr.Venue)
		}
		if len(sets) == 0 {
			continue
		}
		stats.MetadataRefreshed++
		if opts.DryRun {
			continue
		}
		args = append(args, r.id)
		if _, err := db.Exec(
			`UPDATE paper SET `+strings.Join(sets, ", ")+` WHERE paper_id = ?`, args...,
		); err != nil {
			return fmt.Errorf("refreshing metadata for %s: %w", r.id, err)
		}
	}
	return nil
}
