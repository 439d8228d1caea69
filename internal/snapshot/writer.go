package snapshot

import (
	"database/sql"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/hallvard/papervault/internal/identity"
)

// snapshotState is the fully merged catalog, ready to persist.
type snapshotState struct {
	ordered      []*CatalogEntry
	aliases      []identity.Alias
	bibtex       map[string]*BibtexRow
	summaries    map[string]map[string]bool
	translations map[string]map[string]string
	facets       map[string]*FacetValues
}

// writeSnapshot persists the merged state into a fresh database next to the
// target path, then renames it into place. A reader never sees a half-written
// snapshot.
func writeSnapshot(path string, state *snapshotState) error {
	tmp := path + ".tmp"
	removeIfExists(tmp)

	db, err := OpenDB(tmp)
	if err != nil {
		return err
	}
	if err := InitSchema(db); err != nil {
		db.Close()
		return err
	}
	if err := writeSnapshotTx(db, state); err != nil {
		db.Close()
		os.Remove(tmp)
		return err
	}
	if err := db.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing snapshot db: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publishing snapshot: %w", err)
	}
	return nil
}

func writeSnapshotTx(db *sql.DB, state *snapshotState) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertPapers(tx, state.ordered); err != nil {
		return err
	}
	if err := insertAliases(tx, state.aliases); err != nil {
		return err
	}
	if err := insertBibtex(tx, state.bibtex); err != nil {
		return err
	}
	if err := insertArtifacts(tx, state.summaries, state.translations); err != nil {
		return err
	}
	if err := insertFacets(tx, state.ordered, state.facets); err != nil {
		return err
	}
	if err := insertSearchIndex(tx, state.ordered, state.facets); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}
	return nil
}

func insertPapers(tx *sql.Tx, ordered []*CatalogEntry) error {
	stmt, err := tx.Prepare(`
		INSERT INTO paper (
			paper_id, paper_key, paper_key_type, title, year, month,
			publication_date, venue, doi, preferred_summary_template,
			summary_preview, paper_index, source_hash, output_language,
			provider, model, prompt_template, extracted_at,
			pdf_content_hash, source_md_content_hash
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing paper insert: %w", err)
	}
	defer stmt.Close()
	for _, e := range ordered {
		if _, err := stmt.Exec(
			e.PaperID, e.PaperKey, e.PaperKeyType, e.Title, e.Year, e.Month,
			e.PublicationDate, e.Venue, e.DOI, e.PreferredSummaryTemplate,
			e.SummaryPreview, e.PaperIndex, e.SourceHash, e.OutputLanguage,
			e.Provider, e.Model, e.PromptTemplate, e.ExtractedAt,
			e.PDFContentHash, e.SourceMDContentHash,
		); err != nil {
			return fmt.Errorf("inserting paper %s: %w", e.PaperID, err)
		}
	}
	return nil
}

func insertAliases(tx *sql.Tx, aliases []identity.Alias) error {
	stmt, err := tx.Prepare(`
		INSERT INTO paper_key_alias (paper_key, paper_id, paper_key_type, meta_fingerprint)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing alias insert: %w", err)
	}
	defer stmt.Close()
	for _, a := range aliases {
		if _, err := stmt.Exec(a.PaperKey, a.PaperID, string(a.KeyType), a.MetaFingerprint); err != nil {
			return fmt.Errorf("inserting alias %s: %w", a.PaperKey, err)
		}
	}
	return nil
}

func insertBibtex(tx *sql.Tx, bibtex map[string]*BibtexRow) error {
	stmt, err := tx.Prepare(`
		INSERT INTO paper_bibtex (paper_id, bibtex_raw, bibtex_key, entry_type)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing bibtex insert: %w", err)
	}
	defer stmt.Close()
	for _, id := range sortedKeys(bibtex) {
		b := bibtex[id]
		if _, err := stmt.Exec(b.PaperID, b.Raw, b.Key, b.EntryType); err != nil {
			return fmt.Errorf("inserting bibtex for %s: %w", b.PaperID, err)
		}
	}
	return nil
}

func insertArtifacts(tx *sql.Tx, summaries map[string]map[string]bool, translations map[string]map[string]string) error {
	sumStmt, err := tx.Prepare(`INSERT INTO paper_summary (paper_id, template_tag) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing summary insert: %w", err)
	}
	defer sumStmt.Close()
	for _, id := range sortedKeys(summaries) {
		for _, tag := range sortedKeys(summaries[id]) {
			if _, err := sumStmt.Exec(id, tag); err != nil {
				return fmt.Errorf("inserting summary row %s/%s: %w", id, tag, err)
			}
		}
	}

	trStmt, err := tx.Prepare(`INSERT INTO paper_translation (paper_id, lang, md_content_hash) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing translation insert: %w", err)
	}
	defer trStmt.Close()
	for _, id := range sortedKeys(translations) {
		for _, lang := range sortedKeys(translations[id]) {
			if _, err := trStmt.Exec(id, lang, translations[id][lang]); err != nil {
				return fmt.Errorf("inserting translation row %s/%s: %w", id, lang, err)
			}
		}
	}
	return nil
}

func insertSearchIndex(tx *sql.Tx, ordered []*CatalogEntry, facets map[string]*FacetValues) error {
	stmt, err := tx.Prepare(`
		INSERT INTO paper_fts (paper_id, title, venue, authors, tags, doi)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing search index insert: %w", err)
	}
	defer stmt.Close()
	for _, e := range ordered {
		var authors, tags string
		if f := facets[e.PaperID]; f != nil {
			authors = strings.Join(f.Authors, " ")
			tags = strings.Join(f.Tags, " ")
		}
		if _, err := stmt.Exec(e.PaperID, e.Title, e.Venue, authors, tags, e.DOI); err != nil {
			return fmt.Errorf("indexing paper %s: %w", e.PaperID, err)
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
