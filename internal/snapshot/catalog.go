package snapshot

import (
	"database/sql"
	"fmt"

	"github.com/hallvard/papervault/internal/identity"
)

// CatalogEntry is one paper row in the snapshot.
type CatalogEntry struct {
	PaperID                  string
	PaperKey                 string
	PaperKeyType             string
	Title                    string
	Year                     string
	Month                    string
	PublicationDate          string
	Venue                    string
	DOI                      string
	PreferredSummaryTemplate string
	SummaryPreview           string
	PaperIndex               int
	SourceHash               string
	OutputLanguage           string
	Provider                 string
	Model                    string
	PromptTemplate           string
	ExtractedAt              string
	PDFContentHash           string
	SourceMDContentHash      string
}

// BibtexRow is one paper's attached BibTeX payload.
type BibtexRow struct {
	PaperID   string
	Raw       string
	Key       string
	EntryType string
}

// FacetValues are the per-paper facet link rows, persisted so facet counts
// can always be rebuilt for the whole corpus.
type FacetValues struct {
	Authors      []string
	Tags         []string
	Keywords     []string
	Institutions []string
}

// priorSnapshot is everything loaded from a previous snapshot database.
type priorSnapshot struct {
	entries      map[string]*CatalogEntry
	aliases      []identity.Alias
	bibtex       map[string]*BibtexRow
	summaries    map[string]map[string]bool   // paper_id -> template tags
	translations map[string]map[string]string // paper_id -> lang -> hash
	facets       map[string]*FacetValues
}

func newPriorSnapshot() *priorSnapshot {
	return &priorSnapshot{
		entries:      make(map[string]*CatalogEntry),
		bibtex:       make(map[string]*BibtexRow),
		summaries:    make(map[string]map[string]bool),
		translations: make(map[string]map[string]string),
		facets:       make(map[string]*FacetValues),
	}
}

// ErrSchemaMismatch distinguishes "run pv migrate" from a corrupt snapshot.
var ErrSchemaMismatch = fmt.Errorf("snapshot schema version mismatch (run migrate)")

// loadPrior reads a previous snapshot into memory. A version mismatch is an
// explicit error; anything else (unreadable file, corrupt db) is returned for
// the caller to degrade on.
func loadPrior(path string) (*priorSnapshot, error) {
	db, err := OpenDBReadOnly(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	version, err := StoredSchemaVersion(db)
	if err != nil {
		return nil, err
	}
	if version != SchemaVersion {
		return nil, fmt.Errorf("%w: snapshot has %q, engine expects %q", ErrSchemaMismatch, version, SchemaVersion)
	}

	prior := newPriorSnapshot()
	if err := loadPriorPapers(db, prior); err != nil {
		return nil, err
	}
	if err := loadPriorAliases(db, prior); err != nil {
		return nil, err
	}
	if err := loadPriorBibtex(db, prior); err != nil {
		return nil, err
	}
	if err := loadPriorArtifacts(db, prior); err != nil {
		return nil, err
	}
	if err := loadPriorFacets(db, prior); err != nil {
		return nil, err
	}
	return prior, nil
}

func loadPriorPapers(db *sql.DB, prior *priorSnapshot) error {
	rows, err := db.Query(`
		SELECT paper_id, paper_key, paper_key_type, title,
		       COALESCE(year, ''), COALESCE(month, ''), COALESCE(publication_date, ''),
		       COALESCE(venue, ''), COALESCE(doi, ''),
		       COALESCE(preferred_summary_template, ''), COALESCE(summary_preview, ''),
		       COALESCE(paper_index, 0), COALESCE(source_hash, ''),
		       COALESCE(output_language, ''), COALESCE(provider, ''), COALESCE(model, ''),
		       COALESCE(prompt_template, ''), COALESCE(extracted_at, ''),
		       COALESCE(pdf_content_hash, ''), COALESCE(source_md_content_hash, '')
		FROM paper`)
	if err != nil {
		return fmt.Errorf("loading prior papers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e CatalogEntry
		if err := rows.Scan(
			&e.PaperID, &e.PaperKey, &e.PaperKeyType, &e.Title,
			&e.Year, &e.Month, &e.PublicationDate,
			&e.Venue, &e.DOI,
			&e.PreferredSummaryTemplate, &e.SummaryPreview,
			&e.PaperIndex, &e.SourceHash,
			&e.OutputLanguage, &e.Provider, &e.Model,
			&e.PromptTemplate, &e.ExtractedAt,
			&e.PDFContentHash, &e.SourceMDContentHash,
		); err != nil {
			return fmt.Errorf("scanning prior paper: %w", err)
		}
		entry := e
		prior.entries[e.PaperID] = &entry
	}
	return rows.Err()
}

func loadPriorAliases(db *sql.DB, prior *priorSnapshot) error {
	rows, err := db.Query(`
		SELECT paper_key, paper_id, paper_key_type, COALESCE(meta_fingerprint, '')
		FROM paper_key_alias ORDER BY paper_key`)
	if err != nil {
		return fmt.Errorf("loading prior aliases: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var a identity.Alias
		var keyType string
		if err := rows.Scan(&a.PaperKey, &a.PaperID, &keyType, &a.MetaFingerprint); err != nil {
			return fmt.Errorf("scanning prior alias: %w", err)
		}
		a.KeyType = identity.KeyType(keyType)
		prior.aliases = append(prior.aliases, a)
	}
	return rows.Err()
}

func loadPriorBibtex(db *sql.DB, prior *priorSnapshot) error {
	rows, err := db.Query(`
		SELECT paper_id, bibtex_raw, COALESCE(bibtex_key, ''), COALESCE(entry_type, '')
		FROM paper_bibtex`)
	if err != nil {
		return fmt.Errorf("loading prior bibtex: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var b BibtexRow
		if err := rows.Scan(&b.PaperID, &b.Raw, &b.Key, &b.EntryType); err != nil {
			return fmt.Errorf("scanning prior bibtex: %w", err)
		}
		row := b
		prior.bibtex[b.PaperID] = &row
	}
	return rows.Err()
}

func loadPriorArtifacts(db *sql.DB, prior *priorSnapshot) error {
	rows, err := db.Query(`SELECT paper_id, template_tag FROM paper_summary`)
	if err != nil {
		return fmt.Errorf("loading prior summaries: %w", err)
	}
	for rows.Next() {
		var id, tag string
		if err := rows.Scan(&id, &tag); err != nil {
			rows.Close()
			return fmt.Errorf("scanning prior summary: %w", err)
		}
		if prior.summaries[id] == nil {
			prior.summaries[id] = make(map[string]bool)
		}
		prior.summaries[id][tag] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	rows, err = db.Query(`SELECT paper_id, lang, COALESCE(md_content_hash, '') FROM paper_translation`)
	if err != nil {
		return fmt.Errorf("loading prior translations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, lang, hash string
		if err := rows.Scan(&id, &lang, &hash); err != nil {
			return fmt.Errorf("scanning prior translation: %w", err)
		}
		if prior.translations[id] == nil {
			prior.translations[id] = make(map[string]string)
		}
		prior.translations[id][lang] = hash
	}
	return rows.Err()
}

func loadPriorFacets(db *sql.DB, prior *priorSnapshot) error {
	facetFor := func(id string) *FacetValues {
		if prior.facets[id] == nil {
			prior.facets[id] = &FacetValues{}
		}
		return prior.facets[id]
	}

	rows, err := db.Query(`SELECT paper_id, name FROM paper_author ORDER BY paper_id, position`)
	if err != nil {
		return fmt.Errorf("loading prior authors: %w", err)
	}
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			rows.Close()
			return err
		}
		f := facetFor(id)
		f.Authors = append(f.Authors, name)
	}
	rows.Close()

	type linkTable struct {
		query  string
		target func(*FacetValues) *[]string
	}
	for _, lt := range []linkTable{
		{`SELECT paper_id, tag FROM paper_tag ORDER BY paper_id, tag`, func(f *FacetValues) *[]string { return &f.Tags }},
		{`SELECT paper_id, keyword FROM paper_keyword ORDER BY paper_id, keyword`, func(f *FacetValues) *[]string { return &f.Keywords }},
		{`SELECT paper_id, institution FROM paper_institution ORDER BY paper_id, institution`, func(f *FacetValues) *[]string { return &f.Institutions }},
	} {
		rows, err := db.Query(lt.query)
		if err != nil {
			return fmt.Errorf("loading prior facet links: %w", err)
		}
		for rows.Next() {
			var id, value string
			if err := rows.Scan(&id, &value); err != nil {
				rows.Close()
				return err
			}
			target := lt.target(facetFor(id))
			*target = append(*target, value)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()
	}
	return nil
}
