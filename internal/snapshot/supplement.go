package snapshot

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/hallvard/papervault/internal/blobstore"
	"github.com/hallvard/papervault/internal/identity"
	"github.com/hallvard/papervault/internal/record"
)

// SupplementOptions describes an additive pass over an existing snapshot.
type SupplementOptions struct {
	InputPaths []string
	DBPath     string
	StaticDir  string
}

// SupplementReport accounts for every record in a supplement pass.
type SupplementReport struct {
	Records         int      `json:"records"`
	Resolved        int      `json:"resolved"`
	Unresolved      int      `json:"unresolved"`
	SummariesAdded  int      `json:"summaries_added"`
	SummariesKept   int      `json:"summaries_kept"`
	BibtexAdded     int      `json:"bibtex_added"`
	DOIFilled       int      `json:"doi_filled"`
	FanOutPapers    int      `json:"fan_out_papers"`
	UnresolvedPaths []string `json:"unresolved_paths,omitempty"`
}

// Supplement attaches new summary payloads to papers that already exist in
// the snapshot. It never creates papers and never overwrites an existing
// (paper, template) summary; records that resolve to no paper are skipped
// and reported, not errors.
func Supplement(opts SupplementOptions, logger zerolog.Logger) (*SupplementReport, error) {
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

	store, err := blobstore.Open(opts.StaticDir)
	if err != nil {
		return nil, err
	}

	report := &SupplementReport{}
	for _, inputPath := range opts.InputPaths {
		batch, err := record.LoadBatch(inputPath)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", inputPath, err)
		}
		for _, paper := range batch.Papers {
			report.Records++
			enr := record.Enrich(paper, batch.TemplateTag)
			ids, err := resolveSupplementTargets(db, enr)
			if err != nil {
				return nil, err
			}
			if len(ids) == 0 {
				report.Unresolved++
				if p := strings.TrimSpace(paper.SourcePath); p != "" {
					report.UnresolvedPaths = append(report.UnresolvedPaths, p)
				}
				logger.Warn().Str("title", paper.Title).Str("source_path", paper.SourcePath).
					Msg("supplement record matches no existing paper; skipped")
				continue
			}
			report.Resolved++
			if len(ids) > 1 {
				report.FanOutPapers += len(ids) - 1
			}
			for _, id := range ids {
				if err := supplementOne(db, store, id, enr, report); err != nil {
					return nil, err
				}
			}
		}
	}

	logger.Info().
		Int("records", report.Records).
		Int("resolved", report.Resolved).
		Int("unresolved", report.Unresolved).
		Int("summaries_added", report.SummariesAdded).
		Msg("supplement pass complete")
	return report, nil
}

// resolveSupplementTargets finds the papers a supplement record belongs to:
// by its source hash, by the stable hash of its source path, or by any of
// its candidate keys in the alias table. A source-hash match fans out to
// every paper sharing the matched paper's markdown content hash.
func resolveSupplementTargets(db *sql.DB, enr *record.Enriched) ([]string, error) {
	hashes := []string{}
	if enr.SourceHash != "" {
		hashes = append(hashes, enr.SourceHash)
	}
	if p := strings.TrimSpace(enr.Record.SourcePath); p != "" {
		if h := record.StablePathHash(p); h != enr.SourceHash {
			hashes = append(hashes, h)
		}
	}
	for _, hash := range hashes {
		ids, err := papersBySourceHash(db, hash)
		if err != nil {
			return nil, err
		}
		if len(ids) > 0 {
			return fanOutByMDHash(db, ids)
		}
	}

	for _, c := range identityCandidates(enr) {
		var id string
		err := db.QueryRow(
			`SELECT paper_id FROM paper_key_alias WHERE paper_key = ?`, c,
		).Scan(&id)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolving alias %q: %w", c, err)
		}
		return fanOutByMDHash(db, []string{id})
	}
	return nil, nil
}

func identityCandidates(enr *record.Enriched) []string {
	cands := identity.BuildCandidates(enr.IdentitySource())
	out := make([]string, 0, len(cands))
	for _, c := range cands {
		out = append(out, c.PaperKey)
	}
	return out
}

func papersBySourceHash(db *sql.DB, hash string) ([]string, error) {
	rows, err := db.Query(`SELECT paper_id FROM paper WHERE source_hash = ? ORDER BY paper_id`, hash)
	if err != nil {
		return nil, fmt.Errorf("querying by source hash: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// fanOutByMDHash widens a resolved paper set to every paper that shares a
// markdown content hash with one of them. Different summary templates over
// the same source document all receive the supplement.
func fanOutByMDHash(db *sql.DB, ids []string) ([]string, error) {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, id := range ids {
		add(id)
		var mdHash sql.NullString
		err := db.QueryRow(`SELECT source_md_content_hash FROM paper WHERE paper_id = ?`, id).Scan(&mdHash)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading md hash for %s: %w", id, err)
		}
		if !mdHash.Valid || mdHash.String == "" {
			continue
		}
		rows, err := db.Query(
			`SELECT paper_id FROM paper WHERE source_md_content_hash = ? ORDER BY paper_id`,
			mdHash.String,
		)
		if err != nil {
			return nil, fmt.Errorf("fanning out by md hash: %w", err)
		}
		for rows.Next() {
			var other string
			if err := rows.Scan(&other); err != nil {
				rows.Close()
				return nil, err
			}
			add(other)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}

// supplementOne attaches one record's payload to one paper: the summary blob
// and row when that template slot is free, the BibTeX row when none exists,
// and the DOI column when it is empty. Existing values always win.
func supplementOne(db *sql.DB, store *blobstore.Store, paperID string, enr *record.Enriched, report *SupplementReport) error {
	tag := enr.TemplateTag
	if tag != "" {
		var n int
		err := db.QueryRow(
			`SELECT COUNT(*) FROM paper_summary WHERE paper_id = ? AND template_tag = ?`,
			paperID, tag,
		).Scan(&n)
		if err != nil {
			return fmt.Errorf("checking summary slot %s/%s: %w", paperID, tag, err)
		}
		if n > 0 {
			report.SummariesKept++
		} else {
			// A blob can predate its catalog row (a crashed pass, or files
			// dropped in by hand); an existing blob wins over the new payload.
			if !store.HasSummary(paperID, tag) {
				if err := store.WriteSummary(paperID, tag, enr.Record.Raw); err != nil {
					return fmt.Errorf("writing summary blob %s/%s: %w", paperID, tag, err)
				}
			}
			if _, err := db.Exec(
				`INSERT INTO paper_summary (paper_id, template_tag) VALUES (?, ?)`,
				paperID, tag,
			); err != nil {
				return fmt.Errorf("inserting summary row %s/%s: %w", paperID, tag, err)
			}
			report.SummariesAdded++
		}
	}

	if b := enr.Record.Bibtex; b != nil && strings.TrimSpace(b.RawEntry) != "" {
		res, err := db.Exec(
			`INSERT OR IGNORE INTO paper_bibtex (paper_id, bibtex_raw, bibtex_key, entry_type)
			 VALUES (?, ?, ?, ?)`,
			paperID, strings.TrimSpace(b.RawEntry), strings.TrimSpace(b.Key),
			strings.ToLower(strings.TrimSpace(b.Type)),
		)
		if err != nil {
			return fmt.Errorf("inserting bibtex for %s: %w", paperID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			report.BibtexAdded++
		}
	}

	if enr.DOI != "" {
		res, err := db.Exec(
			`UPDATE paper SET doi = ? WHERE paper_id = ? AND (doi IS NULL OR doi = '')`,
			enr.DOI, paperID,
		)
		if err != nil {
			return fmt.Errorf("filling doi for %s: %w", paperID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			report.DOIFilled++
		}
	}
	return nil
}
