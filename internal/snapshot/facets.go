package snapshot

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// insertFacets writes the per-paper facet link rows, recomputes the facet
// count tables from scratch, and materializes pairwise co-occurrence edges
// for tags and authors.
func insertFacets(tx *sql.Tx, ordered []*CatalogEntry, facets map[string]*FacetValues) error {
	authorStmt, err := tx.Prepare(`INSERT OR IGNORE INTO paper_author (paper_id, name, position) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing author insert: %w", err)
	}
	defer authorStmt.Close()
	tagStmt, err := tx.Prepare(`INSERT OR IGNORE INTO paper_tag (paper_id, tag) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing tag insert: %w", err)
	}
	defer tagStmt.Close()
	kwStmt, err := tx.Prepare(`INSERT OR IGNORE INTO paper_keyword (paper_id, keyword) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing keyword insert: %w", err)
	}
	defer kwStmt.Close()
	instStmt, err := tx.Prepare(`INSERT OR IGNORE INTO paper_institution (paper_id, institution) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing institution insert: %w", err)
	}
	defer instStmt.Close()

	authorCount := make(map[string]int)
	venueCount := make(map[string]int)
	tagCount := make(map[string]int)
	kwCount := make(map[string]int)
	instCount := make(map[string]int)
	cooccur := make(map[cooccurKey]int)

	for _, e := range ordered {
		if v := strings.TrimSpace(e.Venue); v != "" {
			venueCount[v]++
		}
		f := facets[e.PaperID]
		if f == nil {
			continue
		}
		authors := dedupeValues(f.Authors)
		tags := dedupeValues(f.Tags)
		for i, name := range authors {
			if _, err := authorStmt.Exec(e.PaperID, name, i); err != nil {
				return fmt.Errorf("inserting author link for %s: %w", e.PaperID, err)
			}
			authorCount[name]++
		}
		for _, tag := range tags {
			if _, err := tagStmt.Exec(e.PaperID, tag); err != nil {
				return fmt.Errorf("inserting tag link for %s: %w", e.PaperID, err)
			}
			tagCount[tag]++
		}
		for _, kw := range dedupeValues(f.Keywords) {
			if _, err := kwStmt.Exec(e.PaperID, kw); err != nil {
				return fmt.Errorf("inserting keyword link for %s: %w", e.PaperID, err)
			}
			kwCount[kw]++
		}
		for _, inst := range dedupeValues(f.Institutions) {
			if _, err := instStmt.Exec(e.PaperID, inst); err != nil {
				return fmt.Errorf("inserting institution link for %s: %w", e.PaperID, err)
			}
			instCount[inst]++
		}
		addCooccur(cooccur, "tag", tags)
		addCooccur(cooccur, "author", authors)
	}

	counts := []struct {
		table string
		data  map[string]int
	}{
		{"facet_author", authorCount},
		{"facet_venue", venueCount},
		{"facet_tag", tagCount},
		{"facet_keyword", kwCount},
		{"facet_institution", instCount},
	}
	for _, c := range counts {
		stmt, err := tx.Prepare(fmt.Sprintf(`INSERT INTO %s (name, paper_count) VALUES (?, ?)`, c.table))
		if err != nil {
			return fmt.Errorf("preparing %s insert: %w", c.table, err)
		}
		for _, name := range sortedCountKeys(c.data) {
			if _, err := stmt.Exec(name, c.data[name]); err != nil {
				stmt.Close()
				return fmt.Errorf("inserting %s row %q: %w", c.table, name, err)
			}
		}
		stmt.Close()
	}

	coStmt, err := tx.Prepare(`
		INSERT INTO facet_cooccur (kind_a, value_a, kind_b, value_b, weight)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing co-occurrence insert: %w", err)
	}
	defer coStmt.Close()
	edges := make([]cooccurKey, 0, len(cooccur))
	for k := range cooccur {
		edges = append(edges, k)
	}
	sort.Slice(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.kind != b.kind {
			return a.kind < b.kind
		}
		if a.valueA != b.valueA {
			return a.valueA < b.valueA
		}
		return a.valueB < b.valueB
	})
	for _, k := range edges {
		if _, err := coStmt.Exec(k.kind, k.valueA, k.kind, k.valueB, cooccur[k]); err != nil {
			return fmt.Errorf("inserting co-occurrence edge %q/%q: %w", k.valueA, k.valueB, err)
		}
	}
	return nil
}

type cooccurKey struct {
	kind   string
	valueA string
	valueB string
}

// addCooccur records one undirected edge per value pair on a paper. The two
// values are stored in canonical order so the same pair always hits the same
// row.
func addCooccur(edges map[cooccurKey]int, kind string, values []string) {
	for i := 0; i < len(values); i++ {
		for j := i + 1; j < len(values); j++ {
			a, b := values[i], values[j]
			if b < a {
				a, b = b, a
			}
			edges[cooccurKey{kind: kind, valueA: a, valueB: b}]++
		}
	}
}

// dedupeValues trims, drops empties, and keeps the first occurrence of each
// value in order.
func dedupeValues(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func sortedCountKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
