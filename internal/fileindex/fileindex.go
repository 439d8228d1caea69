// Package fileindex resolves loose markdown and PDF files to paper records.
// Roots are scanned exactly once into an immutable lookup table; resolution
// then walks a fixed ladder from exact filename matches down to fuzzy
// title narrowing.
package fileindex

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hallvard/papervault/internal/match"
	"github.com/hallvard/papervault/internal/titlekey"
)

// Kind selects which loose files an index covers.
type Kind int

const (
	KindMarkdown Kind = iota
	KindPDF
)

// authorYearMinSimilarity floors fuzzy matches reached through year/author
// keys; those pools are broad, so a weak best match is rejected.
const authorYearMinSimilarity = 0.8

// Index is an immutable lookup table from derived keys to candidate paths.
// Key namespaces: bare lowercase filename, bare normalized title,
// "compact:<key>", "prefix:<key>", "year:<yyyy>", "authoryear:<yyyy>:<surname>".
type Index struct {
	byKey map[string][]string
}

// Options tunes index construction.
type Options struct {
	// ProbeMetadata additionally indexes PDFs under titles read from their
	// embedded metadata, covering files whose names carry no usable title.
	ProbeMetadata bool
}

// Build scans the given root directories once and returns the lookup table.
// Unreadable roots and files are skipped; scanning is best-effort by design.
func Build(roots []string, kind Kind) *Index {
	return BuildWithOptions(roots, kind, Options{})
}

// BuildWithOptions is Build with explicit options.
func BuildWithOptions(roots []string, kind Kind, opts Options) *Index {
	ix := &Index{byKey: make(map[string][]string)}
	seen := make(map[string]bool)
	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			continue
		}
		filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			if !matchesKind(d.Name(), kind) {
				return nil
			}
			abs, err := filepath.Abs(path)
			if err != nil {
				return nil
			}
			if seen[abs] {
				return nil
			}
			seen[abs] = true
			ix.addFile(abs, d.Name())
			if opts.ProbeMetadata && kind == KindPDF {
				if metaTitle := MetadataTitle(abs); metaTitle != "" {
					if key := titlekey.Normalize(metaTitle); key != "" {
						ix.add(key, abs)
						ix.addTitleForms(key, abs)
					}
				}
			}
			return nil
		})
	}
	for key := range ix.byKey {
		sort.Strings(ix.byKey[key])
	}
	return ix
}

func matchesKind(name string, kind Kind) bool {
	lower := strings.ToLower(name)
	switch kind {
	case KindMarkdown:
		return strings.HasSuffix(lower, ".md")
	case KindPDF:
		if strings.HasSuffix(lower, ".pdf") {
			return true
		}
		// "<name>.pdf-<hash>" sidecar copies count as PDFs.
		return strings.Contains(lower, ".pdf-") && !strings.HasSuffix(lower, ".md")
	}
	return false
}

func (ix *Index) addFile(abs, name string) {
	nameKey := strings.ToLower(name)
	ix.add(nameKey, abs)

	titleKey := titlekey.Normalize(titlekey.TitleFromFilename(name))
	if titleKey != "" {
		if titleKey != nameKey {
			ix.add(titleKey, abs)
		}
		ix.addTitleForms(titleKey, abs)
		stripped := titlekey.StripLeadingNumericTokens(titleKey)
		if stripped != "" && stripped != titleKey {
			ix.add(stripped, abs)
			ix.addTitleForms(stripped, abs)
		}
	}

	if year, author := titlekey.YearAuthorFromFilename(name); year != "" {
		ix.add("year:"+year, abs)
		if authorKey := titlekey.AuthorKey(author); author != "" && authorKey != "" {
			ix.add("authoryear:"+year+":"+authorKey, abs)
		}
	}
}

func (ix *Index) addTitleForms(titleKey, abs string) {
	if compact := titlekey.Compact(titleKey); compact != "" {
		ix.add("compact:"+compact, abs)
	}
	if prefix := titlekey.Prefix(titleKey); prefix != "" {
		ix.add("prefix:"+prefix, abs)
	}
}

func (ix *Index) add(key, path string) {
	for _, existing := range ix.byKey[key] {
		if existing == path {
			return
		}
	}
	ix.byKey[key] = append(ix.byKey[key], path)
}

// Lookup returns the candidate paths registered under a key.
func (ix *Index) Lookup(key string) []string {
	return ix.byKey[key]
}

// Query carries the signals available for resolving one record to a file.
type Query struct {
	SourcePath string // the record's claimed source path, may be empty
	Title      string // raw title
	Year       string // 4-digit year or ""
	Author     string // first author, raw
}

// Resolution reports which ladder rung produced a match.
type Resolution struct {
	Path  string
	How   string // "source_name", "title", "title_compact", "title_stripped", "title_prefix", "title_fuzzy", "author_year", "year"
	Score float64
}

// ResolveSource finds the file backing a record: exact source filename first,
// then the title/meta ladder.
func (ix *Index) ResolveSource(q Query) (Resolution, bool) {
	if q.SourcePath != "" {
		name := strings.ToLower(filepath.Base(q.SourcePath))
		if candidates := ix.byKey[name]; len(candidates) > 0 {
			return Resolution{Path: candidates[0], How: "source_name", Score: 1.0}, true
		}
	}
	return ix.resolveByTitleAndMeta(q)
}

// ResolvePDF finds a PDF for a record whose source path names a converted
// markdown file. Guessed PDF filenames are tried before the title ladder.
func (ix *Index) ResolvePDF(q Query) (Resolution, bool) {
	for _, name := range guessPDFNames(q.SourcePath) {
		if candidates := ix.byKey[strings.ToLower(name)]; len(candidates) > 0 {
			return Resolution{Path: candidates[0], How: "source_name", Score: 1.0}, true
		}
	}
	return ix.resolveByTitleAndMeta(q)
}

func (ix *Index) resolveByTitleAndMeta(q Query) (Resolution, bool) {
	titleKey := titlekey.Normalize(q.Title)

	if candidates := ix.byKey[titleKey]; titleKey != "" && len(candidates) > 0 {
		return Resolution{Path: candidates[0], How: "title", Score: 1.0}, true
	}
	if titleKey != "" {
		if candidates := ix.byKey["compact:"+titlekey.Compact(titleKey)]; len(candidates) > 0 {
			return Resolution{Path: candidates[0], How: "title_compact", Score: 1.0}, true
		}
		stripped := titlekey.StripLeadingNumericTokens(titleKey)
		if stripped != "" && stripped != titleKey {
			if candidates := ix.byKey[stripped]; len(candidates) > 0 {
				return Resolution{Path: candidates[0], How: "title_stripped", Score: 1.0}, true
			}
			if candidates := ix.byKey["compact:"+titlekey.Compact(stripped)]; len(candidates) > 0 {
				return Resolution{Path: candidates[0], How: "title_compact", Score: 1.0}, true
			}
		}
	}

	var prefixCandidates []string
	if prefix := titlekey.Prefix(titleKey); prefix != "" {
		prefixCandidates = ix.byKey["prefix:"+prefix]
	}
	if len(prefixCandidates) == 0 {
		stripped := titlekey.StripLeadingNumericTokens(titleKey)
		if stripped != "" && stripped != titleKey {
			if prefix := titlekey.Prefix(stripped); prefix != "" {
				prefixCandidates = ix.byKey["prefix:"+prefix]
			}
		}
	}
	if len(prefixCandidates) > 0 {
		if res, ok := fuzzyNarrow(titleKey, prefixCandidates); ok {
			how := "title_fuzzy"
			if res.Score >= 1.0 {
				how = "title_prefix"
			}
			res.How = how
			return res, true
		}
	}

	if len(q.Year) != 4 || !allDigits(q.Year) {
		return Resolution{}, false
	}
	authorKey := titlekey.AuthorKey(q.Author)
	var candidates []string
	how := "year"
	if authorKey != "" {
		candidates = ix.byKey["authoryear:"+q.Year+":"+authorKey]
		if len(candidates) > 0 {
			how = "author_year"
		}
	}
	if len(candidates) == 0 {
		candidates = ix.byKey["year:"+q.Year]
	}
	if len(candidates) == 0 {
		return Resolution{}, false
	}
	if len(candidates) == 1 && titleKey == "" {
		return Resolution{Path: candidates[0], How: how, Score: 1.0}, true
	}
	if res, ok := fuzzyNarrow(titleKey, candidates); ok {
		if res.Score < authorYearMinSimilarity {
			return Resolution{}, false
		}
		res.How = "title_fuzzy"
		return res, true
	}
	return Resolution{}, false
}

// fuzzyNarrow runs the adaptive matcher over candidate paths, keying each by
// the normalized title recovered from its filename.
func fuzzyNarrow(titleKey string, candidates []string) (Resolution, bool) {
	if titleKey == "" {
		return Resolution{}, false
	}
	keys := make([]string, len(candidates))
	for i, path := range candidates {
		keys[i] = titlekey.Normalize(titlekey.TitleFromFilename(filepath.Base(path)))
	}
	result, ok := match.Adaptive(titleKey, keys)
	if !ok {
		return Resolution{}, false
	}
	return Resolution{Path: candidates[result.Index], Score: result.Score}, true
}

func guessPDFNames(sourcePath string) []string {
	if sourcePath == "" {
		return nil
	}
	name := filepath.Base(sourcePath)
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".pdf.md"):
		return []string{name[:len(name)-3]}
	case strings.HasSuffix(lower, ".md") && strings.Contains(lower, ".pdf-"):
		base := titlekey.StripPDFHashSuffix(name[:len(name)-3])
		return []string{base}
	case strings.Contains(lower, ".pdf-"):
		return []string{name[:strings.LastIndex(lower, ".pdf-")+4]}
	case strings.HasSuffix(lower, ".pdf"):
		return []string{name}
	}
	return nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
