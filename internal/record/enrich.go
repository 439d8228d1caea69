package record

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/hallvard/papervault/internal/identity"
	"github.com/hallvard/papervault/internal/titlekey"
)

// Enriched carries the fields derived from one immutable Paper for matching
// and indexing. It sits alongside the record rather than being written back
// into it.
type Enriched struct {
	Record *Paper

	TitleKey   string
	Year       string // "2021" or "Unknown"
	Month      string // "01".."12" or "Unknown"
	Venue      string
	DOI        string // canonical, "" when absent everywhere
	BibtexKey  string
	Authors    []string
	Tags       []string
	Keywords   []string
	SearchText string
	// TemplateTag is the summary template that produced this record, after
	// batch-level fallback.
	TemplateTag string
	// SourceHash identifies the extraction source: the record's own hash, or
	// a stable hash of its source path.
	SourceHash string
}

var doiFromRawRe = regexp.MustCompile(`(?i)\bdoi\s*=\s*[{"]?([^}",\n]+)`)

// Enrich derives matching and facet fields for one record. batchTag is the
// enclosing batch's template tag, used when the record carries none.
func Enrich(p *Paper, batchTag string) *Enriched {
	e := &Enriched{Record: p}

	e.TitleKey = titlekey.Normalize(p.Title)
	e.Authors = append([]string(nil), p.Authors...)
	e.Tags = append([]string(nil), p.Tags...)
	e.Keywords = append([]string(nil), p.Keywords...)

	year := p.Bibtex.Field("year")
	if !isFourDigitYear(year) {
		year = ""
	}
	month := titlekey.NormalizeMonth(p.Bibtex.Field("month"))
	if year == "" || month == "" {
		py, pm := titlekey.ParseYearMonth(p.PublicationDate.String())
		if year == "" {
			year = py
		}
		if month == "" {
			month = pm
		}
	}
	e.Year = labelOrUnknown(year)
	e.Month = labelOrUnknown(month)

	e.Venue = extractVenue(p)
	e.DOI = extractDOI(p)
	if p.Bibtex != nil {
		e.BibtexKey = strings.TrimSpace(p.Bibtex.Key)
	}

	e.TemplateTag = strings.TrimSpace(p.TemplateTag)
	if e.TemplateTag == "" {
		e.TemplateTag = strings.TrimSpace(p.PromptTemplate)
	}
	if e.TemplateTag == "" {
		e.TemplateTag = strings.TrimSpace(batchTag)
	}

	e.SourceHash = strings.TrimSpace(p.SourceHash)
	if e.SourceHash == "" && p.SourcePath != "" {
		e.SourceHash = StablePathHash(p.SourcePath)
	}

	parts := []string{p.Title, e.Venue, strings.Join(e.Authors, " "), strings.Join(e.Tags, " ")}
	var nonEmpty []string
	for _, part := range parts {
		if part != "" {
			nonEmpty = append(nonEmpty, part)
		}
	}
	e.SearchText = strings.ToLower(strings.Join(nonEmpty, " "))

	return e
}

// FirstAuthor returns the first listed author or "".
func (e *Enriched) FirstAuthor() string {
	if len(e.Authors) == 0 {
		return ""
	}
	return e.Authors[0]
}

// IdentitySource packages the enriched signals for candidate key derivation.
func (e *Enriched) IdentitySource() identity.Source {
	year := e.Year
	if year == "Unknown" {
		year = ""
	}
	return identity.Source{
		Title:       e.Record.Title,
		DOI:         e.DOI,
		BibtexKey:   e.BibtexKey,
		Year:        year,
		FirstAuthor: e.FirstAuthor(),
	}
}

// StablePathHash produces the deterministic hash used to identify a record by
// its source path when no content hash was supplied.
func StablePathHash(path string) string {
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:])
}

// extractVenue prefers the BibTeX journal or booktitle over the free-form
// publication venue, matching the entry type.
func extractVenue(p *Paper) string {
	if p.Bibtex != nil {
		switch strings.ToLower(strings.TrimSpace(p.Bibtex.Type)) {
		case "article":
			if v := p.Bibtex.Field("journal"); v != "" {
				return v
			}
		case "inproceedings", "conference", "proceedings":
			if v := p.Bibtex.Field("booktitle"); v != "" {
				return v
			}
		}
	}
	return strings.TrimSpace(p.Venue)
}

// extractDOI walks the documented fallback order: record doi fields, then
// BibTeX doi field, then a doi= assignment inside the raw entry text.
func extractDOI(p *Paper) string {
	for _, raw := range []string{p.DOI, p.PaperDOI} {
		if doi := identity.CanonicalDOI(raw); doi != "" {
			return doi
		}
	}
	if p.Bibtex == nil {
		return ""
	}
	if doi := identity.CanonicalDOI(p.Bibtex.Field("doi")); doi != "" {
		return doi
	}
	if m := doiFromRawRe.FindStringSubmatch(p.Bibtex.RawEntry); m != nil {
		return identity.CanonicalDOI(m[1])
	}
	return ""
}

func labelOrUnknown(v string) string {
	if v == "" {
		return "Unknown"
	}
	return v
}

func isFourDigitYear(s string) bool {
	if len(s) != 4 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
