// Package identity derives candidate keys for paper records and maintains the
// durable alias registry that maps every key ever seen to a stable paper id.
package identity

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/hallvard/papervault/internal/titlekey"
)

// KeyType classifies a candidate key, most-authoritative first.
type KeyType string

const (
	KeyTypeDOI          KeyType = "doi"
	KeyTypeBibtex       KeyType = "bibtex"
	KeyTypeMeta         KeyType = "meta"
	KeyTypeTitleCompact KeyType = "title_compact"
	KeyTypeTitlePrefix  KeyType = "title_prefix"
	KeyTypeYearAuthor   KeyType = "year_author"
)

// Candidate is one derived identity key for a paper record. Candidates are
// produced in priority order and never mutated after creation.
type Candidate struct {
	PaperKey        string
	KeyType         KeyType
	MetaFingerprint string
}

// Source carries the signals candidate keys are derived from.
type Source struct {
	Title       string
	DOI         string // already canonicalized, or raw; CanonicalDOI applied
	BibtexKey   string
	Year        string
	FirstAuthor string
}

var doiSchemeRe = regexp.MustCompile(`(?i)^(?:https?://(?:dx\.)?doi\.org/|doi:)\s*`)

// CanonicalDOI lowercases a DOI and strips scheme and resolver prefixes.
// Returns "" when the input does not look like a DOI.
func CanonicalDOI(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return ""
	}
	value = doiSchemeRe.ReplaceAllString(value, "")
	value = strings.ToLower(strings.TrimSpace(value))
	if !strings.HasPrefix(value, "10.") || !strings.Contains(value, "/") {
		return ""
	}
	return value
}

// BuildCandidates derives the ordered candidate key list for one record.
// Resolution probes these in order; an empty normalized value never emits a
// candidate.
func BuildCandidates(src Source) []Candidate {
	var out []Candidate

	if doi := CanonicalDOI(src.DOI); doi != "" {
		out = append(out, Candidate{PaperKey: "doi:" + doi, KeyType: KeyTypeDOI})
	}
	if key := strings.TrimSpace(src.BibtexKey); key != "" {
		out = append(out, Candidate{PaperKey: "bibtex:" + strings.ToLower(key), KeyType: KeyTypeBibtex})
	}

	titleKey := titlekey.Normalize(src.Title)
	year := strings.TrimSpace(src.Year)
	authorKey := titlekey.AuthorKey(src.FirstAuthor)

	if titleKey != "" {
		out = append(out, Candidate{
			PaperKey:        "meta:" + titleKey,
			KeyType:         KeyTypeMeta,
			MetaFingerprint: metaFingerprint(titleKey, authorKey, year),
		})
		if compact := titlekey.Compact(titleKey); compact != "" {
			out = append(out, Candidate{PaperKey: "compact:" + compact, KeyType: KeyTypeTitleCompact})
		}
		if prefix := titlekey.Prefix(titleKey); prefix != "" {
			out = append(out, Candidate{PaperKey: "prefix:" + prefix, KeyType: KeyTypeTitlePrefix})
		}
	}

	if len(year) == 4 && allDigits(year) && authorKey != "" {
		out = append(out, Candidate{PaperKey: "ya:" + year + ":" + authorKey, KeyType: KeyTypeYearAuthor})
	}
	return out
}

func metaFingerprint(titleKey, authorKey, year string) string {
	return titleKey + "|" + authorKey + "|" + year
}

// NewPaperID allocates an opaque 32-hex paper identifier. The id is stable
// forever once registered; only collision resistance matters here.
func NewPaperID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
