package titlekey

import (
	"regexp"
	"strings"
)

var (
	pdfHashSuffixRe = regexp.MustCompile(`(?i)(\.pdf)(-[0-9a-f\-]{8,})$`)
	yearTitleRe     = regexp.MustCompile(`^\s*\d{4}\s*-\s*(.+)$`)
	authorYearTitleRe = regexp.MustCompile(`^\s*.+?\s*-\s*\d{4}\s*-\s*(.+)$`)
	filenameAuthorYearRe = regexp.MustCompile(`^\s*(.+?)\s*-\s*((?:19|20)\d{2})\s*-\s*`)
	filenameYearRe       = regexp.MustCompile(`^\s*((?:19|20)\d{2})\s*-\s*`)
)

// StripPDFHashSuffix removes a trailing content-hash suffix from names of the
// form "<name>.pdf-<hex...>".
func StripPDFHashSuffix(name string) string {
	return pdfHashSuffixRe.ReplaceAllString(name, "$1")
}

// TitleFromFilename recovers a title candidate from a markdown or PDF
// filename, stripping extensions, hash suffixes, and leading "<year> - " or
// "<author> - <year> - " prefixes.
func TitleFromFilename(name string) string {
	base := stripDocSuffixes(name)
	base = strings.TrimSpace(strings.ReplaceAll(base, "_", " "))
	if m := yearTitleRe.FindStringSubmatch(base); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := authorYearTitleRe.FindStringSubmatch(base); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(base)
}

// YearAuthorFromFilename extracts "<author> - <year> - ..." or "<year> - ..."
// hints from a filename. Either result may be empty.
func YearAuthorFromFilename(name string) (year, author string) {
	base := stripDocSuffixes(name)
	if m := filenameAuthorYearRe.FindStringSubmatch(base); m != nil {
		return m[2], strings.TrimSpace(m[1])
	}
	if m := filenameYearRe.FindStringSubmatch(base); m != nil {
		return m[1], ""
	}
	return "", ""
}

func stripDocSuffixes(name string) string {
	base := name
	if strings.HasSuffix(strings.ToLower(base), ".md") {
		base = base[:len(base)-3]
	}
	if strings.Contains(strings.ToLower(base), ".pdf-") {
		base = StripPDFHashSuffix(base)
	}
	if strings.HasSuffix(strings.ToLower(base), ".pdf") {
		base = base[:len(base)-4]
	}
	return base
}
