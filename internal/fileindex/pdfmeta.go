package fileindex

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

var (
	wordPrefixRe    = regexp.MustCompile(`(?i)^microsoft\s+word\s*-\s*`)
	pdfPrefixRe     = regexp.MustCompile(`(?i)^pdf\s*-\s*`)
	untitledPrefixRe = regexp.MustCompile(`(?i)^untitled\b`)
)

// MetadataTitle reads a PDF's embedded title, falling back to the first
// substantial line of page one. Returns "" when nothing usable is found;
// unreadable PDFs are never an error here.
func MetadataTitle(path string) string {
	f, r, err := pdf.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	if r.NumPage() < 1 {
		return ""
	}
	page := r.Page(1)
	if page.V.IsNull() {
		return ""
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) > 20 {
			return cleanMetadataTitle(line, path)
		}
	}
	return ""
}

// cleanMetadataTitle strips converter noise from an embedded title and
// rejects titles that merely echo the filename.
func cleanMetadataTitle(value, path string) string {
	text := strings.TrimSpace(strings.ReplaceAll(value, "\x00", ""))
	if text == "" {
		return ""
	}
	text = wordPrefixRe.ReplaceAllString(text, "")
	text = pdfPrefixRe.ReplaceAllString(text, "")
	text = strings.TrimSpace(untitledPrefixRe.ReplaceAllString(text, ""))
	if strings.HasSuffix(strings.ToLower(text), ".pdf") {
		text = strings.TrimSpace(text[:len(text)-4])
	}
	if len(text) < 3 {
		return ""
	}
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if stem != "" && strings.EqualFold(text, strings.TrimSpace(stem)) {
		return ""
	}
	return text
}
