package fileindex

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var translatedNameRe = regexp.MustCompile(`(?i)^(.+)\.([^.]+)\.md$`)

// TranslatedIndex maps a source file's base name (lowercased, extension
// stripped) to its available translations by language.
type TranslatedIndex struct {
	byBase map[string]map[string]string
}

// BuildTranslated scans roots for "<base>.<lang>.md" files. The first file
// found for a (base, lang) pair wins; paths are visited in sorted order so
// the result is deterministic.
func BuildTranslated(roots []string) *TranslatedIndex {
	var candidates []string
	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			continue
		}
		filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			if strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
				if abs, err := filepath.Abs(path); err == nil {
					candidates = append(candidates, abs)
				}
			}
			return nil
		})
	}
	sort.Strings(candidates)

	ix := &TranslatedIndex{byBase: make(map[string]map[string]string)}
	for _, path := range candidates {
		m := translatedNameRe.FindStringSubmatch(filepath.Base(path))
		if m == nil {
			continue
		}
		base := strings.ToLower(strings.TrimSpace(m[1]))
		lang := strings.ToLower(strings.TrimSpace(m[2]))
		if base == "" || lang == "" {
			continue
		}
		if ix.byBase[base] == nil {
			ix.byBase[base] = make(map[string]string)
		}
		if _, ok := ix.byBase[base][lang]; !ok {
			ix.byBase[base][lang] = path
		}
	}
	return ix
}

// ForBase returns lang -> path for one source base name.
func (ix *TranslatedIndex) ForBase(base string) map[string]string {
	return ix.byBase[strings.ToLower(base)]
}
