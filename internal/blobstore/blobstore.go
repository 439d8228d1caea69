// Package blobstore is a content-addressed file store. Every unique payload
// is written exactly once under the hex sha256 of its bytes; re-insertion is
// idempotent and the store only grows.
package blobstore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// Store writes blobs under a static export root, one subdirectory per
// logical kind.
type Store struct {
	root string
}

// Open creates the store root if needed and returns a handle.
func Open(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating blob store root: %w", err)
	}
	return &Store{root: root}, nil
}

// Root returns the static export root directory.
func (s *Store) Root() string {
	return s.root
}

// HashBytes returns the hex sha256 content hash used for addressing.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// PutMarkdown stores a source markdown payload under md/.
func (s *Store) PutMarkdown(data []byte) (string, error) {
	return s.put(data, "md", ".md")
}

// PutImage stores an image payload under images/, keeping its extension.
func (s *Store) PutImage(data []byte, ext string) (string, error) {
	return s.put(data, "images", ext)
}

// put writes data under <root>/<subdir>/<hash><ext> unless a blob with that
// hash already exists. Returns the content hash either way.
func (s *Store) put(data []byte, subdir, ext string) (string, error) {
	hash := HashBytes(data)
	dir := filepath.Join(s.root, subdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating blob dir: %w", err)
	}
	path := filepath.Join(dir, hash+ext)
	if _, err := os.Stat(path); err == nil {
		return hash, nil
	}
	if err := writeAtomic(path, data); err != nil {
		return "", err
	}
	return hash, nil
}

// ImportFile copies an already-hashed file into the store under
// <subdir>/<hash><ext>, skipping the copy when the blob exists.
func (s *Store) ImportFile(path, subdir, ext, hash string) error {
	dir := filepath.Join(s.root, subdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating blob dir: %w", err)
	}
	dst := filepath.Join(dir, hash+ext)
	if _, err := os.Stat(dst); err == nil {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading asset: %w", err)
	}
	return writeAtomic(dst, data)
}

// SummaryPath returns where one paper's per-template summary JSON lives.
func (s *Store) SummaryPath(paperID, templateTag string) string {
	return filepath.Join(s.root, "summary", paperID, templateTag+".json")
}

// HasSummary reports whether a summary blob already exists for the key.
func (s *Store) HasSummary(paperID, templateTag string) bool {
	_, err := os.Stat(s.SummaryPath(paperID, templateTag))
	return err == nil
}

// WriteSummary stores a paper's summary JSON under
// summary/<paper_id>/<template_tag>.json, replacing any prior content for the
// same key. Callers that must not overwrite check HasSummary first.
func (s *Store) WriteSummary(paperID, templateTag string, data []byte) error {
	path := s.SummaryPath(paperID, templateTag)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating summary dir: %w", err)
	}
	return writeAtomic(path, data)
}

// writeAtomic writes via a temp file and rename so a crash never leaves a
// truncated blob under a valid hash name.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".blob-*")
	if err != nil {
		return fmt.Errorf("creating temp blob: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing blob: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming blob: %w", err)
	}
	return nil
}
