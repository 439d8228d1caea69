// Package config loads the build manifest describing one snapshot merge.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultWorkers bounds the asset-hashing pool when the manifest is silent.
const DefaultWorkers = 4

// Manifest describes the inputs and outputs of a snapshot build.
type Manifest struct {
	// Inputs are extraction batch JSON files, each a {template_tag, papers}
	// object or a bare paper array.
	Inputs []string `yaml:"inputs" json:"inputs"`
	// MDRoots are directories scanned for loose source markdown.
	MDRoots []string `yaml:"md_roots" json:"md_roots"`
	// TranslatedMDRoots are directories scanned for "<base>.<lang>.md" files.
	TranslatedMDRoots []string `yaml:"translated_md_roots" json:"translated_md_roots"`
	// PDFRoots are directories scanned for loose PDFs.
	PDFRoots []string `yaml:"pdf_roots" json:"pdf_roots"`
	// OutputDB is the snapshot catalog database path.
	OutputDB string `yaml:"output_db" json:"output_db"`
	// StaticDir is the blob store root.
	StaticDir string `yaml:"static_dir" json:"static_dir"`
	// PreviousDB, when set, is the prior snapshot whose identities and
	// metadata the build inherits.
	PreviousDB string `yaml:"previous_db" json:"previous_db,omitempty"`
	// Workers bounds the asset-hashing worker pool.
	Workers int `yaml:"workers" json:"workers"`
	// ProbePDFMetadata enables indexing PDFs by their embedded titles.
	ProbePDFMetadata bool `yaml:"probe_pdf_metadata" json:"probe_pdf_metadata"`
}

// Load reads and validates a manifest. Relative paths are resolved against
// the manifest's directory.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	m.resolvePaths(filepath.Dir(path))
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadRaw reads a manifest without resolving paths or validating. Editing
// commands use it so relative paths survive a load/save round trip.
func LoadRaw(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return &m, nil
}

// Save writes the manifest as YAML.
func Save(path string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

// Validate checks the fields a build cannot run without.
func (m *Manifest) Validate() error {
	if len(m.Inputs) == 0 {
		return fmt.Errorf("manifest has no inputs")
	}
	if m.OutputDB == "" {
		return fmt.Errorf("manifest has no output_db")
	}
	if m.StaticDir == "" {
		return fmt.Errorf("manifest has no static_dir")
	}
	if m.Workers < 0 {
		return fmt.Errorf("workers must be >= 0")
	}
	return nil
}

// EffectiveWorkers returns the configured pool size or the default.
func (m *Manifest) EffectiveWorkers() int {
	if m.Workers > 0 {
		return m.Workers
	}
	return DefaultWorkers
}

func (m *Manifest) resolvePaths(base string) {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	for i, p := range m.Inputs {
		m.Inputs[i] = resolve(p)
	}
	for _, list := range [][]string{m.MDRoots, m.TranslatedMDRoots, m.PDFRoots} {
		for i, p := range list {
			list[i] = resolve(p)
		}
	}
	m.OutputDB = resolve(m.OutputDB)
	m.StaticDir = resolve(m.StaticDir)
	m.PreviousDB = resolve(m.PreviousDB)
}
