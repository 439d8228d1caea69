// Package record parses extraction-run paper batches and derives the
// normalized fields the snapshot builder matches and indexes on.
package record

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// FlexibleString unmarshals from string, number, or null JSON values.
// Extraction runs are inconsistent about year/month typing.
type FlexibleString string

func (f *FlexibleString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexibleString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FlexibleString(n.String())
		return nil
	}
	var i int
	if err := json.Unmarshal(data, &i); err == nil {
		*f = FlexibleString(strconv.Itoa(i))
		return nil
	}
	return fmt.Errorf("cannot unmarshal %s into FlexibleString", string(data))
}

func (f FlexibleString) String() string {
	return string(f)
}

// StringList unmarshals from a JSON array, a single delimited string, or null.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = nil
		return nil
	}
	var arr []FlexibleString
	if err := json.Unmarshal(data, &arr); err == nil {
		out := make([]string, 0, len(arr))
		for _, item := range arr {
			if s := strings.TrimSpace(item.String()); s != "" {
				out = append(out, s)
			}
		}
		*l = out
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		var out []string
		for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' }) {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		*l = out
		return nil
	}
	return fmt.Errorf("cannot unmarshal %s into StringList", string(data))
}

// Bibtex is an attached BibTeX entry as produced by the extraction pipeline.
type Bibtex struct {
	Key      string                    `json:"key"`
	Type     string                    `json:"type"`
	Fields   map[string]FlexibleString `json:"fields"`
	RawEntry string                    `json:"raw_entry"`
}

// Field returns a trimmed BibTeX field value or "".
func (b *Bibtex) Field(name string) string {
	if b == nil || b.Fields == nil {
		return ""
	}
	return strings.TrimSpace(b.Fields[name].String())
}

// Paper is one loosely-structured record from an extraction batch. The full
// original JSON object is retained in Raw so template payload fields survive
// into the snapshot's summary blobs untouched.
type Paper struct {
	Title           string         `json:"paper_title"`
	Authors         StringList     `json:"paper_authors"`
	PublicationDate FlexibleString `json:"publication_date"`
	Venue           string         `json:"publication_venue"`
	DOI             string         `json:"doi"`
	PaperDOI        string         `json:"paper_doi"`
	Summary         string         `json:"summary"`
	Abstract        string         `json:"abstract"`
	Keywords        StringList     `json:"keywords"`
	Tags            StringList     `json:"ai_generated_tags"`
	Institutions    StringList     `json:"institutions"`
	Bibtex          *Bibtex        `json:"bibtex"`
	SourcePath      string         `json:"source_path"`
	SourceHash      string         `json:"source_hash"`
	TemplateTag     string         `json:"template_tag"`
	PromptTemplate  string         `json:"prompt_template"`
	OutputLanguage  string         `json:"output_language"`
	Provider        string         `json:"provider"`
	Model           string         `json:"model"`
	ExtractedAt     string         `json:"extracted_at"`

	Raw json.RawMessage `json:"-"`
}

func (p *Paper) UnmarshalJSON(data []byte) error {
	type plain Paper
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = Paper(v)
	p.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// Batch is one extraction run's output: a paper list, optionally tagged with
// the summary template that produced it.
type Batch struct {
	TemplateTag string   `json:"template_tag"`
	Papers      []*Paper `json:"papers"`
}

// LoadBatch reads a batch file. Both the wrapped {template_tag, papers} form
// and a bare array of papers are accepted.
func LoadBatch(path string) (*Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading batch: %w", err)
	}
	return ParseBatch(data)
}

// ParseBatch parses batch JSON in either accepted shape.
func ParseBatch(data []byte) (*Batch, error) {
	var batch Batch
	if err := json.Unmarshal(data, &batch); err == nil && batch.Papers != nil {
		return &batch, nil
	}
	var papers []*Paper
	if err := json.Unmarshal(data, &papers); err != nil {
		return nil, fmt.Errorf("parsing batch JSON: %w", err)
	}
	return &Batch{Papers: papers}, nil
}
