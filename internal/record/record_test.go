package record

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestFlexibleStringAcceptsMixedTypes(t *testing.T) {
	var v struct {
		Year  FlexibleString `json:"year"`
		Month FlexibleString `json:"month"`
		Gone  FlexibleString `json:"gone"`
	}
	data := []byte(`{"year": 2021, "month": "06", "gone": null}`)
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.Year.String() != "2021" {
		t.Errorf("numeric year = %q", v.Year)
	}
	if v.Month.String() != "06" {
		t.Errorf("string month = %q", v.Month)
	}
	if v.Gone.String() != "" {
		t.Errorf("null = %q", v.Gone)
	}
}

func TestStringListAcceptsArrayAndDelimited(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"array", `["a", "b", " c "]`, []string{"a", "b", "c"}},
		{"comma string", `"a, b,c"`, []string{"a", "b", "c"}},
		{"semicolon string", `"a; b"`, []string{"a", "b"}},
		{"null", `null`, nil},
		{"empty array", `[]`, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var l StringList
			if err := json.Unmarshal([]byte(tt.in), &l); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if len(l) != len(tt.want) {
				t.Fatalf("got %v, want %v", l, tt.want)
			}
			for i := range l {
				if l[i] != tt.want[i] {
					t.Errorf("item %d = %q, want %q", i, l[i], tt.want[i])
				}
			}
		})
	}
}

func TestPaperRetainsRawJSON(t *testing.T) {
	data := []byte(`{"paper_title": "T", "custom_template_field": {"nested": true}}`)
	var p Paper
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Title != "T" {
		t.Errorf("title = %q", p.Title)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(p.Raw, &raw); err != nil {
		t.Fatalf("raw is not valid JSON: %v", err)
	}
	if _, ok := raw["custom_template_field"]; !ok {
		t.Error("unknown field lost from raw payload")
	}
}

func TestParseBatchBothShapes(t *testing.T) {
	wrapped := []byte(`{"template_tag": "deep", "papers": [{"paper_title": "A"}]}`)
	batch, err := ParseBatch(wrapped)
	if err != nil {
		t.Fatalf("wrapped: %v", err)
	}
	if batch.TemplateTag != "deep" || len(batch.Papers) != 1 {
		t.Errorf("wrapped batch = %+v", batch)
	}

	bare := []byte(`[{"paper_title": "A"}, {"paper_title": "B"}]`)
	batch, err = ParseBatch(bare)
	if err != nil {
		t.Fatalf("bare: %v", err)
	}
	if batch.TemplateTag != "" || len(batch.Papers) != 2 {
		t.Errorf("bare batch = %+v", batch)
	}

	if _, err := ParseBatch([]byte(`{"nonsense": 1}`)); err == nil {
		t.Error("expected error for shapeless input")
	}
}

func TestLoadBatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "batch.json")
	content := `{"template_tag": "x", "papers": [{"paper_title": "P"}]}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	batch, err := LoadBatch(path)
	if err != nil {
		t.Fatalf("LoadBatch: %v", err)
	}
	if len(batch.Papers) != 1 || batch.Papers[0].Title != "P" {
		t.Errorf("batch = %+v", batch)
	}

	if _, err := LoadBatch(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
