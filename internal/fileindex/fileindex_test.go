package fileindex

import (
	"os"
	"path/filepath"
	"testing"
)

// writeFiles creates empty files with the given names under a fresh temp dir.
func writeFiles(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestBuildSkipsWrongKind(t *testing.T) {
	dir := writeFiles(t, "a.md", "b.pdf", "c.txt")

	md := Build([]string{dir}, KindMarkdown)
	if len(md.Lookup("a.md")) != 1 {
		t.Error("markdown file not indexed")
	}
	if len(md.Lookup("b.pdf")) != 0 {
		t.Error("pdf indexed into markdown index")
	}

	pdf := Build([]string{dir}, KindPDF)
	if len(pdf.Lookup("b.pdf")) != 1 {
		t.Error("pdf file not indexed")
	}
}

func TestBuildIgnoresMissingRoots(t *testing.T) {
	ix := Build([]string{"/nonexistent/path"}, KindMarkdown)
	if len(ix.Lookup("anything")) != 0 {
		t.Error("phantom entries from missing root")
	}
}

func TestResolveSourceByExactName(t *testing.T) {
	dir := writeFiles(t, "My_Paper.md", "Other.md")
	ix := Build([]string{dir}, KindMarkdown)

	res, ok := ix.ResolveSource(Query{SourcePath: "runs/output/My_Paper.md"})
	if !ok {
		t.Fatal("exact source name did not resolve")
	}
	if res.How != "source_name" {
		t.Errorf("how = %q, want source_name", res.How)
	}
	if filepath.Base(res.Path) != "My_Paper.md" {
		t.Errorf("resolved %q", res.Path)
	}
}

func TestResolveSourceByTitle(t *testing.T) {
	dir := writeFiles(t, "Attention_Is_All_You_Need.md")
	ix := Build([]string{dir}, KindMarkdown)

	res, ok := ix.ResolveSource(Query{Title: "Attention Is All You Need"})
	if !ok {
		t.Fatal("title did not resolve")
	}
	if res.How != "title" {
		t.Errorf("how = %q, want title", res.How)
	}
}

func TestResolveSourceStripsLeadingNumbers(t *testing.T) {
	dir := writeFiles(t, "Deep_Learning_Based_Channel_Estimation.md")
	ix := Build([]string{dir}, KindMarkdown)

	// Section-numbered variant of the same title.
	res, ok := ix.ResolveSource(Query{Title: "12 Deep Learning Based Channel Estimation"})
	if !ok {
		t.Fatal("numbered title did not resolve")
	}
	if res.How != "title_stripped" {
		t.Errorf("how = %q, want title_stripped", res.How)
	}
}

func TestResolveSourceFuzzyViaPrefix(t *testing.T) {
	dir := writeFiles(t,
		"Neural_Machine_Translation_By_Jointly_Learning_To_Align_And_Translate.md",
		"Completely_Different_Topic_About_Databases_And_Indexes.md",
	)
	ix := Build([]string{dir}, KindMarkdown)

	// Slightly different wording, same long prefix.
	res, ok := ix.ResolveSource(Query{
		Title: "Neural Machine Translation by Jointly Learning to Align & Translate!",
	})
	if !ok {
		t.Fatal("fuzzy prefix did not resolve")
	}
	if filepath.Base(res.Path) != "Neural_Machine_Translation_By_Jointly_Learning_To_Align_And_Translate.md" {
		t.Errorf("resolved %q", res.Path)
	}
}

func TestResolveSourceYearAuthorLadder(t *testing.T) {
	dir := writeFiles(t,
		"Smith - 2021 - Adaptive Protocols For Sensor Networks.md",
		"Jones - 2021 - Completely Unrelated Study.md",
	)
	ix := Build([]string{dir}, KindMarkdown)

	// Leading word differs, so compact-prefix lookup misses and resolution
	// falls through to the author/year pool.
	res, ok := ix.ResolveSource(Query{
		Title:  "Extended Adaptive Protocols for Sensor Networks",
		Year:   "2021",
		Author: "A. Smith",
	})
	if !ok {
		t.Fatal("year/author ladder did not resolve")
	}
	if filepath.Base(res.Path) != "Smith - 2021 - Adaptive Protocols For Sensor Networks.md" {
		t.Errorf("resolved %q", res.Path)
	}
}

func TestResolveSourceWeakYearMatchRejected(t *testing.T) {
	dir := writeFiles(t, "Smith - 2021 - Quantum Chromodynamics On Lattice.md")
	ix := Build([]string{dir}, KindMarkdown)

	_, ok := ix.ResolveSource(Query{
		Title:  "Marine Biology of Coastal Ecosystems",
		Year:   "2021",
		Author: "Smith",
	})
	if ok {
		t.Error("unrelated title matched through the year/author pool")
	}
}

func TestResolveSourceNoSignals(t *testing.T) {
	dir := writeFiles(t, "Something.md")
	ix := Build([]string{dir}, KindMarkdown)
	if _, ok := ix.ResolveSource(Query{}); ok {
		t.Error("empty query resolved")
	}
}

func TestResolvePDFGuessesNames(t *testing.T) {
	dir := writeFiles(t, "paper.pdf")
	ix := Build([]string{dir}, KindPDF)

	tests := []string{
		"runs/paper.pdf.md",
		"runs/paper.pdf-0a1b2c3d4e5f.md",
		"runs/paper.pdf",
	}
	for _, sourcePath := range tests {
		res, ok := ix.ResolvePDF(Query{SourcePath: sourcePath})
		if !ok {
			t.Errorf("source %q did not resolve", sourcePath)
			continue
		}
		if filepath.Base(res.Path) != "paper.pdf" {
			t.Errorf("source %q resolved to %q", sourcePath, res.Path)
		}
	}
}

func TestMatchesKindPDFSidecars(t *testing.T) {
	dir := writeFiles(t, "doc.pdf-0a1b2c3d4e5f")
	ix := Build([]string{dir}, KindPDF)
	if len(ix.Lookup("doc.pdf-0a1b2c3d4e5f")) != 1 {
		t.Error("hash-suffixed pdf sidecar not indexed")
	}
}

func TestBuildTranslated(t *testing.T) {
	dir := writeFiles(t,
		"Paper_One.zh.md",
		"Paper_One.fr.md",
		"Paper_One.md", // untranslated source, no lang segment
	)
	ix := BuildTranslated([]string{dir})

	langs := ix.ForBase("Paper_One")
	if len(langs) != 2 {
		t.Fatalf("got %d translations: %v", len(langs), langs)
	}
	if filepath.Base(langs["zh"]) != "Paper_One.zh.md" {
		t.Errorf("zh = %q", langs["zh"])
	}
	if filepath.Base(langs["fr"]) != "Paper_One.fr.md" {
		t.Errorf("fr = %q", langs["fr"])
	}

	if got := ix.ForBase("Unknown_Base"); got != nil {
		t.Errorf("unknown base returned %v", got)
	}
}

func TestBuildTranslatedFirstPathWins(t *testing.T) {
	a := writeFiles(t, "Doc.de.md")
	b := writeFiles(t, "Doc.de.md")
	roots := []string{a, b}
	ix := BuildTranslated(roots)

	langs := ix.ForBase("Doc")
	if len(langs) != 1 {
		t.Fatalf("got %v", langs)
	}
	// Sorted path order decides; rebuilds are deterministic.
	rebuilt := BuildTranslated(roots)
	if rebuilt.ForBase("Doc")["de"] != langs["de"] {
		t.Error("winner changed across rebuilds")
	}
}
