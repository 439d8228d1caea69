package snapshot

// Ambiguity records a record whose candidate keys reached more than one
// existing paper id. Resolution already picked the highest-priority match;
// the rest are surfaced for operator review, never merged.
type Ambiguity struct {
	Title      string   `json:"title"`
	ChosenID   string   `json:"chosen_id"`
	MatchedKey string   `json:"matched_key"`
	OtherIDs   []string `json:"other_ids"`
}

// AssetFailure records one unreadable asset. The owning paper keeps the
// fields it does have.
type AssetFailure struct {
	PaperID string `json:"paper_id"`
	Path    string `json:"path"`
	Kind    string `json:"kind"` // "md", "pdf", "translation", "summary", "image"
	Error   string `json:"error"`
}

// Report aggregates one merge pass. No single bad record aborts a build;
// per-record failures accumulate here.
type Report struct {
	Papers             int            `json:"papers"`
	NewPapers          int            `json:"new_papers"`
	InheritedPapers    int            `json:"inherited_papers"`
	CarriedPapers      int            `json:"carried_papers"` // prior papers untouched by this input
	MarkdownResolved   int            `json:"markdown_resolved"`
	PDFResolved        int            `json:"pdf_resolved"`
	TranslationsStored int            `json:"translations_stored"`
	SummariesStored    int            `json:"summaries_stored"`
	ImagesStored       int            `json:"images_stored"`
	ImagesMissing      int            `json:"images_missing"` // references to files that do not exist
	Ambiguities        []Ambiguity    `json:"ambiguities,omitempty"`
	AssetFailures      []AssetFailure `json:"asset_failures,omitempty"`
	// PriorSnapshotError is set when the previous snapshot could not be
	// loaded and the build degraded to treating all input as new.
	PriorSnapshotError string `json:"prior_snapshot_error,omitempty"`
}
