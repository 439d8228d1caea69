package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/hallvard/papervault/internal/blobstore"
	"github.com/hallvard/papervault/internal/config"
	"github.com/hallvard/papervault/internal/fileindex"
	"github.com/hallvard/papervault/internal/identity"
	"github.com/hallvard/papervault/internal/record"
)

// BuildOptions describes one full merge pass.
type BuildOptions struct {
	InputPaths        []string
	MDRoots           []string
	TranslatedMDRoots []string
	PDFRoots          []string
	OutputDB          string
	StaticDir         string
	PreviousDB        string
	Workers           int
	ProbePDFMetadata  bool
}

// OptionsFromManifest maps a build manifest onto build options.
func OptionsFromManifest(m *config.Manifest) BuildOptions {
	return BuildOptions{
		InputPaths:        m.Inputs,
		MDRoots:           m.MDRoots,
		TranslatedMDRoots: m.TranslatedMDRoots,
		PDFRoots:          m.PDFRoots,
		OutputDB:          m.OutputDB,
		StaticDir:         m.StaticDir,
		PreviousDB:        m.PreviousDB,
		Workers:           m.EffectiveWorkers(),
		ProbePDFMetadata:  m.ProbePDFMetadata,
	}
}

// pending is one input record after identity and asset resolution, before any
// blob I/O.
type pending struct {
	enr          *record.Enriched
	candidates   []identity.Candidate
	paperID      string
	isNew        bool
	mdPath       string
	pdfPath      string
	translations map[string]string // lang -> source path
}

// Build runs one full merge pass: resolve every record's identity against the
// prior snapshot, content-address assets, merge catalog metadata, and write a
// fresh snapshot atomically. Identity resolution is serialized through the
// registry; only hashing runs in parallel.
func Build(opts BuildOptions, logger zerolog.Logger) (*Report, error) {
	report := &Report{}

	prior := newPriorSnapshot()
	if opts.PreviousDB != "" {
		loaded, err := loadPrior(opts.PreviousDB)
		switch {
		case errors.Is(err, ErrSchemaMismatch):
			return nil, err
		case err != nil:
			// Degrade: all input becomes new papers. Loud, never fatal.
			report.PriorSnapshotError = err.Error()
			logger.Error().Err(err).Str("previous_db", opts.PreviousDB).
				Msg("prior snapshot unusable; identity continuity lost for this build")
		default:
			prior = loaded
		}
	}

	reg := identity.NewRegistry()
	reg.Load(prior.aliases)

	entries := prior.entries
	bibtex := prior.bibtex
	summaries := prior.summaries
	translations := prior.translations
	facets := prior.facets
	touched := make(map[string]bool)

	mdIndex := fileindex.Build(opts.MDRoots, fileindex.KindMarkdown)
	pdfIndex := fileindex.BuildWithOptions(opts.PDFRoots, fileindex.KindPDF,
		fileindex.Options{ProbeMetadata: opts.ProbePDFMetadata})
	translated := fileindex.BuildTranslated(opts.TranslatedMDRoots)

	store, err := blobstore.Open(opts.StaticDir)
	if err != nil {
		return nil, err
	}

	var pendings []*pending
	for _, inputPath := range opts.InputPaths {
		batch, err := record.LoadBatch(inputPath)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", inputPath, err)
		}
		for _, paper := range batch.Papers {
			enr := record.Enrich(paper, batch.TemplateTag)
			pendings = append(pendings, resolveOne(enr, reg, mdIndex, pdfIndex, translated, report, logger))
		}
	}

	importAssets(pendings, store, opts.Workers, translations, report, func(id string) *CatalogEntry {
		return entryFor(entries, id)
	})

	for _, pd := range pendings {
		entry := entryFor(entries, pd.paperID)
		touched[pd.paperID] = true
		mergeEntry(entry, pd)
		mergeBibtex(bibtex, pd)
		mergeFacets(facets, pd)

		if tag := pd.enr.TemplateTag; tag != "" {
			if err := store.WriteSummary(pd.paperID, tag, pd.enr.Record.Raw); err != nil {
				report.AssetFailures = append(report.AssetFailures, AssetFailure{
					PaperID: pd.paperID, Kind: "summary", Error: err.Error(),
				})
			} else {
				if summaries[pd.paperID] == nil {
					summaries[pd.paperID] = make(map[string]bool)
				}
				if !summaries[pd.paperID][tag] {
					summaries[pd.paperID][tag] = true
					report.SummariesStored++
				}
			}
		}
	}

	report.Papers = len(entries)
	for id := range entries {
		if !touched[id] {
			report.CarriedPapers++
		}
	}

	ordered := orderEntries(entries)
	state := &snapshotState{
		ordered:      ordered,
		aliases:      reg.Aliases(),
		bibtex:       bibtex,
		summaries:    summaries,
		translations: translations,
		facets:       facets,
	}
	if err := writeSnapshot(opts.OutputDB, state); err != nil {
		return nil, err
	}

	logger.Info().
		Int("papers", report.Papers).
		Int("new", report.NewPapers).
		Int("inherited", report.InheritedPapers).
		Int("ambiguous", len(report.Ambiguities)).
		Msg("snapshot build complete")
	return report, nil
}

// resolveOne runs identity resolution and file resolution for one record.
// Registry probe-and-allocate is atomic per call; no blob I/O happens here.
func resolveOne(
	enr *record.Enriched,
	reg *identity.Registry,
	mdIndex, pdfIndex *fileindex.Index,
	translated *fileindex.TranslatedIndex,
	report *Report,
	logger zerolog.Logger,
) *pending {
	candidates := identity.BuildCandidates(enr.IdentitySource())
	res := reg.Resolve(candidates)

	pd := &pending{
		enr:        enr,
		candidates: candidates,
		paperID:    res.PaperID,
		isNew:      res.New,
	}
	if res.New {
		report.NewPapers++
		logger.Info().Str("paper_id", res.PaperID).Str("title", enr.Record.Title).
			Msg("new paper")
	} else {
		report.InheritedPapers++
		logger.Debug().Str("paper_id", res.PaperID).Str("matched_key", res.Matched.PaperKey).
			Msg("inherited paper")
	}
	if len(res.OtherIDs) > 0 {
		matchedKey := ""
		if res.Matched != nil {
			matchedKey = res.Matched.PaperKey
		}
		report.Ambiguities = append(report.Ambiguities, Ambiguity{
			Title:      enr.Record.Title,
			ChosenID:   res.PaperID,
			MatchedKey: matchedKey,
			OtherIDs:   res.OtherIDs,
		})
		logger.Warn().Str("paper_id", res.PaperID).Strs("other_ids", res.OtherIDs).
			Str("title", enr.Record.Title).
			Msg("candidate keys reach multiple papers; kept first match")
	}

	year := enr.Year
	if year == "Unknown" {
		year = ""
	}
	query := fileindex.Query{
		SourcePath: enr.Record.SourcePath,
		Title:      enr.Record.Title,
		Year:       year,
		Author:     enr.FirstAuthor(),
	}
	if res, ok := mdIndex.ResolveSource(query); ok {
		pd.mdPath = res.Path
		base := strings.TrimSuffix(filepath.Base(res.Path), filepath.Ext(res.Path))
		if langs := translated.ForBase(base); len(langs) > 0 {
			pd.translations = langs
		}
	}
	if res, ok := pdfIndex.ResolvePDF(query); ok {
		pd.pdfPath = res.Path
	}
	return pd
}

// importAssets moves every resolved asset into the store and pins hashes
// onto the entries. PDFs and translations are hashed with a bounded worker
// pool and copied verbatim; source markdown is localized first.
func importAssets(
	pendings []*pending,
	store *blobstore.Store,
	workers int,
	translations map[string]map[string]string,
	report *Report,
	entryFor func(string) *CatalogEntry,
) {
	pathSet := make(map[string]bool)
	var paths []string
	addPath := func(p string) {
		if p != "" && !pathSet[p] {
			pathSet[p] = true
			paths = append(paths, p)
		}
	}
	for _, pd := range pendings {
		addPath(pd.pdfPath)
		for _, p := range pd.translations {
			addPath(p)
		}
	}
	sort.Strings(paths)

	hashed := make(map[string]blobstore.FileHash, len(paths))
	for _, fh := range blobstore.HashFiles(paths, workers) {
		hashed[fh.Path] = fh
	}

	// Source markdown is not copied verbatim: embedded and locally
	// referenced images are content-addressed into images/ and the
	// references rewritten, so the stored markdown hash covers the
	// localized text. One localization per unique source file.
	type mdResult struct {
		hash string
		err  error
	}
	mdResults := make(map[string]mdResult)
	seenImages := make(map[string]bool)
	localizeMD := func(path string) mdResult {
		if res, ok := mdResults[path]; ok {
			return res
		}
		var res mdResult
		data, err := os.ReadFile(path)
		if err != nil {
			res.err = err
		} else {
			rewritten, refs := store.LocalizeMarkdown(data, filepath.Dir(path))
			for _, ref := range refs {
				switch ref.Status {
				case "stored":
					if !seenImages[ref.Hash] {
						seenImages[ref.Hash] = true
						report.ImagesStored++
					}
				case "missing":
					report.ImagesMissing++
				case "error":
					report.AssetFailures = append(report.AssetFailures, AssetFailure{
						Path: path, Kind: "image", Error: ref.Err,
					})
				}
			}
			res.hash, res.err = store.PutMarkdown(rewritten)
		}
		mdResults[path] = res
		return res
	}

	importOne := func(paperID, path, subdir, ext, kind string) string {
		fh := hashed[path]
		if fh.Err != nil {
			report.AssetFailures = append(report.AssetFailures, AssetFailure{
				PaperID: paperID, Path: path, Kind: kind, Error: fh.Err.Error(),
			})
			return ""
		}
		if err := store.ImportFile(path, subdir, ext, fh.Hash); err != nil {
			report.AssetFailures = append(report.AssetFailures, AssetFailure{
				PaperID: paperID, Path: path, Kind: kind, Error: err.Error(),
			})
			return ""
		}
		return fh.Hash
	}

	for _, pd := range pendings {
		entry := entryFor(pd.paperID)
		if pd.mdPath != "" {
			if res := localizeMD(pd.mdPath); res.err != nil {
				report.AssetFailures = append(report.AssetFailures, AssetFailure{
					PaperID: pd.paperID, Path: pd.mdPath, Kind: "md", Error: res.err.Error(),
				})
			} else {
				entry.SourceMDContentHash = res.hash
				report.MarkdownResolved++
			}
		}
		if pd.pdfPath != "" {
			if hash := importOne(pd.paperID, pd.pdfPath, "pdf", ".pdf", "pdf"); hash != "" {
				entry.PDFContentHash = hash
				report.PDFResolved++
			}
		}
		for lang, path := range pd.translations {
			hash := importOne(pd.paperID, path, filepath.Join("md_translate", lang), ".md", "translation")
			if hash == "" {
				continue
			}
			if translations[pd.paperID] == nil {
				translations[pd.paperID] = make(map[string]string)
			}
			if translations[pd.paperID][lang] != hash {
				translations[pd.paperID][lang] = hash
				report.TranslationsStored++
			}
		}
	}
}

func entryFor(entries map[string]*CatalogEntry, id string) *CatalogEntry {
	if entries[id] == nil {
		entries[id] = &CatalogEntry{PaperID: id}
	}
	return entries[id]
}

// mergeEntry applies the inheritance rule: a field the new record supplies
// overrides the prior value, everything else is retained unchanged.
func mergeEntry(entry *CatalogEntry, pd *pending) {
	enr := pd.enr
	p := enr.Record

	if len(pd.candidates) > 0 {
		entry.PaperKey = pd.candidates[0].PaperKey
		entry.PaperKeyType = string(pd.candidates[0].KeyType)
	} else if entry.PaperKey == "" {
		entry.PaperKey = "source:" + enr.SourceHash
		entry.PaperKeyType = string(identity.KeyTypeMeta)
	}

	override(&entry.Title, p.Title)
	if enr.Year != "Unknown" {
		override(&entry.Year, enr.Year)
	}
	if enr.Month != "Unknown" {
		override(&entry.Month, enr.Month)
	}
	override(&entry.PublicationDate, p.PublicationDate.String())
	override(&entry.Venue, enr.Venue)
	override(&entry.DOI, enr.DOI)
	override(&entry.SourceHash, enr.SourceHash)
	override(&entry.OutputLanguage, p.OutputLanguage)
	override(&entry.Provider, p.Provider)
	override(&entry.Model, p.Model)
	override(&entry.PromptTemplate, p.PromptTemplate)
	override(&entry.ExtractedAt, p.ExtractedAt)
	override(&entry.PreferredSummaryTemplate, enr.TemplateTag)
	override(&entry.SummaryPreview, summaryPreview(p.Summary, p.Abstract))
}

func mergeBibtex(bibtex map[string]*BibtexRow, pd *pending) {
	b := pd.enr.Record.Bibtex
	if b == nil {
		return
	}
	raw := strings.TrimSpace(b.RawEntry)
	if raw == "" {
		return
	}
	bibtex[pd.paperID] = &BibtexRow{
		PaperID:   pd.paperID,
		Raw:       raw,
		Key:       strings.TrimSpace(b.Key),
		EntryType: strings.ToLower(strings.TrimSpace(b.Type)),
	}
}

func mergeFacets(facets map[string]*FacetValues, pd *pending) {
	f := facets[pd.paperID]
	if f == nil {
		f = &FacetValues{}
		facets[pd.paperID] = f
	}
	enr := pd.enr
	if len(enr.Authors) > 0 {
		f.Authors = append([]string(nil), enr.Authors...)
	}
	if len(enr.Tags) > 0 {
		f.Tags = append([]string(nil), enr.Tags...)
	}
	if len(enr.Keywords) > 0 {
		f.Keywords = append([]string(nil), enr.Keywords...)
	}
	if len(enr.Record.Institutions) > 0 {
		f.Institutions = append([]string(nil), enr.Record.Institutions...)
	}
}

func override(dst *string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		*dst = v
	}
}

func summaryPreview(summary, abstract string) string {
	text := strings.TrimSpace(summary)
	if text == "" {
		text = strings.TrimSpace(abstract)
	}
	runes := []rune(text)
	if len(runes) > 200 {
		return string(runes[:200])
	}
	return text
}

// orderEntries sorts papers newest year first, unknown years last, titles
// alphabetical within a year, and assigns the snapshot paper index.
func orderEntries(entries map[string]*CatalogEntry) []*CatalogEntry {
	ordered := make([]*CatalogEntry, 0, len(entries))
	for _, e := range entries {
		ordered = append(ordered, e)
	}
	sort.Slice(ordered, func(i, j int) bool {
		yi, iok := yearNum(ordered[i].Year)
		yj, jok := yearNum(ordered[j].Year)
		if iok != jok {
			return iok
		}
		if iok && jok && yi != yj {
			return yi > yj
		}
		ti := strings.ToLower(ordered[i].Title)
		tj := strings.ToLower(ordered[j].Title)
		if ti != tj {
			return ti < tj
		}
		return ordered[i].PaperID < ordered[j].PaperID
	})
	for i, e := range ordered {
		e.PaperIndex = i
	}
	return ordered
}

func yearNum(year string) (int, bool) {
	n, err := strconv.Atoi(year)
	if err != nil {
		return 0, false
	}
	return n, true
}

// removeIfExists clears a stale temp database from a crashed build.
func removeIfExists(path string) {
	if _, err := os.Stat(path); err == nil {
		os.Remove(path)
	}
}
