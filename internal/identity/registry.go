package identity

import (
	"sort"
	"sync"
)

// Alias is one historical (paper_key -> paper_id) mapping. Aliases grow
// monotonically across merge passes and are never deleted on rebuild.
type Alias struct {
	PaperKey        string
	PaperID         string
	KeyType         KeyType
	MetaFingerprint string
}

// Resolution is the outcome of probing the registry with one record's
// candidate keys.
type Resolution struct {
	PaperID string
	Matched *Candidate // nil when a new id was allocated
	New     bool
	// OtherIDs lists additional distinct paper ids reachable from
	// lower-priority candidate keys. A non-empty list is a flagged
	// ambiguity: resolution already picked the first match, never a merge.
	OtherIDs []string
}

// Registry maps every candidate key ever observed to its stable paper id.
// Probe-and-allocate runs under a single mutex so concurrent resolvers can
// never both claim a new id for the same key.
type Registry struct {
	mu      sync.Mutex
	byKey   map[string]Alias
	ordered []string // insertion order of paper keys
}

func NewRegistry() *Registry {
	return &Registry{byKey: make(map[string]Alias)}
}

// Load seeds the registry from a prior snapshot's alias table. Existing
// entries win on key collision; the prior snapshot is authoritative.
func (r *Registry) Load(aliases []Alias) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range aliases {
		if _, ok := r.byKey[a.PaperKey]; ok {
			continue
		}
		r.byKey[a.PaperKey] = a
		r.ordered = append(r.ordered, a.PaperKey)
	}
}

// Resolve probes candidates in priority order. The first hit inherits that
// paper id and the remaining candidate keys are unioned in as new aliases; a
// miss on every key allocates a fresh id and registers all candidates.
func (r *Registry) Resolve(candidates []Candidate) Resolution {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res Resolution
	for i := range candidates {
		if a, ok := r.byKey[candidates[i].PaperKey]; ok {
			res.PaperID = a.PaperID
			c := candidates[i]
			res.Matched = &c
			break
		}
	}
	if res.PaperID == "" {
		res.PaperID = NewPaperID()
		res.New = true
	}

	seenOther := make(map[string]bool)
	for _, c := range candidates {
		if a, ok := r.byKey[c.PaperKey]; ok {
			if a.PaperID != res.PaperID && !seenOther[a.PaperID] {
				seenOther[a.PaperID] = true
				res.OtherIDs = append(res.OtherIDs, a.PaperID)
			}
			continue
		}
		r.byKey[c.PaperKey] = Alias{
			PaperKey:        c.PaperKey,
			PaperID:         res.PaperID,
			KeyType:         c.KeyType,
			MetaFingerprint: c.MetaFingerprint,
		}
		r.ordered = append(r.ordered, c.PaperKey)
	}
	return res
}

// Lookup returns the paper id registered for a single key, if any.
func (r *Registry) Lookup(paperKey string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byKey[paperKey]
	return a.PaperID, ok
}

// Aliases returns every registered alias, ordered by paper key for
// deterministic persistence.
func (r *Registry) Aliases() []Alias {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, len(r.ordered))
	copy(keys, r.ordered)
	sort.Strings(keys)
	out := make([]Alias, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.byKey[k])
	}
	return out
}
