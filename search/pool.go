package search

import (
	"sort"

	"github.com/BaSui01/answerflow/types"
)

// SectionPool is the running union of retrieved sections across branches,
// deduplicated at document granularity: for any two sections sharing a
// document ID, only one is retained. The pool grows monotonically and the
// set of document IDs it holds is independent of insertion order.
//
// Pools are not safe for concurrent use. The scheduler applies all merges
// single-threaded at join points, so no locking is needed here.
type SectionPool struct {
	tieBreak types.TieBreak
	order    []string
	byID     map[string]types.RetrievedSection
}

// NewSectionPool creates an empty pool with the given tie-break policy.
// An empty policy means keep-first-encountered.
func NewSectionPool(tieBreak types.TieBreak) *SectionPool {
	if tieBreak == "" {
		tieBreak = types.TieBreakKeepFirst
	}
	return &SectionPool{
		tieBreak: tieBreak,
		byID:     make(map[string]types.RetrievedSection),
	}
}

// Add inserts a section, returning true if it became the retained
// representative for its document ID. Sections with an empty document ID are
// dropped.
func (p *SectionPool) Add(s types.RetrievedSection) bool {
	if s.DocumentID == "" {
		return false
	}
	existing, ok := p.byID[s.DocumentID]
	if !ok {
		p.byID[s.DocumentID] = s
		p.order = append(p.order, s.DocumentID)
		return true
	}
	if p.tieBreak == types.TieBreakKeepHighestScore && s.Score > existing.Score {
		p.byID[s.DocumentID] = s
		return true
	}
	return false
}

// AddAll inserts every section in order.
func (p *SectionPool) AddAll(sections []types.RetrievedSection) {
	for _, s := range sections {
		p.Add(s)
	}
}

// Merge folds another pool into this one, preserving the receiver's
// tie-break policy.
func (p *SectionPool) Merge(other *SectionPool) {
	if other == nil {
		return
	}
	p.AddAll(other.Sections())
}

// Sections returns the retained sections in insertion order.
func (p *SectionPool) Sections() []types.RetrievedSection {
	out := make([]types.RetrievedSection, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.byID[id])
	}
	return out
}

// DocumentIDs returns the sorted set of document IDs in the pool. Sorting
// makes the result directly comparable across runs with different branch
// completion orders.
func (p *SectionPool) DocumentIDs() []string {
	ids := make([]string, len(p.order))
	copy(ids, p.order)
	sort.Strings(ids)
	return ids
}

// Has reports whether the pool holds a section for the document ID.
func (p *SectionPool) Has(documentID string) bool {
	_, ok := p.byID[documentID]
	return ok
}

// Len returns the number of distinct documents in the pool.
func (p *SectionPool) Len() int {
	return len(p.order)
}

// Clone returns an independent copy of the pool.
func (p *SectionPool) Clone() *SectionPool {
	out := NewSectionPool(p.tieBreak)
	out.order = append(out.order, p.order...)
	for id, s := range p.byID {
		out.byID[id] = s
	}
	return out
}

// DedupSections deduplicates a slice at document granularity using the given
// tie-break policy, preserving first-encounter order.
func DedupSections(sections []types.RetrievedSection, tieBreak types.TieBreak) []types.RetrievedSection {
	pool := NewSectionPool(tieBreak)
	pool.AddAll(sections)
	return pool.Sections()
}
