package carddb

import (
	"sort"
	"sync/atomic"

	"github.com/antzucaro/matchr"
	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
)

// Weights of the combined fuzzy score, on the fuzzywuzzy 0-100 scale. The
// phonetic bonus nudges apart candidates that look equally close in edit
// distance but sound different.
const (
	wRatioWeight    = 0.60
	tokenSortWeight = 0.35
	metaphoneBonus  = 5.0
)

// scanFloor drops hopeless candidates before ranking.
const scanFloor = 0.50

// Candidate is a fuzzy match with its combined score on [0, 1].
type Candidate struct {
	Card  Card
	Score float64
}

type snapshot struct {
	byNorm      map[string]Card
	byMetaphone map[string][]string
	names       []string
}

// Corpus is the in-memory card index. Lookups run against an immutable
// snapshot; Replace swaps the whole snapshot atomically, so readers never
// block and never observe a half-built index.
type Corpus struct {
	snap atomic.Pointer[snapshot]
}

// NewCorpus returns an empty, not yet ready corpus.
func NewCorpus() *Corpus { return &Corpus{} }

// Ready reports whether a non-empty snapshot has been installed.
func (c *Corpus) Ready() bool {
	s := c.snap.Load()
	return s != nil && len(s.byNorm) > 0
}

// Size returns the number of distinct cards in the current snapshot.
func (c *Corpus) Size() int {
	s := c.snap.Load()
	if s == nil {
		return 0
	}
	seen := map[string]bool{}
	for _, card := range s.byNorm {
		seen[card.ID] = true
	}
	return len(seen)
}

// Replace builds a fresh snapshot from cards and installs it.
func (c *Corpus) Replace(cards []Card) {
	s := &snapshot{
		byNorm:      make(map[string]Card, len(cards)),
		byMetaphone: make(map[string][]string),
	}
	for _, card := range cards {
		if card.ID == "" || card.NormName == "" {
			continue
		}
		for _, key := range card.indexKeys() {
			if _, dup := s.byNorm[key]; dup {
				continue
			}
			s.byNorm[key] = card
			s.names = append(s.names, key)
			if primary, _ := matchr.DoubleMetaphone(key); primary != "" {
				s.byMetaphone[primary] = append(s.byMetaphone[primary], key)
			}
		}
	}
	sort.Strings(s.names)
	c.snap.Store(s)
}

// LookupExact finds a card by its folded name or folded front face.
func (c *Corpus) LookupExact(norm string) (Card, bool) {
	s := c.snap.Load()
	if s == nil {
		return Card{}, false
	}
	card, ok := s.byNorm[norm]
	return card, ok
}

// FuzzyCandidates ranks the k closest corpus names to the folded query.
// Ties break toward the shorter name, then lexicographically, which keeps
// resolution deterministic for a fixed corpus.
func (c *Corpus) FuzzyCandidates(norm string, k int) []Candidate {
	s := c.snap.Load()
	if s == nil || norm == "" || k <= 0 {
		return nil
	}

	queryPrimary, _ := matchr.DoubleMetaphone(norm)
	scored := make([]Candidate, 0, 32)
	seen := make(map[string]bool)

	consider := func(name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		sc := combinedScore(norm, queryPrimary, name)
		if sc < scanFloor {
			return
		}
		scored = append(scored, Candidate{Card: s.byNorm[name], Score: sc})
	}

	for _, name := range s.names {
		if lengthGapTooWide(len(norm), len(name)) {
			continue
		}
		consider(name)
	}
	if queryPrimary != "" {
		for _, name := range s.byMetaphone[queryPrimary] {
			consider(name)
		}
	}

	sort.Slice(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		an, bn := a.Card.NormName, b.Card.NormName
		if len(an) != len(bn) {
			return len(an) < len(bn)
		}
		return an < bn
	})

	out := make([]Candidate, 0, k)
	picked := make(map[string]bool)
	for _, cand := range scored {
		if picked[cand.Card.ID] {
			continue
		}
		picked[cand.Card.ID] = true
		out = append(out, cand)
		if len(out) == k {
			break
		}
	}
	return out
}

func combinedScore(query, queryPrimary, name string) float64 {
	s := wRatioWeight*float64(fuzzy.WRatio(query, name)) +
		tokenSortWeight*float64(fuzzy.TokenSortRatio(query, name))
	if queryPrimary != "" {
		if primary, _ := matchr.DoubleMetaphone(name); primary == queryPrimary {
			s += metaphoneBonus
		}
	}
	if s > 100 {
		s = 100
	}
	return s / 100
}

// lengthGapTooWide prunes names whose length differs enough from the query
// that no ratio could reach the scan floor.
func lengthGapTooWide(qlen, nlen int) bool {
	longer := qlen
	if nlen > longer {
		longer = nlen
	}
	gap := qlen - nlen
	if gap < 0 {
		gap = -gap
	}
	return longer > 0 && float64(gap) > 0.6*float64(longer)
}
