// Package resolve canonicalises parsed deck lines against the card corpus,
// escalating to the online card database when local lookup is inconclusive.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/wudi/deckscan/carddb"
	"github.com/wudi/deckscan/carddb/scryfall"
	"github.com/wudi/deckscan/deck"
	"github.com/wudi/deckscan/normalize"
	"github.com/wudi/deckscan/observability"
)

// Online is the slice of the card database API used for escalation. A nil
// Online disables both online steps.
type Online interface {
	Named(ctx context.Context, name string, fuzzy bool) (carddb.Card, error)
	Autocomplete(ctx context.Context, partial string) ([]string, error)
}

// Config tunes acceptance thresholds and candidate lists.
type Config struct {
	// Threshold is the minimum fuzzy score an offline match must reach.
	Threshold float64
	// TopK caps the candidate list attached to unresolved lines.
	TopK int
}

// DefaultConfig returns the standard resolution thresholds.
func DefaultConfig() Config {
	return Config{Threshold: 0.85, TopK: 5}
}

// Resolver assigns card identities to parsed lines. Resolution stops at the
// first step that succeeds: exact corpus lookup, offline fuzzy match at or
// above the threshold, online named lookup, then online autocomplete with a
// unique hit. With online resolution disabled the resolver is deterministic
// for a fixed corpus snapshot.
//
// Safe for concurrent use.
type Resolver struct {
	corpus *carddb.Corpus
	online Online
	cfg    Config
	logger *zap.Logger

	// group collapses concurrent online lookups for the same name.
	group singleflight.Group
}

// New builds a resolver over the corpus. online may be nil.
func New(corpus *carddb.Corpus, online Online, cfg Config, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultConfig().Threshold
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultConfig().TopK
	}
	return &Resolver{corpus: corpus, online: online, cfg: cfg, logger: logger}
}

// ResolveAll resolves the parser's lines in order and collects an advisory
// for every line left without an identity.
func (r *Resolver) ResolveAll(ctx context.Context, lines []deck.ParsedLine) ([]deck.ResolvedCard, []deck.Warning, error) {
	cards := make([]deck.ResolvedCard, 0, len(lines))
	var warnings []deck.Warning
	for _, line := range lines {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		rc := r.ResolveLine(ctx, line)
		if rc.CardID == "" {
			warnings = append(warnings, deck.Warning{
				Code:    deck.CodeMatchAmbiguous,
				Message: fmt.Sprintf("no confident match for %q", line.Name),
			})
		}
		cards = append(cards, rc)
	}
	return cards, warnings, nil
}

// ResolveLine canonicalises a single line. Lines that fail every step keep
// an empty CardID and carry the closest corpus names as candidates.
func (r *Resolver) ResolveLine(ctx context.Context, line deck.ParsedLine) deck.ResolvedCard {
	out := deck.ResolvedCard{
		Qty:             line.Qty,
		Name:            line.Name,
		SetCode:         line.SetCode,
		CollectorNumber: line.CollectorNumber,
		Section:         line.Section,
		Source:          deck.ResolvedNone,
	}

	norm := line.NormName
	if norm == "" {
		norm = normalize.Fold(line.Name)
	}

	if card, ok := r.corpus.LookupExact(norm); ok {
		return r.found(out, card, 1.0, deck.ResolvedExact)
	}

	cands := r.corpus.FuzzyCandidates(norm, r.cfg.TopK)
	if len(cands) > 0 && cands[0].Score >= r.cfg.Threshold {
		return r.found(out, cands[0].Card, cands[0].Score, deck.ResolvedFuzzy)
	}

	if r.online != nil {
		if card, ok := r.namedLookup(ctx, line.Name); ok {
			return r.found(out, card, 1.0, deck.ResolvedNamed)
		}
		if card, ok := r.autocompleteLookup(ctx, norm); ok {
			return r.found(out, card, 1.0, deck.ResolvedAutocomplete)
		}
	}

	for _, c := range cands {
		out.Candidates = append(out.Candidates, c.Card.Name)
	}
	if len(cands) > 0 {
		out.Score = cands[0].Score
	}
	observability.Resolutions.WithLabelValues(string(deck.ResolvedNone)).Inc()
	return out
}

func (r *Resolver) found(out deck.ResolvedCard, card carddb.Card, score float64, src deck.ResolutionSource) deck.ResolvedCard {
	out.Name = card.Name
	out.CardID = card.ID
	if out.SetCode == "" {
		out.SetCode = card.SetCode
	}
	if out.CollectorNumber == "" {
		out.CollectorNumber = card.CollectorNumber
	}
	out.Score = score
	out.Source = src
	observability.Resolutions.WithLabelValues(string(src)).Inc()
	return out
}

// namedLookup asks the card database for an unambiguous fuzzy match. The
// API answers not-found when the name is ambiguous, which maps onto the
// same miss as an unknown name.
func (r *Resolver) namedLookup(ctx context.Context, name string) (carddb.Card, bool) {
	v, err, _ := r.group.Do("named:"+name, func() (any, error) {
		return r.online.Named(ctx, name, true)
	})
	if err != nil {
		if !errors.Is(err, scryfall.ErrNotFound) && !errors.Is(err, scryfall.ErrUnavailable) {
			r.logger.Warn("online named lookup failed", zap.String("name", name), zap.Error(err))
		}
		return carddb.Card{}, false
	}
	return v.(carddb.Card), true
}

// autocompleteLookup accepts only a unique prefix completion of the query.
// The winning suggestion is identified through the corpus when possible,
// falling back to an exact online lookup.
func (r *Resolver) autocompleteLookup(ctx context.Context, norm string) (carddb.Card, bool) {
	v, err, _ := r.group.Do("auto:"+norm, func() (any, error) {
		return r.online.Autocomplete(ctx, norm)
	})
	if err != nil {
		if !errors.Is(err, scryfall.ErrNotFound) && !errors.Is(err, scryfall.ErrUnavailable) {
			r.logger.Warn("autocomplete failed", zap.String("query", norm), zap.Error(err))
		}
		return carddb.Card{}, false
	}
	names := v.([]string)

	var match string
	for _, n := range names {
		if !strings.HasPrefix(normalize.Fold(n), norm) {
			continue
		}
		if match != "" {
			return carddb.Card{}, false
		}
		match = n
	}
	if match == "" {
		return carddb.Card{}, false
	}

	if card, ok := r.corpus.LookupExact(normalize.Fold(match)); ok {
		return card, true
	}
	card, err2 := r.online.Named(ctx, match, false)
	if err2 != nil {
		return carddb.Card{}, false
	}
	return card, true
}
