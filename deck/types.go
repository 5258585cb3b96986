// Package deck holds the decklist domain model: parsed quantity lines,
// resolved cards, and the normalized deck that exporters consume. The parser
// turns raw OCR line text into structured lines; resolution against the card
// database happens elsewhere and feeds back in through ResolvedCard.
package deck

// Section places a line in the main deck or the sideboard.
type Section string

const (
	SectionMain Section = "main"
	SectionSide Section = "side"
)

// Source identifies the program or site whose rendering produced the
// screenshot, inferred from structural markers in the recognized text.
type Source string

const (
	SourceMTGA      Source = "mtga"
	SourceMTGO      Source = "mtgo"
	SourceMoxfield  Source = "moxfield"
	SourceArchidekt Source = "archidekt"
	SourceTappedOut Source = "tappedout"
	SourcePhoto     Source = "photo"
	SourceUnknown   Source = "unknown"
)

// ParsedLine is one quantity line recovered from OCR text.
type ParsedLine struct {
	// Qty is the card count, always in [1, 99] after parsing. Merged
	// duplicate lines may exceed 99.
	Qty int `json:"qty"`
	// Name is the card name as recognized, annotations stripped.
	Name string `json:"name"`
	// NormName is the folded comparison form of Name.
	NormName string `json:"norm_name"`
	// SetCode and CollectorNumber carry a trailing "(SET) 123" annotation
	// when the source rendering included one.
	SetCode         string `json:"set_code,omitempty"`
	CollectorNumber string `json:"collector_number,omitempty"`
	Section         Section `json:"section"`
	// SourceLine is the zero-based index of the OCR line this was parsed from.
	SourceLine int `json:"source_line"`
}

// ResolutionSource records which lookup step produced a card identity.
type ResolutionSource string

const (
	ResolvedExact        ResolutionSource = "exact"
	ResolvedFuzzy        ResolutionSource = "fuzzy"
	ResolvedNamed        ResolutionSource = "scryfall_named"
	ResolvedAutocomplete ResolutionSource = "scryfall_autocomplete"
	ResolvedNone         ResolutionSource = "none"
)

// ResolvedCard is a parsed line after card database resolution. CardID is
// empty when no confident identity was found; Candidates then carries the
// closest known names for the caller to surface.
type ResolvedCard struct {
	Qty             int              `json:"qty"`
	Name            string           `json:"name"`
	CardID          string           `json:"card_id,omitempty"`
	SetCode         string           `json:"set_code,omitempty"`
	CollectorNumber string           `json:"collector_number,omitempty"`
	Score           float64          `json:"score"`
	Source          ResolutionSource `json:"source"`
	Candidates      []string         `json:"candidates,omitempty"`
	Section         Section          `json:"section"`
}

// Deck is the normalized result of a scan: canonical main and sideboard
// piles plus any advisories collected along the way.
type Deck struct {
	Main     []ResolvedCard `json:"main"`
	Side     []ResolvedCard `json:"side"`
	Hint     Source         `json:"hint"`
	Warnings []Warning      `json:"warnings,omitempty"`
}

// MainCount returns the total number of cards in the main deck.
func (d *Deck) MainCount() int { return countCards(d.Main) }

// SideCount returns the total number of cards in the sideboard.
func (d *Deck) SideCount() int { return countCards(d.Side) }

func countCards(cards []ResolvedCard) int {
	n := 0
	for _, c := range cards {
		n += c.Qty
	}
	return n
}

// Build assembles a Deck from resolved lines: duplicates within a section
// merge by card identity (falling back to name when unresolved), and the
// main-count advisory is attached when the main pile is not 60 cards.
func Build(cards []ResolvedCard, hint Source, warnings []Warning) *Deck {
	d := &Deck{Hint: hint, Warnings: warnings}
	for _, c := range cards {
		switch c.Section {
		case SectionSide:
			d.Side = mergeCard(d.Side, c)
		default:
			c.Section = SectionMain
			d.Main = mergeCard(d.Main, c)
		}
	}
	if n := d.MainCount(); n > 0 && n != 60 {
		d.Warnings = append(d.Warnings, warnf(WarnMainCount, "main deck has %d cards", n))
	}
	return d
}

func mergeCard(pile []ResolvedCard, c ResolvedCard) []ResolvedCard {
	for i := range pile {
		if sameCard(pile[i], c) {
			pile[i].Qty += c.Qty
			return pile
		}
	}
	return append(pile, c)
}

func sameCard(a, b ResolvedCard) bool {
	if a.CardID != "" && b.CardID != "" {
		return a.CardID == b.CardID
	}
	return a.CardID == "" && b.CardID == "" && a.Name == b.Name
}
