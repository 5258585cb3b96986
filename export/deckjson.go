package export

import (
	"encoding/json"
	"io"

	"github.com/wudi/deckscan/deck"
)

// DeckJSON is the wire shape the export surfaces accept: two piles of
// quantity/name entries, card identifiers optional.
type DeckJSON struct {
	Main []CardJSON `json:"main"`
	Side []CardJSON `json:"side"`
}

// CardJSON is one deck entry in the wire shape.
type CardJSON struct {
	Qty             int    `json:"qty"`
	Name            string `json:"name"`
	CardID          string `json:"card_id,omitempty"`
	SetCode         string `json:"set_code,omitempty"`
	CollectorNumber string `json:"collector_number,omitempty"`
}

// ParseDeckJSON decodes a DeckJSON payload into a normalized deck. Entries
// must carry a positive quantity and a non-empty name; duplicates merge the
// way scanned decks do.
func ParseDeckJSON(r io.Reader) (*deck.Deck, error) {
	var payload DeckJSON
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, deck.Wrap(deck.CodeExportInvalid, err, "malformed deck payload")
	}
	cards := make([]deck.ResolvedCard, 0, len(payload.Main)+len(payload.Side))
	appendPile := func(pile []CardJSON, section deck.Section) error {
		for i, c := range pile {
			if c.Qty < 1 {
				return deck.E(deck.CodeExportInvalid, "%s[%d]: quantity must be positive, got %d", section, i, c.Qty)
			}
			if c.Name == "" {
				return deck.E(deck.CodeExportInvalid, "%s[%d]: missing card name", section, i)
			}
			cards = append(cards, deck.ResolvedCard{
				Qty:             c.Qty,
				Name:            c.Name,
				CardID:          c.CardID,
				SetCode:         c.SetCode,
				CollectorNumber: c.CollectorNumber,
				Section:         section,
			})
		}
		return nil
	}
	if err := appendPile(payload.Main, deck.SectionMain); err != nil {
		return nil, err
	}
	if err := appendPile(payload.Side, deck.SectionSide); err != nil {
		return nil, err
	}
	if len(cards) == 0 {
		return nil, deck.E(deck.CodeExportInvalid, "deck payload has no cards")
	}
	return deck.Build(cards, deck.SourceUnknown, nil), nil
}
