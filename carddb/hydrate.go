package carddb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// skipLayouts lists Scryfall layouts that never appear as deck entries.
var skipLayouts = map[string]bool{
	"token":              true,
	"double_faced_token": true,
	"emblem":             true,
	"art_series":         true,
	"vanguard":           true,
	"scheme":             true,
	"planar":             true,
}

// bulkCard mirrors the subset of a Scryfall bulk card object the corpus
// keeps.
type bulkCard struct {
	Object          string `json:"object"`
	ID              string `json:"id"`
	OracleID        string `json:"oracle_id"`
	Name            string `json:"name"`
	Lang            string `json:"lang"`
	Layout          string `json:"layout"`
	Set             string `json:"set"`
	CollectorNumber string `json:"collector_number"`
	CardFaces       []struct {
		Name string `json:"name"`
	} `json:"card_faces"`
}

// Hydrate streams a Scryfall bulk JSON array into Cards, deduplicating by
// name so the corpus holds one entry per distinct card. The reader is
// consumed incrementally; bulk files run to hundreds of megabytes.
func Hydrate(ctx context.Context, r io.Reader) ([]Card, error) {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read bulk data: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, fmt.Errorf("bulk data is not a JSON array (got %v)", tok)
	}

	var cards []Card
	seenNorm := make(map[string]bool)
	for dec.More() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		var bc bulkCard
		if err := dec.Decode(&bc); err != nil {
			return nil, fmt.Errorf("decode bulk card %d: %w", len(cards), err)
		}
		card, ok := fromBulk(bc)
		if !ok || seenNorm[card.NormName] {
			continue
		}
		seenNorm[card.NormName] = true
		cards = append(cards, card)
	}
	return cards, nil
}

func fromBulk(bc bulkCard) (Card, bool) {
	if bc.ID == "" || bc.Name == "" {
		return Card{}, false
	}
	if bc.Object != "" && bc.Object != "card" {
		return Card{}, false
	}
	if skipLayouts[bc.Layout] {
		return Card{}, false
	}
	id := bc.OracleID
	if id == "" {
		id = bc.ID
	}
	c := NewCard(id, bc.Name)
	c.SetCode = strings.ToUpper(bc.Set)
	c.CollectorNumber = bc.CollectorNumber
	c.Lang = bc.Lang
	if c.FrontFace == "" && len(bc.CardFaces) > 0 && strings.Contains(bc.Name, "//") {
		c.FrontFace = bc.CardFaces[0].Name
	}
	return c, true
}

// LoadCorpus reads the persisted card set from store and installs it in the
// corpus. It returns the number of cards loaded.
func LoadCorpus(ctx context.Context, store *Store, corpus *Corpus) (int, error) {
	cards, err := store.LoadAll(ctx)
	if err != nil {
		return 0, err
	}
	corpus.Replace(cards)
	return len(cards), nil
}
