// Package carddb maintains the offline card reference: an immutable
// in-memory corpus for exact and fuzzy name lookups, backed by a sqlite
// snapshot hydrated from Scryfall bulk data.
package carddb

import (
	"github.com/wudi/deckscan/normalize"
)

// Card is one printing-independent card identity.
type Card struct {
	// ID is the Scryfall oracle-level identifier for the card.
	ID string `json:"id"`
	// Name is the canonical printed name; double-faced cards join both
	// faces with " // ".
	Name string `json:"name"`
	// NormName is the folded comparison form of Name.
	NormName string `json:"norm_name"`
	// FrontFace holds the canonical front-face name for double-faced
	// cards, empty otherwise. Screenshots usually show only the front.
	FrontFace       string `json:"front_face,omitempty"`
	SetCode         string `json:"set_code,omitempty"`
	CollectorNumber string `json:"collector_number,omitempty"`
	Lang            string `json:"lang,omitempty"`
}

// NewCard builds a Card with its folded forms derived from name.
func NewCard(id, name string) Card {
	c := Card{ID: id, Name: name, NormName: normalize.Fold(name)}
	if front, _, ok := normalize.SplitFaces(name); ok {
		c.FrontFace = front
	}
	return c
}

// indexKeys returns every folded name this card should be found under: the
// full canonical name plus, for double-faced cards, the bare front face.
func (c Card) indexKeys() []string {
	keys := []string{c.NormName}
	if c.FrontFace != "" {
		if front := normalize.Fold(c.FrontFace); front != c.NormName {
			keys = append(keys, front)
		}
	}
	return keys
}
