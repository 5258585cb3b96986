// Package export renders normalized decks into the text formats the common
// deck tools accept. Rendering is deterministic: equal decks produce
// byte-identical output across runs and hosts, with cards in canonical
// order (main before side; quantity descending, then name ascending).
package export

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/wudi/deckscan/deck"
)

// Format names an export target.
type Format string

const (
	FormatMTGA      Format = "mtga"
	FormatMoxfield  Format = "moxfield"
	FormatArchidekt Format = "archidekt"
	FormatTappedOut Format = "tappedout"
)

// Formats lists the supported targets in a stable order.
func Formats() []Format {
	return []Format{FormatMTGA, FormatMoxfield, FormatArchidekt, FormatTappedOut}
}

// ParseFormat maps a user-supplied name onto a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatMTGA:
		return FormatMTGA, nil
	case FormatMoxfield:
		return FormatMoxfield, nil
	case FormatArchidekt:
		return FormatArchidekt, nil
	case FormatTappedOut:
		return FormatTappedOut, nil
	}
	return "", deck.E(deck.CodeExportInvalid, "unknown export format %q", s)
}

// Render serialises the deck for the target format. Names are emitted
// verbatim as text; no escaping is applied or needed.
func Render(f Format, d *deck.Deck) (string, error) {
	if d == nil || (len(d.Main) == 0 && len(d.Side) == 0) {
		return "", deck.E(deck.CodeExportInvalid, "deck has no cards")
	}
	main, side := ordered(d.Main), ordered(d.Side)
	switch f {
	case FormatMTGA:
		return renderMTGA(main, side), nil
	case FormatMoxfield:
		return renderMoxfield(main, side), nil
	case FormatArchidekt:
		return renderArchidekt(main, side), nil
	case FormatTappedOut:
		return renderTappedOut(main, side), nil
	}
	return "", deck.E(deck.CodeExportInvalid, "unknown export format %q", string(f))
}

// ordered returns a copy in the canonical export order.
func ordered(cards []deck.ResolvedCard) []deck.ResolvedCard {
	out := append([]deck.ResolvedCard(nil), cards...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Qty != out[j].Qty {
			return out[i].Qty > out[j].Qty
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func renderMTGA(main, side []deck.ResolvedCard) string {
	var b strings.Builder
	b.WriteString("Deck\n")
	for _, c := range main {
		writeArenaLine(&b, c)
	}
	if len(side) > 0 {
		b.WriteString("\nSideboard\n")
		for _, c := range side {
			writeArenaLine(&b, c)
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// writeArenaLine appends the set annotation only when the screenshot
// carried both halves; Arena accepts plain names as well.
func writeArenaLine(b *strings.Builder, c deck.ResolvedCard) {
	if c.SetCode != "" && c.CollectorNumber != "" {
		fmt.Fprintf(b, "%d %s (%s) %s\n", c.Qty, c.Name, c.SetCode, c.CollectorNumber)
		return
	}
	fmt.Fprintf(b, "%d %s\n", c.Qty, c.Name)
}

func renderMoxfield(main, side []deck.ResolvedCard) string {
	var b strings.Builder
	for _, c := range main {
		fmt.Fprintf(&b, "%d %s\n", c.Qty, c.Name)
	}
	for _, c := range side {
		fmt.Fprintf(&b, "SB: %d %s\n", c.Qty, c.Name)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func renderArchidekt(main, side []deck.ResolvedCard) string {
	var b strings.Builder
	for _, c := range main {
		fmt.Fprintf(&b, "%dx %s\n", c.Qty, c.Name)
	}
	if len(side) > 0 {
		b.WriteString("\nSideboard:\n")
		for _, c := range side {
			fmt.Fprintf(&b, "%dx %s\n", c.Qty, c.Name)
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func renderTappedOut(main, side []deck.ResolvedCard) string {
	var b strings.Builder
	for _, c := range main {
		fmt.Fprintf(&b, "%d %s\n", c.Qty, c.Name)
	}
	if len(side) > 0 {
		b.WriteString("\nSideboard\n")
		for _, c := range side {
			fmt.Fprintf(&b, "%d %s\n", c.Qty, c.Name)
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

var moxLineRe = regexp.MustCompile(`^(?:([Ss][Bb]):\s*)?(\d+)[xX]?\s+(\S.*)$`)

// ParseMoxfield parses the Moxfield text form back into a deck. Card
// identities are not recovered; the result matches the source deck up to
// names, quantities and sections.
func ParseMoxfield(text string) (*deck.Deck, error) {
	var cards []deck.ResolvedCard
	for i, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		m := moxLineRe.FindStringSubmatch(line)
		if m == nil {
			return nil, deck.E(deck.CodeExportInvalid, "line %d does not parse: %q", i+1, line)
		}
		qty, err := strconv.Atoi(m[2])
		if err != nil || qty < 1 {
			return nil, deck.E(deck.CodeExportInvalid, "line %d has invalid quantity: %q", i+1, line)
		}
		section := deck.SectionMain
		if m[1] != "" {
			section = deck.SectionSide
		}
		cards = append(cards, deck.ResolvedCard{Qty: qty, Name: m[3], Section: section})
	}
	if len(cards) == 0 {
		return nil, deck.E(deck.CodeExportInvalid, "no cards in input")
	}
	return deck.Build(cards, deck.SourceMoxfield, nil), nil
}
