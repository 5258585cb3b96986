package deck

import "testing"

func TestParseQuantityGrammar(t *testing.T) {
	cases := []struct {
		name     string
		line     string
		wantQty  int
		wantName string
		wantOK   bool
	}{
		{"plain", "4 Island", 4, "Island", true},
		{"x suffix", "4x Island", 4, "Island", true},
		{"detached x", "4 x Island", 4, "Island", true},
		{"two digit", "12 Relentless Rats", 12, "Relentless Rats", true},
		{"max qty", "99 Persistent Petitioners", 99, "Persistent Petitioners", true},
		{"name with digits", "1 Borrowing 100,000 Arrows", 1, "Borrowing 100,000 Arrows", true},
		{"name starting with x", "4 Xathrid Necromancer", 4, "Xathrid Necromancer", true},
		{"zero qty", "0 Island", 0, "", false},
		{"double zero", "00 Island", 0, "", false},
		{"three digit", "100 Island", 0, "", false},
		{"no qty", "Island", 0, "", false},
		{"qty only", "4", 0, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Parse([]string{tc.line})
			if !tc.wantOK {
				if len(res.Lines) != 0 {
					t.Fatalf("expected unparsed, got %+v", res.Lines)
				}
				if len(res.Unparsed) != 1 {
					t.Fatalf("expected 1 unparsed line, got %d", len(res.Unparsed))
				}
				return
			}
			if len(res.Lines) != 1 {
				t.Fatalf("expected 1 line, got %d (unparsed %v)", len(res.Lines), res.Unparsed)
			}
			got := res.Lines[0]
			if got.Qty != tc.wantQty || got.Name != tc.wantName {
				t.Fatalf("got %d %q, want %d %q", got.Qty, got.Name, tc.wantQty, tc.wantName)
			}
		})
	}
}

func TestParseAnnotations(t *testing.T) {
	cases := []struct {
		name    string
		line    string
		card    string
		set     string
		number  string
	}{
		{"arena set and number", "4 Opt (ELD) 59", "Opt", "ELD", "59"},
		{"collector only", "2 Island (337)", "Island", "", "337"},
		{"bracket set", "3 Opt [ELD]", "Opt", "ELD", ""},
		{"foil marker", "1 Opt *F*", "Opt", "", ""},
		{"foil with set", "1 Opt (ELD) 59 *F*", "Opt", "ELD", "59"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Parse([]string{tc.line})
			if len(res.Lines) != 1 {
				t.Fatalf("expected 1 line, got %d", len(res.Lines))
			}
			got := res.Lines[0]
			if got.Name != tc.card || got.SetCode != tc.set || got.CollectorNumber != tc.number {
				t.Fatalf("got name=%q set=%q num=%q, want %q/%q/%q",
					got.Name, got.SetCode, got.CollectorNumber, tc.card, tc.set, tc.number)
			}
		})
	}
}

func TestParseSections(t *testing.T) {
	res := Parse([]string{
		"Deck",
		"4 Island",
		"4 Opt",
		"",
		"Sideboard",
		"2 Negate",
	})
	if len(res.Lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(res.Lines))
	}
	if res.Lines[0].Section != SectionMain || res.Lines[1].Section != SectionMain {
		t.Fatalf("main lines misplaced: %+v", res.Lines)
	}
	if res.Lines[2].Section != SectionSide {
		t.Fatalf("sideboard line misplaced: %+v", res.Lines[2])
	}
	if res.Hint != SourceMTGA {
		t.Fatalf("hint = %s, want %s", res.Hint, SourceMTGA)
	}
}

func TestParseSBPrefix(t *testing.T) {
	res := Parse([]string{
		"4 Island",
		"SB: 2 Negate",
		"4 Opt",
	})
	if len(res.Lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(res.Lines))
	}
	if res.Lines[1].Section != SectionSide {
		t.Fatalf("SB: line not in sideboard: %+v", res.Lines[1])
	}
	// The prefix marks only its own line; the section does not switch.
	if res.Lines[2].Section != SectionMain {
		t.Fatalf("line after SB: should stay in main: %+v", res.Lines[2])
	}
	if res.Hint != SourceMoxfield {
		t.Fatalf("hint = %s, want %s", res.Hint, SourceMoxfield)
	}
}

func TestParseHints(t *testing.T) {
	cases := []struct {
		name  string
		lines []string
		want  Source
	}{
		{"archidekt x qty", []string{"4x Island", "Sideboard:", "2x Negate"}, SourceArchidekt},
		{"mtga set annotations", []string{"4 Opt (ELD) 59"}, SourceMTGA},
		{"mtgo group headers", []string{"Lands (24)", "24 Island", "Creatures (12)", "12 Delver of Secrets"}, SourceMTGO},
		{"mtgo collapsed lands", []string{"59 Island", "1 Swamp"}, SourceMTGO},
		{"tappedout bare sideboard", []string{"4 Island", "Sideboard", "2 Negate"}, SourceTappedOut},
		{"unknown", []string{"4 Island", "4 Opt"}, SourceUnknown},
		{"photo heavy garble", []string{"4 Island", "~~ xX 7", "((noise", "more noise here"}, SourcePhoto},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Parse(tc.lines).Hint; got != tc.want {
				t.Fatalf("hint = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestParseMergesAdjacentDuplicates(t *testing.T) {
	res := Parse([]string{
		"2 Island",
		"2 Island",
		"4 Opt",
		"Sideboard",
		"1 Negate",
		"1 Negate",
	})
	if len(res.Lines) != 3 {
		t.Fatalf("expected 3 merged lines, got %d: %+v", len(res.Lines), res.Lines)
	}
	if res.Lines[0].Qty != 4 || res.Lines[0].Name != "Island" {
		t.Fatalf("main merge wrong: %+v", res.Lines[0])
	}
	if res.Lines[2].Qty != 2 || res.Lines[2].Section != SectionSide {
		t.Fatalf("side merge wrong: %+v", res.Lines[2])
	}
}

func TestParsePluralBasics(t *testing.T) {
	res := Parse([]string{"4 Islands", "2 Forests"})
	if res.Lines[0].Name != "Island" || res.Lines[1].Name != "Forest" {
		t.Fatalf("plural basics not singularized: %+v", res.Lines)
	}
}

func TestCountCardLines(t *testing.T) {
	lines := []string{
		"Deck",
		"4 Island",
		"SB: 2 Negate",
		"garbage line",
		"100 Too Many",
		"3x Opt",
	}
	if got := CountCardLines(lines); got != 3 {
		t.Fatalf("CountCardLines = %d, want 3", got)
	}
}
