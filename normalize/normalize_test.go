package normalize

import "testing"

func TestFold(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"ascii passthrough", "Lightning Bolt", "lightning bolt"},
		{"diacritics", "Lim-Dûl's Vault", "lim-dul's vault"},
		{"accented", "Séance", "seance"},
		{"curly apostrophe", "Gaea’s Blessing", "gaea's blessing"},
		{"em dash", "Borrowing 100,000 Arrows—test", "borrowing 100,000 arrows-test"},
		{"en dash", "Will-o’-the-Wisp", "will-o'-the-wisp"},
		{"ligature ae", "Æther Vial", "aether vial"},
		{"whitespace runs", "  Fact   or\tFiction ", "fact or fiction"},
		{"nbsp", "Opt Opt", "opt opt"},
		{"empty", "", ""},
		{"only spaces", "   ", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Fold(tc.in); got != tc.want {
				t.Fatalf("Fold(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestFoldIdempotent(t *testing.T) {
	inputs := []string{
		"Lim-Dûl's Vault",
		"Æther Vial",
		"Fable of the Mirror-Breaker // Reflection of Kiki-Jiki",
		"Jötun Grunt",
	}
	for _, in := range inputs {
		once := Fold(in)
		if twice := Fold(once); twice != once {
			t.Fatalf("Fold not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestSplitFaces(t *testing.T) {
	front, back, ok := SplitFaces("Fire // Ice")
	if !ok || front != "Fire" || back != "Ice" {
		t.Fatalf("SplitFaces: got %q/%q ok=%v", front, back, ok)
	}
	if _, _, ok := SplitFaces("Island"); ok {
		t.Fatal("expected no split for single-faced name")
	}
	if _, _, ok := SplitFaces("Broken //"); ok {
		t.Fatal("expected no split for empty back face")
	}
}

func TestJoinFaces(t *testing.T) {
	if got := JoinFaces("Fire", "Ice"); got != "Fire // Ice" {
		t.Fatalf("JoinFaces = %q", got)
	}
	front, back, ok := SplitFaces(JoinFaces("Delver of Secrets", "Insectile Aberration"))
	if !ok || front != "Delver of Secrets" || back != "Insectile Aberration" {
		t.Fatalf("round trip failed: %q/%q ok=%v", front, back, ok)
	}
}
