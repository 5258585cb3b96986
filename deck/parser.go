package deck

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/wudi/deckscan/normalize"
)

var (
	qtyLinePattern   = regexp.MustCompile(`^(\d{1,2})([xX])?\s+(\S.*)$`)
	deckHeaderRe     = regexp.MustCompile(`^(deck|main ?board|main ?deck|commander|companion)\s*:?$`)
	sideHeaderRe     = regexp.MustCompile(`^(side ?board|sb)\s*(:)?$`)
	sbPrefixRe       = regexp.MustCompile(`(?i)^sb:\s*`)
	mtgoGroupRe      = regexp.MustCompile(`^(creatures?|lands?|spells?|instants?|sorcer(?:y|ies)|artifacts?|enchantments?|planeswalkers?|battles?|other)\s*\(\d+\)$`)
	setAnnotationRe  = regexp.MustCompile(`\s*\(([A-Za-z0-9]{2,6})\)\s*([0-9]+[a-z]?)?\s*$`)
	bracketAnnotRe   = regexp.MustCompile(`\s*\[([^\]]{0,12})\]\s*$`)
	foilMarkerRe     = regexp.MustCompile(`\s*\*[Ff]\*\s*$`)
	digitsOnlyRe     = regexp.MustCompile(`^[0-9]+$`)
	setCodeShapeRe   = regexp.MustCompile(`^[A-Za-z0-9]{2,6}$`)
)

// basicPlurals maps folded plural basic-land names, a frequent OCR artifact
// on stacked-card renderings, back to the canonical singular.
var basicPlurals = map[string]string{
	"islands":   "Island",
	"swamps":    "Swamp",
	"mountains": "Mountain",
	"forests":   "Forest",
}

// ParseResult is the structured outcome of parsing one OCR run.
type ParseResult struct {
	Lines    []ParsedLine
	Unparsed []string
	Hint     Source
	Warnings []Warning
}

// CountCardLines reports how many of the given lines parse as quantity lines.
// The OCR layer uses this to rank candidate runs before full parsing.
func CountCardLines(lines []string) int {
	n := 0
	for _, raw := range lines {
		text := strings.TrimSpace(raw)
		text = sbPrefixRe.ReplaceAllString(text, "")
		m := qtyLinePattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if qty, err := strconv.Atoi(m[1]); err == nil && qty >= 1 && qty <= 99 {
			n++
		}
	}
	return n
}

// Parse turns OCR line text into structured quantity lines. Section markers
// switch between main deck and sideboard, rendering artifacts (set codes,
// foil markers, collector numbers) are stripped, the source format is
// inferred from structural markers, and adjacent duplicate lines merge.
func Parse(lines []string) *ParseResult {
	res := &ParseResult{Hint: SourceUnknown}
	section := SectionMain

	var sawDeckHeader, sawSideHeader, sawSBPrefix, sawXQty, sawSetAnnot bool
	mtgoGroups := 0

	for i, raw := range lines {
		text := strings.TrimSpace(raw)
		if text == "" {
			continue
		}
		lower := strings.ToLower(text)
		if deckHeaderRe.MatchString(lower) {
			section = SectionMain
			sawDeckHeader = sawDeckHeader || strings.HasPrefix(lower, "deck")
			continue
		}
		if sideHeaderRe.MatchString(lower) {
			section = SectionSide
			sawSideHeader = true
			continue
		}
		if mtgoGroupRe.MatchString(lower) {
			mtgoGroups++
			continue
		}

		lineSection := section
		if loc := sbPrefixRe.FindStringIndex(text); loc != nil {
			text = strings.TrimSpace(text[loc[1]:])
			lineSection = SectionSide
			sawSBPrefix = true
		}

		pl, ok, usedX := parseQtyLine(text)
		if !ok {
			res.Unparsed = append(res.Unparsed, text)
			res.Warnings = append(res.Warnings, warnf(WarnUnparsedLine, "line %d: %q", i, text))
			continue
		}
		sawXQty = sawXQty || usedX
		sawSetAnnot = sawSetAnnot || pl.SetCode != ""
		pl.Section = lineSection
		pl.SourceLine = i
		res.Lines = append(res.Lines, pl)
	}

	res.Hint = inferHint(res, hintEvidence{
		deckHeader: sawDeckHeader,
		sideHeader: sawSideHeader,
		sbPrefix:   sawSBPrefix,
		xQty:       sawXQty,
		setAnnot:   sawSetAnnot,
		mtgoGroups: mtgoGroups,
	})
	fixMTGOLands(res)
	mergeAdjacent(res)
	return res
}

func parseQtyLine(text string) (ParsedLine, bool, bool) {
	m := qtyLinePattern.FindStringSubmatch(text)
	if m == nil {
		return ParsedLine{}, false, false
	}
	qty, err := strconv.Atoi(m[1])
	if err != nil || qty < 1 || qty > 99 {
		return ParsedLine{}, false, false
	}
	usedX := m[2] != ""
	name := strings.TrimSpace(m[3])
	// Detached lowercase x between quantity and name ("4 x Island").
	if strings.HasPrefix(name, "x ") {
		name = strings.TrimSpace(name[2:])
		usedX = true
	}

	name = foilMarkerRe.ReplaceAllString(name, "")
	var set, num string
	if am := setAnnotationRe.FindStringSubmatch(name); am != nil {
		if am[2] == "" && digitsOnlyRe.MatchString(am[1]) {
			num = am[1]
		} else {
			set, num = strings.ToUpper(am[1]), am[2]
		}
		name = strings.TrimSpace(setAnnotationRe.ReplaceAllString(name, ""))
	}
	if bm := bracketAnnotRe.FindStringSubmatch(name); bm != nil {
		if set == "" && setCodeShapeRe.MatchString(bm[1]) {
			set = strings.ToUpper(bm[1])
		}
		name = strings.TrimSpace(bracketAnnotRe.ReplaceAllString(name, ""))
	}
	if name == "" {
		return ParsedLine{}, false, false
	}
	if singular, ok := basicPlurals[normalize.Fold(name)]; ok {
		name = singular
	}

	return ParsedLine{
		Qty:             qty,
		Name:            name,
		NormName:        normalize.Fold(name),
		SetCode:         set,
		CollectorNumber: num,
	}, true, usedX
}

type hintEvidence struct {
	deckHeader bool
	sideHeader bool
	sbPrefix   bool
	xQty       bool
	setAnnot   bool
	mtgoGroups int
}

// inferHint ranks structural markers by specificity: an explicit per-line
// sideboard prefix or x-suffix quantity pins a site rendering, arena markers
// pin the MTGA client, category group headers pin the MTGO client.
func inferHint(res *ParseResult, ev hintEvidence) Source {
	switch {
	case ev.sbPrefix:
		return SourceMoxfield
	case ev.xQty:
		return SourceArchidekt
	case ev.deckHeader || ev.setAnnot:
		return SourceMTGA
	case ev.mtgoGroups > 0 || hasCollapsedLandRow(res):
		return SourceMTGO
	case ev.sideHeader:
		return SourceTappedOut
	}
	if len(res.Unparsed) > 0 {
		parsed := len(res.Lines)
		total := parsed + len(res.Unparsed)
		if parsed > 0 && float64(len(res.Unparsed))/float64(total) > 0.4 {
			return SourcePhoto
		}
	}
	return SourceUnknown
}

// hasCollapsedLandRow reports the signature of the MTGO rendering defect: a
// basic land carrying a 59 quantity.
func hasCollapsedLandRow(res *ParseResult) bool {
	for _, l := range res.Lines {
		if l.Qty == 59 && isBasicLand(l.NormName) {
			return true
		}
	}
	return false
}

// mergeAdjacent collapses consecutive lines naming the same card in the same
// section, a common artifact of stacked-row renderings.
func mergeAdjacent(res *ParseResult) {
	if len(res.Lines) < 2 {
		return
	}
	merged := res.Lines[:1]
	for _, cur := range res.Lines[1:] {
		prev := &merged[len(merged)-1]
		if cur.NormName == prev.NormName && cur.Section == prev.Section {
			prev.Qty += cur.Qty
			if prev.SetCode == "" {
				prev.SetCode = cur.SetCode
			}
			if prev.CollectorNumber == "" {
				prev.CollectorNumber = cur.CollectorNumber
			}
			continue
		}
		merged = append(merged, cur)
	}
	res.Lines = merged
}
