package deck

// basicLandNames holds the folded names of every basic land printing,
// snow-covered variants included.
var basicLandNames = map[string]bool{
	"plains":                true,
	"island":                true,
	"swamp":                 true,
	"mountain":              true,
	"forest":                true,
	"wastes":                true,
	"snow-covered plains":   true,
	"snow-covered island":   true,
	"snow-covered swamp":    true,
	"snow-covered mountain": true,
	"snow-covered forest":   true,
	"snow-covered wastes":   true,
}

func isBasicLand(norm string) bool { return basicLandNames[norm] }

// fixMTGOLands repairs the Magic Online rendering defect where the land
// count column collapses into the first land row: one basic reads qty 59 and
// the adjacent basic reads qty 1. The quantities are rebalanced to the
// conventional 20/4 split. The repair only runs for MTGO-hinted decks whose
// main total is inconsistent, and only when a second, distinct basic land in
// the same section corroborates that the 59 is an artifact rather than a
// deliberate land-heavy list.
func fixMTGOLands(res *ParseResult) {
	if res.Hint != SourceMTGO {
		return
	}
	total := 0
	for _, l := range res.Lines {
		if l.Section != SectionSide {
			total += l.Qty
		}
	}
	if total == 60 {
		return
	}

	for i := 0; i+1 < len(res.Lines); i++ {
		a, b := &res.Lines[i], &res.Lines[i+1]
		if a.Section != b.Section || a.Section == SectionSide {
			continue
		}
		if a.Qty != 59 || b.Qty != 1 || !isBasicLand(a.NormName) || !isBasicLand(b.NormName) {
			continue
		}
		if a.NormName != b.NormName {
			a.Qty, b.Qty = 20, 4
			res.Warnings = append(res.Warnings, warnf(WarnMTGOLandFix,
				"rebalanced %s 59 / %s 1 to 20 / 4", a.Name, b.Name))
			return
		}
		// Same name on both rows: borrow the identity of another basic in
		// the section for the singleton row.
		if other := corroboratingBasic(res.Lines, i, a.Section, a.NormName); other != nil {
			b.Name, b.NormName = other.Name, other.NormName
			a.Qty, b.Qty = 20, 4
			res.Warnings = append(res.Warnings, warnf(WarnMTGOLandFix,
				"rebalanced %s 59+1 to 20 / %s 4", a.Name, b.Name))
			return
		}
		res.Warnings = append(res.Warnings, warnf(WarnMTGOLandAnomaly,
			"%s shows 59+1 with no corroborating basic land", a.Name))
		return
	}

	for _, l := range res.Lines {
		if l.Section != SectionSide && l.Qty == 59 && isBasicLand(l.NormName) {
			res.Warnings = append(res.Warnings, warnf(WarnMTGOLandAnomaly,
				"%s shows quantity 59 with no adjacent singleton land", l.Name))
			return
		}
	}
}

func corroboratingBasic(lines []ParsedLine, pairIdx int, section Section, exclude string) *ParsedLine {
	for k := range lines {
		if k == pairIdx || k == pairIdx+1 {
			continue
		}
		l := &lines[k]
		if l.Section == section && isBasicLand(l.NormName) && l.NormName != exclude {
			return l
		}
	}
	return nil
}
