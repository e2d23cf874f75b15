package assessment

import (
	"strconv"
	"strings"
)

// BDI-II band lower bounds.
const (
	bdiMildThreshold     = 14
	bdiModerateThreshold = 20
	bdiSevereThreshold   = 29
)

// ParseBDIValue extracts the item value from an answer. Tagged answers use
// their points; label answers are read from the "<digit>: <description>"
// prefix. The second return is false when the answer cannot be read or falls
// outside 0..3.
func ParseBDIValue(a Answer) (int, bool) {
	var v int
	if a.Points != nil {
		v = *a.Points
	} else {
		prefix, _, found := strings.Cut(a.Label, ":")
		if !found {
			return 0, false
		}
		n, err := strconv.Atoi(strings.TrimSpace(prefix))
		if err != nil {
			return 0, false
		}
		v = n
	}
	if v < 0 || v > bdiMaxItemValue {
		return 0, false
	}
	return v, true
}

// ClassifyBDI maps a BDI-II total onto its severity band.
func ClassifyBDI(score int) string {
	switch {
	case score >= bdiSevereThreshold:
		return BDILevelSevere
	case score >= bdiModerateThreshold:
		return BDILevelModerate
	case score >= bdiMildThreshold:
		return BDILevelMild
	default:
		return BDILevelMinimal
	}
}

// ScoreBDI sums items bdi_1..bdi_21. Missing or unreadable items count as 0.
func ScoreBDI(responses []Response) BDIResult {
	answers := latestByID(responses)

	score := 0
	for n := 1; n <= bdiItemCount; n++ {
		if v, ok := ParseBDIValue(answers[bdiItemID(n)]); ok {
			score += v
		}
	}

	risk := false
	if a, ok := answers[BDISuicidalItemID]; ok {
		v, ok := ParseBDIValue(a)
		risk = ok && v > 0
	}

	return BDIResult{
		HasSuicidalRisk: risk,
		Score:           score,
		Level:           ClassifyBDI(score),
	}
}
