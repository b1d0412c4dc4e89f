package dedupe

import (
	"sort"
	"strings"
)

var doiPrefixes = []string{
	"https://doi.org/",
	"http://doi.org/",
	"https://dx.doi.org/",
	"http://dx.doi.org/",
	"doi:",
}

// NormalizeIdentifier case-folds and collapses whitespace.
func NormalizeIdentifier(value string) string {
	return strings.Join(strings.Fields(strings.ToLower(value)), " ")
}

// NormalizeDOI is NormalizeIdentifier with resolver prefixes removed, so
// "https://doi.org/10.1/x" and "10.1/X" compare equal.
func NormalizeDOI(value string) string {
	doi := NormalizeIdentifier(value)
	for _, prefix := range doiPrefixes {
		if strings.HasPrefix(doi, prefix) {
			return strings.TrimSpace(doi[len(prefix):])
		}
	}
	return doi
}

// NormalizeTitle case-folds and collapses whitespace.
func NormalizeTitle(title string) string {
	return NormalizeIdentifier(title)
}

// TokenSetRatio scores two strings in [0,1] by the overlap of their word sets,
// ignoring word order and repetition.
func TokenSetRatio(a, b string) float64 {
	tokensA := tokenSet(a)
	tokensB := tokenSet(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	var common, onlyA, onlyB []string
	for tok := range tokensA {
		if _, ok := tokensB[tok]; ok {
			common = append(common, tok)
		} else {
			onlyA = append(onlyA, tok)
		}
	}
	for tok := range tokensB {
		if _, ok := tokensA[tok]; !ok {
			onlyB = append(onlyB, tok)
		}
	}

	if len(common) > 0 && (len(onlyA) == 0 || len(onlyB) == 0) {
		return 1
	}

	sect := joinSorted(common)
	combinedA := joinNonEmpty(sect, joinSorted(onlyA))
	combinedB := joinNonEmpty(sect, joinSorted(onlyB))

	best := indelRatio(combinedA, combinedB)
	if sect != "" {
		best = max(best, indelRatio(sect, combinedA), indelRatio(sect, combinedB))
	}
	return best
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(s)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

func joinSorted(tokens []string) string {
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}

// indelRatio is 2*LCS/(len(a)+len(b)) over runes.
func indelRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			switch {
			case ra[i-1] == rb[j-1]:
				curr[j] = prev[j-1] + 1
			case prev[j] >= curr[j-1]:
				curr[j] = prev[j]
			default:
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return float64(2*prev[len(rb)]) / float64(total)
}
