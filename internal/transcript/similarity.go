package transcript

import "strings"

// Similarity scores how alike two texts are, in [0, 1], using Jaccard
// similarity over their lowercased, whitespace-tokenized word sets:
// |A∩B| / |A∪B|. Exact equality after trimming and lowercasing
// short-circuits to 1 so trivial repeats never depend on tokenization.
// If exactly one side has no tokens the score is 0.
func Similarity(a, b string) float64 {
	na := strings.ToLower(strings.TrimSpace(a))
	nb := strings.ToLower(strings.TrimSpace(b))
	if na == nb {
		return 1
	}

	setA := tokenSet(na)
	setB := tokenSet(nb)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

// tokenSet splits s on whitespace into a set of unique tokens. s is
// assumed to be lowercased already.
func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(s)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
