// Package phonetic recovers vocabulary terms that speech recognition
// mangled. Names like "Grafana" tend to come back as "gravano" or
// "graph ana": spelled differently, but sounding the same. Matching
// therefore runs in two stages:
//
//  1. Candidate filtering by sound. Double Metaphone codes are computed
//     for each word of the probe and each word of every vocabulary term.
//     A term whose code set overlaps the probe's becomes a candidate.
//
//  2. Ranking by spelling. Among candidates, the highest Jaro-Winkler
//     similarity to the probe wins, provided it clears the phonetic
//     threshold. When nothing overlaps phonetically, a fallback pass
//     accepts pure string similarity against a stricter fuzzy threshold.
//
// Similarity is the better of two views: the full strings, and the
// space-stripped strings. The second view catches token-count mismatches
// such as "super visor" against "supervisor". Terms with more words than
// the probe are never matched, so a fragment cannot splice extra words
// into corrected text.
//
// Vocabulary terms are prepared once ([Prepare]) so that the per-window
// cost during correction is one code lookup and a handful of string
// comparisons.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.80
	defaultFuzzyThreshold    = 0.85
)

// Option configures a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the score a phonetically overlapping term
// must reach. The default is 0.80. Everyday vocabularies share short
// words with ordinary speech, so the bar sits higher than pure phonetic
// overlap alone would suggest.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the score the fallback pass demands of a term
// with no phonetic overlap. The default is 0.85, stricter than the
// phonetic bar because spelling is the only evidence.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher scores probe words against a prepared [Vocabulary]. Read-only
// after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a [Matcher] configured with the supplied options.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// term is one prepared vocabulary entry.
type term struct {
	canonical string // original spelling, substituted on match
	lower     string
	tokens    []string
	codes     map[string]struct{}
}

// Vocabulary is a prepared term list with phonetic codes precomputed.
type Vocabulary struct {
	terms    []term
	maxWords int
}

// Prepare lowercases, tokenizes, and phonetically encodes every term.
// Blank terms are dropped. The result is read-only and safe to share.
func Prepare(terms []string) *Vocabulary {
	v := &Vocabulary{}
	for _, raw := range terms {
		canonical := strings.TrimSpace(raw)
		lower := strings.ToLower(canonical)
		if lower == "" {
			continue
		}
		tokens := strings.Fields(lower)
		v.terms = append(v.terms, term{
			canonical: canonical,
			lower:     lower,
			tokens:    tokens,
			codes:     codesFor(tokens),
		})
		if len(tokens) > v.maxWords {
			v.maxWords = len(tokens)
		}
	}
	return v
}

// Len returns the number of prepared terms.
func (v *Vocabulary) Len() int { return len(v.terms) }

// MaxWords returns the token count of the longest term, 0 when empty.
// Callers use it to bound their n-gram window size.
func (v *Vocabulary) MaxWords() int { return v.maxWords }

// Match is the convenience form of [Matcher.MatchTerm] for an unprepared
// term list. Prefer MatchTerm with a shared [Vocabulary] in loops.
func (m *Matcher) Match(word string, terms []string) (corrected string, confidence float64, matched bool) {
	return m.MatchTerm(word, Prepare(terms))
}

// MatchTerm finds the vocabulary term most similar to word, which may be
// a single word or a space-separated phrase. It returns the best term in
// its canonical spelling, the Jaro-Winkler similarity in [0, 1], and
// whether any term cleared its threshold. When matched is false,
// corrected equals word unchanged and confidence is 0.
func (m *Matcher) MatchTerm(word string, v *Vocabulary) (corrected string, confidence float64, matched bool) {
	if v == nil || len(v.terms) == 0 {
		return word, 0, false
	}
	lower := strings.ToLower(strings.TrimSpace(word))
	if lower == "" {
		return word, 0, false
	}
	tokens := strings.Fields(lower)
	codes := codesFor(tokens)

	var (
		bestTerm     string
		bestScore    float64
		bestPhonetic bool
	)

	for _, t := range v.terms {
		// A term longer than the probe would add words on substitution.
		if len(t.tokens) > len(tokens) {
			continue
		}

		score := similarity(lower, tokens, t)
		if overlaps(codes, t.codes) {
			if score >= m.phoneticThreshold && (!bestPhonetic || score > bestScore) {
				bestTerm, bestScore, bestPhonetic = t.canonical, score, true
			}
		} else if !bestPhonetic && score >= m.fuzzyThreshold && score > bestScore {
			bestTerm, bestScore = t.canonical, score
		}
	}

	if bestTerm == "" {
		return word, 0, false
	}
	return bestTerm, bestScore, true
}

// similarity is the better Jaro-Winkler score of the full-string and the
// space-stripped comparison.
func similarity(lower string, tokens []string, t term) float64 {
	score := matchr.JaroWinkler(lower, t.lower, false)
	if len(tokens) > 1 || len(t.tokens) > 1 {
		a := strings.Join(tokens, "")
		b := strings.Join(t.tokens, "")
		if s := matchr.JaroWinkler(a, b, false); s > score {
			score = s
		}
	}
	return score
}

// codesFor returns the union of Double Metaphone codes over tokens.
// Tokens that produce no code contribute nothing.
func codesFor(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, 2*len(tokens))
	for _, t := range tokens {
		primary, secondary := matchr.DoubleMetaphone(t)
		if primary != "" {
			codes[primary] = struct{}{}
		}
		if secondary != "" {
			codes[secondary] = struct{}{}
		}
	}
	return codes
}

// overlaps reports whether the code sets share at least one element.
func overlaps(a, b map[string]struct{}) bool {
	// Iterate the smaller set.
	if len(a) > len(b) {
		a, b = b, a
	}
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}
