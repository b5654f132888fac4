package transcript

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/earshot-audio/earshot/internal/transcript/phonetic"
)

// Correction records one substitution applied by the [Corrector].
type Correction struct {
	// Original is the text window as produced by the transcription
	// provider.
	Original string

	// Corrected is the vocabulary term that replaced it, in canonical
	// spelling.
	Corrected string

	// Confidence is the match score in [0, 1].
	Confidence float64
}

// Corrector replaces misheard vocabulary terms in transcription text
// before it reaches the [Reconciler]. Configured terms (product names,
// jargon, proper nouns) are phonetically aligned against n-gram windows of
// the text; the window size is bounded by the longest term so multi-word
// terms match ahead of their fragments.
//
// Safe for concurrent use. [Corrector.SetVocabulary] may be called while
// corrections run, so a config reload can swap the term list live.
type Corrector struct {
	matcher *phonetic.Matcher

	mu    sync.RWMutex
	vocab *phonetic.Vocabulary
}

// NewCorrector prepares terms for matching. An empty term list is valid
// and makes [Corrector.Correct] a no-op.
func NewCorrector(matcher *phonetic.Matcher, terms []string) *Corrector {
	return &Corrector{
		matcher: matcher,
		vocab:   phonetic.Prepare(terms),
	}
}

// SetVocabulary replaces the term list, re-preparing the phonetic codes.
func (c *Corrector) SetVocabulary(terms []string) {
	v := phonetic.Prepare(terms)
	c.mu.Lock()
	c.vocab = v
	c.mu.Unlock()
	slog.Debug("transcript: vocabulary updated", "terms", v.Len())
}

// Correct returns text with recognized vocabulary terms substituted, plus
// the list of substitutions made. When nothing matches, or the vocabulary
// is empty, text comes back unchanged with a nil correction list.
//
// Windows are tried longest-first at each position and the cursor advances
// past whatever matched, so each input token is consumed by at most one
// substitution.
func (c *Corrector) Correct(text string) (string, []Correction) {
	c.mu.RLock()
	vocab := c.vocab
	c.mu.RUnlock()

	if vocab.Len() == 0 {
		return text, nil
	}
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return text, nil
	}

	var (
		out         []string
		corrections []Correction
	)

	i := 0
	for i < len(tokens) {
		n := vocab.MaxWords()
		if i+n > len(tokens) {
			n = len(tokens) - i
		}

		matched := false
		for ; n >= 1; n-- {
			window := strings.Join(tokens[i:i+n], " ")
			term, conf, ok := c.matcher.MatchTerm(window, vocab)
			if !ok {
				continue
			}
			if strings.EqualFold(window, term) {
				// Already spelled right; consume without recording.
				out = append(out, tokens[i:i+n]...)
			} else {
				out = append(out, strings.Fields(term)...)
				corrections = append(corrections, Correction{
					Original:   window,
					Corrected:  term,
					Confidence: conf,
				})
			}
			i += n
			matched = true
			break
		}
		if !matched {
			out = append(out, tokens[i])
			i++
		}
	}

	if len(corrections) == 0 {
		return text, nil
	}
	corrected := strings.Join(out, " ")
	slog.Debug("transcript: vocabulary corrections applied",
		"count", len(corrections), "corrected", corrected)
	return corrected, corrections
}
