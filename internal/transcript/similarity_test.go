package transcript_test

import (
	"math"
	"testing"

	"github.com/earshot-audio/earshot/internal/transcript"
)

func TestSimilarity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "hello there", "hello there", 1.0},
		{"case and padding", "  Hello THERE ", "hello there", 1.0},
		{"word order", "there hello", "hello there", 1.0},
		{"repeated tokens collapse", "go go go", "go", 1.0},
		{"both empty", "", "", 1.0},
		{"whitespace only both", "   ", "\t", 1.0},
		{"one empty", "", "hello", 0.0},
		{"one whitespace", "   ", "hello", 0.0},
		{"disjoint", "alpha beta", "gamma delta", 0.0},
		{"half overlap", "a b c", "a b d", 0.5},
		{"subset", "hello there", "hello", 0.5},
		{"one of four", "and how are you", "you", 0.25},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := transcript.Similarity(tc.a, tc.b)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("Similarity(%q, %q)=%f, want %f", tc.a, tc.b, got, tc.want)
			}
			// Jaccard is symmetric.
			if rev := transcript.Similarity(tc.b, tc.a); math.Abs(rev-got) > 1e-9 {
				t.Errorf("Similarity asymmetric: %f vs %f", got, rev)
			}
		})
	}
}
