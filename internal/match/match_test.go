package match

import (
	"math"
	"testing"
)

func TestRatio(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "attention is all you need", "attention is all you need", 1.0},
		{"empty left", "", "anything", 0},
		{"empty right", "anything", "", 0},
		{"case insensitive", "Deep Learning", "deep learning", 1.0},
		{"disjoint", "abcd", "wxyz", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Ratio(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Ratio(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestRatioOrdering(t *testing.T) {
	target := "graph neural networks for molecules"
	near := "graph neural networks for molecule"
	far := "reinforcement learning from human feedback"
	if Ratio(target, near) <= Ratio(target, far) {
		t.Errorf("near-identical title scored no higher than an unrelated one")
	}
	if Ratio(target, near) < 0.9 {
		t.Errorf("one-char difference scored %v, want >= 0.9", Ratio(target, near))
	}
}

func TestOverlap(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"equal", "deep learning", "deep learning", true},
		{"long containment", "a survey of deep graph learning", "a survey of deep graph learning extended edition", true},
		{"short containment rejected", "deep net", "deep net applications in biology", false},
		{"four tokens pass", "a b c d extra tok", "prefix a b c d extra tok suffix", true},
		{"empty", "", "deep learning", false},
		{"unrelated", "transformers", "convolutions", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Overlap(tt.a, tt.b); got != tt.want {
				t.Errorf("Overlap(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestAdaptiveOverlapWinsImmediately(t *testing.T) {
	key := "a survey of deep graph learning methods"
	candidates := []string{
		"unrelated title about databases",
		"a survey of deep graph learning methods and applications",
	}
	res, ok := Adaptive(key, candidates)
	if !ok {
		t.Fatal("expected a match")
	}
	if res.Index != 1 {
		t.Errorf("matched index %d, want 1", res.Index)
	}
	if res.Score != 1.0 {
		t.Errorf("overlap match score %v, want 1.0", res.Score)
	}
}

func TestAdaptiveSingleCandidate(t *testing.T) {
	key := "attention is all you need"
	candidates := []string{"attention is all you needs"}
	res, ok := Adaptive(key, candidates)
	if !ok {
		t.Fatal("expected a match")
	}
	if res.Index != 0 {
		t.Errorf("matched index %d, want 0", res.Index)
	}
}

func TestAdaptiveWalksDownToDistinguish(t *testing.T) {
	key := "neural machine translation by jointly learning to align and translate"
	candidates := []string{
		"neural machine translation by jointly learning align translate",
		"introduction to organic chemistry lab safety",
	}
	res, ok := Adaptive(key, candidates)
	if !ok {
		t.Fatal("expected the near match to win")
	}
	if res.Index != 0 {
		t.Errorf("matched index %d, want 0", res.Index)
	}
}

func TestAdaptiveAmbiguityReturnsNoMatch(t *testing.T) {
	// Two candidates score identically; no threshold can separate them.
	key := "deep residual learning for image recognition"
	candidates := []string{
		"deep residual learning xor image recognition",
		"deep residual learning zor image recognition",
	}
	if _, ok := Adaptive(key, candidates); ok {
		t.Error("expected ambiguity to report no match")
	}
}

func TestAdaptiveSupersetTitlesStayDistinct(t *testing.T) {
	// A short query must not overlap-match into a longer title that merely
	// contains it; "a survey of x" is not "a survey of x and y".
	key := "asurvey of x"
	candidates := []string{"asurvey of xand ytechniques"}
	res, ok := Adaptive(key, candidates)
	if ok && res.Score == 1.0 {
		t.Errorf("short title overlap-matched a superset title")
	}
}

func TestAdaptiveEmptyInputs(t *testing.T) {
	if _, ok := Adaptive("", []string{"anything"}); ok {
		t.Error("empty title key matched")
	}
	if _, ok := Adaptive("deep learning", nil); ok {
		t.Error("empty candidate pool matched")
	}
	if _, ok := Adaptive("deep learning", []string{"", ""}); ok {
		t.Error("blank candidates matched")
	}
}
