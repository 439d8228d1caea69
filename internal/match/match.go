package match

import (
	"strings"

	"github.com/hallvard/papervault/internal/titlekey"
)

const (
	similarityStart    = 0.95
	similarityStep     = 0.05
	similarityMaxSteps = 10
)

// Result identifies the single best candidate from a pool.
type Result struct {
	Index int
	Score float64
}

// Overlap reports whether one normalized title key contains the other with
// enough signal on the shorter side (>= 24 chars or >= 4 tokens) to count as
// the same title. Short titles never overlap-match; they fall through to full
// similarity scoring.
func Overlap(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	shorter, longer := a, b
	if len(a) > len(b) {
		shorter, longer = b, a
	}
	if len(shorter) >= titlekey.MinChars || len(strings.Fields(shorter)) >= titlekey.MinTokens {
		if strings.HasPrefix(longer, shorter) || strings.Contains(longer, shorter) {
			return true
		}
	}
	return false
}

// Adaptive finds the unique candidate whose key best matches titleKey.
//
// An overlap match wins immediately with score 1.0. Otherwise every candidate
// is scored and the threshold walks down from 0.95 in 0.05 steps until exactly
// one candidate survives. When the survivor count jumps from zero straight to
// several, the interval between the two thresholds is binary-searched (at most
// 10 iterations) for a point isolating exactly one candidate; the iteration
// cap is part of the contract and can leave a unique-match threshold
// undiscovered. Ambiguity that never resolves to a single candidate returns
// ok=false.
func Adaptive(titleKey string, candidateKeys []string) (Result, bool) {
	if titleKey == "" {
		return Result{}, false
	}
	type scored struct {
		index int
		score float64
	}
	pool := make([]scored, 0, len(candidateKeys))
	for i, key := range candidateKeys {
		if key == "" {
			continue
		}
		if Overlap(titleKey, key) {
			return Result{Index: i, Score: 1.0}, true
		}
		pool = append(pool, scored{i, Ratio(titleKey, key)})
	}
	if len(pool) == 0 {
		return Result{}, false
	}

	matchesAt := func(threshold float64) []scored {
		var out []scored
		for _, s := range pool {
			if s.score >= threshold {
				out = append(out, s)
			}
		}
		return out
	}

	threshold := similarityStart
	prevThreshold := -1.0
	prevCount := -1
	for step := 0; step < similarityMaxSteps; step++ {
		matches := matchesAt(threshold)
		if len(matches) == 1 {
			return Result{Index: matches[0].index, Score: matches[0].score}, true
		}
		if len(matches) == 0 {
			prevThreshold = threshold
			prevCount = 0
			threshold -= similarityStep
			continue
		}
		if prevCount == 0 && prevThreshold >= 0 {
			low, high := threshold, prevThreshold
			for iter := 0; iter < similarityMaxSteps; iter++ {
				mid := (low + high) / 2
				midMatches := matchesAt(mid)
				if len(midMatches) == 1 {
					return Result{Index: midMatches[0].index, Score: midMatches[0].score}, true
				}
				if len(midMatches) == 0 {
					high = mid
				} else {
					low = mid
				}
			}
			return Result{}, false
		}
		prevThreshold = threshold
		prevCount = len(matches)
		threshold -= similarityStep
	}
	return Result{}, false
}
