package query

import (
	"strings"

	"github.com/hbollon/go-edlib"
)

// FuzzyMatcher scores completion labels against a typed prefix using
// Jaro-Winkler, so typos and skipped characters still find candidates
type FuzzyMatcher struct {
	enabled   bool
	threshold float64
}

// NewFuzzyMatcher creates a matcher; threshold outside (0, 1] disables fuzzy matching
func NewFuzzyMatcher(threshold float64) *FuzzyMatcher {
	return &FuzzyMatcher{enabled: threshold > 0 && threshold <= 1, threshold: threshold}
}

// Score rates label against prefix. Exact prefixes score 2, case-insensitive
// prefixes 1.5, fuzzy matches their similarity; ok is false below threshold.
func (fm *FuzzyMatcher) Score(prefix, label string) (float64, bool) {
	if prefix == "" || strings.HasPrefix(label, prefix) {
		return 2, true
	}
	if strings.HasPrefix(strings.ToLower(label), strings.ToLower(prefix)) {
		return 1.5, true
	}
	if !fm.enabled {
		return 0, false
	}
	// Compare against the label head so long names are not penalised for their tail
	head := label
	if len(head) > len(prefix)+2 {
		head = head[:len(prefix)+2]
	}
	sim := fm.similarity(strings.ToLower(prefix), strings.ToLower(head))
	return sim, sim >= fm.threshold
}

func (fm *FuzzyMatcher) similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	score, err := edlib.StringsSimilarity(a, b, edlib.JaroWinkler)
	if err != nil {
		return 0.0
	}
	return float64(score)
}
