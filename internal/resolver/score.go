package resolver

import (
	"strings"
	"unicode/utf8"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

const (
	// words shorter than this must match exactly
	minFuzzyWord = 5
	// Levenshtein similarity two longer words need to count as the same word
	fuzzyWordSimilarity = 0.8
)

var levenshtein = metrics.NewLevenshtein()

// Score returns a distance in [0, 1] between two normalized strings; 0 is identical, 1 is no match.
//
// Words are paired one to one, exactly or with one typo per five letters, and
// the distance is the share of letters on both sides left unpaired. Extra
// words on either side count against the match: "one more time" against
// "one more time radio edit" scores 0.29, while "hell" never pairs with
// "hello".
func Score(a, b string) float64 {
	if a == "" || b == "" {
		return 1
	}
	if a == b {
		return 0
	}

	aw, bw := strings.Fields(a), strings.Fields(b)
	total := letters(aw) + letters(bw)
	if total == 0 {
		return 1
	}

	used := make([]bool, len(bw))
	var paired float64
	for _, x := range aw {
		best, at := 0.0, -1
		for j, y := range bw {
			if used[j] {
				continue
			}
			if s := wordSimilarity(x, y); s > best {
				best, at = s, j
			}
		}
		if at < 0 {
			continue
		}
		used[at] = true
		paired += best * float64(utf8.RuneCountInString(x)+utf8.RuneCountInString(bw[at]))
	}
	return 1 - paired/float64(total)
}

// BestScore returns the lowest [Score] over every (want, got) pair.
func BestScore(want, got []string) float64 {
	best := 1.0
	for _, w := range want {
		for _, g := range got {
			if s := Score(w, g); s < best {
				best = s
			}
		}
	}
	return best
}

func wordSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if min(utf8.RuneCountInString(a), utf8.RuneCountInString(b)) < minFuzzyWord {
		return 0
	}
	if s := strutil.Similarity(a, b, levenshtein); s >= fuzzyWordSimilarity {
		return s
	}
	return 0
}

func letters(words []string) int {
	n := 0
	for _, w := range words {
		n += utf8.RuneCountInString(w)
	}
	return n
}
