package resolver

import (
	"sort"
	"strings"

	"github.com/agext/levenshtein"
	"github.com/antzucaro/matchr"
)

// NameSimilarity scores two normalized names in [0,1] as the maximum over
// four independent signals: edit-distance ratio, partial (substring window)
// ratio, token-order-insensitive ratio, and a phonetic ratio over
// transliterated forms. The max is deliberate: one strong signal is enough
// to suggest a match, and no single weak signal should veto one.
func NameSimilarity(a, b string) float64 {
	score, _ := NameSimilaritySignals(a, b)
	return score
}

// NameSimilaritySignals returns the best score together with the name of the
// winning signal, used for match-reason reporting.
func NameSimilaritySignals(a, b string) (float64, string) {
	if a == "" || b == "" {
		return 0, "none"
	}

	best, signal := editRatio(a, b), "edit_distance"
	if s := partialRatio(a, b); s > best {
		best, signal = s, "partial"
	}
	if s := tokenSortRatio(a, b); s > best {
		best, signal = s, "token_sort"
	}
	if s := phoneticRatio(a, b); s > best {
		best, signal = s, "phonetic"
	}
	return best, signal
}

// editRatio is the normalized Levenshtein similarity.
func editRatio(a, b string) float64 {
	return levenshtein.Similarity(a, b, nil)
}

// partialRatio slides the shorter string across the longer one and returns
// the best window similarity, so "ACME" scores high against
// "ACME TRADING OF OHIO".
func partialRatio(a, b string) float64 {
	short, long := []rune(a), []rune(b)
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) == 0 {
		return 0
	}
	if len(short) == len(long) {
		return editRatio(string(short), string(long))
	}

	best := 0.0
	for i := 0; i+len(short) <= len(long); i++ {
		s := editRatio(string(short), string(long[i:i+len(short)]))
		if s > best {
			best = s
		}
	}
	return best
}

// tokenSortRatio compares the two names with their words sorted, making the
// score insensitive to token order ("TRADING ACME" vs "ACME TRADING").
func tokenSortRatio(a, b string) float64 {
	return editRatio(sortTokens(a), sortTokens(b))
}

func sortTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// phoneticRatio encodes each transliterated token with Soundex and compares
// the concatenated codes, so names that sound alike score high even when
// spelled differently.
func phoneticRatio(a, b string) float64 {
	ca := phoneticCode(a)
	cb := phoneticCode(b)
	if ca == "" || cb == "" {
		return 0
	}
	return editRatio(ca, cb)
}

func phoneticCode(s string) string {
	var codes []string
	for _, token := range strings.Fields(Transliterate(s)) {
		token = onlyLetters(token)
		if token == "" {
			continue
		}
		codes = append(codes, matchr.Soundex(token))
	}
	return strings.Join(codes, " ")
}

func onlyLetters(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
