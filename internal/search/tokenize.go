package search

import (
	"strings"
	"unicode"
)

// prefixLength is the number of leading runes a fuzzy match must share.
const prefixLength = 2

// Tokenize lower-cases text and splits it into runs of letters and digits.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// uniqueTerms tokenizes text and drops duplicates, keeping the first occurrence order.
func uniqueTerms(text string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, t := range Tokenize(text) {
		if seen[t] {
			continue
		}
		seen[t] = true
		terms = append(terms, t)
	}
	return terms
}

// fuzziness mirrors the AUTO setting: exact for short terms, one edit up to
// five runes and two edits for longer terms.
func fuzziness(term string) int {
	n := len([]rune(term))
	switch {
	case n <= 2:
		return 0
	case n <= 5:
		return 1
	default:
		return 2
	}
}

const (
	scoreExact  = 3
	scorePrefix = 2
	scoreFuzzy  = 1
)

// matchScore rates how well an indexed term matches a query term. Zero means no match.
func matchScore(query, term string) int {
	if term == query {
		return scoreExact
	}
	if strings.HasPrefix(term, query) {
		return scorePrefix
	}

	q, t := []rune(query), []rune(term)
	if len(q) < prefixLength || len(t) < prefixLength {
		return 0
	}
	if string(q[:prefixLength]) != string(t[:prefixLength]) {
		return 0
	}
	limit := fuzziness(query)
	if limit == 0 {
		return 0
	}
	if levenshtein(q[prefixLength:], t[prefixLength:], limit) <= limit {
		return scoreFuzzy
	}
	return 0
}

// levenshtein computes the edit distance between a and b. It stops early and
// returns limit+1 once every cell in a row exceeds limit.
func levenshtein(a, b []rune, limit int) int {
	diff := len(a) - len(b)
	if diff < 0 {
		diff = -diff
	}
	if diff > limit {
		return limit + 1
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		rowMin := curr[0]
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
			if curr[j] < rowMin {
				rowMin = curr[j]
			}
		}
		if rowMin > limit {
			return limit + 1
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
