// Package findings derives reviewable finding candidates and draft SIT
// definitions from entity hits over text.
package findings

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/dlptools/dlpscan/pii"
)

// DefaultWindow is the number of characters of context captured on each
// side of a hit.
const DefaultWindow = 60

const redactedMarker = "[REDACTED]"

// stopwords excluded from supporting-keyword extraction.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true,
	"this": true, "that": true, "from": true,
}

var wordRe = regexp.MustCompile(`[a-zA-Z]{3,}`)

// Candidate is a finding ready for persistence: a redacted context window
// plus inferred detection hints.
type Candidate struct {
	EntityType         string
	Score              float64
	Start              int
	End                int
	Context            string
	PrimaryRegex       string
	SupportingKeywords []string
}

// Generate builds one candidate per hit. All hits must refer to offsets in
// text. window <= 0 selects DefaultWindow.
func Generate(hits []pii.Hit, text string, window int) []Candidate {
	if window <= 0 {
		window = DefaultWindow
	}
	candidates := make([]Candidate, 0, len(hits))
	for _, h := range hits {
		candidates = append(candidates, buildCandidate(h, text, window))
	}
	return candidates
}

func buildCandidate(hit pii.Hit, text string, window int) Candidate {
	left := hit.Start - window
	if left < 0 {
		left = 0
	}
	right := hit.End + window
	if right > len(text) {
		right = len(text)
	}
	raw := text[left:right]
	entityText := text[hit.Start:hit.End]

	return Candidate{
		EntityType:         hit.EntityType,
		Score:              hit.Score,
		Start:              hit.Start,
		End:                hit.End,
		Context:            redact(raw, entityText),
		PrimaryRegex:       InferRegex(hit.EntityType, entityText),
		SupportingKeywords: supportingKeywords(raw, entityText, 5),
	}
}

// redact replaces every occurrence of value in the context window.
func redact(context, value string) string {
	if value == "" {
		return context
	}
	return strings.ReplaceAll(context, value, redactedMarker)
}

// supportingKeywords extracts the top-n context words by frequency from the
// unredacted window: lowercased words of 3+ letters, excluding stopwords and
// substrings of the entity text, ties broken by first occurrence.
func supportingKeywords(window, entityText string, n int) []string {
	entityLower := strings.ToLower(entityText)
	words := wordRe.FindAllString(strings.ToLower(window), -1)

	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	for i, w := range words {
		if stopwords[w] {
			continue
		}
		if entityLower != "" && strings.Contains(entityLower, w) {
			continue
		}
		if _, ok := firstSeen[w]; !ok {
			firstSeen[w] = i
		}
		counts[w]++
	}

	ranked := make([]string, 0, len(counts))
	for w := range counts {
		ranked = append(ranked, w)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if counts[ranked[i]] != counts[ranked[j]] {
			return counts[ranked[i]] > counts[ranked[j]]
		}
		return firstSeen[ranked[i]] < firstSeen[ranked[j]]
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// entityRegexes maps well-known entity types to curated patterns.
var entityRegexes = map[string]string{
	pii.EntitySSN:        `\b\d{3}-\d{2}-\d{4}\b`,
	pii.EntityCreditCard: `\b(?:\d[ -]*?){13,19}\b`,
	pii.EntityPhone:      `\b\+?\d[\d\s().-]{7,}\b`,
	pii.EntityEmail:      `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`,
	pii.EntityIPAddress:  `\b(?:\d{1,3}\.){3}\d{1,3}\b`,
}

// InferRegex returns the curated pattern for known entity types, otherwise
// a character-class generalization of the matched value.
func InferRegex(entityType, value string) string {
	if re, ok := entityRegexes[entityType]; ok {
		return re
	}
	return generalizeValue(value)
}

func generalizeValue(value string) string {
	var b strings.Builder
	for _, r := range value {
		switch {
		case unicode.IsDigit(r):
			b.WriteString(`\d`)
		case unicode.IsLetter(r):
			b.WriteString(`[A-Za-z]`)
		case unicode.IsSpace(r):
			b.WriteString(`\s`)
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	return b.String()
}
