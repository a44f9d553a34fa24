package pii

import (
	"context"
	"regexp"
	"sort"
)

// Well-known entity type names, matching the recognizer vocabulary used by
// the finding generator's regex inference.
const (
	EntitySSN        = "SSN"
	EntityCreditCard = "CREDIT_CARD"
	EntityPhone      = "PHONE_NUMBER"
	EntityEmail      = "EMAIL_ADDRESS"
	EntityIPAddress  = "IP_ADDRESS"
)

// pattern pairs a compiled regex with its entity type and a base confidence
// score. Confidence reflects how specifically the regex identifies the
// target entity: structured formats score high, ambiguous digit runs low.
type pattern struct {
	re         *regexp.Regexp
	entityType string
	score      float64
}

var builtinPatterns = []pattern{
	{regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), EntityEmail, 0.95},
	{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), EntitySSN, 0.85},
	{regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`), EntityIPAddress, 0.80},
	{regexp.MustCompile(`\b(?:\d[ -]?){13,19}\b`), EntityCreditCard, 0.60},
	{regexp.MustCompile(`\+?\d[\d\s().-]{7,}\d`), EntityPhone, 0.40},
}

// RegexAnalyzer is the default Analyzer: a pattern table over text, with an
// injectable OCR engine for images. It has no external dependencies and is
// deterministic, which also makes it the test engine of choice.
type RegexAnalyzer struct {
	patterns []pattern
	ocr      OCR
}

// NewRegexAnalyzer builds the default analyzer. ocr may be nil, in which
// case image analysis yields no text.
func NewRegexAnalyzer(ocr OCR) *RegexAnalyzer {
	return &RegexAnalyzer{patterns: builtinPatterns, ocr: ocr}
}

// AnalyzeText scans text against the pattern table and applies the
// allow-list and score floor from opts. Overlapping spans resolve to the
// highest-scoring recognizer, so one token yields one hit. Hits are ordered
// by start offset.
func (a *RegexAnalyzer) AnalyzeText(_ context.Context, text string, opts Options) []Hit {
	allowed := allowSet(opts.Entities)
	var hits []Hit
	for _, p := range a.patterns {
		if allowed != nil && !allowed[p.entityType] {
			continue
		}
		if opts.ScoreThreshold != nil && p.score < *opts.ScoreThreshold {
			continue
		}
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			hits = append(hits, Hit{
				EntityType: p.entityType,
				Start:      loc[0],
				End:        loc[1],
				Score:      p.score,
			})
		}
	}
	hits = resolveOverlaps(hits)
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Start != hits[j].Start {
			return hits[i].Start < hits[j].Start
		}
		if hits[i].End != hits[j].End {
			return hits[i].End < hits[j].End
		}
		return hits[i].EntityType < hits[j].EntityType
	})
	return hits
}

// resolveOverlaps keeps, among hits whose spans intersect, only the
// highest-scoring one (ties break on earlier, shorter, then lexicographic
// entity type).
func resolveOverlaps(hits []Hit) []Hit {
	if len(hits) < 2 {
		return hits
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].Start != hits[j].Start {
			return hits[i].Start < hits[j].Start
		}
		if hits[i].End != hits[j].End {
			return hits[i].End < hits[j].End
		}
		return hits[i].EntityType < hits[j].EntityType
	})
	kept := make([]Hit, 0, len(hits))
	for _, h := range hits {
		overlaps := false
		for _, k := range kept {
			if h.Start < k.End && k.Start < h.End {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, h)
		}
	}
	return kept
}

// AnalyzeImage runs OCR (when configured) and analyzes the recognized text.
func (a *RegexAnalyzer) AnalyzeImage(ctx context.Context, path string, opts Options) (string, []Hit, error) {
	if a.ocr == nil {
		return "", nil, nil
	}
	text, err := a.ocr.Recognize(ctx, path)
	if err != nil {
		return "", nil, err
	}
	if text == "" {
		return "", nil, nil
	}
	return text, a.AnalyzeText(ctx, text, opts), nil
}

func allowSet(entities []string) map[string]bool {
	if entities == nil {
		return nil
	}
	set := make(map[string]bool, len(entities))
	for _, e := range entities {
		set[e] = true
	}
	return set
}
