// Package pii detects sensitive entities in text and images.
package pii

import "context"

// Hit is one detected entity occurrence over a text. Start and End are byte
// offsets into the analyzed text; End is exclusive.
type Hit struct {
	EntityType string  `json:"entity_type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Score      float64 `json:"score"`
}

// Options narrows an analysis run. A nil Entities slice allows every entity
// type the analyzer knows; ScoreThreshold, when set, drops hits scoring
// below it.
type Options struct {
	Entities       []string
	Language       string
	ScoreThreshold *float64
}

// Analyzer is the PII engine facade. Implementations wrap a recognizer of
// choice; the processor only depends on this interface so tests can inject
// a stub.
type Analyzer interface {
	// AnalyzeText returns entity hits over text, filtered by opts.
	AnalyzeText(ctx context.Context, text string, opts Options) []Hit

	// AnalyzeImage runs OCR on the image at path, then analyzes the
	// recognized text. Returns the OCR text alongside the hits.
	AnalyzeImage(ctx context.Context, path string, opts Options) (string, []Hit, error)
}

// OCR recognizes text in an image file. Production deployments bind a real
// engine; the default recognizes nothing, which the processor records as a
// warning on the scan item.
type OCR interface {
	Recognize(ctx context.Context, path string) (string, error)
}
