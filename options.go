package dlpscan

import (
	"encoding/json"
	"fmt"

	"github.com/dlptools/dlpscan/ingest"
)

// ScanOption adjusts the options attached to a scan submission.
type ScanOption func(*ingest.ScanOptions)

// WithEntities restricts detection to the named entity types.
func WithEntities(entities ...string) ScanOption {
	return func(o *ingest.ScanOptions) { o.Entities = entities }
}

// WithLanguage sets the analysis language (default "en").
func WithLanguage(lang string) ScanOption {
	return func(o *ingest.ScanOptions) { o.Language = lang }
}

// WithScoreThreshold drops hits scoring below threshold.
func WithScoreThreshold(threshold float64) ScanOption {
	return func(o *ingest.ScanOptions) { o.ScoreThreshold = &threshold }
}

// WithOCRMode selects auto, force, or off.
func WithOCRMode(mode string) ScanOption {
	return func(o *ingest.ScanOptions) { o.OCRMode = mode }
}

// WithoutHeaders drops email headers from extracted body text.
func WithoutHeaders() ScanOption {
	return func(o *ingest.ScanOptions) { o.IncludeHeaders = false }
}

// WithoutHTML skips HTML body rendering.
func WithoutHTML() ScanOption {
	return func(o *ingest.ScanOptions) { o.ParseHTML = false }
}

// WithoutAttachments skips email attachments.
func WithoutAttachments() ScanOption {
	return func(o *ingest.ScanOptions) { o.IncludeAttachments = false }
}

// WithoutInlineImages skips inline email images.
func WithoutInlineImages() ScanOption {
	return func(o *ingest.ScanOptions) { o.IncludeInlineImages = false }
}

func applyScanOptions(opts []ScanOption) ingest.ScanOptions {
	o := ingest.DefaultScanOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func marshalScanOptions(o ingest.ScanOptions) ([]byte, error) {
	raw, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("dlpscan: encoding scan options: %w", err)
	}
	return raw, nil
}
