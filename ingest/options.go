package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownOption marks a scan-options payload carrying a key outside the
// ScanOptions vocabulary.
var ErrUnknownOption = errors.New("ingest: unknown scan option")

// OCR modes. Auto runs OCR only when a document has no text layer, force
// always runs it alongside text extraction, and off skips images entirely.
const (
	OCRModeAuto  = "auto"
	OCRModeForce = "force"
	OCRModeOff   = "off"
)

// ScanOptions tunes a single scan request. Zero values are filled by
// DefaultScanOptions; ParseScanOptions rejects unknown keys.
type ScanOptions struct {
	Language            string   `json:"language"`
	Entities            []string `json:"entities,omitempty"`
	ScoreThreshold      *float64 `json:"score_threshold,omitempty"`
	OCRMode             string   `json:"ocr_mode"`
	IncludeHeaders      bool     `json:"include_headers"`
	ParseHTML           bool     `json:"parse_html"`
	IncludeAttachments  bool     `json:"include_attachments"`
	IncludeInlineImages bool     `json:"include_inline_images"`
}

// DefaultScanOptions returns the options used when a scan request supplies
// none.
func DefaultScanOptions() ScanOptions {
	return ScanOptions{
		Language:            "en",
		OCRMode:             OCRModeAuto,
		IncludeHeaders:      true,
		ParseHTML:           true,
		IncludeAttachments:  true,
		IncludeInlineImages: true,
	}
}

// ParseScanOptions decodes raw over the defaults. Empty input yields the
// defaults; unknown keys and malformed values are errors.
func ParseScanOptions(raw []byte) (ScanOptions, error) {
	opts := DefaultScanOptions()
	if len(bytes.TrimSpace(raw)) == 0 {
		return opts, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&opts); err != nil {
		// encoding/json exposes the rejected key only through the error
		// string; the match is confined to this one place and callers get
		// the typed sentinel.
		if strings.Contains(err.Error(), "unknown field") {
			return ScanOptions{}, fmt.Errorf("%w: %v", ErrUnknownOption, err)
		}
		return ScanOptions{}, fmt.Errorf("parsing scan options: %w", err)
	}
	switch opts.OCRMode {
	case OCRModeAuto, OCRModeForce, OCRModeOff:
	default:
		return ScanOptions{}, fmt.Errorf("parsing scan options: unknown ocr_mode %q", opts.OCRMode)
	}
	return opts, nil
}
