package ingest

import (
	"errors"
	"testing"
)

func TestParseScanOptionsDefaults(t *testing.T) {
	for _, raw := range [][]byte{nil, []byte(""), []byte("  ")} {
		opts, err := ParseScanOptions(raw)
		if err != nil {
			t.Fatalf("ParseScanOptions(%q): %v", raw, err)
		}
		if opts.Language != "en" || opts.OCRMode != OCRModeAuto {
			t.Errorf("options = %+v, want defaults", opts)
		}
		if opts.Entities != nil || opts.ScoreThreshold != nil {
			t.Errorf("filters should default to nil: %+v", opts)
		}
		if !opts.IncludeHeaders || !opts.ParseHTML || !opts.IncludeAttachments || !opts.IncludeInlineImages {
			t.Errorf("include flags should default true: %+v", opts)
		}
	}
}

func TestParseScanOptionsOverrides(t *testing.T) {
	raw := []byte(`{"language":"de","ocr_mode":"off","include_attachments":false,"score_threshold":0.5}`)
	opts, err := ParseScanOptions(raw)
	if err != nil {
		t.Fatalf("ParseScanOptions: %v", err)
	}
	if opts.Language != "de" || opts.OCRMode != OCRModeOff || opts.IncludeAttachments {
		t.Errorf("options = %+v", opts)
	}
	if opts.ScoreThreshold == nil || *opts.ScoreThreshold != 0.5 {
		t.Errorf("score threshold = %v", opts.ScoreThreshold)
	}
	// Untouched fields keep their defaults.
	if !opts.IncludeHeaders || !opts.ParseHTML || !opts.IncludeInlineImages {
		t.Errorf("defaults lost: %+v", opts)
	}
}

func TestParseScanOptionsRejectsUnknownKeys(t *testing.T) {
	_, err := ParseScanOptions([]byte(`{"turbo":true}`))
	if !errors.Is(err, ErrUnknownOption) {
		t.Fatalf("error = %v, want ErrUnknownOption", err)
	}
}

func TestParseScanOptionsRejectsBadOCRMode(t *testing.T) {
	_, err := ParseScanOptions([]byte(`{"ocr_mode":"sometimes"}`))
	if err == nil {
		t.Fatal("expected error for bad ocr_mode")
	}
	if errors.Is(err, ErrUnknownOption) {
		t.Fatalf("bad value misreported as unknown key: %v", err)
	}
}
