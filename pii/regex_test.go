package pii

import (
	"context"
	"testing"
)

func TestAnalyzeTextDetectsKnownEntities(t *testing.T) {
	a := NewRegexAnalyzer(nil)
	text := "Contact jane.doe@example.com or call after checking SSN 123-45-6789."

	hits := a.AnalyzeText(context.Background(), text, Options{})
	if len(hits) == 0 {
		t.Fatal("expected hits, got none")
	}

	var gotEmail, gotSSN bool
	for _, h := range hits {
		switch h.EntityType {
		case EntityEmail:
			gotEmail = true
			if got := text[h.Start:h.End]; got != "jane.doe@example.com" {
				t.Errorf("email span = %q", got)
			}
		case EntitySSN:
			gotSSN = true
			if got := text[h.Start:h.End]; got != "123-45-6789" {
				t.Errorf("ssn span = %q", got)
			}
		}
	}
	if !gotEmail || !gotSSN {
		t.Errorf("missing entity types: email=%v ssn=%v", gotEmail, gotSSN)
	}
}

func TestAnalyzeTextHitsSortedByOffset(t *testing.T) {
	a := NewRegexAnalyzer(nil)
	text := "ssn 123-45-6789 then mail bob@corp.io and ip 10.0.0.1"

	hits := a.AnalyzeText(context.Background(), text, Options{})
	for i := 1; i < len(hits); i++ {
		if hits[i].Start < hits[i-1].Start {
			t.Fatalf("hits out of order at %d: %+v", i, hits)
		}
	}
}

func TestAnalyzeTextAllowList(t *testing.T) {
	a := NewRegexAnalyzer(nil)
	text := "mail bob@corp.io ssn 123-45-6789"

	hits := a.AnalyzeText(context.Background(), text, Options{Entities: []string{EntitySSN}})
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1: %+v", len(hits), hits)
	}
	if hits[0].EntityType != EntitySSN {
		t.Errorf("entity = %q, want %q", hits[0].EntityType, EntitySSN)
	}
}

func TestAnalyzeTextScoreThreshold(t *testing.T) {
	a := NewRegexAnalyzer(nil)
	text := "call +1 (555) 123-4567 or mail bob@corp.io"

	threshold := 0.9
	hits := a.AnalyzeText(context.Background(), text, Options{ScoreThreshold: &threshold})
	for _, h := range hits {
		if h.Score < threshold {
			t.Errorf("hit below threshold: %+v", h)
		}
		if h.EntityType == EntityPhone {
			t.Errorf("low-confidence phone hit survived threshold: %+v", h)
		}
	}
}

func TestAnalyzeTextResolvesOverlaps(t *testing.T) {
	a := NewRegexAnalyzer(nil)
	// An SSN also matches the looser phone pattern over the same span; only
	// the higher-scoring recognizer may report it.
	text := "ssn on file 987-65-4321 end"

	hits := a.AnalyzeText(context.Background(), text, Options{})
	if len(hits) != 1 {
		t.Fatalf("hits = %+v, want one SSN", hits)
	}
	if hits[0].EntityType != EntitySSN || hits[0].Score != 0.85 {
		t.Errorf("hit = %+v", hits[0])
	}

	// Non-overlapping entities all survive.
	hits = a.AnalyzeText(context.Background(), "ssn 123-45-6789 mail bob@corp.io", Options{})
	if len(hits) != 2 {
		t.Fatalf("hits = %+v, want SSN and EMAIL_ADDRESS", hits)
	}
}

func TestAnalyzeImageWithoutOCR(t *testing.T) {
	a := NewRegexAnalyzer(nil)
	text, hits, err := a.AnalyzeImage(context.Background(), "/no/such.png", Options{})
	if err != nil {
		t.Fatalf("AnalyzeImage: %v", err)
	}
	if text != "" || hits != nil {
		t.Errorf("expected empty result without OCR, got %q / %+v", text, hits)
	}
}

type fakeOCR struct{ text string }

func (f fakeOCR) Recognize(context.Context, string) (string, error) { return f.text, nil }

func TestAnalyzeImageWithOCR(t *testing.T) {
	a := NewRegexAnalyzer(fakeOCR{text: "found ssn 987-65-4321 in scan"})
	text, hits, err := a.AnalyzeImage(context.Background(), "page_1.png", Options{})
	if err != nil {
		t.Fatalf("AnalyzeImage: %v", err)
	}
	if text == "" {
		t.Fatal("expected OCR text")
	}
	if len(hits) != 1 || hits[0].EntityType != EntitySSN {
		t.Fatalf("hits = %+v, want one SSN", hits)
	}
}
