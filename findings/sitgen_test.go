package findings

import (
	"strings"
	"testing"

	"github.com/dlptools/dlpscan/pii"
)

func TestGenerateSITsDraftsOnePerHit(t *testing.T) {
	text := "payroll record ssn 123-45-6789 salary data"
	hits := []pii.Hit{{EntityType: pii.EntitySSN, Start: 19, End: 30, Score: 0.85}}

	defs := GenerateSITs(hits, text, "payroll.txt", 0)
	if len(defs) != 1 {
		t.Fatalf("got %d definitions, want 1", len(defs))
	}
	d := defs[0]
	if d.ID == "" {
		t.Error("definition id is empty")
	}
	if d.Name != "SSN_custom" {
		t.Errorf("name = %q", d.Name)
	}
	if d.PrimaryType != "regex" || d.PrimaryValue != `\b\d{3}-\d{2}-\d{4}\b` {
		t.Errorf("primary = %q %q", d.PrimaryType, d.PrimaryValue)
	}
	if d.SupportingType != "keyword" || d.SupportingValue == "" {
		t.Errorf("supporting = %q %q", d.SupportingType, d.SupportingValue)
	}
	if !strings.Contains(d.SupportingValue, "payroll") {
		t.Errorf("supporting keywords %q missing window word", d.SupportingValue)
	}
	if d.Proximity != DefaultWindow {
		t.Errorf("proximity = %d, want %d", d.Proximity, DefaultWindow)
	}
	if d.Confidence != "high" {
		t.Errorf("confidence = %q, want high", d.Confidence)
	}
	if d.Source != "payroll.txt" {
		t.Errorf("source = %q", d.Source)
	}
}

func TestScoreConfidenceBuckets(t *testing.T) {
	cases := []struct {
		score float64
		want  string
	}{
		{0.95, "high"},
		{0.85, "high"},
		{0.7, "medium"},
		{0.6, "medium"},
		{0.4, "low"},
	}
	for _, c := range cases {
		if got := scoreConfidence(c.score); got != c.want {
			t.Errorf("scoreConfidence(%v) = %q, want %q", c.score, got, c.want)
		}
	}
}
