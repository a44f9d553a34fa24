package findings

import (
	"strings"

	"github.com/google/uuid"

	"github.com/dlptools/dlpscan/pii"
)

// Definition is a draft Sensitive Information Type derived from a detected
// entity: a curated or generalized primary regex plus the strongest context
// keywords, ready to be reviewed and promoted to a stored SIT version.
type Definition struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	PrimaryType     string `json:"primary_type"`
	PrimaryValue    string `json:"primary_value"`
	SupportingType  string `json:"supporting_type,omitempty"`
	SupportingValue string `json:"supporting_value,omitempty"`
	Proximity       int    `json:"proximity,omitempty"`
	Confidence      string `json:"confidence"`
	EntityType      string `json:"entity_type"`
	Source          string `json:"source,omitempty"`
}

// GenerateSITs builds one draft definition per hit. source labels where the
// sample text came from (a file name, typically). window <= 0 selects
// DefaultWindow.
func GenerateSITs(hits []pii.Hit, text, source string, window int) []Definition {
	if window <= 0 {
		window = DefaultWindow
	}
	defs := make([]Definition, 0, len(hits))
	for _, h := range hits {
		defs = append(defs, buildDefinition(h, text, source, window))
	}
	return defs
}

func buildDefinition(hit pii.Hit, text, source string, window int) Definition {
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

	keywords := supportingKeywords(raw, entityText, 3)
	supportingValue := strings.Join(keywords, ",")

	def := Definition{
		ID:           uuid.NewString(),
		Name:         hit.EntityType + "_custom",
		PrimaryType:  "regex",
		PrimaryValue: InferRegex(hit.EntityType, entityText),
		Confidence:   scoreConfidence(hit.Score),
		EntityType:   hit.EntityType,
		Source:       source,
	}
	if supportingValue != "" {
		def.SupportingType = "keyword"
		def.SupportingValue = supportingValue
		def.Proximity = window
	}
	return def
}

// scoreConfidence buckets a recognizer score into the confidence vocabulary
// used by rulepack exports.
func scoreConfidence(score float64) string {
	switch {
	case score >= 0.85:
		return "high"
	case score >= 0.6:
		return "medium"
	default:
		return "low"
	}
}
