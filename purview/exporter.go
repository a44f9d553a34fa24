// Package purview serializes rulepacks into Microsoft Purview rule-package
// XML documents.
package purview

import (
	"encoding/xml"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/dlptools/dlpscan/store"
)

// Namespace is the default namespace of exported documents.
const Namespace = "https://schemas.microsoft.com/office/2011/mce"

const xmlHeader = "<?xml version='1.0' encoding='utf-8'?>\n"

// ErrValidation aborts an export; no partial XML is produced. The message
// names the offending version id.
var ErrValidation = errors.New("purview: export validation failed")

type rulePackageXML struct {
	XMLName     xml.Name    `xml:"RulePackage"`
	Xmlns       string      `xml:"xmlns,attr"`
	ID          string      `xml:"id,attr"`
	Name        string      `xml:"name,attr"`
	Version     string      `xml:"version,attr"`
	Description string      `xml:"description,attr,omitempty"`
	Publisher   string      `xml:"publisher,attr,omitempty"`
	Locale      string      `xml:"locale,attr,omitempty"`
	Entities    []entityXML `xml:"Rules>Entity"`
}

type entityXML struct {
	ID                    string         `xml:"id,attr"`
	Name                  string         `xml:"name,attr"`
	Description           string         `xml:"description,attr,omitempty"`
	RecommendedConfidence string         `xml:"recommendedConfidence,attr"`
	Pattern               patternXML     `xml:"Pattern"`
	Supporting            *supportingXML `xml:"SupportingElements,omitempty"`
}

type patternXML struct {
	Type  string `xml:"type,attr"`
	Value string `xml:"value,attr"`
}

type supportingXML struct {
	Mode     string       `xml:"mode,attr"`
	MinN     string       `xml:"minN,attr,omitempty"`
	Elements []elementXML `xml:"SupportingElement"`
}

type elementXML struct {
	Type  string `xml:"type,attr"`
	Value string `xml:"value,attr"`
	Group string `xml:"group,attr"`
}

// BuildRulePackage validates the selected versions and serializes them as a
// rule-package document. lists resolves keyword_list supporting items.
// Output is byte-deterministic for identical inputs.
func BuildRulePackage(rp *store.Rulepack, versions []store.SITVersion, lists map[string]*store.KeywordList) ([]byte, error) {
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: rulepack has no selected versions", ErrValidation)
	}

	sorted := make([]store.SITVersion, len(versions))
	copy(sorted, versions)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.SITName != b.SITName {
			return a.SITName < b.SITName
		}
		if a.VersionNumber != b.VersionNumber {
			return a.VersionNumber < b.VersionNumber
		}
		return a.ID < b.ID
	})

	doc := rulePackageXML{
		Xmlns:       Namespace,
		ID:          rp.ID,
		Name:        rp.Name,
		Version:     rp.Version,
		Description: rp.Description,
		Publisher:   rp.Publisher,
		Locale:      rp.Locale,
	}

	for _, v := range sorted {
		entity, err := buildEntity(v, lists)
		if err != nil {
			return nil, err
		}
		doc.Entities = append(doc.Entities, entity)
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding rule package: %w", err)
	}
	return append([]byte(xmlHeader), body...), nil
}

func buildEntity(v store.SITVersion, lists map[string]*store.KeywordList) (entityXML, error) {
	if err := validateVersion(v, lists); err != nil {
		return entityXML{}, err
	}

	confidence := v.Confidence
	if confidence == "" {
		confidence = "medium"
	}
	entity := entityXML{
		ID:                    v.ID,
		Name:                  v.SITName,
		Description:           v.SITDescription,
		RecommendedConfidence: confidence,
		Pattern: patternXML{
			Type:  patternType(v.Primary.ElementType),
			Value: v.Primary.Value,
		},
	}

	if len(v.Groups) == 0 {
		return entity, nil
	}

	sup := &supportingXML{Mode: v.Logic.Mode}
	if v.Logic.Mode == store.LogicMinN && v.Logic.MinN != nil {
		sup.MinN = strconv.Itoa(*v.Logic.MinN)
	}
	for _, g := range v.Groups {
		for _, item := range g.Items {
			value := item.Value
			if item.ItemType == store.ElementKeywordList {
				value = strings.Join(lists[item.KeywordListID].Items, ",")
			}
			sup.Elements = append(sup.Elements, elementXML{
				Type:  patternType(item.ItemType),
				Value: value,
				Group: g.Name,
			})
		}
	}
	entity.Supporting = sup
	return entity, nil
}

func validateVersion(v store.SITVersion, lists map[string]*store.KeywordList) error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: version %s: %s", ErrValidation, v.ID, fmt.Sprintf(format, args...))
	}

	switch v.Primary.ElementType {
	case store.ElementRegex:
		if _, err := regexp.Compile(v.Primary.Value); err != nil {
			return fail("primary regex does not compile: %v", err)
		}
	case store.ElementKeyword:
		if strings.TrimSpace(v.Primary.Value) == "" {
			return fail("primary keyword is empty")
		}
	default:
		return fail("missing or unknown primary element type %q", v.Primary.ElementType)
	}

	switch v.Logic.Mode {
	case store.LogicAny, store.LogicAll:
	case store.LogicMinN:
		if v.Logic.MinN == nil || *v.Logic.MinN < 1 {
			return fail("MIN_N logic requires min_n >= 1")
		}
	default:
		return fail("unknown supporting logic mode %q", v.Logic.Mode)
	}

	for _, g := range v.Groups {
		if len(g.Items) == 0 {
			return fail("supporting group %q has no items", g.Name)
		}
		for _, item := range g.Items {
			switch item.ItemType {
			case store.ElementRegex:
				if _, err := regexp.Compile(item.Value); err != nil {
					return fail("supporting regex in group %q does not compile: %v", g.Name, err)
				}
			case store.ElementKeyword:
				if strings.TrimSpace(item.Value) == "" {
					return fail("supporting keyword in group %q is empty", g.Name)
				}
			case store.ElementKeywordList:
				kl := lists[item.KeywordListID]
				if kl == nil {
					return fail("supporting item in group %q references unknown keyword list %q", g.Name, item.KeywordListID)
				}
				if len(kl.Items) == 0 {
					return fail("keyword list %q is empty", kl.Name)
				}
				for _, entry := range kl.Items {
					if strings.TrimSpace(entry) == "" {
						return fail("keyword list %q contains an empty entry", kl.Name)
					}
				}
			default:
				return fail("unknown supporting item type %q in group %q", item.ItemType, g.Name)
			}
		}
	}
	return nil
}

func patternType(elementType string) string {
	if elementType == store.ElementRegex {
		return "Regex"
	}
	return "Keyword"
}
