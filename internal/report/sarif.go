package report

import (
	"encoding/json"
	"sort"

	"github.com/xab-mack/solguard/internal/model"
)

type sarif struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}
type sarifDriver struct {
	Name           string      `json:"name"`
	InformationURI string      `json:"informationUri,omitempty"`
	Rules          []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string            `json:"id"`
	ShortDescription sarifMessage      `json:"shortDescription"`
	FullDescription  sarifMessage      `json:"fullDescription"`
	Help             sarifMessage      `json:"help"`
	Properties       map[string]string `json:"properties,omitempty"`
}

type sarifResult struct {
	RuleID              string            `json:"ruleId"`
	Level               string            `json:"level"`
	Message             sarifMessage      `json:"message"`
	Locations           []sarifLoc        `json:"locations"`
	PartialFingerprints map[string]string `json:"partialFingerprints,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}
type sarifLoc struct {
	Physical sarifPhys `json:"physicalLocation"`
}
type sarifPhys struct {
	ArtifactLocation sarifArt    `json:"artifactLocation"`
	Region           sarifRegion `json:"region"`
}
type sarifArt struct {
	URI string `json:"uri"`
}
type sarifRegion struct {
	StartLine   int          `json:"startLine"`
	StartColumn int          `json:"startColumn"`
	EndLine     int          `json:"endLine"`
	EndColumn   int          `json:"endColumn"`
	Snippet     sarifMessage `json:"snippet"`
}

// Level maps a severity onto a SARIF result level.
func Level(s model.Severity) string {
	switch s {
	case model.SeverityMedium:
		return "warning"
	case model.SeverityHigh, model.SeverityCritical:
		return "error"
	}
	return "note"
}

// ToSARIF renders findings as a SARIF 2.1.0 log. Rule descriptors are taken
// from the findings themselves and listed in id order.
func ToSARIF(findings []model.Finding) ([]byte, error) {
	results := []sarifResult{}
	rules := map[string]sarifRule{}
	for _, f := range findings {
		if _, ok := rules[f.RuleID]; !ok {
			rules[f.RuleID] = sarifRule{
				ID:               f.RuleID,
				ShortDescription: sarifMessage{Text: f.Title},
				FullDescription:  sarifMessage{Text: f.Description},
				Help:             sarifMessage{Text: f.Remediation},
				Properties: map[string]string{
					"category":  string(f.Category),
					"severity":  string(f.Severity),
					"gasImpact": string(f.GasImpact),
				},
			}
		}
		text := f.Title
		if f.Evidence != "" {
			text += ": " + f.Evidence
		}
		results = append(results, sarifResult{
			RuleID:  f.RuleID,
			Level:   Level(f.Severity),
			Message: sarifMessage{Text: text},
			Locations: []sarifLoc{{Physical: sarifPhys{
				ArtifactLocation: sarifArt{URI: f.File},
				Region: sarifRegion{
					StartLine: f.Start.Line, StartColumn: f.Start.Column,
					EndLine: f.End.Line, EndColumn: f.End.Column,
					Snippet: sarifMessage{Text: f.Snippet},
				},
			}}},
			PartialFingerprints: map[string]string{"solguard/v1": f.Fingerprint},
		})
	}
	ids := make([]string, 0, len(rules))
	for id := range rules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	driver := sarifDriver{Name: "solguard", Rules: make([]sarifRule, 0, len(ids))}
	for _, id := range ids {
		driver.Rules = append(driver.Rules, rules[id])
	}
	s := sarif{
		Schema:  "https://json.schemastore.org/sarif-2.1.0.json",
		Version: "2.1.0",
		Runs:    []sarifRun{{Tool: sarifTool{Driver: driver}, Results: results}},
	}
	return json.MarshalIndent(s, "", "  ")
}
