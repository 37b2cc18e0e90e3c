package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/xab-mack/solguard/internal/model"
)

// Baseline is a set of accepted finding fingerprints.
type Baseline struct {
	GeneratedAt  time.Time       `json:"generatedAt"`
	Fingerprints map[string]bool `json:"fingerprints"`
}

// Contains reports whether fp is in the baseline.
func (b Baseline) Contains(fp string) bool { return fp != "" && b.Fingerprints[fp] }

// LoadBaseline reads a baseline file: either a JSON array of fingerprints or
// the object written by WriteBaseline. An empty path yields an empty baseline.
func LoadBaseline(path string) (Baseline, error) {
	var b Baseline
	if path == "" {
		return b, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return b, fmt.Errorf("read baseline: %w", err)
	}
	var fp []string
	if err := json.Unmarshal(data, &fp); err == nil {
		b.Fingerprints = make(map[string]bool, len(fp))
		for _, f := range fp {
			b.Fingerprints[f] = true
		}
		return b, nil
	}
	if err := json.Unmarshal(data, &b); err != nil {
		return Baseline{}, fmt.Errorf("parse baseline %s: %w", path, err)
	}
	if b.Fingerprints == nil {
		b.Fingerprints = map[string]bool{}
	}
	return b, nil
}

func filterByBaseline(findings []model.Finding, b Baseline) ([]model.Finding, int) {
	if len(b.Fingerprints) == 0 {
		return findings, 0
	}
	out := findings[:0:0]
	for _, f := range findings {
		if b.Contains(f.Fingerprint) {
			continue
		}
		out = append(out, f)
	}
	return out, len(findings) - len(out)
}

// WriteBaseline stores the fingerprints of findings as a sorted JSON array.
func WriteBaseline(path string, findings []model.Finding) error {
	if path == "" {
		return nil
	}
	seen := map[string]bool{}
	arr := []string{}
	for _, f := range findings {
		if f.Fingerprint != "" && !seen[f.Fingerprint] {
			seen[f.Fingerprint] = true
			arr = append(arr, f.Fingerprint)
		}
	}
	sort.Strings(arr)
	data, err := json.MarshalIndent(arr, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
