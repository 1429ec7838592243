package analysis

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

//go:embed signatures.yaml
var defaultSignaturesYAML []byte

type SignatureSet struct {
	Signatures      []SignatureConfig `yaml:"signatures"`
	Fallback        Outcome           `yaml:"fallback"`
	ErrorIndicators []string          `yaml:"error_indicators"`
}

type SignatureConfig struct {
	Name       string     `yaml:"name"`
	Patterns   []string   `yaml:"patterns"`
	Causes     []string   `yaml:"causes"`
	Fix        string     `yaml:"fix"`
	Confidence Confidence `yaml:"confidence"`
}

// Outcome is what a signature contributes to a diagnosis.
type Outcome struct {
	Causes     []string   `yaml:"causes"`
	Fix        string     `yaml:"fix"`
	Confidence Confidence `yaml:"confidence"`
}

type signature struct {
	name     string
	patterns []*regexp.Regexp
	outcome  Outcome
}

// SignatureTable is a compiled, ordered signature set. It is immutable once
// built and safe for concurrent use.
type SignatureTable struct {
	signatures []signature
	fallback   Outcome
	indicators []*regexp.Regexp
}

// DefaultSignatures returns the table embedded in the binary.
func DefaultSignatures() *SignatureTable {
	t, err := ParseSignatures(defaultSignaturesYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded signature table: %v", err))
	}
	return t
}

func LoadSignatures(path string) (*SignatureTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	t, err := ParseSignatures(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

func ParseSignatures(data []byte) (*SignatureTable, error) {
	var set SignatureSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, err
	}
	return compile(set)
}

func compile(set SignatureSet) (*SignatureTable, error) {
	t := &SignatureTable{fallback: set.Fallback}
	if len(t.fallback.Causes) == 0 {
		t.fallback.Causes = []string{"Unknown error pattern"}
	}
	if t.fallback.Fix == "" {
		t.fallback.Fix = "Review full logs and correlate with recent changes"
	}
	if t.fallback.Confidence == "" {
		t.fallback.Confidence = ConfidenceLow
	}
	if !t.fallback.Confidence.IsValid() {
		return nil, fmt.Errorf("fallback: invalid confidence %q", t.fallback.Confidence)
	}

	for i, sc := range set.Signatures {
		if sc.Name == "" {
			sc.Name = fmt.Sprintf("signature_%d", i+1)
		}
		if len(sc.Patterns) == 0 || len(sc.Causes) == 0 || sc.Fix == "" {
			return nil, fmt.Errorf("signature %s: patterns, causes and fix are required", sc.Name)
		}
		if sc.Confidence == "" {
			sc.Confidence = ConfidenceMedium
		}
		if !sc.Confidence.IsValid() {
			return nil, fmt.Errorf("signature %s: invalid confidence %q", sc.Name, sc.Confidence)
		}
		sig := signature{
			name:    sc.Name,
			outcome: Outcome{Causes: sc.Causes, Fix: sc.Fix, Confidence: sc.Confidence},
		}
		for _, p := range sc.Patterns {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return nil, fmt.Errorf("signature %s: pattern %q: %w", sc.Name, p, err)
			}
			sig.patterns = append(sig.patterns, re)
		}
		t.signatures = append(t.signatures, sig)
	}

	for _, p := range set.ErrorIndicators {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("error indicator %q: %w", p, err)
		}
		t.indicators = append(t.indicators, re)
	}
	return t, nil
}

// Match returns the outcome of the first signature matching logs, or the
// fallback with matched=false.
func (t *SignatureTable) Match(logs string) (name string, out Outcome, matched bool) {
	for _, sig := range t.signatures {
		for _, re := range sig.patterns {
			if re.MatchString(logs) {
				return sig.name, sig.outcome.clone(), true
			}
		}
	}
	return "", t.fallback.clone(), false
}

// HasErrorIndicator reports whether logs still contain a generic failure marker.
func (t *SignatureTable) HasErrorIndicator(logs string) bool {
	for _, re := range t.indicators {
		if re.MatchString(logs) {
			return true
		}
	}
	return false
}

func (t *SignatureTable) Len() int { return len(t.signatures) }

func (o Outcome) clone() Outcome {
	o.Causes = append([]string(nil), o.Causes...)
	return o
}
