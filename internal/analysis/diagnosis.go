package analysis

import "strings"

type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

func (c Confidence) IsValid() bool {
	switch c {
	case ConfidenceLow, ConfidenceMedium, ConfidenceHigh:
		return true
	}
	return false
}

// ParseConfidence accepts any casing and surrounding whitespace.
func ParseConfidence(s string) (Confidence, bool) {
	c := Confidence(strings.ToLower(strings.TrimSpace(s)))
	return c, c.IsValid()
}

type WebSource struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

type Diagnosis struct {
	SuspectedRootCauses []string    `json:"suspected_root_causes"`
	SuggestedFix        string      `json:"suggested_fix"`
	Confidence          Confidence  `json:"confidence"`
	Explanation         string      `json:"explanation"`
	WebSources          []WebSource `json:"web_sources"`
	PoweredBy           string      `json:"powered_by"`
}

type Recommendation string

const (
	RecommendResolve     Recommendation = "resolve"
	RecommendInvestigate Recommendation = "continue_investigating"
)

func (r Recommendation) IsValid() bool {
	return r == RecommendResolve || r == RecommendInvestigate
}

// Evaluation is the verdict after a fix has been applied.
type Evaluation struct {
	LikelyResolved    bool           `json:"likely_resolved"`
	RemainingConcerns []string       `json:"remaining_concerns"`
	NextSteps         string         `json:"next_steps"`
	Recommendation    Recommendation `json:"recommendation"`
}

// unionStrings appends the members of extra not already present in base,
// comparing case-insensitively and keeping first-seen order.
func unionStrings(base []string, extra ...string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, group := range [][]string{base, extra} {
		for _, s := range group {
			s = strings.TrimSpace(s)
			key := strings.ToLower(s)
			if s == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
