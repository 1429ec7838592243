package analysis

import (
	"encoding/json"
	"regexp"
	"strings"
)

// flatObject finds a JSON object with no nested braces.
var flatObject = regexp.MustCompile(`(?s)\{[^{}]*\}`)

// maxExternalContext bounds how much free text from an external answer is kept.
const maxExternalContext = 500

// Parsed is the result of interpreting a free-text reasoning answer. It is
// either a ParsedDiagnosis or an UnparsedFallback.
type Parsed interface {
	// Merge folds the answer into base and always yields a usable diagnosis.
	Merge(base Diagnosis) Diagnosis
	isParsed()
}

// ParsedDiagnosis is an answer that carried the expected structured fields.
type ParsedDiagnosis struct {
	Causes      []string
	Fix         string
	Confidence  Confidence
	Explanation string
}

// Merge prefers each well-formed field of the answer over base.
func (p ParsedDiagnosis) Merge(base Diagnosis) Diagnosis {
	d := base
	d.SuspectedRootCauses = append([]string(nil), p.Causes...)
	d.SuggestedFix = p.Fix
	if p.Confidence.IsValid() {
		d.Confidence = p.Confidence
	}
	if p.Explanation != "" {
		d.Explanation = p.Explanation
	}
	if d.WebSources == nil {
		d.WebSources = []WebSource{}
	}
	return d
}

func (ParsedDiagnosis) isParsed() {}

// UnparsedFallback keeps the raw answer when no structured object was found.
type UnparsedFallback struct {
	Raw string
}

// Merge keeps base and appends the raw answer to its explanation.
func (u UnparsedFallback) Merge(base Diagnosis) Diagnosis {
	d := base
	if raw := strings.TrimSpace(u.Raw); raw != "" {
		d.Explanation = joinSentences(d.Explanation, "External analysis: "+truncate(raw, maxExternalContext))
	}
	if d.WebSources == nil {
		d.WebSources = []WebSource{}
	}
	return d
}

func (UnparsedFallback) isParsed() {}

type wireDiagnosis struct {
	Causes      []string `json:"suspected_root_causes"`
	Fix         string   `json:"suggested_fix"`
	Confidence  string   `json:"confidence"`
	Explanation string   `json:"explanation"`
}

// ParseResponse looks for a single flat JSON object in answer. The object is
// adopted only if it has at least one root cause and a suggested fix; an
// unrecognised confidence is left empty for the caller to fill.
func ParseResponse(answer string) Parsed {
	raw := flatObject.FindString(answer)
	if raw == "" {
		return UnparsedFallback{Raw: answer}
	}
	var w wireDiagnosis
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return UnparsedFallback{Raw: answer}
	}
	causes := unionStrings(nil, w.Causes...)
	fix := strings.TrimSpace(w.Fix)
	if len(causes) == 0 || fix == "" {
		return UnparsedFallback{Raw: answer}
	}
	conf, _ := ParseConfidence(w.Confidence)
	if !conf.IsValid() {
		conf = ""
	}
	return ParsedDiagnosis{
		Causes:      causes,
		Fix:         fix,
		Confidence:  conf,
		Explanation: strings.TrimSpace(w.Explanation),
	}
}

type wireEvaluation struct {
	LikelyResolved    *bool    `json:"likely_resolved"`
	RemainingConcerns []string `json:"remaining_concerns"`
	NextSteps         string   `json:"next_steps"`
	Recommendation    string   `json:"recommendation"`
}

// parseEvaluation extracts an Evaluation from a reasoning answer. ok is false
// unless both the verdict and a valid recommendation are present.
func parseEvaluation(answer string) (Evaluation, bool) {
	raw := flatObject.FindString(answer)
	if raw == "" {
		return Evaluation{}, false
	}
	var w wireEvaluation
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return Evaluation{}, false
	}
	rec := Recommendation(strings.ToLower(strings.TrimSpace(w.Recommendation)))
	if w.LikelyResolved == nil || !rec.IsValid() {
		return Evaluation{}, false
	}
	return Evaluation{
		LikelyResolved:    *w.LikelyResolved,
		RemainingConcerns: unionStrings(nil, w.RemainingConcerns...),
		NextSteps:         strings.TrimSpace(w.NextSteps),
		Recommendation:    rec,
	}, true
}
