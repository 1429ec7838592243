package analysis

import (
	"fmt"
	"strings"

	"triagecore/internal/incidents"
)

const (
	maxPrecedentLogChars = 500
	maxQueryChars        = 200
)

func analysisPrompt(in Input) string {
	var b strings.Builder
	b.WriteString("You are an autonomous incident analyst. Analyze the following system incident and provide actionable insights.\n\n")
	b.WriteString("## Current Incident:\n### Logs:\n")
	b.WriteString(in.Logs)
	b.WriteString("\n\n### Metrics:\n")
	if strings.TrimSpace(in.Metrics) == "" {
		b.WriteString("No additional metrics provided")
	} else {
		b.WriteString(in.Metrics)
	}
	b.WriteString("\n")

	if len(in.Similar) > 0 {
		b.WriteString("\n## Similar Past Incidents:\n")
		for i, p := range in.Similar {
			fmt.Fprintf(&b, "\n### Past Incident %d:\n", i+1)
			fmt.Fprintf(&b, "- Logs: %s\n", truncate(p.Logs, maxPrecedentLogChars))
			fmt.Fprintf(&b, "- Root Causes Found: %s\n", joinOr(p.SuspectedRootCauses, "Unknown"))
			fmt.Fprintf(&b, "- Resolution: %s\n", orDefault(p.ResolutionNotes, "N/A"))
			fmt.Fprintf(&b, "- Fixes Applied: %s\n", joinOr(fixNames(p.AttemptedFixes), "none"))
		}
	}

	if len(in.AttemptedFixes) > 0 {
		b.WriteString("\n## Already Attempted Fixes (did not fully resolve):\n")
		for _, f := range in.AttemptedFixes {
			fmt.Fprintf(&b, "- %s\n", f.Fix)
		}
	}

	b.WriteString(`
Based on your analysis, provide:
1. Suspected Root Causes: the most likely root causes (be specific)
2. Suggested Fix: ONE specific, actionable fix to try next
3. Confidence Level: low, medium or high
4. Explanation: brief explanation of your reasoning

Format your response as a single flat JSON object:
{"suspected_root_causes": ["cause1", "cause2"], "suggested_fix": "specific action to take", "confidence": "medium", "explanation": "your reasoning here"}
`)
	return b.String()
}

func evaluationPrompt(inc incidents.Incident, newLogs string) string {
	var b strings.Builder
	b.WriteString("An incident fix was just applied. Evaluate the current state.\n\n")
	b.WriteString("## Original Logs:\n")
	b.WriteString(inc.Logs)
	b.WriteString("\n\n## Attempted Fixes:\n")
	for _, f := range inc.AttemptedFixes {
		fmt.Fprintf(&b, "- %s\n", f.Fix)
	}
	b.WriteString("\n## Current Logs (after fix):\n")
	b.WriteString(orDefault(newLogs, "No new logs provided"))
	b.WriteString(`

Evaluate:
1. Did the fix likely resolve the issue?
2. Are there any remaining concerns?
3. What should be done next?

Respond with a single flat JSON object:
{"likely_resolved": true, "remaining_concerns": ["concern1"], "next_steps": "recommended action", "recommendation": "resolve or continue_investigating"}
`)
	return b.String()
}

// searchQuery condenses the logs into a web query: the diagnosed cause plus
// the first non-empty log line.
func searchQuery(logs string, d Diagnosis) string {
	line := ""
	for _, l := range strings.Split(logs, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			line = l
			break
		}
	}
	parts := []string{}
	if len(d.SuspectedRootCauses) > 0 {
		parts = append(parts, d.SuspectedRootCauses[0])
	}
	if line != "" {
		parts = append(parts, line)
	}
	return truncate(strings.Join(parts, " "), maxQueryChars)
}

func fixNames(fixes []incidents.AttemptedFix) []string {
	out := make([]string, 0, len(fixes))
	for _, f := range fixes {
		out = append(out, f.Fix)
	}
	return out
}

func joinOr(items []string, def string) string {
	if len(items) == 0 {
		return def
	}
	return strings.Join(items, ", ")
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
