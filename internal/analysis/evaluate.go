package analysis

import (
	"context"
	"strings"

	"triagecore/internal/incidents"
)

const (
	nextMonitor   = "Monitor for recurrence"
	nextApplyFix  = "Apply suggested fix"
	nextApplyNext = "Apply the next suggested fix"
	concernErrors = "New logs still report errors"
)

// EvaluateAfterFix judges whether the latest fix worked. The reasoner is asked
// first when configured; any failure or unusable answer falls back to
// EvaluateFallback.
func (e *Engine) EvaluateAfterFix(ctx context.Context, inc incidents.Incident, newLogs string) Evaluation {
	if e.reasoner != nil {
		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		answer, err := e.reason(callCtx, evaluationPrompt(inc, newLogs))
		cancel()
		if err == nil {
			if ev, ok := parseEvaluation(answer); ok {
				return ev
			}
			e.logger.Warn("evaluation answer not structured", "collaborator", e.reasoner.Name(), "incident_id", inc.ID)
		}
	}
	return EvaluateFallback(e.Signatures(), inc, newLogs)
}

// EvaluateFallback is the deterministic follow-up policy. It depends only on
// its arguments.
//
// Fresh logs without any error indicator mean the fix worked. Fresh logs that
// still show errors mean it did not. Without fresh logs the verdict rests on
// whether any fix has been attempted at all.
func EvaluateFallback(t *SignatureTable, inc incidents.Incident, newLogs string) Evaluation {
	attempted := len(inc.AttemptedFixes) > 0
	if strings.TrimSpace(newLogs) != "" {
		if !t.HasErrorIndicator(newLogs) {
			return resolvedEvaluation()
		}
		concerns := []string{concernErrors}
		if _, out, matched := t.Match(newLogs); matched {
			concerns = unionStrings(concerns, out.Causes[0])
		}
		next := nextApplyNext
		if !attempted {
			next = nextApplyFix
		}
		return Evaluation{
			LikelyResolved:    false,
			RemainingConcerns: concerns,
			NextSteps:         next,
			Recommendation:    RecommendInvestigate,
		}
	}
	if attempted {
		return resolvedEvaluation()
	}
	return Evaluation{
		LikelyResolved:    false,
		RemainingConcerns: []string{},
		NextSteps:         nextApplyFix,
		Recommendation:    RecommendInvestigate,
	}
}

func resolvedEvaluation() Evaluation {
	return Evaluation{
		LikelyResolved:    true,
		RemainingConcerns: []string{},
		NextSteps:         nextMonitor,
		Recommendation:    RecommendResolve,
	}
}
