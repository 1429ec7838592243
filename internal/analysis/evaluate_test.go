package analysis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"triagecore/internal/incidents"
)

func withFixes(n int) incidents.Incident {
	inc := incidents.Incident{ID: 1, Logs: oomLogs, AttemptedFixes: []incidents.AttemptedFix{}}
	for i := 0; i < n; i++ {
		inc.AttemptedFixes = append(inc.AttemptedFixes, incidents.AttemptedFix{Fix: "increased memory limit to 1Gi"})
	}
	return inc
}

func TestEvaluateFallback(t *testing.T) {
	tbl := DefaultSignatures()
	tests := []struct {
		name    string
		fixes   int
		newLogs string
		want    Evaluation
	}{
		{
			name:    "clean logs after fix",
			fixes:   1,
			newLogs: "pod running normally",
			want: Evaluation{LikelyResolved: true, RemainingConcerns: []string{},
				NextSteps: "Monitor for recurrence", Recommendation: RecommendResolve},
		},
		{
			name:    "clean logs without fixes",
			fixes:   0,
			newLogs: "pod running normally",
			want: Evaluation{LikelyResolved: true, RemainingConcerns: []string{},
				NextSteps: "Monitor for recurrence", Recommendation: RecommendResolve},
		},
		{
			name:    "errors persist after fix",
			fixes:   1,
			newLogs: "OOMKilled again",
			want: Evaluation{LikelyResolved: false,
				RemainingConcerns: []string{"New logs still report errors", "Memory limit exceeded"},
				NextSteps:         "Apply the next suggested fix", Recommendation: RecommendInvestigate},
		},
		{
			name:    "generic error without signature",
			fixes:   2,
			newLogs: "fatal: unexpected state",
			want: Evaluation{LikelyResolved: false,
				RemainingConcerns: []string{"New logs still report errors"},
				NextSteps:         "Apply the next suggested fix", Recommendation: RecommendInvestigate},
		},
		{
			name:  "no logs after fix",
			fixes: 1,
			want: Evaluation{LikelyResolved: true, RemainingConcerns: []string{},
				NextSteps: "Monitor for recurrence", Recommendation: RecommendResolve},
		},
		{
			name:    "no logs and no fixes",
			fixes:   0,
			newLogs: "  ",
			want: Evaluation{LikelyResolved: false, RemainingConcerns: []string{},
				NextSteps: "Apply suggested fix", Recommendation: RecommendInvestigate},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inc := withFixes(tt.fixes)
			got := EvaluateFallback(tbl, inc, tt.newLogs)
			assert.Equal(t, tt.want, got)
			// Same inputs, same verdict.
			assert.Equal(t, got, EvaluateFallback(tbl, inc, tt.newLogs))
		})
	}
}

func TestEvaluateAfterFixUsesReasoner(t *testing.T) {
	r := &fakeReasoner{answer: `{"likely_resolved": false, "remaining_concerns": ["memory still climbing"], "next_steps": "profile heap", "recommendation": "continue_investigating"}`}
	e := NewEngine(Options{Reasoner: r})

	ev := e.EvaluateAfterFix(context.Background(), withFixes(1), "pod running normally")
	assert.Equal(t, RecommendInvestigate, ev.Recommendation)
	assert.Equal(t, []string{"memory still climbing"}, ev.RemainingConcerns)
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestEvaluateAfterFixFallsBack(t *testing.T) {
	for name, r := range map[string]*fakeReasoner{
		"unstructured": {answer: "looks fine to me"},
		"failure":      {err: context.DeadlineExceeded},
	} {
		t.Run(name, func(t *testing.T) {
			e := NewEngine(Options{Reasoner: r})
			ev := e.EvaluateAfterFix(context.Background(), withFixes(1), "pod running normally")
			assert.Equal(t, resolvedEvaluation(), ev)
		})
	}
}
