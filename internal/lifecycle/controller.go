// Package lifecycle drives incidents from submission through fixes to
// resolution, consulting the similarity retriever and analysis engine on the way.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"triagecore/internal/analysis"
	"triagecore/internal/events"
	"triagecore/internal/incidents"
	"triagecore/internal/metrics"
	"triagecore/internal/similarity"
)

const logsPreviewChars = 200

// Analyzer is the part of the analysis engine the controller depends on.
type Analyzer interface {
	Analyze(ctx context.Context, in analysis.Input) analysis.Diagnosis
	EvaluateAfterFix(ctx context.Context, inc incidents.Incident, newLogs string) analysis.Evaluation
}

// Finder looks up resolved precedents for a log excerpt.
type Finder interface {
	FindSimilar(ctx context.Context, logs string, topK int) ([]similarity.Match, error)
}

type Controller struct {
	Store    incidents.Store
	Similar  Finder
	Analyzer Analyzer
	Journal  events.Journal
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	// Clock stamps attempted fixes.
	Clock    incidents.Clock
}

func NewController(store incidents.Store, finder Finder, analyzer Analyzer, journal events.Journal, logger *slog.Logger, m *metrics.Metrics) *Controller {
	if journal == nil {
		journal = events.Discard{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Controller{
		Store:    store,
		Similar:  finder,
		Analyzer: analyzer,
		Journal:  journal,
		Logger:   logger,
		Metrics:  m,
		Clock:    func() time.Time { return time.Now().UTC() },
	}
}

func (c *Controller) WithClock(clock incidents.Clock) *Controller {
	c.Clock = clock
	return c
}

// SimilarIncident summarizes a resolved precedent for callers.
type SimilarIncident struct {
	ID          int64    `json:"id"`
	LogsPreview string   `json:"logs_preview"`
	Resolution  string   `json:"resolution"`
	RootCauses  []string `json:"root_causes"`
	Score       float64  `json:"score"`
}

type SubmitResult struct {
	Incident  incidents.Incident
	Diagnosis analysis.Diagnosis
	Similar   []SimilarIncident
}

type ActionResult struct {
	Incident       incidents.Incident
	Evaluation     analysis.Evaluation
	NextSuggestion *analysis.Diagnosis
}

type ResolveResult struct {
	Incident        incidents.Incident
	AlreadyResolved bool
}

// Submit opens a new incident for logs and diagnoses it against resolved
// precedents. The incident is persisted once, together with its diagnosis.
func (c *Controller) Submit(ctx context.Context, logs, metricsText string) (*SubmitResult, error) {
	matches, err := c.Similar.FindSimilar(ctx, logs, 0)
	if err != nil {
		return nil, fmt.Errorf("find similar incidents: %w", err)
	}
	c.Metrics.Matches(len(matches))

	diag := c.Analyzer.Analyze(ctx, analysis.Input{
		Logs:    logs,
		Metrics: metricsText,
		Similar: precedents(matches),
	})

	inc, err := c.Store.Create(ctx, logs, metricsText, diag.SuspectedRootCauses)
	if err != nil {
		return nil, fmt.Errorf("create incident: %w", err)
	}
	c.Metrics.Submitted()
	c.record(ctx, inc.ID, events.KindCreated, map[string]interface{}{"similar": matchIDs(matches)})
	c.record(ctx, inc.ID, events.KindDiagnosed, diagnosisDetail(diag))
	c.Logger.Info("incident submitted", "id", inc.ID, "confidence", diag.Confidence, "similar", len(matches))

	return &SubmitResult{
		Incident:  *inc,
		Diagnosis: diag,
		Similar:   summarize(matches),
	}, nil
}

// ApplyFix records a fix against an unresolved incident and evaluates it. A
// fresh diagnosis is produced only when the evaluation says to keep
// investigating; resolution itself is always a separate, explicit step. The
// fix, status change and any new root causes are committed in one update.
func (c *Controller) ApplyFix(ctx context.Context, id int64, fix, newLogs string) (*ActionResult, error) {
	inc, err := c.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inc.Status == incidents.StatusResolved {
		return nil, incidents.ErrAlreadyResolved
	}

	now := c.Clock()
	patch := incidents.Patch{
		AppendFix: &incidents.AttemptedFix{Fix: fix, AppliedAt: now},
		Status:    incidents.StatusInvestigating,
		IfVersion: inc.Version,
	}
	// Evaluate against the incident as it will look once the fix is recorded.
	pending := inc.Clone()
	if err := pending.Apply(patch, now); err != nil {
		return nil, err
	}

	eval := c.Analyzer.EvaluateAfterFix(ctx, pending, newLogs)
	var next *analysis.Diagnosis
	if eval.Recommendation == analysis.RecommendInvestigate {
		matches, err := c.Similar.FindSimilar(ctx, pending.Logs, 0)
		if err != nil {
			return nil, fmt.Errorf("find similar incidents: %w", err)
		}
		logs := newLogs
		if strings.TrimSpace(logs) == "" {
			logs = pending.Logs
		}
		d := c.Analyzer.Analyze(ctx, analysis.Input{
			Logs:           logs,
			Metrics:        pending.Metrics,
			Similar:        precedents(matches),
			AttemptedFixes: pending.AttemptedFixes,
		})
		next = &d
		patch.SuspectedRootCauses = d.SuspectedRootCauses
	}

	updated, err := c.Store.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	c.Metrics.FixApplied()
	c.record(ctx, id, events.KindFixApplied, map[string]interface{}{"fix": fix, "new_logs": newLogs != ""})
	c.record(ctx, id, events.KindEvaluated, map[string]interface{}{
		"likely_resolved": eval.LikelyResolved,
		"recommendation":  string(eval.Recommendation),
	})
	if next != nil {
		c.record(ctx, id, events.KindDiagnosed, diagnosisDetail(*next))
	}
	return &ActionResult{Incident: *updated, Evaluation: eval, NextSuggestion: next}, nil
}

// Resolve closes an incident. Resolving an already resolved incident succeeds
// without changing it.
func (c *Controller) Resolve(ctx context.Context, id int64, notes string) (*ResolveResult, error) {
	inc, err := c.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inc.Status == incidents.StatusResolved {
		return &ResolveResult{Incident: *inc, AlreadyResolved: true}, nil
	}

	updated, err := c.Store.Update(ctx, id, incidents.Patch{
		Status:          incidents.StatusResolved,
		ResolutionNotes: &notes,
	})
	if errors.Is(err, incidents.ErrAlreadyResolved) {
		// Lost a race with another resolver; report theirs.
		current, getErr := c.Store.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return &ResolveResult{Incident: *current, AlreadyResolved: true}, nil
	}
	if err != nil {
		return nil, err
	}
	c.Metrics.Resolved()
	c.record(ctx, id, events.KindResolved, map[string]interface{}{"notes": notes})
	c.Logger.Info("incident resolved", "id", id, "fixes", len(updated.AttemptedFixes))
	return &ResolveResult{Incident: *updated}, nil
}

func (c *Controller) List(ctx context.Context) ([]incidents.Incident, error) {
	return c.Store.LoadAll(ctx)
}

func (c *Controller) Get(ctx context.Context, id int64) (*incidents.Incident, error) {
	return c.Store.Get(ctx, id)
}

// Delete is an administrative removal with no effect on other incidents.
func (c *Controller) Delete(ctx context.Context, id int64) error {
	if err := c.Store.Delete(ctx, id); err != nil {
		return err
	}
	c.record(ctx, id, events.KindDeleted, nil)
	return nil
}

func (c *Controller) Events(ctx context.Context, id int64) ([]events.Event, error) {
	return c.Journal.List(ctx, events.Filter{IncidentID: id})
}

// record appends to the journal. The journal is advisory, so failures are
// only logged.
func (c *Controller) record(ctx context.Context, id int64, kind events.Kind, detail map[string]interface{}) {
	e := &events.Event{IncidentID: id, Kind: kind, Detail: detail}
	if err := c.Journal.Record(ctx, e); err != nil {
		c.Logger.Warn("record incident event", "err", err, "id", id, "kind", kind)
	}
}

func precedents(matches []similarity.Match) []incidents.Incident {
	out := make([]incidents.Incident, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Incident)
	}
	return out
}

func summarize(matches []similarity.Match) []SimilarIncident {
	out := make([]SimilarIncident, 0, len(matches))
	for _, m := range matches {
		preview := []rune(m.Incident.Logs)
		if len(preview) > logsPreviewChars {
			preview = preview[:logsPreviewChars]
		}
		out = append(out, SimilarIncident{
			ID:          m.Incident.ID,
			LogsPreview: string(preview),
			Resolution:  m.Incident.ResolutionNotes,
			RootCauses:  m.Incident.SuspectedRootCauses,
			Score:       m.Score,
		})
	}
	return out
}

func matchIDs(matches []similarity.Match) []int64 {
	ids := make([]int64, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.Incident.ID)
	}
	return ids
}

func diagnosisDetail(d analysis.Diagnosis) map[string]interface{} {
	return map[string]interface{}{
		"root_causes": d.SuspectedRootCauses,
		"confidence":  string(d.Confidence),
		"powered_by":  d.PoweredBy,
	}
}
