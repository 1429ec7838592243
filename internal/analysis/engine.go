// Package analysis turns incident logs into a diagnosis. A deterministic
// signature table always produces a result; external reasoning and web search
// may enrich it but can never replace or block it.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"triagecore/internal/incidents"
	"triagecore/internal/metrics"
	"triagecore/internal/reasoner"
)

const (
	DefaultTimeout    = 20 * time.Second
	defaultMaxSources = 3
	// maxPastCauses bounds how many root causes are borrowed from precedents.
	maxPastCauses = 2

	tierPattern  = "pattern"
	tierExternal = "external"
	patternName  = "pattern-rules"
)

// Input is everything one analysis pass may look at.
type Input struct {
	Logs           string
	Metrics        string
	Similar        []incidents.Incident
	AttemptedFixes []incidents.AttemptedFix
}

type Options struct {
	Signatures *SignatureTable
	Reasoner   reasoner.Reasoner
	Searcher   reasoner.Searcher
	// Timeout bounds all external calls of one analysis together.
	Timeout    time.Duration
	MaxSources int
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

type Engine struct {
	table      atomic.Pointer[SignatureTable]
	reasoner   reasoner.Reasoner
	searcher   reasoner.Searcher
	timeout    time.Duration
	maxSources int
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

func NewEngine(o Options) *Engine {
	if o.Signatures == nil {
		o.Signatures = DefaultSignatures()
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxSources <= 0 {
		o.MaxSources = defaultMaxSources
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	e := &Engine{
		reasoner:   o.Reasoner,
		searcher:   o.Searcher,
		timeout:    o.Timeout,
		maxSources: o.MaxSources,
		logger:     o.Logger,
		metrics:    o.Metrics,
	}
	e.table.Store(o.Signatures)
	return e
}

// SetSignatures swaps the signature table used by subsequent analyses.
func (e *Engine) SetSignatures(t *SignatureTable) {
	if t != nil {
		e.table.Store(t)
	}
}

func (e *Engine) Signatures() *SignatureTable {
	return e.table.Load()
}

// Analyze always returns a usable diagnosis. External failures are logged and
// otherwise ignored.
func (e *Engine) Analyze(ctx context.Context, in Input) Diagnosis {
	name, out, matched := e.Signatures().Match(in.Logs)
	d := Diagnosis{
		SuspectedRootCauses: out.Causes,
		SuggestedFix:        out.Fix,
		Confidence:          out.Confidence,
		Explanation:         "Analysis based on pattern matching in logs.",
		WebSources:          []WebSource{},
		PoweredBy:           patternName,
	}
	if matched {
		d.Explanation = fmt.Sprintf("Analysis based on pattern matching in logs (matched %s).", name)
	}
	tier := tierPattern
	contributors := []string{patternName}

	parsed, hits := e.consult(ctx, in, d)
	if parsed != nil {
		d = parsed.Merge(d)
		if _, ok := parsed.(ParsedDiagnosis); ok {
			tier = tierExternal
		}
		contributors = append(contributors, e.reasoner.Name())
	}
	if len(hits) > 0 {
		for _, h := range hits {
			d.WebSources = append(d.WebSources, WebSource{Title: h.Title, URL: h.URL})
		}
		if s := strings.TrimSpace(hits[0].Snippet); s != "" {
			d.Explanation = joinSentences(d.Explanation, "Web context: "+truncate(s, maxExternalContext))
		}
		contributors = append(contributors, e.searcher.Name())
	}

	d = enrichWithHistory(d, in.Similar, in.AttemptedFixes)
	d.PoweredBy = strings.Join(contributors, "+")
	e.metrics.Analysis(tier)
	return d
}

// consult runs the reasoner and searcher concurrently under one deadline.
// Either result is nil when its collaborator is absent or failed.
func (e *Engine) consult(ctx context.Context, in Input, base Diagnosis) (Parsed, []reasoner.SearchHit) {
	if e.reasoner == nil && e.searcher == nil {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var (
		g      errgroup.Group
		parsed Parsed
		hits   []reasoner.SearchHit
	)
	if e.reasoner != nil {
		prompt := analysisPrompt(in)
		g.Go(func() error {
			answer, err := e.reason(ctx, prompt)
			if err != nil {
				return nil
			}
			parsed = ParseResponse(answer)
			if _, ok := parsed.(UnparsedFallback); ok {
				e.logger.Warn("reasoning answer not structured", "collaborator", e.reasoner.Name())
				e.metrics.ExternalCall(e.reasoner.Name(), metrics.OutcomeInvalid, 0)
			}
			return nil
		})
	}
	if e.searcher != nil {
		query := searchQuery(in.Logs, base)
		g.Go(func() error {
			start := time.Now()
			res, err := e.searcher.Search(ctx, query, e.maxSources)
			e.record(e.searcher.Name(), err, time.Since(start))
			if err == nil {
				hits = validHits(res, e.maxSources)
			}
			return nil
		})
	}
	_ = g.Wait()
	return parsed, hits
}

func (e *Engine) reason(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	answer, err := e.reasoner.Reason(ctx, prompt)
	e.record(e.reasoner.Name(), err, time.Since(start))
	return answer, err
}

func (e *Engine) record(collaborator string, err error, took time.Duration) {
	outcome := metrics.OutcomeOK
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		outcome = metrics.OutcomeTimeout
	default:
		outcome = metrics.OutcomeError
	}
	if err != nil {
		e.logger.Warn("external call failed", "collaborator", collaborator, "outcome", outcome, "err", err)
	}
	e.metrics.ExternalCall(collaborator, outcome, took)
}

// enrichWithHistory folds precedents and prior attempts into d. Past causes are
// unioned in; the closest precedent's resolution is appended to the fix.
func enrichWithHistory(d Diagnosis, similar []incidents.Incident, fixes []incidents.AttemptedFix) Diagnosis {
	if len(similar) > 0 {
		var past []string
		for _, inc := range similar {
			past = append(past, inc.SuspectedRootCauses...)
		}
		if len(past) > maxPastCauses {
			past = past[:maxPastCauses]
		}
		d.SuspectedRootCauses = unionStrings(d.SuspectedRootCauses, past...)

		for _, inc := range similar {
			if note := strings.TrimSpace(inc.ResolutionNotes); note != "" {
				d.SuggestedFix = joinSentences(d.SuggestedFix,
					fmt.Sprintf("A similar past incident (#%d) was resolved by: %s", inc.ID, note))
				break
			}
		}
		d.Explanation = joinSentences(d.Explanation, fmt.Sprintf("Found %d similar past incidents.", len(similar)))
	} else {
		d.Explanation = joinSentences(d.Explanation, "No similar incidents found.")
	}

	if len(fixes) > 0 {
		d.SuggestedFix = fmt.Sprintf("Previous fixes attempted. Next step: %s. Consider escalating if issue persists.",
			strings.TrimRight(d.SuggestedFix, ". "))
	}
	return d
}

func validHits(hits []reasoner.SearchHit, limit int) []reasoner.SearchHit {
	out := make([]reasoner.SearchHit, 0, len(hits))
	for _, h := range hits {
		if h.URL == "" {
			continue
		}
		if h.Title == "" {
			h.Title = h.URL
		}
		out = append(out, h)
		if len(out) == limit {
			break
		}
	}
	return out
}

func joinSentences(a, b string) string {
	a = strings.TrimSpace(a)
	if a == "" {
		return b
	}
	if !strings.HasSuffix(a, ".") {
		a += "."
	}
	return a + " " + b
}
