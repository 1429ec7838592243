package reasoner

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limited rejects calls beyond a per-minute budget instead of queueing them,
// so a burst of incidents degrades to pattern analysis rather than waiting.
type Limited struct {
	Reasoner
	limiter *rate.Limiter
}

func NewLimited(r Reasoner, perMinute int) *Limited {
	return &Limited{Reasoner: r, limiter: newLimiter(perMinute)}
}

func (l *Limited) Reason(ctx context.Context, prompt string) (string, error) {
	if !l.limiter.Allow() {
		return "", ErrRateLimited
	}
	return l.Reasoner.Reason(ctx, prompt)
}

type LimitedSearch struct {
	Searcher
	limiter *rate.Limiter
}

func NewLimitedSearch(s Searcher, perMinute int) *LimitedSearch {
	return &LimitedSearch{Searcher: s, limiter: newLimiter(perMinute)}
}

func (l *LimitedSearch) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	if !l.limiter.Allow() {
		return nil, ErrRateLimited
	}
	return l.Searcher.Search(ctx, query, limit)
}

func newLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := perMinute / 6
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst)
}
