// Package similarity ranks resolved incidents by lexical closeness of their logs
// to a new log excerpt.
package similarity

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/crypto/blake2b"

	"triagecore/internal/incidents"
)

const (
	DefaultTopK      = 3
	DefaultThreshold = 0.1
	defaultCacheSize = 4096
)

// Source is the read side of the incident store the retriever needs.
type Source interface {
	LoadAll(ctx context.Context) ([]incidents.Incident, error)
}

type Match struct {
	Incident incidents.Incident
	Score    float64
}

type Options struct {
	TopK      int
	Threshold float64
	CacheSize int
}

// Retriever scores resolved incidents with a sequence-matching ratio. Scores
// are memoized by log fingerprint since incident logs never change.
type Retriever struct {
	source    Source
	topK      int
	threshold float64
	cache     *lru.Cache[string, float64]
}

func NewRetriever(source Source, opts Options) (*Retriever, error) {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.Threshold == 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultCacheSize
	}
	cache, err := lru.New[string, float64](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create score cache: %w", err)
	}
	return &Retriever{source: source, topK: opts.TopK, threshold: opts.Threshold, cache: cache}, nil
}

func (r *Retriever) TopK() int { return r.topK }

// FindSimilar returns at most topK resolved incidents scoring above the
// threshold, best first. Equal scores keep collection order. topK <= 0 uses
// the configured default.
func (r *Retriever) FindSimilar(ctx context.Context, logs string, topK int) ([]Match, error) {
	if topK <= 0 {
		topK = r.topK
	}
	all, err := r.source.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	resolved := incidents.Resolved(all)
	if len(resolved) == 0 {
		return []Match{}, nil
	}

	query := strings.ToLower(logs)
	queryKey := fingerprint(query)
	scored := make([]Match, 0, len(resolved))
	for _, inc := range resolved {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		score := r.score(query, queryKey, strings.ToLower(inc.Logs))
		if score > r.threshold {
			scored = append(scored, Match{Incident: inc, Score: score})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

func (r *Retriever) score(query, queryKey, candidate string) float64 {
	key := queryKey + ":" + fingerprint(candidate)
	if s, ok := r.cache.Get(key); ok {
		return s
	}
	m := difflib.NewMatcher(runes(query), runes(candidate))
	// The quick ratios are upper bounds; anything they rule out is below the threshold anyway.
	s := m.RealQuickRatio()
	if s > r.threshold {
		s = m.QuickRatio()
	}
	if s > r.threshold {
		s = m.Ratio()
	}
	r.cache.Add(key, s)
	return s
}

// Ratio returns 2*M/T where M is the number of characters in matching blocks
// and T the combined length of a and b. Two empty strings score 1.
func Ratio(a, b string) float64 {
	m := difflib.NewMatcher(runes(a), runes(b))
	return m.Ratio()
}

func runes(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, "")
}

func fingerprint(s string) string {
	sum := blake2b.Sum256([]byte(s))
	return hex.EncodeToString(sum[:16])
}
