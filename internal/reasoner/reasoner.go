// Package reasoner wraps the external reasoning and web-search services the
// analysis engine may consult. Every call is best effort: callers treat any
// error as "no enrichment" and carry on.
package reasoner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Reasoner answers a free-text prompt.
type Reasoner interface {
	Name() string
	Reason(ctx context.Context, prompt string) (string, error)
}

type SearchHit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// Searcher returns web results relevant to a query.
type Searcher interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]SearchHit, error)
}

var (
	ErrRateLimited = errors.New("external call rate limit exceeded")
	ErrEmptyAnswer = errors.New("empty answer")
)

// StatusError reports a non-2xx response from an external service.
type StatusError struct {
	Service string
	Code    int
	Body    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d: %s", e.Service, e.Code, e.Body)
}

const (
	maxResponseBytes = 1 << 20
	defaultTimeout   = 30 * time.Second
)

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultTimeout}
}

// readBody reads a bounded response body, turning non-2xx statuses into a StatusError.
func readBody(service string, resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", service, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, &StatusError{Service: service, Code: resp.StatusCode, Body: snippet}
	}
	return body, nil
}
