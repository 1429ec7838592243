package reasoner

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestYouChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		var req youChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "why oom?", req.Query)
		assert.Equal(t, "default", req.ChatMode)
		_, _ = io.WriteString(w, `{"answer": "memory limit too low"}`)
	}))
	defer srv.Close()

	c := NewYouChat("secret", srv.URL)
	answer, err := c.Reason(context.Background(), "why oom?")
	require.NoError(t, err)
	assert.Equal(t, "memory limit too low", answer)
	assert.Equal(t, "youcom", c.Name())
}

func TestYouChatFailures(t *testing.T) {
	tests := map[string]struct {
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		"non-2xx": {http.StatusBadGateway, "upstream down", func(t *testing.T, err error) {
			var se *StatusError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, http.StatusBadGateway, se.Code)
			assert.Equal(t, "upstream down", se.Body)
		}},
		"malformed": {http.StatusOK, "<html>", func(t *testing.T, err error) {
			assert.ErrorContains(t, err, "decode response")
		}},
		"empty answer": {http.StatusOK, `{"answer": "  "}`, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, ErrEmptyAnswer)
		}},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()
			_, err := NewYouChat("k", srv.URL).Reason(context.Background(), "p")
			tt.check(t, err)
		})
	}
}

func TestYouChatHonorsDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewYouChat("k", srv.URL).Reason(ctx, "p")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestYouSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		assert.Equal(t, "oomkilled kubernetes", r.URL.Query().Get("query"))
		assert.Equal(t, "2", r.URL.Query().Get("num_web_results"))
		_, _ = io.WriteString(w, `{"hits": [
			{"title": "OOM docs", "url": "https://k8s.io/oom", "description": "desc", "snippets": ["first snippet"]},
			{"title": "no url"},
			{"title": "Tuning", "url": "https://example.com/t", "description": "tuning guide"},
			{"title": "Extra", "url": "https://example.com/x"}
		]}`)
	}))
	defer srv.Close()

	s := NewYouSearch("secret", srv.URL)
	hits, err := s.Search(context.Background(), "oomkilled kubernetes", 2)
	require.NoError(t, err)
	assert.Equal(t, []SearchHit{
		{Title: "OOM docs", URL: "https://k8s.io/oom", Snippet: "first snippet"},
		{Title: "Tuning", URL: "https://example.com/t", Snippet: "tuning guide"},
	}, hits)
}

func TestOpenAI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req["model"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id": "c1", "object": "chat.completion", "model": "test-model",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "raise the limit"}, "finish_reason": "stop"}]}`)
	}))
	defer srv.Close()

	o := NewOpenAI("secret", "test-model", srv.URL+"/v1")
	answer, err := o.Reason(context.Background(), "why oom?")
	require.NoError(t, err)
	assert.Equal(t, "raise the limit", answer)
}

func TestAnthropic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/v1/messages"), r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id": "msg_1", "type": "message", "role": "assistant", "model": "test-model",
			"content": [{"type": "text", "text": "raise "}, {"type": "text", "text": "the limit"}],
			"stop_reason": "end_turn", "usage": {"input_tokens": 10, "output_tokens": 3}}`)
	}))
	defer srv.Close()

	a := NewAnthropic("secret", "test-model", srv.URL)
	answer, err := a.Reason(context.Background(), "why oom?")
	require.NoError(t, err)
	assert.Equal(t, "raise the limit", answer)
}

func TestAnthropicErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"type": "error", "error": {"type": "api_error", "message": "boom"}}`)
	}))
	defer srv.Close()

	_, err := NewAnthropic("secret", "", srv.URL).Reason(context.Background(), "p")
	assert.Error(t, err)
}

func TestGemini(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "test-model:generateContent")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates": [{"content": {"role": "model", "parts": [{"text": "raise the limit"}]}}]}`)
	}))
	defer srv.Close()

	g, err := NewGemini(context.Background(), "secret", "test-model", srv.URL)
	require.NoError(t, err)
	answer, err := g.Reason(context.Background(), "why oom?")
	require.NoError(t, err)
	assert.Equal(t, "raise the limit", answer)

	_, err = NewGemini(context.Background(), "", "", "")
	assert.Error(t, err)
}

type countingReasoner struct{ calls int }

func (c *countingReasoner) Name() string { return "counting" }

func (c *countingReasoner) Reason(ctx context.Context, prompt string) (string, error) {
	c.calls++
	return "ok", nil
}

func TestLimitedRejectsOverBudget(t *testing.T) {
	inner := &countingReasoner{}
	l := NewLimited(inner, 1)
	_, err := l.Reason(context.Background(), "p")
	require.NoError(t, err)
	_, err = l.Reason(context.Background(), "p")
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, "counting", l.Name())

	unlimited := NewLimited(inner, 0)
	for i := 0; i < 100; i++ {
		_, err := unlimited.Reason(context.Background(), "p")
		require.NoError(t, err)
	}
}

func TestFactory(t *testing.T) {
	ctx := context.Background()
	r, err := New(ctx, Options{Provider: ProviderNone, APIKey: "k"})
	require.NoError(t, err)
	assert.Nil(t, r)

	r, err = New(ctx, Options{Provider: ProviderYouCom})
	require.NoError(t, err)
	assert.Nil(t, r, "no credential disables reasoning")

	r, err = New(ctx, Options{Provider: ProviderOpenAI, APIKey: "k"})
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, "openai", r.Name())

	_, err = New(ctx, Options{Provider: "oracle", APIKey: "k"})
	assert.Error(t, err)

	s, err := NewSearcher(Options{Provider: ProviderYouCom, APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "youcom-search", s.Name())

	_, err = NewSearcher(Options{Provider: ProviderAnthropic, APIKey: "k"})
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrRateLimited))
}
