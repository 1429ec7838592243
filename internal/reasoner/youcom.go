package reasoner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	YouChatURL   = "https://api.you.com/v1/chat"
	YouSearchURL = "https://api.ydc-index.io/search"
)

// YouChat calls the You.com chat endpoint.
type YouChat struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

func NewYouChat(apiKey, endpoint string) *YouChat {
	if endpoint == "" {
		endpoint = YouChatURL
	}
	return &YouChat{apiKey: apiKey, endpoint: endpoint, client: newHTTPClient()}
}

func (c *YouChat) Name() string { return "youcom" }

type youChatRequest struct {
	Query    string `json:"query"`
	ChatMode string `json:"chat_mode"`
}

type youChatResponse struct {
	Answer string `json:"answer"`
}

func (c *YouChat) Reason(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(youChatRequest{Query: prompt, ChatMode: "default"})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("youcom chat: %w", err)
	}
	body, err := readBody("youcom chat", resp)
	if err != nil {
		return "", err
	}
	var out youChatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("youcom chat: decode response: %w", err)
	}
	if strings.TrimSpace(out.Answer) == "" {
		return "", ErrEmptyAnswer
	}
	return out.Answer, nil
}

// YouSearch calls the You.com web search endpoint.
type YouSearch struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

func NewYouSearch(apiKey, endpoint string) *YouSearch {
	if endpoint == "" {
		endpoint = YouSearchURL
	}
	return &YouSearch{apiKey: apiKey, endpoint: endpoint, client: newHTTPClient()}
}

func (s *YouSearch) Name() string { return "youcom-search" }

type youSearchResponse struct {
	Hits []struct {
		Title       string   `json:"title"`
		URL         string   `json:"url"`
		Description string   `json:"description"`
		Snippets    []string `json:"snippets"`
	} `json:"hits"`
}

func (s *YouSearch) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("query", query)
	if limit > 0 {
		q.Set("num_web_results", strconv.Itoa(limit))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-Key", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("youcom search: %w", err)
	}
	body, err := readBody("youcom search", resp)
	if err != nil {
		return nil, err
	}
	var out youSearchResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("youcom search: decode response: %w", err)
	}

	hits := make([]SearchHit, 0, len(out.Hits))
	for _, h := range out.Hits {
		if h.URL == "" {
			continue
		}
		snippet := h.Description
		if len(h.Snippets) > 0 {
			snippet = h.Snippets[0]
		}
		hits = append(hits, SearchHit{Title: h.Title, URL: h.URL, Snippet: snippet})
		if limit > 0 && len(hits) == limit {
			break
		}
	}
	return hits, nil
}
