package reasoner

import (
	"context"
	"fmt"
)

const (
	ProviderNone      = "none"
	ProviderYouCom    = "youcom"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
)

type Options struct {
	Provider      string
	APIKey        string
	Model         string
	BaseURL       string
	RatePerMinute int
}

// New builds the configured reasoner. It returns nil, nil when reasoning is
// disabled or no credential is configured.
func New(ctx context.Context, o Options) (Reasoner, error) {
	if o.Provider == "" || o.Provider == ProviderNone || o.APIKey == "" {
		return nil, nil
	}
	var r Reasoner
	switch o.Provider {
	case ProviderYouCom:
		r = NewYouChat(o.APIKey, o.BaseURL)
	case ProviderAnthropic:
		r = NewAnthropic(o.APIKey, o.Model, o.BaseURL)
	case ProviderOpenAI:
		r = NewOpenAI(o.APIKey, o.Model, o.BaseURL)
	case ProviderGemini:
		g, err := NewGemini(ctx, o.APIKey, o.Model, o.BaseURL)
		if err != nil {
			return nil, err
		}
		r = g
	default:
		return nil, fmt.Errorf("unknown reasoner provider %q", o.Provider)
	}
	return NewLimited(r, o.RatePerMinute), nil
}

// NewSearcher builds the configured web searcher, or nil when search is disabled.
func NewSearcher(o Options) (Searcher, error) {
	if o.Provider == "" || o.Provider == ProviderNone || o.APIKey == "" {
		return nil, nil
	}
	switch o.Provider {
	case ProviderYouCom:
		return NewLimitedSearch(NewYouSearch(o.APIKey, o.BaseURL), o.RatePerMinute), nil
	}
	return nil, fmt.Errorf("unknown search provider %q", o.Provider)
}
