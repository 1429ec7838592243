package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix marks environment overrides. Nesting uses a double underscore:
// TRIAGE_STORE__BACKEND=sqlite sets store.backend.
const EnvPrefix = "TRIAGE_"

type Config struct {
	HTTP       HTTPConfig       `koanf:"http"`
	Log        LogConfig        `koanf:"log"`
	Store      StoreConfig      `koanf:"store"`
	Similarity SimilarityConfig `koanf:"similarity"`
	Analysis   AnalysisConfig   `koanf:"analysis"`
	Reasoner   ReasonerConfig   `koanf:"reasoner"`
	Search     SearchConfig     `koanf:"search"`
	Journal    JournalConfig    `koanf:"journal"`
}

type HTTPConfig struct {
	Addr            string        `koanf:"addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type StoreConfig struct {
	Backend string `koanf:"backend"`
	Path    string `koanf:"path"`
	DSN     string `koanf:"dsn"`
}

type SimilarityConfig struct {
	TopK      int     `koanf:"top_k"`
	Threshold float64 `koanf:"threshold"`
	CacheSize int     `koanf:"cache_size"`
}

type AnalysisConfig struct {
	SignaturesPath  string        `koanf:"signatures_path"`
	WatchSignatures bool          `koanf:"watch_signatures"`
	Timeout         time.Duration `koanf:"timeout"`
}

type ReasonerConfig struct {
	Provider      string `koanf:"provider"`
	APIKey        string `koanf:"api_key"`
	Model         string `koanf:"model"`
	BaseURL       string `koanf:"base_url"`
	RatePerMinute int    `koanf:"rate_per_minute"`
}

type SearchConfig struct {
	Provider   string `koanf:"provider"`
	APIKey     string `koanf:"api_key"`
	BaseURL    string `koanf:"base_url"`
	MaxResults int    `koanf:"max_results"`
}

type JournalConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:            ":8000",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log:   LogConfig{Level: "info", Format: "json"},
		Store: StoreConfig{Backend: BackendFile, Path: "incidents.json"},
		Similarity: SimilarityConfig{
			TopK:      3,
			Threshold: 0.1,
			CacheSize: 4096,
		},
		Analysis: AnalysisConfig{Timeout: 20 * time.Second},
		Reasoner: ReasonerConfig{Provider: "none", RatePerMinute: 30},
		Search:   SearchConfig{Provider: "none", MaxResults: 3},
		Journal:  JournalConfig{Enabled: true, Path: "incident-events.jsonl"},
	}
}

// Load layers the YAML file at path (optional; "" skips it) and TRIAGE_*
// environment variables over Default.
func Load(path string) (Config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config %q: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

func (c Config) Validate() error {
	var errs []error
	switch c.Store.Backend {
	case BackendFile:
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for the file backend"))
		}
	case BackendSQLite:
		if c.Store.DSN == "" && c.Store.Path == "" {
			errs = append(errs, errors.New("store.dsn or store.path is required for the sqlite backend"))
		}
	case BackendPostgres:
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.backend %q", c.Store.Backend))
	}
	if c.Similarity.TopK < 1 {
		errs = append(errs, fmt.Errorf("similarity.top_k must be at least 1, got %d", c.Similarity.TopK))
	}
	if c.Similarity.Threshold < 0 || c.Similarity.Threshold >= 1 {
		errs = append(errs, fmt.Errorf("similarity.threshold must be in [0,1), got %v", c.Similarity.Threshold))
	}
	switch c.Reasoner.Provider {
	case "", "none", "youcom", "anthropic", "openai", "gemini":
	default:
		errs = append(errs, fmt.Errorf("unknown reasoner.provider %q", c.Reasoner.Provider))
	}
	switch c.Search.Provider {
	case "", "none", "youcom":
	default:
		errs = append(errs, fmt.Errorf("unknown search.provider %q", c.Search.Provider))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
