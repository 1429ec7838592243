package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"triagecore/internal/analysis"
	"triagecore/internal/config"
	"triagecore/internal/db"
	"triagecore/internal/events"
	"triagecore/internal/incidents"
	"triagecore/internal/lifecycle"
	"triagecore/internal/logging"
	"triagecore/internal/metrics"
	"triagecore/internal/reasoner"
	"triagecore/internal/similarity"
)

// app is the wired set of components every command runs against.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	store   incidents.Store
	engine  *analysis.Engine
	ctrl    *lifecycle.Controller
	metrics *metrics.Metrics
}

// newApp wires the controller for cfg. reg may be nil when metrics are not exported.
func newApp(ctx context.Context, cfg config.Config, reg prometheus.Registerer) (*app, error) {
	logger := logging.New(logOptions(cfg))
	a := &app{cfg: cfg, logger: logger}
	if reg != nil {
		a.metrics = metrics.New(reg)
	}

	journal, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	table := analysis.DefaultSignatures()
	if p := cfg.Analysis.SignaturesPath; p != "" {
		if table, err = analysis.LoadSignatures(p); err != nil {
			a.Close()
			return nil, err
		}
	}

	rsn, err := reasoner.New(ctx, reasoner.Options{
		Provider:      cfg.Reasoner.Provider,
		APIKey:        cfg.Reasoner.APIKey,
		Model:         cfg.Reasoner.Model,
		BaseURL:       cfg.Reasoner.BaseURL,
		RatePerMinute: cfg.Reasoner.RatePerMinute,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create reasoner: %w", err)
	}
	search, err := reasoner.NewSearcher(reasoner.Options{
		Provider:      cfg.Search.Provider,
		APIKey:        cfg.Search.APIKey,
		BaseURL:       cfg.Search.BaseURL,
		RatePerMinute: cfg.Reasoner.RatePerMinute,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create searcher: %w", err)
	}

	a.engine = analysis.NewEngine(analysis.Options{
		Signatures: table,
		Reasoner:   rsn,
		Searcher:   search,
		Timeout:    cfg.Analysis.Timeout,
		MaxSources: cfg.Search.MaxResults,
		Logger:     logger,
		Metrics:    a.metrics,
	})

	retriever, err := similarity.NewRetriever(a.store, similarity.Options{
		TopK:      cfg.Similarity.TopK,
		Threshold: cfg.Similarity.Threshold,
		CacheSize: cfg.Similarity.CacheSize,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.ctrl = lifecycle.NewController(a.store, retriever, a.engine, journal, logger, a.metrics)
	logger.Debug("components wired",
		"backend", cfg.Store.Backend,
		"reasoner", cfg.Reasoner.Provider,
		"search", cfg.Search.Provider,
		"signatures", table.Len(),
	)
	return a, nil
}

func (a *app) openStore(ctx context.Context) (events.Journal, error) {
	cfg := a.cfg
	if cfg.Store.Backend == config.BackendFile {
		a.store = incidents.NewFileStore(cfg.Store.Path)
		if !cfg.Journal.Enabled {
			return events.Discard{}, nil
		}
		return events.NewFileJournal(cfg.Journal.Path), nil
	}

	dialect, err := db.ParseDialect(cfg.Store.Backend)
	if err != nil {
		return nil, err
	}
	dsn := cfg.Store.DSN
	if dsn == "" {
		dsn = cfg.Store.Path
	}
	conn, err := db.Open(ctx, dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if err := db.RunMigrations(ctx, conn, dialect); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	a.store = incidents.NewSQLStore(conn, dialect)
	if !cfg.Journal.Enabled {
		return events.Discard{}, nil
	}
	return events.NewStore(conn, dialect), nil
}

func (a *app) Close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}

// withApp loads configuration, wires the components and runs fn against them.
func withApp(ctx context.Context, fn func(*app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
