package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/BoggsSystems/hingetrade-sub000/pkg/config"
	"github.com/BoggsSystems/hingetrade-sub000/pkg/hook"
	"github.com/BoggsSystems/hingetrade-sub000/pkg/storage"
	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading/alert"
	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading/engine"
	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading/order"
	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading/portfolio"
	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading/provider"
)

// feed is the set of quote interfaces a configured feed provides.
type feed struct {
	quotes  provider.QuoteSource
	stream  provider.Streamer
	history provider.HistorySource
}

func newFeed(cfg *config.Config, logger *zap.Logger) (feed, error) {
	switch cfg.Feed.Kind {
	case "mock":
		m := provider.NewMockProvider(cfg.Feed.Seed)
		m.Interval = cfg.Feed.Interval
		return feed{quotes: m, stream: m, history: m}, nil
	case "sina":
		return feed{
			quotes:  provider.NewSinaProvider(cfg.Feed.URL, 0),
			history: provider.NewTencentHistory("", 0),
		}, nil
	case "ws":
		return feed{stream: provider.NewWSFeed(cfg.Feed.URL, logger)}, nil
	default:
		return feed{}, fmt.Errorf("unknown feed kind %q", cfg.Feed.Kind)
	}
}

func newValidator(cfg *config.Config) (*order.Validator, error) {
	hours, err := cfg.Hours()
	if err != nil {
		return nil, err
	}
	return order.NewValidator(cfg.ValidatorSettings(), hours, cfg.Schedule()), nil
}

func openAlertStore(cfg *config.Config) (*alert.Store, error) {
	dir, err := cfg.AlertsDir()
	if err != nil {
		return nil, err
	}
	fs, err := storage.NewFileStorage(dir)
	if err != nil {
		return nil, fmt.Errorf("open alert storage: %w", err)
	}
	return alert.NewStore(fs), nil
}

func loadHooks(cfg *config.Config, logger *zap.Logger) (*hook.Manager, error) {
	path, err := cfg.HooksFile()
	if err != nil {
		return nil, err
	}
	m := hook.NewManager(".", logger)
	if err := m.Load(path); err != nil {
		return nil, err
	}
	return m, nil
}

// newEngine builds an engine from cfg. Extra options are applied last.
func newEngine(cfg *config.Config, f feed, logger *zap.Logger, opts ...engine.Option) (*engine.Engine, error) {
	limits, err := cfg.Limits()
	if err != nil {
		return nil, err
	}
	v, err := newValidator(cfg)
	if err != nil {
		return nil, err
	}

	base := []engine.Option{
		engine.WithLogger(logger),
		engine.WithValidator(v),
		engine.WithAnalyzer(portfolio.NewAnalyzer(cfg.Portfolio, v.Scorer)),
	}
	if f.stream != nil {
		base = append(base, engine.WithStreamer(f.stream))
	}
	if f.history != nil {
		base = append(base, engine.WithHistory(f.history))
	}

	return engine.New(engine.Config{
		Symbols:      cfg.Feed.Symbols,
		Balance:      cfg.Balance(),
		Limits:       limits,
		PollInterval: cfg.Feed.Interval,
		CacheTTL:     cfg.Cache.TTL,
		CacheMaxCost: cfg.Cache.MaxCost,
	}, f.quotes, append(base, opts...)...)
}
