package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BoggsSystems/hingetrade-sub000/pkg/config"
	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading/engine"
	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading/metrics"
	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading/positions"
)

func watchCmd() *cobra.Command {
	var (
		portfolioFile string
		reportEvery   time.Duration
		symbols       []string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream quotes, fire alerts and score the portfolio until interrupted",
		Long: `Runs the engine against the configured feed. Alerts fire as quotes
arrive, hooks run for triggers and risk events, and Prometheus metrics
are served on metrics.addr. The config file is reloaded on change.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cm, cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if len(symbols) > 0 {
				cfg.Feed.Symbols = symbols
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			return runWatch(cmd.Context(), cm, cfg, portfolioFile, reportEvery, logger)
		},
	}

	cmd.Flags().StringVarP(&portfolioFile, "portfolio", "p", "", "Portfolio file to track")
	cmd.Flags().DurationVar(&reportEvery, "report-every", time.Minute, "Portfolio report interval (0 disables)")
	cmd.Flags().StringSliceVarP(&symbols, "symbols", "s", nil, "Symbols to watch (default from config)")
	return cmd
}

func runWatch(ctx context.Context, cm *config.ConfigManager, cfg *config.Config, portfolioFile string, reportEvery time.Duration, logger *zap.Logger) error {
	f, err := newFeed(cfg, logger)
	if err != nil {
		return err
	}
	store, err := openAlertStore(cfg)
	if err != nil {
		return err
	}
	hooks, err := loadHooks(cfg, logger)
	if err != nil {
		return err
	}
	m := metrics.New()

	opts := []engine.Option{
		engine.WithAlertStore(store),
		engine.WithHooks(hooks),
		engine.WithMetrics(m),
	}
	if portfolioFile != "" {
		file, err := positions.LoadFile(portfolioFile)
		if err != nil {
			return err
		}
		opts = append(opts,
			engine.WithPositions(positions.NewBook(file.Positions...)),
			engine.WithReturns(file.DailyReturns))
	}

	eng, err := newEngine(cfg, f, logger, opts...)
	if err != nil {
		return err
	}
	defer eng.Close()

	srv := serveMetrics(cfg.Metrics.Addr, m, logger)

	cm.Watch(func(c *config.Config) {
		if l, err := c.Limits(); err == nil {
			eng.SetLimits(l)
		}
		eng.SetBalance(c.Balance())
		if path, err := c.HooksFile(); err == nil {
			if err := hooks.Load(path); err != nil {
				logger.Warn("reload hooks", zap.Error(err))
			}
		}
		logger.Info("configuration reloaded", zap.String("profile", c.Risk.Profile))
	}, func(err error) {
		logger.Warn("ignoring invalid configuration change", zap.Error(err))
	})

	if err := eng.Start(ctx); err != nil {
		return err
	}
	fmt.Println(titleStyle.Render(fmt.Sprintf("Watching %d symbols", len(eng.Watchlist()))))
	fmt.Println(dimStyle.Render("Press Ctrl+C to stop"))

	var tick <-chan time.Time
	if reportEvery > 0 && portfolioFile != "" {
		ticker := time.NewTicker(reportEvery)
		defer ticker.Stop()
		tick = ticker.C
	}
	prune := time.NewTicker(time.Hour)
	defer prune.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nShutting down...")
			if err := eng.Stop(); err != nil {
				logger.Warn("stop engine", zap.Error(err))
			}
			if srv != nil {
				shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				srv.Shutdown(shutdown)
				cancel()
			}
			return nil

		case t := <-eng.Triggers():
			fmt.Println(renderTrigger(t))

		case <-tick:
			r, err := eng.Report(ctx)
			if err != nil {
				logger.Warn("portfolio report", zap.Error(err))
				continue
			}
			fmt.Printf("%s score %s  gross %s  breaches %d\n",
				dimStyle.Render(time.Now().Format("15:04:05")),
				levelStyle(r.Status).Render(fmt.Sprintf("%.1f %s", r.Score, r.Status)),
				r.GrossValue.StringFixed(2), len(r.Breaches))

		case <-prune.C:
			if removed, err := eng.PruneAlerts(); err != nil {
				logger.Warn("prune alerts", zap.Error(err))
			} else if len(removed) > 0 {
				logger.Info("pruned expired alerts", zap.Int("count", len(removed)))
			}
		}
	}
}

func serveMetrics(addr string, m *metrics.Metrics, logger *zap.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", zap.Error(err))
		}
	}()
	return srv
}
