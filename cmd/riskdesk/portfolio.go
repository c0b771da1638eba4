package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BoggsSystems/hingetrade-sub000/pkg/config"
	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading/engine"
	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading/portfolio"
	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading/positions"
)

func portfolioCmd() *cobra.Command {
	var (
		live       bool
		returnDays int
		asJSON     bool
		profile    string
	)

	cmd := &cobra.Command{
		Use:   "portfolio FILE",
		Short: "Score the risk of a portfolio file",
		Long: `Reads positions from a YAML portfolio file and reports concentration,
sector exposure, volatility, VaR and limit breaches. With --live the
positions are repriced from the configured feed first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if profile != "" {
				cfg.Risk.Profile = profile
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			file, err := positions.LoadFile(args[0])
			if err != nil {
				return err
			}
			if !file.AccountBalance.IsZero() {
				cfg.Account.Balance = file.AccountBalance.InexactFloat64()
			}

			var report portfolio.Report
			if live {
				report, err = liveReport(cmd, cfg, file, returnDays, logger)
				if err != nil {
					return err
				}
			} else {
				limits, err := cfg.Limits()
				if err != nil {
					return err
				}
				v, err := newValidator(cfg)
				if err != nil {
					return err
				}
				report = portfolio.NewAnalyzer(cfg.Portfolio, v.Scorer).Assess(file.Positions, portfolio.Inputs{
					AccountBalance: cfg.Balance(),
					DailyReturns:   file.DailyReturns,
					Limits:         limits,
					Quotes:         file.QuoteMap(),
					At:             time.Now(),
				})
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			fmt.Println(renderReport(report))
			return nil
		},
	}

	cmd.Flags().BoolVar(&live, "live", false, "Reprice positions from the configured feed")
	cmd.Flags().IntVar(&returnDays, "returns", 60, "Days of history used for returns with --live when the file has none")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	cmd.Flags().StringVar(&profile, "profile", "", "Risk profile (default from config)")
	return cmd
}

func liveReport(cmd *cobra.Command, cfg *config.Config, file *positions.File, days int, logger *zap.Logger) (portfolio.Report, error) {
	f, err := newFeed(cfg, logger)
	if err != nil {
		return portfolio.Report{}, err
	}
	// one-shot lookups never stream
	f.stream = nil

	eng, err := newEngine(cfg, f, logger,
		engine.WithPositions(positions.NewBook(file.Positions...)),
		engine.WithReturns(file.DailyReturns))
	if err != nil {
		return portfolio.Report{}, err
	}
	defer eng.Close()

	ctx := cmd.Context()
	for _, symbol := range eng.Positions().Symbols() {
		if _, err := eng.Quote(ctx, symbol); err != nil {
			logger.Warn("no quote, keeping file value", zap.String("symbol", symbol), zap.Error(err))
		}
	}
	if len(file.DailyReturns) == 0 && days > 0 {
		if _, err := eng.RefreshReturns(ctx, days); err != nil {
			logger.Warn("returns unavailable", zap.Error(err))
		}
	}
	return eng.Report(ctx)
}
