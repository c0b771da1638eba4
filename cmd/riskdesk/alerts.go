package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/BoggsSystems/hingetrade-sub000/pkg/config"
	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading/alert"
	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading/engine"
)

func alertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "alerts",
		Aliases: []string{"alert"},
		Short:   "Manage price alerts",
	}
	cmd.AddCommand(alertAddCmd(), alertListCmd(), alertToggleCmd(), alertRemoveCmd(), alertCheckCmd(), alertPruneCmd())
	return cmd
}

func openAlerts() (*config.Config, *alert.Store, error) {
	_, cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := openAlertStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}

func alertAddCmd() *cobra.Command {
	var (
		note    string
		expires time.Duration
		quiet   bool
	)
	cmd := &cobra.Command{
		Use:   "add SYMBOL CONDITION VALUE",
		Short: "Add an alert",
		Long: `Conditions: price_above, price_below, crosses_above, crosses_below
take a price; percent_change takes a percent (negative for drops).`,
		Example: `  riskdesk alerts add AAPL price_above 200
  riskdesk alerts add TSLA percent_change -5 --expires 24h`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := openAlerts()
			if err != nil {
				return err
			}
			cond, err := alert.ParseCondition(args[1])
			if err != nil {
				return err
			}

			var price decimal.Decimal
			var pct float64
			if cond == alert.PercentChange {
				if pct, err = strconv.ParseFloat(strings.TrimSuffix(args[2], "%"), 64); err != nil {
					return fmt.Errorf("bad percent %q: %w", args[2], err)
				}
			} else if price, err = decimal.NewFromString(args[2]); err != nil {
				return fmt.Errorf("bad price %q: %w", args[2], err)
			}

			now := time.Now()
			a, err := alert.New(args[0], cond, price, pct, now)
			if err != nil {
				return err
			}
			a.Note = note
			a.NotificationsEnabled = !quiet
			if expires > 0 {
				at := now.Add(expires)
				a.ExpiresAt = &at
			}
			if err := store.Save(a); err != nil {
				return err
			}
			fmt.Printf("✅ Added %s\n", renderAlert(a, a.State(now)))
			return nil
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "Free-form note")
	cmd.Flags().DurationVar(&expires, "expires", 0, "Expire the alert after this long")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "Do not run alert hooks when it fires")
	return cmd
}

func alertListCmd() *cobra.Command {
	var symbol string
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := openAlerts()
			if err != nil {
				return err
			}
			book, err := store.LoadBook()
			if err != nil {
				return err
			}

			alerts := book.List()
			if symbol != "" {
				alerts = book.Match(symbol)
			}
			if len(alerts) == 0 {
				fmt.Println(dimStyle.Render("No alerts."))
				return nil
			}
			now := time.Now()
			for _, a := range alerts {
				fmt.Println(renderAlert(a, a.State(now)))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&symbol, "symbol", "s", "", "Only symbols matching this glob")
	return cmd
}

// resolveID expands an id prefix to the full alert id.
func resolveID(store *alert.Store, prefix string) (string, error) {
	alerts, err := store.Load()
	if err != nil {
		return "", err
	}
	var found []string
	for _, a := range alerts {
		if a.ID == prefix {
			return a.ID, nil
		}
		if strings.HasPrefix(a.ID, prefix) {
			found = append(found, a.ID)
		}
	}
	switch len(found) {
	case 0:
		return "", fmt.Errorf("%w: %s", alert.ErrNotFound, prefix)
	case 1:
		return found[0], nil
	default:
		return "", fmt.Errorf("ambiguous id %q matches %d alerts", prefix, len(found))
	}
}

func alertToggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle ID",
		Short: "Enable or disable an alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := openAlerts()
			if err != nil {
				return err
			}
			id, err := resolveID(store, args[0])
			if err != nil {
				return err
			}
			book, err := store.LoadBook()
			if err != nil {
				return err
			}
			a, err := book.Toggle(id)
			if err != nil {
				return err
			}
			if err := store.Save(a); err != nil {
				return err
			}
			fmt.Println(renderAlert(a, a.State(time.Now())))
			return nil
		},
	}
}

func alertRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm ID",
		Aliases: []string{"remove"},
		Short:   "Delete an alert",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := openAlerts()
			if err != nil {
				return err
			}
			id, err := resolveID(store, args[0])
			if err != nil {
				return err
			}
			if err := store.Delete(id); err != nil {
				return err
			}
			fmt.Printf("✅ Removed %s\n", id)
			return nil
		},
	}
}

func alertCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Evaluate every alert once against the configured feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, err := openAlerts()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			f, err := newFeed(cfg, logger)
			if err != nil {
				return err
			}
			if f.quotes == nil {
				return errors.New("the configured feed cannot serve one-shot quotes; use watch")
			}
			f.stream = nil

			hooks, err := loadHooks(cfg, logger)
			if err != nil {
				return err
			}
			eng, err := newEngine(cfg, f, logger, engine.WithAlertStore(store), engine.WithHooks(hooks))
			if err != nil {
				return err
			}
			defer eng.Close()

			fired := 0
			for _, symbol := range eng.Watchlist() {
				if _, err := eng.Quote(cmd.Context(), symbol); err != nil {
					fmt.Println(warnStyle.Render(fmt.Sprintf("⚠ %s: %v", symbol, err)))
				}
			}
		drain:
			for {
				select {
				case t := <-eng.Triggers():
					fmt.Println(renderTrigger(t))
					fired++
				default:
					break drain
				}
			}
			if fired == 0 {
				fmt.Println(dimStyle.Render("No alerts fired."))
			}
			return nil
		},
	}
}

func alertPruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete expired alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := openAlerts()
			if err != nil {
				return err
			}
			book, err := store.LoadBook()
			if err != nil {
				return err
			}
			removed := book.Prune(time.Now())
			for _, a := range removed {
				if err := store.Delete(a.ID); err != nil {
					return err
				}
			}
			fmt.Printf("Removed %d expired alerts\n", len(removed))
			return nil
		},
	}
}
