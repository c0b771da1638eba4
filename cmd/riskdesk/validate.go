package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/BoggsSystems/hingetrade-sub000/pkg/config"
	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading"
	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading/order"
	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading/provider"
)

// ticket holds the order flags of the validate command.
type ticket struct {
	side, kind, tif      string
	qty                  string
	limit, stop          string
	stopLoss, takeProfit string
	trail                string

	bid, ask, last float64
	live           bool

	balance float64
	profile string
	asJSON  bool
}

func validateCmd() *cobra.Command {
	var t ticket
	cmd := &cobra.Command{
		Use:   "validate SYMBOL",
		Short: "Check an order ticket against limits, funds and the market",
		Long: `Builds an order from the flags and runs every pre-trade check.
Unset prices are seeded from the quote the same way a ticket would be.
Exits with status 1 when the order is rejected.`,
		Example: `  riskdesk validate AAPL --qty 10 --bid 179.9 --ask 180
  riskdesk validate TSLA --side sell --type bracket --qty 5 --live`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runValidate(cmd, cfg, args[0], t)
		},
	}

	f := cmd.Flags()
	f.StringVar(&t.side, "side", "buy", "buy or sell")
	f.StringVarP(&t.kind, "type", "t", "market", "Order type: market, limit, stop, stop_limit, stop_loss, take_profit, bracket, trailing_stop")
	f.StringVar(&t.tif, "tif", "day", "Time in force: day, gtc, ioc, fok")
	f.StringVarP(&t.qty, "qty", "q", "", "Quantity")
	f.StringVar(&t.limit, "limit", "", "Limit price")
	f.StringVar(&t.stop, "stop", "", "Stop price, or the trigger of a take_profit order")
	f.StringVar(&t.stopLoss, "stop-loss", "", "Bracket stop-loss price")
	f.StringVar(&t.takeProfit, "take-profit", "", "Bracket take-profit price")
	f.StringVar(&t.trail, "trail", "", "Trailing stop percent")
	f.Float64Var(&t.bid, "bid", 0, "Current bid")
	f.Float64Var(&t.ask, "ask", 0, "Current ask")
	f.Float64Var(&t.last, "last", 0, "Last trade price")
	f.BoolVar(&t.live, "live", false, "Fetch the quote from the configured feed")
	f.Float64Var(&t.balance, "balance", 0, "Account balance (default from config)")
	f.StringVar(&t.profile, "profile", "", "Risk profile (default from config)")
	f.BoolVar(&t.asJSON, "json", false, "Print the result as JSON")
	cmd.MarkFlagRequired("qty")
	return cmd
}

func runValidate(cmd *cobra.Command, cfg *config.Config, symbol string, t ticket) error {
	if t.profile != "" {
		cfg.Risk.Profile = t.profile
	}
	limits, err := cfg.Limits()
	if err != nil {
		return err
	}
	balance := cfg.Balance()
	if cmd.Flags().Changed("balance") {
		balance = decimal.NewFromFloat(t.balance)
	}

	q, err := ticketQuote(cmd, cfg, symbol, t)
	if err != nil {
		return err
	}
	fields, typ, err := t.fields()
	if err != nil {
		return err
	}

	b := cfg.Builder()
	fields = b.SelectType(fields, typ, q)
	d := b.Build(symbol, fields)

	v, err := newValidator(cfg)
	if err != nil {
		return err
	}
	res := v.Validate(d, q, balance, limits)

	if t.asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(struct {
			Draft  order.Draft  `json:"draft"`
			Valid  bool         `json:"valid"`
			Result order.Result `json:"result"`
		}{d, res.Valid(), res}); err != nil {
			return err
		}
	} else {
		fmt.Println(renderResult(d, q, res))
	}
	if !res.Valid() {
		return exitError{code: 1}
	}
	return nil
}

// ticketQuote returns the quote given by flags, the live feed quote with
// --live, or nil when neither is available.
func ticketQuote(cmd *cobra.Command, cfg *config.Config, symbol string, t ticket) (*trading.Quote, error) {
	if t.live {
		f, err := newFeed(cfg, nil)
		if err != nil {
			return nil, err
		}
		q, err := provider.Lookup(cmd.Context(), f.quotes, symbol)
		if err != nil {
			fmt.Fprintln(os.Stderr, warnStyle.Render("⚠ no live quote: "+err.Error()))
			return nil, nil
		}
		return q, nil
	}
	if t.bid == 0 && t.ask == 0 && t.last == 0 {
		return nil, nil
	}

	bid, ask, last := t.bid, t.ask, t.last
	if bid == 0 {
		bid = firstNonZero(last, ask)
	}
	if ask == 0 {
		ask = firstNonZero(last, bid)
	}
	if last == 0 {
		last = (bid + ask) / 2
	}
	q := trading.NewQuote(symbol, bid, ask, last, 0, time.Now())
	return &q, nil
}

func firstNonZero(vals ...float64) float64 {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}

func (t ticket) fields() (order.Fields, order.Type, error) {
	var f order.Fields
	var err error

	if f.Side, err = order.ParseSide(t.side); err != nil {
		return f, "", err
	}
	typ, err := order.ParseType(t.kind)
	if err != nil {
		return f, "", err
	}
	if f.TimeInForce, err = order.ParseTimeInForce(t.tif); err != nil {
		return f, "", err
	}

	prices := []struct {
		flag, value string
		dst         *decimal.Decimal
	}{
		{"qty", t.qty, &f.Quantity},
		{"limit", t.limit, &f.LimitPrice},
		{"stop", t.stop, &f.StopPrice},
		{"stop-loss", t.stopLoss, &f.StopLossPrice},
		{"take-profit", t.takeProfit, &f.TakeProfitPrice},
		{"trail", t.trail, &f.TrailPercent},
	}
	for _, p := range prices {
		if strings.TrimSpace(p.value) == "" {
			continue
		}
		v, err := decimal.NewFromString(strings.TrimSpace(p.value))
		if err != nil {
			return f, "", fmt.Errorf("--%s: %w", p.flag, err)
		}
		*p.dst = v
	}
	// take_profit triggers on its target price
	if typ == order.TypeTakeProfit && f.TakeProfitPrice.IsZero() {
		f.TakeProfitPrice = f.StopPrice
		f.StopPrice = decimal.Zero
	}
	return f, typ, nil
}
