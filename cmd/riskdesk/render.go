package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/BoggsSystems/hingetrade-sub000/pkg/cost"
	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading"
	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading/alert"
	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading/order"
	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading/portfolio"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86")).
			Background(lipgloss.Color("236")).
			Padding(0, 1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("86")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Width(16)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

func levelStyle(l trading.RiskLevel) lipgloss.Style {
	switch l {
	case trading.RiskLow:
		return successStyle
	case trading.RiskMedium:
		return warnStyle
	default:
		return errorStyle.Bold(true)
	}
}

func row(label, value string) string {
	return labelStyle.Render(label) + value
}

func marshalYAML(v any) (string, error) {
	out, err := yaml.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func renderResult(d order.Draft, q *trading.Quote, res order.Result) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(d.String()))
	b.WriteString("\n\n")

	if q != nil {
		b.WriteString(row("Quote", fmt.Sprintf("bid %s / ask %s / last %s", q.Bid, q.Ask, q.Last)))
		b.WriteString("\n")
	}
	if res.Estimate.Priced {
		b.WriteString(row("Price", res.Estimate.Price.StringFixed(2)) + "\n")
		b.WriteString(row("Notional", cost.FormatMoney(res.Estimate.Notional)) + "\n")
		b.WriteString(row("Fees", cost.FormatMoney(res.Estimate.Fees.Total)) + "\n")
		b.WriteString(row("Total", cost.FormatMoney(res.Estimate.Total)) + "\n")
		b.WriteString(row("Of balance", fmt.Sprintf("%.2f%%", res.Estimate.RiskFraction*100)) + "\n")
	}
	b.WriteString(row("Risk", levelStyle(res.Risk.Overall).Render(res.Risk.Overall.String())))
	b.WriteString("\n")

	if len(res.Errors) > 0 {
		b.WriteString("\n")
		for _, e := range res.Errors {
			b.WriteString(errorStyle.Render("✗ "+e.Message) + dimStyle.Render(" ("+string(e.Kind)+")") + "\n")
		}
	}
	if len(res.Warnings) > 0 {
		b.WriteString("\n")
		for _, w := range res.Warnings {
			b.WriteString(warnStyle.Render("⚠ "+w.Message) + "\n")
		}
	}
	if len(res.Risk.Recommendations) > 0 {
		b.WriteString("\n")
		for _, r := range res.Risk.Recommendations {
			b.WriteString(dimStyle.Render("• "+r) + "\n")
		}
	}

	b.WriteString("\n")
	if res.Valid() {
		b.WriteString(successStyle.Bold(true).Render("ACCEPTED"))
	} else {
		b.WriteString(errorStyle.Bold(true).Render("REJECTED"))
	}
	return boxStyle.Render(b.String())
}

func renderReport(r portfolio.Report) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Portfolio: %d positions", r.Positions)))
	b.WriteString("\n\n")

	b.WriteString(row("Net value", cost.FormatMoney(r.NetValue)) + "\n")
	b.WriteString(row("Gross value", cost.FormatMoney(r.GrossValue)) + "\n")
	b.WriteString(row("Unrealized P&L", cost.FormatMoney(r.UnrealizedPnL)) + "\n")
	b.WriteString(row("Beta", fmt.Sprintf("%.2f", r.Beta)) + "\n")
	b.WriteString(row("Volatility", fmt.Sprintf("%.1f%%", r.Volatility*100)) + "\n")
	b.WriteString(row("VaR 95", fmt.Sprintf("%s (%.2f%%)", cost.FormatMoney(r.VaR95), r.VaRRatio*100)) + "\n")
	b.WriteString(row("Max drawdown", fmt.Sprintf("%.1f%%", r.MaxDrawdown*100)) + "\n")
	b.WriteString(row("Sharpe", fmt.Sprintf("%.2f", r.Sharpe)) + "\n")
	b.WriteString(row("Concentration", fmt.Sprintf("%.1f%% (HHI %.3f, top 5 %.1f%%)", r.Concentration*100, r.HHI, r.Top5Weight*100)) + "\n")
	b.WriteString(row("Score", levelStyle(r.Status).Render(fmt.Sprintf("%.1f %s", r.Score, r.Status))) + "\n")

	if len(r.Holdings) > 0 {
		b.WriteString("\n")
		for _, h := range r.Holdings {
			b.WriteString(fmt.Sprintf("  %-8s %6.1f%%  %14s  %s\n", h.Symbol, h.Weight*100, cost.FormatMoney(h.MarketValue), dimStyle.Render(h.Sector)))
		}
	}
	if len(r.Sectors) > 0 {
		b.WriteString("\n")
		for _, s := range r.Sectors {
			b.WriteString(fmt.Sprintf("  %-16s %s\n", s.Sector, levelStyle(s.Level).Render(fmt.Sprintf("%5.1f%%", s.Weight*100))))
		}
	}
	if len(r.Breaches) > 0 {
		b.WriteString("\n")
		for _, br := range r.Breaches {
			b.WriteString(errorStyle.Render("✗ "+br.Message) + "\n")
		}
	}
	if len(r.Recommendations) > 0 {
		b.WriteString("\n")
		for _, rec := range r.Recommendations {
			b.WriteString(dimStyle.Render("• "+rec) + "\n")
		}
	}
	return boxStyle.Render(strings.TrimRight(b.String(), "\n"))
}

func renderAlert(a alert.Alert, state alert.State) string {
	style := dimStyle
	switch state {
	case alert.StateActive:
		style = successStyle
	case alert.StateTriggered:
		style = warnStyle
	}
	line := fmt.Sprintf("%s  %-10s %s", a.ID[:min(8, len(a.ID))], style.Render(string(state)), a.Describe())
	if a.Note != "" {
		line += dimStyle.Render("  # " + a.Note)
	}
	return line
}

func renderTrigger(t alert.Trigger) string {
	return warnStyle.Bold(true).Render("🔔 "+t.Symbol) + " " + t.Message() + dimStyle.Render("  "+t.At.Format("15:04:05"))
}
