// Package engine ties quotes, alerts, order checks and portfolio risk together.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/BoggsSystems/hingetrade-sub000/pkg/cost"
	"github.com/BoggsSystems/hingetrade-sub000/pkg/hook"
	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading"
	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading/alert"
	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading/metrics"
	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading/order"
	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading/portfolio"
	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading/positions"
	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading/provider"
	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading/risk"
	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading/storage"
)

var (
	// ErrOrderRejected is wrapped by RejectedError.
	ErrOrderRejected = errors.New("order rejected")
	// ErrBlocked is returned when a pre_submit hook blocks an order.
	ErrBlocked = errors.New("order blocked by hook")
	// ErrNoSubmitter is returned by Submit when no submitter is configured.
	ErrNoSubmitter = errors.New("no order submitter configured")
)

// RejectedError carries the validation result of a rejected order.
type RejectedError struct {
	Result order.Result
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("order rejected: %s", strings.Join(e.Result.Messages(), "; "))
}

func (e *RejectedError) Unwrap() error { return ErrOrderRejected }

// Submitter hands an accepted order to a broker and returns its id there.
type Submitter interface {
	Submit(ctx context.Context, d order.Draft) (string, error)
}

// SubmitterFunc adapts a function to Submitter.
type SubmitterFunc func(ctx context.Context, d order.Draft) (string, error)

func (f SubmitterFunc) Submit(ctx context.Context, d order.Draft) (string, error) { return f(ctx, d) }

// Config holds engine configuration
type Config struct {
	Symbols      []string        // symbols to watch
	Balance      decimal.Decimal // account cash available for orders
	Limits       risk.Limits
	PollInterval time.Duration // used when the source cannot stream
	DailyReturns []float64     // portfolio return history, oldest first

	CacheTTL     time.Duration
	CacheMaxCost int64

	MaxHistory  int // quotes kept per symbol
	MaxTriggers int
}

func (c *Config) setDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 30 * time.Second
	}
	if c.CacheMaxCost <= 0 {
		c.CacheMaxCost = 1 << 10
	}
	if c.MaxHistory <= 0 {
		c.MaxHistory = 1000
	}
	if c.MaxTriggers <= 0 {
		c.MaxTriggers = 500
	}
	if c.Limits == (risk.Limits{}) {
		c.Limits = risk.DefaultLimits()
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithStreamer receives quotes by subscription instead of polling.
func WithStreamer(s provider.Streamer) Option { return func(e *Engine) { e.stream = s } }

// WithHistory lets RefreshReturns derive the portfolio return series.
func WithHistory(h provider.HistorySource) Option { return func(e *Engine) { e.history = h } }

// WithReturns seeds the portfolio daily return series, oldest first.
func WithReturns(r []float64) Option { return func(e *Engine) { e.config.DailyReturns = r } }

// WithAlertStore persists alert changes and seeds the book on New.
func WithAlertStore(s *alert.Store) Option { return func(e *Engine) { e.store = s } }

func WithSubmitter(s Submitter) Option { return func(e *Engine) { e.submitter = s } }

func WithHooks(h *hook.Manager) Option { return func(e *Engine) { e.hooks = h } }

func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.logger = l } }

func WithPositions(b *positions.Book) Option { return func(e *Engine) { e.positions = b } }

func WithValidator(v *order.Validator) Option { return func(e *Engine) { e.validator = v } }

func WithAnalyzer(a *portfolio.Analyzer) Option { return func(e *Engine) { e.analyzer = a } }

func WithFees(t *cost.Tracker) Option { return func(e *Engine) { e.fees = t } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// Engine is the main risk engine
type Engine struct {
	config Config

	quotes    provider.QuoteSource
	stream    provider.Streamer
	history   provider.HistorySource
	book      *storage.MemoryStorage
	alerts    *alert.Book
	store     *alert.Store
	positions *positions.Book

	validator *order.Validator
	analyzer  *portfolio.Analyzer
	submitter Submitter
	hooks     *hook.Manager
	metrics   *metrics.Metrics
	fees      *cost.Tracker
	cache     *reportCache

	logger *zap.Logger
	now    func() time.Time

	mu       sync.RWMutex
	running  bool
	closed   bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	triggers chan alert.Trigger
}

// New creates an engine reading quotes from src. Alerts held by the alert
// store, if one is given, are loaded into the book.
func New(cfg Config, src provider.QuoteSource, opts ...Option) (*Engine, error) {
	cfg.setDefaults()
	cfg.Symbols = normalize(cfg.Symbols)

	e := &Engine{
		config:   cfg,
		quotes:   src,
		now:      time.Now,
		triggers: make(chan alert.Trigger, 100),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	e.logger = e.logger.Named("engine")
	if e.validator == nil {
		e.validator = order.NewValidator(order.DefaultSettings(), nil, cost.DefaultSchedule())
	}
	if e.analyzer == nil {
		e.analyzer = portfolio.NewAnalyzer(portfolio.DefaultSettings(), e.validator.Scorer)
	}
	if e.positions == nil {
		e.positions = positions.NewBook()
	}
	if e.fees == nil {
		e.fees = cost.NewTracker(e.validator.Commissions)
	}
	e.book = storage.NewMemoryStorage(cfg.MaxHistory, cfg.MaxTriggers)

	cache, err := newReportCache(cfg.CacheMaxCost, cfg.CacheTTL)
	if err != nil {
		return nil, fmt.Errorf("report cache: %w", err)
	}
	e.cache = cache

	e.alerts = alert.NewBook()
	if e.store != nil {
		b, err := e.store.LoadBook()
		if err != nil {
			return nil, fmt.Errorf("load alerts: %w", err)
		}
		e.alerts = b
	}
	if e.hooks != nil && e.metrics != nil {
		e.hooks.OnRun = func(ev hook.Event, result string) {
			e.metrics.HookRuns.WithLabelValues(string(ev), result).Inc()
		}
	}
	e.observeAlerts()
	return e, nil
}

// Start starts watching the configured symbols plus every symbol with an
// alert or a position.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	e.running = true
	e.cancel = cancel
	e.mu.Unlock()

	symbols := e.Watchlist()
	e.logger.Info("engine started", zap.Strings("symbols", symbols))

	if e.stream != nil {
		if err := e.stream.Subscribe(ctx, symbols, func(q trading.Quote) { e.OnQuote(q) }); err != nil {
			cancel()
			e.mu.Lock()
			e.running = false
			e.mu.Unlock()
			return fmt.Errorf("subscribe: %w", err)
		}
		return nil
	}

	e.wg.Add(1)
	go e.poll(ctx, symbols)
	return nil
}

// Stop stops the engine and waits for polling, the stream and background
// hooks to finish.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine not running")
	}
	e.running = false
	e.cancel()
	e.mu.Unlock()

	// no callback may be in flight once wg.Wait starts
	if e.stream != nil {
		if err := e.stream.Close(); err != nil {
			e.logger.Warn("close stream", zap.Error(err))
		}
	}
	e.wg.Wait()
	e.logger.Info("engine stopped")
	return nil
}

// Running reports whether Start has been called without a matching Stop.
func (e *Engine) Running() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// poll periodically fetches quotes for symbols
func (e *Engine) poll(ctx context.Context, symbols []string) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.PollInterval)
	defer ticker.Stop()

	e.fetch(ctx, symbols)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.fetch(ctx, symbols)
		}
	}
}

func (e *Engine) fetch(ctx context.Context, symbols []string) {
	for _, s := range symbols {
		q, err := provider.Lookup(ctx, e.quotes, s)
		if err != nil {
			if ctx.Err() == nil {
				e.logger.Debug("quote unavailable", zap.String("symbol", s), zap.Error(err))
			}
			continue
		}
		e.OnQuote(*q)
	}
}

// Watchlist returns the symbols the engine follows, sorted.
func (e *Engine) Watchlist() []string {
	set := make(map[string]struct{})
	for _, s := range e.config.Symbols {
		set[s] = struct{}{}
	}
	for _, s := range e.alerts.Symbols() {
		set[s] = struct{}{}
	}
	for _, s := range e.positions.Symbols() {
		set[s] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// OnQuote processes one quote: it updates the quote book and positions and
// evaluates alerts. Quotes older than the held quote are dropped.
func (e *Engine) OnQuote(q trading.Quote) []alert.Trigger {
	q.Symbol = trading.NormalizeSymbol(q.Symbol)
	if e.metrics != nil {
		e.metrics.QuotesReceived.WithLabelValues(e.sourceName()).Inc()
	}
	if !e.book.SaveQuote(q) {
		if e.metrics != nil {
			e.metrics.QuotesStale.Inc()
		}
		return nil
	}

	if e.positions.Reprice(q) {
		e.cache.Del(reportKey)
	}

	return e.fire(e.alerts.Apply(q, e.now()))
}

// fire records, persists and announces triggers.
func (e *Engine) fire(triggers []alert.Trigger) []alert.Trigger {
	for _, t := range triggers {
		e.book.SaveTrigger(t)
		e.logger.Info("alert triggered",
			zap.String("id", t.AlertID), zap.String("symbol", t.Symbol),
			zap.String("condition", string(t.Condition)), zap.String("target", t.Target))

		if e.store != nil {
			if a, err := e.alerts.Get(t.AlertID); err == nil {
				if err := e.store.Save(a); err != nil {
					e.logger.Error("persist alert", zap.String("id", a.ID), zap.Error(err))
				}
			}
		}
		if e.metrics != nil {
			e.metrics.AlertTriggers.WithLabelValues(string(t.Condition)).Inc()
		}
		if e.hooks != nil && t.Notify {
			e.runHook(hook.Payload{
				Event:  hook.EventAlertTriggered,
				Symbol: t.Symbol,
				Kind:   string(t.Condition),
				Fields: map[string]string{
					"id":      t.AlertID,
					"target":  t.Target,
					"bid":     t.Quote.Bid.String(),
					"message": t.Message(),
				},
				Data: t,
			})
		}

		select {
		case e.triggers <- t:
		default:
			e.logger.Warn("trigger channel full, dropping", zap.String("id", t.AlertID))
		}
	}
	if len(triggers) > 0 {
		e.observeAlerts()
	}
	return triggers
}

func (e *Engine) sourceName() string {
	if e.quotes != nil {
		return e.quotes.Name()
	}
	return "stream"
}

// runHook runs non-blocking hooks in the background. Hooks raised after
// Close are dropped.
func (e *Engine) runHook(p hook.Payload) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		e.logger.Warn("engine closed, hook dropped", zap.String("event", string(p.Event)))
		return
	}
	e.wg.Add(1)
	e.mu.RUnlock()
	go func() {
		defer e.wg.Done()
		e.hooks.Run(context.Background(), p)
	}()
}

// Triggers returns the channel of fired alerts.
func (e *Engine) Triggers() <-chan alert.Trigger {
	return e.triggers
}

// RecentTriggers returns up to limit of the latest triggers, oldest first.
func (e *Engine) RecentTriggers(limit int) []alert.Trigger {
	return e.book.Triggers(limit)
}

// History returns up to limit of the latest quotes seen for symbol.
func (e *Engine) History(symbol string, limit int) []trading.Quote {
	return e.book.History(trading.NormalizeSymbol(symbol), limit)
}

// Quote returns the held quote for symbol, fetching it from the source
// when none has been seen yet.
func (e *Engine) Quote(ctx context.Context, symbol string) (*trading.Quote, error) {
	symbol = trading.NormalizeSymbol(symbol)
	if q, ok := e.book.Quote(symbol); ok {
		return &q, nil
	}
	q, err := provider.Lookup(ctx, e.quotes, symbol)
	if err != nil {
		return nil, err
	}
	e.OnQuote(*q)
	return q, nil
}

// Validate checks d against the current quote, balance and limits. A
// missing quote is not an error: the price checks are skipped.
func (e *Engine) Validate(ctx context.Context, d order.Draft) order.Result {
	q, err := e.Quote(ctx, d.Symbol)
	if err != nil {
		q = nil
	}

	e.mu.RLock()
	balance, limits := e.config.Balance, e.config.Limits
	e.mu.RUnlock()

	res := e.validator.Validate(d, q, balance, limits)
	if e.metrics != nil {
		kinds := make([]string, len(res.Errors))
		for i, err := range res.Errors {
			kinds[i] = string(err.Kind)
		}
		e.metrics.ObserveValidation(res.Valid(), kinds)
	}
	return res
}

// Submit validates d, runs the pre_submit hooks and hands the order to the
// submitter. It returns the broker id along with the validation result.
func (e *Engine) Submit(ctx context.Context, d order.Draft) (string, order.Result, error) {
	res := e.Validate(ctx, d)
	log := e.logger.With(zap.String("order", d.ID), zap.String("symbol", d.Symbol))

	if !res.Valid() {
		log.Info("order rejected", zap.Strings("errors", res.Messages()))
		if e.hooks != nil {
			e.hooks.Run(ctx, hook.Payload{
				Event:  hook.EventOrderRejected,
				Symbol: d.Symbol,
				Kind:   string(res.Errors[0].Kind),
				Fields: orderFields(d, res),
				Data:   res,
			})
		}
		return "", res, &RejectedError{Result: res}
	}

	if e.hooks != nil {
		hr := e.hooks.Run(ctx, hook.Payload{
			Event:  hook.EventPreSubmit,
			Symbol: d.Symbol,
			Kind:   string(d.Type()),
			Fields: orderFields(d, res),
			Data:   d,
		})
		if hr.Blocked {
			return "", res, fmt.Errorf("%w: %s", ErrBlocked, hr.Message)
		}
	}

	if e.submitter == nil {
		return "", res, ErrNoSubmitter
	}
	id, err := e.submitter.Submit(ctx, d)
	if err != nil {
		return "", res, fmt.Errorf("submit %s: %w", d.ID, err)
	}
	if res.Estimate.Priced {
		e.fees.AddOrder(d.Quantity, res.Estimate.Price, d.Side == order.SideSell)
	}
	log.Info("order submitted", zap.String("broker_id", id), zap.String("notional", res.Estimate.Notional.String()))

	if e.hooks != nil {
		f := orderFields(d, res)
		f["broker_id"] = id
		e.runHook(hook.Payload{
			Event:  hook.EventOrderSubmitted,
			Symbol: d.Symbol,
			Kind:   string(d.Type()),
			Fields: f,
			Data:   d,
		})
	}
	return id, res, nil
}

func orderFields(d order.Draft, res order.Result) map[string]string {
	return map[string]string{
		"id":       d.ID,
		"side":     string(d.Side),
		"type":     string(d.Type()),
		"quantity": d.Quantity.String(),
		"notional": res.Estimate.Notional.String(),
		"risk":     res.Risk.Overall.String(),
		"order":    d.String(),
	}
}

const reportKey = "portfolio"

// Report assesses the current positions. Reports are cached until a
// position is repriced or the cache TTL passes.
func (e *Engine) Report(ctx context.Context) (portfolio.Report, error) {
	if v, ok := e.cache.Get(reportKey); ok {
		if r, ok := v.(portfolio.Report); ok {
			return r, nil
		}
	}

	start := time.Now()
	gen := e.cache.Generation()
	held, err := e.positions.Positions(ctx)
	if err != nil {
		return portfolio.Report{}, err
	}

	e.mu.RLock()
	in := portfolio.Inputs{
		AccountBalance: e.config.Balance,
		Limits:         e.config.Limits,
		DailyReturns:   e.config.DailyReturns,
		Quotes:         e.book.Quotes(),
		At:             e.now(),
	}
	e.mu.RUnlock()

	r := e.analyzer.Assess(held, in)
	// a reprice during Assess leaves r stale; return it but do not cache it
	e.cache.SetIf(reportKey, r, gen)

	if e.metrics != nil {
		e.metrics.ObserveReport(r.Score, time.Since(start))
	}
	if e.hooks != nil && r.Status >= trading.RiskHigh {
		e.runHook(hook.Payload{
			Event: hook.EventPortfolioRisk,
			Kind:  strings.ToLower(r.Status.String()),
			Fields: map[string]string{
				"score":    fmt.Sprintf("%.1f", r.Score),
				"breaches": fmt.Sprint(len(r.Breaches)),
			},
			Data: r,
		})
	}
	return r, nil
}

// RefreshReturns rebuilds the daily return series from the history of
// each held position, weighted by current weight. It needs WithHistory.
func (e *Engine) RefreshReturns(ctx context.Context, days int) ([]float64, error) {
	if e.history == nil {
		return nil, errors.New("no history source configured")
	}
	held, err := e.positions.Positions(ctx)
	if err != nil {
		return nil, err
	}

	all := make([][]float64, len(held))
	n := -1
	for i, p := range held {
		bars, err := e.history.GetHistory(ctx, p.Symbol, days+1)
		if err != nil {
			return nil, fmt.Errorf("history %s: %w", p.Symbol, err)
		}
		all[i] = provider.Returns(bars)
		if n < 0 || len(all[i]) < n {
			n = len(all[i])
		}
	}

	// align on the most recent n days
	series := make([]float64, max(n, 0))
	for i, p := range held {
		w := p.Weight
		if p.IsShort() {
			w = -w
		}
		r := all[i][len(all[i])-n:]
		for j := range series {
			series[j] += w * r[j]
		}
	}

	e.mu.Lock()
	e.config.DailyReturns = series
	e.mu.Unlock()
	e.cache.Del(reportKey)
	return series, nil
}

// SetBalance replaces the account balance used for checks and reports.
func (e *Engine) SetBalance(b decimal.Decimal) {
	e.mu.Lock()
	e.config.Balance = b
	e.mu.Unlock()
	e.cache.Del(reportKey)
}

// SetLimits replaces the risk limits.
func (e *Engine) SetLimits(l risk.Limits) {
	e.mu.Lock()
	e.config.Limits = l
	e.mu.Unlock()
	e.cache.Del(reportKey)
}

// SetPosition records a holding and invalidates the cached report.
func (e *Engine) SetPosition(p trading.Position) {
	e.positions.Set(p)
	if q, ok := e.book.Quote(trading.NormalizeSymbol(p.Symbol)); ok {
		e.positions.Reprice(q)
	}
	e.cache.Del(reportKey)
}

// Positions returns the position book.
func (e *Engine) Positions() *positions.Book { return e.positions }

// Fees returns the accumulated fees of submitted orders.
func (e *Engine) Fees() cost.Stats { return e.fees.GetStats() }

// AddAlert stores a and evaluates it against the held quote, if any.
func (e *Engine) AddAlert(a alert.Alert) ([]alert.Trigger, error) {
	if err := a.Check(); err != nil {
		return nil, err
	}
	if e.store != nil {
		if err := e.store.Save(a); err != nil {
			return nil, err
		}
	}
	e.alerts.Put(a)
	e.observeAlerts()

	// alerts already satisfied by the held quote fire now; evaluation is
	// idempotent so the symbol's other alerts are unaffected
	q, ok := e.book.Quote(trading.NormalizeSymbol(a.Symbol))
	if !ok {
		return nil, nil
	}
	return e.fire(e.alerts.Apply(q, e.now())), nil
}

// RemoveAlert deletes the alert with id.
func (e *Engine) RemoveAlert(id string) (alert.Alert, error) {
	a, err := e.alerts.Remove(id)
	if err != nil {
		return alert.Alert{}, err
	}
	if e.store != nil {
		if err := e.store.Delete(id); err != nil {
			return a, err
		}
	}
	e.observeAlerts()
	return a, nil
}

// ToggleAlert flips the active flag of the alert with id.
func (e *Engine) ToggleAlert(id string) (alert.Alert, error) {
	a, err := e.alerts.Toggle(id)
	if err != nil {
		return alert.Alert{}, err
	}
	if e.store != nil {
		if err := e.store.Save(a); err != nil {
			return a, err
		}
	}
	e.observeAlerts()
	return a, nil
}

// Alerts returns every alert, sorted.
func (e *Engine) Alerts() []alert.Alert { return e.alerts.List() }

// PruneAlerts drops expired alerts from the book and the store.
func (e *Engine) PruneAlerts() ([]alert.Alert, error) {
	removed := e.alerts.Prune(e.now())
	if e.store != nil {
		for _, a := range removed {
			if err := e.store.Delete(a.ID); err != nil {
				return removed, err
			}
		}
	}
	if len(removed) > 0 {
		e.observeAlerts()
	}
	return removed, nil
}

func (e *Engine) observeAlerts() {
	if e.metrics == nil {
		return
	}
	now := e.now()
	n := 0
	for _, a := range e.alerts.List() {
		if a.State(now) == alert.StateActive {
			n++
		}
	}
	e.metrics.ActiveAlerts.Set(float64(n))
}

// Close stops a running engine, waits for background hooks and releases
// the report cache.
func (e *Engine) Close() {
	if e.Running() {
		if err := e.Stop(); err != nil {
			e.logger.Debug("stop on close", zap.Error(err))
		}
	}
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	e.wg.Wait()
	e.cache.Close()
}

func normalize(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s = trading.NormalizeSymbol(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
