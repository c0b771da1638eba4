package alert

import (
	"sort"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading"
)

// entry guards one alert. Evaluation holds the entry lock for the whole
// read-decide-write step, so concurrent ticks for a symbol cannot both fire.
type entry struct {
	mu    sync.Mutex
	alert Alert
}

// Book is a concurrent registry of alerts indexed by symbol.
// The book lock only guards membership; alert state is guarded per entry.
type Book struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	bySymbol map[string]map[string]*entry
}

// NewBook creates a book holding alerts.
func NewBook(alerts ...Alert) *Book {
	b := &Book{
		entries:  make(map[string]*entry),
		bySymbol: make(map[string]map[string]*entry),
	}
	for _, a := range alerts {
		b.Put(a)
	}
	return b
}

// Put adds a or replaces the alert with the same id. A replaced alert keeps
// its entry, so an evaluation in progress finishes before a is stored.
func (b *Book) Put(a Alert) {
	a.Symbol = trading.NormalizeSymbol(a.Symbol)

	b.mu.Lock()
	defer b.mu.Unlock()

	if e, ok := b.entries[a.ID]; ok {
		e.mu.Lock()
		prev := e.alert.Symbol
		e.alert = a
		e.mu.Unlock()
		if prev != a.Symbol {
			b.dropSymbol(prev, a.ID)
			b.index(a.ID, a.Symbol, e)
		}
		return
	}
	e := &entry{alert: a}
	b.entries[a.ID] = e
	b.index(a.ID, a.Symbol, e)
}

// index must be called with b.mu held.
func (b *Book) index(id, symbol string, e *entry) {
	if b.bySymbol[symbol] == nil {
		b.bySymbol[symbol] = make(map[string]*entry)
	}
	b.bySymbol[symbol][id] = e
}

// unindex must be called with b.mu held.
func (b *Book) unindex(id string, e *entry) {
	e.mu.Lock()
	symbol := e.alert.Symbol
	e.mu.Unlock()

	delete(b.entries, id)
	b.dropSymbol(symbol, id)
}

// dropSymbol must be called with b.mu held.
func (b *Book) dropSymbol(symbol, id string) {
	if set := b.bySymbol[symbol]; set != nil {
		delete(set, id)
		if len(set) == 0 {
			delete(b.bySymbol, symbol)
		}
	}
}

// Remove deletes the alert with id.
func (b *Book) Remove(id string) (Alert, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[id]
	if !ok {
		return Alert{}, ErrNotFound
	}
	b.unindex(id, e)
	return e.snapshot(), nil
}

// Get returns the alert with id.
func (b *Book) Get(id string) (Alert, error) {
	b.mu.RLock()
	e, ok := b.entries[id]
	b.mu.RUnlock()
	if !ok {
		return Alert{}, ErrNotFound
	}
	return e.snapshot(), nil
}

// Len returns the number of alerts.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// List returns every alert ordered by creation time.
func (b *Book) List() []Alert {
	b.mu.RLock()
	entries := make([]*entry, 0, len(b.entries))
	for _, e := range b.entries {
		entries = append(entries, e)
	}
	b.mu.RUnlock()
	return collect(entries)
}

// ForSymbol returns the alerts for symbol.
func (b *Book) ForSymbol(symbol string) []Alert {
	return collect(b.symbolEntries(trading.NormalizeSymbol(symbol)))
}

// Symbols returns the symbols that have at least one alert, sorted.
func (b *Book) Symbols() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, 0, len(b.bySymbol))
	for s := range b.bySymbol {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Match returns the alerts whose symbol matches a doublestar pattern such
// as "AA*" or "{AAPL,MSFT}". Invalid patterns match nothing.
func (b *Book) Match(pattern string) []Alert {
	pattern = trading.NormalizeSymbol(pattern)
	if !doublestar.ValidatePattern(pattern) {
		return nil
	}

	b.mu.RLock()
	var entries []*entry
	for symbol, set := range b.bySymbol {
		if ok, _ := doublestar.Match(pattern, symbol); !ok {
			continue
		}
		for _, e := range set {
			entries = append(entries, e)
		}
	}
	b.mu.RUnlock()
	return collect(entries)
}

// Update applies fn to the alert with id atomically and stores the result.
// fn must not change the alert's id or symbol.
func (b *Book) Update(id string, fn func(Alert) Alert) (Alert, error) {
	b.mu.RLock()
	e, ok := b.entries[id]
	b.mu.RUnlock()
	if !ok {
		return Alert{}, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	next := fn(e.alert)
	next.ID = e.alert.ID
	next.Symbol = e.alert.Symbol
	e.alert = next
	return next, nil
}

// SetActive enables or disables the alert with id.
func (b *Book) SetActive(id string, active bool) (Alert, error) {
	return b.Update(id, func(a Alert) Alert { return SetActive(a, active) })
}

// Toggle flips the active flag of the alert with id.
func (b *Book) Toggle(id string) (Alert, error) {
	return b.Update(id, func(a Alert) Alert { return SetActive(a, !a.Active) })
}

// Apply evaluates every alert for q's symbol and returns the triggers, in
// alert creation order. Each alert fires at most once across all callers.
func (b *Book) Apply(q trading.Quote, now time.Time) []Trigger {
	entries := b.symbolEntries(trading.NormalizeSymbol(q.Symbol))
	sortEntries(entries)

	var triggers []Trigger
	for _, e := range entries {
		e.mu.Lock()
		next, trig := Evaluate(e.alert, q, now)
		e.alert = next
		e.mu.Unlock()
		if trig != nil {
			triggers = append(triggers, *trig)
		}
	}
	return triggers
}

// Prune removes alerts that expired before now and returns them.
func (b *Book) Prune(now time.Time) []Alert {
	b.mu.Lock()
	defer b.mu.Unlock()

	var removed []Alert
	for id, e := range b.entries {
		a := e.snapshot()
		if a.State(now) == StateExpired {
			b.unindex(id, e)
			removed = append(removed, a)
		}
	}
	sortAlerts(removed)
	return removed
}

func (b *Book) symbolEntries(symbol string) []*entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	set := b.bySymbol[symbol]
	entries := make([]*entry, 0, len(set))
	for _, e := range set {
		entries = append(entries, e)
	}
	return entries
}

func (e *entry) snapshot() Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.alert
}

func collect(entries []*entry) []Alert {
	out := make([]Alert, len(entries))
	for i, e := range entries {
		out[i] = e.snapshot()
	}
	sortAlerts(out)
	return out
}

func sortEntries(entries []*entry) {
	keys := make(map[*entry]Alert, len(entries))
	for _, e := range entries {
		keys[e] = e.snapshot()
	}
	sort.Slice(entries, func(i, j int) bool {
		return less(keys[entries[i]], keys[entries[j]])
	})
}

func sortAlerts(alerts []Alert) {
	sort.Slice(alerts, func(i, j int) bool { return less(alerts[i], alerts[j]) })
}

func less(a, b Alert) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
