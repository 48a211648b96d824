// Package stats maintains the live dashboard aggregates. The engine caches
// the last-known catalog and ledger snapshots and fully recomputes the
// derived view on every input change, so consumers never observe a mix of
// fields from different recompute generations within a field group.
package stats

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"posadmin/backend/internal/domain"
)

// LowStockThreshold is a fixed policy constant: a product with stock strictly
// between zero and this value counts as low stock.
const LowStockThreshold = 5

const dateLayout = "2006-01-02"

const (
	FilterAll   = "all"
	FilterToday = "today"
	FilterMonth = "month"
	FilterYear  = "year"
	FilterDate  = "custom"
)

var ErrInvalidFilter = errors.New("invalid window filter")

// Filter restricts which ledger entries contribute to the derived totals and
// chart series. The recent-activity feed ignores it.
type Filter struct {
	Kind string `json:"kind"`
	Date string `json:"date,omitempty"`
}

func (f Filter) validate() error {
	switch f.Kind {
	case FilterAll, FilterToday, FilterMonth, FilterYear:
		return nil
	case FilterDate:
		if _, err := time.Parse(dateLayout, f.Date); err != nil {
			return fmt.Errorf("%w: bad date %q", ErrInvalidFilter, f.Date)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown kind %q", ErrInvalidFilter, f.Kind)
}

type Engine struct {
	mu      sync.Mutex
	catalog []domain.Product
	ledger  []domain.Sale
	filter  Filter
	stats   domain.DerivedStats
	nextID  int
	subs    map[int]func(domain.DerivedStats)
	now     func() time.Time
}

func NewEngine() *Engine {
	return &Engine{
		filter: Filter{Kind: FilterAll},
		subs:   make(map[int]func(domain.DerivedStats)),
		now:    time.Now,
	}
}

// Current returns the latest consolidated view. The slices it carries are
// rebuilt on every recompute and must be treated as read-only.
func (e *Engine) Current() domain.DerivedStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

func (e *Engine) WindowFilter() Filter {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.filter
}

// OnChange registers fn to run with every consolidated recompute result.
func (e *Engine) OnChange(fn func(domain.DerivedStats)) func() {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.subs[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

// OnCatalogSnapshot replaces the cached catalog wholesale and recomputes the
// catalog-derived fields. A fresh snapshot clears the catalog stale flag.
func (e *Engine) OnCatalogSnapshot(products []domain.Product) {
	e.mu.Lock()
	e.catalog = products
	e.stats.CatalogStale = false
	e.recomputeCatalogLocked()
	e.emitAndUnlock()
}

// OnLedgerSnapshot replaces the cached ledger wholesale and recomputes the
// ledger-derived fields under the current window filter.
func (e *Engine) OnLedgerSnapshot(sales []domain.Sale) {
	e.mu.Lock()
	e.ledger = sales
	e.stats.LedgerStale = false
	e.recomputeLedgerLocked()
	e.emitAndUnlock()
}

// SetWindowFilter re-reduces the cached ledger under the new filter; no fetch
// is needed. An invalid filter is rejected and the prior filter retained.
func (e *Engine) SetWindowFilter(filter Filter) error {
	if err := filter.validate(); err != nil {
		return err
	}
	e.mu.Lock()
	e.filter = filter
	e.recomputeLedgerLocked()
	e.emitAndUnlock()
	return nil
}

// MarkCatalogStale flags that the catalog stream faulted; the last-known-good
// catalog fields stay in place.
func (e *Engine) MarkCatalogStale() {
	e.mu.Lock()
	e.stats.CatalogStale = true
	e.emitAndUnlock()
}

// MarkLedgerStale flags that the ledger stream faulted; the last-known-good
// ledger fields stay in place.
func (e *Engine) MarkLedgerStale() {
	e.mu.Lock()
	e.stats.LedgerStale = true
	e.emitAndUnlock()
}

func (e *Engine) recomputeCatalogLocked() {
	var investment int64
	low, out := 0, 0
	for _, p := range e.catalog {
		investment += p.CostPriceCents * int64(p.Stock)
		switch {
		case p.Stock == 0:
			out++
		case p.Stock < LowStockThreshold:
			low++
		}
	}
	e.stats.InvestmentCents = investment
	e.stats.TotalProducts = len(e.catalog)
	e.stats.LowStockCount = low
	e.stats.OutOfStockCount = out
}

func (e *Engine) recomputeLedgerLocked() {
	now := e.now()
	var revenue, profit int64
	sold := 0
	byDay := make(map[string]int64)

	for _, sale := range e.ledger {
		if !e.filter.includes(sale, now) {
			continue
		}
		revenue += sale.TotalAmountCents
		profit += sale.ProfitCents
		sold += sale.ItemsCount
		byDay[sale.Date] += sale.TotalAmountCents
	}

	series := make([]domain.ChartPoint, 0, len(byDay))
	for day, amount := range byDay {
		series = append(series, domain.ChartPoint{Date: day, AmountCents: amount})
	}
	// ISO dates sort chronologically as strings.
	sort.Slice(series, func(i, j int) bool { return series[i].Date < series[j].Date })

	e.stats.RevenueCents = revenue
	e.stats.ProfitCents = profit
	e.stats.SoldCount = sold
	e.stats.ChartSeries = series
	e.stats.RecentActivity = recentSales(e.ledger, 5)
}

func (f Filter) includes(sale domain.Sale, now time.Time) bool {
	switch f.Kind {
	case FilterAll:
		return true
	case FilterToday:
		return sale.Date == now.Format(dateLayout)
	case FilterMonth:
		day, err := time.Parse(dateLayout, sale.Date)
		return err == nil && day.Year() == now.Year() && day.Month() == now.Month()
	case FilterYear:
		day, err := time.Parse(dateLayout, sale.Date)
		return err == nil && day.Year() == now.Year()
	case FilterDate:
		return sale.Date == f.Date
	}
	return false
}

// recentSales returns the most recent entries of the full, unfiltered ledger,
// newest first. The activity feed ignores the window filter by design: it
// always shows true recent events. Same-day entries keep arrival order.
func recentSales(ledger []domain.Sale, limit int) []domain.Sale {
	recent := make([]domain.Sale, len(ledger))
	copy(recent, ledger)
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].Date > recent[j].Date })
	if len(recent) > limit {
		recent = recent[:limit]
	}
	return recent
}

// emitAndUnlock snapshots the consolidated view and the subscriber list,
// releases the lock, then runs the callbacks. Callers must hold e.mu.
func (e *Engine) emitAndUnlock() {
	snapshot := e.stats
	fns := make([]func(domain.DerivedStats), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(snapshot)
	}
}
