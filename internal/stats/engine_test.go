package stats

import (
	"errors"
	"testing"
	"time"

	"posadmin/backend/internal/domain"
)

func fixedNow(value string) func() time.Time {
	day, err := time.Parse(dateLayout, value)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return day }
}

func TestCatalogRecompute(t *testing.T) {
	e := NewEngine()
	e.OnCatalogSnapshot([]domain.Product{
		{ID: "p1", CostPriceCents: 5, Stock: 0},
		{ID: "p2", CostPriceCents: 5, Stock: 3},
		{ID: "p3", CostPriceCents: 5, Stock: 10},
	})

	got := e.Current()
	if got.OutOfStockCount != 1 {
		t.Fatalf("out of stock = %d, want 1", got.OutOfStockCount)
	}
	if got.LowStockCount != 1 {
		t.Fatalf("low stock = %d, want 1", got.LowStockCount)
	}
	if got.InvestmentCents != 65 {
		t.Fatalf("investment = %d, want 65", got.InvestmentCents)
	}
	if got.TotalProducts != 3 {
		t.Fatalf("total products = %d, want 3", got.TotalProducts)
	}
}

func TestLowStockBoundaries(t *testing.T) {
	e := NewEngine()
	e.OnCatalogSnapshot([]domain.Product{
		{ID: "p1", Stock: 1},
		{ID: "p2", Stock: 4},
		{ID: "p3", Stock: 5},
	})

	got := e.Current()
	// Zero stock is out-of-stock, never low; exactly the threshold is healthy.
	if got.LowStockCount != 2 || got.OutOfStockCount != 0 {
		t.Fatalf("low=%d out=%d, want low=2 out=0", got.LowStockCount, got.OutOfStockCount)
	}
}

func TestLedgerRecomputeAllWindow(t *testing.T) {
	e := NewEngine()
	e.OnLedgerSnapshot([]domain.Sale{
		{ID: "s1", Date: "2024-01-01", TotalAmountCents: 100, ProfitCents: 20, ItemsCount: 2},
		{ID: "s2", Date: "2024-01-01", TotalAmountCents: 50, ProfitCents: 10, ItemsCount: 1},
	})

	got := e.Current()
	if got.RevenueCents != 150 || got.ProfitCents != 30 || got.SoldCount != 3 {
		t.Fatalf("revenue=%d profit=%d sold=%d, want 150/30/3", got.RevenueCents, got.ProfitCents, got.SoldCount)
	}
	if len(got.ChartSeries) != 1 || got.ChartSeries[0].Date != "2024-01-01" || got.ChartSeries[0].AmountCents != 150 {
		t.Fatalf("unexpected chart series: %+v", got.ChartSeries)
	}
}

func TestExactDateWindowZeroesTotalsKeepsActivity(t *testing.T) {
	e := NewEngine()
	e.OnLedgerSnapshot([]domain.Sale{
		{ID: "s1", Date: "2024-01-01", TotalAmountCents: 100, ProfitCents: 20, ItemsCount: 2},
		{ID: "s2", Date: "2024-01-01", TotalAmountCents: 50, ProfitCents: 10, ItemsCount: 1},
	})

	if err := e.SetWindowFilter(Filter{Kind: FilterDate, Date: "2024-02-01"}); err != nil {
		t.Fatalf("set filter: %v", err)
	}

	got := e.Current()
	if got.RevenueCents != 0 || got.ProfitCents != 0 || got.SoldCount != 0 || len(got.ChartSeries) != 0 {
		t.Fatalf("expected zeroed totals under empty window, got %+v", got)
	}
	// The activity feed ignores the window filter.
	if len(got.RecentActivity) != 2 {
		t.Fatalf("recent activity = %d entries, want 2", len(got.RecentActivity))
	}
}

func TestWindowFilters(t *testing.T) {
	sales := []domain.Sale{
		{ID: "s1", Date: "2024-03-15", TotalAmountCents: 10},
		{ID: "s2", Date: "2024-03-01", TotalAmountCents: 20},
		{ID: "s3", Date: "2024-02-15", TotalAmountCents: 40},
		{ID: "s4", Date: "2023-03-15", TotalAmountCents: 80},
		{ID: "s5", Date: "not-a-date", TotalAmountCents: 160},
	}

	cases := []struct {
		name        string
		filter      Filter
		wantRevenue int64
	}{
		{"all includes unparsable dates", Filter{Kind: FilterAll}, 310},
		{"today matches the exact day", Filter{Kind: FilterToday}, 10},
		{"month requires same year and month", Filter{Kind: FilterMonth}, 30},
		{"year spans the calendar year", Filter{Kind: FilterYear}, 70},
		{"custom day", Filter{Kind: FilterDate, Date: "2024-02-15"}, 40},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := NewEngine()
			e.now = fixedNow("2024-03-15")
			e.OnLedgerSnapshot(sales)
			if err := e.SetWindowFilter(tc.filter); err != nil {
				t.Fatalf("set filter: %v", err)
			}
			if got := e.Current().RevenueCents; got != tc.wantRevenue {
				t.Fatalf("revenue = %d, want %d", got, tc.wantRevenue)
			}
		})
	}
}

func TestInvalidFilterRejectedPriorRetained(t *testing.T) {
	e := NewEngine()
	e.OnLedgerSnapshot([]domain.Sale{
		{ID: "s1", Date: "2024-01-01", TotalAmountCents: 100},
	})
	if err := e.SetWindowFilter(Filter{Kind: FilterDate, Date: "2024-01-01"}); err != nil {
		t.Fatalf("set filter: %v", err)
	}

	for _, bad := range []Filter{
		{Kind: "fortnight"},
		{Kind: FilterDate, Date: "01/02/2024"},
		{Kind: FilterDate},
	} {
		err := e.SetWindowFilter(bad)
		if !errors.Is(err, ErrInvalidFilter) {
			t.Fatalf("filter %+v: got err=%v, want ErrInvalidFilter", bad, err)
		}
	}

	if got := e.WindowFilter(); got.Kind != FilterDate || got.Date != "2024-01-01" {
		t.Fatalf("prior filter not retained: %+v", got)
	}
	if got := e.Current().RevenueCents; got != 100 {
		t.Fatalf("revenue = %d, want 100", got)
	}
}

func TestRecentActivityNewestFirstCappedAtFive(t *testing.T) {
	e := NewEngine()
	e.OnLedgerSnapshot([]domain.Sale{
		{ID: "s1", Date: "2024-01-01"},
		{ID: "s2", Date: "2024-01-03"},
		{ID: "s3", Date: "2024-01-02"},
		{ID: "s4", Date: "2024-01-07"},
		{ID: "s5", Date: "2024-01-05"},
		{ID: "s6", Date: "2024-01-06"},
		{ID: "s7", Date: "2024-01-04"},
	})

	got := e.Current().RecentActivity
	if len(got) != 5 {
		t.Fatalf("recent activity = %d entries, want 5", len(got))
	}
	wantOrder := []string{"s4", "s6", "s5", "s7", "s2"}
	for i, want := range wantOrder {
		if got[i].ID != want {
			t.Fatalf("position %d: got %s, want %s (full: %+v)", i, got[i].ID, want, got)
		}
	}
}

func TestRecentActivitySameDayKeepsArrivalOrder(t *testing.T) {
	e := NewEngine()
	e.OnLedgerSnapshot([]domain.Sale{
		{ID: "first", Date: "2024-01-01"},
		{ID: "second", Date: "2024-01-01"},
		{ID: "third", Date: "2024-01-01"},
	})

	got := e.Current().RecentActivity
	for i, want := range []string{"first", "second", "third"} {
		if got[i].ID != want {
			t.Fatalf("position %d: got %s, want %s", i, got[i].ID, want)
		}
	}
}

func TestSnapshotReplayIsIdempotent(t *testing.T) {
	catalog := []domain.Product{{ID: "p1", CostPriceCents: 10, Stock: 2}}
	ledger := []domain.Sale{{ID: "s1", Date: "2024-01-01", TotalAmountCents: 100, ProfitCents: 40, ItemsCount: 1}}

	e := NewEngine()
	e.OnCatalogSnapshot(catalog)
	e.OnLedgerSnapshot(ledger)
	first := e.Current()

	e.OnCatalogSnapshot(catalog)
	e.OnLedgerSnapshot(ledger)
	second := e.Current()

	if first.RevenueCents != second.RevenueCents ||
		first.InvestmentCents != second.InvestmentCents ||
		first.SoldCount != second.SoldCount ||
		len(first.ChartSeries) != len(second.ChartSeries) {
		t.Fatalf("replaying identical snapshots changed the view: %+v vs %+v", first, second)
	}
}

func TestIndependentStreamsDoNotClobberEachOther(t *testing.T) {
	e := NewEngine()
	e.OnCatalogSnapshot([]domain.Product{{ID: "p1", CostPriceCents: 10, Stock: 2}})
	e.OnLedgerSnapshot([]domain.Sale{{ID: "s1", Date: "2024-01-01", TotalAmountCents: 100}})

	// A new catalog snapshot must leave the ledger-derived fields alone.
	e.OnCatalogSnapshot([]domain.Product{{ID: "p1", CostPriceCents: 10, Stock: 1}})

	got := e.Current()
	if got.RevenueCents != 100 {
		t.Fatalf("catalog update clobbered revenue: %+v", got)
	}
	if got.InvestmentCents != 10 {
		t.Fatalf("investment = %d, want 10", got.InvestmentCents)
	}
}

func TestStaleFlagsClearedByFreshSnapshot(t *testing.T) {
	e := NewEngine()
	e.MarkCatalogStale()
	e.MarkLedgerStale()

	got := e.Current()
	if !got.CatalogStale || !got.LedgerStale {
		t.Fatalf("expected both stale flags set, got %+v", got)
	}

	e.OnCatalogSnapshot(nil)
	if e.Current().CatalogStale {
		t.Fatal("catalog snapshot must clear the catalog stale flag")
	}
	if !e.Current().LedgerStale {
		t.Fatal("catalog snapshot must not touch the ledger stale flag")
	}

	e.OnLedgerSnapshot(nil)
	if e.Current().LedgerStale {
		t.Fatal("ledger snapshot must clear the ledger stale flag")
	}
}

func TestOnChangeNotifiesSubscribers(t *testing.T) {
	e := NewEngine()
	seen := make(chan domain.DerivedStats, 4)
	unsubscribe := e.OnChange(func(s domain.DerivedStats) { seen <- s })

	e.OnCatalogSnapshot([]domain.Product{{ID: "p1", CostPriceCents: 5, Stock: 4}})

	select {
	case got := <-seen:
		if got.InvestmentCents != 20 {
			t.Fatalf("unexpected notification payload: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("no notification delivered")
	}

	unsubscribe()
	e.OnCatalogSnapshot(nil)
	select {
	case got := <-seen:
		t.Fatalf("notification after unsubscribe: %+v", got)
	default:
	}
}
