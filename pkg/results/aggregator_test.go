package results_test

import (
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/lunarquant/lunar/pkg/bus"
	"github.com/lunarquant/lunar/pkg/common"
	"github.com/lunarquant/lunar/pkg/ledger"
	"github.com/lunarquant/lunar/pkg/market"
	"github.com/lunarquant/lunar/pkg/market/memory"
	"github.com/lunarquant/lunar/pkg/results"
	"github.com/lunarquant/lunar/pkg/utility/fixed"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type fixture struct {
	store     *memory.Store
	adapter   *market.Adapter
	router    *bus.Router
	stocks    *ledger.Stock
	benchmark *results.Benchmark
	agg       *results.Aggregator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	store.SetInstrument(common.Instrument{
		ID: "600000.SH", Class: common.AssetStock, RoundLot: 100,
	})
	for _, b := range []struct {
		date  time.Time
		stock float64
		bench float64
	}{
		{day(2024, 1, 2), 10.00, 3000},
		{day(2024, 1, 3), 11.00, 3030},
	} {
		store.SetDailyBar(common.Bar{
			Instrument: "600000.SH",
			Close:      fixed.FromFloat64(b.stock),
			TradeDate:  b.date,
		})
		store.SetDailyBar(common.Bar{
			Instrument: "000300.SH",
			Close:      fixed.FromFloat64(b.bench),
			TradeDate:  b.date,
		})
	}

	adapter := market.NewAdapter(zap.NewNop(), store, false)
	adapter.SetClock(day(2024, 1, 2), day(2024, 1, 2), "")

	router := bus.NewRouter(zap.NewNop())
	stocks := ledger.NewStock(zap.NewNop(), router, "stock",
		fixed.FromInt(1_000_000, 0), fixed.One)
	benchmark := results.NewBenchmark(zap.NewNop(), adapter, "000300.SH")
	agg := results.NewAggregator(zap.NewNop(), router, stocks, nil, nil, benchmark)

	return &fixture{store: store, adapter: adapter, router: router,
		stocks: stocks, benchmark: benchmark, agg: agg}
}

func (f *fixture) buyFill(price float64, qty int64, commission float64) {
	order := &common.Order{
		ID: "o1", AccountID: "stock", Instrument: "600000.SH",
		Side: common.SideBuy, PriceType: common.PriceLimit,
		Price: fixed.FromFloat64(price), Quantity: qty, Unfilled: qty,
		Status: common.StatusActive,
	}
	f.router.Publish(bus.Event{Kind: bus.StockRtnOrderEvent, Order: order})
	f.router.Publish(bus.Event{Kind: bus.StockRtnTradeEvent, Trade: &common.Trade{
		ID: "o1-t", OrderID: "o1", AccountID: "stock",
		Instrument: "600000.SH", Side: common.SideBuy,
		Price: fixed.FromFloat64(price), Quantity: qty,
		Commission: fixed.FromFloat64(commission),
		TradeDate:  f.adapter.TradeDate(),
	}})
	order.Filled, order.Unfilled, order.Status = qty, 0, common.StatusFilled
	f.router.Publish(bus.Event{Kind: bus.StockRtnOrderEvent, Order: order})
}

// runTwoDays buys 1000 shares at 10 on day one and marks them at 11 on
// day two, against a benchmark that gains 1%.
func runTwoDays(t *testing.T, f *fixture) {
	t.Helper()

	f.buyFill(10.00, 1000, 8)
	f.agg.SaveDaily(day(2024, 1, 2))

	f.adapter.SetClock(day(2024, 1, 3), day(2024, 1, 3), "")
	bar := f.adapter.DailyBar("600000.SH")
	f.router.Publish(bus.Event{Kind: bus.StockQuoteChangeEvent, Bar: &bar})
	f.agg.SaveDaily(day(2024, 1, 3))
}

func closeTo(t *testing.T, got, want, tol float64, what string) {
	t.Helper()
	if math.IsNaN(got) || math.Abs(got-want) > tol {
		t.Errorf("%s = %v; want %v", what, got, want)
	}
}

func TestAggregator_SaveDaily(t *testing.T) {
	f := newFixture(t)
	runTwoDays(t, f)

	snaps := f.agg.Snapshots()
	if len(snaps) != 2 {
		t.Fatalf("snapshots = %d; want 2", len(snaps))
	}
	// 1,000,000 - 8 commission
	closeTo(t, snaps[0].TotalEquity.InexactFloat64(), 999_992, 1e-6, "day 1 equity")
	// position marked up to 11
	closeTo(t, snaps[1].TotalEquity.InexactFloat64(), 1_000_992, 1e-6, "day 2 equity")

	profits := f.agg.Profits()
	if len(profits) != 2 {
		t.Fatalf("profit points = %d; want 2", len(profits))
	}
	r1 := 999_992.0/1_000_000 - 1
	r2 := 1_000_992.0/999_992 - 1
	closeTo(t, profits[0].DailyReturn, r1, 1e-9, "day 1 return")
	closeTo(t, profits[1].DailyReturn, r2, 1e-9, "day 2 return")
	closeTo(t, profits[1].StrategyProfit, (1+r1)*(1+r2)-1, 1e-9, "cumulative profit")

	closeTo(t, profits[0].BenchmarkProfit, 0, 1e-12, "day 1 benchmark")
	closeTo(t, profits[1].BenchmarkReturn, 0.01, 1e-9, "day 2 benchmark return")
	closeTo(t, profits[1].BenchmarkProfit, 0.01, 1e-9, "day 2 benchmark profit")

	wantExcess := (1+r1)*(1+r2-0.01) - 1
	closeTo(t, profits[1].ExcessProfit, wantExcess, 1e-9, "excess profit")
}

func TestAggregator_PositionRows(t *testing.T) {
	f := newFixture(t)
	runTwoDays(t, f)

	rows := f.agg.Positions()
	if len(rows) != 2 {
		t.Fatalf("position rows = %d; want 2", len(rows))
	}
	last := rows[1]
	if last.Instrument != "600000.SH" || last.Book != "stock" {
		t.Fatalf("unexpected row %+v", last)
	}
	closeTo(t, last.Quantity, 1000, 0, "quantity")
	closeTo(t, last.LastPrice, 11, 1e-9, "last price")
	closeTo(t, last.HoldingPnL, 1000, 1e-6, "holding pnl")
}

func TestAggregator_CollectsTradesAndDraws(t *testing.T) {
	f := newFixture(t)

	f.buyFill(10.00, 1000, 8)
	f.agg.SetDate(day(2024, 1, 2))
	f.agg.Draw("ma5", 10.5)

	trades := f.agg.Trades()
	if len(trades) != 1 || trades[0].OrderID != "o1" {
		t.Fatalf("trades = %+v; want one fill of o1", trades)
	}
	draws := f.agg.Draws()
	if len(draws) != 1 || draws[0].Series != "ma5" || draws[0].Value != 10.5 {
		t.Fatalf("draws = %+v", draws)
	}
	if !draws[0].TradeDate.Equal(day(2024, 1, 2)) {
		t.Errorf("draw date = %v", draws[0].TradeDate)
	}
}

func TestBenchmark_CarriesMissingBarForward(t *testing.T) {
	f := newFixture(t)

	f.adapter.SetClock(day(2024, 1, 2), day(2024, 1, 2), "")
	ret, profit := f.benchmark.OnDaily(day(2024, 1, 2))
	closeTo(t, ret, 0, 0, "base day return")
	closeTo(t, profit, 0, 0, "base day profit")

	f.adapter.SetClock(day(2024, 1, 3), day(2024, 1, 3), "")
	ret, profit = f.benchmark.OnDaily(day(2024, 1, 3))
	closeTo(t, ret, 0.01, 1e-9, "day 2 return")
	closeTo(t, profit, 0.01, 1e-9, "day 2 profit")

	// no bar published for day 3
	f.adapter.SetClock(day(2024, 1, 4), day(2024, 1, 4), "")
	ret, profit = f.benchmark.OnDaily(day(2024, 1, 4))
	closeTo(t, ret, 0, 0, "missing bar return")
	closeTo(t, profit, 0.01, 1e-9, "missing bar keeps profit")
}

func TestCompute_Report(t *testing.T) {
	f := newFixture(t)
	runTwoDays(t, f)

	report := results.Compute(f.agg)

	closeTo(t, report.InitialEquity.InexactFloat64(), 1_000_000, 1e-6, "initial equity")
	closeTo(t, report.FinalEquity.InexactFloat64(), 1_000_992, 1e-6, "final equity")
	if report.TotalTrades != 1 {
		t.Errorf("total trades = %d; want 1", report.TotalTrades)
	}
	if !report.StartDate.Equal(day(2024, 1, 2)) || !report.EndDate.Equal(day(2024, 1, 3)) {
		t.Errorf("date range = %v .. %v", report.StartDate, report.EndDate)
	}

	profits := f.agg.Profits()
	closeTo(t, report.StrategyTotalReturn, profits[1].StrategyProfit, 1e-12, "total return")
	closeTo(t, report.BenchmarkTotalReturn, 0.01, 1e-9, "benchmark return")
	// equity only rose, so the curve never drew down
	closeTo(t, report.MaxDrawdown, 0, 1e-12, "max drawdown")
	if math.IsNaN(report.Volatility) {
		t.Error("volatility undefined on a two day series")
	}
}
