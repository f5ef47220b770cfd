package trade_test

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/lunarquant/lunar/pkg/bus"
	"github.com/lunarquant/lunar/pkg/common"
	futureex "github.com/lunarquant/lunar/pkg/exchange/future"
	stockex "github.com/lunarquant/lunar/pkg/exchange/stock"
	"github.com/lunarquant/lunar/pkg/ledger"
	"github.com/lunarquant/lunar/pkg/market"
	"github.com/lunarquant/lunar/pkg/market/memory"
	"github.com/lunarquant/lunar/pkg/trade"
	"github.com/lunarquant/lunar/pkg/utility/fixed"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type fixture struct {
	router  *bus.Router
	stocks  *ledger.Stock
	futures *ledger.Future
	proxy   *trade.Proxy

	stockOrders []common.Order
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	store.SetInstrument(common.Instrument{
		ID: "600000.SH", Class: common.AssetStock,
		Exchange: common.ExchangeSSE, RoundLot: 100,
	})
	store.SetInstrument(common.Instrument{
		ID: "000001.SZ", Class: common.AssetStock,
		Exchange: common.ExchangeSZSE, RoundLot: 100,
	})
	store.SetInstrument(common.Instrument{
		ID: "AU2512.SHF", Class: common.AssetFuture,
		Exchange: common.ExchangeSHFE, Multiplier: 1000,
		PriceTick:  fixed.FromFloat64(0.02),
		MarginRate: fixed.FromFloat64(0.10),
	})
	for _, b := range []struct {
		id    string
		price float64
	}{{"600000.SH", 10}, {"000001.SZ", 20}, {"AU2512.SHF", 400}} {
		store.SetDailyBar(common.Bar{
			Instrument: b.id,
			Close:      fixed.FromFloat64(b.price),
			Volume:     1_000_000,
			TradeDate:  day(2024, 1, 2),
		})
	}

	adapter := market.NewAdapter(zap.NewNop(), store, false)
	adapter.SetClock(day(2024, 1, 2), day(2024, 1, 2), "")

	router := bus.NewRouter(zap.NewNop())
	stocks := ledger.NewStock(zap.NewNop(), router, "stock",
		fixed.FromInt(1_000_000, 0), fixed.One)
	futures := ledger.NewFuture(zap.NewNop(), router, adapter,
		market.NewRateTable(nil), "future",
		fixed.FromInt(1_000_000, 0), fixed.One, fixed.One)

	sx := stockex.NewExchange(zap.NewNop(), router, adapter, stocks, fixed.Zero, true)
	fx := futureex.NewExchange(zap.NewNop(), router, adapter, futures, 0, true)

	proxy := trade.NewProxy(zap.NewNop(), router, adapter, stocks, futures, nil)
	proxy.SetCancellers(sx, fx, nil)

	f := &fixture{router: router, stocks: stocks, futures: futures, proxy: proxy}
	router.Subscribe(bus.StockRtnOrderEvent, func(ev bus.Event) {
		f.stockOrders = append(f.stockOrders, *ev.Order)
	})
	return f
}

func TestOrderShares_BuyRoutesAndFills(t *testing.T) {
	f := newFixture(t)

	o, err := f.proxy.OrderShares("600000.SH", 500, fixed.Zero)
	if err != nil {
		t.Fatalf("order: %v", err)
	}
	if o.Status != common.StatusFilled {
		t.Fatalf("status = %v, want FILLED", o.Status)
	}
	p, ok := f.stocks.Position("600000.SH")
	if !ok || p.Quantity != 500 {
		t.Fatal("expected a 500-share position")
	}
}

func TestOrderValue_FloorsToLot(t *testing.T) {
	f := newFixture(t)

	o, err := f.proxy.OrderValue("600000.SH", fixed.FromInt(25_050, 0))
	if err != nil {
		t.Fatalf("order: %v", err)
	}
	// 25050 at price 10 is 2505 shares, floored to 2500
	if o.Quantity != 2500 {
		t.Fatalf("quantity = %d, want 2500", o.Quantity)
	}
	if _, err := f.proxy.OrderValue("600000.SH", fixed.FromInt(900, 0)); err == nil {
		t.Fatal("sub-lot value must error")
	}
}

func TestLongFutureTarget_OpensAndCloses(t *testing.T) {
	f := newFixture(t)

	o, err := f.proxy.LongFutureTarget("AU2512.SHF", 3)
	if err != nil {
		t.Fatalf("target: %v", err)
	}
	if o.Effect != common.EffectOpen || o.Quantity != 3 {
		t.Fatalf("expected open 3, got %+v", o)
	}

	o, err = f.proxy.LongFutureTarget("AU2512.SHF", 1)
	if err != nil {
		t.Fatalf("target: %v", err)
	}
	if o.Effect != common.EffectClose || o.Quantity != 2 || o.Side != common.SideSell {
		t.Fatalf("expected sell-close 2, got %+v", o)
	}

	o, err = f.proxy.LongFutureTarget("AU2512.SHF", 1)
	if err != nil || o != nil {
		t.Fatalf("target already met must be a no-op, got %+v err %v", o, err)
	}

	p, ok := f.futures.Position("AU2512.SHF", common.DirLong)
	if !ok || p.Quantity() != 1 {
		t.Fatal("expected one remaining long lot")
	}
}

func TestTargetStockGroupOrder_SellsBeforeBuys(t *testing.T) {
	f := newFixture(t)
	if _, err := f.proxy.OrderShares("600000.SH", 50_000, fixed.Zero); err != nil {
		t.Fatalf("seed: %v", err)
	}
	// next day, so the seeded shares are sellable
	f.stocks.OnNewDay(day(2024, 1, 3))
	f.stockOrders = f.stockOrders[:0]

	err := f.proxy.TargetStockGroupOrder(map[string]fixed.Point{
		"600000.SH": fixed.FromFloat64(0.10),
		"000001.SZ": fixed.FromFloat64(0.50),
	})
	if err != nil {
		t.Fatalf("rebalance: %v", err)
	}

	if len(f.stockOrders) == 0 {
		t.Fatal("expected rebalance orders")
	}
	first := f.stockOrders[0]
	if first.Side != common.SideSell || first.Instrument != "600000.SH" {
		t.Fatalf("first action must sell the overweight, got %+v", first)
	}
	var sawBuy bool
	for _, o := range f.stockOrders {
		if o.Side == common.SideBuy && o.Instrument == "000001.SZ" {
			sawBuy = true
		}
	}
	if !sawBuy {
		t.Fatal("expected a buy for the underweight instrument")
	}
}

func TestCashMoving(t *testing.T) {
	f := newFixture(t)

	if err := f.proxy.CashMoving(common.AccountStock, common.AccountFuture,
		fixed.FromInt(200_000, 0)); err != nil {
		t.Fatalf("move: %v", err)
	}
	if !f.stocks.Account().Available.Eq(fixed.FromInt(800_000, 0)) {
		t.Fatalf("stock available = %s", f.stocks.Account().Available.String())
	}
	if !f.futures.Account().Available.Eq(fixed.FromInt(1_200_000, 0)) {
		t.Fatalf("future available = %s", f.futures.Account().Available.String())
	}

	if err := f.proxy.CashMoving(common.AccountStock, common.AccountFuture,
		fixed.FromInt(5_000_000, 0)); err != ledger.ErrOverdraw {
		t.Fatalf("expected ErrOverdraw, got %v", err)
	}

	if err := f.proxy.CashMoving(common.AccountStock, common.AccountFund,
		fixed.FromInt(1, 0)); err != trade.ErrNoAccount {
		t.Fatalf("expected ErrNoAccount, got %v", err)
	}
}

type captureDrawer struct {
	series []string
	values []float64
}

func (d *captureDrawer) Draw(series string, value float64) {
	d.series = append(d.series, series)
	d.values = append(d.values, value)
}

func TestDraw_ForwardsToDrawer(t *testing.T) {
	f := newFixture(t)
	d := &captureDrawer{}
	f.proxy.SetDrawer(d)

	f.proxy.Draw("exposure", 0.35)

	if len(d.series) != 1 || d.series[0] != "exposure" || d.values[0] != 0.35 {
		t.Fatalf("drawer saw %v %v", d.series, d.values)
	}
}

func TestFundOpsWithoutFundAccount(t *testing.T) {
	f := newFixture(t)

	if _, err := f.proxy.Purchase("110022.OF", fixed.FromInt(1_000, 0)); err != trade.ErrNoAccount {
		t.Fatalf("expected ErrNoAccount, got %v", err)
	}
	if _, err := f.proxy.Redeem("110022.OF", fixed.FromInt(1_000, 0)); err != trade.ErrNoAccount {
		t.Fatalf("expected ErrNoAccount, got %v", err)
	}
}
