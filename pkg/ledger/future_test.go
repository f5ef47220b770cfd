package ledger

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/lunarquant/lunar/pkg/bus"
	"github.com/lunarquant/lunar/pkg/common"
	"github.com/lunarquant/lunar/pkg/market"
	"github.com/lunarquant/lunar/pkg/market/memory"
	"github.com/lunarquant/lunar/pkg/utility/fixed"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newFutureFixture(t *testing.T) (*Future, *bus.Router, *memory.Store, *market.Adapter) {
	t.Helper()

	store := memory.NewStore()
	store.SetInstrument(common.Instrument{
		ID:         "AU2512.SHF",
		Class:      common.AssetFuture,
		Exchange:   common.ExchangeSHFE,
		Multiplier: 1000,
		PriceTick:  fixed.FromFloat64(0.02),
		MarginRate: fixed.FromFloat64(0.10),
	})
	store.SetDailyBar(common.Bar{
		Instrument: "AU2512.SHF",
		Open:       fixed.FromFloat64(398),
		Close:      fixed.FromFloat64(400),
		Settlement: fixed.FromFloat64(405),
		PreClose:   fixed.FromFloat64(398),
		Volume:     10000,
		TradeDate:  day(2024, 1, 2),
	})

	adapter := market.NewAdapter(zap.NewNop(), store, false)
	adapter.SetClock(day(2024, 1, 2), day(2024, 1, 2), "")

	rates := market.NewRateTable(map[string]market.CostSchedule{
		"AU": {CostType: market.CostPerLot, CostRate: fixed.FromFloat64(50)},
	})

	r := bus.NewRouter(zap.NewNop())
	l := NewFuture(zap.NewNop(), r, adapter, rates, "future",
		fixed.FromInt(500000, 0), fixed.One, fixed.One)
	return l, r, store, adapter
}

func openLots(r *bus.Router, orderID string, side common.OrderSide, price float64, lots int64) *common.Order {
	order := &common.Order{
		ID: orderID, AccountID: "future", Instrument: "AU2512.SHF",
		Side: side, Effect: common.EffectOpen,
		Price: fixed.FromFloat64(price), Quantity: lots, Unfilled: lots,
		Status: common.StatusActive,
	}
	r.Publish(bus.Event{Kind: bus.FutureRtnOrderEvent, Order: order})
	r.Publish(bus.Event{Kind: bus.FutureRtnTradeEvent, Trade: &common.Trade{
		ID: orderID + "-t", OrderID: orderID, AccountID: "future",
		Instrument: "AU2512.SHF", Side: side, Effect: common.EffectOpen,
		Price: fixed.FromFloat64(price), Quantity: lots,
		Commission: fixed.FromFloat64(50).MulInt64(lots),
	}})
	order.Filled, order.Unfilled, order.Status = lots, 0, common.StatusFilled
	r.Publish(bus.Event{Kind: bus.FutureRtnOrderEvent, Order: order})
	return order
}

func TestFutureLedger_OpenLong(t *testing.T) {
	l, r, _, _ := newFutureFixture(t)

	openLots(r, "o1", common.SideBuy, 400, 1)

	a := l.Account()
	// margin 400*1*1000*0.10 = 40000, commission 50
	approxEq(t, a.Margin, fixed.FromInt(40000, 0), "margin")
	approxEq(t, a.Available, fixed.FromInt(459950, 0), "available")
	if !a.Frozen.IsZero() {
		t.Errorf("frozen = %s; want 0", a.Frozen.String())
	}

	p, ok := l.Position("AU2512.SHF", common.DirLong)
	if !ok {
		t.Fatal("long position missing")
	}
	if p.TodayQty != 1 || p.YdQty != 0 {
		t.Errorf("today/yd = %d/%d; want 1/0", p.TodayQty, p.YdQty)
	}
	approxEq(t, p.HoldPrice, fixed.FromInt(400, 0), "hold price")
}

func TestFutureLedger_DailySettle(t *testing.T) {
	l, r, _, _ := newFutureFixture(t)
	openLots(r, "o1", common.SideBuy, 400, 1)

	l.Settle(day(2024, 1, 2))

	a := l.Account()
	// cash change (405-400)*1*1000*(1-0.10) = +4500
	approxEq(t, a.Available, fixed.FromInt(464450, 0), "available after settle")
	// margin re-marked to 405*1000*0.10
	approxEq(t, a.Margin, fixed.FromInt(40500, 0), "margin after settle")

	p, _ := l.Position("AU2512.SHF", common.DirLong)
	approxEq(t, p.HoldPrice, fixed.FromInt(405, 0), "hold price reset to settlement")
	if !p.HoldingPnL.IsZero() {
		t.Errorf("holding pnl = %s; want 0 after settle", p.HoldingPnL.String())
	}

	// equity identity: available + holding + frozen + margin
	sum := a.Available.Add(a.HoldingPnL).Add(a.Frozen).Add(a.Margin)
	approxEq(t, sum, a.TotalEquity, "equity identity")
	// total pnl booked: 5000 gross - 50 commission
	approxEq(t, a.TotalEquity, fixed.FromInt(504950, 0), "total equity")
}

func TestFutureLedger_SettleShort(t *testing.T) {
	l, r, _, _ := newFutureFixture(t)
	openLots(r, "o1", common.SideSell, 400, 1)

	l.Settle(day(2024, 1, 2))

	a := l.Account()
	// short loses when settlement rises: -(405-400)*1000*(1+0.10) = -5500
	approxEq(t, a.Available, fixed.FromInt(454450, 0), "available after short settle")
	approxEq(t, a.Margin, fixed.FromInt(40500, 0), "short margin after settle")
}

func TestFutureLedger_MarginRateDelta(t *testing.T) {
	l, r, store, _ := newFutureFixture(t)
	openLots(r, "o1", common.SideBuy, 400, 1)

	// the exchange raises the long rate to 12% for settlement day
	store.SetMarginRate("AU2512.SHF", day(2024, 1, 2), market.MarginRate{
		Long:  fixed.FromFloat64(0.12),
		Known: true,
	})

	l.Settle(day(2024, 1, 2))

	a := l.Account()
	// margin wanting: (0.12-0.10)*400*1000 = 8000 out of cash,
	// settle credit (405-400)*1000*(1-0.12) = 4400
	approxEq(t, a.Available, fixed.FromInt(459950-8000+4400, 0), "available with rate delta")
	// margin at the new rate: 405*1000*0.12
	approxEq(t, a.Margin, fixed.FromInt(48600, 0), "margin at raised rate")
}

func TestFutureLedger_CloseConsumesYesterdayFirst(t *testing.T) {
	l, r, _, _ := newFutureFixture(t)
	openLots(r, "o1", common.SideBuy, 400, 2)
	l.OnNewDay(day(2024, 1, 3))
	openLots(r, "o2", common.SideBuy, 400, 3)

	p, _ := l.Position("AU2512.SHF", common.DirLong)
	if p.YdQty != 2 || p.TodayQty != 3 {
		t.Fatalf("yd/today = %d/%d; want 2/3", p.YdQty, p.TodayQty)
	}

	close4 := &common.Order{
		ID: "o3", AccountID: "future", Instrument: "AU2512.SHF",
		Side: common.SideSell, Effect: common.EffectClose,
		Price: fixed.FromFloat64(401), Quantity: 4, Unfilled: 4,
		CloseTodayQty: 2, Status: common.StatusActive,
	}
	r.Publish(bus.Event{Kind: bus.FutureRtnOrderEvent, Order: close4})
	if p.Frozen != 4 || p.FrozenToday != 2 {
		t.Errorf("frozen/frozenToday = %d/%d; want 4/2", p.Frozen, p.FrozenToday)
	}

	// yesterday leg fills first
	r.Publish(bus.Event{Kind: bus.FutureRtnTradeEvent, Trade: &common.Trade{
		ID: "t3", OrderID: "o3", AccountID: "future", Instrument: "AU2512.SHF",
		Side: common.SideSell, Effect: common.EffectClose,
		Price: fixed.FromFloat64(401), Quantity: 2,
		Commission: fixed.FromFloat64(100),
	}})
	if p.YdQty != 0 || p.TodayQty != 3 {
		t.Errorf("after yd close: yd/today = %d/%d; want 0/3", p.YdQty, p.TodayQty)
	}

	// today leg
	r.Publish(bus.Event{Kind: bus.FutureRtnTradeEvent, Trade: &common.Trade{
		ID: "t4", OrderID: "o3", AccountID: "future", Instrument: "AU2512.SHF",
		Side: common.SideSell, Effect: common.EffectClose, CloseToday: true,
		Price: fixed.FromFloat64(401), Quantity: 2,
		Commission: fixed.FromFloat64(100),
	}})
	if p.YdQty != 0 || p.TodayQty != 1 {
		t.Errorf("after td close: yd/today = %d/%d; want 0/1", p.YdQty, p.TodayQty)
	}
}

func TestFutureLedger_PlainCloseRealizesAgainstPreSettlement(t *testing.T) {
	l, r, _, _ := newFutureFixture(t)
	openLots(r, "o1", common.SideBuy, 400, 1)
	l.Settle(day(2024, 1, 2))
	l.OnNewDay(day(2024, 1, 3))
	openLots(r, "o2", common.SideBuy, 410, 1)

	p, _ := l.Position("AU2512.SHF", common.DirLong)
	// settled lot carried at 405, blend with the 410 open
	approxEq(t, p.HoldPrice, fixed.FromFloat64(407.5), "blended hold price")
	approxEq(t, p.PreSettlement, fixed.FromInt(405, 0), "pre-settlement")

	closeOrder := &common.Order{
		ID: "o3", AccountID: "future", Instrument: "AU2512.SHF",
		Side: common.SideSell, Effect: common.EffectClose,
		Price: fixed.FromFloat64(412), Quantity: 1, Unfilled: 1,
		Status: common.StatusActive,
	}
	r.Publish(bus.Event{Kind: bus.FutureRtnOrderEvent, Order: closeOrder})
	r.Publish(bus.Event{Kind: bus.FutureRtnTradeEvent, Trade: &common.Trade{
		ID: "t3", OrderID: "o3", AccountID: "future", Instrument: "AU2512.SHF",
		Side: common.SideSell, Effect: common.EffectClose,
		Price: fixed.FromFloat64(412), Quantity: 1,
		Commission: fixed.FromFloat64(50),
	}})

	// yesterday lot realizes against the prior settlement, not the blend
	approxEq(t, p.RealizedPnL, fixed.FromInt(7000, 0), "realized on yd close")
	// remainder carries today's open cost
	approxEq(t, p.HoldPrice, fixed.FromInt(410, 0), "hold price after yd close")
	if p.YdQty != 0 || p.TodayQty != 1 {
		t.Errorf("yd/today = %d/%d; want 0/1", p.YdQty, p.TodayQty)
	}

	// 464450 after settle, -41050 on the open, then half the margin back
	// plus 7000 realized minus 50 commission
	approxEq(t, l.Account().Available, fixed.FromInt(471100, 0), "available")
}

func TestFutureLedger_CloseAllReleasesMargin(t *testing.T) {
	l, r, _, _ := newFutureFixture(t)
	openLots(r, "o1", common.SideBuy, 400, 1)

	unsubbed := false
	r.Subscribe(bus.FutureUnsubEvent, func(ev bus.Event) {
		unsubbed = ev.Instrument == "AU2512.SHF"
	})

	closeOrder := &common.Order{
		ID: "o2", AccountID: "future", Instrument: "AU2512.SHF",
		Side: common.SideSell, Effect: common.EffectClose, CloseToday: true,
		Price: fixed.FromFloat64(405), Quantity: 1, Unfilled: 1,
		Status: common.StatusActive,
	}
	r.Publish(bus.Event{Kind: bus.FutureRtnOrderEvent, Order: closeOrder})
	r.Publish(bus.Event{Kind: bus.FutureRtnTradeEvent, Trade: &common.Trade{
		ID: "t2", OrderID: "o2", AccountID: "future", Instrument: "AU2512.SHF",
		Side: common.SideSell, Effect: common.EffectClose, CloseToday: true,
		Price: fixed.FromFloat64(405), Quantity: 1,
		Commission: fixed.FromFloat64(50),
	}})

	if _, ok := l.Position("AU2512.SHF", common.DirLong); ok {
		t.Error("closed position should be deleted")
	}
	if !unsubbed {
		t.Error("unsubscribe should fire on full close")
	}

	a := l.Account()
	if !a.Margin.IsZero() {
		t.Errorf("margin = %s; want 0", a.Margin.String())
	}
	// 500000 - 50 - 50 + (405-400)*1000
	approxEq(t, a.Available, fixed.FromInt(504900, 0), "available after close")
}

func TestFutureLedger_ForcedLiquidation(t *testing.T) {
	l, r, store, _ := newFutureFixture(t)
	openLots(r, "o1", common.SideSell, 400, 1)

	// catastrophic adverse settlement for a short
	store.SetDailyBar(common.Bar{
		Instrument: "AU2512.SHF",
		Close:      fixed.FromFloat64(950),
		Settlement: fixed.FromFloat64(950),
		Volume:     10000,
		TradeDate:  day(2024, 1, 2),
	})
	// fixture adapter caches the open bar; force a flush
	l.adapter.SetClock(day(2024, 1, 2), day(2024, 1, 3), "")
	l.adapter.SetClock(day(2024, 1, 2), day(2024, 1, 2), "")

	l.Settle(day(2024, 1, 2))
	if !l.CheckBurned() {
		t.Fatal("account should burn after a -605,000 settlement")
	}

	a := l.Account()
	if !a.Burned {
		t.Error("burned flag not set")
	}
	if !a.TotalEquity.IsZero() || !a.Available.IsZero() || !a.Margin.IsZero() {
		t.Errorf("capital fields not wiped: equity=%s available=%s margin=%s",
			a.TotalEquity.String(), a.Available.String(), a.Margin.String())
	}
	if len(l.Positions()) != 0 {
		t.Error("positions not wiped")
	}
}

func TestFutureLedger_Delivery(t *testing.T) {
	l, r, store, _ := newFutureFixture(t)
	store.SetInstrument(common.Instrument{
		ID:            "AU2512.SHF",
		Class:         common.AssetFuture,
		Exchange:      common.ExchangeSHFE,
		Multiplier:    1000,
		MarginRate:    fixed.FromFloat64(0.10),
		LastTradeDate: day(2024, 1, 2),
	})
	openLots(r, "o1", common.SideBuy, 400, 1)

	l.Deliver(day(2024, 1, 2))

	if _, ok := l.Position("AU2512.SHF", common.DirLong); ok {
		t.Error("delivered position should be gone")
	}
	a := l.Account()
	if !a.Margin.IsZero() {
		t.Errorf("margin = %s; want 0 after delivery", a.Margin.String())
	}
	// 500000 - 50 + (405-400)*1000
	approxEq(t, a.Available, fixed.FromInt(504950, 0), "available after delivery")
}
