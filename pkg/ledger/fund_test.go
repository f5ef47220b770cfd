package ledger

import (
	"testing"

	"go.uber.org/zap"

	"github.com/lunarquant/lunar/pkg/bus"
	"github.com/lunarquant/lunar/pkg/common"
	"github.com/lunarquant/lunar/pkg/market"
	"github.com/lunarquant/lunar/pkg/utility/fixed"
)

func newFundFixture(t *testing.T) (*Fund, *bus.Router) {
	t.Helper()
	r := bus.NewRouter(zap.NewNop())
	l := NewFund(zap.NewNop(), r, "fund-1", fixed.FromInt(100_000, 0))
	return l, r
}

// purchase publishes the subscription order and its confirmation trade.
func purchase(r *bus.Router, orderID, instrument string, amount, nav, units fixed.Point) {
	o := &common.Order{
		ID:         orderID,
		AccountID:  "fund-1",
		Instrument: instrument,
		Side:       common.SideBuy,
		Status:     common.StatusActive,
		Amount:     amount,
	}
	r.Publish(bus.Event{Kind: bus.FundRtnOrderEvent, Order: o})
	r.Publish(bus.Event{Kind: bus.FundRtnTradeEvent, Trade: &common.Trade{
		ID:         orderID + "-t",
		OrderID:    orderID,
		AccountID:  "fund-1",
		Instrument: instrument,
		Side:       common.SideBuy,
		Price:      nav,
		Amount:     amount,
		Units:      units,
	}})
	done := *o
	done.Status = common.StatusFilled
	r.Publish(bus.Event{Kind: bus.FundRtnOrderEvent, Order: &done})
}

func TestFundLedger_PurchaseConfirm(t *testing.T) {
	l, r := newFundFixture(t)

	// subscription only reserves cash until the confirmation lands
	o := &common.Order{
		ID: "p1", AccountID: "fund-1", Instrument: "510300.OF",
		Side: common.SideBuy, Status: common.StatusActive,
		Amount: fixed.FromInt(10_000, 0),
	}
	r.Publish(bus.Event{Kind: bus.FundRtnOrderEvent, Order: o})
	approxEq(t, l.Account().Frozen, fixed.FromInt(10_000, 0), "frozen")
	approxEq(t, l.Account().Available, fixed.FromInt(90_000, 0), "available")

	r.Publish(bus.Event{Kind: bus.FundRtnTradeEvent, Trade: &common.Trade{
		ID: "p1-t", OrderID: "p1", AccountID: "fund-1", Instrument: "510300.OF",
		Side:   common.SideBuy,
		Price:  fixed.FromFloat64(1.25),
		Amount: fixed.FromInt(10_000, 0),
		Units:  fixed.FromInt(8_000, 0),
	}})

	p, ok := l.Position("510300.OF")
	if !ok {
		t.Fatal("expected a position after confirmation")
	}
	approxEq(t, p.Units, fixed.FromInt(8_000, 0), "units")
	approxEq(t, p.Sellable, fixed.FromInt(8_000, 0), "sellable")
	approxEq(t, p.CostNav, fixed.FromFloat64(1.25), "cost nav")
	approxEq(t, l.Account().Frozen, fixed.Zero, "frozen")
	approxEq(t, l.Account().Available, fixed.FromInt(90_000, 0), "available")
	approxEq(t, l.Account().MarketValue, fixed.FromInt(10_000, 0), "market value")
	approxEq(t, l.Account().TotalEquity, fixed.FromInt(100_000, 0), "equity")
}

func TestFundLedger_RedemptionArrival(t *testing.T) {
	l, r := newFundFixture(t)
	purchase(r, "p1", "510300.OF", fixed.FromInt(10_000, 0),
		fixed.FromFloat64(1.25), fixed.FromInt(8_000, 0))

	// redemption freezes units until the T+N arrival
	o := &common.Order{
		ID: "r1", AccountID: "fund-1", Instrument: "510300.OF",
		Side: common.SideSell, Status: common.StatusActive,
		Units: fixed.FromInt(3_000, 0),
	}
	r.Publish(bus.Event{Kind: bus.FundRtnOrderEvent, Order: o})
	p, _ := l.Position("510300.OF")
	approxEq(t, p.Sellable, fixed.FromInt(5_000, 0), "sellable")
	approxEq(t, p.Frozen, fixed.FromInt(3_000, 0), "unit frozen")

	r.Publish(bus.Event{Kind: bus.FundRtnTradeEvent, Trade: &common.Trade{
		ID: "r1-t", OrderID: "r1", AccountID: "fund-1", Instrument: "510300.OF",
		Side:   common.SideSell,
		Price:  fixed.FromFloat64(1.30),
		Amount: fixed.FromInt(3_900, 0),
		Units:  fixed.FromInt(3_000, 0),
	}})

	approxEq(t, p.Units, fixed.FromInt(5_000, 0), "units")
	approxEq(t, p.Frozen, fixed.Zero, "unit frozen")
	approxEq(t, l.Account().Available, fixed.FromInt(93_900, 0), "available")
	approxEq(t, l.Account().RealizedPnL, fixed.FromInt(150, 0), "realized")
	approxEq(t, l.Account().TotalEquity, fixed.FromInt(100_400, 0), "equity")
}

func TestFundLedger_RedeemAllUnsubscribes(t *testing.T) {
	l, r := newFundFixture(t)
	purchase(r, "p1", "510300.OF", fixed.FromInt(10_000, 0),
		fixed.FromFloat64(1.25), fixed.FromInt(8_000, 0))

	var unsubbed string
	r.Subscribe(bus.FundUnsubEvent, func(ev bus.Event) { unsubbed = ev.Instrument })

	r.Publish(bus.Event{Kind: bus.FundRtnOrderEvent, Order: &common.Order{
		ID: "r1", AccountID: "fund-1", Instrument: "510300.OF",
		Side: common.SideSell, Status: common.StatusActive,
		Units: fixed.FromInt(8_000, 0),
	}})
	r.Publish(bus.Event{Kind: bus.FundRtnTradeEvent, Trade: &common.Trade{
		ID: "r1-t", OrderID: "r1", AccountID: "fund-1", Instrument: "510300.OF",
		Side:   common.SideSell,
		Price:  fixed.FromFloat64(1.25),
		Amount: fixed.FromInt(10_000, 0),
		Units:  fixed.FromInt(8_000, 0),
	}})

	if _, ok := l.Position("510300.OF"); ok {
		t.Fatal("position should be removed after full redemption")
	}
	if unsubbed != "510300.OF" {
		t.Fatalf("expected unsubscribe for 510300.OF, got %q", unsubbed)
	}
	approxEq(t, l.Account().Available, fixed.FromInt(100_000, 0), "available")
}

func TestFundLedger_CancelRestoresFreeze(t *testing.T) {
	l, r := newFundFixture(t)

	o := &common.Order{
		ID: "p1", AccountID: "fund-1", Instrument: "510300.OF",
		Side: common.SideBuy, Status: common.StatusActive,
		Amount: fixed.FromInt(10_000, 0),
	}
	r.Publish(bus.Event{Kind: bus.FundRtnOrderEvent, Order: o})
	cancelled := *o
	cancelled.Status = common.StatusCancelled
	r.Publish(bus.Event{Kind: bus.FundRtnOrderEvent, Order: &cancelled})

	approxEq(t, l.Account().Available, fixed.FromInt(100_000, 0), "available")
	approxEq(t, l.Account().Frozen, fixed.Zero, "frozen")
}

func TestFundLedger_Dividend(t *testing.T) {
	l, r := newFundFixture(t)
	purchase(r, "p1", "510300.OF", fixed.FromInt(10_000, 0),
		fixed.FromFloat64(1.25), fixed.FromInt(8_000, 0))

	l.ApplyDividend(market.FundDividend{
		Instrument:  "510300.OF",
		CashPerUnit: fixed.FromFloat64(0.05),
	})

	p, _ := l.Position("510300.OF")
	approxEq(t, l.Account().Available, fixed.FromInt(90_400, 0), "available")
	approxEq(t, p.CostNav, fixed.FromFloat64(1.20), "cost nav")
}

func TestFundLedger_Split(t *testing.T) {
	l, r := newFundFixture(t)
	purchase(r, "p1", "510300.OF", fixed.FromInt(10_000, 0),
		fixed.FromFloat64(1.25), fixed.FromInt(8_000, 0))
	before := l.Account().TotalEquity

	l.ApplySplit(market.Split{
		Instrument: "510300.OF",
		Ratio:      fixed.FromInt(2, 0),
	})

	p, _ := l.Position("510300.OF")
	approxEq(t, p.Units, fixed.FromInt(16_000, 0), "units")
	approxEq(t, p.Sellable, fixed.FromInt(16_000, 0), "sellable")
	approxEq(t, p.Nav, fixed.FromFloat64(0.625), "nav")
	approxEq(t, p.CostNav, fixed.FromFloat64(0.625), "cost nav")
	approxEq(t, l.Account().TotalEquity, before, "equity")
}

func TestFundLedger_SetNavRemarks(t *testing.T) {
	l, r := newFundFixture(t)
	purchase(r, "p1", "510300.OF", fixed.FromInt(10_000, 0),
		fixed.FromFloat64(1.25), fixed.FromInt(8_000, 0))

	l.SetNav("510300.OF", fixed.FromFloat64(1.35))

	approxEq(t, l.Account().MarketValue, fixed.FromInt(10_800, 0), "market value")
	approxEq(t, l.Account().HoldingPnL, fixed.FromInt(800, 0), "holding pnl")
	approxEq(t, l.Account().TotalEquity, fixed.FromInt(100_800, 0), "equity")
}

func TestFundLedger_QuoteEventRemarks(t *testing.T) {
	l, r := newFundFixture(t)
	purchase(r, "p1", "510300.OF", fixed.FromInt(10_000, 0),
		fixed.FromFloat64(1.25), fixed.FromInt(8_000, 0))

	r.Publish(bus.Event{Kind: bus.FundQuoteChangeEvent, Bar: &common.Bar{
		Instrument: "510300.OF",
		Close:      fixed.FromFloat64(1.35),
	}})

	approxEq(t, l.Account().MarketValue, fixed.FromInt(10_800, 0), "market value")
	approxEq(t, l.Account().HoldingPnL, fixed.FromInt(800, 0), "holding pnl")
}

func TestFundLedger_CashMove(t *testing.T) {
	l, _ := newFundFixture(t)

	if err := l.CashMove(fixed.FromInt(50_000, 0), true); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	approxEq(t, l.Account().Available, fixed.FromInt(150_000, 0), "available")

	if err := l.CashMove(fixed.FromInt(200_000, 0), false); err != ErrOverdraw {
		t.Fatalf("expected ErrOverdraw, got %v", err)
	}
}
