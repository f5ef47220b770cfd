// Package fund simulates open-end fund subscription and redemption:
// orders pend until their settlement or arrival date, then convert at
// that day's NAV.
package fund

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lunarquant/lunar/pkg/bus"
	"github.com/lunarquant/lunar/pkg/calendar"
	"github.com/lunarquant/lunar/pkg/common"
	"github.com/lunarquant/lunar/pkg/exchange"
	"github.com/lunarquant/lunar/pkg/ledger"
	"github.com/lunarquant/lunar/pkg/market"
	"github.com/lunarquant/lunar/pkg/utility"
)

// Book is the view of the fund account the verification chain needs.
// *ledger.Fund satisfies it.
type Book interface {
	Account() *common.Account
	Position(instrument string) (*common.FundPosition, bool)
}

type pending struct {
	order *common.Order
	due   time.Time
}

type Exchange struct {
	logger   *zap.Logger
	router   *bus.Router
	adapter  *market.Adapter
	cal      *calendar.Calendar
	book     Book
	verifier exchange.Verifier

	// trading days between a subscription and its unit credit
	confirmLag int

	pendings []*pending
}

func NewExchange(logger *zap.Logger, router *bus.Router, adapter *market.Adapter,
	cal *calendar.Calendar, book Book, confirmLag int) *Exchange {

	if confirmLag < 1 {
		confirmLag = 1
	}
	e := &Exchange{
		logger:     logger,
		router:     router,
		adapter:    adapter,
		cal:        cal,
		book:       book,
		confirmLag: confirmLag,
	}

	router.Subscribe(bus.FundOrderEvent, e.onOrder)
	return e
}

func (e *Exchange) SetVerifier(v exchange.Verifier) { e.verifier = v }

func (e *Exchange) onOrder(ev bus.Event) {
	if ev.Order != nil {
		e.Submit(ev.Order)
	}
}

// Submit verifies and schedules a subscription or redemption. An
// unfinished order on the same instrument is withdrawn first, the new
// instruction covers the old one.
func (e *Exchange) Submit(o *common.Order) {
	if o.ID == "" {
		o.ID = utility.NewOrderID()
	}
	o.Status = common.StatusActive
	o.TradeDate = e.adapter.TradeDate()
	o.TimeStamp = e.adapter.Now()

	e.cancelWorking(o.Instrument)

	inst, err := e.adapter.Instrument(o.Instrument)
	if err != nil {
		e.reject(o, fmt.Sprintf("unknown instrument %s", o.Instrument))
		return
	}
	if msg := e.verify(o); msg != "" {
		e.reject(o, msg)
		return
	}

	lag := e.confirmLag
	if o.Side == common.SideSell {
		lag = inst.RedeemDays
		if lag < 1 {
			lag = 1
		}
	}
	due, ok := e.cal.NextTradingDay(o.TradeDate, lag)
	if !ok {
		e.reject(o, "no trading day for settlement")
		return
	}

	e.pendings = append(e.pendings, &pending{order: o, due: due})
	e.publishOrder(o)
}

func (e *Exchange) verify(o *common.Order) string {
	if o.Side == common.SideBuy {
		if !o.Amount.IsPos() {
			return "purchase amount must be positive"
		}
		if o.Amount.Gt(e.book.Account().Available) {
			return fmt.Sprintf("insufficient cash, need %s available %s",
				o.Amount.String(), e.book.Account().Available.String())
		}
	} else {
		if !o.Units.IsPos() {
			return "redemption units must be positive"
		}
		p, ok := e.book.Position(o.Instrument)
		if !ok || p.Sellable.Lt(o.Units) {
			return "insufficient sellable units"
		}
	}
	if e.verifier != nil {
		if ok, rule := e.verifier.VerifyOrder(o); !ok {
			return "blocked by rule " + rule
		}
	}
	return ""
}

// Cancel withdraws a pending order by id.
func (e *Exchange) Cancel(orderID string) {
	for _, p := range e.pendings {
		if p.order.ID == orderID && p.order.Status == common.StatusActive {
			e.finish(p.order, common.StatusCancelled, "cancelled by request")
		}
	}
	e.compact()
}

// cancelWorking implements the cover rule: one live instruction per
// instrument.
func (e *Exchange) cancelWorking(instrument string) {
	for _, p := range e.pendings {
		if p.order.Instrument == instrument && p.order.Status == common.StatusActive {
			e.finish(p.order, common.StatusCancelled, "covered by a newer instruction")
		}
	}
	e.compact()
}

// DayStart settles every pending order whose due date has arrived, at
// that day's published NAV.
func (e *Exchange) DayStart(tradeDate time.Time) {
	for _, p := range e.pendings {
		if p.order.Status != common.StatusActive || p.due.After(tradeDate) {
			continue
		}
		e.settle(p.order, tradeDate)
	}
	e.compact()
}

func (e *Exchange) settle(o *common.Order, tradeDate time.Time) {
	nav, err := e.adapter.Store().FundNav(o.Instrument, tradeDate)
	if err != nil || nav.IsZero() {
		e.logger.Warn("no nav published on settlement day",
			zap.String("instrument", o.Instrument),
			zap.Time("trade_date", tradeDate))
		e.finish(o, common.StatusCancelled, "no nav published")
		return
	}

	t := &common.Trade{
		ID:         utility.NewTradeID(),
		OrderID:    o.ID,
		AccountID:  o.AccountID,
		Instrument: o.Instrument,
		Side:       o.Side,
		Price:      nav,
		TradeDate:  tradeDate,
		TimeStamp:  e.adapter.Now(),
	}
	if o.Side == common.SideBuy {
		t.Amount = o.Amount
		t.Units = o.Amount.Div(nav).Trunc(ledger.UnitScale)
	} else {
		t.Units = o.Units
		t.Amount = o.Units.Mul(nav)
	}

	e.router.Publish(bus.Event{Kind: bus.FundRtnTradeEvent, Trade: t,
		Time: t.TimeStamp, TradeDate: tradeDate})

	o.Status = common.StatusFilled
	o.Units, o.Amount = t.Units, t.Amount
	e.publishOrder(o)
}

func (e *Exchange) reject(o *common.Order, msg string) {
	o.Status = common.StatusRejected
	o.Message = msg
	e.logger.Info("fund order rejected",
		zap.String("order_id", o.ID),
		zap.String("instrument", o.Instrument),
		zap.String("reason", msg))
	e.publishOrder(o)
	e.router.Publish(bus.Event{Kind: bus.FundOrderCancelEvent, Order: o,
		Message: msg, Time: e.adapter.Now(), TradeDate: e.adapter.TradeDate()})
}

func (e *Exchange) finish(o *common.Order, status common.OrderStatus, msg string) {
	o.Status = status
	o.Message = msg
	e.publishOrder(o)
	e.router.Publish(bus.Event{Kind: bus.FundOrderCancelEvent, Order: o,
		Message: msg, Time: e.adapter.Now(), TradeDate: e.adapter.TradeDate()})
}

func (e *Exchange) publishOrder(o *common.Order) {
	e.router.Publish(bus.Event{Kind: bus.FundRtnOrderEvent, Order: o,
		Time: e.adapter.Now(), TradeDate: e.adapter.TradeDate()})
}

func (e *Exchange) compact() {
	live := e.pendings[:0]
	for _, p := range e.pendings {
		if p.order.Status == common.StatusActive {
			live = append(live, p)
		}
	}
	e.pendings = live
}
