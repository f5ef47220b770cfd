// Package future simulates the futures matching venue: session and band
// verification, tick-based slippage fills, and SHFE/INE close-today
// order splitting.
package future

import (
	"sort"

	"go.uber.org/zap"

	"github.com/lunarquant/lunar/pkg/bus"
	"github.com/lunarquant/lunar/pkg/common"
	"github.com/lunarquant/lunar/pkg/exchange"
	"github.com/lunarquant/lunar/pkg/market"
	"github.com/lunarquant/lunar/pkg/utility"
	"github.com/lunarquant/lunar/pkg/utility/fixed"
)

// Book is the view of the futures account the verification chain needs.
// *ledger.Future satisfies it.
type Book interface {
	Account() *common.Account
	Position(instrument string, dir common.Direction) (*common.FuturePosition, bool)
	Commission(instrument string, closeToday bool, price fixed.Point, lots, multiplier int64) fixed.Point
	OpenFreezeEstimate(o *common.Order, inst common.Instrument) fixed.Point
}

type Exchange struct {
	logger   *zap.Logger
	router   *bus.Router
	adapter  *market.Adapter
	book     Book
	verifier exchange.Verifier

	daySession   *exchange.Session
	nightSession *exchange.Session

	slippageTicks int64
	volumeLimited bool

	queue      []*common.Order
	working    map[string]*common.Order
	subscribed map[string]struct{}
}

func NewExchange(logger *zap.Logger, router *bus.Router, adapter *market.Adapter,
	book Book, slippageTicks int64, volumeLimited bool) *Exchange {

	e := &Exchange{
		logger:        logger,
		router:        router,
		adapter:       adapter,
		book:          book,
		daySession:    exchange.NewSession(nil),
		nightSession:  exchange.NewSession(nil),
		slippageTicks: slippageTicks,
		volumeLimited: volumeLimited,
		working:       make(map[string]*common.Order),
		subscribed:    make(map[string]struct{}),
	}

	router.Subscribe(bus.FutureOrderEvent, e.onOrder)
	router.Subscribe(bus.FutureSubEvent, e.onSub)
	router.Subscribe(bus.FutureUnsubEvent, e.onUnsub)
	router.Subscribe(bus.HandleBarEvent, e.onHandleBar)
	return e
}

func (e *Exchange) SetSessions(day, night *exchange.Session) {
	e.daySession, e.nightSession = day, night
}

func (e *Exchange) SetVerifier(v exchange.Verifier) { e.verifier = v }

func (e *Exchange) onOrder(ev bus.Event) {
	if ev.Order != nil {
		e.Submit(ev.Order)
	}
}

func (e *Exchange) onSub(ev bus.Event) {
	if ev.Instrument != "" {
		e.subscribed[ev.Instrument] = struct{}{}
	}
}

func (e *Exchange) onUnsub(ev bus.Event) {
	for _, o := range e.working {
		if o.Instrument == ev.Instrument {
			return
		}
	}
	delete(e.subscribed, ev.Instrument)
}

// Submit verifies and registers an order. SHFE/INE closes that reach
// beyond the yesterday book are split first, so a caller may see two
// child order streams instead of one.
func (e *Exchange) Submit(o *common.Order) {
	if o.ID == "" {
		o.ID = utility.NewOrderID()
	}
	o.Status = common.StatusActive
	o.Filled = 0
	o.FilledCloseToday = 0
	o.Unfilled = o.Quantity
	o.TradeDate = e.adapter.TradeDate()
	o.TimeStamp = e.adapter.Now()

	if o.Effect == common.EffectClose {
		if done := e.splitCloseToday(o); done {
			return
		}
	}

	if msg := e.verify(o); msg != "" {
		e.reject(o, msg)
		return
	}

	if o.PriceType == common.PriceMarket && o.Price.IsZero() {
		o.Price = e.adapter.LastPrice(o.Instrument)
	}

	e.queue = append(e.queue, o)
	e.working[o.ID] = o
	e.subscribed[o.Instrument] = struct{}{}
	e.publishOrder(o)
	e.tryFill(o)
}

// Cancel pulls one working order, or both children of a split parent.
func (e *Exchange) Cancel(orderID string) {
	for _, o := range e.queue {
		if o.Status != common.StatusActive {
			continue
		}
		if o.ID == orderID || o.ParentID == orderID {
			e.finish(o, cancelStatus(o), "cancelled by request")
		}
	}
}

// CancelAll clears the work list at day end.
func (e *Exchange) CancelAll() {
	for _, o := range e.queue {
		if o.Status != common.StatusActive {
			continue
		}
		e.finish(o, cancelStatus(o), "day closed")
	}
	e.queue = e.queue[:0]
}

func (e *Exchange) onHandleBar(bus.Event) {
	for _, inst := range e.sortedSubscriptions() {
		bar := e.adapter.Bar(inst)
		if bar.Empty() {
			continue
		}
		b := bar
		e.router.Publish(bus.Event{
			Kind:       bus.FutureQuoteChangeEvent,
			Instrument: inst,
			Bar:        &b,
			Time:       e.adapter.Now(),
			TradeDate:  e.adapter.TradeDate(),
		})
	}
	for _, o := range e.queue {
		if o.Status == common.StatusActive {
			e.tryFill(o)
		}
	}
	e.compactQueue()
}

func (e *Exchange) tryFill(o *common.Order) {
	bar := e.adapter.Bar(o.Instrument)
	if bar.Empty() {
		return
	}
	quoted := bar.Last(e.adapter.LastField())
	if quoted.IsZero() {
		return
	}

	if o.PriceType == common.PriceLimit {
		if o.Side == common.SideBuy && o.Price.Lt(quoted) {
			return
		}
		if o.Side == common.SideSell && o.Price.Gt(quoted) {
			return
		}
	}

	inst, err := e.adapter.Instrument(o.Instrument)
	if err != nil {
		return
	}

	// slippage moves the fill by whole ticks and is not band-clamped
	fillPrice := quoted
	if e.slippageTicks > 0 && !inst.PriceTick.IsZero() {
		slip := inst.PriceTick.MulInt64(e.slippageTicks)
		if o.Side == common.SideBuy {
			fillPrice = quoted.Add(slip)
		} else {
			fillPrice = quoted.Sub(slip)
		}
	}

	qty := o.Unfilled
	if e.volumeLimited && bar.Volume < qty {
		qty = bar.Volume
		if qty == 0 {
			e.finish(o, common.StatusCancelled, "cannot cross, bar volume too small")
			return
		}
	}

	e.fill(o, inst, fillPrice, qty)
}

func (e *Exchange) fill(o *common.Order, inst common.Instrument, price fixed.Point, qty int64) {
	closeToday := o.CloseToday
	o.Filled += qty
	o.Unfilled -= qty
	if closeToday {
		o.FilledCloseToday += qty
	}

	t := &common.Trade{
		ID:         utility.NewTradeID(),
		OrderID:    o.ID,
		AccountID:  o.AccountID,
		Instrument: o.Instrument,
		Side:       o.Side,
		Effect:     o.Effect,
		Price:      price,
		Quantity:   qty,
		Amount:     price.MulInt64(qty).MulInt64(inst.Multiplier),
		CloseToday: closeToday,
		Commission: e.book.Commission(o.Instrument, closeToday, price, qty, inst.Multiplier),
		TradeDate:  e.adapter.TradeDate(),
		TimeStamp:  e.adapter.Now(),
	}
	e.router.Publish(bus.Event{Kind: bus.FutureRtnTradeEvent, Trade: t,
		Time: t.TimeStamp, TradeDate: t.TradeDate})

	if o.Unfilled == 0 {
		o.Status = common.StatusFilled
	} else {
		o.Status = common.StatusPartTradedNotQueueing
		o.Message = "partially crossed, remainder withdrawn"
	}
	delete(e.working, o.ID)
	e.publishOrder(o)
}

func (e *Exchange) reject(o *common.Order, msg string) {
	o.Status = common.StatusRejected
	o.Message = msg
	e.logger.Info("future order rejected",
		zap.String("order_id", o.ID),
		zap.String("instrument", o.Instrument),
		zap.String("reason", msg))
	e.publishOrder(o)
	e.router.Publish(bus.Event{Kind: bus.FutureOrderCancelEvent, Order: o,
		Message: msg, Time: e.adapter.Now(), TradeDate: e.adapter.TradeDate()})
}

func (e *Exchange) finish(o *common.Order, status common.OrderStatus, msg string) {
	o.Status = status
	o.Message = msg
	delete(e.working, o.ID)
	e.publishOrder(o)
	e.router.Publish(bus.Event{Kind: bus.FutureOrderCancelEvent, Order: o,
		Message: msg, Time: e.adapter.Now(), TradeDate: e.adapter.TradeDate()})
}

func (e *Exchange) publishOrder(o *common.Order) {
	e.router.Publish(bus.Event{Kind: bus.FutureRtnOrderEvent, Order: o,
		Time: e.adapter.Now(), TradeDate: e.adapter.TradeDate()})
}

func (e *Exchange) compactQueue() {
	live := e.queue[:0]
	for _, o := range e.queue {
		if o.Status == common.StatusActive {
			live = append(live, o)
		}
	}
	e.queue = live
}

func (e *Exchange) sortedSubscriptions() []string {
	out := make([]string, 0, len(e.subscribed))
	for inst := range e.subscribed {
		out = append(out, inst)
	}
	sort.Strings(out)
	return out
}

func cancelStatus(o *common.Order) common.OrderStatus {
	if o.Filled > 0 {
		return common.StatusPartTradedNotQueueing
	}
	return common.StatusCancelled
}
