// Package stock simulates the A-share matching venue: order verification,
// bar-driven crossing with slippage, and day-start corporate actions.
package stock

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/lunarquant/lunar/pkg/bus"
	"github.com/lunarquant/lunar/pkg/common"
	"github.com/lunarquant/lunar/pkg/exchange"
	"github.com/lunarquant/lunar/pkg/market"
	"github.com/lunarquant/lunar/pkg/utility"
	"github.com/lunarquant/lunar/pkg/utility/fixed"
)

// Book is the view of the stock account the verification chain needs.
// *ledger.Stock satisfies it.
type Book interface {
	Account() *common.Account
	Position(instrument string) (*common.StockPosition, bool)
	BuyFreezeEstimate(price fixed.Point, quantity int64) fixed.Point
	Commission(price fixed.Point, quantity int64, side common.OrderSide) fixed.Point
	ApplyDividend(d market.Dividend)
	ApplyETFSplit(sp market.Split)
}

type Exchange struct {
	logger   *zap.Logger
	router   *bus.Router
	adapter  *market.Adapter
	book     Book
	session  *exchange.Session
	verifier exchange.Verifier

	slippage      fixed.Point
	volumeLimited bool

	queue      []*common.Order
	working    map[string]*common.Order
	subscribed map[string]struct{}
}

func NewExchange(logger *zap.Logger, router *bus.Router, adapter *market.Adapter,
	book Book, slippage fixed.Point, volumeLimited bool) *Exchange {

	e := &Exchange{
		logger:        logger,
		router:        router,
		adapter:       adapter,
		book:          book,
		session:       exchange.NewSession(nil),
		verifier:      nil,
		slippage:      slippage,
		volumeLimited: volumeLimited,
		working:       make(map[string]*common.Order),
		subscribed:    make(map[string]struct{}),
	}

	router.Subscribe(bus.StockOrderEvent, e.onOrder)
	router.Subscribe(bus.StockSubEvent, e.onSub)
	router.Subscribe(bus.StockUnsubEvent, e.onUnsub)
	router.Subscribe(bus.HandleBarEvent, e.onHandleBar)
	return e
}

// SetSession installs the minute window checked on submissions. Without
// one every minute passes, which is what daily mode wants.
func (e *Exchange) SetSession(s *exchange.Session) { e.session = s }

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

// Submit runs the verification chain and, on acceptance, registers the
// order and tries to cross it against the current bar immediately.
func (e *Exchange) Submit(o *common.Order) {
	if o.ID == "" {
		o.ID = utility.NewOrderID()
	}
	o.Status = common.StatusActive
	o.Filled = 0
	o.Unfilled = o.Quantity
	o.TradeDate = e.adapter.TradeDate()
	o.TimeStamp = e.adapter.Now()

	if msg := e.verify(o); msg != "" {
		e.reject(o, msg)
		return
	}

	// market orders reserve cash at the current quote
	if o.PriceType == common.PriceMarket && o.Price.IsZero() {
		o.Price = e.adapter.LastPrice(o.Instrument)
	}

	e.queue = append(e.queue, o)
	e.working[o.ID] = o
	e.subscribed[o.Instrument] = struct{}{}
	e.publishOrder(o)
	e.tryFill(o)
}

// Cancel pulls one working order. Unknown ids are ignored.
func (e *Exchange) Cancel(orderID string) {
	o, ok := e.working[orderID]
	if !ok {
		return
	}
	e.finish(o, cancelStatus(o), "cancelled by request")
}

// CancelAll clears the work list at day end. Partially filled orders end
// as PART_TRADED_NOT_QUEUEING, untouched ones as CANCELLED.
func (e *Exchange) CancelAll() {
	for _, o := range e.queue {
		if o.Status != common.StatusActive {
			continue
		}
		e.finish(o, cancelStatus(o), "day closed")
	}
	e.queue = e.queue[:0]
}

// DayStart applies the date's cash and stock dividends and ETF split
// adjustments before any order flow.
func (e *Exchange) DayStart(tradeDate time.Time) {
	divs, err := e.adapter.Store().Dividends(tradeDate)
	if err != nil {
		e.logger.Error("dividend lookup failed", zap.Error(err))
	}
	for _, d := range divs {
		if _, held := e.book.Position(d.Instrument); held {
			e.book.ApplyDividend(d)
		}
	}

	splits, err := e.adapter.Store().ETFSplits(tradeDate)
	if err != nil {
		e.logger.Error("etf split lookup failed", zap.Error(err))
	}
	for _, sp := range splits {
		if _, held := e.book.Position(sp.Instrument); held {
			e.book.ApplyETFSplit(sp)
		}
	}
}

// onHandleBar publishes quote changes for every subscribed instrument and
// re-attempts the working orders in submission order.
func (e *Exchange) onHandleBar(bus.Event) {
	for _, inst := range e.sortedSubscriptions() {
		bar := e.adapter.Bar(inst)
		if bar.Empty() {
			continue
		}
		b := bar
		e.router.Publish(bus.Event{
			Kind:       bus.StockQuoteChangeEvent,
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

	fillPrice := quoted
	if !e.slippage.IsZero() {
		if o.Side == common.SideBuy {
			fillPrice = quoted.Mul(fixed.One.Add(e.slippage))
		} else {
			fillPrice = quoted.Mul(fixed.One.Sub(e.slippage))
		}
	}
	fillPrice = exchange.ClampToBand(fillPrice, bar)

	qty := o.Unfilled
	if e.volumeLimited && bar.Volume < qty {
		lot := e.roundLot(o.Instrument)
		qty = bar.Volume / lot * lot
		if qty == 0 {
			e.finish(o, common.StatusCancelled, "cannot cross, bar volume too small")
			return
		}
	}

	e.fill(o, fillPrice, qty)
}

func (e *Exchange) fill(o *common.Order, price fixed.Point, qty int64) {
	o.Filled += qty
	o.Unfilled -= qty

	t := &common.Trade{
		ID:         utility.NewTradeID(),
		OrderID:    o.ID,
		AccountID:  o.AccountID,
		Instrument: o.Instrument,
		Side:       o.Side,
		Effect:     o.Effect,
		Price:      price,
		Quantity:   qty,
		Amount:     price.MulInt64(qty),
		Commission: e.book.Commission(price, qty, o.Side),
		TradeDate:  e.adapter.TradeDate(),
		TimeStamp:  e.adapter.Now(),
	}
	e.router.Publish(bus.Event{Kind: bus.StockRtnTradeEvent, Trade: t,
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
	e.logger.Info("stock order rejected",
		zap.String("order_id", o.ID),
		zap.String("instrument", o.Instrument),
		zap.String("reason", msg))
	e.publishOrder(o)
	e.router.Publish(bus.Event{Kind: bus.StockOrderCancelEvent, Order: o,
		Message: msg, Time: e.adapter.Now(), TradeDate: e.adapter.TradeDate()})
}

func (e *Exchange) finish(o *common.Order, status common.OrderStatus, msg string) {
	o.Status = status
	o.Message = msg
	delete(e.working, o.ID)
	e.publishOrder(o)
	e.router.Publish(bus.Event{Kind: bus.StockOrderCancelEvent, Order: o,
		Message: msg, Time: e.adapter.Now(), TradeDate: e.adapter.TradeDate()})
}

func (e *Exchange) publishOrder(o *common.Order) {
	e.router.Publish(bus.Event{Kind: bus.StockRtnOrderEvent, Order: o,
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

func (e *Exchange) roundLot(instrument string) int64 {
	inst, err := e.adapter.Instrument(instrument)
	if err == nil && inst.RoundLot > 0 {
		return inst.RoundLot
	}
	if common.IsSTAR(instrument) {
		return 200
	}
	return 100
}

func cancelStatus(o *common.Order) common.OrderStatus {
	if o.Filled > 0 {
		return common.StatusPartTradedNotQueueing
	}
	return common.StatusCancelled
}
