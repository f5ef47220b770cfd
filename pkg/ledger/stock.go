package ledger

import (
	"time"

	"go.uber.org/zap"

	"github.com/lunarquant/lunar/pkg/bus"
	"github.com/lunarquant/lunar/pkg/common"
	"github.com/lunarquant/lunar/pkg/market"
	"github.com/lunarquant/lunar/pkg/utility/fixed"
)

// StockFeeRate is the base commission fraction; commissions floor at
// StockMinCommission and sells add StockStampRate stamp duty.
var (
	StockFeeRate       = fixed.FromFloat64(0.0008)
	StockMinCommission = fixed.FromInt(5, 0)
	StockStampRate     = fixed.FromFloat64(0.001)
)

type Stock struct {
	logger  *zap.Logger
	router  *bus.Router
	account *common.Account

	positions map[string]*common.StockPosition

	// cash reserved per working buy order, released pro rata on fills
	frozenCash    map[string]fixed.Point
	frozenPerUnit map[string]fixed.Point

	// sell orders whose sellable freeze was actually taken; rejected
	// orders never enter it
	sellFrozen map[string]struct{}

	commissionMultiplier fixed.Point
}

func NewStock(logger *zap.Logger, router *bus.Router, accountID string,
	startingCash, commissionMultiplier fixed.Point) *Stock {

	l := &Stock{
		logger:               logger,
		router:               router,
		account:              common.NewAccount(accountID, common.AccountStock, startingCash),
		positions:            make(map[string]*common.StockPosition),
		frozenCash:           make(map[string]fixed.Point),
		frozenPerUnit:        make(map[string]fixed.Point),
		sellFrozen:           make(map[string]struct{}),
		commissionMultiplier: commissionMultiplier,
	}

	router.Subscribe(bus.StockRtnOrderEvent, l.onOrder)
	router.Subscribe(bus.StockRtnTradeEvent, l.onTrade)
	router.Subscribe(bus.StockQuoteChangeEvent, l.onQuote)
	return l
}

func (l *Stock) Account() *common.Account { return l.account }

func (l *Stock) Position(instrument string) (*common.StockPosition, bool) {
	p, ok := l.positions[instrument]
	return p, ok
}

func (l *Stock) Positions() map[string]*common.StockPosition { return l.positions }

func (l *Stock) CashMove(amount fixed.Point, deposit bool) error {
	return cashMove(l.account, amount, deposit)
}

// BuyFreezeEstimate is the cash a buy order reserves: notional plus the
// commission schedule applied to the full quantity.
func (l *Stock) BuyFreezeEstimate(price fixed.Point, quantity int64) fixed.Point {
	return price.MulInt64(quantity).
		Mul(fixed.One.Add(StockFeeRate.Mul(l.commissionMultiplier)))
}

// Commission prices one stock fill.
func (l *Stock) Commission(price fixed.Point, quantity int64, side common.OrderSide) fixed.Point {
	notional := price.MulInt64(quantity)
	fee := fixed.Max(StockMinCommission, notional.Mul(StockFeeRate).Mul(l.commissionMultiplier))
	if side == common.SideSell {
		fee = fee.Add(notional.Mul(StockStampRate))
	}
	return fee
}

func (l *Stock) onOrder(ev bus.Event) {
	o := ev.Order
	if o == nil || o.AccountID != l.account.ID {
		return
	}

	switch o.Status {
	case common.StatusActive:
		if o.Side == common.SideBuy {
			freeze := l.BuyFreezeEstimate(o.Price, o.Quantity)
			l.account.Available = l.account.Available.Sub(freeze)
			l.account.Frozen = l.account.Frozen.Add(freeze)
			l.frozenCash[o.ID] = freeze
			l.frozenPerUnit[o.ID] = freeze.DivInt64(o.Quantity)
		} else if p, ok := l.positions[o.Instrument]; ok {
			p.Sellable -= o.Quantity
			p.Frozen += o.Quantity
			l.sellFrozen[o.ID] = struct{}{}
		}
	case common.StatusCancelled, common.StatusRejected, common.StatusPartTradedNotQueueing, common.StatusFilled:
		l.releaseOrder(o)
	}
	l.account.RecomputeEquity()
}

// releaseOrder returns the reservations left by an order reaching a
// terminal status.
func (l *Stock) releaseOrder(o *common.Order) {
	if o.Side == common.SideBuy {
		if rest, ok := l.frozenCash[o.ID]; ok {
			l.account.Available = l.account.Available.Add(rest)
			l.account.Frozen = l.account.Frozen.Sub(rest)
			delete(l.frozenCash, o.ID)
			delete(l.frozenPerUnit, o.ID)
		}
		return
	}
	if _, took := l.sellFrozen[o.ID]; !took {
		return
	}
	delete(l.sellFrozen, o.ID)
	if p, ok := l.positions[o.Instrument]; ok && o.Unfilled > 0 {
		p.Sellable += o.Unfilled
		p.Frozen -= o.Unfilled
	}
}

func (l *Stock) onTrade(ev bus.Event) {
	t := ev.Trade
	if t == nil || t.AccountID != l.account.ID {
		return
	}

	if t.Side == common.SideBuy {
		l.applyBuy(t)
	} else {
		l.applySell(t)
	}

	l.account.Commissions = l.account.Commissions.Add(t.Commission)
	l.refreshTotals()
}

func (l *Stock) applyBuy(t *common.Trade) {
	// release the pro-rata share of the order's reservation, pay the
	// actual cost
	if perUnit, ok := l.frozenPerUnit[t.OrderID]; ok {
		release := fixed.Min(perUnit.MulInt64(t.Quantity), l.frozenCash[t.OrderID])
		l.frozenCash[t.OrderID] = l.frozenCash[t.OrderID].Sub(release)
		l.account.Frozen = l.account.Frozen.Sub(release)
		l.account.Available = l.account.Available.Add(release)
	}
	cost := t.Price.MulInt64(t.Quantity).Add(t.Commission)
	l.account.Available = l.account.Available.Sub(cost)

	p, ok := l.positions[t.Instrument]
	if !ok {
		roundLot := int64(100)
		if common.IsSTAR(t.Instrument) {
			roundLot = 200
		}
		p = &common.StockPosition{Instrument: t.Instrument, RoundLot: roundLot}
		l.positions[t.Instrument] = p
	}

	newQty := p.Quantity + t.Quantity
	p.CostPrice = p.CostPrice.MulInt64(p.Quantity).
		Add(t.Price.MulInt64(t.Quantity)).DivInt64(newQty)
	p.Quantity = newQty
	p.TodayBought += t.Quantity
	p.LastPrice = t.Price
	p.Commissions = p.Commissions.Add(t.Commission)
	p.Remark()
}

func (l *Stock) applySell(t *common.Trade) {
	p, ok := l.positions[t.Instrument]
	if !ok {
		l.logger.Error("sell trade without position",
			zap.String("instrument", t.Instrument), zap.String("order_id", t.OrderID))
		return
	}

	p.Quantity -= t.Quantity
	p.Frozen -= t.Quantity
	p.Commissions = p.Commissions.Add(t.Commission)

	proceeds := t.Price.MulInt64(t.Quantity).Sub(t.Commission)
	l.account.Available = l.account.Available.Add(proceeds)
	realized := t.Price.Sub(p.CostPrice).MulInt64(t.Quantity).Sub(t.Commission)
	l.account.RealizedPnL = l.account.RealizedPnL.Add(realized)

	if p.Quantity == 0 {
		delete(l.positions, t.Instrument)
		l.router.Publish(bus.Event{Kind: bus.StockUnsubEvent, Instrument: t.Instrument})
		return
	}
	p.LastPrice = t.Price
	p.Remark()
}

func (l *Stock) onQuote(ev bus.Event) {
	if ev.Bar == nil {
		return
	}
	p, ok := l.positions[ev.Bar.Instrument]
	if !ok {
		return
	}
	last := ev.Bar.Close
	if last.IsZero() {
		return
	}
	p.LastPrice = last
	p.Remark()
	l.refreshTotals()
}

func (l *Stock) refreshTotals() {
	mv, pnl := fixed.Zero, fixed.Zero
	for _, p := range l.positions {
		mv = mv.Add(p.MarketValue)
		pnl = pnl.Add(p.HoldingPnL)
	}
	l.account.MarketValue = mv
	l.account.HoldingPnL = pnl
	l.account.RecomputeEquity()
}

// ApplyDividend credits the cash leg and grows the position by the stock
// and transfer ratios, rebasing the cost price so holding pnl is unchanged.
func (l *Stock) ApplyDividend(d market.Dividend) {
	p, ok := l.positions[d.Instrument]
	if !ok {
		return
	}

	if !d.CashPerShare.IsZero() {
		cash := d.CashPerShare.MulInt64(p.Quantity)
		l.account.Available = l.account.Available.Add(cash)
		p.CostPrice = fixed.Max(fixed.Zero, p.CostPrice.Sub(d.CashPerShare))
	}

	ratio := d.StockRatio.Add(d.TransRatio)
	if !ratio.IsZero() {
		n := ratio.MulInt64(p.Quantity).Int64()
		if n > 0 {
			newQty := p.Quantity + n
			p.CostPrice = p.CostPrice.MulInt64(p.Quantity).DivInt64(newQty)
			p.Quantity = newQty
			p.Sellable += n
		}
	}
	p.Remark()
	l.refreshTotals()

	l.logger.Info("dividend applied",
		zap.String("account", l.account.ID),
		zap.String("instrument", d.Instrument),
		zap.String("cash_per_share", d.CashPerShare.String()))
}

// ApplyETFSplit scales quantity by the ratio and prices inversely.
func (l *Stock) ApplyETFSplit(sp market.Split) {
	p, ok := l.positions[sp.Instrument]
	if !ok || sp.Ratio.IsZero() {
		return
	}

	newQty := sp.Ratio.MulInt64(p.Quantity).Int64()
	if newQty <= 0 {
		return
	}
	p.Sellable = p.Sellable * newQty / p.Quantity
	p.Quantity = newQty
	p.CostPrice = p.CostPrice.Div(sp.Ratio)
	p.LastPrice = p.LastPrice.Div(sp.Ratio)
	p.Remark()
	l.refreshTotals()
}

func (l *Stock) OnNewDay(time.Time) {
	for _, p := range l.positions {
		p.Sellable = p.Quantity - p.Frozen
		p.TodayBought = 0
	}
	l.account.NewDay()
}

func (l *Stock) OnEndDay() {
	l.refreshTotals()
	l.account.RollDay()
}
