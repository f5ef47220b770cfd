package ledger

import (
	"time"

	"go.uber.org/zap"

	"github.com/lunarquant/lunar/pkg/bus"
	"github.com/lunarquant/lunar/pkg/common"
	"github.com/lunarquant/lunar/pkg/market"
	"github.com/lunarquant/lunar/pkg/utility/fixed"
)

type posKey struct {
	instrument string
	direction  common.Direction
}

type Future struct {
	logger  *zap.Logger
	router  *bus.Router
	adapter *market.Adapter
	rates   *market.RateTable
	account *common.Account

	positions map[posKey]*common.FuturePosition

	frozenCash    map[string]fixed.Point
	frozenPerUnit map[string]fixed.Point

	// close orders whose lot freeze was actually taken; rejected orders
	// never enter it
	closeFrozen map[string]struct{}

	commissionMultiplier fixed.Point
	marginMultiplier     fixed.Point
}

func NewFuture(logger *zap.Logger, router *bus.Router, adapter *market.Adapter,
	rates *market.RateTable, accountID string,
	startingCash, commissionMultiplier, marginMultiplier fixed.Point) *Future {

	l := &Future{
		logger:               logger,
		router:               router,
		adapter:              adapter,
		rates:                rates,
		account:              common.NewAccount(accountID, common.AccountFuture, startingCash),
		positions:            make(map[posKey]*common.FuturePosition),
		frozenCash:           make(map[string]fixed.Point),
		frozenPerUnit:        make(map[string]fixed.Point),
		closeFrozen:          make(map[string]struct{}),
		commissionMultiplier: commissionMultiplier,
		marginMultiplier:     marginMultiplier,
	}

	router.Subscribe(bus.FutureRtnOrderEvent, l.onOrder)
	router.Subscribe(bus.FutureRtnTradeEvent, l.onTrade)
	router.Subscribe(bus.FutureQuoteChangeEvent, l.onQuote)
	return l
}

func (l *Future) Account() *common.Account { return l.account }

func (l *Future) Position(instrument string, dir common.Direction) (*common.FuturePosition, bool) {
	p, ok := l.positions[posKey{instrument, dir}]
	return p, ok
}

func (l *Future) Positions() []*common.FuturePosition {
	out := make([]*common.FuturePosition, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, p)
	}
	return out
}

func (l *Future) CashMove(amount fixed.Point, deposit bool) error {
	return cashMove(l.account, amount, deposit)
}

func (l *Future) Commission(instrument string, closeToday bool,
	price fixed.Point, lots, multiplier int64) fixed.Point {
	return l.rates.Commission(instrument, closeToday, price, lots, multiplier, l.commissionMultiplier)
}

// OpenFreezeEstimate is the cash an open order reserves: full margin plus
// the commission on the whole quantity.
func (l *Future) OpenFreezeEstimate(o *common.Order, inst common.Instrument) fixed.Point {
	rate := l.adapter.EffectiveMarginRate(o.Instrument, directionOf(o), l.marginMultiplier)
	margin := o.Price.MulInt64(o.Quantity).MulInt64(inst.Multiplier).Mul(rate)
	return margin.Add(l.Commission(o.Instrument, false, o.Price, o.Quantity, inst.Multiplier))
}

// directionOf maps the order legs to the position they touch: a buy open
// and a sell close work the long book, the reverse the short book.
func directionOf(o *common.Order) common.Direction {
	if (o.Side == common.SideBuy) == (o.Effect == common.EffectOpen) {
		return common.DirLong
	}
	return common.DirShort
}

func tradeDirection(t *common.Trade) common.Direction {
	if (t.Side == common.SideBuy) == (t.Effect == common.EffectOpen) {
		return common.DirLong
	}
	return common.DirShort
}

func (l *Future) onOrder(ev bus.Event) {
	o := ev.Order
	if o == nil || o.AccountID != l.account.ID {
		return
	}

	switch o.Status {
	case common.StatusActive:
		if o.Effect == common.EffectOpen {
			inst, err := l.adapter.Instrument(o.Instrument)
			if err != nil {
				l.logger.Error("open order for unknown instrument",
					zap.String("instrument", o.Instrument), zap.Error(err))
				return
			}
			freeze := l.OpenFreezeEstimate(o, inst)
			l.account.Available = l.account.Available.Sub(freeze)
			l.account.Frozen = l.account.Frozen.Add(freeze)
			l.frozenCash[o.ID] = freeze
			l.frozenPerUnit[o.ID] = freeze.DivInt64(o.Quantity)
		} else if p, ok := l.positions[posKey{o.Instrument, directionOf(o)}]; ok {
			p.Frozen += o.Quantity
			if o.CloseToday {
				p.FrozenToday += o.Quantity
			} else {
				p.FrozenToday += o.CloseTodayQty
			}
			l.closeFrozen[o.ID] = struct{}{}
		}
	case common.StatusCancelled, common.StatusRejected, common.StatusPartTradedNotQueueing, common.StatusFilled:
		l.releaseOrder(o)
	}
	l.account.RecomputeEquity()
}

func (l *Future) releaseOrder(o *common.Order) {
	if o.Effect == common.EffectOpen {
		if rest, ok := l.frozenCash[o.ID]; ok {
			l.account.Available = l.account.Available.Add(rest)
			l.account.Frozen = l.account.Frozen.Sub(rest)
			delete(l.frozenCash, o.ID)
			delete(l.frozenPerUnit, o.ID)
		}
		return
	}
	if _, took := l.closeFrozen[o.ID]; !took {
		return
	}
	delete(l.closeFrozen, o.ID)
	if p, ok := l.positions[posKey{o.Instrument, directionOf(o)}]; ok && o.Unfilled > 0 {
		p.Frozen -= o.Unfilled
		if o.CloseToday {
			p.FrozenToday -= o.Unfilled
		} else if rest := o.CloseTodayQty - o.FilledCloseToday; rest > 0 {
			p.FrozenToday -= rest
		}
	}
}

func (l *Future) onTrade(ev bus.Event) {
	t := ev.Trade
	if t == nil || t.AccountID != l.account.ID {
		return
	}

	if t.Effect == common.EffectOpen {
		l.applyOpen(t)
	} else {
		l.applyClose(t)
	}

	l.account.Commissions = l.account.Commissions.Add(t.Commission)
	l.refreshTotals()
}

func (l *Future) applyOpen(t *common.Trade) {
	inst, err := l.adapter.Instrument(t.Instrument)
	if err != nil {
		l.logger.Error("open trade for unknown instrument",
			zap.String("instrument", t.Instrument), zap.Error(err))
		return
	}
	dir := tradeDirection(t)

	if perUnit, ok := l.frozenPerUnit[t.OrderID]; ok {
		release := fixed.Min(perUnit.MulInt64(t.Quantity), l.frozenCash[t.OrderID])
		l.frozenCash[t.OrderID] = l.frozenCash[t.OrderID].Sub(release)
		l.account.Frozen = l.account.Frozen.Sub(release)
		l.account.Available = l.account.Available.Add(release)
	}

	rate := l.adapter.EffectiveMarginRate(t.Instrument, dir, l.marginMultiplier)
	margin := t.Price.MulInt64(t.Quantity).MulInt64(inst.Multiplier).Mul(rate)
	l.account.Available = l.account.Available.Sub(margin).Sub(t.Commission)
	l.account.Margin = l.account.Margin.Add(margin)

	key := posKey{t.Instrument, dir}
	p, ok := l.positions[key]
	if !ok {
		bar := l.adapter.DailyBar(t.Instrument)
		p = &common.FuturePosition{
			Instrument:    t.Instrument,
			Direction:     dir,
			Multiplier:    inst.Multiplier,
			PreSettlement: bar.PreClose,
			MarginRate:    rate,
		}
		l.positions[key] = p
	}

	qty := p.Quantity()
	newQty := qty + t.Quantity
	p.HoldPrice = p.HoldPrice.MulInt64(qty).Add(t.Price.MulInt64(t.Quantity)).DivInt64(newQty)
	p.OpenCost = p.OpenCost.MulInt64(qty).Add(t.Price.MulInt64(t.Quantity)).DivInt64(newQty)
	p.TodayQty += t.Quantity
	p.Margin = p.Margin.Add(margin)
	p.MarginRate = rate
	p.Commissions = p.Commissions.Add(t.Commission)
	p.Remark(t.Price)
}

func (l *Future) applyClose(t *common.Trade) {
	dir := tradeDirection(t)
	key := posKey{t.Instrument, dir}
	p, ok := l.positions[key]
	if !ok {
		l.logger.Error("close trade without position",
			zap.String("instrument", t.Instrument), zap.String("order_id", t.OrderID))
		return
	}

	qtyBefore := p.Quantity()
	var ydTaken, tdTaken int64
	if t.CloseToday {
		tdTaken = t.Quantity
		p.TodayQty -= t.Quantity
		p.FrozenToday -= t.Quantity
	} else {
		// yesterday lots go first
		ydTaken = t.Quantity
		if ydTaken > p.YdQty {
			ydTaken = p.YdQty
		}
		tdTaken = t.Quantity - ydTaken
		p.YdQty -= ydTaken
		p.TodayQty -= tdTaken
		if tdTaken > 0 && p.FrozenToday > 0 {
			ft := tdTaken
			if ft > p.FrozenToday {
				ft = p.FrozenToday
			}
			p.FrozenToday -= ft
		}
	}
	p.Frozen -= t.Quantity

	released := p.Margin.MulInt64(t.Quantity).DivInt64(qtyBefore)

	// Yesterday lots were re-marked to the prior settlement; they realize
	// against it, and the blended hold price sheds them at that price so
	// the remainder carries today's open cost.
	realized := fixed.Zero
	if ydTaken > 0 {
		realized = t.Price.Sub(p.PreSettlement).MulInt64(ydTaken).MulInt64(p.Multiplier)
		if remaining := qtyBefore - ydTaken; remaining > 0 {
			p.HoldPrice = p.HoldPrice.MulInt64(qtyBefore).
				Sub(p.PreSettlement.MulInt64(ydTaken)).DivInt64(remaining)
		} else {
			p.HoldPrice = fixed.Zero
		}
	}
	if tdTaken > 0 {
		realized = realized.Add(
			t.Price.Sub(p.HoldPrice).MulInt64(tdTaken).MulInt64(p.Multiplier))
	}
	if dir == common.DirShort {
		realized = realized.Neg()
	}

	l.account.Available = l.account.Available.Add(released).Add(realized).Sub(t.Commission)
	l.account.Margin = l.account.Margin.Sub(released)
	l.account.RealizedPnL = l.account.RealizedPnL.Add(realized)
	p.Margin = p.Margin.Sub(released)
	p.RealizedPnL = p.RealizedPnL.Add(realized)
	p.Commissions = p.Commissions.Add(t.Commission)

	if p.Quantity() == 0 {
		// release any margin residue left by integer division
		if !p.Margin.IsZero() {
			l.account.Available = l.account.Available.Add(p.Margin)
			l.account.Margin = l.account.Margin.Sub(p.Margin)
		}
		delete(l.positions, key)
		if _, other := l.positions[posKey{t.Instrument, dir.Other()}]; !other {
			l.router.Publish(bus.Event{Kind: bus.FutureUnsubEvent, Instrument: t.Instrument})
		}
		return
	}
	p.Remark(t.Price)
}

func (l *Future) onQuote(ev bus.Event) {
	if ev.Bar == nil {
		return
	}
	last := ev.Bar.Close
	if last.IsZero() {
		return
	}
	touched := false
	for _, dir := range []common.Direction{common.DirLong, common.DirShort} {
		if p, ok := l.positions[posKey{ev.Bar.Instrument, dir}]; ok {
			p.Settlement = ev.Bar.Settlement
			p.Remark(last)
			touched = true
		}
	}
	if touched {
		l.refreshTotals()
	}
}

func (l *Future) refreshTotals() {
	pnl, mv := fixed.Zero, fixed.Zero
	for _, p := range l.positions {
		pnl = pnl.Add(p.HoldingPnL)
		mv = mv.Add(p.MarketValue)
	}
	l.account.HoldingPnL = pnl
	l.account.MarketValue = mv
	l.account.RecomputeEquity()
}

// Settle marks every open position to the settlement price, reconciles
// margin-rate changes against available cash and resets the hold price.
func (l *Future) Settle(tradeDate time.Time) {
	for _, p := range l.positions {
		bar := l.adapter.DailyBar(p.Instrument)
		settlement := bar.Settlement
		if settlement.IsZero() {
			// fall back to the last known price
			settlement = p.LastPrice
			if settlement.IsZero() {
				settlement = p.HoldPrice
			}
			l.logger.Warn("settlement price missing",
				zap.String("instrument", p.Instrument),
				zap.Time("trade_date", tradeDate),
				zap.String("fallback", settlement.String()))
		}

		dir := p.Direction
		rate := l.adapter.EffectiveMarginRate(p.Instrument, dir, l.marginMultiplier)

		// a raised rate pulls extra margin out of available cash
		rateDelta := rate.Sub(p.MarginRate)
		if !rateDelta.IsZero() {
			wanting := rateDelta.Mul(p.HoldPrice).MulInt64(p.Quantity()).MulInt64(p.Multiplier)
			l.account.Available = l.account.Available.Sub(wanting)
			p.MarginRate = rate
		}

		move := settlement.Sub(p.HoldPrice)
		var change fixed.Point
		if dir == common.DirLong {
			change = move.MulInt64(p.Quantity()).MulInt64(p.Multiplier).
				Mul(fixed.One.Sub(rate))
		} else {
			change = move.Neg().MulInt64(p.Quantity()).MulInt64(p.Multiplier).
				Mul(fixed.One.Add(rate))
		}
		l.account.Available = l.account.Available.Add(change)

		newMargin := settlement.MulInt64(p.Quantity()).MulInt64(p.Multiplier).Mul(rate)
		l.account.Margin = l.account.Margin.Add(newMargin).Sub(p.Margin)
		p.Margin = newMargin
		p.HoldPrice = settlement
		p.PreSettlement = settlement
		p.Settlement = settlement
		p.HoldingPnL = fixed.Zero
		p.LastPrice = settlement
	}

	l.refreshTotals()
	l.account.RollDay()
}

// Deliver force-closes positions whose contract stops trading today. Margin
// returns to cash at the settlement price.
func (l *Future) Deliver(tradeDate time.Time) {
	for key, p := range l.positions {
		inst, err := l.adapter.Instrument(p.Instrument)
		if err != nil || inst.LastTradeDate.IsZero() {
			continue
		}
		if !sameDay(inst.LastTradeDate, tradeDate) {
			continue
		}

		bar := l.adapter.DailyBar(p.Instrument)
		settlement := bar.Settlement
		if settlement.IsZero() {
			settlement = p.LastPrice
		}

		realized := settlement.Sub(p.HoldPrice).MulInt64(p.Quantity()).MulInt64(p.Multiplier)
		if p.Direction == common.DirShort {
			realized = realized.Neg()
		}

		l.account.Available = l.account.Available.Add(p.Margin).Add(realized)
		l.account.Margin = l.account.Margin.Sub(p.Margin)
		l.account.RealizedPnL = l.account.RealizedPnL.Add(realized)
		delete(l.positions, key)
		l.router.Publish(bus.Event{Kind: bus.FutureUnsubEvent, Instrument: p.Instrument})

		l.logger.Info("position delivered",
			zap.String("instrument", p.Instrument),
			zap.String("direction", p.Direction.String()),
			zap.String("settlement", settlement.String()))
	}
	l.refreshTotals()
}

// CheckBurned wipes the account when settlement leaves it without equity.
// Every later submission rejects.
func (l *Future) CheckBurned() bool {
	if l.account.Burned {
		return true
	}
	if l.account.TotalEquity.IsPos() && !l.account.Available.IsNeg() {
		return false
	}

	l.logger.Error("forced liquidation",
		zap.String("account", l.account.ID),
		zap.String("total_equity", l.account.TotalEquity.String()),
		zap.String("available", l.account.Available.String()))

	for key, p := range l.positions {
		delete(l.positions, key)
		l.router.Publish(bus.Event{Kind: bus.FutureUnsubEvent, Instrument: p.Instrument})
	}
	l.account.Available = fixed.Zero
	l.account.Frozen = fixed.Zero
	l.account.Margin = fixed.Zero
	l.account.HoldingPnL = fixed.Zero
	l.account.MarketValue = fixed.Zero
	l.account.TotalEquity = fixed.Zero
	l.account.Burned = true
	l.account.AddProfit = l.account.TotalEquity.Sub(l.account.StartingCash).
		Add(l.account.Withdraw).Sub(l.account.Deposit)
	return true
}

func (l *Future) OnNewDay(time.Time) {
	for _, p := range l.positions {
		p.YdQty += p.TodayQty
		p.TodayQty = 0
		p.FrozenToday = 0
	}
	l.account.NewDay()
}

func (l *Future) OnEndDay() {
	l.refreshTotals()
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}
