package ledger

import (
	"time"

	"go.uber.org/zap"

	"github.com/lunarquant/lunar/pkg/bus"
	"github.com/lunarquant/lunar/pkg/common"
	"github.com/lunarquant/lunar/pkg/market"
	"github.com/lunarquant/lunar/pkg/utility/fixed"
)

// UnitScale is the number of decimal places fund units carry. Credited
// units are truncated, never rounded up.
const UnitScale = 4

type Fund struct {
	logger  *zap.Logger
	router  *bus.Router
	account *common.Account

	positions  map[string]*common.FundPosition
	frozenCash map[string]fixed.Point

	// redemption orders whose unit freeze was actually taken
	unitFrozen map[string]struct{}
}

func NewFund(logger *zap.Logger, router *bus.Router, accountID string,
	startingCash fixed.Point) *Fund {

	l := &Fund{
		logger:     logger,
		router:     router,
		account:    common.NewAccount(accountID, common.AccountFund, startingCash),
		positions:  make(map[string]*common.FundPosition),
		frozenCash: make(map[string]fixed.Point),
		unitFrozen: make(map[string]struct{}),
	}

	router.Subscribe(bus.FundRtnOrderEvent, l.onOrder)
	router.Subscribe(bus.FundRtnTradeEvent, l.onTrade)
	router.Subscribe(bus.FundQuoteChangeEvent, l.onQuote)
	return l
}

func (l *Fund) Account() *common.Account { return l.account }

func (l *Fund) Position(instrument string) (*common.FundPosition, bool) {
	p, ok := l.positions[instrument]
	return p, ok
}

func (l *Fund) Positions() map[string]*common.FundPosition { return l.positions }

func (l *Fund) CashMove(amount fixed.Point, deposit bool) error {
	return cashMove(l.account, amount, deposit)
}

func (l *Fund) onOrder(ev bus.Event) {
	o := ev.Order
	if o == nil || o.AccountID != l.account.ID {
		return
	}

	switch o.Status {
	case common.StatusActive:
		if o.Side == common.SideBuy {
			// subscription reserves the cash amount
			l.account.Available = l.account.Available.Sub(o.Amount)
			l.account.Frozen = l.account.Frozen.Add(o.Amount)
			l.frozenCash[o.ID] = o.Amount
		} else if p, ok := l.positions[o.Instrument]; ok {
			p.Sellable = p.Sellable.Sub(o.Units)
			p.Frozen = p.Frozen.Add(o.Units)
			l.unitFrozen[o.ID] = struct{}{}
		}
	case common.StatusCancelled, common.StatusRejected:
		if o.Side == common.SideBuy {
			if rest, ok := l.frozenCash[o.ID]; ok {
				l.account.Available = l.account.Available.Add(rest)
				l.account.Frozen = l.account.Frozen.Sub(rest)
				delete(l.frozenCash, o.ID)
			}
		} else if _, took := l.unitFrozen[o.ID]; took {
			delete(l.unitFrozen, o.ID)
			if p, ok := l.positions[o.Instrument]; ok {
				p.Sellable = p.Sellable.Add(o.Units)
				p.Frozen = p.Frozen.Sub(o.Units)
			}
		}
	case common.StatusFilled:
		if o.Side == common.SideBuy {
			delete(l.frozenCash, o.ID)
		} else {
			delete(l.unitFrozen, o.ID)
		}
	}
	l.account.RecomputeEquity()
}

func (l *Fund) onTrade(ev bus.Event) {
	t := ev.Trade
	if t == nil || t.AccountID != l.account.ID {
		return
	}

	if t.Side == common.SideBuy {
		l.applyPurchase(t)
	} else {
		l.applyRedemption(t)
	}
	l.refreshTotals()
}

// applyPurchase confirms a subscription: the frozen amount leaves the
// account and the units credit at the confirmation NAV.
func (l *Fund) applyPurchase(t *common.Trade) {
	l.account.Frozen = l.account.Frozen.Sub(t.Amount)

	p, ok := l.positions[t.Instrument]
	if !ok {
		p = &common.FundPosition{Instrument: t.Instrument}
		l.positions[t.Instrument] = p
	}

	newUnits := p.Units.Add(t.Units)
	p.CostNav = p.CostNav.Mul(p.Units).Add(t.Price.Mul(t.Units)).Div(newUnits)
	p.Units = newUnits
	p.Sellable = p.Sellable.Add(t.Units)
	p.Nav = t.Price
	p.Remark()
}

// applyRedemption completes the T+N arrival: units leave the position and
// the proceeds at the arrival NAV land in available cash.
func (l *Fund) applyRedemption(t *common.Trade) {
	p, ok := l.positions[t.Instrument]
	if !ok {
		l.logger.Error("redemption without position",
			zap.String("instrument", t.Instrument), zap.String("order_id", t.OrderID))
		return
	}

	p.Units = p.Units.Sub(t.Units)
	p.Frozen = p.Frozen.Sub(t.Units)
	l.account.Available = l.account.Available.Add(t.Amount)
	realized := t.Price.Sub(p.CostNav).Mul(t.Units)
	l.account.RealizedPnL = l.account.RealizedPnL.Add(realized)

	if p.Units.IsZero() {
		delete(l.positions, t.Instrument)
		l.router.Publish(bus.Event{Kind: bus.FundUnsubEvent, Instrument: t.Instrument})
		return
	}
	p.Nav = t.Price
	p.Remark()
}

func (l *Fund) onQuote(ev bus.Event) {
	if ev.Bar == nil {
		return
	}
	p, ok := l.positions[ev.Bar.Instrument]
	if !ok || ev.Bar.Close.IsZero() {
		return
	}
	p.Nav = ev.Bar.Close
	p.Remark()
	l.refreshTotals()
}

// SetNav re-marks one position to a fresh NAV.
func (l *Fund) SetNav(instrument string, nav fixed.Point) {
	p, ok := l.positions[instrument]
	if !ok || nav.IsZero() {
		return
	}
	p.Nav = nav
	p.Remark()
	l.refreshTotals()
}

// ApplyDividend credits cash per unit and lowers the cost NAV by the same
// amount.
func (l *Fund) ApplyDividend(d market.FundDividend) {
	p, ok := l.positions[d.Instrument]
	if !ok {
		return
	}
	cash := d.CashPerUnit.Mul(p.Units)
	l.account.Available = l.account.Available.Add(cash)
	p.CostNav = fixed.Max(fixed.Zero, p.CostNav.Sub(d.CashPerUnit))
	l.refreshTotals()

	l.logger.Info("fund dividend applied",
		zap.String("account", l.account.ID),
		zap.String("instrument", d.Instrument),
		zap.String("cash", cash.String()))
}

// ApplySplit multiplies units by the ratio and divides the NAV legs
// inversely.
func (l *Fund) ApplySplit(sp market.Split) {
	p, ok := l.positions[sp.Instrument]
	if !ok || sp.Ratio.IsZero() {
		return
	}
	p.Units = p.Units.Mul(sp.Ratio).Trunc(UnitScale)
	p.Sellable = p.Sellable.Mul(sp.Ratio).Trunc(UnitScale)
	p.Frozen = p.Frozen.Mul(sp.Ratio).Trunc(UnitScale)
	p.CostNav = p.CostNav.Div(sp.Ratio)
	p.Nav = p.Nav.Div(sp.Ratio)
	p.Remark()
	l.refreshTotals()
}

func (l *Fund) refreshTotals() {
	mv, pnl := fixed.Zero, fixed.Zero
	for _, p := range l.positions {
		mv = mv.Add(p.MarketValue)
		pnl = pnl.Add(p.Nav.Sub(p.CostNav).Mul(p.Units))
	}
	l.account.MarketValue = mv
	l.account.HoldingPnL = pnl
	l.account.RecomputeEquity()
}

func (l *Fund) OnNewDay(time.Time) {
	l.account.NewDay()
}

func (l *Fund) OnEndDay() {
	l.refreshTotals()
	l.account.RollDay()
}
