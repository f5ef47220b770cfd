// Package trade is the operation surface strategies call. Every method
// builds an order and publishes it to the matching exchange through the
// bus; submission is synchronous, so the returned order already carries
// its final status for the current bar.
package trade

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/lunarquant/lunar/pkg/bus"
	"github.com/lunarquant/lunar/pkg/common"
	"github.com/lunarquant/lunar/pkg/ledger"
	"github.com/lunarquant/lunar/pkg/market"
	"github.com/lunarquant/lunar/pkg/utility"
	"github.com/lunarquant/lunar/pkg/utility/fixed"
)

var ErrNoAccount = errors.New("trade: account type not configured for this run")

// Canceller pulls a working order from one exchange.
type Canceller interface {
	Cancel(orderID string)
}

// Drawer records plotting payloads alongside the daily results.
type Drawer interface {
	Draw(series string, value float64)
}

type Proxy struct {
	logger  *zap.Logger
	router  *bus.Router
	adapter *market.Adapter

	stocks  *ledger.Stock
	futures *ledger.Future
	funds   *ledger.Fund

	stockCancel  Canceller
	futureCancel Canceller
	fundCancel   Canceller

	drawer Drawer
}

func NewProxy(logger *zap.Logger, router *bus.Router, adapter *market.Adapter,
	stocks *ledger.Stock, futures *ledger.Future, funds *ledger.Fund) *Proxy {

	return &Proxy{
		logger:  logger,
		router:  router,
		adapter: adapter,
		stocks:  stocks,
		futures: futures,
		funds:   funds,
	}
}

func (p *Proxy) SetCancellers(stock, future, fund Canceller) {
	p.stockCancel, p.futureCancel, p.fundCancel = stock, future, fund
}

func (p *Proxy) SetDrawer(d Drawer) { p.drawer = d }

// OrderShares trades a stock by signed share count: positive buys,
// negative sells. A zero price submits at market.
func (p *Proxy) OrderShares(instrument string, shares int64, price fixed.Point) (*common.Order, error) {
	if p.stocks == nil {
		return nil, ErrNoAccount
	}
	if shares == 0 {
		return nil, fmt.Errorf("trade: zero share order for %s", instrument)
	}
	side := common.SideBuy
	if shares < 0 {
		side = common.SideSell
		shares = -shares
	}
	o := &common.Order{
		ID:         utility.NewOrderID(),
		AccountID:  p.stocks.Account().ID,
		Instrument: instrument,
		Side:       side,
		PriceType:  priceTypeFor(price),
		Price:      price,
		Quantity:   shares,
		Origin:     common.OriginStrategy,
	}
	p.router.Publish(bus.Event{Kind: bus.StockOrderEvent, Order: o})
	return o, nil
}

// OrderValue converts a cash value into whole lots at the last price and
// places the share order.
func (p *Proxy) OrderValue(instrument string, value fixed.Point) (*common.Order, error) {
	if p.stocks == nil {
		return nil, ErrNoAccount
	}
	last := p.adapter.LastPrice(instrument)
	if last.IsZero() {
		return nil, fmt.Errorf("trade: no price for %s", instrument)
	}
	lot := p.roundLot(instrument)
	shares := value.Abs().Div(last).Int64() / lot * lot
	if shares == 0 {
		return nil, fmt.Errorf("trade: value %s buys no whole lot of %s", value.String(), instrument)
	}
	if value.IsNeg() {
		shares = -shares
	}
	return p.OrderShares(instrument, shares, fixed.Zero)
}

// CancelOrder withdraws a working order wherever it lives.
func (p *Proxy) CancelOrder(orderID string) {
	for _, c := range []Canceller{p.stockCancel, p.futureCancel, p.fundCancel} {
		if c != nil {
			c.Cancel(orderID)
		}
	}
}

func (p *Proxy) BuyOpen(instrument string, lots int64, price fixed.Point) (*common.Order, error) {
	return p.futureOrder(instrument, common.SideBuy, common.EffectOpen, lots, price, false)
}

func (p *Proxy) SellOpen(instrument string, lots int64, price fixed.Point) (*common.Order, error) {
	return p.futureOrder(instrument, common.SideSell, common.EffectOpen, lots, price, false)
}

// BuyClose closes short lots.
func (p *Proxy) BuyClose(instrument string, lots int64, price fixed.Point, closeToday bool) (*common.Order, error) {
	return p.futureOrder(instrument, common.SideBuy, common.EffectClose, lots, price, closeToday)
}

// SellClose closes long lots.
func (p *Proxy) SellClose(instrument string, lots int64, price fixed.Point, closeToday bool) (*common.Order, error) {
	return p.futureOrder(instrument, common.SideSell, common.EffectClose, lots, price, closeToday)
}

// LongFutureTarget moves the long book to target lots, opening or closing
// the difference at market.
func (p *Proxy) LongFutureTarget(instrument string, target int64) (*common.Order, error) {
	return p.futureTarget(instrument, common.DirLong, target)
}

// ShortFutureTarget moves the short book to target lots.
func (p *Proxy) ShortFutureTarget(instrument string, target int64) (*common.Order, error) {
	return p.futureTarget(instrument, common.DirShort, target)
}

func (p *Proxy) futureTarget(instrument string, dir common.Direction, target int64) (*common.Order, error) {
	if p.futures == nil {
		return nil, ErrNoAccount
	}
	if target < 0 {
		return nil, fmt.Errorf("trade: negative target %d for %s", target, instrument)
	}
	var current int64
	if pos, ok := p.futures.Position(instrument, dir); ok {
		current = pos.Quantity()
	}
	delta := target - current
	if delta == 0 {
		return nil, nil
	}

	openSide, closeSide := common.SideBuy, common.SideSell
	if dir == common.DirShort {
		openSide, closeSide = common.SideSell, common.SideBuy
	}
	if delta > 0 {
		return p.futureOrder(instrument, openSide, common.EffectOpen, delta, fixed.Zero, false)
	}
	return p.futureOrder(instrument, closeSide, common.EffectClose, -delta, fixed.Zero, false)
}

func (p *Proxy) futureOrder(instrument string, side common.OrderSide, effect common.OrderEffect,
	lots int64, price fixed.Point, closeToday bool) (*common.Order, error) {

	if p.futures == nil {
		return nil, ErrNoAccount
	}
	if lots <= 0 {
		return nil, fmt.Errorf("trade: non-positive lot count for %s", instrument)
	}
	o := &common.Order{
		ID:         utility.NewOrderID(),
		AccountID:  p.futures.Account().ID,
		Instrument: instrument,
		Side:       side,
		Effect:     effect,
		PriceType:  priceTypeFor(price),
		Price:      price,
		Quantity:   lots,
		CloseToday: closeToday,
		Origin:     common.OriginStrategy,
	}
	p.router.Publish(bus.Event{Kind: bus.FutureOrderEvent, Order: o})
	return o, nil
}

// Purchase subscribes cash into an open-end fund.
func (p *Proxy) Purchase(instrument string, amount fixed.Point) (*common.Order, error) {
	if p.funds == nil {
		return nil, ErrNoAccount
	}
	o := &common.Order{
		ID:         utility.NewOrderID(),
		AccountID:  p.funds.Account().ID,
		Instrument: instrument,
		Side:       common.SideBuy,
		Amount:     amount,
		Origin:     common.OriginStrategy,
	}
	p.router.Publish(bus.Event{Kind: bus.FundOrderEvent, Order: o})
	return o, nil
}

// Redeem schedules a unit redemption.
func (p *Proxy) Redeem(instrument string, units fixed.Point) (*common.Order, error) {
	if p.funds == nil {
		return nil, ErrNoAccount
	}
	o := &common.Order{
		ID:         utility.NewOrderID(),
		AccountID:  p.funds.Account().ID,
		Instrument: instrument,
		Side:       common.SideSell,
		Units:      units,
		Origin:     common.OriginStrategy,
	}
	p.router.Publish(bus.Event{Kind: bus.FundOrderEvent, Order: o})
	return o, nil
}

// Subscribe opens a quote stream for an instrument on its exchange.
func (p *Proxy) Subscribe(instrument string) error {
	inst, err := p.adapter.Instrument(instrument)
	if err != nil {
		return err
	}
	kind := bus.StockSubEvent
	if inst.Class == common.AssetFuture {
		kind = bus.FutureSubEvent
	} else if inst.Class == common.AssetFund {
		kind = bus.FundSubEvent
	}
	p.router.Publish(bus.Event{Kind: kind, Instrument: instrument})
	return nil
}

// CashMoving transfers cash between two configured accounts. The
// withdrawal side is checked first so an overdraw leaves both untouched.
func (p *Proxy) CashMoving(from, to common.AccountType, amount fixed.Point) error {
	src, err := p.ledgerFor(from)
	if err != nil {
		return err
	}
	dst, err := p.ledgerFor(to)
	if err != nil {
		return err
	}
	if err := src.CashMove(amount, false); err != nil {
		return err
	}
	return dst.CashMove(amount, true)
}

// Draw records one point of a named plotting series for the day.
func (p *Proxy) Draw(series string, value float64) {
	if p.drawer != nil {
		p.drawer.Draw(series, value)
	}
}

func (p *Proxy) ledgerFor(t common.AccountType) (ledger.Ledger, error) {
	switch t {
	case common.AccountStock:
		if p.stocks != nil {
			return p.stocks, nil
		}
	case common.AccountFuture:
		if p.futures != nil {
			return p.futures, nil
		}
	case common.AccountFund:
		if p.funds != nil {
			return p.funds, nil
		}
	}
	return nil, ErrNoAccount
}

func (p *Proxy) roundLot(instrument string) int64 {
	inst, err := p.adapter.Instrument(instrument)
	if err == nil && inst.RoundLot > 0 {
		return inst.RoundLot
	}
	if common.IsSTAR(instrument) {
		return 200
	}
	return 100
}

func priceTypeFor(price fixed.Point) common.PriceType {
	if price.IsZero() {
		return common.PriceMarket
	}
	return common.PriceLimit
}
