package common

import (
	"github.com/lunarquant/lunar/pkg/utility/fixed"
)

type Direction int

const (
	DirLong Direction = iota
	DirShort
)

func (d Direction) Other() Direction {
	if d == DirLong {
		return DirShort
	}
	return DirLong
}

func (d Direction) String() string {
	if d == DirLong {
		return "long"
	}
	return "short"
}

type StockPosition struct {
	Instrument  string      `json:"instrument"`
	Quantity    int64       `json:"quantity"`
	Sellable    int64       `json:"sellable"`
	Frozen      int64       `json:"frozen"`
	TodayBought int64       `json:"today_bought"`
	RoundLot    int64       `json:"round_lot"`
	CostPrice   fixed.Point `json:"cost_price"`
	LastPrice   fixed.Point `json:"last_price"`
	MarketValue fixed.Point `json:"market_value"`
	HoldingPnL  fixed.Point `json:"holding_pnl"`
	Commissions fixed.Point `json:"commissions"`
}

func (p *StockPosition) Remark() {
	p.MarketValue = p.LastPrice.MulInt64(p.Quantity)
	p.HoldingPnL = p.MarketValue.Sub(p.CostPrice.MulInt64(p.Quantity))
}

// FuturePosition tracks one direction of one contract. Today and yesterday
// lots stay separate; exchanges that net them still settle through the same
// record with the yesterday bucket holding everything after day roll.
type FuturePosition struct {
	Instrument  string      `json:"instrument"`
	Direction   Direction   `json:"direction"`
	TodayQty    int64       `json:"today_qty"`
	YdQty       int64       `json:"yd_qty"`
	Frozen      int64       `json:"frozen"`
	FrozenToday int64       `json:"frozen_today"`
	Multiplier  int64       `json:"multiplier"`

	OpenCost      fixed.Point `json:"open_cost"`
	HoldPrice     fixed.Point `json:"hold_price"`
	LastPrice     fixed.Point `json:"last_price"`
	Settlement    fixed.Point `json:"settlement"`
	PreSettlement fixed.Point `json:"pre_settlement"`
	Margin        fixed.Point `json:"margin"`
	MarginRate    fixed.Point `json:"margin_rate"`
	RealizedPnL   fixed.Point `json:"realized_pnl"`
	HoldingPnL    fixed.Point `json:"holding_pnl"`
	MarketValue   fixed.Point `json:"market_value"`
	Commissions   fixed.Point `json:"commissions"`
}

func (p *FuturePosition) Quantity() int64 { return p.TodayQty + p.YdQty }

// Closable lots not reserved by working close orders.
func (p *FuturePosition) Closable() int64 { return p.Quantity() - p.Frozen }

// ClosableToday lots opened today and not reserved.
func (p *FuturePosition) ClosableToday() int64 { return p.TodayQty - p.FrozenToday }

// ClosableYd lots carried from earlier days and not reserved.
func (p *FuturePosition) ClosableYd() int64 {
	return p.YdQty - (p.Frozen - p.FrozenToday)
}

// Remark recomputes the floating pnl and market value at price.
func (p *FuturePosition) Remark(price fixed.Point) {
	p.LastPrice = price
	diff := price.Sub(p.HoldPrice)
	if p.Direction == DirShort {
		diff = diff.Neg()
	}
	p.HoldingPnL = diff.MulInt64(p.Quantity()).MulInt64(p.Multiplier)
	p.MarketValue = price.MulInt64(p.Quantity()).MulInt64(p.Multiplier)
}

// FundPosition units are kept to four decimal places.
type FundPosition struct {
	Instrument  string      `json:"instrument"`
	Units       fixed.Point `json:"units"`
	Sellable    fixed.Point `json:"sellable"`
	Frozen      fixed.Point `json:"frozen"`
	CostNav     fixed.Point `json:"cost_nav"`
	Nav         fixed.Point `json:"nav"`
	MarketValue fixed.Point `json:"market_value"`
}

func (p *FundPosition) Remark() {
	p.MarketValue = p.Nav.Mul(p.Units)
}
