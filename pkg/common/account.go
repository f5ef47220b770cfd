package common

import (
	"github.com/lunarquant/lunar/pkg/utility/fixed"
)

// AccountType is a bitmask; a run may carry any combination of the three
// asset classes.
type AccountType int

const (
	AccountStock AccountType = 1 << iota
	AccountFuture
	AccountFund
)

func (t AccountType) Has(mask AccountType) bool { return t&mask != 0 }

func (t AccountType) String() string {
	switch t {
	case AccountStock:
		return "stock"
	case AccountFuture:
		return "future"
	case AccountFund:
		return "fund"
	}
	return "mixed"
}

type Account struct {
	ID           string      `json:"id"`
	Type         AccountType `json:"type"`
	StartingCash fixed.Point `json:"starting_cash"`
	Available    fixed.Point `json:"available"`
	Frozen       fixed.Point `json:"frozen"`
	MarketValue  fixed.Point `json:"market_value"`
	Margin       fixed.Point `json:"margin"`
	HoldingPnL   fixed.Point `json:"holding_pnl"`
	RealizedPnL  fixed.Point `json:"realized_pnl"`
	Commissions  fixed.Point `json:"commissions"`
	TotalEquity  fixed.Point `json:"total_equity"`

	YesterdayEquity fixed.Point `json:"yesterday_equity"`
	DailyPnL        fixed.Point `json:"daily_pnl"`
	AddProfit       fixed.Point `json:"add_profit"`

	Deposit       fixed.Point `json:"deposit"`
	Withdraw      fixed.Point `json:"withdraw"`
	TodayDeposit  fixed.Point `json:"today_deposit"`
	TodayWithdraw fixed.Point `json:"today_withdraw"`

	// Burned marks a futures account wiped by forced liquidation. Every
	// later submission rejects.
	Burned bool `json:"burned,omitempty"`
}

func NewAccount(id string, typ AccountType, startingCash fixed.Point) *Account {
	return &Account{
		ID:              id,
		Type:            typ,
		StartingCash:    startingCash,
		Available:       startingCash,
		TotalEquity:     startingCash,
		YesterdayEquity: startingCash,
	}
}

// RecomputeEquity derives total equity from the cash and position legs.
// Futures accounts carry margin and floating pnl instead of market value.
func (a *Account) RecomputeEquity() {
	if a.Type == AccountFuture {
		a.TotalEquity = a.Available.Add(a.HoldingPnL).Add(a.Frozen).Add(a.Margin)
	} else {
		a.TotalEquity = a.Available.Add(a.MarketValue).Add(a.Frozen)
	}
	a.AddProfit = a.TotalEquity.Sub(a.StartingCash).Add(a.Withdraw).Sub(a.Deposit)
}

// RollDay closes the daily pnl window and opens the next one.
func (a *Account) RollDay() {
	a.DailyPnL = a.TotalEquity.Sub(a.YesterdayEquity).
		Add(a.TodayWithdraw).Sub(a.TodayDeposit)
}

func (a *Account) NewDay() {
	a.YesterdayEquity = a.TotalEquity
	a.TodayDeposit = fixed.Zero
	a.TodayWithdraw = fixed.Zero
}
