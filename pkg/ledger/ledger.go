// Package ledger keeps the per-account books. Each asset class has its own
// variant reacting to its exchange's order, trade and quote events; the
// aggregator rolls the variants up into the daily snapshot.
package ledger

import (
	"errors"
	"time"

	"github.com/lunarquant/lunar/pkg/common"
	"github.com/lunarquant/lunar/pkg/utility/fixed"
)

var ErrOverdraw = errors.New("withdraw exceeds available cash")

// Ledger is the capability set shared by the three account kinds.
type Ledger interface {
	Account() *common.Account
	OnNewDay(tradeDate time.Time)
	OnEndDay()
	CashMove(amount fixed.Point, deposit bool) error
}

// cashMove adjusts the running deposit and withdraw totals. Withdrawing
// more than the available cash rejects.
func cashMove(a *common.Account, amount fixed.Point, deposit bool) error {
	if deposit {
		a.Available = a.Available.Add(amount)
		a.Deposit = a.Deposit.Add(amount)
		a.TodayDeposit = a.TodayDeposit.Add(amount)
	} else {
		if amount.Gt(a.Available) {
			return ErrOverdraw
		}
		a.Available = a.Available.Sub(amount)
		a.Withdraw = a.Withdraw.Add(amount)
		a.TodayWithdraw = a.TodayWithdraw.Add(amount)
	}
	a.RecomputeEquity()
	return nil
}
