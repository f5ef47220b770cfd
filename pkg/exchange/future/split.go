package future

import (
	"go.uber.org/zap"

	"github.com/lunarquant/lunar/pkg/common"
)

// splitCloseToday resolves the today/yesterday bookkeeping of a close
// order before verification.
//
// On SHFE and INE the two books carry distinct commission schedules, so a
// plain close that reaches into today's opens becomes two child orders,
// one per book, each with its own trades and cancels. Elsewhere a single
// order consumes yesterday first and the today remainder is recorded on
// CloseTodayQty.
//
// The return value reports that the parent was consumed by child
// submissions and must not continue through Submit.
func (e *Exchange) splitCloseToday(o *common.Order) bool {
	inst, err := e.adapter.Instrument(o.Instrument)
	if err != nil {
		return false
	}
	p, ok := e.book.Position(o.Instrument, directionOf(o))
	if !ok {
		return false
	}

	if !common.SplitsTodayYesterday(inst.Exchange) {
		if !o.CloseToday {
			if extra := o.Quantity - p.ClosableYd(); extra > 0 {
				o.CloseTodayQty = extra
			}
		}
		return false
	}

	if o.CloseToday {
		return false
	}

	yd := p.ClosableYd()
	if o.Quantity <= yd {
		return false
	}
	if yd <= 0 {
		o.CloseToday = true
		return false
	}

	ydChild := *o
	ydChild.ID = ""
	ydChild.ParentID = o.ID
	ydChild.Quantity = yd

	tdChild := *o
	tdChild.ID = ""
	tdChild.ParentID = o.ID
	tdChild.Quantity = o.Quantity - yd
	tdChild.CloseToday = true

	e.logger.Debug("close order split across today and yesterday books",
		zap.String("parent_id", o.ID),
		zap.String("instrument", o.Instrument),
		zap.Int64("yd_lots", ydChild.Quantity),
		zap.Int64("td_lots", tdChild.Quantity))
	e.Submit(&ydChild)
	e.Submit(&tdChild)
	return true
}
