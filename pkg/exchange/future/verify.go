package future

import (
	"fmt"

	"github.com/lunarquant/lunar/pkg/common"
	"github.com/lunarquant/lunar/pkg/exchange"
	"github.com/lunarquant/lunar/pkg/utility/fixed"
)

// directionOf maps the order legs to the position book they touch: a buy
// open and a sell close work the long book, the reverse the short book.
func directionOf(o *common.Order) common.Direction {
	if (o.Side == common.SideBuy) == (o.Effect == common.EffectOpen) {
		return common.DirLong
	}
	return common.DirShort
}

func (e *Exchange) verify(o *common.Order) string {
	if e.book.Account().Burned {
		return "account burned"
	}

	inst, err := e.adapter.Instrument(o.Instrument)
	if err != nil {
		return fmt.Sprintf("unknown instrument %s", o.Instrument)
	}

	if !e.sessionOpen(inst) {
		return "market closed"
	}

	bar := e.adapter.Bar(o.Instrument)
	if o.PriceType == common.PriceLimit {
		if !onTick(o.Price, inst.PriceTick) {
			return fmt.Sprintf("price not a multiple of tick %s", inst.PriceTick.String())
		}
		if !exchange.WithinBand(o.Price, bar, o.Side) {
			return "limit price outside the daily band"
		}
	}

	if o.Quantity <= 0 {
		return "quantity must be positive"
	}

	if o.Effect == common.EffectOpen {
		price := o.Price
		if o.PriceType == common.PriceMarket {
			price = e.adapter.LastPrice(o.Instrument)
		}
		priced := *o
		priced.Price = price
		need := e.book.OpenFreezeEstimate(&priced, inst)
		if need.Gt(e.book.Account().Available) {
			return fmt.Sprintf("insufficient cash, need %s available %s",
				need.String(), e.book.Account().Available.String())
		}
	} else {
		p, ok := e.book.Position(o.Instrument, directionOf(o))
		if !ok {
			return "no position to close"
		}
		if o.CloseToday {
			if p.ClosableToday() < o.Quantity {
				return "insufficient today lots to close"
			}
		} else if p.Closable() < o.Quantity {
			return "insufficient lots to close"
		}
	}

	if e.verifier != nil {
		if ok, rule := e.verifier.VerifyOrder(o); !ok {
			return "blocked by rule " + rule
		}
	}
	return ""
}

func (e *Exchange) sessionOpen(inst common.Instrument) bool {
	minute := e.adapter.Minute()
	if minute == "" {
		return true
	}
	if e.daySession.Open(minute) {
		return true
	}
	return inst.NightTrade && e.nightSession.Open(minute)
}

// onTick reports whether price is a whole number of ticks. A zero tick
// disables the check.
func onTick(price, tick fixed.Point) bool {
	if tick.IsZero() {
		return true
	}
	steps := price.Div(tick)
	return steps.Sub(steps.Trunc(0)).IsZero()
}
