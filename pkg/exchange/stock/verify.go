package stock

import (
	"fmt"

	"github.com/lunarquant/lunar/pkg/common"
	"github.com/lunarquant/lunar/pkg/exchange"
)

// verify walks the submission chain and returns the first failure message,
// or empty when the order is acceptable.
func (e *Exchange) verify(o *common.Order) string {
	if !e.session.Open(e.adapter.Minute()) {
		return "market closed"
	}

	inst, err := e.adapter.Instrument(o.Instrument)
	if err != nil {
		return fmt.Sprintf("unknown instrument %s", o.Instrument)
	}
	if inst.Suspended {
		return fmt.Sprintf("instrument %s is suspended", o.Instrument)
	}

	bar := e.adapter.Bar(o.Instrument)
	if o.PriceType == common.PriceLimit && !exchange.WithinBand(o.Price, bar, o.Side) {
		return "limit price outside the daily band"
	}

	if o.Quantity <= 0 {
		return "quantity must be positive"
	}

	if o.Side == common.SideBuy {
		price := o.Price
		if o.PriceType == common.PriceMarket {
			price = e.adapter.LastPrice(o.Instrument)
		}
		need := e.book.BuyFreezeEstimate(price, o.Quantity)
		if need.Gt(e.book.Account().Available) {
			return fmt.Sprintf("insufficient cash, need %s available %s",
				need.String(), e.book.Account().Available.String())
		}
	} else {
		p, ok := e.book.Position(o.Instrument)
		if !ok || p.Sellable < o.Quantity {
			return "insufficient sellable position"
		}
	}

	if lot := e.roundLot(o.Instrument); o.Quantity%lot != 0 {
		return fmt.Sprintf("quantity must be a multiple of %d", lot)
	}

	if e.verifier != nil {
		if ok, rule := e.verifier.VerifyOrder(o); !ok {
			return "blocked by rule " + rule
		}
	}
	return ""
}
