package trade

import (
	"sort"

	"go.uber.org/zap"

	"github.com/lunarquant/lunar/pkg/common"
	"github.com/lunarquant/lunar/pkg/utility/fixed"
)

// TargetStockGroupOrder rebalances the stock account toward a
// equity-weight vector. Sells run before buys so the released cash funds
// the purchases. Instruments without a published price are skipped.
func (p *Proxy) TargetStockGroupOrder(weights map[string]fixed.Point) error {
	if p.stocks == nil {
		return ErrNoAccount
	}
	equity := p.stocks.Account().TotalEquity

	type action struct {
		instrument string
		shares     int64
	}
	var sells, buys []action

	for _, inst := range sortedKeys(weights) {
		last := p.adapter.LastPrice(inst)
		if last.IsZero() {
			p.logger.Warn("rebalance skips unpriced instrument", zap.String("instrument", inst))
			continue
		}
		lot := p.roundLot(inst)
		target := equity.Mul(weights[inst]).Div(last).Int64() / lot * lot
		var current int64
		if pos, ok := p.stocks.Position(inst); ok {
			current = pos.Quantity
		}
		switch delta := target - current; {
		case delta < 0:
			sells = append(sells, action{inst, delta})
		case delta > 0:
			buys = append(buys, action{inst, delta})
		}
	}

	for _, a := range append(sells, buys...) {
		if _, err := p.OrderShares(a.instrument, a.shares, fixed.Zero); err != nil {
			return err
		}
	}
	return nil
}

// TargetFutureGroupOrder moves every named long book to its target lot
// count. Closes run before opens so margin released first covers the new
// positions.
func (p *Proxy) TargetFutureGroupOrder(targets map[string]int64) error {
	if p.futures == nil {
		return ErrNoAccount
	}

	type action struct {
		instrument string
		target     int64
	}
	var closes, opens []action

	for _, inst := range sortedKeys(targets) {
		var current int64
		if pos, ok := p.futures.Position(inst, common.DirLong); ok {
			current = pos.Quantity()
		}
		switch target := targets[inst]; {
		case target < current:
			closes = append(closes, action{inst, target})
		case target > current:
			opens = append(opens, action{inst, target})
		}
	}

	for _, a := range append(closes, opens...) {
		if _, err := p.LongFutureTarget(a.instrument, a.target); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
