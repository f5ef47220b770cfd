package engine

import (
	"sort"

	"github.com/lunarquant/lunar/pkg/common"
	"github.com/lunarquant/lunar/pkg/exchange"
	"github.com/lunarquant/lunar/pkg/risk"
)

// Snapshot builds the read-only state risk rules evaluate against.
func (e *Engine) Snapshot() risk.Env {
	env := risk.Env{
		TradeDate: e.adapter.TradeDate().Format("2006-01-02"),
		Minute:    e.adapter.Minute(),
	}
	if e.stocks != nil {
		env.Stock = accountView(e.stocks.Account())
	}
	if e.futures != nil {
		env.Future = accountView(e.futures.Account())
	}
	if e.funds != nil {
		env.Fund = accountView(e.funds.Account())
	}
	return env
}

func accountView(a *common.Account) *risk.AccountView {
	return &risk.AccountView{
		Available:   a.Available.InexactFloat64(),
		Frozen:      a.Frozen.InexactFloat64(),
		Margin:      a.Margin.InexactFloat64(),
		MarketValue: a.MarketValue.InexactFloat64(),
		TotalEquity: a.TotalEquity.InexactFloat64(),
		DailyPnL:    a.DailyPnL.InexactFloat64(),
		Burned:      a.Burned,
	}
}

func exchangeSession(minutes []string) *exchange.Session {
	return exchange.NewSession(minutes)
}

func heldInstruments[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
