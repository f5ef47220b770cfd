// Package results collects the run output: daily account snapshots, the
// profit and excess-profit series, trades, draw payloads, and the final
// performance report, with an optional sqlite sink.
package results

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/lunarquant/lunar/pkg/bus"
	"github.com/lunarquant/lunar/pkg/common"
	"github.com/lunarquant/lunar/pkg/ledger"
	"github.com/lunarquant/lunar/pkg/utility/fixed"
)

// DailySnapshot is the cross-ledger account state at one day's close.
type DailySnapshot struct {
	TradeDate   time.Time
	Available   fixed.Point
	Frozen      fixed.Point
	Margin      fixed.Point
	MarketValue fixed.Point
	HoldingPnL  fixed.Point
	RealizedPnL fixed.Point
	Commissions fixed.Point
	TotalEquity fixed.Point
	DailyPnL    fixed.Point
	AddProfit   fixed.Point
}

// ProfitPoint is one day of the strategy-vs-benchmark series.
type ProfitPoint struct {
	TradeDate       time.Time
	DailyReturn     float64
	StrategyProfit  float64
	BenchmarkReturn float64
	BenchmarkProfit float64
	ExcessProfit    float64
}

// PositionRow flattens a position of any book for persistence.
type PositionRow struct {
	TradeDate   time.Time
	Instrument  string
	Book        string
	Quantity    float64
	CostPrice   float64
	LastPrice   float64
	MarketValue float64
	HoldingPnL  float64
}

// DrawPoint is one strategy-supplied plotting value.
type DrawPoint struct {
	TradeDate time.Time
	Series    string
	Value     float64
}

// Aggregator sums the configured ledgers at every day close and keeps
// the whole run history in memory until it is persisted.
type Aggregator struct {
	logger    *zap.Logger
	stocks    *ledger.Stock
	futures   *ledger.Future
	funds     *ledger.Fund
	benchmark *Benchmark

	tradeDate time.Time

	snapshots []DailySnapshot
	profits   []ProfitPoint
	positions []PositionRow
	trades    []common.Trade
	draws     []DrawPoint

	startEquity fixed.Point
	lastEquity  fixed.Point
	cumulative  float64
	excess      float64
}

func NewAggregator(logger *zap.Logger, router *bus.Router,
	stocks *ledger.Stock, futures *ledger.Future, funds *ledger.Fund,
	benchmark *Benchmark) *Aggregator {

	a := &Aggregator{
		logger:    logger,
		stocks:    stocks,
		futures:   futures,
		funds:     funds,
		benchmark: benchmark,
	}
	for _, kind := range []bus.EventKind{
		bus.StockRtnTradeEvent, bus.FutureRtnTradeEvent, bus.FundRtnTradeEvent,
	} {
		router.Subscribe(kind, a.onTrade)
	}
	return a
}

func (a *Aggregator) onTrade(ev bus.Event) {
	if ev.Trade != nil {
		a.trades = append(a.trades, *ev.Trade)
	}
}

// SetDate pins the trade date draws and trades are attributed to.
func (a *Aggregator) SetDate(tradeDate time.Time) { a.tradeDate = tradeDate }

// Draw implements the strategy plotting hook.
func (a *Aggregator) Draw(series string, value float64) {
	a.draws = append(a.draws, DrawPoint{TradeDate: a.tradeDate, Series: series, Value: value})
}

// SaveDaily folds the ledgers into the day's snapshot and advances the
// profit series.
func (a *Aggregator) SaveDaily(tradeDate time.Time) {
	snap := DailySnapshot{TradeDate: tradeDate}
	var todayDeposit, todayWithdraw fixed.Point
	for _, acc := range a.accounts() {
		snap.Available = snap.Available.Add(acc.Available)
		snap.Frozen = snap.Frozen.Add(acc.Frozen)
		snap.Margin = snap.Margin.Add(acc.Margin)
		snap.MarketValue = snap.MarketValue.Add(acc.MarketValue)
		snap.HoldingPnL = snap.HoldingPnL.Add(acc.HoldingPnL)
		snap.RealizedPnL = snap.RealizedPnL.Add(acc.RealizedPnL)
		snap.Commissions = snap.Commissions.Add(acc.Commissions)
		snap.TotalEquity = snap.TotalEquity.Add(acc.TotalEquity)
		snap.DailyPnL = snap.DailyPnL.Add(acc.DailyPnL)
		snap.AddProfit = snap.AddProfit.Add(acc.AddProfit)
		todayDeposit = todayDeposit.Add(acc.TodayDeposit)
		todayWithdraw = todayWithdraw.Add(acc.TodayWithdraw)
	}

	if len(a.snapshots) == 0 {
		a.startEquity = fixed.Zero
		for _, acc := range a.accounts() {
			a.startEquity = a.startEquity.Add(acc.StartingCash)
		}
		a.lastEquity = a.startEquity
	}

	// external cash flows are not performance
	adjusted := snap.TotalEquity.Add(todayWithdraw).Sub(todayDeposit)
	dailyReturn := 0.0
	if !a.lastEquity.IsZero() {
		dailyReturn = adjusted.Div(a.lastEquity).InexactFloat64() - 1
	}
	a.cumulative = (1+a.cumulative)*(1+dailyReturn) - 1
	a.lastEquity = snap.TotalEquity

	benchReturn, benchProfit := 0.0, 0.0
	if a.benchmark != nil {
		benchReturn, benchProfit = a.benchmark.OnDaily(tradeDate)
	}
	a.excess = (1+a.excess)*(1+dailyReturn-benchReturn) - 1

	a.snapshots = append(a.snapshots, snap)
	a.profits = append(a.profits, ProfitPoint{
		TradeDate:       tradeDate,
		DailyReturn:     dailyReturn,
		StrategyProfit:  a.cumulative,
		BenchmarkReturn: benchReturn,
		BenchmarkProfit: benchProfit,
		ExcessProfit:    a.excess,
	})
	a.snapshotPositions(tradeDate)

	a.logger.Debug("daily results saved",
		zap.Time("trade_date", tradeDate),
		zap.String("total_equity", snap.TotalEquity.String()),
		zap.Float64("daily_return", dailyReturn))
}

func (a *Aggregator) accounts() []*common.Account {
	var out []*common.Account
	if a.stocks != nil {
		out = append(out, a.stocks.Account())
	}
	if a.futures != nil {
		out = append(out, a.futures.Account())
	}
	if a.funds != nil {
		out = append(out, a.funds.Account())
	}
	return out
}

func (a *Aggregator) snapshotPositions(tradeDate time.Time) {
	if a.stocks != nil {
		held := a.stocks.Positions()
		for _, inst := range sortedKeys(held) {
			p := held[inst]
			a.positions = append(a.positions, PositionRow{
				TradeDate:   tradeDate,
				Instrument:  p.Instrument,
				Book:        "stock",
				Quantity:    float64(p.Quantity),
				CostPrice:   p.CostPrice.InexactFloat64(),
				LastPrice:   p.LastPrice.InexactFloat64(),
				MarketValue: p.MarketValue.InexactFloat64(),
				HoldingPnL:  p.HoldingPnL.InexactFloat64(),
			})
		}
	}
	if a.futures != nil {
		held := a.futures.Positions()
		sort.Slice(held, func(i, j int) bool {
			if held[i].Instrument != held[j].Instrument {
				return held[i].Instrument < held[j].Instrument
			}
			return held[i].Direction < held[j].Direction
		})
		for _, p := range held {
			book := "future-long"
			if p.Direction == common.DirShort {
				book = "future-short"
			}
			a.positions = append(a.positions, PositionRow{
				TradeDate:   tradeDate,
				Instrument:  p.Instrument,
				Book:        book,
				Quantity:    float64(p.Quantity()),
				CostPrice:   p.HoldPrice.InexactFloat64(),
				LastPrice:   p.LastPrice.InexactFloat64(),
				MarketValue: p.MarketValue.InexactFloat64(),
				HoldingPnL:  p.HoldingPnL.InexactFloat64(),
			})
		}
	}
	if a.funds != nil {
		held := a.funds.Positions()
		for _, inst := range sortedKeys(held) {
			p := held[inst]
			a.positions = append(a.positions, PositionRow{
				TradeDate:   tradeDate,
				Instrument:  p.Instrument,
				Book:        "fund",
				Quantity:    p.Units.InexactFloat64(),
				CostPrice:   p.CostNav.InexactFloat64(),
				LastPrice:   p.Nav.InexactFloat64(),
				MarketValue: p.MarketValue.InexactFloat64(),
				HoldingPnL:  p.Nav.Sub(p.CostNav).Mul(p.Units).InexactFloat64(),
			})
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (a *Aggregator) Snapshots() []DailySnapshot { return a.snapshots }
func (a *Aggregator) Profits() []ProfitPoint    { return a.profits }
func (a *Aggregator) Positions() []PositionRow  { return a.positions }
func (a *Aggregator) Trades() []common.Trade    { return a.trades }
func (a *Aggregator) Draws() []DrawPoint        { return a.draws }
func (a *Aggregator) StartEquity() fixed.Point  { return a.startEquity }
