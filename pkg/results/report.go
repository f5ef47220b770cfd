package results

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/lunarquant/lunar/pkg/statistics"
	"github.com/lunarquant/lunar/pkg/utility/fixed"
)

// Report is the final performance summary of one run. Ratio fields are
// NaN when the series is too short or flat to define them.
type Report struct {
	RunID       string
	CustomTag   string
	StartDate   time.Time
	EndDate     time.Time
	TimeConsume time.Duration

	InitialEquity fixed.Point
	FinalEquity   fixed.Point
	TotalTrades   int

	StrategyTotalReturn   float64
	StrategyAnnualReturn  float64
	BenchmarkTotalReturn  float64
	BenchmarkAnnualReturn float64
	ExcessProfit          float64

	Alpha            float64
	Beta             float64
	SharpeRatio      float64
	SortinoRatio     float64
	InformationRatio float64
	Calmar           float64

	Volatility    float64
	TrackingError float64
	DownsideRisk  float64
	MaxDrawdown   float64
}

// Compute derives the report metrics from the run's profit series.
func Compute(a *Aggregator) Report {
	profits := a.Profits()
	r := Report{
		InitialEquity: a.StartEquity(),
		TotalTrades:   len(a.Trades()),
	}
	if len(profits) == 0 {
		return r
	}
	r.StartDate = profits[0].TradeDate
	r.EndDate = profits[len(profits)-1].TradeDate
	if snaps := a.Snapshots(); len(snaps) > 0 {
		r.FinalEquity = snaps[len(snaps)-1].TotalEquity
	}

	strat := make([]float64, len(profits))
	bench := make([]float64, len(profits))
	for i, p := range profits {
		strat[i] = p.DailyReturn
		bench[i] = p.BenchmarkReturn
	}
	days := len(profits)
	last := profits[len(profits)-1]

	r.StrategyTotalReturn = last.StrategyProfit
	r.StrategyAnnualReturn = statistics.AnnualReturn(last.StrategyProfit, days)
	r.BenchmarkTotalReturn = last.BenchmarkProfit
	r.BenchmarkAnnualReturn = statistics.AnnualReturn(last.BenchmarkProfit, days)
	r.ExcessProfit = last.ExcessProfit

	r.Beta = statistics.Beta(strat, bench)
	r.Alpha = statistics.Alpha(r.StrategyAnnualReturn, r.BenchmarkAnnualReturn, r.Beta)
	r.Volatility = statistics.Volatility(strat)
	r.SharpeRatio = statistics.Sharpe(r.StrategyAnnualReturn, r.Volatility)
	r.TrackingError = statistics.AnnualTrackingError(strat, bench)
	r.InformationRatio = statistics.InformationRatio(strat, bench)
	r.DownsideRisk = statistics.DownsideRisk(strat, bench)
	r.SortinoRatio = statistics.Sortino(r.StrategyAnnualReturn, r.DownsideRisk)

	equities := make([]float64, len(profits))
	for i, p := range profits {
		equities[i] = 1 + p.StrategyProfit
	}
	r.MaxDrawdown = statistics.MaxDrawdown(equities)
	r.Calmar = statistics.Calmar(r.StrategyAnnualReturn, r.MaxDrawdown)
	return r
}

func (report Report) Print(logger *zap.Logger) {
	logger.Info("performance report",
		zap.String("run_id", report.RunID),
		zap.String("initial_equity", report.InitialEquity.String()),
		zap.String("final_equity", report.FinalEquity.String()),
		zap.String("strategy_return", pct(report.StrategyTotalReturn)),
		zap.String("strategy_annual_return", pct(report.StrategyAnnualReturn)),
		zap.String("benchmark_return", pct(report.BenchmarkTotalReturn)),
		zap.String("benchmark_annual_return", pct(report.BenchmarkAnnualReturn)),
		zap.String("excess_profit", pct(report.ExcessProfit)),
		zap.String("max_drawdown", pct(report.MaxDrawdown)),
	)

	logger.Info("risk metrics",
		zap.String("alpha", ratio(report.Alpha)),
		zap.String("beta", ratio(report.Beta)),
		zap.String("sharpe_ratio", ratio(report.SharpeRatio)),
		zap.String("sortino_ratio", ratio(report.SortinoRatio)),
		zap.String("information_ratio", ratio(report.InformationRatio)),
		zap.String("calmar", ratio(report.Calmar)),
		zap.String("annualized_volatility", pct(report.Volatility)),
		zap.String("tracking_error", pct(report.TrackingError)),
		zap.String("downside_risk", pct(report.DownsideRisk)),
	)

	logger.Info("run statistics",
		zap.Int("total_trades", report.TotalTrades),
		zap.Time("start_date", report.StartDate),
		zap.Time("end_date", report.EndDate),
		zap.Duration("time_consume", report.TimeConsume),
		zap.String("custom_tag", report.CustomTag),
	)
}

func pct(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf("%.4f%%", v*100)
}

func ratio(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf("%.4f", v)
}
