// Package statistics computes the run-level performance figures from the
// daily strategy and benchmark return series. Undefined figures (too few
// points, zero denominators) come back as NaN and persist as NULL.
package statistics

import (
	"math"
)

const (
	// AnnualFactor is the trading-day count used to annualize.
	AnnualFactor = 250
	// RiskFree is the flat annual risk-free rate.
	RiskFree = 0.04
)

// CumulativeReturn chains daily returns into the total period return.
func CumulativeReturn(daily []float64) float64 {
	total := 1.0
	for _, r := range daily {
		total *= 1 + r
	}
	return total - 1
}

// AnnualReturn converts a period return over days trading days into an
// annual rate. A total loss beyond -100% keeps its sign instead of
// producing a complex power.
func AnnualReturn(cumulative float64, days int) float64 {
	if days <= 0 {
		return math.NaN()
	}
	base := 1 + cumulative
	exp := float64(AnnualFactor) / float64(days)
	if base >= 0 {
		return math.Pow(base, exp) - 1
	}
	return -math.Pow(-base, exp) - 1
}

// Volatility is the annualized sample standard deviation of daily
// returns.
func Volatility(daily []float64) float64 {
	sd, ok := sampleStd(daily)
	if !ok {
		return math.NaN()
	}
	return sd * math.Sqrt(AnnualFactor)
}

// Sharpe is the annual excess return per unit of volatility.
func Sharpe(annualReturn, volatility float64) float64 {
	if volatility == 0 || math.IsNaN(volatility) {
		return math.NaN()
	}
	return (annualReturn - RiskFree) / volatility
}

// Beta regresses the strategy's daily returns on the benchmark's.
func Beta(strategy, bench []float64) float64 {
	n := len(strategy)
	if n != len(bench) || n < 2 {
		return math.NaN()
	}
	ms, mb := mean(strategy), mean(bench)
	var cov, varB float64
	for i := 0; i < n; i++ {
		cov += (strategy[i] - ms) * (bench[i] - mb)
		varB += (bench[i] - mb) * (bench[i] - mb)
	}
	cov /= float64(n - 1)
	varB /= float64(n - 1)
	if varB == 0 {
		return math.NaN()
	}
	return cov / varB
}

// Alpha is the annual return unexplained by benchmark exposure.
func Alpha(annualReturn, benchAnnualReturn, beta float64) float64 {
	return annualReturn - RiskFree - beta*(benchAnnualReturn-RiskFree)
}

// TrackingError is the sample standard deviation of the daily active
// returns, not annualized.
func TrackingError(strategy, bench []float64) float64 {
	active, ok := activeReturns(strategy, bench)
	if !ok {
		return math.NaN()
	}
	sd, ok := sampleStd(active)
	if !ok {
		return math.NaN()
	}
	return sd
}

// AnnualTrackingError scales the tracking error to a yearly figure.
func AnnualTrackingError(strategy, bench []float64) float64 {
	return TrackingError(strategy, bench) * math.Sqrt(AnnualFactor)
}

// InformationRatio is the annualized mean active return per unit of
// annual tracking error.
func InformationRatio(strategy, bench []float64) float64 {
	active, ok := activeReturns(strategy, bench)
	if !ok || len(active) < 2 {
		return math.NaN()
	}
	te := AnnualTrackingError(strategy, bench)
	if te == 0 || math.IsNaN(te) {
		return math.NaN()
	}
	return AnnualFactor * mean(active) / te
}

// DownsideRisk is the annualized semi-deviation of the active returns
// below the benchmark.
func DownsideRisk(strategy, bench []float64) float64 {
	active, ok := activeReturns(strategy, bench)
	if !ok || len(active) < 2 {
		return math.NaN()
	}
	var sum float64
	for _, a := range active {
		if a < 0 {
			sum += a * a
		}
	}
	return math.Sqrt(sum/float64(len(active)-1)) * math.Sqrt(AnnualFactor)
}

// Sortino is the annual excess return per unit of downside risk.
func Sortino(annualReturn, downsideRisk float64) float64 {
	if downsideRisk == 0 || math.IsNaN(downsideRisk) {
		return math.NaN()
	}
	return (annualReturn - RiskFree) / downsideRisk
}

// MaxDrawdown is the deepest peak-to-trough loss across the portfolio
// value series.
func MaxDrawdown(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	peak := values[0]
	worst := 0.0
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := 1 - v/peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// Calmar is the annual return over the maximum drawdown.
func Calmar(annualReturn, maxDrawdown float64) float64 {
	if maxDrawdown == 0 || math.IsNaN(maxDrawdown) {
		return math.NaN()
	}
	return annualReturn / maxDrawdown
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func sampleStd(xs []float64) (float64, bool) {
	n := len(xs)
	if n < 2 {
		return 0, false
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(n-1)), true
}

func activeReturns(strategy, bench []float64) ([]float64, bool) {
	if len(strategy) != len(bench) || len(strategy) == 0 {
		return nil, false
	}
	active := make([]float64, len(strategy))
	for i := range strategy {
		active[i] = strategy[i] - bench[i]
	}
	return active, true
}
