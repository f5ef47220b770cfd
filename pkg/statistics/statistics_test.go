package statistics

import (
	"math"
	"testing"
)

func close(t *testing.T, got, want, tol float64, what string) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s = %v, want %v", what, got, want)
	}
}

var (
	strat = []float64{0.01, -0.02, 0.03}
	bench = []float64{0.005, -0.01, 0.02}
)

func TestCumulativeReturn(t *testing.T) {
	close(t, CumulativeReturn(strat), 0.019494, 1e-9, "cumulative")
	close(t, CumulativeReturn(nil), 0, 0, "empty")
}

func TestAnnualReturn(t *testing.T) {
	// a full year of trading days annualizes to itself
	close(t, AnnualReturn(0.10, 250), 0.10, 1e-12, "one year")
	// half a year compounds twice
	close(t, AnnualReturn(0.10, 125), 0.21, 1e-12, "half year")
	// beyond total loss keeps the sign
	close(t, AnnualReturn(-1.5, 250), -1.5, 1e-12, "signed")
	if !math.IsNaN(AnnualReturn(0.1, 0)) {
		t.Error("zero days must be NaN")
	}
}

func TestVolatility(t *testing.T) {
	close(t, Volatility(strat), 0.4031128874, 1e-9, "volatility")
	if !math.IsNaN(Volatility([]float64{0.01})) {
		t.Error("one point must be NaN")
	}
}

func TestSharpe(t *testing.T) {
	close(t, Sharpe(0.12, 0.20), 0.4, 1e-12, "sharpe")
	if !math.IsNaN(Sharpe(0.12, 0)) {
		t.Error("zero volatility must be NaN")
	}
}

func TestBeta(t *testing.T) {
	close(t, Beta(strat, bench), 5.0/3.0, 1e-9, "beta")
	if !math.IsNaN(Beta(strat, []float64{0.01, 0.01, 0.01})) {
		t.Error("flat benchmark must be NaN")
	}
}

func TestAlpha(t *testing.T) {
	// ar 12%, bench 8%, beta 1 leaves 4 points of alpha
	close(t, Alpha(0.12, 0.08, 1.0), 0.04, 1e-12, "alpha")
}

func TestTrackingError(t *testing.T) {
	close(t, TrackingError(strat, bench), 0.0104083300, 1e-9, "daily te")
	close(t, AnnualTrackingError(strat, bench), 0.1645701798, 1e-8, "annual te")
}

func TestInformationRatio(t *testing.T) {
	close(t, InformationRatio(strat, bench), 2.5318484178, 1e-4, "ir")
	if !math.IsNaN(InformationRatio(strat, strat)) {
		t.Error("zero tracking error must be NaN")
	}
}

func TestDownsideRisk(t *testing.T) {
	close(t, DownsideRisk(strat, bench), 0.1118033989, 1e-9, "downside")
}

func TestSortino(t *testing.T) {
	close(t, Sortino(0.12, 0.10), 0.8, 1e-12, "sortino")
	if !math.IsNaN(Sortino(0.12, 0)) {
		t.Error("zero downside must be NaN")
	}
}

func TestMaxDrawdown(t *testing.T) {
	values := []float64{100, 110, 100, 105, 95}
	close(t, MaxDrawdown(values), 15.0/110.0, 1e-12, "max drawdown")
	close(t, MaxDrawdown([]float64{100, 110, 120}), 0, 0, "monotone")
}

func TestCalmar(t *testing.T) {
	close(t, Calmar(0.20, 0.10), 2.0, 1e-12, "calmar")
	if !math.IsNaN(Calmar(0.20, 0)) {
		t.Error("zero drawdown must be NaN")
	}
}
