package results

import (
	"time"

	"go.uber.org/zap"

	"github.com/lunarquant/lunar/pkg/market"
	"github.com/lunarquant/lunar/pkg/utility/fixed"
)

// Benchmark tracks a reference index as a virtual all-in buy at the first
// day's close. Cumulative profit on day i is close_i / close_0 - 1.
type Benchmark struct {
	logger     *zap.Logger
	adapter    *market.Adapter
	instrument string

	baseClose fixed.Point
	lastClose fixed.Point
	profit    float64
}

func NewBenchmark(logger *zap.Logger, adapter *market.Adapter, instrument string) *Benchmark {
	return &Benchmark{logger: logger, adapter: adapter, instrument: instrument}
}

func (b *Benchmark) Instrument() string { return b.instrument }

// OnDaily advances the tracker to tradeDate and returns that day's return
// and the cumulative profit. Missing bars carry the previous close forward.
func (b *Benchmark) OnDaily(tradeDate time.Time) (dayReturn, profit float64) {
	bar := b.adapter.DailyBar(b.instrument)
	close := bar.Close
	if bar.Empty() || close.IsZero() {
		if b.lastClose.IsZero() {
			return 0, 0
		}
		close = b.lastClose
		b.logger.Warn("benchmark bar missing, carrying close forward",
			zap.String("instrument", b.instrument),
			zap.Time("trade_date", tradeDate))
	}

	if b.baseClose.IsZero() {
		b.baseClose = close
		b.lastClose = close
		return 0, 0
	}

	dayReturn = close.Div(b.lastClose).InexactFloat64() - 1
	b.profit = close.Div(b.baseClose).InexactFloat64() - 1
	b.lastClose = close
	return dayReturn, b.profit
}

func (b *Benchmark) Profit() float64 { return b.profit }
