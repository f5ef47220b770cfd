// Package advisor holds the bundled reference strategy: a simple
// moving-average crossover on one stock, sized to a fixed weight.
package advisor

import (
	"errors"

	"go.uber.org/zap"

	"github.com/lunarquant/lunar/pkg/indicators"
	"github.com/lunarquant/lunar/pkg/strategy"
	"github.com/lunarquant/lunar/pkg/utility/fixed"
)

type Strategy struct {
	strategy.Noop

	logger     *zap.Logger
	instrument string
	weight     fixed.Point

	ma   *indicators.Sma
	atr  *indicators.Atr
	held bool
}

func NewStrategy(logger *zap.Logger, instrument string, window int, weight float64) *Strategy {
	if window < 2 {
		window = 2
	}
	return &Strategy{
		logger:     logger,
		instrument: instrument,
		weight:     fixed.FromFloat64(weight),
		ma:         indicators.NewSma(window),
		atr:        indicators.NewAtr(window),
	}
}

func (s *Strategy) Initialize(ctx *strategy.Context) error {
	ctx.Trader.Subscribe(s.instrument)
	return nil
}

func (s *Strategy) HandleBar(ctx *strategy.Context) error {
	last := ctx.Market.LastPrice(s.instrument)
	if last.IsZero() {
		return nil
	}
	s.atr.OnBar(ctx.Market.DailyBar(s.instrument))
	if s.atr.Ready() {
		ctx.Trader.Draw("atr", s.atr.Value().InexactFloat64())
	}

	s.ma.AddPoint(last)
	ma, err := s.ma.Value()
	if err != nil {
		if errors.Is(err, indicators.ErrNotReady) {
			return nil
		}
		return err
	}
	ctx.Trader.Draw("ma", ma.InexactFloat64())

	switch {
	case last.Gt(ma) && !s.held:
		weights := map[string]fixed.Point{s.instrument: s.weight}
		if err := ctx.Trader.TargetStockGroupOrder(weights); err != nil {
			return err
		}
		s.held = true
		s.logger.Info("entered position",
			zap.String("instrument", s.instrument),
			zap.String("price", last.String()),
			zap.String("ma", ma.String()))
	case last.Lt(ma) && s.held:
		weights := map[string]fixed.Point{s.instrument: fixed.Zero}
		if err := ctx.Trader.TargetStockGroupOrder(weights); err != nil {
			return err
		}
		s.held = false
		s.logger.Info("exited position",
			zap.String("instrument", s.instrument),
			zap.String("price", last.String()),
			zap.String("ma", ma.String()))
	}
	return nil
}
