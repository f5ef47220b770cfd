package market

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/lunarquant/lunar/pkg/common"
	"github.com/lunarquant/lunar/pkg/utility/fixed"
)

// Adapter caches one trading day of bars and serves quotes to the exchanges
// and ledgers. Daily and minute caches are distinct; both flush on day roll.
type Adapter struct {
	logger *zap.Logger
	store  Store

	minuteMode bool
	lastField  common.LastField

	now       time.Time
	tradeDate time.Time
	minute    string

	dailyCache  map[string]common.Bar
	minuteCache map[string]common.Bar
	instCache   map[string]common.Instrument
}

func NewAdapter(logger *zap.Logger, store Store, minuteMode bool) *Adapter {
	return &Adapter{
		logger:      logger,
		store:       store,
		minuteMode:  minuteMode,
		dailyCache:  make(map[string]common.Bar),
		minuteCache: make(map[string]common.Bar),
		instCache:   make(map[string]common.Instrument),
	}
}

func (a *Adapter) Store() Store { return a.store }

// SetClock advances the adapter to a new simulated instant. A trade-date
// change flushes both bar caches.
func (a *Adapter) SetClock(now, tradeDate time.Time, minute string) {
	if !tradeDate.Equal(a.tradeDate) {
		a.dailyCache = make(map[string]common.Bar)
	}
	a.minuteCache = make(map[string]common.Bar)
	a.now = now
	a.tradeDate = tradeDate
	a.minute = minute
}

func (a *Adapter) Now() time.Time       { return a.now }
func (a *Adapter) TradeDate() time.Time { return a.tradeDate }
func (a *Adapter) Minute() string       { return a.minute }

func (a *Adapter) SetLastField(f common.LastField) { a.lastField = f }
func (a *Adapter) LastField() common.LastField     { return a.lastField }

// Bar returns the quote the current simulated instant trades against: the
// minute bar in minute mode, the daily bar otherwise. Absent bars resolve
// to the empty sentinel.
func (a *Adapter) Bar(instrument string) common.Bar {
	if a.minuteMode {
		if bar, ok := a.minuteCache[instrument]; ok {
			return bar
		}
		bar, err := a.store.MinuteBar(instrument, a.tradeDate, a.minute)
		if err != nil {
			if !errors.Is(err, ErrNoBar) {
				a.logger.Warn("minute bar lookup failed",
					zap.String("instrument", instrument), zap.Error(err))
			}
			bar = common.Bar{Instrument: instrument, TradeDate: a.tradeDate}
		}
		a.minuteCache[instrument] = bar
		return bar
	}
	return a.DailyBar(instrument)
}

func (a *Adapter) DailyBar(instrument string) common.Bar {
	if bar, ok := a.dailyCache[instrument]; ok {
		return bar
	}
	bar, err := a.store.DailyBar(instrument, a.tradeDate)
	if err != nil {
		if !errors.Is(err, ErrNoBar) {
			a.logger.Warn("daily bar lookup failed",
				zap.String("instrument", instrument), zap.Error(err))
		}
		bar = common.Bar{Instrument: instrument, TradeDate: a.tradeDate}
	}
	a.dailyCache[instrument] = bar
	return bar
}

// LastPrice quotes through the configured last-price field.
func (a *Adapter) LastPrice(instrument string) fixed.Point {
	return a.Bar(instrument).Last(a.lastField)
}

func (a *Adapter) Instrument(id string) (common.Instrument, error) {
	if inst, ok := a.instCache[id]; ok {
		return inst, nil
	}
	inst, err := a.store.Instrument(id)
	if err != nil {
		return common.Instrument{}, err
	}
	a.instCache[id] = inst
	return inst, nil
}

// EffectiveMarginRate resolves the published rate for the trade date, then
// the instrument master default scaled by marginMultiplier.
func (a *Adapter) EffectiveMarginRate(id string, dir common.Direction, marginMultiplier fixed.Point) fixed.Point {
	rate, err := a.store.MarginRate(id, a.tradeDate)
	if err == nil && rate.Known {
		if r := rate.ForDirection(dir); !r.IsZero() {
			return r
		}
	}
	inst, err := a.Instrument(id)
	if err != nil {
		a.logger.Warn("margin rate fallback failed", zap.String("instrument", id), zap.Error(err))
		return fixed.Zero
	}
	return inst.MarginRate.Mul(marginMultiplier)
}
