package market

import (
	"errors"
	"time"

	"github.com/lunarquant/lunar/pkg/common"
	"github.com/lunarquant/lunar/pkg/utility/fixed"
)

// ErrNoBar marks a missing (instrument, date) bar. Matching against it
// fails with "cannot cross"; settlement falls back to the last known price.
var ErrNoBar = errors.New("no bar")

var ErrUnknownInstrument = errors.New("unknown instrument")

// MarginRate is the published rate set for one (instrument, date). Known is
// false when the table has no row, in which case the instrument master
// default applies.
type MarginRate struct {
	Long  fixed.Point
	Short fixed.Point
	Flat  fixed.Point
	Known bool
}

func (r MarginRate) ForDirection(dir common.Direction) fixed.Point {
	if dir == common.DirLong && !r.Long.IsZero() {
		return r.Long
	}
	if dir == common.DirShort && !r.Short.IsZero() {
		return r.Short
	}
	return r.Flat
}

type Dividend struct {
	Instrument   string
	CashPerShare fixed.Point
	StockRatio   fixed.Point
	TransRatio   fixed.Point
}

type Split struct {
	Instrument string
	Ratio      fixed.Point
}

type FundDividend struct {
	Instrument  string
	CashPerUnit fixed.Point
}

// Store is the query contract the engine needs from the market-data layer.
type Store interface {
	TradingCalendar(start, end time.Time) ([]time.Time, error)
	DailyBar(instrument string, date time.Time) (common.Bar, error)
	MinuteBar(instrument string, date time.Time, minute string) (common.Bar, error)
	Instrument(id string) (common.Instrument, error)
	MarginRate(id string, date time.Time) (MarginRate, error)
	Dividends(date time.Time) ([]Dividend, error)
	ETFSplits(date time.Time) ([]Split, error)
	FundSplits(date time.Time) ([]Split, error)
	FundDividends(date time.Time) ([]FundDividend, error)
	FundNav(id string, date time.Time) (fixed.Point, error)
}
