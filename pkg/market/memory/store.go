// Package memory provides a map backed market.Store used by tests and small
// fixtures.
package memory

import (
	"time"

	"github.com/lunarquant/lunar/pkg/common"
	"github.com/lunarquant/lunar/pkg/market"
	"github.com/lunarquant/lunar/pkg/utility/fixed"
)

type Store struct {
	calendar    []time.Time
	daily       map[string]common.Bar
	minutes     map[string]common.Bar
	instruments map[string]common.Instrument
	marginRates map[string]market.MarginRate
	dividends   map[int][]market.Dividend
	etfSplits   map[int][]market.Split
	fundSplits  map[int][]market.Split
	fundDivs    map[int][]market.FundDividend
	navs        map[string]fixed.Point
}

func NewStore() *Store {
	return &Store{
		daily:       make(map[string]common.Bar),
		minutes:     make(map[string]common.Bar),
		instruments: make(map[string]common.Instrument),
		marginRates: make(map[string]market.MarginRate),
		dividends:   make(map[int][]market.Dividend),
		etfSplits:   make(map[int][]market.Split),
		fundSplits:  make(map[int][]market.Split),
		fundDivs:    make(map[int][]market.FundDividend),
		navs:        make(map[string]fixed.Point),
	}
}

func dateKey(d time.Time) int {
	return d.Year()*10000 + int(d.Month())*100 + d.Day()
}

func dailyKey(id string, d time.Time) string {
	return id + "|" + d.Format("20060102")
}

func minuteKey(id string, d time.Time, minute string) string {
	return id + "|" + d.Format("20060102") + "|" + minute
}

func (s *Store) SetCalendar(days ...time.Time) { s.calendar = days }

func (s *Store) SetDailyBar(bar common.Bar) {
	s.daily[dailyKey(bar.Instrument, bar.TradeDate)] = bar
}

func (s *Store) SetMinuteBar(bar common.Bar, minute string) {
	s.minutes[minuteKey(bar.Instrument, bar.TradeDate, minute)] = bar
}

func (s *Store) SetInstrument(inst common.Instrument) {
	s.instruments[inst.ID] = inst
}

func (s *Store) SetMarginRate(id string, date time.Time, rate market.MarginRate) {
	s.marginRates[dailyKey(id, date)] = rate
}

func (s *Store) AddDividend(date time.Time, d market.Dividend) {
	s.dividends[dateKey(date)] = append(s.dividends[dateKey(date)], d)
}

func (s *Store) AddETFSplit(date time.Time, sp market.Split) {
	s.etfSplits[dateKey(date)] = append(s.etfSplits[dateKey(date)], sp)
}

func (s *Store) AddFundSplit(date time.Time, sp market.Split) {
	s.fundSplits[dateKey(date)] = append(s.fundSplits[dateKey(date)], sp)
}

func (s *Store) AddFundDividend(date time.Time, d market.FundDividend) {
	s.fundDivs[dateKey(date)] = append(s.fundDivs[dateKey(date)], d)
}

func (s *Store) SetFundNav(id string, date time.Time, nav fixed.Point) {
	s.navs[dailyKey(id, date)] = nav
}

func (s *Store) TradingCalendar(start, end time.Time) ([]time.Time, error) {
	var out []time.Time
	for _, d := range s.calendar {
		if dateKey(d) >= dateKey(start) && dateKey(d) <= dateKey(end) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *Store) DailyBar(instrument string, date time.Time) (common.Bar, error) {
	bar, ok := s.daily[dailyKey(instrument, date)]
	if !ok {
		return common.Bar{}, market.ErrNoBar
	}
	return bar, nil
}

func (s *Store) MinuteBar(instrument string, date time.Time, minute string) (common.Bar, error) {
	bar, ok := s.minutes[minuteKey(instrument, date, minute)]
	if !ok {
		return common.Bar{}, market.ErrNoBar
	}
	return bar, nil
}

func (s *Store) Instrument(id string) (common.Instrument, error) {
	inst, ok := s.instruments[id]
	if !ok {
		return common.Instrument{}, market.ErrUnknownInstrument
	}
	return inst, nil
}

func (s *Store) MarginRate(id string, date time.Time) (market.MarginRate, error) {
	rate, ok := s.marginRates[dailyKey(id, date)]
	if !ok {
		return market.MarginRate{}, nil
	}
	return rate, nil
}

func (s *Store) Dividends(date time.Time) ([]market.Dividend, error) {
	return s.dividends[dateKey(date)], nil
}

func (s *Store) ETFSplits(date time.Time) ([]market.Split, error) {
	return s.etfSplits[dateKey(date)], nil
}

func (s *Store) FundSplits(date time.Time) ([]market.Split, error) {
	return s.fundSplits[dateKey(date)], nil
}

func (s *Store) FundDividends(date time.Time) ([]market.FundDividend, error) {
	return s.fundDivs[dateKey(date)], nil
}

func (s *Store) FundNav(id string, date time.Time) (fixed.Point, error) {
	nav, ok := s.navs[dailyKey(id, date)]
	if !ok {
		return fixed.Zero, market.ErrNoBar
	}
	return nav, nil
}
