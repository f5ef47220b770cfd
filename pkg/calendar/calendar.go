package calendar

import (
	"errors"
	"time"
)

var ErrNoTradingDays = errors.New("no trading days in interval")

// Calendar holds the ordered trading days of the reference market (SH
// primary listing) for the simulated range.
type Calendar struct {
	days  []time.Time
	index map[int]int
}

func dayKey(d time.Time) int {
	return d.Year()*10000 + int(d.Month())*100 + d.Day()
}

func New(days []time.Time) (*Calendar, error) {
	if len(days) == 0 {
		return nil, ErrNoTradingDays
	}
	c := &Calendar{
		days:  make([]time.Time, len(days)),
		index: make(map[int]int, len(days)),
	}
	for i, d := range days {
		day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
		c.days[i] = day
		c.index[dayKey(day)] = i
	}
	return c, nil
}

func (c *Calendar) Days() []time.Time { return c.days }

func (c *Calendar) IsTradeDay(d time.Time) bool {
	_, ok := c.index[dayKey(d)]
	return ok
}

// NextTradingDay returns the trading day offset steps after d. When d is not
// itself a trading day the count starts from the next trading day, so
// offset 0 resolves a natural day to its trade date.
func (c *Calendar) NextTradingDay(d time.Time, offset int) (time.Time, bool) {
	i, ok := c.index[dayKey(d)]
	if !ok {
		i = c.searchAfter(d)
		if i == len(c.days) {
			return time.Time{}, false
		}
		// d itself maps to days[i] at offset 0
		i--
		if offset == 0 {
			offset = 1
		}
	}
	j := i + offset
	if j < 0 || j >= len(c.days) {
		return time.Time{}, false
	}
	return c.days[j], true
}

// TradeDateFor maps a natural day to its trade date: itself when trading,
// otherwise the next trading day.
func (c *Calendar) TradeDateFor(d time.Time) (time.Time, bool) {
	if i, ok := c.index[dayKey(d)]; ok {
		return c.days[i], true
	}
	i := c.searchAfter(d)
	if i == len(c.days) {
		return time.Time{}, false
	}
	return c.days[i], true
}

// TradingDaysBetween returns trading days in [a, b] inclusive.
func (c *Calendar) TradingDaysBetween(a, b time.Time) []time.Time {
	var out []time.Time
	for _, d := range c.days {
		if dayKey(d) < dayKey(a) {
			continue
		}
		if dayKey(d) > dayKey(b) {
			break
		}
		out = append(out, d)
	}
	return out
}

func (c *Calendar) searchAfter(d time.Time) int {
	lo, hi := 0, len(c.days)
	key := dayKey(d)
	for lo < hi {
		mid := (lo + hi) / 2
		if dayKey(c.days[mid]) < key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}
