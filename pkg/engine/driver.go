// Package engine walks the trading calendar and orchestrates one
// simulation run: lifecycle events, strategy callbacks, exchanges,
// ledgers, risk hooks and the result aggregator.
package engine

import (
	"time"

	"github.com/lunarquant/lunar/pkg/calendar"
)

type TickKind int

const (
	TickNewDate TickKind = iota
	TickDayStart
	TickBar
	TickEndDate
)

// Tick is one step of simulated time handed to the engine.
type Tick struct {
	Kind      TickKind
	Now       time.Time
	TradeDate time.Time
	Minute    string
}

// Driver enumerates the ticks of a run. Daily mode fires one bar per
// trading day; minute mode walks the session grid, including the night
// session of the previous natural evening when futures trade at night.
// Natural-day mode additionally ticks non-trading days, without the
// venue lifecycle events.
type Driver struct {
	cal        *calendar.Calendar
	minuteMode bool
	barMinute  string
	natural    bool
	start, end time.Time
	grid       []gridMinute
	stopped    bool
}

// gridMinute is one slot of the minute grid. Evening slots belong to the
// trade date but happen on the previous natural day.
type gridMinute struct {
	minute  string
	evening bool
}

func NewDriver(cal *calendar.Calendar, cfg Config, withFutures bool) *Driver {
	d := &Driver{
		cal:        cal,
		minuteMode: cfg.minuteMode(),
		barMinute:  cfg.barMinute(),
		natural:    cfg.DateType == DateNatural,
		start:      cfg.StartDate,
		end:        cfg.EndDate,
	}
	if !d.minuteMode {
		return d
	}
	nightTrade := cfg.FutureNightTrade
	switch {
	case withFutures && nightTrade:
		evening, smallHours := calendar.FutureNightSessionMinutes()
		for _, m := range evening {
			d.grid = append(d.grid, gridMinute{minute: m, evening: true})
		}
		for _, m := range smallHours {
			d.grid = append(d.grid, gridMinute{minute: m})
		}
		for _, m := range calendar.FutureDaySessionMinutes() {
			d.grid = append(d.grid, gridMinute{minute: m})
		}
	case withFutures:
		for _, m := range calendar.FutureDaySessionMinutes() {
			d.grid = append(d.grid, gridMinute{minute: m})
		}
	default:
		for _, m := range calendar.StockSessionMinutes() {
			d.grid = append(d.grid, gridMinute{minute: m})
		}
	}
	return d
}

// Stop requests an early finish. Checked between bar ticks; the current
// day is abandoned and results are calculated from what ran.
func (d *Driver) Stop() { d.stopped = true }

func (d *Driver) Stopped() bool { return d.stopped }

// Run walks the run's days, calling step for each tick. A step error
// aborts the walk and is returned as is.
func (d *Driver) Run(step func(Tick) error) error {
	if d.natural {
		for day := d.start; !day.After(d.end); day = day.AddDate(0, 0, 1) {
			if d.stopped {
				return nil
			}
			if d.cal.IsTradeDay(day) {
				if err := d.runTradingDay(day, step); err != nil {
					return err
				}
				continue
			}
			if err := d.runOffDay(day, step); err != nil {
				return err
			}
		}
		return nil
	}

	for _, day := range d.cal.Days() {
		if d.stopped {
			return nil
		}
		if err := d.runTradingDay(day, step); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) runTradingDay(day time.Time, step func(Tick) error) error {
	if err := step(Tick{Kind: TickNewDate, Now: d.dayOpen(day), TradeDate: day}); err != nil {
		return err
	}
	if err := step(Tick{Kind: TickDayStart, Now: d.dayOpen(day), TradeDate: day}); err != nil {
		return err
	}

	if d.minuteMode {
		for _, g := range d.grid {
			if d.stopped {
				break
			}
			now := atMinute(day, g.minute)
			if g.evening {
				now = atMinute(day.AddDate(0, 0, -1), g.minute)
			}
			t := Tick{Kind: TickBar, Now: now, TradeDate: day, Minute: g.minute}
			if err := step(t); err != nil {
				return err
			}
		}
	} else if !d.stopped {
		t := Tick{Kind: TickBar, Now: atMinute(day, d.barMinute), TradeDate: day}
		if err := step(t); err != nil {
			return err
		}
	}

	return step(Tick{Kind: TickEndDate, Now: atMinute(day, "15:00"), TradeDate: day})
}

// runOffDay ticks a non-trading natural day. The clock advances and the
// strategy sees bars; there is no quotation and no venue lifecycle.
// Evening grid slots are skipped, they belong to a trade date.
func (d *Driver) runOffDay(day time.Time, step func(Tick) error) error {
	if !d.minuteMode {
		t := Tick{Kind: TickBar, Now: atMinute(day, d.barMinute), TradeDate: day}
		return step(t)
	}
	for _, g := range d.grid {
		if d.stopped {
			return nil
		}
		if g.evening {
			continue
		}
		t := Tick{Kind: TickBar, Now: atMinute(day, g.minute), TradeDate: day, Minute: g.minute}
		if err := step(t); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) dayOpen(day time.Time) time.Time {
	if d.minuteMode && len(d.grid) > 0 && d.grid[0].evening {
		return atMinute(day.AddDate(0, 0, -1), d.grid[0].minute)
	}
	return atMinute(day, "09:00")
}

func atMinute(day time.Time, minute string) time.Time {
	if len(minute) != 5 {
		return day
	}
	h := int(minute[0]-'0')*10 + int(minute[1]-'0')
	m := int(minute[3]-'0')*10 + int(minute[4]-'0')
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, day.Location())
}
