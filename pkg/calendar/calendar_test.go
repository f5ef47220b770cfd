package calendar

import (
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testCalendar(t *testing.T) *Calendar {
	t.Helper()
	c, err := New([]time.Time{
		day(2024, 1, 2), day(2024, 1, 3), day(2024, 1, 4), day(2024, 1, 5),
		day(2024, 1, 8), day(2024, 1, 9),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestCalendar_Empty(t *testing.T) {
	if _, err := New(nil); err != ErrNoTradingDays {
		t.Errorf("New(nil) error = %v; want ErrNoTradingDays", err)
	}
}

func TestCalendar_IsTradeDay(t *testing.T) {
	c := testCalendar(t)
	if !c.IsTradeDay(day(2024, 1, 2)) {
		t.Error("2024-01-02 is a trading day")
	}
	if c.IsTradeDay(day(2024, 1, 6)) {
		t.Error("2024-01-06 is a Saturday")
	}
}

func TestCalendar_NextTradingDay(t *testing.T) {
	c := testCalendar(t)

	tests := []struct {
		from   time.Time
		offset int
		want   time.Time
		ok     bool
	}{
		{day(2024, 1, 2), 0, day(2024, 1, 2), true},
		{day(2024, 1, 2), 1, day(2024, 1, 3), true},
		{day(2024, 1, 5), 1, day(2024, 1, 8), true},
		{day(2024, 1, 6), 0, day(2024, 1, 8), true}, // Saturday resolves forward
		{day(2024, 1, 6), 1, day(2024, 1, 8), true},
		{day(2024, 1, 9), 1, time.Time{}, false},
		{day(2024, 2, 1), 0, time.Time{}, false},
	}

	for _, tt := range tests {
		got, ok := c.NextTradingDay(tt.from, tt.offset)
		if ok != tt.ok {
			t.Errorf("NextTradingDay(%v, %d) ok = %v; want %v", tt.from, tt.offset, ok, tt.ok)
			continue
		}
		if ok && !got.Equal(tt.want) {
			t.Errorf("NextTradingDay(%v, %d) = %v; want %v", tt.from, tt.offset, got, tt.want)
		}
	}
}

func TestCalendar_TradeDateFor(t *testing.T) {
	c := testCalendar(t)

	got, ok := c.TradeDateFor(day(2024, 1, 7))
	if !ok || !got.Equal(day(2024, 1, 8)) {
		t.Errorf("TradeDateFor(Sunday) = %v, %v; want 2024-01-08", got, ok)
	}
	got, ok = c.TradeDateFor(day(2024, 1, 3))
	if !ok || !got.Equal(day(2024, 1, 3)) {
		t.Errorf("TradeDateFor(trading day) = %v, %v; want itself", got, ok)
	}
}

func TestCalendar_TradingDaysBetween(t *testing.T) {
	c := testCalendar(t)
	got := c.TradingDaysBetween(day(2024, 1, 3), day(2024, 1, 8))
	if len(got) != 3 {
		t.Fatalf("got %d days; want 3", len(got))
	}
	if !got[0].Equal(day(2024, 1, 3)) || !got[2].Equal(day(2024, 1, 8)) {
		t.Errorf("wrong interval: %v", got)
	}
}

func TestSessionMinutes(t *testing.T) {
	stock := StockSessionMinutes()
	if stock[0] != "09:31" || stock[len(stock)-1] != "15:00" {
		t.Errorf("stock session endpoints: %s .. %s", stock[0], stock[len(stock)-1])
	}
	if len(stock) != 120+120 {
		t.Errorf("stock session length = %d; want 240", len(stock))
	}

	future := FutureDaySessionMinutes()
	if future[0] != "09:01" {
		t.Errorf("future day session starts at %s; want 09:01", future[0])
	}
	if len(future) != 150+120 {
		t.Errorf("future day session length = %d; want 270", len(future))
	}

	evening, smallHours := FutureNightSessionMinutes()
	if evening[0] != "21:01" || evening[len(evening)-1] != "23:59" {
		t.Errorf("evening endpoints: %s .. %s", evening[0], evening[len(evening)-1])
	}
	if smallHours[0] != "00:00" || smallHours[len(smallHours)-1] != "02:30" {
		t.Errorf("small hours endpoints: %s .. %s", smallHours[0], smallHours[len(smallHours)-1])
	}
}
