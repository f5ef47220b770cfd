package calendar

import "fmt"

// Minute grids are emitted as "HH:MM" strings, both endpoints inclusive.

func minuteRange(fromH, fromM, toH, toM int) []string {
	var out []string
	h, m := fromH, fromM
	for {
		out = append(out, fmt.Sprintf("%02d:%02d", h, m))
		if h == toH && m == toM {
			return out
		}
		m++
		if m == 60 {
			m = 0
			h++
			if h == 24 {
				h = 0
			}
		}
	}
}

// StockSessionMinutes covers the equity day session.
func StockSessionMinutes() []string {
	out := minuteRange(9, 31, 11, 30)
	return append(out, minuteRange(13, 1, 15, 0)...)
}

// FutureDaySessionMinutes covers the futures day session, which opens half
// an hour before equities.
func FutureDaySessionMinutes() []string {
	out := minuteRange(9, 1, 11, 30)
	return append(out, minuteRange(13, 1, 15, 0)...)
}

// FutureNightSessionMinutes splits the night session at midnight: the first
// slice belongs to the previous natural day, the second to the current one.
func FutureNightSessionMinutes() (evening, smallHours []string) {
	return minuteRange(21, 1, 23, 59), minuteRange(0, 0, 2, 30)
}
