package common

import (
	"time"

	"github.com/lunarquant/lunar/pkg/utility/fixed"
)

// LastField selects which bar field quotes a fill. Same-bar matching uses
// the close; next-bar-open matching flips to the open before the strategy
// callback runs.
type LastField int

const (
	LastClose LastField = iota
	LastOpen
)

type Bar struct {
	Instrument string      `json:"instrument"`
	Open       fixed.Point `json:"open"`
	High       fixed.Point `json:"high"`
	Low        fixed.Point `json:"low"`
	Close      fixed.Point `json:"close"`
	Settlement fixed.Point `json:"settlement,omitempty"`
	PreClose   fixed.Point `json:"pre_close,omitempty"`
	LimitUp    fixed.Point `json:"limit_up,omitempty"`
	LimitDown  fixed.Point `json:"limit_down,omitempty"`
	Volume     int64       `json:"volume"`
	TradeDate  time.Time   `json:"trade_date"`
	TimeStamp  time.Time   `json:"ts"`
}

// Empty marks the missing-bar sentinel. Matching never crosses against it.
func (b Bar) Empty() bool {
	return b.Volume == 0 && b.Close.IsZero()
}

func (b Bar) Last(field LastField) fixed.Point {
	if field == LastOpen {
		return b.Open
	}
	return b.Close
}
