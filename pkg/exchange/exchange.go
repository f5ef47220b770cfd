// Package exchange holds the pieces the per-asset matching engines share.
package exchange

import (
	"github.com/lunarquant/lunar/pkg/common"
	"github.com/lunarquant/lunar/pkg/utility/fixed"
)

// Verifier is the last link of every submission chain. A veto turns the
// order into a rejection carrying the vetoing rule's name.
type Verifier interface {
	VerifyOrder(o *common.Order) (ok bool, ruleName string)
}

// Session answers whether trading is open at a simulation minute.
// Daily-mode drivers pass an empty minute, which always passes.
type Session struct {
	minutes map[string]struct{}
}

func NewSession(minutes []string) *Session {
	s := &Session{minutes: make(map[string]struct{}, len(minutes))}
	for _, m := range minutes {
		s.minutes[m] = struct{}{}
	}
	return s
}

func (s *Session) Open(minute string) bool {
	if minute == "" {
		return true
	}
	_, ok := s.minutes[minute]
	return ok
}

// WithinBand reports whether a limit price sits inside the day's price
// band. Orders with zero band bounds are never constrained.
func WithinBand(price fixed.Point, bar common.Bar, side common.OrderSide) bool {
	if side == common.SideBuy {
		return bar.LimitUp.IsZero() || price.Lte(bar.LimitUp)
	}
	return bar.LimitDown.IsZero() || price.Gte(bar.LimitDown)
}

// ClampToBand clips a fill price into [limit_down, limit_up].
func ClampToBand(price fixed.Point, bar common.Bar) fixed.Point {
	return price.Clamp(bar.LimitDown, bar.LimitUp)
}
