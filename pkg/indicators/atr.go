package indicators

import (
	"github.com/lunarquant/lunar/pkg/common"
	"github.com/lunarquant/lunar/pkg/utility/fixed"
)

// Atr tracks Wilder's average true range over a window of bars. The
// first bar only seeds the previous close; the range is ready from the
// second bar on.
type Atr struct {
	window    int
	prevClose fixed.Point
	tr        fixed.Point
	atr       fixed.Point
}

func NewAtr(window int) *Atr {
	return &Atr{window: window}
}

func (a *Atr) OnBar(b common.Bar) {
	prev := a.prevClose
	a.prevClose = b.Close
	if prev.IsZero() {
		return
	}

	a.tr = fixed.Max(b.High.Sub(b.Low).Abs(),
		fixed.Max(b.High.Sub(prev).Abs(), b.Low.Sub(prev).Abs()))

	if a.atr.IsZero() {
		a.atr = a.tr
		return
	}
	a.atr = a.atr.MulInt(a.window - 1).Add(a.tr).DivInt(a.window)
}

func (a *Atr) Value() fixed.Point {
	return a.atr
}

func (a *Atr) TrueRange() fixed.Point {
	return a.tr
}

func (a *Atr) Ready() bool {
	return !a.atr.IsZero()
}

func (a *Atr) Reset() {
	a.prevClose = fixed.Zero
	a.tr = fixed.Zero
	a.atr = fixed.Zero
}
