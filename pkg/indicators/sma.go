package indicators

import (
	"github.com/lunarquant/lunar/pkg/utility/circular"
	"github.com/lunarquant/lunar/pkg/utility/fixed"
)

// Sma is a simple moving average over the last windowSize points.
type Sma struct {
	data *circular.PointBuffer
}

func NewSma(windowSize int) *Sma {
	return &Sma{
		data: circular.NewPointBuffer(uint(windowSize)),
	}
}

func (s *Sma) AddPoint(p fixed.Point) {
	s.data.PushUpdate(p)
}

func (s *Sma) Value() (fixed.Point, error) {
	if !s.IsReady() {
		return fixed.Point{}, ErrNotReady
	}
	return s.data.Mean(), nil
}

func (s *Sma) IsReady() bool {
	return s.data.IsFull()
}
