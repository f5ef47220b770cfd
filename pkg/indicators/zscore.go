package indicators

import (
	"errors"

	"github.com/lunarquant/lunar/pkg/utility/circular"
	"github.com/lunarquant/lunar/pkg/utility/fixed"
)

var ErrNotReady = errors.New("indicators: not enough data")

type ZScore struct {
	data *circular.PointBuffer
	last fixed.Point
}

func NewZScore(windowSize int) *ZScore {
	return &ZScore{
		data: circular.NewPointBuffer(uint(windowSize)),
	}
}

func (z *ZScore) AddPoint(p fixed.Point) {
	z.data.PushUpdate(p)
	z.last = p
}

func (z *ZScore) Value() (fixed.Point, error) {
	if !z.IsReady() {
		return fixed.Point{}, ErrNotReady
	}
	stdDev := z.data.StdDev()
	if stdDev.IsZero() {
		return fixed.Zero, nil
	}
	return z.last.Sub(z.data.Mean()).Div(stdDev), nil
}

func (z *ZScore) IsReady() bool {
	return z.data.IsFull()
}
