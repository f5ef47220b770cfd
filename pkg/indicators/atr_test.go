package indicators

import (
	"testing"

	"github.com/lunarquant/lunar/pkg/common"
	"github.com/lunarquant/lunar/pkg/utility/fixed"
)

func atrBar(high, low, close float64) common.Bar {
	return common.Bar{
		High:  fixed.FromFloat64(high),
		Low:   fixed.FromFloat64(low),
		Close: fixed.FromFloat64(close),
	}
}

func TestAtr_FirstBarOnlySeeds(t *testing.T) {
	atr := NewAtr(14)
	atr.OnBar(atrBar(100, 95, 98))

	if atr.Ready() {
		t.Error("Expected ATR to not be ready after first bar")
	}
	if !atr.TrueRange().IsZero() {
		t.Error("Expected true range to be zero after first bar")
	}
	if !atr.Value().IsZero() {
		t.Error("Expected ATR to be zero after first bar")
	}
}

func TestAtr_WilderSmoothing(t *testing.T) {
	atr := NewAtr(3)

	bars := []common.Bar{
		atrBar(100, 95, 98),
		atrBar(102, 97, 101),
		atrBar(104, 99, 102),
		atrBar(103, 100, 101),
	}
	for _, bar := range bars {
		atr.OnBar(bar)
	}

	if !atr.Ready() {
		t.Fatal("Expected ATR to be ready")
	}

	// TR: seed, 5, 5, 3 → ATR 5, (5*2+5)/3, (5*2+3)/3
	expectedAtr := fixed.FromFloat64(13.0).DivInt(3)
	if !atr.Value().Eq(expectedAtr) {
		t.Errorf("Expected final ATR %v, got %v", expectedAtr, atr.Value())
	}
	if !atr.TrueRange().Eq(fixed.FromFloat64(3.0)) {
		t.Errorf("Expected final TR 3, got %v", atr.TrueRange())
	}
}

func TestAtr_Reset(t *testing.T) {
	atr := NewAtr(14)
	atr.OnBar(atrBar(100, 95, 98))
	atr.OnBar(atrBar(102, 97, 101))

	if !atr.Ready() {
		t.Fatal("Expected ATR to be ready before reset")
	}

	atr.Reset()

	if atr.Ready() {
		t.Error("Expected ATR to not be ready after reset")
	}
	if !atr.Value().IsZero() || !atr.TrueRange().IsZero() {
		t.Error("Expected ATR state to be zero after reset")
	}
}

func TestAtr_ZeroBarIgnored(t *testing.T) {
	atr := NewAtr(14)
	atr.OnBar(common.Bar{})

	if atr.Ready() {
		t.Error("Expected ATR to not be ready with zero bar")
	}
}
