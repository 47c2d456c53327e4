package backtest

import (
	"math"
	"testing"
)

func TestRollingMeanWarmup(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	ma := RollingMean(values, 3)
	for i := 0; i < 2; i++ {
		if !math.IsNaN(ma[i]) {
			t.Fatalf("expected NaN in warm-up at %d, got %f", i, ma[i])
		}
	}
	want := []float64{2, 3, 4}
	for i, w := range want {
		if ma[i+2] != w {
			t.Fatalf("ma[%d] = %f, want %f", i+2, ma[i+2], w)
		}
	}
}

func TestRollingStdDevConstantSeries(t *testing.T) {
	values := []float64{5, 5, 5, 5}
	sd := RollingStdDev(values, 3)
	if sd[3] != 0 {
		t.Fatalf("expected zero stddev for constant series, got %f", sd[3])
	}
}

func TestATRUsesPreviousClose(t *testing.T) {
	bars := []Bar{
		{High: 110, Low: 100, Close: 105},
		// Gap up: true range is high minus previous close.
		{High: 130, Low: 125, Close: 128},
	}
	atr := ATR(bars, 1)
	if atr[0] != 10 {
		t.Fatalf("first bar true range = %f, want 10", atr[0])
	}
	if atr[1] != 25 {
		t.Fatalf("gap bar true range = %f, want 25", atr[1])
	}
}
