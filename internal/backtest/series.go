package backtest

import (
	"math"
	"time"
)

// Bar is one daily OHLC observation.
type Bar struct {
	Date  time.Time
	Open  float64
	High  float64
	Low   float64
	Close float64
}

func closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, bar := range bars {
		out[i] = bar.Close
	}
	return out
}

// RollingMean returns the simple moving average of values over period.
// Positions inside the warm-up window are NaN.
func RollingMean(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	var sum float64
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// RollingStdDev returns the rolling sample standard deviation over period,
// NaN inside the warm-up window.
func RollingStdDev(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		if i < period-1 {
			out[i] = math.NaN()
			continue
		}
		window := values[i-period+1 : i+1]
		var sum float64
		for _, v := range window {
			sum += v
		}
		mean := sum / float64(period)
		var sq float64
		for _, v := range window {
			d := v - mean
			sq += d * d
		}
		out[i] = math.Sqrt(sq / float64(period-1))
	}
	return out
}

// ATR returns the average true range of bars over period, NaN inside the
// warm-up window. True range at bar i uses the previous close when available.
func ATR(bars []Bar, period int) []float64 {
	tr := make([]float64, len(bars))
	for i, bar := range bars {
		r := bar.High - bar.Low
		if i > 0 {
			prev := bars[i-1].Close
			r = math.Max(r, math.Abs(bar.High-prev))
			r = math.Max(r, math.Abs(bar.Low-prev))
		}
		tr[i] = r
	}
	return RollingMean(tr, period)
}
