// Package indicators computes textbook technical indicators (EMA, RSI, ATR)
// shown next to the rolling window features for comparison.
package indicators

import (
	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
	"github.com/cinar/indicator/v2/volatility"

	"accumulation-lab/internal/domain"
	"accumulation-lab/internal/window"
)

// Periods of the reference indicators.
const (
	EMAPeriod = 20
	RSIPeriod = 14
	ATRPeriod = 14
)

// Reference holds reference indicator values for one candle.
// A nil value means the indicator is still warming up.
type Reference struct {
	EMA20 *float64 `json:"ema_20"`
	RSI14 *float64 `json:"rsi_14"`
	ATR14 *float64 `json:"atr_14"`
}

// Compute returns one Reference per candle of a single instrument's
// ordered series, aligned by index.
func Compute(candles []domain.Candle) []Reference {
	n := len(candles)
	out := make([]Reference, n)
	if n == 0 {
		return out
	}

	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i, c := range candles {
		highs[i] = c.High
		lows[i] = c.Low
		closes[i] = c.Close
	}

	if n >= EMAPeriod {
		ema := trend.NewEmaWithPeriod[float64](EMAPeriod)
		align(out, helper.ChanToSlice(ema.Compute(helper.SliceToChan(closes))), func(r *Reference, v *float64) { r.EMA20 = v })
	}
	if n > RSIPeriod {
		rsi := momentum.NewRsiWithPeriod[float64](RSIPeriod)
		align(out, helper.ChanToSlice(rsi.Compute(helper.SliceToChan(closes))), func(r *Reference, v *float64) { r.RSI14 = v })
	}
	if n > ATRPeriod {
		atr := volatility.NewAtrWithPeriod[float64](ATRPeriod)
		values := atr.Compute(helper.SliceToChan(highs), helper.SliceToChan(lows), helper.SliceToChan(closes))
		align(out, helper.ChanToSlice(values), func(r *Reference, v *float64) { r.ATR14 = v })
	}

	return out
}

// align writes values to the tail of out; indicator outputs are shorter
// than their input by the warmup length.
func align(out []Reference, values []float64, set func(*Reference, *float64)) {
	offset := len(out) - len(values)
	if offset < 0 {
		values = values[-offset:]
		offset = 0
	}
	for i, v := range values {
		set(&out[offset+i], window.Ptr(v))
	}
}
