// Package features computes the trailing 20-bar window statistics of each
// candle. The window of row i is rows max(0, i-19)..i of the same
// instrument, so the first rows of a series use a shorter, growing window.
package features

import (
	"math"

	"accumulation-lab/internal/domain"
	"accumulation-lab/internal/normalization"
	"accumulation-lab/internal/window"
)

// EMAAlpha is the smoothing factor of the one-step EMA approximation.
const EMAAlpha = 0.1

// Compute derives window features for candles sorted by (instrument, ts).
// Output order matches input order.
func Compute(candles []domain.Candle) []domain.WindowFeatures {
	out := make([]domain.WindowFeatures, 0, len(candles))
	for _, series := range normalization.SplitByInstrument(candles) {
		agg := NewAggregator()
		for _, c := range series {
			out = append(out, agg.Next(c))
		}
	}
	return out
}

// Aggregator streams one instrument's candles and keeps the trailing
// buffers needed for each window statistic.
type Aggregator struct {
	trueRange *window.Ring
	close     *window.Ring
	obvStep   *window.Ring
	upVol     *window.Ring
	downVol   *window.Ring
	spread    *window.Ring
	volume    *window.Ring

	prevClose *float64
}

// NewAggregator creates an aggregator with empty buffers.
func NewAggregator() *Aggregator {
	return &Aggregator{
		trueRange: window.NewRing(window.Size),
		close:     window.NewRing(window.Size),
		obvStep:   window.NewRing(window.Size),
		upVol:     window.NewRing(window.Size),
		downVol:   window.NewRing(window.Size),
		spread:    window.NewRing(window.Size),
		volume:    window.NewRing(window.Size),
	}
}

// Next consumes the next candle of the series and returns its features.
func (a *Aggregator) Next(c domain.Candle) domain.WindowFeatures {
	f := domain.WindowFeatures{
		Candle:    c,
		PrevClose: a.prevClose,
		TrueRange: trueRange(c, a.prevClose),
		EMAApprox: emaApprox(c.Close, a.prevClose),
		OBVStep:   obvStep(c, a.prevClose),
		Spread:    c.High - c.Low,
	}

	up, down := 0.0, 0.0
	if c.Close > c.Open {
		up = c.Volume
	} else {
		down = c.Volume
	}

	a.trueRange.Push(f.TrueRange)
	a.close.Push(c.Close)
	a.obvStep.Push(f.OBVStep)
	a.upVol.Push(up)
	a.downVol.Push(down)
	a.spread.Push(f.Spread)
	a.volume.Push(c.Volume)

	f.ATR20 = a.trueRange.Mean()
	f.SMA20 = a.close.Mean()
	f.OBV20 = a.obvStep.Sum()
	f.UpVolume20 = a.upVol.Sum()
	f.DownVolume20 = a.downVol.Sum()
	f.SpreadAvg20 = a.spread.Mean()
	f.SpreadStd20 = window.Ptr(a.spread.SampleStd())
	f.VolumeAvg20 = a.volume.Mean()
	f.WindowSize = a.close.Len()

	prev := c.Close
	a.prevClose = &prev
	return f
}

// trueRange is max(high-low, |high-prev|, |low-prev|); the previous-close
// terms drop out on the first bar.
func trueRange(c domain.Candle, prevClose *float64) float64 {
	tr := c.High - c.Low
	if prevClose == nil {
		return tr
	}
	return math.Max(tr, math.Max(math.Abs(c.High-*prevClose), math.Abs(c.Low-*prevClose)))
}

// emaApprox is a single recursion step against the previous close,
// falling back to the current close on the first bar.
func emaApprox(close float64, prevClose *float64) float64 {
	prev := close
	if prevClose != nil {
		prev = *prevClose
	}
	return EMAAlpha*close + (1-EMAAlpha)*prev
}

func obvStep(c domain.Candle, prevClose *float64) float64 {
	switch {
	case prevClose == nil:
		return 0
	case c.Close > *prevClose:
		return c.Volume
	case c.Close < *prevClose:
		return -c.Volume
	default:
		return 0
	}
}
