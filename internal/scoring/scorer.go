// Package scoring turns window features into the five hidden-accumulation
// components, the 0..100 composite score and the setup flag.
package scoring

import (
	"math"

	"accumulation-lab/internal/domain"
	"accumulation-lab/internal/window"
)

const (
	// SetupThreshold is the minimum composite score for a setup.
	SetupThreshold = 70.0

	// Neutral is substituted for a component whose inputs are undefined.
	Neutral = 0.5

	zEpsilon        = 1e-9
	obvSlopeLag     = 10
	slopeWeight     = 0.7
	flatnessWeight  = 0.3
	narrowSpreadK   = 0.5
	lowVolumeFactor = 0.8
	springLookback  = 5
	springValue     = 0.2
)

// Weights are the component weights of the composite score. They sum to 1.
type Weights struct {
	C1 float64
	C2 float64
	C3 float64
	C4 float64
	C5 float64
}

// DefaultWeights returns the production weights.
func DefaultWeights() Weights {
	return Weights{C1: 0.25, C2: 0.25, C3: 0.30, C4: 0.15, C5: 0.05}
}

// Composite returns 100 * the weighted component sum.
func (w Weights) Composite(c1, c2, c3, c4, c5 float64) float64 {
	return 100 * (w.C1*c1 + w.C2*c2 + w.C3*c3 + w.C4*c4 + w.C5*c5)
}

// Score scores features sorted by (instrument, ts) using the default weights.
// Output order matches input order.
func Score(features []domain.WindowFeatures) []domain.AccumRow {
	return ScoreWith(DefaultWeights(), features)
}

// ScoreWith scores features with the given weights.
func ScoreWith(w Weights, features []domain.WindowFeatures) []domain.AccumRow {
	out := make([]domain.AccumRow, 0, len(features))
	var s *Scorer
	for i, f := range features {
		if i == 0 || f.InstrumentID != features[i-1].InstrumentID {
			s = NewScorer(w)
		}
		out = append(out, s.Next(f))
	}
	return out
}

// Scorer streams one instrument's window features. It keeps the second-level
// windows (box, volatility ratio, OBV history, no-supply flags, springs)
// that the components are computed over.
type Scorer struct {
	weights Weights

	high     *window.Ring
	low      *window.Ring
	ratio    *window.Ring
	obv      *window.Ring
	noSupply *window.Ring
	spring   *window.Ring

	prevBoxLow *float64
}

// NewScorer creates a scorer with empty windows.
func NewScorer(w Weights) *Scorer {
	return &Scorer{
		weights:  w,
		high:     window.NewRing(window.Size),
		low:      window.NewRing(window.Size),
		ratio:    window.NewRing(window.Size),
		obv:      window.NewRing(window.Size),
		noSupply: window.NewRing(window.Size),
		spring:   window.NewRing(springLookback),
	}
}

// Next consumes the next feature row of the series and returns its score.
func (s *Scorer) Next(f domain.WindowFeatures) domain.AccumRow {
	s.high.Push(f.High)
	s.low.Push(f.Low)

	row := domain.AccumRow{
		WindowFeatures: f,
		BoxHigh20:      s.high.Max(),
		BoxLow20:       s.low.Min(),
	}

	row.C1VolCompression = s.volCompression(f)
	row.C2UpDownVolume = upDownVolume(f)
	row.C3MoneyFlow = s.moneyFlow(f, row.BoxHigh20, row.BoxLow20)
	row.C4NoSupply = s.noSupplyShare(f)
	row.C5Spring = s.springSignal(f, row.BoxLow20)

	row.Score = s.weights.Composite(row.C1VolCompression, row.C2UpDownVolume,
		row.C3MoneyFlow, row.C4NoSupply, row.C5Spring)
	row.Setup = isSetup(row)

	return row
}

// volCompression is sigmoid(-z) of the ATR/SMA ratio against its own window.
func (s *Scorer) volCompression(f domain.WindowFeatures) float64 {
	ratio := math.NaN()
	if f.SMA20 != 0 {
		ratio = f.ATR20 / f.SMA20
	}
	s.ratio.Push(ratio)

	mean := s.ratio.Mean()
	if math.IsNaN(ratio) || math.IsNaN(mean) {
		return Neutral
	}
	std := s.ratio.SampleStd()
	if math.IsNaN(std) || std < zEpsilon {
		std = zEpsilon
	}
	z := (ratio - mean) / std
	return 1 / (1 + math.Exp(z))
}

func upDownVolume(f domain.WindowFeatures) float64 {
	total := f.UpVolume20 + f.DownVolume20
	if total == 0 {
		return Neutral
	}
	return f.UpVolume20 / total
}

// moneyFlow blends the normalized OBV slope with price flatness inside the box.
func (s *Scorer) moneyFlow(f domain.WindowFeatures, boxHigh, boxLow float64) float64 {
	s.obv.Push(f.OBV20)

	slope := Neutral
	if past, ok := s.obv.Back(obvSlopeLag); ok {
		std := s.obv.SampleStd()
		if !math.IsNaN(std) && std != 0 {
			slope = sigmoid((f.OBV20 - past) / std)
		}
	}

	flat := Neutral
	if f.SMA20 != 0 {
		flat = clamp01(1 - (boxHigh-boxLow)/f.SMA20)
	}

	return slopeWeight*slope + flatnessWeight*flat
}

// noSupplyShare is the share of window bars that closed down on a narrow
// range and light volume.
func (s *Scorer) noSupplyShare(f domain.WindowFeatures) float64 {
	flag := 0.0
	if f.Close < f.Open &&
		f.SpreadStd20 != nil &&
		f.Spread < f.SpreadAvg20-narrowSpreadK*(*f.SpreadStd20) &&
		f.Volume < lowVolumeFactor*f.VolumeAvg20 {
		flag = 1
	}
	s.noSupply.Push(flag)
	return s.noSupply.Mean()
}

// springSignal flags a bar whose low pierced the previous bar's box floor
// while its close recovered above it. The per-bar value is 0.2, not 1.
func (s *Scorer) springSignal(f domain.WindowFeatures, boxLow float64) float64 {
	v := 0.0
	if s.prevBoxLow != nil && f.Low < *s.prevBoxLow && f.Close > *s.prevBoxLow {
		v = springValue
	}
	s.spring.Push(v)

	floor := boxLow
	s.prevBoxLow = &floor

	return s.spring.Max()
}

func isSetup(r domain.AccumRow) bool {
	mid := (r.BoxHigh20 + r.BoxLow20) / 2
	return r.Score >= SetupThreshold && r.Close > mid && r.High < r.BoxHigh20
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
