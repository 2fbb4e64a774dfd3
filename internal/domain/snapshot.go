package domain

import (
	"encoding/json"
	"time"
)

// Snapshot value keys.
const (
	KeyScore       = "hidden_accum_score"
	KeySetup       = "hidden_accum_setup"
	KeyC1          = "c1_vol_compression"
	KeyC2          = "c2_updown_volume"
	KeyC3          = "c3_money_flow"
	KeyC4          = "c4_no_supply"
	KeyC5          = "c5_spring"
	KeyClose       = "close"
	KeyBoxHigh     = "box_high_20"
	KeyBoxLow      = "box_low_20"
	KeyVolume      = "volume"
	KeyParamWindow = "window"
)

// IndicatorSnapshot is a persisted score for one (instrument, timeframe, ts).
// Corresponds to indicator_snapshot table. Written only by the materializer.
type IndicatorSnapshot struct {
	ID           int64     // surrogate id, assigned by the store
	InstrumentID int64     // UNIQUE (instrument_id, timeframe, ts)
	Ts           time.Time // bar timestamp
	Timeframe    string    // e.g. "1m"
	CalculatedAt time.Time // refreshed on every upsert
	Params       Payload   // scoring parameters used
	Values       Payload   // computed values
}

// Payload is an open-ended key/value map of numeric or boolean values.
// New indicators add keys without a schema change.
type Payload map[string]any

// Number returns the numeric value stored under key.
func (p Payload) Number(key string) (float64, bool) {
	switch v := p[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Flag returns the boolean value stored under key; missing keys are false.
func (p Payload) Flag(key string) bool {
	switch v := p[key].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	default:
		return false
	}
}

// Clone returns a shallow copy of the payload.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Score returns the composite score value; 0 when absent.
func (s *IndicatorSnapshot) Score() float64 {
	v, _ := s.Values.Number(KeyScore)
	return v
}

// Setup reports whether the setup flag is set.
func (s *IndicatorSnapshot) Setup() bool {
	return s.Values.Flag(KeySetup)
}
