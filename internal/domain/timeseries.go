package domain

import "time"

// Candle is a normalized minute bar. Prices are converted to float64 once
// at normalization so that every downstream stage works on plain floats.
type Candle struct {
	InstrumentID int64     `json:"instrument_id"`
	Ts           time.Time `json:"ts"`
	RawTs        int64     `json:"raw_ts"`
	Open         float64   `json:"open"`
	High         float64   `json:"high"`
	Low          float64   `json:"low"`
	Close        float64   `json:"close"`
	Volume       float64   `json:"volume"`
	Amount       float64   `json:"amount"`
}
