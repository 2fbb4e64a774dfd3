package domain

// AccumRow is a scored bar: window features plus the price box,
// the five component scores and the composite.
type AccumRow struct {
	WindowFeatures

	BoxHigh20 float64 `json:"box_high_20"`
	BoxLow20  float64 `json:"box_low_20"`

	C1VolCompression float64 `json:"c1_vol_compression"`
	C2UpDownVolume   float64 `json:"c2_updown_volume"`
	C3MoneyFlow      float64 `json:"c3_money_flow"`
	C4NoSupply       float64 `json:"c4_no_supply"`
	C5Spring         float64 `json:"c5_spring"`

	Score float64 `json:"hidden_accum_score"` // 0..100
	Setup bool    `json:"hidden_accum_setup"`
}
