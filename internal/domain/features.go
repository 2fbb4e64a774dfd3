package domain

// WindowFeatures holds the trailing 20-bar statistics of one candle.
// Derived on read, never persisted.
type WindowFeatures struct {
	Candle

	PrevClose    *float64 `json:"prev_close"`    // close of the previous bar, NULL on the first bar
	TrueRange    float64  `json:"true_range"`    // max(high-low, |high-prev_close|, |low-prev_close|)
	ATR20        float64  `json:"atr20"`         // mean true range over the window
	SMA20        float64  `json:"sma20"`         // mean close over the window
	EMAApprox    float64  `json:"ema_approx"`    // 0.1*close + 0.9*prev_close (one-step form)
	OBVStep      float64  `json:"obv_step"`      // +volume / -volume / 0 by close direction
	OBV20        float64  `json:"obv20"`         // sum of obv_step over the window
	UpVolume20   float64  `json:"up_volume20"`   // volume on bars with close > open
	DownVolume20 float64  `json:"down_volume20"` // volume on bars with close <= open
	Spread       float64  `json:"spread"`        // high - low
	SpreadAvg20  float64  `json:"spread_avg20"`  // mean spread over the window
	SpreadStd20  *float64 `json:"spread_std20"`  // sample stddev of spread, NULL with fewer than 2 bars
	VolumeAvg20  float64  `json:"volume_avg20"`  // mean volume over the window
	WindowSize   int      `json:"window_size"`   // bars in the window (1..20)
}
