package features

import (
	"math"
	"testing"
	"time"

	"accumulation-lab/internal/domain"
)

const tolerance = 1e-9

func candle(id int64, minute int, open, high, low, close, volume float64) domain.Candle {
	return domain.Candle{
		InstrumentID: id,
		Ts:           time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC).Add(time.Duration(minute) * time.Minute),
		RawTs:        int64(minute),
		Open:         open,
		High:         high,
		Low:          low,
		Close:        close,
		Volume:       volume,
	}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) <= tolerance
}

func TestCompute_FirstBar(t *testing.T) {
	rows := Compute([]domain.Candle{candle(1, 0, 10, 12, 9, 11, 100)})

	if len(rows) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(rows))
	}
	r := rows[0]
	if r.PrevClose != nil {
		t.Errorf("Expected nil prev_close, got %v", *r.PrevClose)
	}
	if r.TrueRange != 3 {
		t.Errorf("Expected true range 3, got %v", r.TrueRange)
	}
	if r.EMAApprox != 11 {
		t.Errorf("Expected ema_approx 11, got %v", r.EMAApprox)
	}
	if r.OBVStep != 0 || r.OBV20 != 0 {
		t.Errorf("Expected zero obv on first bar, got step %v obv %v", r.OBVStep, r.OBV20)
	}
	if r.UpVolume20 != 100 || r.DownVolume20 != 0 {
		t.Errorf("Expected up 100 down 0, got up %v down %v", r.UpVolume20, r.DownVolume20)
	}
	if r.SpreadStd20 != nil {
		t.Errorf("Expected nil spread stddev on a single bar, got %v", *r.SpreadStd20)
	}
	if r.WindowSize != 1 {
		t.Errorf("Expected window size 1, got %d", r.WindowSize)
	}
}

func TestCompute_TrueRangeAndEMA(t *testing.T) {
	rows := Compute([]domain.Candle{
		candle(1, 0, 10, 11, 9, 10, 100),
		// gap up: |high - prev_close| = 5 dominates high-low = 2
		candle(1, 1, 14, 15, 13, 14, 200),
	})

	r := rows[1]
	if r.PrevClose == nil || *r.PrevClose != 10 {
		t.Fatalf("Expected prev_close 10, got %v", r.PrevClose)
	}
	if r.TrueRange != 5 {
		t.Errorf("Expected true range 5, got %v", r.TrueRange)
	}
	if !approx(r.ATR20, 3.5) {
		t.Errorf("Expected atr20 3.5, got %v", r.ATR20)
	}
	if !approx(r.EMAApprox, 0.1*14+0.9*10) {
		t.Errorf("Expected ema_approx %v, got %v", 0.1*14+0.9*10, r.EMAApprox)
	}
	if !approx(r.SMA20, 12) {
		t.Errorf("Expected sma20 12, got %v", r.SMA20)
	}
	if r.OBVStep != 200 || r.OBV20 != 200 {
		t.Errorf("Expected obv step 200 and obv20 200, got %v and %v", r.OBVStep, r.OBV20)
	}
}

func TestCompute_GrowingWindowUnderTwentyBars(t *testing.T) {
	var candles []domain.Candle
	for i := 0; i < 7; i++ {
		c := float64(10 + i)
		candles = append(candles, candle(1, i, c, c+1, c-1, c, 10))
	}

	rows := Compute(candles)

	if len(rows) != 7 {
		t.Fatalf("Expected 7 rows, got %d", len(rows))
	}
	for i, r := range rows {
		if r.WindowSize != i+1 {
			t.Errorf("Row %d: expected window size %d, got %d", i, i+1, r.WindowSize)
		}
	}
	// mean of 10..16
	if !approx(rows[6].SMA20, 13) {
		t.Errorf("Expected sma20 13, got %v", rows[6].SMA20)
	}
	if !approx(rows[6].VolumeAvg20, 10) {
		t.Errorf("Expected volume avg 10, got %v", rows[6].VolumeAvg20)
	}
}

func TestCompute_OBVIsWindowedNotCumulative(t *testing.T) {
	var candles []domain.Candle
	for i := 0; i < 30; i++ {
		c := float64(100 + i)
		candles = append(candles, candle(1, i, c, c+1, c-1, c, 5))
	}

	rows := Compute(candles)

	// every bar after the first rises, so the trailing 20 steps are all +5
	if got := rows[29].OBV20; got != 100 {
		t.Errorf("Expected windowed obv 100, got %v", got)
	}
	if got := rows[29].WindowSize; got != 20 {
		t.Errorf("Expected window size capped at 20, got %d", got)
	}
	if got := rows[10].OBV20; got != 50 {
		t.Errorf("Expected obv 50 at row 10, got %v", got)
	}
}

func TestCompute_UpDownSplitAndSpreadStats(t *testing.T) {
	rows := Compute([]domain.Candle{
		candle(1, 0, 10, 12, 10, 11, 100), // up, spread 2
		candle(1, 1, 11, 14, 10, 11, 50),  // flat counts as down, spread 4
		candle(1, 2, 11, 12, 9, 10, 70),   // down, spread 3
	})

	r := rows[2]
	if r.UpVolume20 != 100 {
		t.Errorf("Expected up volume 100, got %v", r.UpVolume20)
	}
	if r.DownVolume20 != 120 {
		t.Errorf("Expected down volume 120, got %v", r.DownVolume20)
	}
	if !approx(r.SpreadAvg20, 3) {
		t.Errorf("Expected spread avg 3, got %v", r.SpreadAvg20)
	}
	if r.SpreadStd20 == nil || !approx(*r.SpreadStd20, 1) {
		t.Errorf("Expected spread stddev 1, got %v", r.SpreadStd20)
	}
}

func TestCompute_InstrumentsDoNotShareWindows(t *testing.T) {
	rows := Compute([]domain.Candle{
		candle(1, 0, 10, 11, 9, 10, 100),
		candle(1, 1, 10, 11, 9, 10, 100),
		candle(2, 0, 50, 51, 49, 50, 7),
	})

	r := rows[2]
	if r.InstrumentID != 2 {
		t.Fatalf("Expected instrument 2, got %d", r.InstrumentID)
	}
	if r.PrevClose != nil {
		t.Error("Expected new instrument to start without prev_close")
	}
	if r.WindowSize != 1 || r.SMA20 != 50 {
		t.Errorf("Expected fresh window, got size %d sma %v", r.WindowSize, r.SMA20)
	}
}
