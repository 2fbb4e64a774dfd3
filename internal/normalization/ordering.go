package normalization

import (
	"sort"

	"accumulation-lab/internal/domain"
)

// SortCandles orders candles by (instrument_id ASC, ts ASC, raw_ts ASC).
// Every rolling window depends on this order.
func SortCandles(candles []domain.Candle) {
	sort.SliceStable(candles, func(i, j int) bool {
		return compareCandles(&candles[i], &candles[j]) < 0
	})
}

// compareCandles returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
func compareCandles(a, b *domain.Candle) int {
	if a.InstrumentID != b.InstrumentID {
		if a.InstrumentID < b.InstrumentID {
			return -1
		}
		return 1
	}
	if !a.Ts.Equal(b.Ts) {
		if a.Ts.Before(b.Ts) {
			return -1
		}
		return 1
	}
	if a.RawTs != b.RawTs {
		if a.RawTs < b.RawTs {
			return -1
		}
		return 1
	}
	return 0
}

// SplitByInstrument splits sorted candles into per-instrument runs.
// The returned slices alias the input.
func SplitByInstrument(candles []domain.Candle) [][]domain.Candle {
	var groups [][]domain.Candle
	start := 0
	for i := 1; i <= len(candles); i++ {
		if i == len(candles) || candles[i].InstrumentID != candles[start].InstrumentID {
			if i > start {
				groups = append(groups, candles[start:i])
			}
			start = i
		}
	}
	return groups
}
