// Package normalization projects raw quotes into canonical minute candles.
package normalization

import (
	"accumulation-lab/internal/domain"
)

// Normalize projects quotes of the given grain into candles ordered by
// (instrument, ts, raw_ts). Quotes with a NULL timestamp or another grain
// are dropped. An empty input yields an empty result.
func Normalize(quotes []*domain.Quote, grain string) []domain.Candle {
	candles := make([]domain.Candle, 0, len(quotes))
	for _, q := range quotes {
		if q == nil || q.Ts == nil || q.Grain != grain {
			continue
		}
		candles = append(candles, domain.Candle{
			InstrumentID: q.InstrumentID,
			Ts:           q.Ts.UTC(),
			RawTs:        q.RawTs,
			Open:         q.Open.InexactFloat64(),
			High:         q.High.InexactFloat64(),
			Low:          q.Low.InexactFloat64(),
			Close:        q.Close.InexactFloat64(),
			Volume:       q.Volume.InexactFloat64(),
			Amount:       q.Amount.InexactFloat64(),
		})
	}

	SortCandles(candles)
	return candles
}
