package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// GrainMinute is the only quote granularity the scoring pipeline consumes.
const GrainMinute = "1m"

// TimeframeMinute is the snapshot timeframe label for minute candles.
const TimeframeMinute = "1m"

// Quote represents one raw OHLCV observation.
// Corresponds to quotes table in PostgreSQL. Immutable once inserted.
type Quote struct {
	InstrumentID int64           // instrument identifier (oid)
	RawTs        int64           // source timestamp, part of PRIMARY KEY (instrument_id, raw_ts)
	DayNbr       int             // calendar day as YYYYMMDD
	Ts           *time.Time      // parsed timestamp, NULL when the feed could not supply one
	Low          decimal.Decimal // bar low
	High         decimal.Decimal // bar high
	Open         decimal.Decimal // bar open
	Close        decimal.Decimal // bar close
	Volume       decimal.Decimal // traded volume
	Amount       decimal.Decimal // traded value
	Grain        string          // granularity label, e.g. "1m"
}
