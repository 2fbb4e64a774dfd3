// Package fixtures generates deterministic synthetic quotes and a session
// calendar for memory mode and tests.
package fixtures

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"accumulation-lab/internal/domain"
	"accumulation-lab/internal/storage"
)

// Config controls the generated data set.
type Config struct {
	Instruments    int            // instrument ids 1..Instruments
	Sessions       int            // trading sessions (weekdays) to generate
	BarsPerSession int            // minute bars per session
	FirstDate      time.Time      // first calendar date considered
	SessionOpen    time.Duration  // session open as offset from local midnight
	Location       *time.Location // market timezone
	Seed           int64
}

// DefaultConfig returns a small data set: 4 instruments, 20 sessions of 90 bars.
func DefaultConfig() Config {
	loc, err := time.LoadLocation("Europe/Warsaw")
	if err != nil {
		loc = time.UTC
	}
	return Config{
		Instruments:    4,
		Sessions:       20,
		BarsPerSession: 90,
		FirstDate:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		SessionOpen:    9 * time.Hour,
		Location:       loc,
		Seed:           42,
	}
}

// Calendar returns cfg.Sessions consecutive weekdays starting at FirstDate.
func Calendar(cfg Config) []domain.SessionDay {
	days := make([]domain.SessionDay, 0, cfg.Sessions)
	d := time.Date(cfg.FirstDate.Year(), cfg.FirstDate.Month(), cfg.FirstDate.Day(), 0, 0, 0, 0, time.UTC)
	for len(days) < cfg.Sessions {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			days = append(days, domain.SessionDay{Date: d, SessionNbr: len(days) + 1})
		}
		d = d.AddDate(0, 0, 1)
	}
	return days
}

// Quotes returns minute quotes for every instrument and session.
// Instrument 1 follows a quiet accumulation pattern (tight range under a
// ceiling, volume concentrated on up bars); the rest are random walks.
func Quotes(cfg Config) []*domain.Quote {
	rng := rand.New(rand.NewSource(cfg.Seed))
	calendar := Calendar(cfg)
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	var quotes []*domain.Quote
	for id := int64(1); id <= int64(cfg.Instruments); id++ {
		price := 10.0 * float64(id)
		ceiling := price * 1.01
		bar := 0
		for _, day := range calendar {
			open := time.Date(day.Date.Year(), day.Date.Month(), day.Date.Day(), 0, 0, 0, 0, loc).Add(cfg.SessionOpen)
			dayNbr := day.Date.Year()*10000 + int(day.Date.Month())*100 + day.Date.Day()
			for i := 0; i < cfg.BarsPerSession; i++ {
				ts := open.Add(time.Duration(i) * time.Minute).UTC()

				var o, h, l, c, v float64
				if id == 1 {
					o, h, l, c, v = accumulationBar(rng, price, ceiling, bar)
				} else {
					o, h, l, c, v = randomBar(rng, price)
				}
				price = c
				bar++

				quotes = append(quotes, &domain.Quote{
					InstrumentID: id,
					RawTs:        ts.UnixMilli(),
					DayNbr:       dayNbr,
					Ts:           &ts,
					Low:          round(l),
					High:         round(h),
					Open:         round(o),
					Close:        round(c),
					Volume:       round(v),
					Amount:       round(v * (h + l) / 2),
					Grain:        domain.GrainMinute,
				})
			}
		}
	}
	return quotes
}

func accumulationBar(rng *rand.Rand, price, ceiling float64, bar int) (o, h, l, c, v float64) {
	// Drift toward 99.4% of the ceiling with a small oscillation.
	target := ceiling * (0.994 + 0.002*math.Sin(float64(bar)/7))
	o = price
	c = o + (target-o)*0.3 + (rng.Float64()-0.5)*ceiling*0.0005
	c = math.Min(c, ceiling*0.998)
	h = math.Min(math.Max(o, c)*(1+rng.Float64()*0.0003), ceiling*0.999)
	l = math.Min(o, c) * (1 - rng.Float64()*0.0003)
	if c >= o {
		v = 1500 + rng.Float64()*500
	} else {
		v = 300 + rng.Float64()*100
	}
	return o, h, l, c, v
}

func randomBar(rng *rand.Rand, price float64) (o, h, l, c, v float64) {
	o = price
	c = o * (1 + rng.NormFloat64()*0.003)
	h = math.Max(o, c) * (1 + rng.Float64()*0.002)
	l = math.Min(o, c) * (1 - rng.Float64()*0.002)
	v = 500 + rng.Float64()*1500
	return o, h, l, c, v
}

func round(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(4)
}

// Load populates stores with the generated calendar and quotes.
func Load(ctx context.Context, cfg Config, quoteStore storage.QuoteStore, calendarStore storage.SessionCalendarStore) error {
	if err := calendarStore.InsertBulk(ctx, Calendar(cfg)); err != nil {
		return fmt.Errorf("load calendar: %w", err)
	}
	if err := quoteStore.InsertBulk(ctx, Quotes(cfg)); err != nil {
		return fmt.Errorf("load quotes: %w", err)
	}
	return nil
}
