// Package importer loads quotes and the session calendar from CSV files.
package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"accumulation-lab/internal/domain"
)

// Column sets of the supported files.
var (
	QuoteColumns    = []string{"instrument_id", "raw_ts", "day_nbr", "ts", "low", "high", "open", "close", "volume", "amount", "grain"}
	CalendarColumns = []string{"date", "session_nbr"}
)

// ErrInvalidRow wraps every row-level parse or validation failure.
var ErrInvalidRow = errors.New("invalid row")

// timestamp layouts accepted in the ts column, tried in order.
var tsLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05"}

type quoteRecord struct {
	InstrumentID int64  `validate:"gt=0"`
	RawTs        int64  `validate:"gt=0"`
	DayNbr       int    `validate:"gte=19000101,lte=99991231"`
	Grain        string `validate:"required,oneof=1m 5m 15m 30m 1h 1d"`
	Low          decimal.Decimal
	High         decimal.Decimal
	Open         decimal.Decimal
	Close        decimal.Decimal
	Volume       decimal.Decimal
	Amount       decimal.Decimal
}

type calendarRecord struct {
	Date       time.Time
	SessionNbr int `validate:"gt=0"`
}

// newValidator returns a validator with the OHLC consistency rules registered.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		q := sl.Current().Interface().(quoteRecord)
		if !q.Low.IsPositive() {
			sl.ReportError(q.Low, "Low", "Low", "gt", "0")
		}
		if q.High.LessThan(q.Low) {
			sl.ReportError(q.High, "High", "High", "gtefield", "Low")
		}
		if q.Open.LessThan(q.Low) || q.Open.GreaterThan(q.High) {
			sl.ReportError(q.Open, "Open", "Open", "within", "Low High")
		}
		if q.Close.LessThan(q.Low) || q.Close.GreaterThan(q.High) {
			sl.ReportError(q.Close, "Close", "Close", "within", "Low High")
		}
		if q.Volume.IsNegative() {
			sl.ReportError(q.Volume, "Volume", "Volume", "gte", "0")
		}
		if q.Amount.IsNegative() {
			sl.ReportError(q.Amount, "Amount", "Amount", "gte", "0")
		}
	}, quoteRecord{})
	return v
}

// ReadQuotes parses a quotes CSV with a header row. Column order is free;
// every column of QuoteColumns must be present. An empty ts is NULL.
func ReadQuotes(r io.Reader) ([]*domain.Quote, error) {
	v := newValidator()
	var quotes []*domain.Quote
	err := readRecords(r, QuoteColumns, func(line int, get func(string) string) error {
		rec, ts, err := parseQuote(get)
		if err != nil {
			return err
		}
		if err := v.Struct(rec); err != nil {
			return err
		}
		quotes = append(quotes, &domain.Quote{
			InstrumentID: rec.InstrumentID,
			RawTs:        rec.RawTs,
			DayNbr:       rec.DayNbr,
			Ts:           ts,
			Low:          rec.Low,
			High:         rec.High,
			Open:         rec.Open,
			Close:        rec.Close,
			Volume:       rec.Volume,
			Amount:       rec.Amount,
			Grain:        rec.Grain,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return quotes, nil
}

// ReadCalendar parses a session calendar CSV with a header row.
func ReadCalendar(r io.Reader) ([]domain.SessionDay, error) {
	v := newValidator()
	var days []domain.SessionDay
	err := readRecords(r, CalendarColumns, func(line int, get func(string) string) error {
		date, err := time.Parse(domain.DateLayout, get("date"))
		if err != nil {
			return fmt.Errorf("date: %w", err)
		}
		nbr, err := strconv.Atoi(get("session_nbr"))
		if err != nil {
			return fmt.Errorf("session_nbr: %w", err)
		}
		rec := calendarRecord{Date: date, SessionNbr: nbr}
		if err := v.Struct(rec); err != nil {
			return err
		}
		days = append(days, domain.SessionDay{Date: rec.Date, SessionNbr: rec.SessionNbr})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return days, nil
}

func parseQuote(get func(string) string) (quoteRecord, *time.Time, error) {
	var rec quoteRecord
	var err error

	if rec.InstrumentID, err = strconv.ParseInt(get("instrument_id"), 10, 64); err != nil {
		return rec, nil, fmt.Errorf("instrument_id: %w", err)
	}
	if rec.RawTs, err = strconv.ParseInt(get("raw_ts"), 10, 64); err != nil {
		return rec, nil, fmt.Errorf("raw_ts: %w", err)
	}
	if rec.DayNbr, err = strconv.Atoi(get("day_nbr")); err != nil {
		return rec, nil, fmt.Errorf("day_nbr: %w", err)
	}
	rec.Grain = get("grain")

	for _, f := range []struct {
		name string
		dst  *decimal.Decimal
	}{
		{"low", &rec.Low},
		{"high", &rec.High},
		{"open", &rec.Open},
		{"close", &rec.Close},
		{"volume", &rec.Volume},
		{"amount", &rec.Amount},
	} {
		d, err := decimal.NewFromString(get(f.name))
		if err != nil {
			return rec, nil, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = d
	}

	ts, err := parseTs(get("ts"))
	if err != nil {
		return rec, nil, fmt.Errorf("ts: %w", err)
	}
	return rec, ts, nil
}

func parseTs(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	var lastErr error
	for _, layout := range tsLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			t = t.UTC()
			return &t, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// readRecords reads the header, checks required columns and calls fn for
// every data row. Row errors are reported with their 1-based file line.
func readRecords(r io.Reader, required []string, fn func(line int, get func(string) string) error) error {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty file: missing header")
		}
		return fmt.Errorf("read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range required {
		if _, ok := index[name]; !ok {
			return fmt.Errorf("missing column %q", name)
		}
	}

	line := 1
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		line++
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}

		get := func(name string) string {
			return strings.TrimSpace(record[index[name]])
		}
		if err := fn(line, get); err != nil {
			return fmt.Errorf("line %d: %w: %w", line, ErrInvalidRow, err)
		}
	}
}
