package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"accumulation-lab/internal/domain"
	"accumulation-lab/internal/storage"
)

// QuoteStore implements storage.QuoteStore using PostgreSQL.
type QuoteStore struct {
	pool *Pool
}

// NewQuoteStore creates a new QuoteStore.
func NewQuoteStore(pool *Pool) *QuoteStore {
	return &QuoteStore{pool: pool}
}

// Compile-time interface check.
var _ storage.QuoteStore = (*QuoteStore)(nil)

const quoteColumns = `
	instrument_id, raw_ts, day_nbr, ts,
	low::text, high::text, open::text, close::text, volume::text, amount::text, grain
`

// InsertBulk adds multiple quotes atomically. Fails entire batch on any duplicate.
func (s *QuoteStore) InsertBulk(ctx context.Context, quotes []*domain.Quote) (err error) {
	if len(quotes) == 0 {
		return nil
	}
	for _, q := range quotes {
		if q == nil || q.InstrumentID == 0 || q.Grain == "" {
			return storage.ErrInvalidInput
		}
	}

	defer func(start time.Time) { observe("quotes.insert_bulk", start, err) }(time.Now())

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO quotes (
			instrument_id, raw_ts, day_nbr, ts, low, high, open, close, volume, amount, grain
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	for _, q := range quotes {
		_, err := tx.Exec(ctx, query,
			q.InstrumentID,
			q.RawTs,
			q.DayNbr,
			q.Ts,
			q.Low.String(),
			q.High.String(),
			q.Open.String(),
			q.Close.String(),
			q.Volume.String(),
			q.Amount.String(),
			q.Grain,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert quote in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByInstrument retrieves all timestamped quotes of an instrument and grain, ordered by (ts, raw_ts) ASC.
func (s *QuoteStore) GetByInstrument(ctx context.Context, instrumentID int64, grain string) ([]*domain.Quote, error) {
	query := `
		SELECT ` + quoteColumns + `
		FROM quotes
		WHERE instrument_id = $1 AND grain = $2 AND ts IS NOT NULL
		ORDER BY ts ASC, raw_ts ASC
	`

	start := time.Now()
	rows, err := s.pool.Query(ctx, query, instrumentID, grain)
	observe("quotes.get_by_instrument", start, err)
	if err != nil {
		return nil, fmt.Errorf("get quotes by instrument: %w", err)
	}
	defer rows.Close()

	return scanQuotes(rows)
}

// GetTail retrieves quotes after the watermark plus up to warmup quotes before it.
func (s *QuoteStore) GetTail(ctx context.Context, instrumentID int64, grain string, after time.Time, warmup int) ([]*domain.Quote, error) {
	if warmup < 0 {
		warmup = 0
	}

	query := `
		SELECT * FROM (
			(SELECT ` + quoteColumns + `
			FROM quotes
			WHERE instrument_id = $1 AND grain = $2 AND ts IS NOT NULL AND ts <= $3
			ORDER BY ts DESC, raw_ts DESC
			LIMIT $4)
			UNION ALL
			(SELECT ` + quoteColumns + `
			FROM quotes
			WHERE instrument_id = $1 AND grain = $2 AND ts > $3)
		) tail
		ORDER BY ts ASC, raw_ts ASC
	`

	start := time.Now()
	rows, err := s.pool.Query(ctx, query, instrumentID, grain, after, warmup)
	observe("quotes.get_tail", start, err)
	if err != nil {
		return nil, fmt.Errorf("get quote tail: %w", err)
	}
	defer rows.Close()

	return scanQuotes(rows)
}

// ListInstruments returns distinct instrument ids having quotes of grain, ASC.
func (s *QuoteStore) ListInstruments(ctx context.Context, grain string) ([]int64, error) {
	query := `SELECT DISTINCT instrument_id FROM quotes WHERE grain = $1 ORDER BY instrument_id`

	start := time.Now()
	rows, err := s.pool.Query(ctx, query, grain)
	observe("quotes.list_instruments", start, err)
	if err != nil {
		return nil, fmt.Errorf("list instruments: %w", err)
	}
	defer rows.Close()

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("collect instruments: %w", err)
	}
	return ids, nil
}

// scanQuotes scans rows selected with quoteColumns.
func scanQuotes(rows pgx.Rows) ([]*domain.Quote, error) {
	var quotes []*domain.Quote
	for rows.Next() {
		var (
			q                                      domain.Quote
			low, high, open, close, volume, amount string
		)
		err := rows.Scan(
			&q.InstrumentID,
			&q.RawTs,
			&q.DayNbr,
			&q.Ts,
			&low, &high, &open, &close, &volume, &amount,
			&q.Grain,
		)
		if err != nil {
			return nil, fmt.Errorf("scan quote: %w", err)
		}

		decimals := []struct {
			dst *decimal.Decimal
			src string
		}{
			{&q.Low, low}, {&q.High, high}, {&q.Open, open},
			{&q.Close, close}, {&q.Volume, volume}, {&q.Amount, amount},
		}
		for _, d := range decimals {
			if *d.dst, err = decimal.NewFromString(d.src); err != nil {
				return nil, fmt.Errorf("parse quote decimal %q: %w", d.src, err)
			}
		}

		quotes = append(quotes, &q)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quotes: %w", err)
	}
	return quotes, nil
}
