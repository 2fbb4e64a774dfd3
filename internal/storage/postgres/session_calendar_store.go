package postgres

import (
	"context"
	"fmt"
	"time"

	"accumulation-lab/internal/domain"
	"accumulation-lab/internal/storage"
)

// SessionCalendarStore implements storage.SessionCalendarStore using PostgreSQL.
type SessionCalendarStore struct {
	pool *Pool
}

// NewSessionCalendarStore creates a new SessionCalendarStore.
func NewSessionCalendarStore(pool *Pool) *SessionCalendarStore {
	return &SessionCalendarStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SessionCalendarStore = (*SessionCalendarStore)(nil)

// InsertBulk adds calendar entries atomically. Returns ErrDuplicateKey on a repeated date.
func (s *SessionCalendarStore) InsertBulk(ctx context.Context, days []domain.SessionDay) error {
	if len(days) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, d := range days {
		if d.Date.IsZero() {
			return storage.ErrInvalidInput
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO session_calendar (date, session_nbr) VALUES ($1, $2)`,
			d.DateKey(), d.SessionNbr,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert session day: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetRecent returns the last n sessions with date <= asOf, ordered by date ASC.
func (s *SessionCalendarStore) GetRecent(ctx context.Context, asOf time.Time, n int) ([]domain.SessionDay, error) {
	if n <= 0 {
		return nil, nil
	}

	query := `
		SELECT date::text, session_nbr FROM (
			SELECT date, session_nbr
			FROM session_calendar
			WHERE date <= $1::date
			ORDER BY date DESC
			LIMIT $2
		) recent
		ORDER BY date ASC
	`

	start := time.Now()
	rows, err := s.pool.Query(ctx, query, asOf.Format(domain.DateLayout), n)
	observe("session_calendar.get_recent", start, err)
	if err != nil {
		return nil, fmt.Errorf("get recent sessions: %w", err)
	}
	defer rows.Close()

	var days []domain.SessionDay
	for rows.Next() {
		var (
			date string
			d    domain.SessionDay
		)
		if err := rows.Scan(&date, &d.SessionNbr); err != nil {
			return nil, fmt.Errorf("scan session day: %w", err)
		}
		if d.Date, err = time.Parse(domain.DateLayout, date); err != nil {
			return nil, fmt.Errorf("parse session date %q: %w", date, err)
		}
		days = append(days, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session days: %w", err)
	}
	return days, nil
}
