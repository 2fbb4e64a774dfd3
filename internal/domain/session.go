package domain

import "time"

// SessionDay maps a calendar date to a trading-session sequence number.
// Corresponds to session_calendar table in PostgreSQL.
type SessionDay struct {
	Date       time.Time // date at midnight UTC
	SessionNbr int       // increasing session sequence number
}

// DateKey returns the date formatted as YYYY-MM-DD.
func (s SessionDay) DateKey() string {
	return s.Date.Format(DateLayout)
}

// DateLayout is the layout used for session dates.
const DateLayout = "2006-01-02"
