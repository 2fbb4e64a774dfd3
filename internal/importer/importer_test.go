package importer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accumulation-lab/internal/domain"
	"accumulation-lab/internal/storage"
	"accumulation-lab/internal/storage/memory"
)

const quotesCSV = `instrument_id,raw_ts,day_nbr,ts,low,high,open,close,volume,amount,grain
1,1704186000000,20240102,2024-01-02T09:00:00Z,10.00,10.50,10.10,10.40,1200,12480,1m
1,1704186060000,20240102,2024-01-02T09:01:00Z,10.30,10.60,10.40,10.55,900,9495,1m
1,1704186120000,20240102,,10.30,10.60,10.40,10.55,900,9495,1m
2,1704186000000,20240102,2024-01-02 09:00:00,20.00,20.20,20.10,20.05,300,6015,5m
`

func TestReadQuotes(t *testing.T) {
	quotes, err := ReadQuotes(strings.NewReader(quotesCSV))
	require.NoError(t, err)
	require.Len(t, quotes, 4)

	q := quotes[0]
	assert.Equal(t, int64(1), q.InstrumentID)
	assert.Equal(t, int64(1704186000000), q.RawTs)
	assert.Equal(t, 20240102, q.DayNbr)
	require.NotNil(t, q.Ts)
	assert.True(t, q.Ts.Equal(time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)))
	assert.Equal(t, "10.4", q.Close.String())
	assert.Equal(t, domain.GrainMinute, q.Grain)

	assert.Nil(t, quotes[2].Ts, "empty ts is NULL")
	require.NotNil(t, quotes[3].Ts)
	assert.Equal(t, "5m", quotes[3].Grain)
}

func TestReadQuotes_ColumnOrderFree(t *testing.T) {
	data := `grain,ts,instrument_id,raw_ts,day_nbr,open,high,low,close,volume,amount
1m,2024-01-02T09:00:00Z,3,1,20240102,5,6,4,5.5,10,55
`
	quotes, err := ReadQuotes(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, int64(3), quotes[0].InstrumentID)
	assert.Equal(t, "6", quotes[0].High.String())
}

func TestReadQuotes_Invalid(t *testing.T) {
	header := strings.Join(QuoteColumns, ",") + "\n"
	tests := []struct {
		name string
		row  string
	}{
		{"zero instrument", "0,1,20240102,,1,2,1,2,1,1,1m"},
		{"bad number", "x,1,20240102,,1,2,1,2,1,1,1m"},
		{"high below low", "1,1,20240102,,5,4,4.5,4.5,1,1,1m"},
		{"close above high", "1,1,20240102,,1,2,1,3,1,1,1m"},
		{"negative volume", "1,1,20240102,,1,2,1,2,-1,1,1m"},
		{"missing grain", "1,1,20240102,,1,2,1,2,1,1,"},
		{"unknown grain", "1,1,20240102,,1,2,1,2,1,1,2x"},
		{"grain wrong case", "1,1,20240102,,1,2,1,2,1,1,1M"},
		{"bad day", "1,1,2024,,1,2,1,2,1,1,1m"},
		{"bad ts", "1,1,20240102,yesterday,1,2,1,2,1,1,1m"},
		{"zero low", "1,1,20240102,,0,2,1,2,1,1,1m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadQuotes(strings.NewReader(header + tt.row + "\n"))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRow), "got %v", err)
			assert.Contains(t, err.Error(), "line 2")
		})
	}
}

func TestReadQuotes_MissingColumn(t *testing.T) {
	_, err := ReadQuotes(strings.NewReader("instrument_id,raw_ts\n1,2\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing column")
}

func TestReadQuotes_Empty(t *testing.T) {
	_, err := ReadQuotes(strings.NewReader(""))
	assert.Error(t, err)
}

func TestReadCalendar(t *testing.T) {
	days, err := ReadCalendar(strings.NewReader("date,session_nbr\n2024-01-02,1\n2024-01-03,2\n"))
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, "2024-01-03", days[1].DateKey())
	assert.Equal(t, 2, days[1].SessionNbr)

	_, err = ReadCalendar(strings.NewReader("date,session_nbr\n2024-01-02,0\n"))
	assert.True(t, errors.Is(err, ErrInvalidRow))

	_, err = ReadCalendar(strings.NewReader("date,session_nbr\n02/01/2024,1\n"))
	assert.True(t, errors.Is(err, ErrInvalidRow))
}

func TestImporter_ImportQuotesInBatches(t *testing.T) {
	ctx := context.Background()
	quotes := memory.NewQuoteStore()
	im := New(quotes, memory.NewSessionCalendarStore(), 2, nil)

	n, err := im.ImportQuotes(ctx, strings.NewReader(quotesCSV))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	got, err := quotes.GetByInstrument(ctx, 1, domain.GrainMinute)
	require.NoError(t, err)
	assert.Len(t, got, 2, "NULL timestamps are not returned")

	// Re-importing the same file collides on (instrument_id, raw_ts).
	n, err = im.ImportQuotes(ctx, strings.NewReader(quotesCSV))
	assert.True(t, errors.Is(err, storage.ErrDuplicateKey))
	assert.Equal(t, 0, n)
}

func TestImporter_InvalidFileWritesNothing(t *testing.T) {
	ctx := context.Background()
	quotes := memory.NewQuoteStore()
	im := New(quotes, memory.NewSessionCalendarStore(), 1, nil)

	data := quotesCSV + "1,1704186180000,20240102,,5,4,4.5,4.5,1,1,1m\n"
	_, err := im.ImportQuotes(ctx, strings.NewReader(data))
	require.Error(t, err)

	ids, err := quotes.ListInstruments(ctx, domain.GrainMinute)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestImporter_ImportCalendar(t *testing.T) {
	ctx := context.Background()
	calendar := memory.NewSessionCalendarStore()
	im := New(memory.NewQuoteStore(), calendar, 0, nil)

	n, err := im.ImportCalendar(ctx, strings.NewReader("date,session_nbr\n2024-01-02,1\n2024-01-03,2\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	days, err := calendar.GetRecent(ctx, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), 5)
	require.NoError(t, err)
	assert.Len(t, days, 2)
}
