package fixtures

import (
	"context"
	"testing"
	"time"

	"accumulation-lab/internal/domain"
	"accumulation-lab/internal/storage/memory"
)

func TestCalendar_SkipsWeekends(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sessions = 6
	days := Calendar(cfg) // 2024-01-01 is a Monday

	if len(days) != 6 {
		t.Fatalf("expected 6 sessions, got %d", len(days))
	}
	if got := days[5].DateKey(); got != "2024-01-08" {
		t.Errorf("expected sixth session on 2024-01-08, got %s", got)
	}
	for i, d := range days {
		if d.SessionNbr != i+1 {
			t.Errorf("session %d: expected nbr %d, got %d", i, i+1, d.SessionNbr)
		}
		if wd := d.Date.Weekday(); wd == time.Saturday || wd == time.Sunday {
			t.Errorf("session %s falls on a weekend", d.DateKey())
		}
	}
}

func TestQuotes_DeterministicAndWellFormed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sessions = 2
	cfg.BarsPerSession = 30

	a := Quotes(cfg)
	b := Quotes(cfg)

	if want := cfg.Instruments * cfg.Sessions * cfg.BarsPerSession; len(a) != want {
		t.Fatalf("expected %d quotes, got %d", want, len(a))
	}
	for i := range a {
		if !a[i].Close.Equal(b[i].Close) || a[i].RawTs != b[i].RawTs {
			t.Fatalf("quote %d differs between runs", i)
		}
		q := a[i]
		if q.High.LessThan(q.Low) {
			t.Errorf("quote %d: high %s < low %s", i, q.High, q.Low)
		}
		if q.Grain != domain.GrainMinute || q.Ts == nil {
			t.Errorf("quote %d: unexpected grain %q or nil ts", i, q.Grain)
		}
	}
}

func TestLoad_MemoryStores(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Sessions = 3
	cfg.BarsPerSession = 10

	quotes := memory.NewQuoteStore()
	calendar := memory.NewSessionCalendarStore()
	if err := Load(ctx, cfg, quotes, calendar); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	ids, err := quotes.ListInstruments(ctx, domain.GrainMinute)
	if err != nil {
		t.Fatalf("ListInstruments failed: %v", err)
	}
	if len(ids) != cfg.Instruments {
		t.Errorf("expected %d instruments, got %d", cfg.Instruments, len(ids))
	}

	days, err := calendar.GetRecent(ctx, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), 10)
	if err != nil {
		t.Fatalf("GetRecent failed: %v", err)
	}
	if len(days) != 3 {
		t.Errorf("expected 3 sessions, got %d", len(days))
	}
}
