package migrations

import (
	"strings"
	"testing"
)

func TestLoad_PostgresInLexicalOrder(t *testing.T) {
	files, err := load(PostgresFS, "postgres")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	want := []string{"001_quotes", "002_session_calendar", "003_indicator_snapshot", "004_run_log"}
	if len(files) != len(want) {
		t.Fatalf("Expected %d migrations, got %d", len(want), len(files))
	}
	for i, w := range want {
		if files[i].Version != w {
			t.Errorf("Migration %d: expected %s, got %s", i, w, files[i].Version)
		}
	}
	if !strings.Contains(files[2].SQL, "UNIQUE (instrument_id, timeframe, ts)") {
		t.Error("indicator_snapshot migration must declare the upsert key")
	}
}

func TestClickhouseMigrations_SplitCleanly(t *testing.T) {
	files, err := load(ClickhouseFS, "clickhouse")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("Expected at least one clickhouse migration")
	}

	for _, m := range files {
		if err := validateNoSemicolonInStrings(m.SQL); err != nil {
			t.Errorf("%s: %v", m.Version, err)
		}
		for _, stmt := range splitStatements(m.SQL) {
			if strings.HasPrefix(stmt, "--") {
				t.Errorf("%s: statement starts with a comment: %q", m.Version, stmt)
			}
		}
	}
}

func TestSplitStatements(t *testing.T) {
	sql := `
-- first
CREATE TABLE a (x Int8);

-- second
CREATE TABLE b (
    y Int8
);
`
	stmts := splitStatements(sql)
	if len(stmts) != 2 {
		t.Fatalf("Expected 2 statements, got %d: %q", len(stmts), stmts)
	}
	if stmts[0] != "CREATE TABLE a (x Int8)" {
		t.Errorf("Unexpected first statement: %q", stmts[0])
	}
}

func TestValidateNoSemicolonInStrings(t *testing.T) {
	tests := []struct {
		name    string
		sql     string
		wantErr bool
	}{
		{"plain", "SELECT 1;", false},
		{"semicolon outside", "SELECT 'a'; SELECT 'b';", false},
		{"semicolon inside", "SELECT 'a;b';", true},
		{"escaped quote", "SELECT 'it''s'; SELECT 1;", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateNoSemicolonInStrings(tt.sql)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateNoSemicolonInStrings(%q) error = %v, wantErr %v", tt.sql, err, tt.wantErr)
			}
		})
	}
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://default:@localhost:9000/analytics")
	if err != nil {
		t.Fatalf("databaseFromDSN failed: %v", err)
	}
	if db != "analytics" {
		t.Errorf("Expected analytics, got %s", db)
	}

	if _, err := databaseFromDSN("clickhouse://localhost:9000"); err == nil {
		t.Error("Expected error for DSN without database")
	}
}
