package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestDescribeSQL(t *testing.T) {
	cases := []struct {
		sql   string
		op    string
		table string
	}{
		{sql: `UPDATE accounts SET credits = credits - 1 WHERE id = 1`, op: "UPDATE", table: "accounts"},
		{sql: `SELECT id FROM "accounts" WHERE id = 1`, op: "SELECT", table: "accounts"},
		{sql: `INSERT INTO payments (id) VALUES (1) ON CONFLICT DO NOTHING`, op: "INSERT", table: "payments"},
		{sql: `WITH due AS (SELECT 1) DELETE FROM deferred_debits`, op: "SELECT", table: ""},
		{sql: ``, op: "UNKNOWN", table: ""},
	}
	for _, tc := range cases {
		op, table := describeSQL(tc.sql)
		if op != tc.op {
			t.Fatalf("describeSQL(%q) op = %q, want %q", tc.sql, op, tc.op)
		}
		if tc.table != "" && table != tc.table {
			t.Fatalf("describeSQL(%q) table = %q, want %q", tc.sql, table, tc.table)
		}
	}
}

func TestParseGormLevel(t *testing.T) {
	if got := ParseGormLevel("silent"); got != gormlogger.Silent {
		t.Fatalf("expected silent, got %v", got)
	}
	if got := ParseGormLevel("bogus"); got != gormlogger.Warn {
		t.Fatalf("expected warn default, got %v", got)
	}
}

func TestGormLoggerOmitsSQLUnlessEnabled(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	cfg := DefaultGormLoggerConfig()
	cfg.Level = gormlogger.Info
	cfg.Base = zap.New(core)

	query := func() (string, int64) { return `UPDATE accounts SET credits = 40 WHERE id = 7`, 1 }

	NewGormLogger(cfg).Trace(context.Background(), time.Now(), query, nil)
	cfg.LogSQL = true
	NewGormLogger(cfg).Trace(context.Background(), time.Now(), query, nil)

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if _, ok := entries[0].ContextMap()["sql"]; ok {
		t.Fatalf("sql text logged while LogSQL is off")
	}
	if got := entries[1].ContextMap()["sql"]; got != `UPDATE accounts SET credits = 40 WHERE id = 7` {
		t.Fatalf("sql = %v", got)
	}
	if got := entries[1].ContextMap()["table"]; got != "accounts" {
		t.Fatalf("table = %v", got)
	}
}

func TestGormLoggerErrorsAndNotFound(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	cfg := DefaultGormLoggerConfig()
	cfg.IgnoreRecordNotFound = true
	cfg.Base = zap.New(core)
	l := NewGormLogger(cfg)

	query := func() (string, int64) { return `SELECT * FROM accounts WHERE id = 9`, 0 }
	l.Trace(context.Background(), time.Now(), query, gormlogger.ErrRecordNotFound)
	if logs.Len() != 0 {
		t.Fatalf("record not found should be ignored")
	}

	l.Trace(context.Background(), time.Now(), query, errors.New("boom"))
	if logs.FilterLevelExact(zapcore.ErrorLevel).Len() != 1 {
		t.Fatalf("expected one error entry")
	}

	silent := l.LogMode(gormlogger.Silent)
	silent.Error(context.Background(), "dropped")
	if logs.Len() != 1 {
		t.Fatalf("silent mode still logged")
	}
}
