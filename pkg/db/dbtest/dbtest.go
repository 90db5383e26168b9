// Package dbtest opens throwaway sqlite databases for repository tests.
package dbtest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var seq atomic.Int64

// Open returns an isolated in-memory database. Each call gets its own
// shared-cache namespace so parallel packages never see each other's rows.
// The pool is pinned to one connection; SQLite serializes writers anyway.
func Open(t testing.TB, ddl ...string) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:promptly_%d?mode=memory&cache=shared", seq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	stripRowLocks(db)

	for _, stmt := range ddl {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("exec ddl: %v", err)
		}
	}
	return db
}

// stripRowLocks drops FOR UPDATE clauses SQLite cannot parse.
func stripRowLocks(db *gorm.DB) {
	strip := func(tx *gorm.DB) {
		sql := tx.Statement.SQL.String()
		if !strings.Contains(sql, "FOR UPDATE") {
			return
		}
		sql = strings.ReplaceAll(sql, " FOR UPDATE SKIP LOCKED", "")
		sql = strings.ReplaceAll(sql, " FOR UPDATE", "")
		tx.Statement.SQL.Reset()
		tx.Statement.SQL.WriteString(sql)
	}
	_ = db.Callback().Query().Before("gorm:query").Register("dbtest:strip_row_locks", strip)
	_ = db.Callback().Row().Before("gorm:row").Register("dbtest:strip_row_locks_row", strip)
}
