package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "gorm", err: fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), want: true},
		{name: "pg", err: &pgconn.PgError{Code: "23505"}, want: true},
		{name: "pg other", err: &pgconn.PgError{Code: "23503"}, want: false},
		{name: "sqlite", err: errors.New("UNIQUE constraint failed: payments.provider_event_id"), want: true},
		{name: "other", err: errors.New("connection refused"), want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsDuplicateKeyErr(tc.err); got != tc.want {
				t.Fatalf("IsDuplicateKeyErr(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestDialect(t *testing.T) {
	for _, dbType := range []string{"oracle", "mysql"} {
		if _, err := Dialect(Config{Type: dbType}); err == nil {
			t.Fatalf("expected unsupported type error for %s", dbType)
		}
	}
	d, err := Dialect(Config{Type: "postgres", Host: "localhost", Port: "5432", Name: "promptly", User: "postgres"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Name() != "postgres" {
		t.Fatalf("expected postgres dialector, got %s", d.Name())
	}
}

func TestURL(t *testing.T) {
	got := URL(Config{User: "u", Password: "p", Host: "h", Port: "5432", Name: "n"})
	want := "postgres://u:p@h:5432/n?sslmode=disable"
	if got != want {
		t.Fatalf("URL() = %q, want %q", got, want)
	}
}
