package domain

import (
	"testing"
	"time"
)

func TestFirstOfMonth(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*60*60)
	cases := []struct {
		in   time.Time
		want time.Time
	}{
		{in: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), want: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)},
		{in: time.Date(2025, 2, 28, 23, 59, 59, 0, time.UTC), want: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)},
		// 2025-03-01 03:00 at UTC+7 is still February in UTC.
		{in: time.Date(2025, 3, 1, 3, 0, 0, 0, loc), want: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		if got := FirstOfMonth(tc.in); !got.Equal(tc.want) {
			t.Fatalf("FirstOfMonth(%s) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestBalanceCovers(t *testing.T) {
	if !(Balance{Credits: 5}).Covers(5) {
		t.Fatalf("expected exact balance to cover cost")
	}
	if (Balance{Credits: 4}).Covers(5) {
		t.Fatalf("expected short balance to be rejected")
	}
	if !(Balance{Credits: 0, Unlimited: true}).Covers(1000) {
		t.Fatalf("expected unlimited balance to cover any cost")
	}
}
