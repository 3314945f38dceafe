package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNormalizeLimit(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{0, DefaultLimit},
		{-5, DefaultLimit},
		{1, 1},
		{MaxLimit, MaxLimit},
		{MaxLimit + 50, MaxLimit},
	}
	for _, tc := range tests {
		if got := NormalizeLimit(tc.in); got != tc.want {
			t.Fatalf("NormalizeLimit(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
	if got := LimitWithBuffer(10); got != 11 {
		t.Fatalf("LimitWithBuffer(10) = %d, want 11", got)
	}
}

func TestCursorRoundTrip(t *testing.T) {
	cursor := Cursor{
		CreatedAt: time.Date(2026, 2, 14, 9, 30, 15, 123456789, time.UTC),
		ID:        uuid.New(),
	}

	encoded := EncodeCursor(cursor)
	parsed, err := ParseCursor(encoded)
	if err != nil {
		t.Fatalf("ParseCursor: %v", err)
	}
	if parsed == nil {
		t.Fatal("expected cursor")
	}
	if !parsed.CreatedAt.Equal(cursor.CreatedAt) {
		t.Fatalf("timestamp mismatch: %v != %v", parsed.CreatedAt, cursor.CreatedAt)
	}
	if parsed.ID != cursor.ID {
		t.Fatal("id mismatch")
	}
}

func TestParseCursorEmptyIsNil(t *testing.T) {
	for _, value := range []string{"", "   "} {
		cursor, err := ParseCursor(value)
		if err != nil {
			t.Fatalf("ParseCursor(%q): %v", value, err)
		}
		if cursor != nil {
			t.Fatalf("expected nil cursor for %q", value)
		}
	}
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	for _, value := range []string{
		"%%%not-base64%%%",
		"bm8tcGlwZQ==",                 // "no-pipe"
		"bm90LWEtdGltZXxhbHNvLW5vdA==", // "not-a-time|also-not"
	} {
		if _, err := ParseCursor(value); err == nil {
			t.Fatalf("expected error for %q", value)
		}
	}
}
