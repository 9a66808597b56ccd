package extractor

import (
	"testing"
	"time"
)

func TestParseReviewDate(t *testing.T) {
	now := time.Date(2026, 10, 17, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{"days", "3 days ago", day(2026, 10, 14)},
		{"a week", "a week ago", day(2026, 10, 10)},
		{"weeks", "2 weeks ago", day(2026, 10, 3)},
		{"months", "4 months ago", day(2026, 6, 17)},
		{"a year", "a year ago", day(2025, 10, 17)},
		{"hours", "5 hours ago", day(2026, 10, 17)},
		{"edited prefix", "Edited 3 months ago", day(2026, 7, 17)},
		{"mixed case", "2 Days Ago", day(2026, 10, 15)},
		{"yesterday", "yesterday", day(2026, 10, 16)},
		{"today", "today", day(2026, 10, 17)},
		{"iso", "2025-12-01", day(2025, 12, 1)},
		{"long form", "March 3, 2024", day(2024, 3, 3)},
		{"unparsable", "around the holidays", day(2026, 10, 17)},
		{"empty", "", day(2026, 10, 17)},
		{"future", "2030-01-01", day(2026, 10, 17)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseReviewDate(tt.in, now)
			if !got.Equal(tt.want) {
				t.Errorf("ParseReviewDate(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
