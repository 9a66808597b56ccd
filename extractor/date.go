package extractor

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

var relativeDateRe = regexp.MustCompile(
	`^(?:edited\s+)?(a|an|one|\d+)\s+(second|minute|hour|day|week|month|year)s?\s+ago$`)

// ParseReviewDate resolves review date text to a calendar date (midnight in
// now's location). Relative expressions ("3 weeks ago", "a month ago") are
// subtracted from now; absolute dates pass through; anything unparsable
// resolves to today so that a bad date never drops the review.
func ParseReviewDate(text string, now time.Time) time.Time {
	t, ok := parseDate(text, now)
	if !ok {
		t = now
	}
	return startOfDay(t)
}

func parseDate(text string, now time.Time) (time.Time, bool) {
	s := strings.ToLower(strings.Join(strings.Fields(text), " "))
	s = strings.TrimPrefix(s, "edited ")
	if s == "" {
		return time.Time{}, false
	}

	switch s {
	case "today", "just now", "a moment ago", "moments ago":
		return now, true
	case "yesterday":
		return now.AddDate(0, 0, -1), true
	}

	if m := relativeDateRe.FindStringSubmatch(s); m != nil {
		n := 1
		if v, err := strconv.Atoi(m[1]); err == nil {
			n = v
		}
		return subtractUnit(now, n, m[2]), true
	}

	t, err := dateparse.ParseIn(text, now.Location())
	if err != nil {
		return time.Time{}, false
	}
	if t.After(now) {
		// Reviews are never dated in the future; this is a misparse.
		return time.Time{}, false
	}
	return t, true
}

func subtractUnit(now time.Time, n int, unit string) time.Time {
	switch unit {
	case "second":
		return now.Add(-time.Duration(n) * time.Second)
	case "minute":
		return now.Add(-time.Duration(n) * time.Minute)
	case "hour":
		return now.Add(-time.Duration(n) * time.Hour)
	case "day":
		return now.AddDate(0, 0, -n)
	case "week":
		return now.AddDate(0, 0, -7*n)
	case "month":
		return now.AddDate(0, -n, 0)
	default: // year
		return now.AddDate(-n, 0, 0)
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
