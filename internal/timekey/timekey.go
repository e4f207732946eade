// Package timekey gives orders a total time order and unique identifiers
// regardless of how the spreadsheet stored the underlying cells.
//
// Timestamps come back from the workbook in whatever shape the last editor
// left them: RFC3339, ISO-ish strings, day-first locale strings with 2- or
// 4-digit years, time-first variants, or raw epoch milliseconds. Everything
// funnels through Normalize before any comparison.
package timekey

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Layout for timestamps this code writes itself. Reads still accept the
// full layout list below because operators edit cells by hand.
const CanonicalLayout = "2006-01-02 15:04:05"

var layouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	CanonicalLayout,
	"2006-01-02",
	"2/1/2006 15:04:05",
	"2/1/2006 15:04",
	"2/1/2006",
	"2/1/06 15:04:05",
	"2/1/06 15:04",
	"2/1/06",
	"15:04:05 2/1/2006",
	"15:04 2/1/2006",
}

// Normalize converts a heterogeneous timestamp value into a time.Time.
// A value that cannot be parsed at all yields time.Now(): the input was
// already corrupt, and a coarse timestamp keeps the row usable instead of
// failing the whole scan. Callers must tolerate that fallback.
func Normalize(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case int64:
		return time.UnixMilli(t)
	case int:
		return time.UnixMilli(int64(t))
	case float64:
		return time.UnixMilli(int64(t))
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Now()
		}
		for _, layout := range layouts {
			if parsed, err := time.ParseInLocation(layout, s, time.Local); err == nil {
				return parsed
			}
		}
		// Epoch milliseconds written as text.
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms > 0 {
			return time.UnixMilli(ms)
		}
		return time.Now()
	default:
		return time.Now()
	}
}

// DayKey returns the local calendar-day key (YYYY-MM-DD) for t.
// Daily revenue is a single-timezone, small-business concept, so the wall
// clock date is used rather than UTC.
func DayKey(t time.Time) string {
	return t.In(time.Local).Format("2006-01-02")
}

// DayWindow returns the local [start, end) window for a day key.
func DayWindow(key string) (start, end time.Time, err error) {
	start, err = time.ParseInLocation("2006-01-02", key, time.Local)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, start.AddDate(0, 0, 1), nil
}

// MonthStart returns the first instant of t's local month.
func MonthStart(t time.Time) time.Time {
	t = t.In(time.Local)
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.Local)
}

// NewID builds a row identifier from a base-36 millisecond timestamp and a
// random fragment. Two clients creating orders in the same millisecond
// still get distinct ids without a central sequence.
func NewID() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 36) + "-" + uuid.NewString()[:8]
}

// ParseAmount reads an amount cell that may hold a number or a formatted
// string ("100.000 ₫", "1,500"). Non-digit runes are stripped before
// parsing; garbage and negative values collapse to 0, never an error.
func ParseAmount(v any) int64 {
	var n int64
	switch a := v.(type) {
	case int64:
		n = a
	case int:
		n = int64(a)
	case float64:
		n = int64(a)
	case string:
		var digits strings.Builder
		for _, r := range a {
			if r >= '0' && r <= '9' {
				digits.WriteRune(r)
			}
		}
		if digits.Len() == 0 {
			return 0
		}
		parsed, err := strconv.ParseInt(digits.String(), 10, 64)
		if err != nil {
			return 0
		}
		n = parsed
	default:
		return 0
	}
	if n < 0 {
		return 0
	}
	return n
}
