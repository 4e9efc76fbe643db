// Package dateparse parses the order dates accepted on the command line into
// ISO 8601 (YYYY-MM-DD) strings and date ranges.
package dateparse

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const layout = "2006-01-02"

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseDate parses input relative to the current time.
//
// Supported formats:
//   - Exact dates: "2025-01-31"
//   - Keywords: "today", "yesterday", "tomorrow", "last-week", "last-month"
//   - Offsets: "-3d", "+1d", "-2w", "-1m"
//   - Day names: "monday" (most recent occurrence, today included)
func ParseDate(input string) (string, error) {
	return ParseDateFrom(input, time.Now())
}

// ParseDateFrom parses input relative to now.
func ParseDateFrom(input string, now time.Time) (string, error) {
	t, err := parse(input, now)
	if err != nil {
		return "", err
	}
	return t.Format(layout), nil
}

func parse(input string, now time.Time) (time.Time, error) {
	input = strings.TrimSpace(strings.ToLower(input))
	if input == "" {
		return time.Time{}, fmt.Errorf("empty date input")
	}
	if t, err := time.ParseInLocation(layout, input, now.Location()); err == nil {
		return t, nil
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch input {
	case "today":
		return today, nil
	case "yesterday":
		return today.AddDate(0, 0, -1), nil
	case "tomorrow":
		return today.AddDate(0, 0, 1), nil
	case "last-week":
		// Monday of the previous week
		back := (int(today.Weekday()) - int(time.Monday) + 7) % 7
		return today.AddDate(0, 0, -back-7), nil
	case "last-month":
		return time.Date(today.Year(), today.Month()-1, 1, 0, 0, 0, 0, now.Location()), nil
	}

	if (input[0] == '+' || input[0] == '-') && len(input) >= 3 {
		n, err := strconv.Atoi(input[1 : len(input)-1])
		if err == nil && n >= 0 {
			if input[0] == '-' {
				n = -n
			}
			switch unit := input[len(input)-1]; unit {
			case 'd':
				return today.AddDate(0, 0, n), nil
			case 'w':
				return today.AddDate(0, 0, n*7), nil
			case 'm':
				return today.AddDate(0, n, 0), nil
			default:
				return time.Time{}, fmt.Errorf("unknown relative unit %q in %q (use d, w, or m)", string(unit), input)
			}
		}
	}

	if target, ok := weekdays[input]; ok {
		back := (int(today.Weekday()) - int(target) + 7) % 7
		return today.AddDate(0, 0, -back), nil
	}

	return time.Time{}, fmt.Errorf("unrecognized date format: %q", input)
}

// Range is an inclusive span of days.
type Range struct {
	Start time.Time // first instant of the first day
	End   time.Time // last instant of the last day
}

// ParseRange parses "FROM..TO" where each side is any ParseDate format. A
// single date yields a one-day range; an empty side defaults to today.
func ParseRange(input string, now time.Time) (Range, error) {
	from, to, found := strings.Cut(input, "..")
	if !found {
		to = from
	}
	if strings.TrimSpace(from) == "" {
		from = "today"
	}
	if strings.TrimSpace(to) == "" {
		to = "today"
	}
	start, err := parse(from, now)
	if err != nil {
		return Range{}, err
	}
	end, err := parse(to, now)
	if err != nil {
		return Range{}, err
	}
	if end.Before(start) {
		return Range{}, fmt.Errorf("range end %s is before start %s", end.Format(layout), start.Format(layout))
	}
	return Range{Start: start, End: end.AddDate(0, 0, 1).Add(-time.Nanosecond)}, nil
}
