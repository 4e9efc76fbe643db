package dateparse

import (
	"testing"
	"time"
)

// Fixed reference time: Friday, 2025-01-31 15:30 UTC
var testNow = time.Date(2025, 1, 31, 15, 30, 0, 0, time.UTC)

func TestParseDate_Formats(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"2025-01-15", "2025-01-15"},
		{"today", "2025-01-31"},
		{"yesterday", "2025-01-30"},
		{"tomorrow", "2025-02-01"},
		{"-0d", "2025-01-31"},
		{"-3d", "2025-01-28"},
		{"+1d", "2025-02-01"},
		{"-2w", "2025-01-17"},
		{"-1m", "2024-12-31"},
		{"last-week", "2025-01-20"},
		{"last-month", "2024-12-01"},
		{"friday", "2025-01-31"},
		{"monday", "2025-01-27"},
		{"Saturday", "2025-01-25"},
		{"  today  ", "2025-01-31"},
	}
	for _, tt := range tests {
		got, err := ParseDateFrom(tt.input, testNow)
		if err != nil {
			t.Errorf("ParseDateFrom(%q): unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDateFrom(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestParseDate_Errors(t *testing.T) {
	invalids := []string{
		"",
		"next year",
		"-3x",
		"notaday",
		"2025/01/31",
		"-d",
		"+w",
	}
	for _, input := range invalids {
		if _, err := ParseDateFrom(input, testNow); err == nil {
			t.Errorf("ParseDateFrom(%q): expected error, got nil", input)
		}
	}
}

func TestParseRange(t *testing.T) {
	r, err := ParseRange("-7d..today", testNow)
	if err != nil {
		t.Fatalf("ParseRange: %v", err)
	}
	if got := r.Start.Format(layout); got != "2025-01-24" {
		t.Errorf("start = %s", got)
	}
	if !r.End.After(testNow) || r.End.Format(layout) != "2025-01-31" {
		t.Errorf("end = %v, want end of 2025-01-31", r.End)
	}

	single, err := ParseRange("2025-01-15", testNow)
	if err != nil {
		t.Fatalf("single day: %v", err)
	}
	if single.Start.Format(layout) != "2025-01-15" || single.End.Format(layout) != "2025-01-15" {
		t.Errorf("single day range = %v..%v", single.Start, single.End)
	}

	open, err := ParseRange("2025-01-01..", testNow)
	if err != nil {
		t.Fatalf("open end: %v", err)
	}
	if open.End.Format(layout) != "2025-01-31" {
		t.Errorf("open end defaults to today, got %v", open.End)
	}
}

func TestParseRange_Errors(t *testing.T) {
	for _, input := range []string{"today..-3d", "bogus..today", "today..bogus"} {
		if _, err := ParseRange(input, testNow); err == nil {
			t.Errorf("ParseRange(%q): expected error", input)
		}
	}
}

func TestParseDate_UsesCurrentTime(t *testing.T) {
	result, err := ParseDate("today")
	if err != nil {
		t.Fatalf("ParseDate('today'): unexpected error: %v", err)
	}
	if expected := time.Now().Format("2006-01-02"); result != expected {
		t.Errorf("ParseDate('today') = %q, want %q", result, expected)
	}
}
