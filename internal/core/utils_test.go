package core

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"2025-05-15", "2025-05-15", false},
		{"2023-01-01", "2023-01-01", false},
		{"invalid", "", true},
		{"05/15/2025", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDate(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseDate(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if !tt.wantErr && got.Format(DateFmt) != tt.want {
				t.Errorf("ParseDate(%q) = %v, want %v", tt.input, got.Format(DateFmt), tt.want)
			}
		})
	}
}

func TestMonthRange(t *testing.T) {
	tests := []struct {
		year      int
		month     int
		wantFirst string
		wantLast  string
	}{
		{2025, 5, "2025-05-01", "2025-05-31"},
		{2024, 2, "2024-02-01", "2024-02-29"}, // leap year
		{2025, 2, "2025-02-01", "2025-02-28"},
		{2025, 12, "2025-12-01", "2025-12-31"},
	}

	for _, tt := range tests {
		first, last := MonthRange(tt.year, tt.month)
		if FormatDate(first) != tt.wantFirst {
			t.Errorf("MonthRange(%d, %d) first = %s, want %s", tt.year, tt.month, FormatDate(first), tt.wantFirst)
		}
		if FormatDate(last) != tt.wantLast {
			t.Errorf("MonthRange(%d, %d) last = %s, want %s", tt.year, tt.month, FormatDate(last), tt.wantLast)
		}
	}
}

func TestDaysBetween(t *testing.T) {
	tests := []struct {
		start string
		end   string
		want  int
	}{
		{"2025-01-01", "2025-01-01", 1},
		{"2025-01-01", "2025-01-10", 10},
		{"2025-01-01", "2025-01-31", 31},
	}

	for _, tt := range tests {
		s, _ := ParseDate(tt.start)
		e, _ := ParseDate(tt.end)
		if got := DaysBetween(s, e); got != tt.want {
			t.Errorf("DaysBetween(%s, %s) = %d, want %d", tt.start, tt.end, got, tt.want)
		}
	}
}

func TestGetTimeRange(t *testing.T) {
	// Tuesday 2025-05-13
	now := time.Date(2025, 5, 13, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		period    string
		wantStart string
		wantEnd   string
		wantErr   bool
	}{
		{"today", "2025-05-13", "2025-05-13", false},
		{"yesterday", "2025-05-12", "2025-05-12", false},
		{"this-week", "2025-05-12", "2025-05-18", false},
		{"last-week", "2025-05-05", "2025-05-11", false},
		{"this-month", "2025-05-01", "2025-05-31", false},
		{"last-month", "2025-04-01", "2025-04-30", false},
		{"this-quarter", "2025-04-01", "2025-06-30", false},
		{"last-quarter", "2025-01-01", "2025-03-31", false},
		{"bogus", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			start, end, err := GetTimeRange(tt.period, now)
			if (err != nil) != tt.wantErr {
				t.Errorf("GetTimeRange(%q) error = %v, wantErr %v", tt.period, err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if FormatDate(start) != tt.wantStart || FormatDate(end) != tt.wantEnd {
				t.Errorf("GetTimeRange(%q) = %s..%s, want %s..%s", tt.period, FormatDate(start), FormatDate(end), tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestGetTimeRangeLastQuarterAcrossYear(t *testing.T) {
	now := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)
	start, end, err := GetTimeRange("last-quarter", now)
	if err != nil {
		t.Fatalf("GetTimeRange failed: %v", err)
	}
	if FormatDate(start) != "2024-10-01" || FormatDate(end) != "2024-12-31" {
		t.Errorf("last-quarter = %s..%s, want 2024-10-01..2024-12-31", FormatDate(start), FormatDate(end))
	}
}

func TestMonthsInRange(t *testing.T) {
	tests := []struct {
		name  string
		start string
		end   string
		want  [][2]int
	}{
		{"single month", "2025-05-03", "2025-05-28", [][2]int{{2025, 5}}},
		{"adjacent months", "2025-05-20", "2025-06-10", [][2]int{{2025, 5}, {2025, 6}}},
		{"across year boundary", "2024-11-15", "2025-01-05", [][2]int{{2024, 11}, {2024, 12}, {2025, 1}}},
		{"same day", "2025-02-01", "2025-02-01", [][2]int{{2025, 2}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, _ := ParseDate(tt.start)
			end, _ := ParseDate(tt.end)
			got := MonthsInRange(start, end)
			if len(got) != len(tt.want) {
				t.Fatalf("MonthsInRange(%s, %s) = %v, want %v", tt.start, tt.end, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("MonthsInRange(%s, %s)[%d] = %v, want %v", tt.start, tt.end, i, got[i], tt.want[i])
				}
			}
		})
	}
}
