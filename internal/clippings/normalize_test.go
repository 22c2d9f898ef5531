package clippings

import (
	"testing"
	"time"
)

func TestParseAddedDate_Formats(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
	}{
		{"Tuesday, April 15, 2025 10:16:21 PM", time.Date(2025, 4, 15, 22, 16, 21, 0, time.UTC)},
		{"Saturday, 26 March 2016 18:37:26", time.Date(2016, 3, 26, 18, 37, 26, 0, time.UTC)},
		{"Monday, January 1, 2024 10:00:00 AM", time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)},
		{"2024-01-01T10:00:00Z", time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)},
		{"2024-01-01 10:00:00", time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)},
		{"2024-01-01", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		got, ok := ParseAddedDate(tt.input)
		if !ok {
			t.Errorf("ParseAddedDate(%q): no format matched", tt.input)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseAddedDate(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestParseAddedDate_Invalid(t *testing.T) {
	for _, input := range []string{"", "yesterday", "Monday", "13/32/2024"} {
		if _, ok := ParseAddedDate(input); ok {
			t.Errorf("ParseAddedDate(%q): expected failure", input)
		}
	}
}

func TestParseLocationRange(t *testing.T) {
	loc := ParseLocationRange("512-514")
	if loc == nil || loc.Start != 512 || loc.End == nil || *loc.End != 514 {
		t.Fatalf("unexpected range: %+v", loc)
	}
	if loc.EffectiveEnd() != 514 {
		t.Errorf("expected effective end 514, got %d", loc.EffectiveEnd())
	}

	single := ParseLocationRange("307")
	if single == nil || single.Start != 307 || single.End != nil {
		t.Fatalf("unexpected single location: %+v", single)
	}
	if single.EffectiveEnd() != 307 {
		t.Errorf("expected effective end 307, got %d", single.EffectiveEnd())
	}
}

func TestParseLocationRange_Invalid(t *testing.T) {
	for _, input := range []string{"", "abc", "12-abc", "-5", "20-10"} {
		if loc := ParseLocationRange(input); loc != nil {
			t.Errorf("ParseLocationRange(%q) = %+v, want nil", input, loc)
		}
	}
}
