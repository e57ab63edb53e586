package transcript

import (
	"math"
	"testing"
)

func TestFormatTimestamp(t *testing.T) {
	t.Parallel()
	tests := []struct {
		sec  float64
		want string
	}{
		{0, "00:00:00.000"},
		{5.5, "00:00:05.500"},
		{65.25, "00:01:05.250"},
		{3600, "01:00:00.000"},
		{3725.042, "01:02:05.042"},
		{-3, "00:00:00.000"},
	}
	for _, tt := range tests {
		if got := FormatTimestamp(tt.sec); got != tt.want {
			t.Errorf("FormatTimestamp(%v) = %q, want %q", tt.sec, got, tt.want)
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want float64
	}{
		{"00:00:05.500", 5.5},
		{"01:02:05.042", 3725.042},
		{"02:30", 150},
		{"42", 42},
		{"  00:01:00.000  ", 60},
	}
	for _, tt := range tests {
		got, err := ParseTimestamp(tt.in)
		if err != nil {
			t.Errorf("ParseTimestamp(%q): %v", tt.in, err)
			continue
		}
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseTimestampRejectsGarbage(t *testing.T) {
	t.Parallel()
	for _, in := range []string{"", "ab:cd", "1:2:3:4x"} {
		if _, err := ParseTimestamp(in); err == nil {
			t.Errorf("ParseTimestamp(%q) accepted", in)
		}
	}
}

func TestTimestampRoundTrip(t *testing.T) {
	t.Parallel()
	for _, sec := range []float64{0, 1.001, 59.999, 61.5, 3599.25, 7322.042} {
		got, err := ParseTimestamp(FormatTimestamp(sec))
		if err != nil {
			t.Fatalf("round trip %v: %v", sec, err)
		}
		if math.Abs(got-sec) > 0.001 {
			t.Errorf("round trip %v = %v", sec, got)
		}
	}
}
