package schedule

import (
	"errors"
	"math"
	"testing"
)

func TestParseTimeValues(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want float64
	}{
		{name: "half past one", in: "13:30", want: 13.5},
		{name: "midnight", in: "00:00", want: 0},
		{name: "last minute", in: "23:59", want: 23 + 59.0/60},
		{name: "no leading zero", in: "9:30", want: 9.5},
		{name: "leading zero", in: "09:05", want: 9 + 5.0/60},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTime(tt.in)
			if err != nil {
				t.Fatalf("ParseTime(%q) error: %v", tt.in, err)
			}
			if math.Abs(float64(got)-tt.want) > 1e-9 {
				t.Fatalf("ParseTime(%q) = %v, want %v", tt.in, float64(got), tt.want)
			}
		})
	}
}

func TestParseTimeRejects(t *testing.T) {
	t.Parallel()
	bad := []string{
		"24:00",
		"9:5",
		"ab:cd",
		"",
		"12:60",
		"12",
		"12:",
		":30",
		"12:345",
		"1200",
		" 9:30",
		"9:30 ",
		"12:30pm",
		"-1:00",
	}

	for _, in := range bad {
		in := in
		t.Run("reject "+in, func(t *testing.T) {
			_, err := ParseTime(in)
			if err == nil {
				t.Fatalf("ParseTime(%q) accepted, want FormatError", in)
			}
			var fe *FormatError
			if !errors.As(err, &fe) {
				t.Fatalf("ParseTime(%q) error type %T, want *FormatError", in, err)
			}
			if fe.Error() != "Time must be in HH:MM 24-hour format" {
				t.Fatalf("unexpected message: %q", fe.Error())
			}
		})
	}
}

func TestTimeOfDayRoundTrip(t *testing.T) {
	t.Parallel()
	// Canonical zero-padded input must survive parse->format unchanged,
	// including minutes like :10 whose float form is not exact.
	for h := 0; h < 24; h++ {
		for m := 0; m < 60; m++ {
			in := fmtHHMM(h, m)
			v, err := ParseTime(in)
			if err != nil {
				t.Fatalf("ParseTime(%q) error: %v", in, err)
			}
			if got := v.String(); got != in {
				t.Fatalf("round trip %q -> %q", in, got)
			}
		}
	}
}

func fmtHHMM(h, m int) string {
	digits := func(v int) string {
		return string([]byte{byte('0' + v/10), byte('0' + v%10)})
	}
	return digits(h) + ":" + digits(m)
}
