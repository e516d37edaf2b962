package schedule

import (
	"fmt"
	"regexp"
	"strconv"
)

// TimeOfDay is a clock time expressed as real-valued hours since midnight,
// e.g. 13:30 -> 13.5. Minute precision; always in [0, 24).
type TimeOfDay float64

// reTime accepts 24-hour HH:MM: hour 0-23 with optional leading zero,
// minute exactly two digits. No surrounding whitespace, no extras.
var reTime = regexp.MustCompile(`^([01]?\d|2[0-3]):([0-5]\d)$`)

// ParseTime converts "HH:MM" text into a TimeOfDay. Any non-conforming
// input (out-of-range parts, single-digit minutes, missing colon, garbage)
// fails with *FormatError.
func ParseTime(s string) (TimeOfDay, error) {
	m := reTime.FindStringSubmatch(s)
	if m == nil {
		return 0, &FormatError{Input: s}
	}
	hh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	return TimeOfDay(float64(hh) + float64(mm)/60), nil
}

// String formats the value back to zero-padded "HH:MM". The minute part is
// rounded, so it is an exact inverse for values produced by ParseTime;
// arbitrary floats may land on the nearest minute.
func (t TimeOfDay) String() string {
	h := int(t)
	m := int((float64(t)-float64(h))*60 + 0.5)
	return fmt.Sprintf("%02d:%02d", h, m)
}
