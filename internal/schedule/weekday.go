package schedule

import "strings"

// Weekday is one of the seven days, ordered Mon..Sun.
type Weekday int

const (
	Mon Weekday = iota
	Tue
	Wed
	Thu
	Fri
	Sat
	Sun
)

var dayNames = [7]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

var dayFull = [7]string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

func (d Weekday) String() string {
	if d < Mon || d > Sun {
		return "???"
	}
	return dayNames[d]
}

// Full returns the full English name ("Monday"), which reads better in
// headings than the three-letter list form.
func (d Weekday) Full() string {
	if d < Mon || d > Sun {
		return "???"
	}
	return strings.ToUpper(dayFull[d][:1]) + dayFull[d][1:]
}

// ParseWeekday accepts the short ("mon") or full ("monday") English name,
// case-insensitively.
func ParseWeekday(s string) (Weekday, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, false
	}
	for i := range dayNames {
		if s == strings.ToLower(dayNames[i]) || s == dayFull[i] {
			return Weekday(i), true
		}
	}
	return 0, false
}

// DaySet is a fixed-size membership array keyed by Weekday.
// The zero value is the empty set. Being an array, it compares with == and
// copies by value, which keeps entries immutable once stored.
type DaySet [7]bool

// Days builds a set from the given weekdays.
func Days(days ...Weekday) DaySet {
	var s DaySet
	for _, d := range days {
		s.Add(d)
	}
	return s
}

// AllDays returns the full Mon..Sun set.
func AllDays() DaySet {
	return DaySet{true, true, true, true, true, true, true}
}

func (s *DaySet) Add(d Weekday) {
	if d >= Mon && d <= Sun {
		s[d] = true
	}
}

func (s DaySet) Contains(d Weekday) bool {
	return d >= Mon && d <= Sun && s[d]
}

func (s DaySet) Empty() bool {
	for _, ok := range s {
		if ok {
			return false
		}
	}
	return true
}

func (s DaySet) Count() int {
	n := 0
	for _, ok := range s {
		if ok {
			n++
		}
	}
	return n
}

// Intersect returns the days present in both sets.
func (s DaySet) Intersect(o DaySet) DaySet {
	var out DaySet
	for i := range s {
		out[i] = s[i] && o[i]
	}
	return out
}

// List returns the member days in Mon..Sun order.
func (s DaySet) List() []Weekday {
	out := make([]Weekday, 0, 7)
	for i, ok := range s {
		if ok {
			out = append(out, Weekday(i))
		}
	}
	return out
}

// String renders the members in fixed Mon..Sun order, comma separated,
// e.g. "Mon, Wed, Fri".
func (s DaySet) String() string {
	var b strings.Builder
	for i, ok := range s {
		if !ok {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(", ")
		}
		b.WriteString(dayNames[i])
	}
	return b.String()
}
