package schedule

import "testing"

func TestParseWeekday(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want Weekday
		ok   bool
	}{
		{in: "mon", want: Mon, ok: true},
		{in: "MON", want: Mon, ok: true},
		{in: "Wednesday", want: Wed, ok: true},
		{in: " sun ", want: Sun, ok: true},
		{in: "", ok: false},
		{in: "funday", ok: false},
		{in: "m", ok: false},
	}

	for _, tt := range tests {
		got, ok := ParseWeekday(tt.in)
		if ok != tt.ok {
			t.Fatalf("ParseWeekday(%q) ok = %v, want %v", tt.in, ok, tt.ok)
		}
		if ok && got != tt.want {
			t.Fatalf("ParseWeekday(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestWeekdayNames(t *testing.T) {
	t.Parallel()
	if got := Wed.String(); got != "Wed" {
		t.Fatalf("String = %q, want %q", got, "Wed")
	}
	if got := Wed.Full(); got != "Wednesday" {
		t.Fatalf("Full = %q, want %q", got, "Wednesday")
	}
	if got := Weekday(42).Full(); got != "???" {
		t.Fatalf("Full out of range = %q, want %q", got, "???")
	}
}

func TestDaySetOps(t *testing.T) {
	t.Parallel()
	s := Days(Mon, Wed, Fri)
	if s.Empty() {
		t.Fatal("set with members reported empty")
	}
	if s.Count() != 3 {
		t.Fatalf("Count = %d, want 3", s.Count())
	}
	if !s.Contains(Wed) || s.Contains(Tue) {
		t.Fatal("Contains mismatch")
	}
	if got := s.String(); got != "Mon, Wed, Fri" {
		t.Fatalf("String = %q", got)
	}

	o := Days(Wed, Thu, Fri, Sat)
	shared := s.Intersect(o)
	if got, want := shared, Days(Wed, Fri); got != want {
		t.Fatalf("Intersect = %v, want %v", got, want)
	}

	var empty DaySet
	if !empty.Empty() || empty.Count() != 0 || empty.String() != "" {
		t.Fatal("zero DaySet must be empty")
	}

	if all := AllDays(); all.Count() != 7 {
		t.Fatalf("AllDays Count = %d, want 7", all.Count())
	}

	list := s.List()
	if len(list) != 3 || list[0] != Mon || list[1] != Wed || list[2] != Fri {
		t.Fatalf("List = %v", list)
	}
}
