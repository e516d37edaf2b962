package digest

import (
	"fmt"
	"time"

	"planbot/internal/schedule"
	kit "planbot/internal/transport"
	"planbot/pkg/tgui"
)

// weekdayOf maps a wall-clock time onto the Monday-first weekday index.
func weekdayOf(t time.Time) schedule.Weekday {
	return schedule.Weekday((int(t.Weekday()) + 6) % 7)
}

// itemsForDay filters the weekly selection down to one weekday. The planner
// already ordered the selection by (day, start), so the slice stays sorted.
func itemsForDay(plan []schedule.Selected, day schedule.Weekday) []schedule.ClassEntry {
	var out []schedule.ClassEntry
	for _, sel := range plan {
		if sel.Day == day {
			out = append(out, sel.Entry)
		}
	}
	return out
}

// renderDigest builds the morning message for one chat.
func renderDigest(now time.Time, day schedule.Weekday, items []schedule.ClassEntry) (string, *kit.SendOptions) {
	b := tgui.New().
		Title("📅", fmt.Sprintf("%s, %s", day.Full(), now.Format("2 Jan"))).
		Blank()
	for _, e := range items {
		b.Line(fmt.Sprintf("%s - %s  %s", e.Start, e.End, e.Name))
	}
	msg := b.Build()
	return msg.Text, msg.Opt
}
