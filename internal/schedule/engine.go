package schedule

import (
	"fmt"
	"sort"
)

// ClassEntry is one weekly class meeting. Entries are immutable once stored:
// the engine only ever appends.
type ClassEntry struct {
	Name  string
	Start TimeOfDay
	End   TimeOfDay
	Days  DaySet
}

// String renders the canonical one-line form, e.g.
// "Math: 09:00 - 10:00 on Mon, Wed, Fri".
func (e ClassEntry) String() string {
	return fmt.Sprintf("%s: %s - %s on %s", e.Name, e.Start, e.End, e.Days)
}

// Selected is one (day, entry) pair chosen by SelectNonOverlapping. The same
// entry may appear once per day it was picked on.
type Selected struct {
	Day   Weekday
	Entry ClassEntry
}

// Engine accumulates class entries in insertion order and answers conflict
// and selection queries over them. It holds no locks; see the package doc.
type Engine struct {
	entries []ClassEntry
}

func NewEngine() *Engine {
	return &Engine{}
}

// TryAdd validates and appends one class. The add is all-or-nothing: on any
// returned error the stored entries are untouched.
//
// Checks run in a fixed order: name, time format (start first), start<end,
// day selection, then a conflict scan over existing entries in insertion
// order. Two classes conflict when they share a day and their half-open
// intervals overlap, i.e. NOT(newEnd <= e.Start || e.End <= newStart);
// touching endpoints (10:00-11:00 after 09:00-10:00) do not conflict.
func (g *Engine) TryAdd(name, startText, endText string, days DaySet) error {
	if name == "" {
		return &ValidationError{Reason: EmptyName}
	}
	start, err := ParseTime(startText)
	if err != nil {
		return err
	}
	end, err := ParseTime(endText)
	if err != nil {
		return err
	}
	if start >= end {
		return &ValidationError{Reason: StartNotBeforeEnd}
	}
	if days.Empty() {
		return &ValidationError{Reason: NoDays}
	}

	for _, e := range g.entries {
		shared := days.Intersect(e.Days)
		if shared.Empty() {
			continue
		}
		if end <= e.Start || e.End <= start {
			continue
		}
		// First conflicting entry wins; the scan is not exhaustive.
		return &ConflictError{Name: e.Name, Days: shared}
	}

	g.entries = append(g.entries, ClassEntry{Name: name, Start: start, End: end, Days: days})
	return nil
}

// SelectNonOverlapping runs greedy activity selection independently per
// weekday: candidates sorted by end time ascending (stable, so insertion
// order breaks ties), then accepted whenever their start is at or past the
// last accepted end. The combined result is re-sorted by (day, start) —
// the greedy order alone is only non-decreasing by end, which can disagree
// with start order when end ties exist.
//
// Never fails; with no entries it returns an empty result.
func (g *Engine) SelectNonOverlapping() []Selected {
	var out []Selected
	for d := Mon; d <= Sun; d++ {
		var cands []ClassEntry
		for _, e := range g.entries {
			if e.Days.Contains(d) {
				cands = append(cands, e)
			}
		}
		sort.SliceStable(cands, func(i, j int) bool { return cands[i].End < cands[j].End })

		lastEnd := TimeOfDay(-1)
		for _, c := range cands {
			if c.Start >= lastEnd {
				out = append(out, Selected{Day: d, Entry: c})
				lastEnd = c.End
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Day != out[j].Day {
			return out[i].Day < out[j].Day
		}
		return out[i].Entry.Start < out[j].Entry.Start
	})
	return out
}

// Entries returns a copy of the stored entries in insertion order.
func (g *Engine) Entries() []ClassEntry {
	return append([]ClassEntry(nil), g.entries...)
}

// Len reports how many entries are stored.
func (g *Engine) Len() int {
	return len(g.entries)
}
