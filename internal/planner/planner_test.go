package planner

import (
	"errors"
	"testing"
	"time"

	"planbot/internal/eventbus"
	"planbot/internal/schedule"
	logx "planbot/pkg/logx"
)

func newTestRegistry(t *testing.T, cfg Config) (*Registry, <-chan eventbus.Event) {
	t.Helper()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(16)
	t.Cleanup(unsub)
	return New(cfg, bus, logx.Nop()), ch
}

func nextEvent(t *testing.T, ch <-chan eventbus.Event) eventbus.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("no event published")
		return eventbus.Event{}
	}
}

func TestAddStoresAndPublishes(t *testing.T) {
	t.Parallel()

	r, events := newTestRegistry(t, Config{})

	entry, err := r.Add(1, 9, "Math", "09:00", "10:30", schedule.Days(schedule.Mon, schedule.Wed))
	if err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if got, want := entry.String(), "Math: 09:00 - 10:30 on Mon, Wed"; got != want {
		t.Fatalf("Add() entry = %q, want %q", got, want)
	}

	ev := nextEvent(t, events)
	if ev.Type != "schedule.added" {
		t.Fatalf("event type = %q, want schedule.added", ev.Type)
	}
	data, ok := ev.Data.(ScheduleEvent)
	if !ok {
		t.Fatalf("event data is %T, want ScheduleEvent", ev.Data)
	}
	if data.ChatID != 1 || data.ActorID != 9 || data.Entry != entry.String() {
		t.Fatalf("event data = %+v", data)
	}

	got := r.Entries(1)
	if len(got) != 1 || got[0].Name != "Math" {
		t.Fatalf("Entries() = %+v, want the stored entry", got)
	}
}

func TestAddConflictPublishesConflictEvent(t *testing.T) {
	t.Parallel()

	r, events := newTestRegistry(t, Config{})

	if _, err := r.Add(1, 0, "Math", "09:00", "10:30", schedule.Days(schedule.Mon)); err != nil {
		t.Fatalf("first Add() error: %v", err)
	}
	_ = nextEvent(t, events) // schedule.added

	_, err := r.Add(1, 0, "Physics", "10:00", "11:00", schedule.Days(schedule.Mon))
	var conflict *schedule.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("second Add() = %v, want ConflictError", err)
	}

	ev := nextEvent(t, events)
	if ev.Type != "schedule.conflict" {
		t.Fatalf("event type = %q, want schedule.conflict", ev.Type)
	}
	data := ev.Data.(ScheduleEvent)
	if data.Conflict != "Math" || data.Entry != "Physics" {
		t.Fatalf("conflict event = %+v, want conflict Math / entry Physics", data)
	}

	if got := r.Entries(1); len(got) != 1 {
		t.Fatalf("Entries() = %d entries after rejected add, want 1", len(got))
	}
}

func TestAddValidationErrorPublishesNothing(t *testing.T) {
	t.Parallel()

	r, events := newTestRegistry(t, Config{})

	_, err := r.Add(1, 0, "", "09:00", "10:00", schedule.Days(schedule.Mon))
	var verr *schedule.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Add() = %v, want ValidationError", err)
	}
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %q for a validation error", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestAddEnforcesChatCap(t *testing.T) {
	t.Parallel()

	r, _ := newTestRegistry(t, Config{MaxEntriesPerChat: 2})

	days := schedule.Days(schedule.Mon)
	mustAdd := func(name, start, end string) {
		t.Helper()
		if _, err := r.Add(1, 0, name, start, end, days); err != nil {
			t.Fatalf("Add(%s) error: %v", name, err)
		}
	}
	mustAdd("A", "08:00", "09:00")
	mustAdd("B", "09:00", "10:00")

	if _, err := r.Add(1, 0, "C", "10:00", "11:00", days); !errors.Is(err, ErrChatFull) {
		t.Fatalf("third Add() = %v, want ErrChatFull", err)
	}

	// Other chats are unaffected by chat 1 being full.
	if _, err := r.Add(2, 0, "C", "10:00", "11:00", days); err != nil {
		t.Fatalf("Add() to another chat: %v", err)
	}

	// Raising the cap at runtime unblocks the chat.
	r.Apply(Config{MaxEntriesPerChat: 10})
	if _, err := r.Add(1, 0, "C", "10:00", "11:00", days); err != nil {
		t.Fatalf("Add() after Apply: %v", err)
	}
}

func TestChatsAreIsolated(t *testing.T) {
	t.Parallel()

	r, _ := newTestRegistry(t, Config{})
	days := schedule.Days(schedule.Tue)

	if _, err := r.Add(1, 0, "Math", "09:00", "10:00", days); err != nil {
		t.Fatalf("Add(chat 1) error: %v", err)
	}
	// Identical time slot in another chat must not conflict.
	if _, err := r.Add(2, 0, "Math", "09:00", "10:00", days); err != nil {
		t.Fatalf("Add(chat 2) = %v, want no conflict across chats", err)
	}
}

func TestClearDropsEngine(t *testing.T) {
	t.Parallel()

	r, events := newTestRegistry(t, Config{})
	days := schedule.Days(schedule.Fri)

	r.Add(1, 0, "A", "08:00", "09:00", days)
	r.Add(1, 0, "B", "09:00", "10:00", days)
	_ = nextEvent(t, events)
	_ = nextEvent(t, events)

	if n := r.Clear(1, 9); n != 2 {
		t.Fatalf("Clear() = %d, want 2", n)
	}
	ev := nextEvent(t, events)
	if ev.Type != "schedule.cleared" {
		t.Fatalf("event type = %q, want schedule.cleared", ev.Type)
	}
	if data := ev.Data.(ScheduleEvent); data.Removed != 2 || data.ActorID != 9 {
		t.Fatalf("cleared event = %+v", data)
	}

	if got := r.Entries(1); got != nil {
		t.Fatalf("Entries() after Clear = %+v, want nil", got)
	}
	// Clearing an empty chat is quiet.
	if n := r.Clear(1, 9); n != 0 {
		t.Fatalf("second Clear() = %d, want 0", n)
	}
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %q for empty clear", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPlanReflectsSelection(t *testing.T) {
	t.Parallel()

	r, _ := newTestRegistry(t, Config{})
	r.Add(1, 0, "Math", "09:00", "10:00", schedule.Days(schedule.Mon))
	r.Add(1, 0, "Gym", "10:00", "11:00", schedule.Days(schedule.Mon, schedule.Wed))

	plan := r.Plan(1)
	if len(plan) != 3 {
		t.Fatalf("Plan() = %d selections, want 3 (Mon x2 + Wed)", len(plan))
	}
	if plan[0].Day != schedule.Mon || plan[0].Entry.Name != "Math" {
		t.Fatalf("Plan()[0] = %+v, want Mon Math", plan[0])
	}
	if r.Plan(2) != nil {
		t.Fatal("Plan() for unknown chat should be nil")
	}
}

func TestStatsCountsChatsAndEntries(t *testing.T) {
	t.Parallel()

	r, _ := newTestRegistry(t, Config{})
	if chats, entries := r.Stats(); chats != 0 || entries != 0 {
		t.Fatalf("Stats() = %d, %d, want 0, 0", chats, entries)
	}

	r.Add(1, 0, "A", "08:00", "09:00", schedule.Days(schedule.Mon))
	r.Add(1, 0, "B", "09:00", "10:00", schedule.Days(schedule.Mon))
	r.Add(2, 0, "C", "08:00", "09:00", schedule.Days(schedule.Tue))

	chats, entries := r.Stats()
	if chats != 2 || entries != 3 {
		t.Fatalf("Stats() = %d chats, %d entries, want 2, 3", chats, entries)
	}
}
