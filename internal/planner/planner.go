// Package planner owns the per-chat schedule engines. The schedule core is
// single-threaded by contract; the registry provides the synchronization and
// the host-level policy (entry caps, bus events) around it.
package planner

import (
	"errors"
	"fmt"
	"sync"

	"planbot/internal/eventbus"
	"planbot/internal/schedule"
	logx "planbot/pkg/logx"
)

// ErrChatFull is returned when a chat reached its configured entry cap.
var ErrChatFull = errors.New("chat entry limit reached")

const defaultMaxEntriesPerChat = 64

type Config struct {
	// MaxEntriesPerChat caps entries per chat. 0 means the default (64),
	// negative means unlimited.
	MaxEntriesPerChat int
}

func (c Config) maxEntries() int {
	if c.MaxEntriesPerChat == 0 {
		return defaultMaxEntriesPerChat
	}
	return c.MaxEntriesPerChat
}

// ScheduleEvent is the Data payload for schedule.* bus events.
type ScheduleEvent struct {
	ChatID   int64  `json:"chat_id"`
	ActorID  int64  `json:"actor_id,omitempty"`
	Entry    string `json:"entry,omitempty"`
	Conflict string `json:"conflict,omitempty"`
	Error    string `json:"error,omitempty"`
	Removed  int    `json:"removed,omitempty"`
}

// Registry maps chats to their engines. All engine access goes through the
// registry mutex.
type Registry struct {
	log logx.Logger
	bus eventbus.Bus

	mu         sync.Mutex
	chats      map[int64]*schedule.Engine
	maxPerChat int
}

func New(cfg Config, bus eventbus.Bus, log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{
		log:        log,
		bus:        bus,
		chats:      map[int64]*schedule.Engine{},
		maxPerChat: cfg.maxEntries(),
	}
}

// Apply updates the per-chat cap on hot reload. Existing entries above a
// lowered cap stay; the cap binds future adds only.
func (r *Registry) Apply(cfg Config) {
	r.mu.Lock()
	r.maxPerChat = cfg.maxEntries()
	r.mu.Unlock()
}

// Add validates and stores a new entry for the chat. On success the created
// entry is returned and a schedule.added event published; a conflict
// additionally publishes schedule.conflict with the blocking entry's name.
func (r *Registry) Add(chatID, actorID int64, name, start, end string, days schedule.DaySet) (schedule.ClassEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	eng := r.chats[chatID]
	if eng == nil {
		eng = schedule.NewEngine()
		r.chats[chatID] = eng
	}
	if r.maxPerChat > 0 && eng.Len() >= r.maxPerChat {
		return schedule.ClassEntry{}, fmt.Errorf("%w (%d)", ErrChatFull, r.maxPerChat)
	}

	if err := eng.TryAdd(name, start, end, days); err != nil {
		var conflict *schedule.ConflictError
		if errors.As(err, &conflict) {
			r.publish("schedule.conflict", ScheduleEvent{
				ChatID:   chatID,
				ActorID:  actorID,
				Entry:    name,
				Conflict: conflict.Name,
				Error:    conflict.Error(),
			})
		}
		return schedule.ClassEntry{}, err
	}

	entries := eng.Entries()
	added := entries[len(entries)-1]
	r.publish("schedule.added", ScheduleEvent{
		ChatID:  chatID,
		ActorID: actorID,
		Entry:   added.String(),
	})
	return added, nil
}

// Entries returns the chat's entries in insertion order.
func (r *Registry) Entries(chatID int64) []schedule.ClassEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	eng := r.chats[chatID]
	if eng == nil {
		return nil
	}
	return eng.Entries()
}

// Plan returns the chat's non-overlapping selection.
func (r *Registry) Plan(chatID int64) []schedule.Selected {
	r.mu.Lock()
	defer r.mu.Unlock()
	eng := r.chats[chatID]
	if eng == nil {
		return nil
	}
	return eng.SelectNonOverlapping()
}

// Clear drops the chat's engine and returns how many entries went with it.
func (r *Registry) Clear(chatID, actorID int64) int {
	r.mu.Lock()
	eng := r.chats[chatID]
	n := 0
	if eng != nil {
		n = eng.Len()
		delete(r.chats, chatID)
	}
	r.mu.Unlock()

	if n > 0 {
		r.publish("schedule.cleared", ScheduleEvent{ChatID: chatID, ActorID: actorID, Removed: n})
	}
	return n
}

// Stats reports how many chats hold entries and the total entry count.
func (r *Registry) Stats() (chats, entries int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, eng := range r.chats {
		if eng.Len() == 0 {
			continue
		}
		chats++
		entries += eng.Len()
	}
	return chats, entries
}

func (r *Registry) publish(typ string, ev ScheduleEvent) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(eventbus.Event{Type: typ, Data: ev})
}
