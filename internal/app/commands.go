package app

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"planbot/internal/digest"
	"planbot/internal/planner"
	"planbot/internal/schedule"
	kit "planbot/internal/transport"
	"planbot/internal/transport/telegram/router"
	"planbot/pkg/tgui"
)

// commandRegistry declares every chat command and inline callback the bot
// serves. The ticket store is shared between /clear and its confirm
// callbacks so the buttons can carry more state than callback_data allows.
func commandRegistry(tickets *tgui.TokenStore) ([]router.Command, []router.CallbackRoute) {
	cmds := []router.Command{
		{
			Route:       "add",
			Aliases:     []string{"a"},
			Description: "add a class to this chat's schedule",
			Usage:       `/add <name> <start> <end> <day...> — quote multi-word names: /add "Linear Algebra" 09:00 10:30 mon wed`,
			Access:      router.AccessEveryone,
			Handle:      handleAdd,
		},
		{
			Route:       "list",
			Aliases:     []string{"ls"},
			Description: "list this chat's classes",
			Usage:       "/list",
			Access:      router.AccessEveryone,
			Handle:      handleList,
		},
		{
			Route:       "plan",
			Aliases:     []string{"p"},
			Description: "show the conflict-free weekly plan",
			Usage:       "/plan",
			Access:      router.AccessEveryone,
			Handle:      handlePlan,
		},
		{
			Route:       "clear",
			Description: "remove every class in this chat",
			Usage:       "/clear",
			Access:      router.AccessEveryone,
			Handle:      handleClear(tickets),
		},
		{
			Route:       "digest on",
			Description: "subscribe this chat to the morning digest",
			Usage:       "/digest on [HH:MM]",
			Access:      router.AccessEveryone,
			Handle:      handleDigestOn,
		},
		{
			Route:       "digest off",
			Description: "unsubscribe this chat from the morning digest",
			Usage:       "/digest off",
			Access:      router.AccessEveryone,
			Handle:      handleDigestOff,
		},
		{
			Route:       "digest now",
			Description: "send this chat's digest immediately",
			Usage:       "/digest now",
			Access:      router.AccessOwnerOnly,
			Handle:      handleDigestNow,
		},
		{
			Route:       "status",
			Description: "bot runtime status",
			Usage:       "/status",
			Access:      router.AccessOwnerOnly,
			Timeout:     10 * time.Second,
			Handle:      handleStatus,
		},
	}

	cbs := []router.CallbackRoute{
		{Scope: "plan", Action: "list", Access: router.CallbackAccessEveryone, Handle: cbListPage},
		{Scope: "plan", Action: "clear", Access: router.CallbackAccessEveryone, Handle: cbClearConfirm(tickets)},
		{Scope: "plan", Action: "cancel", Access: router.CallbackAccessEveryone, Handle: cbClearCancel(tickets)},
	}
	return cmds, cbs
}

func reply(ctx context.Context, req *router.Request, msg tgui.Message) error {
	_, err := msg.Send(ctx, req.Adapter, req.Chat)
	return err
}

func replyText(ctx context.Context, req *router.Request, text string) error {
	return reply(ctx, req, tgui.New().Line(text).Build())
}

// parseDays folds the day tokens into a set. Tokens may be separated by
// spaces or commas; "daily" and "all" select the whole week.
func parseDays(tokens []string) (schedule.DaySet, error) {
	var days schedule.DaySet
	for _, tok := range tokens {
		for _, part := range strings.Split(tok, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			switch strings.ToLower(part) {
			case "daily", "all":
				return schedule.AllDays(), nil
			}
			d, ok := schedule.ParseWeekday(part)
			if !ok {
				return schedule.DaySet{}, fmt.Errorf("unknown day %q", part)
			}
			days.Add(d)
		}
	}
	return days, nil
}

func handleAdd(ctx context.Context, req *router.Request) error {
	if len(req.Args) < 4 {
		return reply(ctx, req, tgui.New().
			Line("Usage: /add <name> <start> <end> <day...>").
			Line(`Example: /add "Linear Algebra" 09:00 10:30 mon wed fri`).
			Line("Days: mon..sun, comma lists, or daily.").
			Build())
	}

	name := req.Args[0]
	start, end := req.Args[1], req.Args[2]
	days, err := parseDays(req.Args[3:])
	if err != nil {
		return replyText(ctx, req, "❌ "+err.Error()+". Use mon..sun or daily.")
	}

	entry, err := req.Services.Planner.Add(req.Chat.ChatID, req.FromID, name, start, end, days)
	if err != nil {
		if errors.Is(err, planner.ErrChatFull) {
			return replyText(ctx, req, "❌ This chat is at its class limit. /clear makes room.")
		}
		// Format, validation and conflict errors all carry the full
		// user-facing sentence.
		return replyText(ctx, req, "❌ "+err.Error())
	}
	return replyText(ctx, req, "✅ Added "+entry.String())
}

const listPageSize = 10

// renderEntriesPage builds one /list page. Pages beyond the first arrive via
// the plan:list callback, which edits the original message in place.
func renderEntriesPage(entries []schedule.ClassEntry, page int) tgui.Message {
	pg := tgui.Paginate(entries, page, listPageSize)

	b := tgui.New().Title("📋", "Classes")
	for i, e := range pg.Items {
		b.Line(fmt.Sprintf("%d. %s", pg.From+i, e.String()))
	}
	if pg.Pages > 1 {
		b.Blank().Line(pg.Label())
		var btns []tele.Btn
		if pg.HasPrev {
			btns = append(btns, tgui.Btn("⬅️ Prev", tgui.Data("plan", "list", strconv.Itoa(pg.Index-1))))
		}
		if pg.HasNext {
			btns = append(btns, tgui.Btn("Next ➡️", tgui.Data("plan", "list", strconv.Itoa(pg.Index+1))))
		}
		b.Inline(tgui.NewInline().Row(btns...))
	}
	return b.Build()
}

func handleList(ctx context.Context, req *router.Request) error {
	entries := req.Services.Planner.Entries(req.Chat.ChatID)
	if len(entries) == 0 {
		return replyText(ctx, req, "No classes yet.")
	}
	return reply(ctx, req, renderEntriesPage(entries, 0))
}

func cbListPage(ctx context.Context, req *router.Request, payload string) error {
	page, err := strconv.Atoi(payload)
	if err != nil {
		page = 0
	}
	entries := req.Services.Planner.Entries(req.Chat.ChatID)
	if len(entries) == 0 {
		// The list emptied between render and tap (e.g. /clear won).
		return tgui.New().Line("No classes yet.").Build().
			Edit(ctx, req.Adapter, callbackRef(req))
	}
	return renderEntriesPage(entries, page).Edit(ctx, req.Adapter, callbackRef(req))
}

func handlePlan(ctx context.Context, req *router.Request) error {
	plan := req.Services.Planner.Plan(req.Chat.ChatID)
	if len(plan) == 0 {
		return replyText(ctx, req, "No classes selected.")
	}

	b := tgui.New().Title("🗓", "Weekly plan")
	for i, sel := range plan {
		if i == 0 || sel.Day != plan[i-1].Day {
			b.Blank().Section(sel.Day.Full())
		}
		b.Line(fmt.Sprintf("  %s - %s  %s", sel.Entry.Start, sel.Entry.End, sel.Entry.Name))
	}
	return reply(ctx, req, b.Build())
}

// clearTicket pins a pending /clear to the chat and the user who asked.
// Carried through the token store because chat+actor does not fit the
// 64-byte callback_data budget alongside the route prefix.
type clearTicket struct {
	Chat  int64 `json:"chat"`
	Actor int64 `json:"actor"`
}

func handleClear(tickets *tgui.TokenStore) router.HandlerFunc {
	return func(ctx context.Context, req *router.Request) error {
		n := len(req.Services.Planner.Entries(req.Chat.ChatID))
		if n == 0 {
			return replyText(ctx, req, "Nothing to clear.")
		}

		tok, err := tickets.PutJSON(clearTicket{Chat: req.Chat.ChatID, Actor: req.FromID})
		if err != nil {
			return fmt.Errorf("clear ticket: %w", err)
		}
		kb := tgui.ConfirmInline(
			tgui.Btn("🗑 Clear all", tgui.Data("plan", "clear", tok)),
			tgui.Btn("Cancel", tgui.Data("plan", "cancel", tok)),
		)
		return reply(ctx, req, tgui.New().
			Title("⚠️", "Clear schedule").
			Line(fmt.Sprintf("This removes all %d classes in this chat.", n)).
			Inline(kb).
			Build())
	}
}

func cbClearConfirm(tickets *tgui.TokenStore) router.CallbackHandlerFunc {
	return func(ctx context.Context, req *router.Request, payload string) error {
		var t clearTicket
		if err := tickets.GetJSON(payload, &t); err != nil {
			return tgui.New().Line("This confirmation expired. Run /clear again.").Build().
				Edit(ctx, req.Adapter, callbackRef(req))
		}
		if req.FromID != t.Actor {
			return answerCallback(ctx, req, "Only the requester can confirm.")
		}

		n := req.Services.Planner.Clear(t.Chat, req.FromID)
		// The edit drops the keyboard, so a second tap cannot re-fire.
		return tgui.New().Line(fmt.Sprintf("🗑 Removed %d classes.", n)).Build().
			Edit(ctx, req.Adapter, callbackRef(req))
	}
}

func cbClearCancel(tickets *tgui.TokenStore) router.CallbackHandlerFunc {
	return func(ctx context.Context, req *router.Request, payload string) error {
		var t clearTicket
		if err := tickets.GetJSON(payload, &t); err != nil {
			return tgui.New().Line("This confirmation expired.").Build().
				Edit(ctx, req.Adapter, callbackRef(req))
		}
		if req.FromID != t.Actor {
			return answerCallback(ctx, req, "Only the requester can cancel.")
		}
		return tgui.New().Line("Cancelled. Nothing was removed.").Build().
			Edit(ctx, req.Adapter, callbackRef(req))
	}
}

func callbackRef(req *router.Request) kit.MessageRef {
	ref := kit.MessageRef{ChatID: req.Chat.ChatID, ThreadID: req.Chat.ThreadID}
	if req.Update.Callback != nil {
		ref.MessageID = req.Update.Callback.MessageID
	}
	return ref
}

func answerCallback(ctx context.Context, req *router.Request, text string) error {
	if req.Update.Callback == nil {
		return nil
	}
	return req.Adapter.AnswerCallback(ctx, req.Update.Callback.ID, text)
}

func handleDigestOn(ctx context.Context, req *router.Request) error {
	at := ""
	if len(req.Args) > 0 {
		at = req.Args[0]
	}
	err := req.Services.Digest.Subscribe(ctx, req.Chat.ChatID, req.Chat.ThreadID, at)
	switch {
	case errors.Is(err, digest.ErrDisabled):
		return replyText(ctx, req, "Digest delivery is disabled in the bot config.")
	case err != nil:
		return replyText(ctx, req, "❌ "+err.Error())
	}
	if at != "" {
		return replyText(ctx, req, fmt.Sprintf("🔔 Daily digest on. This chat gets its plan at %s.", at))
	}
	return replyText(ctx, req, "🔔 Daily digest on. This chat gets its plan every morning.")
}

func handleDigestOff(ctx context.Context, req *router.Request) error {
	err := req.Services.Digest.Unsubscribe(ctx, req.Chat.ChatID)
	switch {
	case errors.Is(err, digest.ErrNotSubscribed):
		return replyText(ctx, req, "This chat wasn't subscribed.")
	case err != nil:
		return replyText(ctx, req, "❌ "+err.Error())
	}
	return replyText(ctx, req, "🔕 Daily digest off.")
}

func handleDigestNow(ctx context.Context, req *router.Request) error {
	err := req.Services.Digest.RunNow(ctx, req.Chat.ChatID)
	switch {
	case errors.Is(err, digest.ErrDisabled):
		return replyText(ctx, req, "Digest delivery is disabled in the bot config.")
	case errors.Is(err, digest.ErrNotSubscribed):
		return replyText(ctx, req, "Subscribe first: /digest on [HH:MM]")
	case errors.Is(err, digest.ErrQueueFull):
		return replyText(ctx, req, "The digest queue is full, try again shortly.")
	case err != nil:
		return replyText(ctx, req, "❌ "+err.Error())
	}
	return replyText(ctx, req, "📨 Digest queued.")
}

func handleStatus(ctx context.Context, req *router.Request) error {
	s := req.Services
	b := tgui.New().Title("📊", "Status")
	if !s.StartedAt.IsZero() {
		b.KV("Uptime", durRel(time.Since(s.StartedAt)))
	}
	b.KV("Go", runtime.Version())
	b.KV("Goroutines", strconv.Itoa(runtime.NumGoroutine()))

	if s.Planner != nil {
		chats, entries := s.Planner.Stats()
		b.Blank().Section("Planner")
		b.KV("Chats", strconv.Itoa(chats))
		b.KV("Classes", strconv.Itoa(entries))
	}

	if s.Digest != nil {
		ds := s.Digest.Stats()
		b.Blank().Section("Digest")
		b.KV("Enabled", strconv.FormatBool(ds.Enabled))
		b.KV("Subscribers", strconv.Itoa(ds.Subscribers))
		b.KV("Runs", strconv.FormatUint(ds.Runs, 10))
		if !ds.LastRunAt.IsZero() {
			b.KV("Last run", fmt.Sprintf("%s ago (sent %d, failed %d, deduped %d, skipped %d)",
				durRel(time.Since(ds.LastRunAt)), ds.LastSent, ds.LastFailed, ds.LastDeduped, ds.LastSkipped))
		}
		if !ds.NextRunAt.IsZero() {
			b.KV("Next run", ds.NextRunAt.Format("Mon 15:04 MST"))
		}
	}

	if s.Bus != nil {
		b.Blank().Section("Bus")
		b.KV("Dropped events", strconv.FormatUint(s.Bus.Dropped(), 10))
	}

	if s.RuntimeSupervisors != nil {
		snap := s.RuntimeSupervisors.Snapshot()
		if len(snap) > 0 {
			names := make([]string, 0, len(snap))
			for name := range snap {
				names = append(names, name)
			}
			sort.Strings(names)
			b.Blank().Section("Supervisors")
			for _, name := range names {
				c := snap[name].Counters()
				b.KV(name, fmt.Sprintf("%d active, %d started", c.Active, c.Started))
			}
		}
	}
	return reply(ctx, req, b.Build())
}

func durRel(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
	return fmt.Sprintf("%dd%dh", int(d.Hours())/24, int(d.Hours())%24)
}
