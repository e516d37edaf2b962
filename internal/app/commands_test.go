package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"planbot/internal/digest"
	"planbot/internal/planner"
	"planbot/internal/schedule"
	kit "planbot/internal/transport"
	"planbot/internal/transport/telegram/router"
	"planbot/pkg/tgui"
)

type sentMsg struct {
	chat int64
	text string
	opt  *kit.SendOptions
}

type editMsg struct {
	ref  kit.MessageRef
	text string
}

type fakeAdapter struct {
	mu      sync.Mutex
	sent    []sentMsg
	edits   []editMsg
	answers []string
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMsg{chat: to.ChatID, text: text, opt: opt})
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) EditText(_ context.Context, ref kit.MessageRef, text string, _ *kit.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, editMsg{ref: ref, text: text})
	return nil
}

func (f *fakeAdapter) AnswerCallback(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, text)
	return nil
}

func (f *fakeAdapter) lastSent(t *testing.T) sentMsg {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatalf("nothing was sent")
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeAdapter) lastEdit(t *testing.T) editMsg {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.edits) == 0 {
		t.Fatalf("nothing was edited")
	}
	return f.edits[len(f.edits)-1]
}

type addCall struct {
	chat, actor int64
	name        string
	start, end  string
	days        schedule.DaySet
}

type fakePlanner struct {
	addErr  error
	added   []addCall
	entries map[int64][]schedule.ClassEntry
	plan    []schedule.Selected
	cleared []int64
	clearN  int
	chats   int
	total   int
}

func (f *fakePlanner) Add(chatID, actorID int64, name, start, end string, days schedule.DaySet) (schedule.ClassEntry, error) {
	f.added = append(f.added, addCall{chat: chatID, actor: actorID, name: name, start: start, end: end, days: days})
	if f.addErr != nil {
		return schedule.ClassEntry{}, f.addErr
	}
	st, _ := schedule.ParseTime(start)
	en, _ := schedule.ParseTime(end)
	return schedule.ClassEntry{Name: name, Start: st, End: en, Days: days}, nil
}

func (f *fakePlanner) Entries(chatID int64) []schedule.ClassEntry { return f.entries[chatID] }
func (f *fakePlanner) Plan(int64) []schedule.Selected             { return f.plan }

func (f *fakePlanner) Clear(chatID, _ int64) int {
	f.cleared = append(f.cleared, chatID)
	return f.clearN
}

func (f *fakePlanner) Stats() (int, int) { return f.chats, f.total }

type fakeDigest struct {
	enabled  bool
	subErr   error
	unsubErr error
	runErr   error
	lastAt   string
	ran      []int64
	stats    digest.Stats
}

func (f *fakeDigest) Enabled() bool         { return f.enabled }
func (f *fakeDigest) Subscribed(int64) bool { return false }
func (f *fakeDigest) Stats() digest.Stats   { return f.stats }

func (f *fakeDigest) Subscribe(_ context.Context, _ int64, _ int, at string) error {
	f.lastAt = at
	return f.subErr
}

func (f *fakeDigest) Unsubscribe(context.Context, int64) error { return f.unsubErr }

func (f *fakeDigest) RunNow(_ context.Context, chatID int64) error {
	f.ran = append(f.ran, chatID)
	return f.runErr
}

func newReq(ad kit.Adapter, serv *router.Services, args ...string) *router.Request {
	return &router.Request{
		Chat:     kit.ChatTarget{ChatID: 10},
		FromID:   7,
		Args:     args,
		Adapter:  ad,
		Services: serv,
	}
}

func newCbReq(ad kit.Adapter, serv *router.Services, fromID int64) *router.Request {
	return &router.Request{
		Update:   kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "cb1", ChatID: 10, FromID: fromID, MessageID: 5}},
		Chat:     kit.ChatTarget{ChatID: 10},
		FromID:   fromID,
		Adapter:  ad,
		Services: serv,
	}
}

func mustTime(t *testing.T, s string) schedule.TimeOfDay {
	t.Helper()
	v, err := schedule.ParseTime(s)
	if err != nil {
		t.Fatalf("ParseTime(%q): %v", s, err)
	}
	return v
}

// classList builds n Monday classes at one-hour offsets for pagination tests.
func classList(t *testing.T, n int) []schedule.ClassEntry {
	t.Helper()
	out := make([]schedule.ClassEntry, 0, n)
	for i := 0; i < n; i++ {
		h := 8 + i%14
		out = append(out, schedule.ClassEntry{
			Name:  fmt.Sprintf("Class %d", i+1),
			Start: schedule.TimeOfDay(h),
			End:   schedule.TimeOfDay(h) + 50.0/60,
			Days:  schedule.Days(schedule.Mon),
		})
	}
	return out
}

func TestParseDays(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		tokens []string
		want   schedule.DaySet
	}{
		{"single short", []string{"mon"}, schedule.Days(schedule.Mon)},
		{"full name", []string{"Tuesday"}, schedule.Days(schedule.Tue)},
		{"comma list", []string{"mon,wed,fri"}, schedule.Days(schedule.Mon, schedule.Wed, schedule.Fri)},
		{"spaced tokens", []string{"mon", "fri"}, schedule.Days(schedule.Mon, schedule.Fri)},
		{"mixed separators", []string{"mon,wed", "sat"}, schedule.Days(schedule.Mon, schedule.Wed, schedule.Sat)},
		{"daily keyword", []string{"daily"}, schedule.AllDays()},
		{"all keyword", []string{"tue", "all"}, schedule.AllDays()},
		{"trailing comma", []string{"sun,"}, schedule.Days(schedule.Sun)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseDays(tt.tokens)
			if err != nil {
				t.Fatalf("parseDays(%v) error: %v", tt.tokens, err)
			}
			if got != tt.want {
				t.Fatalf("parseDays(%v) = %v, want %v", tt.tokens, got, tt.want)
			}
		})
	}

	if _, err := parseDays([]string{"mon", "noday"}); err == nil {
		t.Fatalf("parseDays accepted unknown day")
	} else if !strings.Contains(err.Error(), `"noday"`) {
		t.Fatalf("error %q does not name the bad token", err)
	}
}

func TestDurRel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		d    time.Duration
		want string
	}{
		{45 * time.Second, "45s"},
		{90 * time.Second, "1m30s"},
		{3*time.Hour + 25*time.Minute, "3h25m"},
		{50 * time.Hour, "2d2h"},
		{-time.Minute, "1m0s"},
	}
	for _, tt := range tests {
		if got := durRel(tt.d); got != tt.want {
			t.Fatalf("durRel(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestHandleAddUsageOnShortInput(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	pl := &fakePlanner{}
	req := newReq(ad, &router.Services{Planner: pl}, "Math", "09:00")

	if err := handleAdd(context.Background(), req); err != nil {
		t.Fatalf("handleAdd returned %v", err)
	}
	if got := ad.lastSent(t).text; !strings.Contains(got, "Usage: /add") {
		t.Fatalf("reply = %q, want usage text", got)
	}
	if len(pl.added) != 0 {
		t.Fatalf("planner was called on bad input")
	}
}

func TestHandleAddUnknownDay(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	req := newReq(ad, &router.Services{Planner: &fakePlanner{}}, "Math", "09:00", "10:00", "noday")

	if err := handleAdd(context.Background(), req); err != nil {
		t.Fatalf("handleAdd returned %v", err)
	}
	got := ad.lastSent(t).text
	if !strings.Contains(got, "unknown day") || !strings.Contains(got, "mon..sun") {
		t.Fatalf("reply = %q, want unknown-day hint", got)
	}
}

func TestHandleAddChatFull(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	pl := &fakePlanner{addErr: planner.ErrChatFull}
	req := newReq(ad, &router.Services{Planner: pl}, "Math", "09:00", "10:00", "mon")

	if err := handleAdd(context.Background(), req); err != nil {
		t.Fatalf("handleAdd returned %v", err)
	}
	if got := ad.lastSent(t).text; !strings.Contains(got, "class limit") {
		t.Fatalf("reply = %q, want chat-full message", got)
	}
}

func TestHandleAddSurfacesEngineError(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	pl := &fakePlanner{addErr: &schedule.ConflictError{Name: "Math", Days: schedule.Days(schedule.Mon)}}
	req := newReq(ad, &router.Services{Planner: pl}, "Gym", "09:30", "10:30", "mon")

	if err := handleAdd(context.Background(), req); err != nil {
		t.Fatalf("handleAdd returned %v", err)
	}
	got := ad.lastSent(t).text
	if !strings.Contains(got, "conflicts with existing class") || !strings.Contains(got, "Math") {
		t.Fatalf("reply = %q, want conflict message naming Math", got)
	}
}

func TestHandleAddSuccess(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	pl := &fakePlanner{}
	req := newReq(ad, &router.Services{Planner: pl}, "Chemistry", "09:00", "10:00", "mon", "wed")

	if err := handleAdd(context.Background(), req); err != nil {
		t.Fatalf("handleAdd returned %v", err)
	}
	if len(pl.added) != 1 {
		t.Fatalf("planner Add called %d times, want 1", len(pl.added))
	}
	call := pl.added[0]
	if call.chat != 10 || call.actor != 7 || call.name != "Chemistry" || call.start != "09:00" || call.end != "10:00" {
		t.Fatalf("Add call = %+v", call)
	}
	if call.days != schedule.Days(schedule.Mon, schedule.Wed) {
		t.Fatalf("Add days = %v, want Mon+Wed", call.days)
	}
	got := ad.lastSent(t).text
	if !strings.Contains(got, "✅ Added Chemistry: 09:00 - 10:00 on Mon, Wed") {
		t.Fatalf("reply = %q", got)
	}
}

func TestHandleListEmpty(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	req := newReq(ad, &router.Services{Planner: &fakePlanner{}})

	if err := handleList(context.Background(), req); err != nil {
		t.Fatalf("handleList returned %v", err)
	}
	if got := ad.lastSent(t).text; got != "No classes yet." {
		t.Fatalf("reply = %q, want %q", got, "No classes yet.")
	}
}

func TestHandleListSinglePageHasNoPager(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	pl := &fakePlanner{entries: map[int64][]schedule.ClassEntry{10: classList(t, 3)}}
	req := newReq(ad, &router.Services{Planner: pl})

	if err := handleList(context.Background(), req); err != nil {
		t.Fatalf("handleList returned %v", err)
	}
	last := ad.lastSent(t)
	if !strings.Contains(last.text, "1. Class 1") || !strings.Contains(last.text, "3. Class 3") {
		t.Fatalf("list text = %q", last.text)
	}
	if strings.Contains(last.text, "Page") {
		t.Fatalf("single page rendered a pager label: %q", last.text)
	}
	if last.opt != nil && last.opt.ReplyMarkupAdapter != nil {
		t.Fatalf("single page carried a keyboard")
	}
}

func keyboardData(t *testing.T, opt *kit.SendOptions) []string {
	t.Helper()
	if opt == nil || opt.ReplyMarkupAdapter == nil {
		t.Fatalf("message has no keyboard")
	}
	rm, ok := opt.ReplyMarkupAdapter.(*tele.ReplyMarkup)
	if !ok {
		t.Fatalf("markup type %T", opt.ReplyMarkupAdapter)
	}
	var data []string
	for _, row := range rm.InlineKeyboard {
		for _, btn := range row {
			data = append(data, btn.Data)
		}
	}
	return data
}

func TestRenderEntriesPagePager(t *testing.T) {
	t.Parallel()
	entries := classList(t, 25)

	first := renderEntriesPage(entries, 0)
	if !strings.Contains(first.Text, "Page 1/3 • 1-10 of 25") {
		t.Fatalf("first page label missing: %q", first.Text)
	}
	if got := keyboardData(t, first.Opt); len(got) != 1 || got[0] != "plan:list:1" {
		t.Fatalf("first page buttons = %v, want [plan:list:1]", got)
	}

	mid := renderEntriesPage(entries, 1)
	if !strings.Contains(mid.Text, "11. Class 11") || strings.Contains(mid.Text, "10. Class 10") {
		t.Fatalf("middle page text = %q", mid.Text)
	}
	if got := keyboardData(t, mid.Opt); len(got) != 2 || got[0] != "plan:list:0" || got[1] != "plan:list:2" {
		t.Fatalf("middle page buttons = %v, want [plan:list:0 plan:list:2]", got)
	}

	last := renderEntriesPage(entries, 2)
	if got := keyboardData(t, last.Opt); len(got) != 1 || got[0] != "plan:list:1" {
		t.Fatalf("last page buttons = %v, want [plan:list:1]", got)
	}
}

func TestCbListPageEditsInPlace(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	pl := &fakePlanner{entries: map[int64][]schedule.ClassEntry{10: classList(t, 25)}}
	req := newCbReq(ad, &router.Services{Planner: pl}, 7)

	if err := cbListPage(context.Background(), req, "1"); err != nil {
		t.Fatalf("cbListPage returned %v", err)
	}
	edit := ad.lastEdit(t)
	if edit.ref.MessageID != 5 {
		t.Fatalf("edited message %d, want 5", edit.ref.MessageID)
	}
	if !strings.Contains(edit.text, "Page 2/3") {
		t.Fatalf("edit text = %q", edit.text)
	}

	// A junk payload falls back to the first page instead of failing.
	if err := cbListPage(context.Background(), req, "junk"); err != nil {
		t.Fatalf("cbListPage(junk) returned %v", err)
	}
	if got := ad.lastEdit(t).text; !strings.Contains(got, "Page 1/3") {
		t.Fatalf("edit text = %q, want first page", got)
	}
}

func TestCbListPageWhenListEmptied(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	req := newCbReq(ad, &router.Services{Planner: &fakePlanner{}}, 7)

	if err := cbListPage(context.Background(), req, "0"); err != nil {
		t.Fatalf("cbListPage returned %v", err)
	}
	if got := ad.lastEdit(t).text; got != "No classes yet." {
		t.Fatalf("edit text = %q, want %q", got, "No classes yet.")
	}
}

func TestHandlePlanEmpty(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	req := newReq(ad, &router.Services{Planner: &fakePlanner{}})

	if err := handlePlan(context.Background(), req); err != nil {
		t.Fatalf("handlePlan returned %v", err)
	}
	if got := ad.lastSent(t).text; got != "No classes selected." {
		t.Fatalf("reply = %q, want %q", got, "No classes selected.")
	}
}

func TestHandlePlanGroupsByDay(t *testing.T) {
	t.Parallel()
	math := schedule.ClassEntry{Name: "Math", Start: mustTime(t, "09:00"), End: mustTime(t, "10:00"), Days: schedule.Days(schedule.Mon, schedule.Wed)}
	gym := schedule.ClassEntry{Name: "Gym", Start: mustTime(t, "10:00"), End: mustTime(t, "11:00"), Days: schedule.Days(schedule.Mon)}
	pl := &fakePlanner{plan: []schedule.Selected{
		{Day: schedule.Mon, Entry: math},
		{Day: schedule.Mon, Entry: gym},
		{Day: schedule.Wed, Entry: math},
	}}
	ad := &fakeAdapter{}
	req := newReq(ad, &router.Services{Planner: pl})

	if err := handlePlan(context.Background(), req); err != nil {
		t.Fatalf("handlePlan returned %v", err)
	}
	got := ad.lastSent(t).text
	monAt := strings.Index(got, "Monday")
	wedAt := strings.Index(got, "Wednesday")
	if monAt < 0 || wedAt < 0 || wedAt < monAt {
		t.Fatalf("day headings wrong in %q", got)
	}
	if strings.Count(got, "Monday") != 1 {
		t.Fatalf("Monday heading repeated in %q", got)
	}
	if !strings.Contains(got, "09:00 - 10:00  Math") || !strings.Contains(got, "10:00 - 11:00  Gym") {
		t.Fatalf("plan rows missing in %q", got)
	}
}

func TestHandleClearNothing(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	req := newReq(ad, &router.Services{Planner: &fakePlanner{}})

	h := handleClear(tgui.NewTokenStore())
	if err := h(context.Background(), req); err != nil {
		t.Fatalf("handleClear returned %v", err)
	}
	if got := ad.lastSent(t).text; got != "Nothing to clear." {
		t.Fatalf("reply = %q, want %q", got, "Nothing to clear.")
	}
}

func TestClearConfirmFlow(t *testing.T) {
	t.Parallel()
	tickets := tgui.NewTokenStore()
	pl := &fakePlanner{entries: map[int64][]schedule.ClassEntry{10: classList(t, 3)}, clearN: 3}
	serv := &router.Services{Planner: pl}

	ad := &fakeAdapter{}
	if err := handleClear(tickets)(context.Background(), newReq(ad, serv)); err != nil {
		t.Fatalf("handleClear returned %v", err)
	}
	last := ad.lastSent(t)
	if !strings.Contains(last.text, "all 3 classes") {
		t.Fatalf("confirm text = %q", last.text)
	}
	data := keyboardData(t, last.opt)
	if len(data) != 2 || !strings.HasPrefix(data[0], "plan:clear:") || !strings.HasPrefix(data[1], "plan:cancel:") {
		t.Fatalf("confirm buttons = %v", data)
	}
	tok := strings.TrimPrefix(data[0], "plan:clear:")

	// A different user tapping confirm only gets a toast.
	if err := cbClearConfirm(tickets)(context.Background(), newCbReq(ad, serv, 99), tok); err != nil {
		t.Fatalf("cbClearConfirm returned %v", err)
	}
	if len(ad.answers) == 0 || !strings.Contains(ad.answers[len(ad.answers)-1], "Only the requester") {
		t.Fatalf("answers = %v, want requester-only toast", ad.answers)
	}
	if len(pl.cleared) != 0 {
		t.Fatalf("clear ran for the wrong user")
	}

	// The requester confirming clears and rewrites the prompt.
	if err := cbClearConfirm(tickets)(context.Background(), newCbReq(ad, serv, 7), tok); err != nil {
		t.Fatalf("cbClearConfirm returned %v", err)
	}
	if len(pl.cleared) != 1 || pl.cleared[0] != 10 {
		t.Fatalf("cleared chats = %v, want [10]", pl.cleared)
	}
	if got := ad.lastEdit(t).text; !strings.Contains(got, "Removed 3 classes") {
		t.Fatalf("edit text = %q", got)
	}
}

func TestClearCancelKeepsEntries(t *testing.T) {
	t.Parallel()
	tickets := tgui.NewTokenStore()
	pl := &fakePlanner{entries: map[int64][]schedule.ClassEntry{10: classList(t, 2)}}
	serv := &router.Services{Planner: pl}

	ad := &fakeAdapter{}
	if err := handleClear(tickets)(context.Background(), newReq(ad, serv)); err != nil {
		t.Fatalf("handleClear returned %v", err)
	}
	data := keyboardData(t, ad.lastSent(t).opt)
	tok := strings.TrimPrefix(data[1], "plan:cancel:")

	if err := cbClearCancel(tickets)(context.Background(), newCbReq(ad, serv, 7), tok); err != nil {
		t.Fatalf("cbClearCancel returned %v", err)
	}
	if got := ad.lastEdit(t).text; !strings.Contains(got, "Nothing was removed") {
		t.Fatalf("edit text = %q", got)
	}
	if len(pl.cleared) != 0 {
		t.Fatalf("cancel cleared entries")
	}
}

func TestClearConfirmExpiredTicket(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	req := newCbReq(ad, &router.Services{Planner: &fakePlanner{}}, 7)

	if err := cbClearConfirm(tgui.NewTokenStore())(context.Background(), req, "~gone"); err != nil {
		t.Fatalf("cbClearConfirm returned %v", err)
	}
	if got := ad.lastEdit(t).text; !strings.Contains(got, "expired") {
		t.Fatalf("edit text = %q, want expiry notice", got)
	}
}

func TestHandleDigestOn(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		args []string
		want string
	}{
		{"disabled", digest.ErrDisabled, nil, "disabled in the bot config"},
		{"bad time", fmt.Errorf("digest time must be HH:MM"), []string{"25:00"}, "❌ digest time must be HH:MM"},
		{"with time", nil, []string{"07:30"}, "at 07:30"},
		{"default time", nil, nil, "every morning"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ad := &fakeAdapter{}
			dg := &fakeDigest{subErr: tt.err}
			req := newReq(ad, &router.Services{Digest: dg}, tt.args...)

			if err := handleDigestOn(context.Background(), req); err != nil {
				t.Fatalf("handleDigestOn returned %v", err)
			}
			if got := ad.lastSent(t).text; !strings.Contains(got, tt.want) {
				t.Fatalf("reply = %q, want substring %q", got, tt.want)
			}
		})
	}

	// The subscribe time is forwarded verbatim.
	ad := &fakeAdapter{}
	dg := &fakeDigest{}
	if err := handleDigestOn(context.Background(), newReq(ad, &router.Services{Digest: dg}, "06:45")); err != nil {
		t.Fatalf("handleDigestOn returned %v", err)
	}
	if dg.lastAt != "06:45" {
		t.Fatalf("Subscribe at = %q, want %q", dg.lastAt, "06:45")
	}
}

func TestHandleDigestOff(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	dg := &fakeDigest{unsubErr: digest.ErrNotSubscribed}
	if err := handleDigestOff(context.Background(), newReq(ad, &router.Services{Digest: dg})); err != nil {
		t.Fatalf("handleDigestOff returned %v", err)
	}
	if got := ad.lastSent(t).text; !strings.Contains(got, "wasn't subscribed") {
		t.Fatalf("reply = %q", got)
	}

	dg.unsubErr = nil
	if err := handleDigestOff(context.Background(), newReq(ad, &router.Services{Digest: dg})); err != nil {
		t.Fatalf("handleDigestOff returned %v", err)
	}
	if got := ad.lastSent(t).text; !strings.Contains(got, "Daily digest off") {
		t.Fatalf("reply = %q", got)
	}
}

func TestHandleDigestNow(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"disabled", digest.ErrDisabled, "disabled in the bot config"},
		{"not subscribed", digest.ErrNotSubscribed, "Subscribe first"},
		{"queue full", digest.ErrQueueFull, "queue is full"},
		{"queued", nil, "Digest queued"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ad := &fakeAdapter{}
			dg := &fakeDigest{runErr: tt.err}
			req := newReq(ad, &router.Services{Digest: dg})

			if err := handleDigestNow(context.Background(), req); err != nil {
				t.Fatalf("handleDigestNow returned %v", err)
			}
			if got := ad.lastSent(t).text; !strings.Contains(got, tt.want) {
				t.Fatalf("reply = %q, want substring %q", got, tt.want)
			}
		})
	}
}

func TestHandleStatusSections(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	serv := &router.Services{
		Planner:   &fakePlanner{chats: 2, total: 5},
		Digest:    &fakeDigest{stats: digest.Stats{Enabled: true, Subscribers: 4, Runs: 9}},
		StartedAt: time.Now().Add(-90 * time.Second),
	}
	req := newReq(ad, serv)

	if err := handleStatus(context.Background(), req); err != nil {
		t.Fatalf("handleStatus returned %v", err)
	}
	got := ad.lastSent(t).text
	for _, want := range []string{
		"Status",
		"Uptime</b>: 1m30s",
		"Planner",
		"Chats</b>: 2",
		"Classes</b>: 5",
		"Digest",
		"Subscribers</b>: 4",
		"Runs</b>: 9",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("status text missing %q:\n%s", want, got)
		}
	}
}

func TestCommandRegistryShape(t *testing.T) {
	t.Parallel()
	cmds, cbs := commandRegistry(tgui.NewTokenStore())

	routes := map[string]router.Command{}
	for _, c := range cmds {
		if c.Handle == nil {
			t.Fatalf("command %q has no handler", c.Route)
		}
		routes[c.Route] = c
	}
	for _, want := range []string{"add", "list", "plan", "clear", "digest on", "digest off", "digest now", "status"} {
		if _, ok := routes[want]; !ok {
			t.Fatalf("registry missing route %q", want)
		}
	}
	if routes["digest now"].Access != router.AccessOwnerOnly {
		t.Fatalf("digest now is not owner-only")
	}
	if routes["status"].Access != router.AccessOwnerOnly {
		t.Fatalf("status is not owner-only")
	}
	if routes["add"].Access != router.AccessEveryone {
		t.Fatalf("add is not public")
	}

	if len(cbs) != 3 {
		t.Fatalf("callback routes = %d, want 3", len(cbs))
	}
	for _, cb := range cbs {
		if cb.Scope != "plan" {
			t.Fatalf("callback scope = %q, want plan", cb.Scope)
		}
		if cb.Access != router.CallbackAccessEveryone {
			t.Fatalf("callback %s is not public", cb.Action)
		}
	}
}
