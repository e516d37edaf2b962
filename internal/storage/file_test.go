package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "planbot/pkg/logx"
)

func openTestStore(t *testing.T, dir string) Store {
	t.Helper()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "store.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open(file) error: %v", err)
	}
	if st == nil {
		t.Fatal("Open(file) returned nil store")
	}
	return st
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()

	for _, driver := range []string{"", "none", "NONE"} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("Open(%q) = %v, %v, want nil, nil", driver, st, err)
		}
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()

	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatal("Open(redis) accepted an unknown driver")
	}
}

func TestFileSubscriptionsRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	st := openTestStore(t, dir)
	ctx := context.Background()

	subs := []Subscription{
		{ChatID: 30, At: "08:15"},
		{ChatID: 10},
		{ChatID: 20, ThreadID: 7},
	}
	for _, sub := range subs {
		if err := st.PutSubscription(ctx, sub); err != nil {
			t.Fatalf("PutSubscription(%d) error: %v", sub.ChatID, err)
		}
	}

	got, err := st.ListSubscriptions(ctx)
	if err != nil {
		t.Fatalf("ListSubscriptions() error: %v", err)
	}
	if len(got) != 3 || got[0].ChatID != 10 || got[1].ChatID != 20 || got[2].ChatID != 30 {
		t.Fatalf("ListSubscriptions() = %+v, want chat ids 10,20,30", got)
	}
	if got[2].At != "08:15" {
		t.Fatalf("subscription 30 At = %q, want 08:15", got[2].At)
	}
	if got[0].CreatedAt.IsZero() {
		t.Fatal("CreatedAt was not defaulted")
	}

	if err := st.DeleteSubscription(ctx, 20); err != nil {
		t.Fatalf("DeleteSubscription(20) error: %v", err)
	}
	// Deleting a missing chat is a no-op.
	if err := st.DeleteSubscription(ctx, 999); err != nil {
		t.Fatalf("DeleteSubscription(999) error: %v", err)
	}

	if err := st.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	// Reopen: subscriptions survive the restart.
	st2 := openTestStore(t, dir)
	defer st2.Close()
	got, err = st2.ListSubscriptions(ctx)
	if err != nil {
		t.Fatalf("ListSubscriptions() after reopen: %v", err)
	}
	if len(got) != 2 || got[0].ChatID != 10 || got[1].ChatID != 30 {
		t.Fatalf("after reopen = %+v, want chat ids 10,30", got)
	}
}

func TestFileDedupSurvivesReopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	st := openTestStore(t, dir)
	ctx := context.Background()

	until := time.Now().Add(time.Hour).Truncate(time.Millisecond)
	if err := st.PutDedup(ctx, "digest:10:2026-08-25", until); err != nil {
		t.Fatalf("PutDedup() error: %v", err)
	}
	// Expired keys are pruned at reopen.
	if err := st.PutDedup(ctx, "digest:old", time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("PutDedup(expired) error: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	st2 := openTestStore(t, dir)
	defer st2.Close()

	got, ok, err := st2.GetDedup(ctx, "digest:10:2026-08-25")
	if err != nil || !ok {
		t.Fatalf("GetDedup() = %v, %v, %v, want value, true, nil", got, ok, err)
	}
	if !got.Equal(until) {
		t.Fatalf("GetDedup() until = %v, want %v", got, until)
	}
	if _, ok, _ := st2.GetDedup(ctx, "digest:old"); ok {
		t.Fatal("expired dedup key survived reopen")
	}
	if _, ok, _ := st2.GetDedup(ctx, "missing"); ok {
		t.Fatal("GetDedup(missing) = true")
	}
}

func TestFileAppendAuditWritesJSONL(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	st := openTestStore(t, dir)
	defer st.Close()
	ctx := context.Background()

	recs := []AuditRecord{
		{ChatID: 1, ActorID: 9, Action: "add", Target: "Math"},
		{ChatID: 1, Action: "conflict", Target: "Physics", Detail: "conflicts with Math"},
	}
	for _, rec := range recs {
		if err := st.AppendAudit(ctx, rec); err != nil {
			t.Fatalf("AppendAudit(%s) error: %v", rec.Action, err)
		}
	}

	f, err := os.Open(filepath.Join(dir, "store.audit.jsonl"))
	if err != nil {
		t.Fatalf("open audit file: %v", err)
	}
	defer f.Close()

	var lines int
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec AuditRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("audit line %d is not valid JSON: %v", lines, err)
		}
		if rec.At.IsZero() {
			t.Fatalf("audit line %d has zero timestamp", lines)
		}
		lines++
	}
	if lines != 2 {
		t.Fatalf("audit lines = %d, want 2", lines)
	}
}
