package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wavelink/wavelink/internal/call"
)

func TestOpenAndMigrate(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer db.Close()

	// Verify database file was created.
	dbPath := filepath.Join(dir, "wavelink.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Fatal("database file was not created")
	}

	// Verify WAL mode is active.
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("querying journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("journal_mode = %q, want wal", journalMode)
	}

	// Verify all tables exist.
	tables := []string{"schema_migrations", "call_history", "recovery_entries"}
	for _, table := range tables {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if err != nil {
			t.Errorf("checking table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("table %s not found", table)
		}
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	// Open twice to verify migrations don't fail on re-run.
	db1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open() error: %v", err)
	}
	db1.Close()

	db2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open() error: %v", err)
	}
	db2.Close()
}

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestHistoryAppendAndList(t *testing.T) {
	repo := NewHistoryRepository(testDB(t))
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	entries := []call.HistoryEntry{
		{PeerID: "user-b", PeerName: "Bob", Kind: call.KindVoice, Role: call.RoleCaller,
			StartedAt: base, Duration: 90 * time.Second, Outcome: call.OutcomeCompleted},
		{PeerID: "user-c", PeerName: "Cara", Kind: call.KindVideo, Role: call.RoleCallee,
			StartedAt: base.Add(time.Hour), Outcome: call.OutcomeRejected},
		{PeerID: "user-b", PeerName: "Bob", Kind: call.KindVoice, Role: call.RoleCallee,
			StartedAt: base.Add(2 * time.Hour), Outcome: call.OutcomeMissed},
	}
	for _, e := range entries {
		if err := repo.Append(ctx, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, total, err := repo.List(ctx, HistoryListFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 3 || len(got) != 3 {
		t.Fatalf("total = %d, len = %d, want 3 each", total, len(got))
	}
	// Newest first.
	if got[0].Outcome != call.OutcomeMissed || got[2].Outcome != call.OutcomeCompleted {
		t.Errorf("unexpected order: %+v", got)
	}
	if got[2].Duration != 90*time.Second {
		t.Errorf("duration = %v, want 90s", got[2].Duration)
	}

	// Filter by peer.
	got, total, err = repo.List(ctx, HistoryListFilter{PeerID: "user-b"})
	if err != nil {
		t.Fatalf("List by peer: %v", err)
	}
	if total != 2 {
		t.Errorf("peer filter total = %d, want 2", total)
	}

	// Filter by outcome.
	got, _, err = repo.List(ctx, HistoryListFilter{Outcome: "rejected"})
	if err != nil {
		t.Fatalf("List by outcome: %v", err)
	}
	if len(got) != 1 || got[0].PeerID != "user-c" {
		t.Errorf("outcome filter = %+v, want one rejected for user-c", got)
	}

	// Search by display name.
	_, total, err = repo.List(ctx, HistoryListFilter{Search: "Cara"})
	if err != nil {
		t.Fatalf("List by search: %v", err)
	}
	if total != 1 {
		t.Errorf("search total = %d, want 1", total)
	}

	// Pagination.
	got, total, err = repo.List(ctx, HistoryListFilter{Limit: 2})
	if err != nil {
		t.Fatalf("List with limit: %v", err)
	}
	if total != 3 || len(got) != 2 {
		t.Errorf("paged total = %d len = %d, want 3 and 2", total, len(got))
	}
}

func TestHistoryCountByOutcome(t *testing.T) {
	repo := NewHistoryRepository(testDB(t))
	ctx := context.Background()

	for _, o := range []call.Outcome{call.OutcomeCompleted, call.OutcomeCompleted, call.OutcomeMissed} {
		err := repo.Append(ctx, call.HistoryEntry{
			PeerID: "user-b", StartedAt: time.Now(), Outcome: o,
		})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	counts, err := repo.CountByOutcome(ctx)
	if err != nil {
		t.Fatalf("CountByOutcome: %v", err)
	}
	if counts[call.OutcomeCompleted] != 2 || counts[call.OutcomeMissed] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestHistoryDeleteOlderThan(t *testing.T) {
	repo := NewHistoryRepository(testDB(t))
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	recent := time.Now()
	for _, ts := range []time.Time{old, recent} {
		err := repo.Append(ctx, call.HistoryEntry{
			PeerID: "user-b", StartedAt: ts, Outcome: call.OutcomeCompleted,
		})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	n, err := repo.DeleteOlderThan(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteOlderThan: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned = %d, want 1", n)
	}
	_, total, err := repo.List(ctx, HistoryListFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 {
		t.Errorf("remaining = %d, want 1", total)
	}
}

func TestRecoveryStoreConsumeIsOneShot(t *testing.T) {
	store := NewRecoveryStore(testDB(t))

	if err := store.Set("pending", []byte(`{"channelId":"c-1"}`), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	value, ok, err := store.Consume("pending")
	if err != nil || !ok {
		t.Fatalf("Consume = %v, %v; want live entry", ok, err)
	}
	if string(value) != `{"channelId":"c-1"}` {
		t.Errorf("value = %s", value)
	}

	// Second consume finds nothing.
	if _, ok, err := store.Consume("pending"); err != nil || ok {
		t.Errorf("second Consume = %v, %v; want absent", ok, err)
	}
}

func TestRecoveryStoreExpiry(t *testing.T) {
	store := NewRecoveryStore(testDB(t))

	if err := store.Set("stale", []byte("x"), -time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok, err := store.Consume("stale"); err != nil || ok {
		t.Errorf("Consume expired = %v, %v; want absent", ok, err)
	}
}

func TestRecoveryStorePeekLeavesEntry(t *testing.T) {
	store := NewRecoveryStore(testDB(t))

	if err := store.Set("pending", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// Peek any number of times; the entry stays until consumed.
	for i := 0; i < 3; i++ {
		value, ok, err := store.Peek("pending")
		if err != nil || !ok || string(value) != "v" {
			t.Fatalf("Peek #%d = %q, %v, %v; want live entry", i, value, ok, err)
		}
	}
	if _, ok, err := store.Consume("pending"); err != nil || !ok {
		t.Fatalf("Consume after Peek = %v, %v; want live entry", ok, err)
	}
	if _, ok, _ := store.Peek("pending"); ok {
		t.Error("Peek after Consume should find nothing")
	}

	if err := store.Set("stale", []byte("x"), -time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok, err := store.Peek("stale"); err != nil || ok {
		t.Errorf("Peek expired = %v, %v; want absent", ok, err)
	}
}

func TestRecoveryStoreReplaceAndDelete(t *testing.T) {
	store := NewRecoveryStore(testDB(t))

	if err := store.Set("k", []byte("one"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.Set("k", []byte("two"), time.Minute); err != nil {
		t.Fatalf("replacing Set: %v", err)
	}
	value, ok, err := store.Consume("k")
	if err != nil || !ok || string(value) != "two" {
		t.Fatalf("Consume = %q, %v, %v; want two", value, ok, err)
	}

	if err := store.Set("k", []byte("three"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.Delete("k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := store.Consume("k"); ok {
		t.Error("entry should be gone after Delete")
	}
}

func TestMemoryRecoveryStore(t *testing.T) {
	store := NewMemoryRecoveryStore()

	if err := store.Set("k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if value, ok, err := store.Peek("k"); err != nil || !ok || string(value) != "v" {
		t.Fatalf("Peek = %q, %v, %v", value, ok, err)
	}
	value, ok, err := store.Consume("k")
	if err != nil || !ok || string(value) != "v" {
		t.Fatalf("Consume = %q, %v, %v", value, ok, err)
	}
	if _, ok, _ := store.Consume("k"); ok {
		t.Error("consume must be one-shot")
	}

	if err := store.Set("stale", []byte("x"), -time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok, _ := store.Consume("stale"); ok {
		t.Error("expired entry must be absent")
	}
}
