package janitor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"remindbot/internal/storage"
)

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "bot.db")}, zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSweep(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTestStore(t)

	if _, err := store.EnsureChannel(ctx, 100, 1); err != nil {
		t.Fatalf("EnsureChannel: %v", err)
	}
	if err := store.SetPause(ctx, 100, true, time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("SetPause: %v", err)
	}
	if err := store.AppendDelivery(ctx, storage.DeliveryEntry{
		ReminderUID: "u1", Channel: 100, OK: true,
		At: time.Now().Add(-60 * 24 * time.Hour),
	}); err != nil {
		t.Fatalf("AppendDelivery: %v", err)
	}

	svc := New(Config{}, store, zerolog.Nop())
	svc.sweep()

	ch, err := store.ChannelByRef(ctx, 100)
	if err != nil {
		t.Fatalf("ChannelByRef: %v", err)
	}
	if ch.Paused {
		t.Fatal("elapsed pause survived the sweep")
	}
	pruned, err := store.PruneDeliveryLog(ctx, time.Now())
	if err != nil {
		t.Fatalf("PruneDeliveryLog: %v", err)
	}
	if pruned != 0 {
		t.Fatalf("sweep left %d stale delivery rows", pruned)
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	svc := New(Config{Schedule: "@every 1h"}, store, zerolog.Nop())
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	svc.Stop(context.Background())
	svc.Stop(context.Background())
}

func TestBadSchedule(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	svc := New(Config{Schedule: "not a cron spec"}, store, zerolog.Nop())
	if err := svc.Start(context.Background()); err == nil {
		t.Fatal("invalid schedule accepted")
	}
}
