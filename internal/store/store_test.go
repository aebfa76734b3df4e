package store

import (
	"context"
	"errors"
	"testing"

	"skiff/internal/config"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Paths.StagingDir = t.TempDir()

	s, err := Open(&cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSubscriberLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, chat := range []int64{10, 20, 10} {
		if err := s.AddSubscriber(ctx, chat); err != nil {
			t.Fatalf("AddSubscriber(%d): %v", chat, err)
		}
	}

	chats, err := s.Subscribers(ctx)
	if err != nil {
		t.Fatalf("Subscribers: %v", err)
	}
	if len(chats) != 2 || chats[0] != 10 || chats[1] != 20 {
		t.Fatalf("Subscribers = %v, want [10 20]", chats)
	}

	if err := s.RemoveSubscriber(ctx, 10); err != nil {
		t.Fatalf("RemoveSubscriber: %v", err)
	}
	chats, err = s.Subscribers(ctx)
	if err != nil {
		t.Fatalf("Subscribers: %v", err)
	}
	if len(chats) != 1 || chats[0] != 20 {
		t.Fatalf("Subscribers = %v, want [20]", chats)
	}
}

func TestRecordAndListDeliveries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.RecordDelivery(ctx, 7, "[Skiff Relay].mp4", StatusDelivered, ""); err != nil {
		t.Fatalf("RecordDelivery: %v", err)
	}
	if _, err := s.RecordDelivery(ctx, 7, "[Skiff Relay].mkv", StatusFailed, "HTTP 502"); err != nil {
		t.Fatalf("RecordDelivery: %v", err)
	}

	deliveries, err := s.RecentDeliveries(ctx, 10)
	if err != nil {
		t.Fatalf("RecentDeliveries: %v", err)
	}
	if len(deliveries) != 2 {
		t.Fatalf("got %d rows, want 2", len(deliveries))
	}
	// Most recent first.
	if deliveries[0].Status != StatusFailed || deliveries[0].Diagnostic != "HTTP 502" {
		t.Fatalf("row 0 = %+v", deliveries[0])
	}
	if deliveries[1].Status != StatusDelivered || deliveries[1].Diagnostic != "" {
		t.Fatalf("row 1 = %+v", deliveries[1])
	}
	if deliveries[0].CreatedAt.IsZero() {
		t.Fatal("created_at not parsed")
	}
}

func TestRecentDeliveriesLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := s.RecordDelivery(ctx, 1, "f.mp4", StatusDelivered, ""); err != nil {
			t.Fatalf("RecordDelivery: %v", err)
		}
	}
	deliveries, err := s.RecentDeliveries(ctx, 3)
	if err != nil {
		t.Fatalf("RecentDeliveries: %v", err)
	}
	if len(deliveries) != 3 {
		t.Fatalf("got %d rows, want 3", len(deliveries))
	}
}

func TestReopenVerifiesSchemaVersion(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Paths.StagingDir = t.TempDir()

	s, err := Open(&cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("corrupt version: %v", err)
	}
	s.Close()

	if _, err := Open(&cfg); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("err = %v, want ErrSchemaMismatch", err)
	}
}
