package stores

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPendingUpsertKeepsLatest(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewPendingStore(rdb, "pending")
	ctx := context.Background()

	if err := s.Save(ctx, &PendingRecord{Email: "a@x.io", Name: "first"}, time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.Save(ctx, &PendingRecord{Email: "a@x.io", Name: "second", Skills: []string{"go"}}, time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	rec, err := s.Get(ctx, "a@x.io")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rec.Name != "second" || len(rec.Skills) != 1 {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestPendingExpiresWithTTL(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewPendingStore(rdb, "pending")
	ctx := context.Background()

	if err := s.Save(ctx, &PendingRecord{Email: "a@x.io"}, time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, err := s.Get(ctx, "a@x.io"); !errors.Is(err, ErrPendingNotFound) {
		t.Fatalf("expected ErrPendingNotFound, got %v", err)
	}
}

func TestPendingDelete(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewPendingStore(rdb, "pending")
	ctx := context.Background()

	if err := s.Save(ctx, &PendingRecord{Email: "a@x.io"}, time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.Delete(ctx, "a@x.io"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(ctx, "a@x.io"); !errors.Is(err, ErrPendingNotFound) {
		t.Fatalf("expected ErrPendingNotFound, got %v", err)
	}
}

func TestPendingSaveRequiresEmail(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewPendingStore(rdb, "")
	if err := s.Save(context.Background(), &PendingRecord{}, time.Minute); err == nil {
		t.Fatal("expected error for empty email")
	}
}
