package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"slotline/internal/db"
	"slotline/internal/domain"
	"slotline/internal/migrate"
	"slotline/internal/store"
)

func newTestStore(t *testing.T) (store.Store, context.Context) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	s := store.Store{DB: conn, Now: func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) }}
	return s, context.Background()
}

func insert(t *testing.T, s store.Store, ctx context.Context, r domain.Reservation) (domain.Reservation, error) {
	t.Helper()
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	r, err = s.Insert(ctx, tx, r)
	if err != nil {
		return domain.Reservation{}, err
	}
	return r, tx.Commit()
}

func updateStatus(t *testing.T, s store.Store, ctx context.Context, id, status string) error {
	t.Helper()
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	if err := s.UpdateStatus(ctx, tx, id, status); err != nil {
		return err
	}
	return tx.Commit()
}

func scheduled(id, date, slot, app string) domain.Reservation {
	return domain.Reservation{
		ID: id, Date: date, Time: slot, ApplicationID: app,
		CandidateName: "Alice", JobTitle: "Engineer", Status: domain.StatusScheduled,
	}
}

func TestInsertStampsTimestamps(t *testing.T) {
	s, ctx := newTestStore(t)
	r, err := insert(t, s, ctx, scheduled("r1", "2026-03-10", "09:00", "app-1"))
	if err != nil {
		t.Fatal(err)
	}
	if r.CreatedAt != "2026-03-02T09:00:00Z" || r.UpdatedAt != r.CreatedAt {
		t.Fatalf("timestamps = %q / %q", r.CreatedAt, r.UpdatedAt)
	}
}

func TestActiveSlotUniqueness(t *testing.T) {
	s, ctx := newTestStore(t)
	if _, err := insert(t, s, ctx, scheduled("r1", "2026-03-10", "09:00", "app-1")); err != nil {
		t.Fatal(err)
	}
	_, err := insert(t, s, ctx, scheduled("r2", "2026-03-10", "09:00", "app-2"))
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("second holder: %v, want ErrConflict", err)
	}
	// retiring the holder frees the slot for a new row
	if err := updateStatus(t, s, ctx, "r1", domain.StatusCancelled); err != nil {
		t.Fatal(err)
	}
	if _, err := insert(t, s, ctx, scheduled("r3", "2026-03-10", "09:00", "app-2")); err != nil {
		t.Fatal(err)
	}
}

func TestActiveApplicationUniqueness(t *testing.T) {
	s, ctx := newTestStore(t)
	if _, err := insert(t, s, ctx, scheduled("r1", "2026-03-10", "09:00", "app-1")); err != nil {
		t.Fatal(err)
	}
	_, err := insert(t, s, ctx, scheduled("r2", "2026-03-11", "10:00", "app-1"))
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("second active for application: %v, want ErrConflict", err)
	}
}

func TestUpdateStatusTerminalNoop(t *testing.T) {
	s, ctx := newTestStore(t)
	if _, err := insert(t, s, ctx, scheduled("r1", "2026-03-10", "09:00", "app-1")); err != nil {
		t.Fatal(err)
	}
	if err := updateStatus(t, s, ctx, "r1", domain.StatusCompleted); err != nil {
		t.Fatal(err)
	}
	// terminal rows never change status again
	if err := updateStatus(t, s, ctx, "r1", domain.StatusCancelled); err != nil {
		t.Fatal(err)
	}
	r, err := s.Get(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if r.Status != domain.StatusCompleted {
		t.Fatalf("status = %q, want completed", r.Status)
	}
	if err := updateStatus(t, s, ctx, "nope", domain.StatusCancelled); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("unknown id: %v, want ErrNotFound", err)
	}
}

func TestLoadActiveOrdering(t *testing.T) {
	s, ctx := newTestStore(t)
	rows := []domain.Reservation{
		scheduled("r1", "2026-03-11", "10:00", "app-1"),
		scheduled("r2", "2026-03-10", "14:00", "app-2"),
		scheduled("r3", "2026-03-10", "09:00", "app-3"),
	}
	for _, r := range rows {
		if _, err := insert(t, s, ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	if err := updateStatus(t, s, ctx, "r2", domain.StatusCancelled); err != nil {
		t.Fatal(err)
	}
	active, err := s.LoadActive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	wantIDs := []string{"r3", "r1"}
	if len(active) != len(wantIDs) {
		t.Fatalf("active = %d rows, want %d", len(active), len(wantIDs))
	}
	for i, id := range wantIDs {
		if active[i].ID != id {
			t.Fatalf("active[%d] = %s, want %s", i, active[i].ID, id)
		}
	}
}

func TestActiveLookups(t *testing.T) {
	s, ctx := newTestStore(t)
	if _, err := insert(t, s, ctx, scheduled("r1", "2026-03-10", "09:00", "app-1")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ActiveBySlot(ctx, "2026-03-10", "09:00"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ActiveBySlot(ctx, "2026-03-10", "10:00"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("free slot: %v, want ErrNotFound", err)
	}
	r, err := s.ActiveByApplication(ctx, "app-1")
	if err != nil || r.ID != "r1" {
		t.Fatalf("by application: %+v, %v", r, err)
	}
	if _, err := s.ActiveByApplication(ctx, "app-2"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("unknown application: %v, want ErrNotFound", err)
	}
	if _, err := s.Get(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("missing id: %v, want ErrNotFound", err)
	}
}
