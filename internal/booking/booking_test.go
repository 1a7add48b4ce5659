package booking_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"slotline/internal/booking"
	"slotline/internal/db"
	"slotline/internal/domain"
	"slotline/internal/migrate"
	"slotline/internal/notify"
	"slotline/internal/store"
)

type testEnv struct {
	Coord    *booking.Coordinator
	Notifier *notify.Notifier
	Ctx      context.Context
}

func newTestEnv(t *testing.T, gridTimes ...string) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	grid := domain.DefaultGrid()
	if len(gridTimes) > 0 {
		grid, err = domain.NewGrid(gridTimes)
		if err != nil {
			t.Fatalf("grid: %v", err)
		}
	}
	n := notify.New()
	coord := booking.New(conn, grid, n)
	coord.Now = func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) }
	coord.Store.Now = coord.Now
	coord.Events.Now = coord.Now
	return testEnv{Coord: coord, Notifier: n, Ctx: context.Background()}
}

func mustBook(t *testing.T, env testEnv, date, slot, app, name, job string) domain.Reservation {
	t.Helper()
	r, err := env.Coord.Book(env.Ctx, booking.BookOptions{
		Date: date, Time: slot, ApplicationID: app,
		CandidateName: name, JobTitle: job, ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("book %s %s for %s: %v", date, slot, app, err)
	}
	return r
}

func TestBookFreeSlot(t *testing.T) {
	env := newTestEnv(t)
	r := mustBook(t, env, "2026-03-10", "09:00", "app-1", "Alice", "Engineer")
	if r.Status != domain.StatusScheduled {
		t.Fatalf("status = %q, want scheduled", r.Status)
	}
	booked, err := env.Coord.IsBooked(env.Ctx, "2026-03-10", "09:00")
	if err != nil || !booked {
		t.Fatalf("IsBooked = %v, %v, want true", booked, err)
	}
}

func TestBookValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		name string
		opts booking.BookOptions
	}{
		{"bad date", booking.BookOptions{Date: "10/03/2026", Time: "09:00", ApplicationID: "app-1"}},
		{"off-grid time", booking.BookOptions{Date: "2026-03-10", Time: "09:30", ApplicationID: "app-1"}},
		{"missing application", booking.BookOptions{Date: "2026-03-10", Time: "09:00"}},
	}
	for _, tc := range cases {
		_, err := env.Coord.Book(env.Ctx, tc.opts)
		var verr *booking.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("%s: err = %v, want ValidationError", tc.name, err)
		}
	}
}

func TestBookHeldSlot(t *testing.T) {
	env := newTestEnv(t)
	mustBook(t, env, "2026-03-10", "09:00", "app-1", "Alice", "Engineer")
	_, err := env.Coord.Book(env.Ctx, booking.BookOptions{
		Date: "2026-03-10", Time: "09:00", ApplicationID: "app-2",
		CandidateName: "Bob", JobTitle: "Engineer", ActorID: "tester",
	})
	var uerr *booking.SlotUnavailableError
	if !errors.As(err, &uerr) {
		t.Fatalf("err = %v, want SlotUnavailableError", err)
	}
	if uerr.HeldBy != "app-1" {
		t.Fatalf("HeldBy = %q, want app-1", uerr.HeldBy)
	}
}

func TestRebookMovesReservation(t *testing.T) {
	env := newTestEnv(t)
	first := mustBook(t, env, "2026-03-10", "09:00", "app-1", "Alice", "Engineer")
	second := mustBook(t, env, "2026-03-10", "11:00", "app-1", "Alice", "Engineer")

	if booked, _ := env.Coord.IsBooked(env.Ctx, "2026-03-10", "09:00"); booked {
		t.Fatal("old slot still booked after move")
	}
	if booked, _ := env.Coord.IsBooked(env.Ctx, "2026-03-10", "11:00"); !booked {
		t.Fatal("new slot not booked after move")
	}
	active, err := env.Coord.ActiveReservations(env.Ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || active[0].ID != second.ID {
		t.Fatalf("active = %+v, want exactly the new reservation", active)
	}
	got, err := env.Coord.Store.Get(env.Ctx, first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusCancelled {
		t.Fatalf("prior status = %q, want cancelled", got.Status)
	}
}

func TestRebookOwnSlotRejected(t *testing.T) {
	env := newTestEnv(t)
	first := mustBook(t, env, "2026-03-10", "09:00", "app-1", "Alice", "Engineer")

	// booking the exact slot the application already holds is a conflict,
	// not a move; the held reservation must survive untouched
	_, err := env.Coord.Book(env.Ctx, booking.BookOptions{
		Date: "2026-03-10", Time: "09:00", ApplicationID: "app-1",
		CandidateName: "Alice", JobTitle: "Engineer", ActorID: "tester",
	})
	var uerr *booking.SlotUnavailableError
	if !errors.As(err, &uerr) {
		t.Fatalf("err = %v, want SlotUnavailableError", err)
	}
	if uerr.HeldBy != "app-1" {
		t.Fatalf("HeldBy = %q, want app-1", uerr.HeldBy)
	}

	got, err := env.Coord.Store.Get(env.Ctx, first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusScheduled {
		t.Fatalf("held reservation status = %q, want scheduled", got.Status)
	}
	active, err := env.Coord.ActiveReservations(env.Ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || active[0].ID != first.ID {
		t.Fatalf("active = %+v, want only the original reservation", active)
	}
	evts, err := env.Coord.Events.Latest(env.Ctx, 10, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(evts) != 1 || evts[0].Type != "reservation.booked" {
		t.Fatalf("events = %+v, want only the original booked event", evts)
	}
}

func TestCancelIdempotent(t *testing.T) {
	env := newTestEnv(t)
	mustBook(t, env, "2026-03-10", "09:00", "app-1", "Alice", "Engineer")

	r, err := env.Coord.Cancel(env.Ctx, "app-1", "tester")
	if err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	if r == nil || r.Status != domain.StatusCancelled {
		t.Fatalf("first cancel returned %+v", r)
	}
	if booked, _ := env.Coord.IsBooked(env.Ctx, "2026-03-10", "09:00"); booked {
		t.Fatal("slot still booked after cancel")
	}
	r, err = env.Coord.Cancel(env.Ctx, "app-1", "tester")
	if err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if r != nil {
		t.Fatalf("second cancel returned %+v, want nil no-op", r)
	}
}

func TestCompleteLifecycle(t *testing.T) {
	env := newTestEnv(t)
	r := mustBook(t, env, "2026-03-10", "09:00", "app-1", "Alice", "Engineer")

	done, err := env.Coord.Complete(env.Ctx, r.ID, "tester")
	if err != nil || done.Status != domain.StatusCompleted {
		t.Fatalf("complete: %+v, %v", done, err)
	}
	// completed is terminal; repeating is a no-op
	again, err := env.Coord.Complete(env.Ctx, r.ID, "tester")
	if err != nil || again.Status != domain.StatusCompleted {
		t.Fatalf("repeat complete: %+v, %v", again, err)
	}
	if _, err := env.Coord.Complete(env.Ctx, "no-such-id", "tester"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("unknown id: %v, want ErrNotFound", err)
	}
	// a completed slot stays consumed
	if booked, _ := env.Coord.IsBooked(env.Ctx, "2026-03-10", "09:00"); booked {
		t.Fatal("completed reservation still counts as scheduled")
	}
}

func TestConcurrentBookSameSlot(t *testing.T) {
	env := newTestEnv(t)
	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.Coord.Book(env.Ctx, booking.BookOptions{
				Date: "2026-03-10", Time: "09:00",
				ApplicationID: "app-" + string(rune('a'+i)),
				CandidateName: "Racer", JobTitle: "Engineer", ActorID: "tester",
			})
		}(i)
	}
	wg.Wait()

	var wins, losses int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		default:
			var uerr *booking.SlotUnavailableError
			if !errors.As(err, &uerr) {
				t.Fatalf("unexpected error kind: %v", err)
			}
			losses++
		}
	}
	if wins != 1 || losses != callers-1 {
		t.Fatalf("wins = %d, losses = %d, want 1 and %d", wins, losses, callers-1)
	}
	active, err := env.Coord.ActiveReservations(env.Ctx, "2026-03-10")
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 {
		t.Fatalf("active = %d, want 1", len(active))
	}
}

func TestConcurrentRebookSingleActivePerApplication(t *testing.T) {
	env := newTestEnv(t)
	times := domain.DefaultGrid().Times()
	var wg sync.WaitGroup
	for i := 0; i < len(times); i++ {
		wg.Add(1)
		go func(slot string) {
			defer wg.Done()
			// every call books for the same application; losers of the
			// slot race are fine, the invariant under test is one active
			// reservation per application in any interleaving
			_, _ = env.Coord.Book(env.Ctx, booking.BookOptions{
				Date: "2026-03-10", Time: slot, ApplicationID: "app-1",
				CandidateName: "Alice", JobTitle: "Engineer", ActorID: "tester",
			})
		}(times[i])
	}
	wg.Wait()

	active, err := env.Coord.ActiveReservations(env.Ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 {
		t.Fatalf("active reservations for app-1 = %d, want 1", len(active))
	}
}

func TestAvailabilityView(t *testing.T) {
	env := newTestEnv(t)
	mustBook(t, env, "2026-03-10", "10:00", "app-1", "Alice", "Engineer")

	slots, err := env.Coord.Availability(env.Ctx, "2026-03-10")
	if err != nil {
		t.Fatal(err)
	}
	grid := domain.DefaultGrid()
	if len(slots) != grid.Len() {
		t.Fatalf("slots = %d, want %d", len(slots), grid.Len())
	}
	for i, s := range slots {
		if s.Time != grid.Times()[i] {
			t.Fatalf("slot %d out of grid order: %q", i, s.Time)
		}
		switch s.Time {
		case "10:00":
			if s.Available || s.ApplicationID != "app-1" || s.CandidateName != "Alice" {
				t.Fatalf("booked slot wrong: %+v", s)
			}
		default:
			if !s.Available || s.ApplicationID != "" {
				t.Fatalf("free slot wrong: %+v", s)
			}
		}
	}
}

func TestFullyBookedMatchesAvailability(t *testing.T) {
	env := newTestEnv(t, "09:00", "10:00")

	mustBook(t, env, "2026-03-10", "09:00", "app-1", "Alice", "Engineer")
	_, err := env.Coord.Book(env.Ctx, booking.BookOptions{
		Date: "2026-03-10", Time: "09:00", ApplicationID: "app-2",
		CandidateName: "Bob", JobTitle: "Engineer", ActorID: "tester",
	})
	var uerr *booking.SlotUnavailableError
	if !errors.As(err, &uerr) {
		t.Fatalf("want SlotUnavailableError, got %v", err)
	}
	if full, _ := env.Coord.IsDateFullyBooked(env.Ctx, "2026-03-10"); full {
		t.Fatal("day reported full with 10:00 free")
	}
	if partial, _ := env.Coord.IsDatePartiallyBooked(env.Ctx, "2026-03-10"); !partial {
		t.Fatal("day not reported partially booked")
	}
	mustBook(t, env, "2026-03-10", "10:00", "app-2", "Bob", "Engineer")
	if full, _ := env.Coord.IsDateFullyBooked(env.Ctx, "2026-03-10"); !full {
		t.Fatal("day not reported full with every slot held")
	}

	// fully booked iff availability has zero free entries
	slots, err := env.Coord.Availability(env.Ctx, "2026-03-10")
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range slots {
		if s.Available {
			t.Fatalf("free slot %q on a full day", s.Time)
		}
	}
}

func TestCalendarSummaries(t *testing.T) {
	env := newTestEnv(t, "09:00", "10:00")
	mustBook(t, env, "2026-03-10", "09:00", "app-1", "Alice", "Engineer")
	mustBook(t, env, "2026-03-11", "09:00", "app-2", "Bob", "Engineer")
	mustBook(t, env, "2026-03-11", "10:00", "app-3", "Carol", "Designer")

	days, err := env.Coord.Calendar(env.Ctx, "2026-03-09", "2026-03-12")
	if err != nil {
		t.Fatal(err)
	}
	if len(days) != 4 {
		t.Fatalf("days = %d, want 4", len(days))
	}
	want := []domain.DaySummary{
		{Date: "2026-03-09", Booked: 0, Total: 2},
		{Date: "2026-03-10", Booked: 1, Total: 2, PartiallyBooked: true},
		{Date: "2026-03-11", Booked: 2, Total: 2, FullyBooked: true},
		{Date: "2026-03-12", Booked: 0, Total: 2},
	}
	for i, w := range want {
		if days[i] != w {
			t.Fatalf("day %d = %+v, want %+v", i, days[i], w)
		}
	}
	if _, err := env.Coord.Calendar(env.Ctx, "2026-03-12", "2026-03-09"); err == nil {
		t.Fatal("inverted range accepted")
	}
}

func TestBookSignalsSubscribers(t *testing.T) {
	env := newTestEnv(t)
	ch := env.Notifier.Subscribe()
	defer env.Notifier.Unsubscribe(ch)

	mustBook(t, env, "2026-03-10", "09:00", "app-1", "Alice", "Engineer")
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no change signal after book")
	}

	if _, err := env.Coord.Cancel(env.Ctx, "app-1", "tester"); err != nil {
		t.Fatal(err)
	}
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no change signal after cancel")
	}
}

func TestReadsHonorDefaultTimeout(t *testing.T) {
	env := newTestEnv(t)
	mustBook(t, env, "2026-03-10", "09:00", "app-1", "Alice", "Engineer")

	// an already-expired deadline must surface as a retryable StorageError,
	// never as silent success
	env.Coord.Timeout = time.Nanosecond
	var serr *booking.StorageError
	if _, err := env.Coord.Availability(env.Ctx, "2026-03-10"); !errors.As(err, &serr) {
		t.Fatalf("Availability: err = %v, want StorageError", err)
	}
	if _, err := env.Coord.ActiveReservations(env.Ctx, ""); !errors.As(err, &serr) {
		t.Fatalf("ActiveReservations: err = %v, want StorageError", err)
	}
	if _, err := env.Coord.IsBooked(env.Ctx, "2026-03-10", "09:00"); !errors.As(err, &serr) {
		t.Fatalf("IsBooked: err = %v, want StorageError", err)
	}
}

func TestAuditTrail(t *testing.T) {
	env := newTestEnv(t)
	r := mustBook(t, env, "2026-03-10", "09:00", "app-1", "Alice", "Engineer")
	mustBook(t, env, "2026-03-10", "10:00", "app-1", "Alice", "Engineer")
	if _, err := env.Coord.Cancel(env.Ctx, "app-1", "tester"); err != nil {
		t.Fatal(err)
	}

	evts, err := env.Coord.Events.Latest(env.Ctx, 10, "", "")
	if err != nil {
		t.Fatal(err)
	}
	// newest first: cancelled, booked(move), superseded, booked
	wantTypes := []string{"reservation.cancelled", "reservation.booked", "reservation.superseded", "reservation.booked"}
	if len(evts) != len(wantTypes) {
		t.Fatalf("events = %d, want %d", len(evts), len(wantTypes))
	}
	for i, w := range wantTypes {
		if evts[i].Type != w {
			t.Fatalf("event %d = %q, want %q", i, evts[i].Type, w)
		}
	}
	superseded, err := env.Coord.Events.Latest(env.Ctx, 10, "reservation.superseded", r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(superseded) != 1 {
		t.Fatalf("superseded events for first reservation = %d, want 1", len(superseded))
	}
}
