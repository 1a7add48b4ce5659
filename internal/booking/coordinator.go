// Package booking serializes all writes to the reservation store and keeps
// the campaign's slot invariants: one scheduled reservation per slot, one per
// application, terminal statuses never reopened.
package booking

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"slotline/internal/domain"
	"slotline/internal/events"
	"slotline/internal/notify"
	"slotline/internal/store"
)

// DefaultTimeout bounds every write operation.
const DefaultTimeout = 5 * time.Second

type Coordinator struct {
	DB       *sql.DB
	Store    store.Store
	Events   events.Writer
	Grid     domain.Grid
	Notifier *notify.Notifier
	Timeout  time.Duration
	Now      func() time.Time
}

func New(db *sql.DB, grid domain.Grid, n *notify.Notifier) *Coordinator {
	return &Coordinator{
		DB:       db,
		Store:    store.Store{DB: db},
		Events:   events.Writer{DB: db},
		Grid:     grid,
		Notifier: n,
		Timeout:  DefaultTimeout,
		Now:      time.Now,
	}
}

func (c *Coordinator) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	t := c.Timeout
	if t <= 0 {
		t = DefaultTimeout
	}
	return context.WithTimeout(ctx, t)
}

func (c *Coordinator) broadcast() {
	if c.Notifier != nil {
		c.Notifier.Broadcast()
	}
}

// BookOptions are parameters for booking a slot.
type BookOptions struct {
	Date          string
	Time          string
	ApplicationID string
	CandidateName string
	JobTitle      string
	ActorID       string
}

func (c *Coordinator) validate(opts BookOptions) error {
	if _, err := time.Parse(domain.DateLayout, opts.Date); err != nil {
		return &ValidationError{Field: "date", Reason: "want YYYY-MM-DD"}
	}
	if !c.Grid.Contains(opts.Time) {
		return &ValidationError{Field: "time", Reason: "not a slot on the interview grid"}
	}
	if opts.ApplicationID == "" {
		return &ValidationError{Field: "application_id", Reason: "required"}
	}
	return nil
}

// Book reserves (date, time) for an application. A booked slot is rejected
// with SlotUnavailableError no matter who holds it, including the booking
// application. When the target slot is free, any prior scheduled reservation
// the application holds is retired in the same transaction, so an application
// never holds two slots, not even mid-move. The storage layer's unique
// indexes arbitrate concurrent bookings; the loser gets SlotUnavailableError.
func (c *Coordinator) Book(ctx context.Context, opts BookOptions) (domain.Reservation, error) {
	if err := c.validate(opts); err != nil {
		return domain.Reservation{}, err
	}
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Reservation{}, &StorageError{Op: "book", Err: err}
	}
	defer tx.Rollback()

	holder, err := c.Store.ActiveBySlotTx(ctx, tx, opts.Date, opts.Time)
	switch {
	case err == nil:
		// Occupied is occupied, even when the holder is the booking
		// application itself; re-booking a held slot never churns the
		// reservation.
		return domain.Reservation{}, &SlotUnavailableError{Date: opts.Date, Time: opts.Time, HeldBy: holder.ApplicationID}
	case !errors.Is(err, store.ErrNotFound):
		return domain.Reservation{}, &StorageError{Op: "book", Err: err}
	}

	prior, err := c.Store.ActiveByApplicationTx(ctx, tx, opts.ApplicationID)
	switch {
	case err == nil:
		if err := c.Store.UpdateStatus(ctx, tx, prior.ID, domain.StatusCancelled); err != nil {
			return domain.Reservation{}, &StorageError{Op: "book", Err: err}
		}
		if err := c.Events.Append(ctx, tx, events.TypeSuperseded, "reservation", prior.ID, opts.ActorID, events.EventPayload{
			"application_id": prior.ApplicationID,
			"date":           prior.Date,
			"time":           prior.Time,
		}); err != nil {
			return domain.Reservation{}, &StorageError{Op: "book", Err: err}
		}
	case !errors.Is(err, store.ErrNotFound):
		return domain.Reservation{}, &StorageError{Op: "book", Err: err}
	}

	r := domain.Reservation{
		ID:            uuid.NewString(),
		Date:          opts.Date,
		Time:          opts.Time,
		ApplicationID: opts.ApplicationID,
		CandidateName: opts.CandidateName,
		JobTitle:      opts.JobTitle,
		Status:        domain.StatusScheduled,
	}
	r, err = c.Store.Insert(ctx, tx, r)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			// A concurrent writer claimed the slot or the application between
			// our reads and the insert. The index decided; we lost.
			return domain.Reservation{}, &SlotUnavailableError{Date: opts.Date, Time: opts.Time}
		}
		return domain.Reservation{}, &StorageError{Op: "book", Err: err}
	}
	if err := c.Events.Append(ctx, tx, events.TypeBooked, "reservation", r.ID, opts.ActorID, events.EventPayload{
		"application_id": r.ApplicationID,
		"date":           r.Date,
		"time":           r.Time,
	}); err != nil {
		return domain.Reservation{}, &StorageError{Op: "book", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return domain.Reservation{}, &StorageError{Op: "book", Err: err}
	}
	c.broadcast()
	return r, nil
}

// Cancel retires the application's scheduled reservation, freeing its slot.
// Cancelling an application with nothing scheduled is a no-op success; the
// returned pointer is nil in that case.
func (c *Coordinator) Cancel(ctx context.Context, applicationID, actorID string) (*domain.Reservation, error) {
	if applicationID == "" {
		return nil, &ValidationError{Field: "application_id", Reason: "required"}
	}
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, &StorageError{Op: "cancel", Err: err}
	}
	defer tx.Rollback()

	r, err := c.Store.ActiveByApplicationTx(ctx, tx, applicationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "cancel", Err: err}
	}
	if err := c.Store.UpdateStatus(ctx, tx, r.ID, domain.StatusCancelled); err != nil {
		return nil, &StorageError{Op: "cancel", Err: err}
	}
	if err := c.Events.Append(ctx, tx, events.TypeCancelled, "reservation", r.ID, actorID, events.EventPayload{
		"application_id": r.ApplicationID,
		"date":           r.Date,
		"time":           r.Time,
	}); err != nil {
		return nil, &StorageError{Op: "cancel", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return nil, &StorageError{Op: "cancel", Err: err}
	}
	r.Status = domain.StatusCancelled
	c.broadcast()
	return &r, nil
}

// Complete marks a scheduled reservation as completed. Completing a reservation
// already in a terminal status is a no-op success; an unknown id is
// store.ErrNotFound.
func (c *Coordinator) Complete(ctx context.Context, id, actorID string) (domain.Reservation, error) {
	if id == "" {
		return domain.Reservation{}, &ValidationError{Field: "id", Reason: "required"}
	}
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Reservation{}, &StorageError{Op: "complete", Err: err}
	}
	defer tx.Rollback()

	r, err := c.Store.GetTx(ctx, tx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Reservation{}, err
	}
	if err != nil {
		return domain.Reservation{}, &StorageError{Op: "complete", Err: err}
	}
	if domain.Terminal(r.Status) {
		return r, nil
	}
	if err := c.Store.UpdateStatus(ctx, tx, r.ID, domain.StatusCompleted); err != nil {
		return domain.Reservation{}, &StorageError{Op: "complete", Err: err}
	}
	if err := c.Events.Append(ctx, tx, events.TypeCompleted, "reservation", r.ID, actorID, events.EventPayload{
		"application_id": r.ApplicationID,
		"date":           r.Date,
		"time":           r.Time,
	}); err != nil {
		return domain.Reservation{}, &StorageError{Op: "complete", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return domain.Reservation{}, &StorageError{Op: "complete", Err: err}
	}
	r.Status = domain.StatusCompleted
	c.broadcast()
	return r, nil
}

// IsBooked reports whether (date, time) currently has a scheduled
// reservation.
func (c *Coordinator) IsBooked(ctx context.Context, date, slot string) (bool, error) {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	_, err := c.Store.ActiveBySlot(ctx, date, slot)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, &StorageError{Op: "is-booked", Err: err}
	}
	return true, nil
}

// ActiveReservations returns every scheduled reservation ordered by
// (date, time), or one day's when date is non-empty.
func (c *Coordinator) ActiveReservations(ctx context.Context, date string) ([]domain.Reservation, error) {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	var (
		res []domain.Reservation
		err error
	)
	if date == "" {
		res, err = c.Store.LoadActive(ctx)
	} else {
		res, err = c.Store.ActiveByDate(ctx, date)
	}
	if err != nil {
		return nil, &StorageError{Op: "reservations", Err: err}
	}
	return res, nil
}
