package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlite3 "modernc.org/sqlite"

	"slotline/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict surfaces a storage-level uniqueness rejection: a concurrent
	// writer already holds the slot or the application's active booking.
	ErrConflict = errors.New("conflict")
)

// SQLITE_CONSTRAINT primary result code.
const sqliteConstraint = 19

type Store struct {
	DB  *sql.DB
	Now func() time.Time
}

func (s Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func wrapConflict(err error) error {
	if err == nil {
		return nil
	}
	var serr *sqlite3.Error
	if errors.As(err, &serr) && serr.Code()&0xff == sqliteConstraint {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

// Insert writes a new reservation, stamping created_at/updated_at. A partial
// unique index rejection maps to ErrConflict.
func (s Store) Insert(ctx context.Context, tx *sql.Tx, r domain.Reservation) (domain.Reservation, error) {
	now := s.now().UTC().Format(time.RFC3339)
	r.CreatedAt = now
	r.UpdatedAt = now
	_, err := tx.ExecContext(ctx, `INSERT INTO reservations(id,date,time,application_id,candidate_name,job_title,status,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?)`,
		r.ID, r.Date, r.Time, r.ApplicationID, r.CandidateName, r.JobTitle, r.Status, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return domain.Reservation{}, wrapConflict(err)
	}
	return r, nil
}

// UpdateStatus moves a scheduled reservation to a terminal status and
// refreshes updated_at. Updating an already-terminal record is a no-op
// success; an unknown id is ErrNotFound.
func (s Store) UpdateStatus(ctx context.Context, tx *sql.Tx, id, newStatus string) error {
	now := s.now().UTC().Format(time.RFC3339)
	res, err := tx.ExecContext(ctx, `UPDATE reservations SET status=?, updated_at=? WHERE id=? AND status=?`,
		newStatus, now, id, domain.StatusScheduled)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM reservations WHERE id=?`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	return err
}

const reservationColumns = `id,date,time,application_id,candidate_name,job_title,status,created_at,updated_at`

func scanReservation(row *sql.Row) (domain.Reservation, error) {
	var r domain.Reservation
	err := row.Scan(&r.ID, &r.Date, &r.Time, &r.ApplicationID, &r.CandidateName, &r.JobTitle, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return r, ErrNotFound
	}
	return r, err
}

func collectReservations(rows *sql.Rows) ([]domain.Reservation, error) {
	defer rows.Close()
	var res []domain.Reservation
	for rows.Next() {
		var r domain.Reservation
		if err := rows.Scan(&r.ID, &r.Date, &r.Time, &r.ApplicationID, &r.CandidateName, &r.JobTitle, &r.Status, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

// Get fetches a reservation by id regardless of status.
func (s Store) Get(ctx context.Context, id string) (domain.Reservation, error) {
	return scanReservation(s.DB.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id=?`, id))
}

// GetTx is Get inside a transaction.
func (s Store) GetTx(ctx context.Context, tx *sql.Tx, id string) (domain.Reservation, error) {
	return scanReservation(tx.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id=?`, id))
}

// LoadActive returns every scheduled reservation ordered by (date, time).
func (s Store) LoadActive(ctx context.Context) ([]domain.Reservation, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE status=? ORDER BY date, time`, domain.StatusScheduled)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

// ActiveByDate returns scheduled reservations for one day ordered by time.
func (s Store) ActiveByDate(ctx context.Context, date string) ([]domain.Reservation, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE status=? AND date=? ORDER BY time`, domain.StatusScheduled, date)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

// ActiveBySlot returns the scheduled reservation holding (date, time), if any.
func (s Store) ActiveBySlot(ctx context.Context, date, slot string) (domain.Reservation, error) {
	return scanReservation(s.DB.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE status=? AND date=? AND time=?`,
		domain.StatusScheduled, date, slot))
}

// ActiveBySlotTx is ActiveBySlot inside a transaction.
func (s Store) ActiveBySlotTx(ctx context.Context, tx *sql.Tx, date, slot string) (domain.Reservation, error) {
	return scanReservation(tx.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE status=? AND date=? AND time=?`,
		domain.StatusScheduled, date, slot))
}

// ActiveByApplication returns the application's scheduled reservation, if any.
// Invariant: at most one row can match.
func (s Store) ActiveByApplication(ctx context.Context, applicationID string) (domain.Reservation, error) {
	return scanReservation(s.DB.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE status=? AND application_id=?`,
		domain.StatusScheduled, applicationID))
}

// ActiveByApplicationTx is ActiveByApplication inside a transaction.
func (s Store) ActiveByApplicationTx(ctx context.Context, tx *sql.Tx, applicationID string) (domain.Reservation, error) {
	return scanReservation(tx.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE status=? AND application_id=?`,
		domain.StatusScheduled, applicationID))
}
