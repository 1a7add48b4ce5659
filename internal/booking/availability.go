package booking

import (
	"context"
	"time"

	"slotline/internal/domain"
)

// Availability returns one entry per grid slot for a day, in grid order, with
// holder details on booked slots.
func (c *Coordinator) Availability(ctx context.Context, date string) ([]domain.Slot, error) {
	if _, err := time.Parse(domain.DateLayout, date); err != nil {
		return nil, &ValidationError{Field: "date", Reason: "want YYYY-MM-DD"}
	}
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	active, err := c.Store.ActiveByDate(ctx, date)
	if err != nil {
		return nil, &StorageError{Op: "availability", Err: err}
	}
	byTime := make(map[string]domain.Reservation, len(active))
	for _, r := range active {
		byTime[r.Time] = r
	}
	slots := make([]domain.Slot, 0, c.Grid.Len())
	for _, t := range c.Grid.Times() {
		s := domain.Slot{Time: t, Available: true}
		if r, ok := byTime[t]; ok {
			s.Available = false
			s.ApplicationID = r.ApplicationID
			s.CandidateName = r.CandidateName
			s.JobTitle = r.JobTitle
		}
		slots = append(slots, s)
	}
	return slots, nil
}

// Calendar summarizes booking load per day over [from, to], inclusive. Days
// with no reservations still appear, with zero booked slots.
func (c *Coordinator) Calendar(ctx context.Context, from, to string) ([]domain.DaySummary, error) {
	start, err := time.Parse(domain.DateLayout, from)
	if err != nil {
		return nil, &ValidationError{Field: "from", Reason: "want YYYY-MM-DD"}
	}
	end, err := time.Parse(domain.DateLayout, to)
	if err != nil {
		return nil, &ValidationError{Field: "to", Reason: "want YYYY-MM-DD"}
	}
	if end.Before(start) {
		return nil, &ValidationError{Field: "to", Reason: "before from"}
	}
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	active, err := c.Store.LoadActive(ctx)
	if err != nil {
		return nil, &StorageError{Op: "calendar", Err: err}
	}
	booked := make(map[string]int)
	for _, r := range active {
		booked[r.Date]++
	}
	total := c.Grid.Len()
	var days []domain.DaySummary
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		date := d.Format(domain.DateLayout)
		n := booked[date]
		days = append(days, domain.DaySummary{
			Date:            date,
			Booked:          n,
			Total:           total,
			FullyBooked:     n >= total,
			PartiallyBooked: n > 0 && n < total,
		})
	}
	return days, nil
}

// IsDateFullyBooked reports whether every grid slot on the day is held.
func (c *Coordinator) IsDateFullyBooked(ctx context.Context, date string) (bool, error) {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	active, err := c.Store.ActiveByDate(ctx, date)
	if err != nil {
		return false, &StorageError{Op: "calendar", Err: err}
	}
	return len(active) >= c.Grid.Len(), nil
}

// IsDatePartiallyBooked reports whether the day has at least one held slot
// and at least one free one.
func (c *Coordinator) IsDatePartiallyBooked(ctx context.Context, date string) (bool, error) {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	active, err := c.Store.ActiveByDate(ctx, date)
	if err != nil {
		return false, &StorageError{Op: "calendar", Err: err}
	}
	return len(active) > 0 && len(active) < c.Grid.Len(), nil
}
