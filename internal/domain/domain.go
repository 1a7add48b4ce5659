package domain

import (
	"fmt"
	"sort"
	"time"
)

// Reservation statuses. Scheduled is the only state a reservation is
// created in; completed and cancelled are terminal.
const (
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// DateLayout is the date-only format used everywhere; no time-zone arithmetic.
const DateLayout = "2006-01-02"

type Reservation struct {
	ID            string `json:"id"`
	Date          string `json:"date" format:"date"`
	Time          string `json:"time"`
	ApplicationID string `json:"application_id"`
	CandidateName string `json:"candidate_name,omitempty"`
	JobTitle      string `json:"job_title,omitempty"`
	Status        string `json:"status" enum:"scheduled,completed,cancelled"`
	CreatedAt     string `json:"created_at" format:"date-time"`
	UpdatedAt     string `json:"updated_at" format:"date-time"`
}

// Terminal reports whether a status permits no further transitions.
func Terminal(status string) bool {
	return status == StatusCompleted || status == StatusCancelled
}

// Slot is one entry of the availability view for a date.
type Slot struct {
	Time          string `json:"time"`
	Available     bool   `json:"available"`
	ApplicationID string `json:"application_id,omitempty"`
	CandidateName string `json:"candidate_name,omitempty"`
	JobTitle      string `json:"job_title,omitempty"`
}

// DaySummary aggregates a date's availability for calendar shading.
type DaySummary struct {
	Date            string `json:"date" format:"date"`
	Booked          int    `json:"booked"`
	Total           int    `json:"total"`
	FullyBooked     bool   `json:"fully_booked"`
	PartiallyBooked bool   `json:"partially_booked"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// Grid is the fixed, ordered set of bookable time labels shared by every
// calendar day. Immutable after construction.
type Grid struct {
	times []string
}

// NewGrid validates and orders the given HH:MM labels.
func NewGrid(times []string) (Grid, error) {
	if len(times) == 0 {
		return Grid{}, fmt.Errorf("slot grid requires at least one time label")
	}
	seen := make(map[string]struct{}, len(times))
	ordered := make([]string, 0, len(times))
	for _, t := range times {
		// time.Parse alone accepts "9:00"; slot labels are canonical HH:MM
		if _, err := time.Parse("15:04", t); err != nil || len(t) != 5 {
			return Grid{}, fmt.Errorf("invalid slot time %q: want HH:MM", t)
		}
		if _, dup := seen[t]; dup {
			return Grid{}, fmt.Errorf("duplicate slot time %q", t)
		}
		seen[t] = struct{}{}
		ordered = append(ordered, t)
	}
	sort.Strings(ordered)
	return Grid{times: ordered}, nil
}

// DefaultGrid is four morning and four afternoon slots.
func DefaultGrid() Grid {
	g, _ := NewGrid([]string{"09:00", "10:00", "11:00", "12:00", "14:00", "15:00", "16:00", "17:00"})
	return g
}

// Times returns the ordered labels as a copy.
func (g Grid) Times() []string {
	out := make([]string, len(g.times))
	copy(out, g.times)
	return out
}

func (g Grid) Contains(t string) bool {
	for _, have := range g.times {
		if have == t {
			return true
		}
	}
	return false
}

func (g Grid) Len() int { return len(g.times) }
