package server

import (
	"encoding/json"

	"slotline/internal/domain"
)

// Request payloads

type BookRequest struct {
	Date          string `json:"date" format:"date"`
	Time          string `json:"time" example:"09:00"`
	ApplicationID string `json:"application_id"`
	CandidateName string `json:"candidate_name,omitempty"`
	JobTitle      string `json:"job_title,omitempty"`
}

// Response payloads

type ReservationResponse struct {
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

type SlotResponse struct {
	Time          string `json:"time"`
	Available     bool   `json:"available"`
	ApplicationID string `json:"application_id,omitempty"`
	CandidateName string `json:"candidate_name,omitempty"`
	JobTitle      string `json:"job_title,omitempty"`
}

type DayResponse struct {
	Date            string         `json:"date" format:"date"`
	Slots           []SlotResponse `json:"slots"`
	FullyBooked     bool           `json:"fully_booked"`
	PartiallyBooked bool           `json:"partially_booked"`
}

type DaySummaryResponse struct {
	Date            string `json:"date" format:"date"`
	Booked          int    `json:"booked"`
	Total           int    `json:"total"`
	FullyBooked     bool   `json:"fully_booked"`
	PartiallyBooked bool   `json:"partially_booked"`
}

type EventResponse struct {
	ID         int64           `json:"id"`
	TS         string          `json:"ts" format:"date-time"`
	Type       string          `json:"type"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	Payload    json.RawMessage `json:"payload"`
}

func reservationResponse(r domain.Reservation) ReservationResponse {
	return ReservationResponse{
		ID:            r.ID,
		Date:          r.Date,
		Time:          r.Time,
		ApplicationID: r.ApplicationID,
		CandidateName: r.CandidateName,
		JobTitle:      r.JobTitle,
		Status:        r.Status,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func mapReservations(items []domain.Reservation) []ReservationResponse {
	res := make([]ReservationResponse, 0, len(items))
	for _, r := range items {
		res = append(res, reservationResponse(r))
	}
	return res
}

func slotResponse(s domain.Slot) SlotResponse {
	return SlotResponse{
		Time:          s.Time,
		Available:     s.Available,
		ApplicationID: s.ApplicationID,
		CandidateName: s.CandidateName,
		JobTitle:      s.JobTitle,
	}
}

func daySummaryResponse(d domain.DaySummary) DaySummaryResponse {
	return DaySummaryResponse{
		Date:            d.Date,
		Booked:          d.Booked,
		Total:           d.Total,
		FullyBooked:     d.FullyBooked,
		PartiallyBooked: d.PartiallyBooked,
	}
}

func eventResponse(e domain.Event) EventResponse {
	payload := json.RawMessage("{}")
	if e.Payload != "" && json.Valid([]byte(e.Payload)) {
		payload = json.RawMessage(e.Payload)
	}
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    payload,
	}
}
