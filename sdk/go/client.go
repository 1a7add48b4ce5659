package slotlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Client is a minimal Slotline HTTP API client.
type Client struct {
	BaseURL    string
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Reservation represents the API reservation model.
type Reservation struct {
	ID            string `json:"id"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	ApplicationID string `json:"application_id"`
	CandidateName string `json:"candidate_name,omitempty"`
	JobTitle      string `json:"job_title,omitempty"`
	Status        string `json:"status"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

// Slot is one grid entry in a day's availability.
type Slot struct {
	Time          string `json:"time"`
	Available     bool   `json:"available"`
	ApplicationID string `json:"application_id,omitempty"`
	CandidateName string `json:"candidate_name,omitempty"`
	JobTitle      string `json:"job_title,omitempty"`
}

// Day is a full day's availability.
type Day struct {
	Date            string `json:"date"`
	Slots           []Slot `json:"slots"`
	FullyBooked     bool   `json:"fully_booked"`
	PartiallyBooked bool   `json:"partially_booked"`
}

// DaySummary is one calendar entry.
type DaySummary struct {
	Date            string `json:"date"`
	Booked          int    `json:"booked"`
	Total           int    `json:"total"`
	FullyBooked     bool   `json:"fully_booked"`
	PartiallyBooked bool   `json:"partially_booked"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsConflict reports whether the error is a lost booking race (409).
func (e *APIError) IsConflict() bool { return e.StatusCode == http.StatusConflict }

// Book reserves a slot for an application. Any prior reservation the
// application holds is moved.
func (c *Client) Book(ctx context.Context, date, slot, applicationID, candidateName, jobTitle string) (Reservation, error) {
	body := map[string]any{
		"date":           date,
		"time":           slot,
		"application_id": applicationID,
		"candidate_name": candidateName,
		"job_title":      jobTitle,
	}
	var resp Reservation
	err := c.do(ctx, http.MethodPost, "v0/reservations", body, &resp)
	return resp, err
}

// Cancel frees the application's reservation. Cancelling an application with
// nothing scheduled succeeds.
func (c *Client) Cancel(ctx context.Context, applicationID string) error {
	endpoint := fmt.Sprintf("v0/applications/%s/reservation", url.PathEscape(applicationID))
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

// Complete marks an interview as held.
func (c *Client) Complete(ctx context.Context, reservationID string) (Reservation, error) {
	endpoint := fmt.Sprintf("v0/reservations/%s/complete", url.PathEscape(reservationID))
	var resp Reservation
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// Availability returns the day's slots in grid order.
func (c *Client) Availability(ctx context.Context, date string) (Day, error) {
	var resp Day
	err := c.do(ctx, http.MethodGet, "v0/slots/"+url.PathEscape(date), nil, &resp)
	return resp, err
}

// Calendar returns booking load for the inclusive date range.
func (c *Client) Calendar(ctx context.Context, from, to string) ([]DaySummary, error) {
	endpoint := fmt.Sprintf("v0/calendar?from=%s&to=%s", url.QueryEscape(from), url.QueryEscape(to))
	var resp []DaySummary
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Reservations lists scheduled reservations, optionally for one date.
func (c *Client) Reservations(ctx context.Context, date string) ([]Reservation, error) {
	endpoint := "v0/reservations"
	if date != "" {
		endpoint += "?date=" + url.QueryEscape(date)
	}
	var resp []Reservation
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent events, newest first.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Watch connects to the change stream and invokes fn on every availability
// change until the context is done or the connection drops. The signal
// carries no data; re-query for current state.
func (c *Client) Watch(ctx context.Context, fn func()) error {
	wsURL := strings.TrimRight(c.BaseURL, "/") + "/v0/ws"
	switch {
	case strings.HasPrefix(wsURL, "https"):
		wsURL = "wss" + strings.TrimPrefix(wsURL, "https")
	case strings.HasPrefix(wsURL, "http"):
		wsURL = "ws" + strings.TrimPrefix(wsURL, "http")
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	for {
		var msg struct {
			Type string `json:"type"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if msg.Type == "reservations_changed" {
			fn()
		}
	}
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	u := strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.ActorID != "" {
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
