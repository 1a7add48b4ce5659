package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"slotline/internal/booking"
	"slotline/internal/config"
	"slotline/internal/notify"
	"slotline/internal/store"
)

// Config for the HTTP API handler.
type Config struct {
	Coordinator *booking.Coordinator
	Campaign    *config.Config
	Notifier    *notify.Notifier
	Logger      *zap.SugaredLogger
	BasePath    string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"slot_unavailable"`
	Message string         `json:"message" example:"slot 2026-03-10 09:00 is held by application app-7"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

type actorKey struct{}

func actorID(ctx context.Context) string {
	if v, ok := ctx.Value(actorKey{}).(string); ok && v != "" {
		return v
	}
	return "api"
}

// New returns an HTTP handler exposing the Slotline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), actorKey{}, strings.TrimSpace(r.Header.Get("X-Actor-Id")))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	hcfg := huma.DefaultConfig("Slotline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerSlots(group, cfg.Coordinator)
	registerReservations(group, cfg.Coordinator)
	registerEvents(group, cfg.Coordinator)
	registerOpenAPI(router, api, basePath)

	hub := newHub(cfg.Notifier, logger)
	go hub.run()
	router.Get(path.Join(basePath, "ws"), hub.serveWS)

	startWebhookDispatcher(cfg.Coordinator, cfg.Campaign, cfg.Notifier, logger)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var verr *booking.ValidationError
	if errors.As(err, &verr) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": verr.Field, "reason": verr.Reason})
	}
	var uerr *booking.SlotUnavailableError
	if errors.As(err, &uerr) {
		details := map[string]any{"date": uerr.Date, "time": uerr.Time}
		if uerr.HeldBy != "" {
			details["held_by"] = uerr.HeldBy
		}
		return newAPIError(http.StatusConflict, "slot_unavailable", err.Error(), details)
	}
	if errors.Is(err, store.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	var serr *booking.StorageError
	if errors.As(err, &serr) {
		return newAPIError(http.StatusServiceUnavailable, "storage_unavailable", "storage unavailable, retry", map[string]any{"op": serr.Op})
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "slot_unavailable"
	case http.StatusServiceUnavailable:
		return "storage_unavailable"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Slotline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerSlots(api huma.API, coord *booking.Coordinator) {
	huma.Register(api, huma.Operation{
		OperationID: "get-slots",
		Method:      http.MethodGet,
		Path:        "/slots/{date}",
		Summary:     "Availability for a day",
		Errors:      []int{http.StatusBadRequest, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Date string `path:"date"`
	}) (*struct {
		Body DayResponse `json:"body"`
	}, error) {
		slots, err := coord.Availability(ctx, input.Date)
		if err != nil {
			return nil, handleError(err)
		}
		resp := DayResponse{Date: input.Date, Slots: make([]SlotResponse, 0, len(slots)), FullyBooked: len(slots) > 0}
		for _, s := range slots {
			if s.Available {
				resp.FullyBooked = false
			} else {
				resp.PartiallyBooked = true
			}
			resp.Slots = append(resp.Slots, slotResponse(s))
		}
		return &struct {
			Body DayResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-calendar",
		Method:      http.MethodGet,
		Path:        "/calendar",
		Summary:     "Booking load per day",
		Errors:      []int{http.StatusBadRequest, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		From string `query:"from" required:"true"`
		To   string `query:"to" required:"true"`
	}) (*struct {
		Body []DaySummaryResponse `json:"body"`
	}, error) {
		days, err := coord.Calendar(ctx, input.From, input.To)
		if err != nil {
			return nil, handleError(err)
		}
		resp := make([]DaySummaryResponse, 0, len(days))
		for _, d := range days {
			resp = append(resp, daySummaryResponse(d))
		}
		return &struct {
			Body []DaySummaryResponse `json:"body"`
		}{Body: resp}, nil
	})
}

func registerReservations(api huma.API, coord *booking.Coordinator) {
	huma.Register(api, huma.Operation{
		OperationID:   "book-slot",
		Method:        http.MethodPost,
		Path:          "/reservations",
		Summary:       "Book a slot",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusServiceUnavailable,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body BookRequest `json:"body"`
	}) (*struct {
		Body ReservationResponse `json:"body"`
	}, error) {
		r, err := coord.Book(ctx, booking.BookOptions{
			Date:          input.Body.Date,
			Time:          input.Body.Time,
			ApplicationID: input.Body.ApplicationID,
			CandidateName: input.Body.CandidateName,
			JobTitle:      input.Body.JobTitle,
			ActorID:       actorID(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReservationResponse `json:"body"`
		}{Body: reservationResponse(r)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-reservations",
		Method:      http.MethodGet,
		Path:        "/reservations",
		Summary:     "List scheduled reservations",
		Errors:      []int{http.StatusBadRequest, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Date string `query:"date"`
	}) (*struct {
		Body []ReservationResponse `json:"body"`
	}, error) {
		items, err := coord.ActiveReservations(ctx, input.Date)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ReservationResponse `json:"body"`
		}{Body: mapReservations(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-reservation",
		Method:      http.MethodPost,
		Path:        "/reservations/{id}/complete",
		Summary:     "Mark an interview as held",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body ReservationResponse `json:"body"`
	}, error) {
		r, err := coord.Complete(ctx, input.ID, actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReservationResponse `json:"body"`
		}{Body: reservationResponse(r)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "cancel-reservation",
		Method:        http.MethodDelete,
		Path:          "/applications/{application_id}/reservation",
		Summary:       "Cancel an application's reservation",
		DefaultStatus: http.StatusNoContent,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		ApplicationID string `path:"application_id"`
	}) (*struct{}, error) {
		// idempotent: cancelling an application with nothing scheduled is
		// still 204
		if _, err := coord.Cancel(ctx, input.ApplicationID, actorID(ctx)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerEvents(api huma.API, coord *booking.Coordinator) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Audit log, newest first",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Limit    int    `query:"limit" default:"50" maximum:"500"`
		Cursor   int64  `query:"cursor" doc:"Return events with IDs below this value"`
		Type     string `query:"type"`
		EntityID string `query:"entity_id"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		items, err := coord.Events.LatestFrom(ctx, input.Limit, input.Cursor, input.Type, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := make([]EventResponse, 0, len(items))
		for _, e := range items {
			resp = append(resp, eventResponse(e))
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: resp}, nil
	})
}
