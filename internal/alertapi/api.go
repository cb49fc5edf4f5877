// Package alertapi exposes the alert triage operations over HTTP.
package alertapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/bosun/internal/alert"
	"github.com/linnemanlabs/bosun/internal/alertsync"
	"github.com/linnemanlabs/bosun/internal/authmw"
	"github.com/linnemanlabs/bosun/internal/deeplink"
)

// AlertService defines the business operations alertapi needs.
type AlertService interface {
	Create(ctx context.Context, p alert.Principal, a *alert.Alert) (*alert.Alert, error)
	Get(ctx context.Context, p alert.Principal, id string) (*alert.Alert, error)
	Snapshot(ctx context.Context, p alert.Principal, view alert.View) (*alert.Snapshot, error)
	Queue(ctx context.Context, p alert.Principal) ([]*alert.Alert, error)
	Acknowledge(ctx context.Context, p alert.Principal, id string) (*alert.Alert, error)
	Unacknowledge(ctx context.Context, p alert.Principal, id string) (*alert.Alert, error)
	Snooze(ctx context.Context, p alert.Principal, id string, d time.Duration, reason string) (*alert.SnoozeResult, error)
	Allowance(ctx context.Context, p alert.Principal, id string) (alert.SnoozeAllowance, error)
	Assign(ctx context.Context, p alert.Principal, id string, as alert.Assignment) (*alert.Alert, error)
	Unassign(ctx context.Context, p alert.Principal, id string) (*alert.Alert, error)
	SetStatus(ctx context.Context, p alert.Principal, id string, to alert.Status) (*alert.Alert, error)
	Candidates(ctx context.Context, p alert.Principal, id string) ([]alert.Member, error)
	Preferences(ctx context.Context, p alert.Principal) (*alert.Preferences, error)
	SetPreferences(ctx context.Context, p alert.Principal, prefs alert.Preferences) (*alert.Preferences, error)
}

// LinkResolver maps an alert to the route of its originating record.
type LinkResolver interface {
	Resolve(a *alert.Alert) string
}

// Option configures an API.
type Option func(*API)

// WithFeed sets the invalidation feed used by stream sessions. Without one
// streams only poll.
func WithFeed(feed alertsync.Feed) Option {
	return func(a *API) { a.feed = feed }
}

// WithSessionOptions passes options to every stream session.
func WithSessionOptions(opts ...alertsync.Option) Option {
	return func(a *API) { a.sessionOpts = append(a.sessionOpts, opts...) }
}

// WithMiddleware runs mw on every /api/v1 route ahead of identity extraction.
func WithMiddleware(mw ...func(http.Handler) http.Handler) Option {
	return func(a *API) { a.middleware = append(a.middleware, mw...) }
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger      log.Logger
	svc         AlertService
	links       LinkResolver
	feed        alertsync.Feed
	sessionOpts []alertsync.Option
	middleware  []func(http.Handler) http.Handler
}

// New creates a new API handler. A nil links uses the built-in route table.
func New(logger log.Logger, svc AlertService, links LinkResolver, opts ...Option) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("alert service is required"))
	}
	if links == nil {
		links = deeplink.New(nil)
	}
	a := &API{
		logger: logger,
		svc:    svc,
		links:  links,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(a.middleware...)
		r.Use(authmw.Principal)

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", a.handleSnapshot)
			r.Post("/", a.handleCreate)
			r.Get("/queue", a.handleQueue)
			r.Get("/stream", a.handleStream)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", a.handleGet)
				r.Get("/link", a.handleLink)
				r.Get("/snooze", a.handleAllowance)
				r.Post("/snooze", a.handleSnooze)
				r.Get("/candidates", a.handleCandidates)
				r.Post("/acknowledge", a.handleAcknowledge)
				r.Post("/unacknowledge", a.handleUnacknowledge)
				r.Post("/assign", a.handleAssign)
				r.Delete("/assignment", a.handleUnassign)
				r.Post("/status", a.handleSetStatus)
			})
		})

		r.Get("/me/preferences", a.handleGetPreferences)
		r.Put("/me/preferences", a.handlePutPreferences)
	})
}

// principal is always present behind authmw.Principal.
func principal(r *http.Request) alert.Principal {
	p, _ := authmw.PrincipalFromContext(r.Context())
	return p
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

// statusFor maps a service error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, alert.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, alert.ErrInvalidTransition), errors.Is(err, alert.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, alert.ErrSnoozeLimitExceeded):
		return http.StatusUnprocessableEntity
	case errors.Is(err, alert.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, alert.ErrTransientIO):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err. Caller-facing errors carry their message; store
// and internal failures are logged and returned without detail.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error, msg string, kv ...any) {
	status := statusFor(err)
	switch status {
	case http.StatusNotFound:
		writeJSON(w, status, errorBody{Error: "not found"})
	case http.StatusServiceUnavailable:
		a.logger.Warn(r.Context(), msg, append(kv, "error", err)...)
		w.Header().Set("Retry-After", "1")
		writeJSON(w, status, errorBody{Error: "temporarily unavailable"})
	case http.StatusInternalServerError:
		a.logger.Error(r.Context(), err, msg, kv...)
		writeJSON(w, status, errorBody{Error: "internal error"})
	default:
		writeJSON(w, status, errorBody{Error: err.Error()})
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}
