package alertapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/linnemanlabs/bosun/internal/alert"
)

type snoozeRequest struct {
	Hours  int    `json:"hours"`
	Reason string `json:"reason"`
}

type assignRequest struct {
	User     string         `json:"user"`
	Role     string         `json:"role"`
	Priority alert.Priority `json:"priority"`
	Notes    string         `json:"notes"`
}

type statusRequest struct {
	Status alert.Status `json:"status"`
}

// decodeBody decodes a JSON request body into v and writes the error
// response itself when it cannot.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "request body too large"})
	case errors.Is(err, io.EOF):
		badRequest(w, "request body is required")
	default:
		badRequest(w, "invalid payload")
	}
	return false
}

func (a *API) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	id := alertID(r)
	al, err := a.svc.Acknowledge(r.Context(), principal(r), id)
	if err != nil {
		a.writeError(w, r, err, "failed to acknowledge alert", "id", id)
		return
	}
	writeJSON(w, http.StatusOK, a.view(al))
}

func (a *API) handleUnacknowledge(w http.ResponseWriter, r *http.Request) {
	id := alertID(r)
	al, err := a.svc.Unacknowledge(r.Context(), principal(r), id)
	if err != nil {
		a.writeError(w, r, err, "failed to unacknowledge alert", "id", id)
		return
	}
	writeJSON(w, http.StatusOK, a.view(al))
}

func (a *API) handleSnooze(w http.ResponseWriter, r *http.Request) {
	id := alertID(r)
	var req snoozeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	d, err := alert.SnoozeDuration(req.Hours)
	if err != nil {
		a.writeError(w, r, err, "failed to snooze alert", "id", id)
		return
	}
	res, err := a.svc.Snooze(r.Context(), principal(r), id, d, req.Reason)
	if err != nil {
		a.writeError(w, r, err, "failed to snooze alert", "id", id, "hours", req.Hours)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alert":     a.view(res.Alert),
		"remaining": res.Remaining,
	})
}

func (a *API) handleAssign(w http.ResponseWriter, r *http.Request) {
	id := alertID(r)
	var req assignRequest
	if !decodeBody(w, r, &req) {
		return
	}
	as := alert.Assignment{
		Target:   alert.Target{UserID: req.User, Role: req.Role},
		Priority: req.Priority,
		Notes:    req.Notes,
	}
	al, err := a.svc.Assign(r.Context(), principal(r), id, as)
	if err != nil {
		a.writeError(w, r, err, "failed to assign alert", "id", id)
		return
	}
	writeJSON(w, http.StatusOK, a.view(al))
}

func (a *API) handleUnassign(w http.ResponseWriter, r *http.Request) {
	id := alertID(r)
	al, err := a.svc.Unassign(r.Context(), principal(r), id)
	if err != nil {
		a.writeError(w, r, err, "failed to clear assignment", "id", id)
		return
	}
	writeJSON(w, http.StatusOK, a.view(al))
}

func (a *API) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	id := alertID(r)
	var req statusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	al, err := a.svc.SetStatus(r.Context(), principal(r), id, req.Status)
	if err != nil {
		a.writeError(w, r, err, "failed to set alert status", "id", id, "status", req.Status)
		return
	}
	writeJSON(w, http.StatusOK, a.view(al))
}
