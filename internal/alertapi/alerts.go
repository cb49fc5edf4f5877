package alertapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/bosun/internal/alert"
)

func parseView(r *http.Request) (alert.View, bool) {
	switch v := alert.View(r.URL.Query().Get("view")); v {
	case "", alert.ViewLive:
		return alert.ViewLive, true
	case alert.ViewFull:
		return v, true
	default:
		return "", false
	}
}

// alertID reads the {id} path parameter and tags the request span with it.
func alertID(r *http.Request) string {
	id := chi.URLParam(r, "id")
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("bosun.alert.id", id))
	return id
}

func (a *API) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	view, ok := parseView(r)
	if !ok {
		badRequest(w, "view must be live or full")
		return
	}
	snap, err := a.svc.Snapshot(r.Context(), principal(r), view)
	if err != nil {
		a.writeError(w, r, err, "failed to list alerts", "view", view)
		return
	}
	writeJSON(w, http.StatusOK, a.snapshotView(snap))
}

func (a *API) handleQueue(w http.ResponseWriter, r *http.Request) {
	alerts, err := a.svc.Queue(r.Context(), principal(r))
	if err != nil {
		a.writeError(w, r, err, "failed to list assignment queue")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": a.views(alerts)})
}

func (a *API) handleGet(w http.ResponseWriter, r *http.Request) {
	id := alertID(r)
	al, err := a.svc.Get(r.Context(), principal(r), id)
	if err != nil {
		a.writeError(w, r, err, "failed to get alert", "id", id)
		return
	}
	writeJSON(w, http.StatusOK, a.view(al))
}

func (a *API) handleLink(w http.ResponseWriter, r *http.Request) {
	id := alertID(r)
	al, err := a.svc.Get(r.Context(), principal(r), id)
	if err != nil {
		a.writeError(w, r, err, "failed to get alert", "id", id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": al.ID, "link": a.links.Resolve(al)})
}

func (a *API) handleAllowance(w http.ResponseWriter, r *http.Request) {
	id := alertID(r)
	allowance, err := a.svc.Allowance(r.Context(), principal(r), id)
	if err != nil {
		a.writeError(w, r, err, "failed to get snooze allowance", "id", id)
		return
	}
	writeJSON(w, http.StatusOK, allowance)
}

func (a *API) handleCandidates(w http.ResponseWriter, r *http.Request) {
	id := alertID(r)
	members, err := a.svc.Candidates(r.Context(), principal(r), id)
	if err != nil {
		a.writeError(w, r, err, "failed to list assignment candidates", "id", id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"candidates": members})
}
