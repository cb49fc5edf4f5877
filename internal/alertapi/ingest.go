package alertapi

import (
	"net/http"
	"time"

	"github.com/linnemanlabs/bosun/internal/alert"
)

// createRequest is the producer payload. A missing scope_id files the alert
// under the producer's own scope; an explicit empty one makes it global.
type createRequest struct {
	Title             string         `json:"title"`
	Description       string         `json:"description"`
	Severity          alert.Severity `json:"severity"`
	ScopeID           *string        `json:"scope_id"`
	DueAt             *time.Time     `json:"due_at"`
	SourceModule      string         `json:"source_module"`
	RelatedEntityType string         `json:"related_entity_type"`
	RelatedEntityID   string         `json:"related_entity_id"`
}

func (a *API) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p := principal(r)

	scope := p.ScopeID
	if req.ScopeID != nil {
		scope = *req.ScopeID
	}
	in := &alert.Alert{
		ScopeID:           scope,
		Title:             req.Title,
		Description:       req.Description,
		Severity:          req.Severity,
		DueAt:             req.DueAt,
		SourceModule:      req.SourceModule,
		RelatedEntityType: req.RelatedEntityType,
		RelatedEntityID:   req.RelatedEntityID,
	}
	al, err := a.svc.Create(r.Context(), p, in)
	if err != nil {
		a.writeError(w, r, err, "failed to create alert", "severity", req.Severity)
		return
	}
	a.logger.Info(r.Context(), "alert created",
		"alert_id", al.ID,
		"severity", al.Severity,
		"source_module", al.SourceModule,
	)
	w.Header().Set("Location", "/api/v1/alerts/"+al.ID)
	writeJSON(w, http.StatusCreated, a.view(al))
}
