package alertapi

import (
	"net/http"

	"github.com/linnemanlabs/bosun/internal/alert"
)

type preferencesRequest struct {
	HelperDismissed bool `json:"helper_dismissed"`
}

func (a *API) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := a.svc.Preferences(r.Context(), principal(r))
	if err != nil {
		a.writeError(w, r, err, "failed to get preferences")
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (a *API) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	var req preferencesRequest
	if !decodeBody(w, r, &req) {
		return
	}
	prefs, err := a.svc.SetPreferences(r.Context(), principal(r), alert.Preferences{HelperDismissed: req.HelperDismissed})
	if err != nil {
		a.writeError(w, r, err, "failed to store preferences")
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}
