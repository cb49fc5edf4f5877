package alertapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/linnemanlabs/bosun/internal/alert"
	"github.com/linnemanlabs/bosun/internal/alertsync"
)

// handleStream serves a Server-Sent-Events stream of snapshot events, one
// per sync session refresh, until the client disconnects.
func (a *API) handleStream(w http.ResponseWriter, r *http.Request) {
	view, ok := parseView(r)
	if !ok {
		badRequest(w, "view must be live or full")
		return
	}

	rc := http.NewResponseController(w)
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	if err := rc.Flush(); err != nil {
		h.Del("Content-Type")
		a.writeError(w, r, fmt.Errorf("response writer cannot stream: %w", err), "failed to open alert stream")
		return
	}
	// the server write timeout would otherwise cut long-lived streams
	_ = rc.SetWriteDeadline(time.Time{})

	opts := append(slices.Clone(a.sessionOpts), alertsync.WithView(view))
	sess := alertsync.NewSession(a.svc, a.feed, principal(r), a.logger, opts...)

	var seq int
	err := sess.Run(r.Context(), func(_ context.Context, snap *alert.Snapshot) error {
		seq++
		data, err := json.Marshal(a.snapshotView(snap))
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "id: %d\nevent: snapshot\ndata: %s\n\n", seq, data); err != nil {
			return err
		}
		return rc.Flush()
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Warn(r.Context(), "alert stream ended", "events", seq, "error", err)
	}
}
