package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
)

// handleModerationEvents streams applied moderation actions as Server-Sent Events.
func (a *API) handleModerationEvents(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if a.deps.Events == nil {
		writeError(w, r, http.StatusServiceUnavailable, "streaming disabled")
		return
	}
	rc := http.NewResponseController(w)
	// the server write timeout would otherwise cut long-lived streams
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ch := a.deps.Events.Subscribe(r.Context())

	// Send an initial comment to establish the stream
	_, _ = w.Write([]byte(": stream started\n\n"))
	if err := rc.Flush(); err != nil {
		return
	}

	for event := range ch {
		payload, err := json.Marshal(event)
		if err != nil {
			continue
		}
		_, _ = w.Write([]byte("event: " + string(event.Action) + "\ndata: "))
		_, _ = w.Write(payload)
		_, _ = w.Write([]byte("\n\n"))
		_ = rc.Flush()
	}
}
