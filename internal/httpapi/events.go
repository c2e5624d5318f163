package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const sseHeartbeat = 25 * time.Second

// handleEvents streams the caller's tenant events as server-sent events. Each event
// is a change notice only; clients refetch what they display.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	if a.hub == nil {
		writeError(w, http.StatusNotFound, errors.New("realtime events are disabled"))
		return
	}
	tenantID, err := a.service.ResolveTenant(r.Context(), r.URL.Query().Get("tenant_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	rc := http.NewResponseController(w)
	// The stream outlives the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	sub := a.hub.Subscribe(tenantID)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprintf(w, ": connected %s\n\n", tenantID); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		log.Warn().Err(err).Msg("sse: response writer cannot flush")
		return
	}

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-a.streamsDone:
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case event, ok := <-sub.C:
			if !ok {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
