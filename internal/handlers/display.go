package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/eldtechnologies/simpleremote/internal/bridge"
	"github.com/eldtechnologies/simpleremote/internal/models"
)

const (
	eventBuffer       = 32
	keepAliveInterval = 25 * time.Second
)

// DismissResponse reports whether an alert was showing.
type DismissResponse struct {
	OK        bool `json:"ok"`
	Dismissed bool `json:"dismissed"`
}

// DisplayEvents handles GET /api/display/events, a Server-Sent Events
// stream of bridge events. The stream opens with the current queue and
// active alert.
func (h *Handler) DisplayEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// Long-lived stream; the server write timeout must not cut it.
	_ = rc.SetWriteDeadline(time.Time{})

	ch, unsubscribe := h.events.Subscribe(eventBuffer)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	snap := h.alerts.Snapshot()
	if snap.Queue == nil {
		snap.Queue = []models.Alert{}
	}
	initial := []bridge.Event{
		{Type: bridge.TypeQueueSynced, Time: time.Now(), Data: bridge.QueueSynced{Queue: snap.Queue}},
		{Type: bridge.TypeActiveChanged, Time: time.Now(), Data: activePayload(snap.Active, snap.ActiveUntil)},
	}
	for _, ev := range initial {
		if err := writeEvent(w, ev); err != nil {
			return
		}
	}
	if err := rc.Flush(); err != nil {
		h.logger.Warn().Err(err).Msg("event stream cannot flush")
		return
	}

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := writeEvent(w, ev); err != nil {
				return
			}
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// DismissActive handles POST /api/display/dismiss.
func (h *Handler) DismissActive(w http.ResponseWriter, r *http.Request) {
	dismissed := h.alerts.Dismiss()
	h.JSON(w, r, http.StatusOK, DismissResponse{OK: true, Dismissed: dismissed})
}

func writeEvent(w http.ResponseWriter, ev bridge.Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	return err
}

func activePayload(active *models.Alert, until time.Time) bridge.ActiveChanged {
	p := bridge.ActiveChanged{Active: active}
	if active != nil {
		p.ActiveUntil = until.UnixMilli()
	}
	return p
}
