// Package bridge pushes queue and active-alert changes to the display
// client and any other in-process listener.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/simpleremote/internal/models"
)

// Event types carried on the bus. Queue and active changes are separate
// channels; the display handles them differently.
const (
	TypeQueueSynced     = "queue.synced"
	TypeActiveChanged   = "active.changed"
	TypeReloadRequested = "reload.requested"
)

// QueueSynced carries a full snapshot of the pending queue.
type QueueSynced struct {
	Queue []models.Alert `json:"queue"`
}

// ActiveChanged carries the alert now showing (nil when the slot cleared).
type ActiveChanged struct {
	Active      *models.Alert `json:"active"`
	ActiveUntil int64         `json:"activeUntil"` // Unix ms, 0 when cleared
}

// ReloadRequested asks the display to reload after a config change.
type ReloadRequested struct {
	Module string `json:"module"`
	Index  int    `json:"index"`
}

const reloadTimeout = 5 * time.Second

// Bridge publishes domain notifications onto a Bus and forwards reload
// requests to an optional webhook.
type Bridge struct {
	bus       Bus
	logger    zerolog.Logger
	reloadURL string
	client    *http.Client
}

// New creates a bridge. reloadURL may be empty.
func New(bus Bus, logger zerolog.Logger, reloadURL string) *Bridge {
	return &Bridge{
		bus:       bus,
		logger:    logger.With().Str("component", "bridge").Logger(),
		reloadURL: reloadURL,
		client:    &http.Client{Timeout: reloadTimeout},
	}
}

// Subscribe registers a listener; call the returned func to detach.
func (b *Bridge) Subscribe(buffer int) (<-chan Event, func()) {
	return b.bus.Subscribe(buffer)
}

// QueueSynced publishes a queue snapshot. The caller hands over queue.
func (b *Bridge) QueueSynced(queue []models.Alert) {
	if queue == nil {
		queue = []models.Alert{}
	}
	b.bus.Publish(Event{Type: TypeQueueSynced, Data: QueueSynced{Queue: queue}})
}

// ActiveChanged publishes the new active alert and its expiry.
func (b *Bridge) ActiveChanged(active *models.Alert, until time.Time) {
	ev := ActiveChanged{Active: active}
	if active != nil && !until.IsZero() {
		ev.ActiveUntil = until.UnixMilli()
	}
	b.bus.Publish(Event{Type: TypeActiveChanged, Data: ev})
}

// ReloadRequested publishes a reload request and, when a webhook is
// configured, posts it in the background. Delivery failures are logged.
func (b *Bridge) ReloadRequested(module string, index int) {
	req := ReloadRequested{Module: module, Index: index}
	b.bus.Publish(Event{Type: TypeReloadRequested, Data: req})

	if b.reloadURL == "" {
		return
	}
	go b.postReload(req)
}

func (b *Bridge) postReload(payload ReloadRequested) {
	ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.reloadURL, bytes.NewReader(body))
	if err != nil {
		b.logger.Warn().Err(err).Msg("invalid reload webhook")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		b.logger.Warn().Err(err).Str("module", payload.Module).Msg("reload webhook failed")
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		b.logger.Warn().Int("status", resp.StatusCode).Str("module", payload.Module).Msg("reload webhook rejected")
	}
}
