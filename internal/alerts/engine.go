// Package alerts owns the pending alert queue and the single active slot.
package alerts

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/simpleremote/internal/metrics"
	"github.com/eldtechnologies/simpleremote/internal/models"
)

const (
	MaxTitleLen     = 80
	MaxMessageLen   = 2000
	DefaultTitle    = "Alert"
	DefaultMaxQueue = 25
	DefaultDisplay  = 20 * time.Second
	DefaultSlack    = 50 * time.Millisecond
)

// Notifier receives queue and active-slot changes. Calls are made while
// the engine lock is held, so they arrive in mutation order and must not
// block.
type Notifier interface {
	QueueSynced(queue []models.Alert)
	ActiveChanged(active *models.Alert, until time.Time)
}

// Persister durably stores the queue. The active alert is never persisted.
type Persister interface {
	Save(queue []models.Alert) error
}

// Timer is the handle of a scheduled rotation.
type Timer interface {
	Stop() bool
}

// Options configures an Engine. Zero values take the defaults.
type Options struct {
	MaxQueue  int
	Display   time.Duration
	Slack     time.Duration
	Persister Persister
	Notifier  Notifier
	Logger    zerolog.Logger

	Now       func() time.Time
	AfterFunc func(d time.Duration, f func()) Timer
}

// Snapshot is a point-in-time copy of the engine state.
type Snapshot struct {
	Queue       []models.Alert
	Active      *models.Alert
	ActiveUntil time.Time
}

// Engine serializes every queue mutation and rotation behind one mutex.
// Rotation is self-re-arming: each promotion schedules the next Tick at
// the active alert's deadline plus a small slack.
type Engine struct {
	mu          sync.Mutex
	queue       []models.Alert
	active      *models.Alert
	activeUntil time.Time
	timer       Timer
	closed      bool

	maxQueue  int
	display   time.Duration
	slack     time.Duration
	persister Persister
	notifier  Notifier
	logger    zerolog.Logger
	now       func() time.Time
	afterFunc func(d time.Duration, f func()) Timer
}

// NewEngine creates an engine seeded with a previously persisted queue.
// Only the newest MaxQueue items of initial are kept.
func NewEngine(initial []models.Alert, opts Options) *Engine {
	e := &Engine{
		maxQueue:  opts.MaxQueue,
		display:   opts.Display,
		slack:     opts.Slack,
		persister: opts.Persister,
		notifier:  opts.Notifier,
		logger:    opts.Logger.With().Str("component", "alerts").Logger(),
		now:       opts.Now,
		afterFunc: opts.AfterFunc,
	}
	if e.maxQueue <= 0 {
		e.maxQueue = DefaultMaxQueue
	}
	if e.display <= 0 {
		e.display = DefaultDisplay
	}
	if e.slack <= 0 {
		e.slack = DefaultSlack
	}
	if e.persister == nil {
		e.persister = nopPersister{}
	}
	if e.notifier == nil {
		e.notifier = nopNotifier{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.afterFunc == nil {
		e.afterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}

	if len(initial) > e.maxQueue {
		initial = initial[len(initial)-e.maxQueue:]
	}
	e.queue = append([]models.Alert(nil), initial...)
	metrics.QueueDepth.Set(float64(len(e.queue)))
	return e
}

// Start promotes the first restored alert, if any.
func (e *Engine) Start() {
	e.Tick(e.now())
}

// Close cancels the pending rotation. Later ticks are ignored.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.stopTimerLocked()
}

// Enqueue validates and appends a new alert, evicting the oldest queued
// item when the queue is full, then runs a rotation step.
func (e *Engine) Enqueue(title, message string) (models.Alert, error) {
	title = cleanText(title, MaxTitleLen)
	if title == "" {
		title = DefaultTitle
	}
	message = cleanText(message, MaxMessageLen)
	if message == "" {
		return models.Alert{}, &ValidationError{Field: "message", Reason: "message required"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	alert := models.Alert{
		ID:        newID(now),
		Title:     title,
		Message:   message,
		CreatedAt: now.UnixMilli(),
	}

	e.queue = append(e.queue, alert)
	if over := len(e.queue) - e.maxQueue; over > 0 {
		e.queue = append([]models.Alert(nil), e.queue[over:]...)
		metrics.AlertsEvicted.Add(float64(over))
	}

	e.persistLocked()
	e.syncLocked()
	// A closed engine still records the alert for the next start.
	if !e.closed {
		e.tickLocked(now)
	}

	return alert, nil
}

// Delete removes the alert with id from the queue, or clears the active
// slot when id is showing. It reports whether anything was removed.
func (e *Engine) Delete(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	kept := e.queue[:0:0]
	for _, a := range e.queue {
		if a.ID != id {
			kept = append(kept, a)
		}
	}
	queueChanged := len(kept) != len(e.queue)
	e.queue = kept

	wasActive := e.active != nil && e.active.ID == id
	if wasActive {
		e.clearActiveLocked()
		// The following alert is promoted by the next tick, not here.
		e.armLocked(e.slack)
	}

	if queueChanged {
		e.persistLocked()
		e.syncLocked()
	}
	return queueChanged || wasActive
}

// Clear empties the queue and the active slot.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.queue = nil
	e.active = nil
	e.activeUntil = time.Time{}
	e.stopTimerLocked()

	e.persistLocked()
	e.syncLocked()
	e.notifier.ActiveChanged(nil, time.Time{})
	metrics.ActiveAlert.Set(0)
}

// Dismiss clears the active alert early and promotes the next one.
// It reports false when nothing was showing.
func (e *Engine) Dismiss() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active == nil {
		return false
	}
	e.clearActiveLocked()
	if !e.closed {
		e.tickLocked(e.now())
	}
	return true
}

// Tick is the rotation step. It is a no-op while the active alert's
// window is open; otherwise it promotes the queue head or clears the slot.
func (e *Engine) Tick(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.tickLocked(now)
}

// Snapshot returns copies of the queue and active alert.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Snapshot{
		Queue:       e.queueCopyLocked(),
		ActiveUntil: e.activeUntil,
	}
	if e.active != nil {
		a := *e.active
		s.Active = &a
	}
	return s
}

func (e *Engine) tickLocked(now time.Time) {
	if e.active != nil && now.Before(e.activeUntil) {
		return
	}

	if len(e.queue) == 0 {
		if e.active != nil {
			e.clearActiveLocked()
		}
		e.stopTimerLocked()
		return
	}

	next := e.queue[0]
	e.queue = append([]models.Alert(nil), e.queue[1:]...)
	e.active = &next
	e.activeUntil = now.Add(e.display)

	e.persistLocked()
	e.syncLocked()

	shown := next
	e.notifier.ActiveChanged(&shown, e.activeUntil)
	metrics.ActiveAlert.Set(1)
	metrics.Rotations.Inc()

	e.logger.Debug().
		Str("id", next.ID).
		Time("active_until", e.activeUntil).
		Int("queued", len(e.queue)).
		Msg("alert promoted")

	e.armLocked(e.activeUntil.Sub(now) + e.slack)
}

func (e *Engine) clearActiveLocked() {
	e.active = nil
	e.activeUntil = time.Time{}
	e.notifier.ActiveChanged(nil, time.Time{})
	metrics.ActiveAlert.Set(0)
}

func (e *Engine) armLocked(d time.Duration) {
	e.stopTimerLocked()
	if e.closed {
		return
	}
	e.timer = e.afterFunc(d, func() {
		e.Tick(e.now())
	})
}

func (e *Engine) stopTimerLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

func (e *Engine) persistLocked() {
	if err := e.persister.Save(e.queueCopyLocked()); err != nil {
		metrics.PersistenceFailures.Inc()
		e.logger.Warn().Err(err).Int("queued", len(e.queue)).Msg("queue persistence failed")
	}
}

func (e *Engine) syncLocked() {
	metrics.QueueDepth.Set(float64(len(e.queue)))
	e.notifier.QueueSynced(e.queueCopyLocked())
}

func (e *Engine) queueCopyLocked() []models.Alert {
	out := make([]models.Alert, len(e.queue))
	copy(out, e.queue)
	return out
}

type nopPersister struct{}

func (nopPersister) Save([]models.Alert) error { return nil }

type nopNotifier struct{}

func (nopNotifier) QueueSynced([]models.Alert) {}
func (nopNotifier) ActiveChanged(*models.Alert, time.Time) {}
