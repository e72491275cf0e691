package bridge

import (
	"sync"
	"time"

	"github.com/eldtechnologies/simpleremote/internal/metrics"
)

// Event is one notification for the display. Data is one of QueueSynced,
// ActiveChanged or ReloadRequested.
type Event struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data"`
}

// Bus delivers events to every subscriber without blocking the publisher.
type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// NewBus returns an in-process bus.
//
// Queue and active events carry full state, so the newest one matters most.
// When a subscriber's buffer is full the oldest buffered event is discarded
// to make room, and a lagging display still converges on the current state.
func NewBus() Bus {
	return &stateBus{subs: map[*subscriber]struct{}{}}
}

type subscriber struct {
	ch chan Event
}

type stateBus struct {
	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

// Publish holds the lock while sending. Sends never block and unsubscribe
// closes channels under the same lock.
func (b *stateBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		s.deliver(e)
	}
}

func (s *subscriber) deliver(e Event) {
	select {
	case s.ch <- e:
		return
	default:
	}

	select {
	case old := <-s.ch:
		metrics.EventsDropped.WithLabelValues(old.Type).Inc()
	default:
	}

	// Publish is the only sender, so the slot just freed is still free.
	s.ch <- e
}

func (b *stateBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	s := &subscriber{ch: make(chan Event, buffer)}

	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, s)
			close(s.ch)
			b.mu.Unlock()
		})
	}
}
