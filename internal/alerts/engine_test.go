package alerts

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/simpleremote/internal/models"
)

type recorder struct {
	mu      sync.Mutex
	syncs   [][]models.Alert
	actives []*models.Alert
}

func (r *recorder) QueueSynced(q []models.Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncs = append(r.syncs, q)
}

func (r *recorder) ActiveChanged(a *models.Alert, _ time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actives = append(r.actives, a)
}

func (r *recorder) activeEvents() []*models.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.Alert(nil), r.actives...)
}

type memPersister struct {
	mu    sync.Mutex
	saves [][]models.Alert
	err   error
}

func (p *memPersister) Save(q []models.Alert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saves = append(p.saves, q)
	return p.err
}

func (p *memPersister) last() []models.Alert {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saves[len(p.saves)-1]
}

// manualTimers records scheduled rotations without ever firing them.
type manualTimers struct {
	mu        sync.Mutex
	scheduled []time.Duration
	stopped   int
}

type manualTimer struct{ m *manualTimers }

func (t manualTimer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	t.m.stopped++
	return true
}

func (m *manualTimers) AfterFunc(d time.Duration, _ func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scheduled = append(m.scheduled, d)
	return manualTimer{m: m}
}

func (m *manualTimers) lastScheduled() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scheduled[len(m.scheduled)-1]
}

type fixture struct {
	engine *Engine
	rec    *recorder
	store  *memPersister
	timers *manualTimers
	now    time.Time
}

func newFixture(t *testing.T, maxQueue int) *fixture {
	t.Helper()
	f := &fixture{
		rec:    &recorder{},
		store:  &memPersister{},
		timers: &manualTimers{},
		now:    time.UnixMilli(1_700_000_000_000),
	}
	f.engine = NewEngine(nil, Options{
		MaxQueue:  maxQueue,
		Display:   20 * time.Second,
		Slack:     50 * time.Millisecond,
		Persister: f.store,
		Notifier:  f.rec,
		Logger:    zerolog.Nop(),
		Now:       func() time.Time { return f.now },
		AfterFunc: f.timers.AfterFunc,
	})
	t.Cleanup(f.engine.Close)
	return f
}

func (f *fixture) enqueue(t *testing.T, msg string) models.Alert {
	t.Helper()
	a, err := f.engine.Enqueue("", msg)
	require.NoError(t, err)
	return a
}

func messages(q []models.Alert) []string {
	out := make([]string, len(q))
	for i, a := range q {
		out[i] = a.Message
	}
	return out
}

func TestEnqueueValidation(t *testing.T) {
	f := newFixture(t, 5)

	_, err := f.engine.Enqueue("", "")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "message", verr.Field)

	_, err = f.engine.Enqueue("Title", " \r\n\t ")
	require.True(t, errors.As(err, &verr))

	a, err := f.engine.Enqueue("", "hello")
	require.NoError(t, err)
	assert.Equal(t, DefaultTitle, a.Title)
	assert.Equal(t, "hello", a.Message)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, f.now.UnixMilli(), a.CreatedAt)

	a, err = f.engine.Enqueue("  Door\r ", "  someone is\r\n at the door ")
	require.NoError(t, err)
	assert.Equal(t, "Door", a.Title)
	assert.Equal(t, "someone is\n at the door", a.Message)
}

func TestEnqueueTruncates(t *testing.T) {
	f := newFixture(t, 5)

	a, err := f.engine.Enqueue(strings.Repeat("é", 100), strings.Repeat("x", 2500))
	require.NoError(t, err)
	assert.Equal(t, MaxTitleLen, len([]rune(a.Title)))
	assert.Equal(t, MaxMessageLen, len(a.Message))
}

func TestIDsAreUnique(t *testing.T) {
	f := newFixture(t, 100)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		a := f.enqueue(t, fmt.Sprintf("m%d", i))
		require.False(t, seen[a.ID], "duplicate id %s", a.ID)
		seen[a.ID] = true
	}
}

func TestQueueKeepsNewestInArrivalOrder(t *testing.T) {
	f := newFixture(t, 3)

	for i := 0; i < 7; i++ {
		f.enqueue(t, fmt.Sprintf("m%d", i))
	}

	snap := f.engine.Snapshot()
	require.NotNil(t, snap.Active)
	assert.Equal(t, "m0", snap.Active.Message, "first alert went straight to the active slot")
	assert.Equal(t, []string{"m4", "m5", "m6"}, messages(snap.Queue))
	assert.Equal(t, []string{"m4", "m5", "m6"}, messages(f.store.last()))
}

func TestTickIsNoopWhileActive(t *testing.T) {
	f := newFixture(t, 5)
	first := f.enqueue(t, "one")
	f.enqueue(t, "two")

	before := f.engine.Snapshot()
	require.Equal(t, first.ID, before.Active.ID)
	assert.Equal(t, f.now.Add(20*time.Second), before.ActiveUntil)
	assert.Equal(t, 20*time.Second+50*time.Millisecond, f.timers.lastScheduled())

	f.engine.Tick(f.now.Add(time.Second))
	f.engine.Tick(before.ActiveUntil.Add(-time.Millisecond))

	after := f.engine.Snapshot()
	assert.Equal(t, before.Active.ID, after.Active.ID)
	assert.Equal(t, before.ActiveUntil, after.ActiveUntil)
	assert.Len(t, f.rec.activeEvents(), 1)
}

func TestTickPromotesThenClears(t *testing.T) {
	f := newFixture(t, 5)
	f.enqueue(t, "one")
	second := f.enqueue(t, "two")

	deadline := f.engine.Snapshot().ActiveUntil
	f.engine.Tick(deadline)

	snap := f.engine.Snapshot()
	require.NotNil(t, snap.Active)
	assert.Equal(t, second.ID, snap.Active.ID)
	assert.Empty(t, snap.Queue)
	assert.Equal(t, deadline.Add(20*time.Second), snap.ActiveUntil)

	f.engine.Tick(snap.ActiveUntil)
	snap = f.engine.Snapshot()
	assert.Nil(t, snap.Active)
	assert.True(t, snap.ActiveUntil.IsZero())

	events := f.rec.activeEvents()
	require.Len(t, events, 3)
	assert.Equal(t, "one", events[0].Message)
	assert.Equal(t, "two", events[1].Message)
	assert.Nil(t, events[2])

	// Nothing left to schedule.
	f.engine.Tick(snap.ActiveUntil.Add(time.Hour))
	assert.Len(t, f.rec.activeEvents(), 3)
}

func TestDeleteActiveClearsSlotImmediately(t *testing.T) {
	f := newFixture(t, 5)
	first := f.enqueue(t, "one")
	second := f.enqueue(t, "two")

	require.True(t, f.engine.Delete(first.ID))

	snap := f.engine.Snapshot()
	assert.Nil(t, snap.Active)
	assert.Equal(t, []string{"two"}, messages(snap.Queue))
	assert.Equal(t, 50*time.Millisecond, f.timers.lastScheduled())

	// The deadline of the deleted alert has not passed, yet the next tick promotes.
	f.engine.Tick(f.now.Add(time.Second))
	snap = f.engine.Snapshot()
	require.NotNil(t, snap.Active)
	assert.Equal(t, second.ID, snap.Active.ID)
}

func TestDeleteLastActiveThenTickStaysEmpty(t *testing.T) {
	f := newFixture(t, 5)
	only := f.enqueue(t, "one")

	require.True(t, f.engine.Delete(only.ID))
	f.engine.Tick(f.now)

	snap := f.engine.Snapshot()
	assert.Nil(t, snap.Active)
	assert.Empty(t, snap.Queue)
}

func TestDeleteQueuedAndUnknown(t *testing.T) {
	f := newFixture(t, 5)
	f.enqueue(t, "one")
	second := f.enqueue(t, "two")
	f.enqueue(t, "three")
	saves := len(f.store.saves)

	assert.False(t, f.engine.Delete("nope"))
	assert.Len(t, f.store.saves, saves, "nothing removed, nothing persisted")

	assert.True(t, f.engine.Delete(second.ID))
	assert.Equal(t, []string{"three"}, messages(f.engine.Snapshot().Queue))
	assert.Equal(t, []string{"three"}, messages(f.store.last()))
	assert.Equal(t, "one", f.engine.Snapshot().Active.Message)
}

func TestClear(t *testing.T) {
	f := newFixture(t, 5)
	f.enqueue(t, "one")
	f.enqueue(t, "two")

	f.engine.Clear()

	snap := f.engine.Snapshot()
	assert.Nil(t, snap.Active)
	assert.Empty(t, snap.Queue)
	assert.Empty(t, f.store.last())

	events := f.rec.activeEvents()
	assert.Nil(t, events[len(events)-1])
}

func TestDismissPromotesNext(t *testing.T) {
	f := newFixture(t, 5)
	assert.False(t, f.engine.Dismiss())

	f.enqueue(t, "one")
	f.enqueue(t, "two")

	require.True(t, f.engine.Dismiss())
	snap := f.engine.Snapshot()
	require.NotNil(t, snap.Active)
	assert.Equal(t, "two", snap.Active.Message)

	events := f.rec.activeEvents()
	require.Len(t, events, 3)
	assert.Nil(t, events[1])
	assert.Equal(t, "two", events[2].Message)
}

func TestPersistenceExcludesActiveAndFailureIsNonFatal(t *testing.T) {
	f := newFixture(t, 5)
	f.store.err = errors.New("disk full")

	a, err := f.engine.Enqueue("", "one")
	require.NoError(t, err)
	f.enqueue(t, "two")

	assert.Equal(t, a.ID, f.engine.Snapshot().Active.ID)
	assert.Equal(t, []string{"two"}, messages(f.store.last()))
}

func TestRestoredQueueIsTrimmedAndStarted(t *testing.T) {
	var restored []models.Alert
	for i := 0; i < 5; i++ {
		restored = append(restored, models.Alert{ID: fmt.Sprintf("id%d", i), Title: "Alert", Message: fmt.Sprintf("m%d", i)})
	}
	rec := &recorder{}
	timers := &manualTimers{}
	e := NewEngine(restored, Options{MaxQueue: 3, Notifier: rec, Logger: zerolog.Nop(), AfterFunc: timers.AfterFunc})
	defer e.Close()

	assert.Equal(t, []string{"m2", "m3", "m4"}, messages(e.Snapshot().Queue))

	e.Start()
	snap := e.Snapshot()
	require.NotNil(t, snap.Active)
	assert.Equal(t, "m2", snap.Active.Message)
	assert.Equal(t, []string{"m3", "m4"}, messages(snap.Queue))
}

func TestCloseIgnoresLaterTicks(t *testing.T) {
	f := newFixture(t, 5)
	f.enqueue(t, "one")
	f.enqueue(t, "two")

	f.engine.Close()
	f.engine.Tick(f.now.Add(time.Hour))

	assert.Equal(t, "one", f.engine.Snapshot().Active.Message)
}

func TestEnqueueAfterCloseArmsNoTimer(t *testing.T) {
	f := newFixture(t, 5)
	f.engine.Close()

	f.enqueue(t, "late")

	snap := f.engine.Snapshot()
	assert.Nil(t, snap.Active)
	assert.Equal(t, []string{"late"}, messages(snap.Queue))
	assert.Equal(t, []string{"late"}, messages(f.store.last()))
	f.timers.mu.Lock()
	defer f.timers.mu.Unlock()
	assert.Empty(t, f.timers.scheduled)
}

func TestRotationEndToEnd(t *testing.T) {
	rec := &recorder{}
	e := NewEngine(nil, Options{
		MaxQueue: 25,
		Display:  time.Second,
		Slack:    50 * time.Millisecond,
		Notifier: rec,
		Logger:   zerolog.Nop(),
	})
	defer e.Close()

	start := time.Now()
	var ids []string
	for i := 0; i < 3; i++ {
		a, err := e.Enqueue("", fmt.Sprintf("m%d", i))
		require.NoError(t, err)
		ids = append(ids, a.ID)
	}

	require.Eventually(t, func() bool {
		s := e.Snapshot()
		return s.Active == nil && len(s.Queue) == 0
	}, 6*time.Second, 20*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 3*time.Second)

	events := rec.activeEvents()
	require.Len(t, events, 4)
	for i, id := range ids {
		require.NotNil(t, events[i], "promotion %d", i)
		assert.Equal(t, id, events[i].ID)
	}
	assert.Nil(t, events[3])
}

func TestConcurrentMutationsKeepInvariants(t *testing.T) {
	const maxQueue = 5
	e := NewEngine(nil, Options{
		MaxQueue: maxQueue,
		Display:  5 * time.Millisecond,
		Slack:    time.Millisecond,
		Logger:   zerolog.Nop(),
	})
	defer e.Close()

	check := func() {
		s := e.Snapshot()
		assert.LessOrEqual(t, len(s.Queue), maxQueue)
		if s.Active != nil {
			for _, a := range s.Queue {
				assert.NotEqual(t, s.Active.ID, a.ID, "active alert is also queued")
			}
		}
	}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				a, err := e.Enqueue("", fmt.Sprintf("w%d-%d", w, i))
				if !assert.NoError(t, err) {
					return
				}
				switch i % 4 {
				case 0:
					e.Delete(a.ID)
				case 1:
					e.Tick(time.Now())
				case 2:
					e.Dismiss()
				}
				check()
			}
		}(w)
	}
	wg.Wait()
	check()

	e.Clear()
	s := e.Snapshot()
	assert.Empty(t, s.Queue)
	assert.Nil(t, s.Active)
}
