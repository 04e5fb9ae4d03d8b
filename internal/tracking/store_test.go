package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ispcompare/tariff-agent/internal/kvstore/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeIDs struct {
	mu sync.Mutex
	n  int
}

func (g *fakeIDs) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("session-%d", g.n), nil
}

type fakeCollector struct {
	mu          sync.Mutex
	submissions []Session
	err         error
	settled     chan Session
}

func newFakeCollector(err error) *fakeCollector {
	return &fakeCollector{err: err, settled: make(chan Session, 16)}
}

func (c *fakeCollector) Submit(ctx context.Context, session Session) error {
	c.mu.Lock()
	c.submissions = append(c.submissions, session)
	c.mu.Unlock()
	c.settled <- session
	return c.err
}

func (c *fakeCollector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.submissions)
}

func (c *fakeCollector) waitForSubmission(t *testing.T) Session {
	t.Helper()
	select {
	case s := <-c.settled:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("collector submission never arrived")
		return Session{}
	}
}

type flakyKV struct {
	*memory.Store
	mu      sync.Mutex
	failSet bool
}

func (s *flakyKV) setFail(fail bool) {
	s.mu.Lock()
	s.failSet = fail
	s.mu.Unlock()
}

func (s *flakyKV) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	fail := s.failSet
	s.mu.Unlock()
	if fail {
		return fmt.Errorf("disk full")
	}
	return s.Store.Set(ctx, key, value)
}

type harness struct {
	store     *Store
	clock     *fakeClock
	collector *fakeCollector
	kv        *memory.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:     newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		collector: newFakeCollector(nil),
		kv:        memory.New(),
	}
	h.store = New(Config{
		Store:     h.kv,
		Clock:     h.clock,
		IDs:       &fakeIDs{},
		Collector: h.collector,
		Logger:    zap.NewNop(),
	})
	require.NoError(t, h.store.Initialize(context.Background()))
	return h
}

func TestClickSequencing(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.RecordPageVisit(ctx, "/tariffs"))
	for i := 0; i < 5; i++ {
		require.NoError(t, h.store.RecordClick(ctx, "filter-toggle", ""))
	}

	session, ok := h.store.Session()
	require.True(t, ok)
	require.Len(t, session.ClickPath, 5)
	for i, ev := range session.ClickPath {
		require.Equal(t, i+1, ev.Sequence)
		require.Equal(t, "/tariffs", ev.Path)
	}
	require.Equal(t, 5, session.TotalClicks)
}

func TestPageVisitDeduplication(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	h := newHarness(t)
	require.NoError(t, h.store.RecordPageVisit(ctx, "/a"))
	require.NoError(t, h.store.RecordPageVisit(ctx, "/a"))
	session, _ := h.store.Session()
	require.Equal(t, []string{"/a"}, session.UserPath)

	h = newHarness(t)
	require.NoError(t, h.store.RecordPageVisit(ctx, "/a"))
	require.NoError(t, h.store.RecordPageVisit(ctx, "/b"))
	require.NoError(t, h.store.RecordPageVisit(ctx, "/a"))
	session, _ = h.store.Session()
	require.Equal(t, []string{"/a", "/b", "/a"}, session.UserPath)
}

func TestGoalIdempotence(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.RecordClick(ctx, "cta", "go"))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, h.store.RecordGoalReached(ctx))
		}()
	}
	wg.Wait()

	h.collector.waitForSubmission(t)
	session, _ := h.store.Session()
	end := session.EndTime
	require.NotZero(t, end)

	h.clock.Advance(time.Minute)
	require.NoError(t, h.store.RecordGoalReached(ctx))
	time.Sleep(50 * time.Millisecond)

	require.Equal(t, 1, h.collector.count(), "exactly one submission")
	session, _ = h.store.Session()
	require.Equal(t, end, session.EndTime, "end time set exactly once")
}

func TestPostGoalFreeze(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.RecordPageVisit(ctx, "/providers"))
	require.NoError(t, h.store.RecordClick(ctx, "cta", ""))
	require.NoError(t, h.store.RecordGoalReached(ctx))
	h.collector.waitForSubmission(t)

	require.NoError(t, h.store.RecordClick(ctx, "cta", ""))
	require.NoError(t, h.store.RecordPageVisit(ctx, "/comparison"))

	session, _ := h.store.Session()
	require.Equal(t, 1, session.TotalClicks)
	require.Equal(t, []string{"/providers"}, session.UserPath)
}

func TestSessionExpiryOnInitialize(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.RecordClick(ctx, "cta", ""))
	first, _ := h.store.Session()

	h.clock.Advance(31 * time.Minute)
	second := New(Config{
		Store:     h.kv,
		Clock:     h.clock,
		IDs:       &fakeIDs{n: 100},
		Collector: h.collector,
	})
	require.NoError(t, second.Initialize(ctx))

	restored, ok := second.Session()
	require.True(t, ok)
	require.NotEqual(t, first.ID, restored.ID, "expired session must be discarded")
	require.Zero(t, restored.TotalClicks)
}

func TestSessionRestoreWithinCeiling(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.RecordPageVisit(ctx, "/providers"))
	require.NoError(t, h.store.RecordClick(ctx, "cta", ""))
	first, _ := h.store.Session()

	h.clock.Advance(10 * time.Minute)
	second := New(Config{
		Store:     h.kv,
		Clock:     h.clock,
		IDs:       &fakeIDs{n: 100},
		Collector: h.collector,
	})
	require.NoError(t, second.Initialize(ctx))

	restored, ok := second.Session()
	require.True(t, ok)
	require.Equal(t, first.ID, restored.ID)
	require.Equal(t, 1, restored.TotalClicks)

	// the restored page context carries over for click attribution
	require.NoError(t, second.RecordClick(ctx, "cta", ""))
	restored, _ = second.Session()
	require.Equal(t, "/providers", restored.ClickPath[1].Path)
}

func TestCompletedSessionNotRestored(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.RecordGoalReached(ctx))
	h.collector.waitForSubmission(t)
	first, _ := h.store.Session()

	second := New(Config{
		Store:     h.kv,
		Clock:     h.clock,
		IDs:       &fakeIDs{n: 100},
		Collector: h.collector,
	})
	require.NoError(t, second.Initialize(ctx))

	restored, ok := second.Session()
	require.True(t, ok)
	require.NotEqual(t, first.ID, restored.ID)
	require.False(t, restored.GoalReached)
}

func TestResetStartsFreshSession(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.RecordPageVisit(ctx, "/providers"))
	require.NoError(t, h.store.RecordClick(ctx, "cta", ""))
	first, _ := h.store.Session()

	require.NoError(t, h.store.Reset(ctx))
	fresh, ok := h.store.Session()
	require.True(t, ok)
	require.NotEqual(t, first.ID, fresh.ID)
	require.Zero(t, fresh.TotalClicks)
	require.Empty(t, fresh.UserPath)
	require.False(t, fresh.GoalReached)
}

func TestGoalPersistFailureIsRetryable(t *testing.T) {
	t.Parallel()

	kv := &flakyKV{Store: memory.New()}
	collector := newFakeCollector(nil)
	store := New(Config{
		Store:     kv,
		Clock:     newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		IDs:       &fakeIDs{},
		Collector: collector,
		Logger:    zap.NewNop(),
	})
	ctx := context.Background()
	require.NoError(t, store.Initialize(ctx))

	kv.setFail(true)
	require.Error(t, store.RecordGoalReached(ctx))

	session, ok := store.Session()
	require.True(t, ok)
	require.False(t, session.GoalReached, "unpersisted goal must be rolled back")
	require.Zero(t, session.EndTime)
	require.Zero(t, collector.count(), "nothing to flush until the goal sticks")

	kv.setFail(false)
	require.NoError(t, store.RecordGoalReached(ctx))
	collector.waitForSubmission(t)

	session, _ = store.Session()
	require.True(t, session.GoalReached)
	require.NotZero(t, session.EndTime)
	require.Equal(t, 1, collector.count())
}

func TestCollectorFailureIsTerminal(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.collector.err = fmt.Errorf("collector unreachable")
	ctx := context.Background()
	require.NoError(t, h.store.RecordGoalReached(ctx))
	h.collector.waitForSubmission(t)

	require.Eventually(t, func() bool {
		session, _ := h.store.Session()
		return session.FlushAttempted
	}, 2*time.Second, 10*time.Millisecond, "flush must settle even on failure")

	session, _ := h.store.Session()
	require.True(t, session.GoalReached, "failure never reverts the goal state")
	require.Equal(t, 1, h.collector.count(), "failures are not retried")
}

func TestObserverReceivesSnapshots(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	var mu sync.Mutex
	var seen []int
	h.store.Subscribe(func(s Session) {
		mu.Lock()
		seen = append(seen, s.TotalClicks)
		mu.Unlock()
	})

	require.NoError(t, h.store.RecordClick(ctx, "cta", ""))
	require.NoError(t, h.store.RecordClick(ctx, "cta", ""))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{1, 2}, seen)
}

func TestSessionJourney(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.store.RecordPageVisit(ctx, "/"))
	require.NoError(t, h.store.RecordClick(ctx, "cta-primary", "Начать поиск"))
	require.NoError(t, h.store.RecordPageVisit(ctx, "/providers"))
	require.NoError(t, h.store.RecordGoalReached(ctx))

	submitted := h.collector.waitForSubmission(t)
	require.Equal(t, 1, h.collector.count())
	require.Equal(t, []string{"/", "/providers"}, submitted.UserPath)
	require.True(t, submitted.GoalReached)
	require.Equal(t, "/", submitted.ClickPath[0].Path)
	require.Equal(t, "Начать поиск", submitted.ClickPath[0].Text)

	stats, err := h.store.Stats()
	require.NoError(t, err)
	require.Equal(t, 1, stats.TotalClicks)
	require.Equal(t, 2, stats.PagesVisited)
	require.True(t, stats.GoalReached)
}

func TestHTTPCollectorPayload(t *testing.T) {
	t.Parallel()

	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/analytics/user-session", r.URL.Path)
		require.NoError(t, jsonDecode(r, &body))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	collector := NewHTTPCollector(srv.URL, 5*time.Second)
	err := collector.Submit(context.Background(), Session{
		ID:          "session-1",
		StartTime:   1_000,
		EndTime:     61_000,
		TotalClicks: 2,
		ClickPath:   []ClickEvent{{Sequence: 1, Category: "cta", Path: "/", Timestamp: 2_000}},
		UserPath:    []string{"/", "/providers"},
		GoalReached: true,
	})
	require.NoError(t, err)

	require.Equal(t, "session-1", body["sessionId"])
	require.Equal(t, float64(60_000), body["sessionDuration"])
	require.Equal(t, true, body["goalReached"])
}

func TestHTTPCollectorNonSuccessStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	collector := NewHTTPCollector(srv.URL, 5*time.Second)
	err := collector.Submit(context.Background(), Session{ID: "session-1"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "503")
}

func jsonDecode(r *http.Request, out any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(out)
}
