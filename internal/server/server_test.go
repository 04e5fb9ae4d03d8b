package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ispcompare/tariff-agent/internal/clock/system"
	"github.com/ispcompare/tariff-agent/internal/id/uuid"
	"github.com/ispcompare/tariff-agent/internal/kvstore/memory"
	"github.com/ispcompare/tariff-agent/internal/tracking"
)

type stubCollector struct {
	submitted chan tracking.Session
}

func (c *stubCollector) Submit(_ context.Context, s tracking.Session) error {
	c.submitted <- s
	return nil
}

func newTestServer(t *testing.T) (*Server, *tracking.Store, *stubCollector) {
	t.Helper()
	collector := &stubCollector{submitted: make(chan tracking.Session, 4)}
	tracker := tracking.New(tracking.Config{
		Store:     memory.New(),
		Clock:     system.Clock{},
		IDs:       uuid.Generator{},
		Collector: collector,
		Logger:    zap.NewNop(),
	})
	require.NoError(t, tracker.Initialize(context.Background()))
	return New(tracker, nil, zap.NewNop()), tracker, collector
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndReadiness(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestTrackClickValidation(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/track/click", `{"text":"no category"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodPost, "/track/click", `{"category":"cta-primary","text":"Начать поиск"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
}

func TestTrackEndpointsMutateSession(t *testing.T) {
	srv, tracker, _ := newTestServer(t)
	h := srv.Handler()

	require.Equal(t, http.StatusAccepted, doJSON(t, h, http.MethodPost, "/track/page", `{"path":"/"}`).Code)
	require.Equal(t, http.StatusAccepted, doJSON(t, h, http.MethodPost, "/track/click", `{"category":"cta"}`).Code)
	require.Equal(t, http.StatusAccepted, doJSON(t, h, http.MethodPost, "/track/page", `{"path":"/providers"}`).Code)

	session, ok := tracker.Session()
	require.True(t, ok)
	require.Equal(t, 1, session.TotalClicks)
	require.Equal(t, []string{"/", "/providers"}, session.UserPath)
	require.Equal(t, "/", session.ClickPath[0].Path)
}

func TestTrackEventsBatchOrder(t *testing.T) {
	srv, tracker, collector := newTestServer(t)

	body := `{"events":[
		{"type":"page","path":"/"},
		{"type":"click","category":"cta-primary","text":"Начать поиск"},
		{"type":"page","path":"/providers"},
		{"type":"goal"}
	]}`
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/track/events", body)
	require.Equal(t, http.StatusAccepted, rec.Code)

	select {
	case submitted := <-collector.submitted:
		require.Equal(t, []string{"/", "/providers"}, submitted.UserPath)
		require.True(t, submitted.GoalReached)
	case <-time.After(2 * time.Second):
		t.Fatal("goal event never reached the collector")
	}

	session, _ := tracker.Session()
	require.True(t, session.GoalReached)
}

func TestTrackEventsRejectsUnknownType(t *testing.T) {
	srv, tracker, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/track/events", `{"events":[{"type":"hover"}]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	session, _ := tracker.Session()
	require.Zero(t, session.TotalClicks)
}

func TestStatsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.Handler()

	doJSON(t, h, http.MethodPost, "/track/page", `{"path":"/"}`)
	doJSON(t, h, http.MethodPost, "/track/click", `{"category":"cta"}`)

	rec := doJSON(t, h, http.MethodGet, "/track/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats tracking.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Equal(t, 1, stats.TotalClicks)
	require.Equal(t, 1, stats.PagesVisited)
	require.False(t, stats.GoalReached)
}

func TestResetEndpoint(t *testing.T) {
	srv, tracker, _ := newTestServer(t)
	h := srv.Handler()

	doJSON(t, h, http.MethodPost, "/track/click", `{"category":"cta"}`)
	before, _ := tracker.Session()

	rec := doJSON(t, h, http.MethodPost, "/track/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)

	after, _ := tracker.Session()
	require.NotEqual(t, before.ID, after.ID)
	require.Zero(t, after.TotalClicks)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "tariff_agent_")
}
