package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"battleship/broker/internal/logging"
	"battleship/broker/internal/match"
	"battleship/broker/internal/replay"
)

type stubReadiness struct {
	clients int
	pending int
	uptime  time.Duration
	err     error
}

func (s *stubReadiness) SnapshotClientCounts() (int, int) { return s.clients, s.pending }
func (s *stubReadiness) StartupError() error              { return s.err }
func (s *stubReadiness) Uptime() time.Duration            { return s.uptime }

type stubLimiter struct {
	remaining int
}

func (s *stubLimiter) Allow() bool {
	if s.remaining <= 0 {
		return false
	}
	s.remaining--
	return true
}

type stubDumper struct {
	location string
	err      error
	calls    int
}

func (s *stubDumper) DumpReplay(ctx context.Context) (string, error) {
	s.calls++
	return s.location, s.err
}

type stubMatchSession struct {
	snapshot match.Snapshot
}

func (s *stubMatchSession) Snapshot() match.Snapshot { return s.snapshot }

func TestLivenessHandlerReturnsJSON(t *testing.T) {
	fixed := time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)
	handlers := NewHandlerSet(Options{Logger: logging.NewTestLogger(), TimeSource: func() time.Time { return fixed }})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/livez", nil)

	handlers.LivenessHandler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var payload struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Status != "alive" {
		t.Fatalf("unexpected status %q", payload.Status)
	}
	if payload.Timestamp != fixed.Format(time.RFC3339Nano) {
		t.Fatalf("unexpected timestamp %q", payload.Timestamp)
	}
}

func TestReadinessHandlerUnavailable(t *testing.T) {
	readiness := &stubReadiness{clients: 3, pending: 1, uptime: 45 * time.Second, err: errors.New("boom")}
	handlers := NewHandlerSet(Options{Logger: logging.NewTestLogger(), Readiness: readiness})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	handlers.ReadinessHandler().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	var payload struct {
		Status         string  `json:"status"`
		Message        string  `json:"message"`
		UptimeSeconds  float64 `json:"uptime_seconds"`
		Clients        int     `json:"clients"`
		PendingClients int     `json:"pending_clients"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Status != "error" || payload.Message != "boom" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if payload.Clients != 3 || payload.PendingClients != 1 {
		t.Fatalf("unexpected client counts: %+v", payload)
	}
	if payload.UptimeSeconds != readiness.uptime.Seconds() {
		t.Fatalf("unexpected uptime: got %f want %f", payload.UptimeSeconds, readiness.uptime.Seconds())
	}
}

func TestMetricsHandlerOutputsPrometheusFormat(t *testing.T) {
	readiness := &stubReadiness{clients: 2, pending: 1, uptime: 90 * time.Second}
	replayStats := func() replay.Stats {
		return replay.Stats{BufferedMoves: 1, BufferedBoards: 1, BufferedChat: 1, BufferedBytes: 2048, Dumps: 2}
	}
	replayStorage := func() replay.StorageStats {
		return replay.StorageStats{Matches: 5, Headers: 5, Bytes: 12345, LastSweep: time.Unix(1700000000, 0)}
	}
	matchSession := &stubMatchSession{snapshot: match.Snapshot{MatchID: "queue-1", Sessions: []string{"alice", "bob", "cara"}}}

	handlers := NewHandlerSet(Options{
		Logger:    logging.NewTestLogger(),
		Readiness: readiness,
		Stats: func() (int, int) {
			return 4, 2
		},
		ReplayStats:   replayStats,
		ReplayStorage: replayStorage,
		Match:         matchSession,
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	handlers.MetricsHandler().ServeHTTP(rr, req)

	if got := rr.Header().Get("Content-Type"); got != "text/plain; version=0.0.4" {
		t.Fatalf("unexpected content type %q", got)
	}
	body := rr.Body.String()
	for _, substr := range []string{
		"battleship_broadcasts_total 4",
		"battleship_clients 2",
		"battleship_pending_clients 1",
		"battleship_uptime_seconds 90",
		"battleship_queue_length 3",
		"battleship_replay_buffer_records 3",
		"battleship_replay_dumps_total 2",
		"battleship_replay_storage_matches 5",
		"battleship_replay_storage_bytes 12345",
		"battleship_replay_storage_headers 5",
		"battleship_replay_storage_last_sweep_timestamp_seconds 1700000000",
	} {
		if !strings.Contains(body, substr) {
			t.Fatalf("metrics missing %q:\n%s", substr, body)
		}
	}
}

func TestReplayDumpHandlerAuthAndRateLimits(t *testing.T) {
	dumper := &stubDumper{location: "/tmp/latest"}
	limiter := &stubLimiter{remaining: 1}
	handlers := NewHandlerSet(Options{
		Logger:      logging.NewTestLogger(),
		Replay:      dumper,
		AdminToken:  "topsecret",
		RateLimiter: limiter,
	})

	makeRequest := func(token string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/replay/dump", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		handlers.ReplayDumpHandler().ServeHTTP(rr, req)
		return rr
	}

	if resp := makeRequest(""); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized for missing token, got %d", resp.Code)
	}

	if resp := makeRequest("topsecret"); resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202 for authorised request, got %d", resp.Code)
	}
	if dumper.calls != 1 {
		t.Fatalf("expected dumper invoked once, got %d", dumper.calls)
	}

	if resp := makeRequest("topsecret"); resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected rate limit, got %d", resp.Code)
	}
}

func TestMatchStatusHandlerReportsQueue(t *testing.T) {
	session := &stubMatchSession{snapshot: match.Snapshot{MatchID: "persistent", Sessions: []string{"alice", "bob", "cara"}}}
	handlers := NewHandlerSet(Options{
		Logger:     logging.NewTestLogger(),
		AdminToken: "secret",
		Match:      session,
	})

	req := httptest.NewRequest(http.MethodGet, "/admin/match/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rr := httptest.NewRecorder()

	handlers.MatchStatusHandler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", rr.Code)
	}
	var payload struct {
		Status   string   `json:"status"`
		MatchID  string   `json:"match_id"`
		Sessions []string `json:"sessions"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Status != "ok" || payload.MatchID != "persistent" {
		t.Fatalf("unexpected response: %+v", payload)
	}
	if len(payload.Sessions) != 3 {
		t.Fatalf("unexpected session list: %+v", payload.Sessions)
	}
}

func TestMatchStatusHandlerValidatesAuth(t *testing.T) {
	session := &stubMatchSession{snapshot: match.Snapshot{MatchID: "session"}}
	handlers := NewHandlerSet(Options{
		Logger:     logging.NewTestLogger(),
		AdminToken: "secret",
		Match:      session,
	})

	unauthorized := httptest.NewRequest(http.MethodGet, "/admin/match/status", nil)
	rr := httptest.NewRecorder()
	handlers.MatchStatusHandler().ServeHTTP(rr, unauthorized)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for missing auth, got %d", rr.Code)
	}

	wrongMethod := httptest.NewRequest(http.MethodPost, "/admin/match/status", nil)
	wrongMethod.Header.Set("Authorization", "Bearer secret")
	rr = httptest.NewRecorder()
	handlers.MatchStatusHandler().ServeHTTP(rr, wrongMethod)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for wrong method, got %d", rr.Code)
	}
}
