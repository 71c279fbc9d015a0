// Package server wires the leaf packages (wire, session, board, gameplay,
// match, broadcast, auth, replay) into the running process: the shared
// queue, the per-connection handler, and the supervisor tick that promotes
// the front two sessions to a match.
package server

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"battleship/broker/internal/auth"
	"battleship/broker/internal/broadcast"
	"battleship/broker/internal/config"
	"battleship/broker/internal/gameplay"
	"battleship/broker/internal/input"
	"battleship/broker/internal/logging"
	"battleship/broker/internal/match"
	"battleship/broker/internal/replay"
	"battleship/broker/internal/session"
	"battleship/broker/internal/supervisor"
	"battleship/broker/internal/wire"
)

// commandGateMinInterval is the minimum spacing accepted between a single
// session's gameplay commands, independent of the wire codec's own
// per-direction sequence check: it guards against a client hammering
// KindCommand frames faster than any human turn could plausibly require.
const commandGateMinInterval = 150 * time.Millisecond

// Hub is the process-wide shared state: the matchmaking queue, the
// username -> live-session registry, and the in-progress match, all
// protected by a single mutex, per the concurrency model's "shared state
// behind one lock" rule.
type Hub struct {
	cfg         *config.Config
	logger      *logging.Logger
	credentials *auth.Store
	broadcaster *broadcast.Broadcaster
	recorder    *replay.Recorder
	fleet       []gameplay.ShipClass
	reconnect   *match.ReconnectTracker
	gate        *input.Gate
	tickMonitor *supervisor.TickMonitor
	startedAt   time.Time

	broadcastCount int64
	startupErr     error

	mu           sync.Mutex
	queue        *match.Queue
	sessions     map[string]*session.Session
	current      *match.Match
	pendingLoser string
	replayWriter *replay.Writer
	seq          uint64
}

// NewHub constructs the shared hub. recorder may be nil (replay disabled).
func NewHub(cfg *config.Config, logger *logging.Logger, credentials *auth.Store, fleet []gameplay.ShipClass, recorder *replay.Recorder) *Hub {
	h := &Hub{
		cfg:         cfg,
		logger:      logger,
		credentials: credentials,
		fleet:       fleet,
		recorder:    recorder,
		reconnect:   match.NewReconnectTracker(match.WithReconnectWindow(cfg.ReconnectWindow)),
		gate:        input.NewGate(input.Config{MinInterval: commandGateMinInterval}, logger),
		tickMonitor: supervisor.NewTickMonitor(),
		queue:       match.NewQueue("battleship"),
		sessions:    make(map[string]*session.Session),
		startedAt:   time.Now(),
	}
	h.broadcaster = broadcast.New(logger, h.drop)
	return h
}

// Gate exposes the per-session command throttle so the connection handler
// can validate inbound gameplay frames before they reach the match driver.
func (h *Hub) Gate() *input.Gate { return h.gate }

// TickStats reports supervisor tick timing, surfaced by the admin metrics
// endpoint to catch a Tick step that is falling behind its target rate.
func (h *Hub) TickStats() supervisor.TickMetricsSnapshot { return h.tickMonitor.Snapshot() }

// Broadcaster exposes the fan-out helper for wiring into a replay recorder
// or other ambient observers.
func (h *Hub) Broadcaster() *broadcast.Broadcaster { return h.broadcaster }

// Snapshot satisfies the admin HTTP surface's MatchSession interface.
func (h *Hub) Snapshot() match.Snapshot { return h.queue.Snapshot() }

// StartedAt reports when the hub (and so the server process) came up.
func (h *Hub) StartedAt() time.Time { return h.startedAt }

// ClientCount reports how many sessions are currently registered, connected
// or not yet pruned.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// SnapshotClientCounts satisfies httpapi.ReadinessProvider. Authenticated
// sessions are reported as clients; this server has no separate pending
// (pre-auth) registry, so pending is always reported as zero.
func (h *Hub) SnapshotClientCounts() (clients, pending int) {
	return h.ClientCount(), 0
}

// StartupError satisfies httpapi.ReadinessProvider.
func (h *Hub) StartupError() error { return h.startupErr }

// Uptime satisfies httpapi.ReadinessProvider.
func (h *Hub) Uptime() time.Duration { return time.Since(h.startedAt) }

// Stats satisfies httpapi.StatsFunc: cumulative broadcasts delivered and
// current client count.
func (h *Hub) Stats() (broadcasts, clients int) {
	return int(atomic.LoadInt64(&h.broadcastCount)), h.ClientCount()
}

// ReplayStats satisfies the admin HTTP surface's replay buffer metrics hook.
func (h *Hub) ReplayStats() replay.Stats {
	if h.recorder == nil {
		return replay.Stats{}
	}
	return h.recorder.Snapshot()
}

// DumpReplay satisfies httpapi.ReplayDumper by rolling the current
// recorder buffer to disk under a timestamp-derived match id.
func (h *Hub) DumpReplay(ctx context.Context) (string, error) {
	if h.recorder == nil {
		return "", fmt.Errorf("replay recording is disabled")
	}
	return h.recorder.Roll(fmt.Sprintf("manual-dump-%d", time.Now().UnixNano()))
}

// Join registers an authenticated session: either resuming a reconnect
// window (reinserting at the original queue slot) or joining the tail as a
// new participant/spectator.
func (h *Hub) Join(sess *session.Session) {
	h.mu.Lock()
	h.sessions[sess.Username] = sess

	if idx, expired, err := h.reconnect.Resolve(sess.Username); err == nil && !expired {
		h.reconnect.Clear(sess.Username)
		if h.pendingLoser == sess.Username {
			h.pendingLoser = ""
		}
		_ = h.queue.ReinsertAt(sess.Username, idx)
		h.mu.Unlock()
		h.logger.Info("player reconnected within window", logging.String("username", sess.Username))
		_ = sess.SendFrame(wire.KindSMessage, gameplay.NewSMessage("reconnected, resuming your match"))
		h.deliverBacklog(sess)
		return
	}

	member, err := h.queue.Join(sess.Username)
	h.mu.Unlock()
	if err != nil {
		h.logger.Warn("queue join failed", logging.String("username", sess.Username), logging.Error(err))
		_ = sess.SendFrame(wire.KindSMessage, gameplay.NewSMessage("already queued"))
		return
	}
	h.announcePosition(sess, member.Position)
	if member.Position > 1 {
		// Position > 1 means this session joined behind the active pair as a
		// spectator, mid-match; hand it the retained event log instead of a
		// blank screen, per the broadcaster's backlog contract.
		h.deliverBacklog(sess)
	}
}

// deliverBacklog replays the broadcaster's retained spectator-facing events
// to sess, for a late-joining spectator or a reconnecting player.
func (h *Hub) deliverBacklog(sess *session.Session) {
	for _, event := range h.broadcaster.Backlog() {
		_ = sess.SendFrame(event.Kind, gameplay.NewSMessage(event.Text))
	}
}

// Leave removes a departing session from the queue and registry.
func (h *Hub) Leave(username string) {
	h.mu.Lock()
	delete(h.sessions, username)
	h.queue.Leave(username)
	h.mu.Unlock()
}

// BroadcastChat fans a chat line out to every queued session (players and
// spectators alike), per §4.4's "chat -> broadcast to all queue members".
func (h *Hub) BroadcastChat(username, text string) {
	targets := h.allTargets()
	atomic.AddInt64(&h.broadcastCount, int64(len(targets)))
	h.broadcaster.Broadcast(targets, wire.KindChat, gameplay.NewChat(fmt.Sprintf("%s: %s", username, text)), "", false)
}

// Shutdown notifies every reachable session that the server is going away,
// per §5's shutdown sequence: broadcast the shutdown frame, then the caller
// closes sockets and exits.
func (h *Hub) Shutdown() {
	for _, target := range h.allTargets() {
		_ = target.SendFrame(wire.KindShutdown, gameplay.NewShutdown("server is shutting down"))
	}
}

func (h *Hub) announcePosition(sess *session.Session, position int) {
	var msg string
	switch position {
	case 0:
		msg = "waiting for an opponent"
	case 1:
		msg = "opponent found, starting placement shortly"
	default:
		msg = fmt.Sprintf("spectating, position %d in queue", position-1)
	}
	_ = sess.SendFrame(wire.KindWaiting, gameplay.NewWaiting(msg))
}

func (h *Hub) allTargets() []broadcast.Target {
	h.mu.Lock()
	defer h.mu.Unlock()
	targets := make([]broadcast.Target, 0, len(h.sessions))
	for _, s := range h.sessions {
		if s.Connected() {
			targets = append(targets, s)
		}
	}
	return targets
}

// spectatorSessions returns the sessions queued behind the active pair,
// for the match driver's notify_spectators fan-out.
func (h *Hub) spectatorSessions() []*session.Session {
	h.mu.Lock()
	snapshot := h.queue.Snapshot()
	var out []*session.Session
	for i, username := range snapshot.Sessions {
		if i < 2 {
			continue
		}
		if s, ok := h.sessions[username]; ok {
			out = append(out, s)
		}
	}
	h.mu.Unlock()
	return out
}

func (h *Hub) drop(username string) {
	h.Leave(username)
}

func (h *Hub) nextSeed() string {
	h.mu.Lock()
	h.seq++
	seed := fmt.Sprintf("match-%d", h.seq)
	h.mu.Unlock()
	return seed
}

// Tick is the supervisor's per-tick step: inspect the queue, resume or
// start a match, and react to the outcome. It runs synchronously, the way
// the distilled spec describes "start the match driver synchronously; on
// return, inspect the outcome".
func (h *Hub) Tick(time.Duration) {
	start := time.Now()
	defer func() { h.tickMonitor.Observe(time.Since(start)) }()

	h.mu.Lock()
	if h.pendingLoser != "" {
		_, expired, err := h.reconnect.Resolve(h.pendingLoser)
		if err == nil && expired {
			h.logger.Info("reconnect window expired, forfeiting", logging.String("loser", h.pendingLoser))
			if h.replayWriter != nil {
				if cerr := h.replayWriter.Close(); cerr != nil {
					h.logger.Warn("replay writer close failed", logging.Error(cerr))
				}
				h.replayWriter = nil
			}
			h.current = nil
			h.pendingLoser = ""
		} else {
			h.mu.Unlock()
			return
		}
	}

	first, second, ok := h.queue.ActivePair()
	if !ok {
		h.mu.Unlock()
		return
	}

	var m *match.Match
	resuming := false
	switch {
	case h.current != nil && h.current.Players[0] == first && h.current.Players[1] == second:
		m = h.current
		resuming = true
	case h.current != nil:
		h.mu.Unlock()
		return
	default:
		m = match.NewMatch(first, second, h.nextSeed(), time.Now())
		h.current = m
		if h.cfg.ReplayDir != "" {
			if w, _, werr := replay.NewWriter(h.cfg.ReplayDir, m.Seed, time.Now); werr != nil {
				h.logger.Warn("replay writer disabled for match", logging.Error(werr))
			} else {
				w.SetHeaderMetadata(m.Seed, []string{first, second})
				h.replayWriter = w
			}
		}
	}

	writer := h.replayWriter
	firstSession, firstOK := h.sessions[first]
	secondSession, secondOK := h.sessions[second]
	h.mu.Unlock()

	if !firstOK || !secondOK || !firstSession.Connected() || !secondSession.Connected() {
		return
	}

	if !resuming {
		h.broadcaster.Broadcast(h.allTargets(), wire.KindSMessage,
			gameplay.NewSMessage(fmt.Sprintf("%s vs %s: match starting", first, second)), "", false)
	}

	driver := &match.Driver{
		Sessions:    map[string]*session.Session{first: firstSession, second: secondSession},
		Spectators:  h.spectatorSessions,
		Fleet:       h.fleet,
		TurnTimeout: h.cfg.TurnTimeout,
		Broadcaster: h.broadcaster,
		Recorder:    h.recorder,
		Writer:      writer,
		Logger:      h.logger,
	}

	outcome, decided, err := driver.Run(m)
	if err != nil {
		h.logger.Warn("match driver returned an error", logging.Error(err))
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	switch outcome {
	case match.Done:
		loser := m.Opponent(decided)
		h.queue.Rotate(decided, loser)
		h.current = nil
		h.pendingLoser = ""
		if h.replayWriter != nil {
			if cerr := h.replayWriter.Close(); cerr != nil {
				h.logger.Warn("replay writer close failed", logging.Error(cerr))
			}
			h.replayWriter = nil
		}
		go h.announceUpcomingMatch(decided, loser)
	case match.ConnectionLost:
		loser := m.Opponent(decided)
		idx := h.queue.PositionOf(loser)
		if idx < 0 {
			idx = 1
		}
		h.queue.Leave(loser)
		h.reconnect.Open(loser, idx)
		h.pendingLoser = loser
		h.broadcaster.Broadcast(h.allTargetsLocked(), wire.KindWaiting,
			gameplay.NewWaiting(fmt.Sprintf("%s disconnected, waiting up to %s for reconnect", loser, h.cfg.ReconnectWindow)), "", false)
	}
}

func (h *Hub) allTargetsLocked() []broadcast.Target {
	targets := make([]broadcast.Target, 0, len(h.sessions))
	for _, s := range h.sessions {
		if s.Connected() {
			targets = append(targets, s)
		}
	}
	return targets
}

func (h *Hub) announceUpcomingMatch(winner, loser string) {
	time.Sleep(h.cfg.RematchPause)
	h.broadcaster.Broadcast(h.allTargets(), wire.KindSMessage,
		gameplay.NewSMessage(fmt.Sprintf("next up: %s's streak continues, %s moves to the back of the queue", winner, loser)), "", false)
}
