// Package broadcast implements safe fan-out delivery to the matchmaking
// queue: per-recipient pruning on send failure, an all-vs-spectators-only
// audience selector, and a short retained log of spectator-facing events
// so a late joiner is not handed a blank screen.
package broadcast

import (
	"errors"
	"sync"

	"battleship/broker/internal/gameplay"
	"battleship/broker/internal/logging"
	"battleship/broker/internal/wire"
)

// Target is the minimal per-recipient surface the broadcaster needs: a
// stable identity and a way to deliver one frame.
type Target interface {
	GetUsername() string
	SendFrame(kind wire.Kind, payload any) error
}

// defaultRetention bounds the retained spectator event log.
const defaultRetention = 64

// Event is one retained spectator-facing notification, keyed by a
// monotonically increasing sequence number.
type Event struct {
	Seq  uint64
	Kind wire.Kind
	Text string
}

// PruneFunc removes a target from the matchmaking queue after a failed send.
type PruneFunc func(username string)

// Broadcaster fans frames out to a snapshot of recipients, pruning any
// target whose send fails with a connection loss.
type Broadcaster struct {
	logger *logging.Logger
	prune  PruneFunc

	mu        sync.Mutex
	nextSeq   uint64
	retention int
	log       []Event
}

// New constructs a Broadcaster. prune is invoked (outside any internal
// lock) for every recipient whose send fails with ErrConnectionLost.
func New(logger *logging.Logger, prune PruneFunc) *Broadcaster {
	if logger == nil {
		logger = logging.L()
	}
	return &Broadcaster{logger: logger, prune: prune, retention: defaultRetention}
}

// Broadcast delivers a message (and, if non-empty, a board first) to every
// target in the snapshot. A send failure on one target does not interrupt
// delivery to the rest; a target whose send fails with ErrConnectionLost
// is pruned from the queue.
func (b *Broadcaster) Broadcast(targets []Target, kind wire.Kind, payload any, boardData string, showShips bool) {
	for _, target := range targets {
		if boardData != "" {
			if err := target.SendFrame(wire.KindBoard, gameplay.NewBoard(boardData, showShips)); err != nil {
				b.handleSendError(target, err)
				continue
			}
		}
		if err := target.SendFrame(kind, payload); err != nil {
			b.handleSendError(target, err)
		}
	}
}

// NotifySpectators records the caller's spectator-facing text for a turn
// outcome in the retained log and delivers it (with the updated defender
// board) to the given spectator targets.
func (b *Broadcaster) NotifySpectators(spectators []Target, text string, boardData string) {
	b.record(wire.KindSMessage, text)
	b.Broadcast(spectators, wire.KindSMessage, gameplay.NewSMessage(text), boardData, false)
}

// Backlog returns the retained spectator events, for handing to a late
// joiner or a reconnecting player instead of a blank screen.
func (b *Broadcaster) Backlog() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.log))
	copy(out, b.log)
	return out
}

func (b *Broadcaster) record(kind wire.Kind, text string) {
	b.mu.Lock()
	b.nextSeq++
	b.log = append(b.log, Event{Seq: b.nextSeq, Kind: kind, Text: text})
	if len(b.log) > b.retention {
		b.log = append([]Event(nil), b.log[len(b.log)-b.retention:]...)
	}
	b.mu.Unlock()
}

func (b *Broadcaster) handleSendError(target Target, err error) {
	b.logger.Warn("broadcast send failed, pruning target",
		logging.String("username", target.GetUsername()),
		logging.Error(err))
	if b.prune != nil && errors.Is(err, wire.ErrConnectionLost) {
		b.prune(target.GetUsername())
	}
}
