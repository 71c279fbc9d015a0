// Package session holds per-connection state shared between a client's
// receive loop and the match driver that consumes its input: identity,
// sequence counters, the single-slot input mailbox, and the turn gate.
package session

import (
	"net"
	"sync"
	"sync/atomic"

	"battleship/broker/internal/wire"
)

// Session is the per-connection record tracked by the queue and the match
// driver. username is set once during authentication and read thereafter
// without a lock; connected is an atomic flag cleared by MarkDisconnected.
type Session struct {
	Conn     net.Conn
	Codec    *wire.Codec
	Username string

	connected int32

	mu          sync.Mutex
	latestInput *string
	inputReady  chan struct{}
	myTurn      bool
}

// New constructs a Session bound to a live connection and codec. The
// username is attached once authentication succeeds via Bind.
func New(conn net.Conn, codec *wire.Codec) *Session {
	return &Session{
		Conn:      conn,
		Codec:     codec,
		connected: 1,
	}
}

// Bind attaches the authenticated username to the session.
func (s *Session) Bind(username string) { s.Username = username }

// SendFrame encodes and writes a frame to this session's connection.
func (s *Session) SendFrame(kind wire.Kind, payload any) error {
	return s.Codec.Send(kind, payload)
}

// GetUsername satisfies broadcast.Target's identity requirement.
func (s *Session) GetUsername() string { return s.Username }

// Connected reports the session's liveness flag.
func (s *Session) Connected() bool { return atomic.LoadInt32(&s.connected) == 1 }

// MarkDisconnected flips the liveness flag; idempotent.
func (s *Session) MarkDisconnected() { atomic.StoreInt32(&s.connected, 0) }

// SetTurn sets or clears the turn gate: whether the handler should accept a
// non-chat command from this session right now.
func (s *Session) SetTurn(myTurn bool) {
	s.mu.Lock()
	s.myTurn = myTurn
	s.mu.Unlock()
}

// MyTurn reports the current turn gate value.
func (s *Session) MyTurn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.myTurn
}

// PushInput stores the next expected command line into the single-slot
// mailbox. A value already in the slot is never overwritten: until TakeInput
// clears it, further pushes are dropped. The handler calls this after
// accepting a non-chat command.
func (s *Session) PushInput(line string) {
	s.mu.Lock()
	if s.latestInput != nil {
		s.mu.Unlock()
		return
	}
	s.latestInput = &line
	ready := s.inputReady
	s.mu.Unlock()
	if ready != nil {
		select {
		case ready <- struct{}{}:
		default:
		}
	}
}

// TakeInput clears and returns the mailbox slot, reporting whether a value
// was present.
func (s *Session) TakeInput() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latestInput == nil {
		return "", false
	}
	value := *s.latestInput
	s.latestInput = nil
	return value, true
}

// WaitForInput registers a readiness channel so the match driver can be
// woken as soon as PushInput stores a value, instead of polling. The
// channel is cleared when no longer needed via ClearWait.
func (s *Session) WaitForInput() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inputReady == nil {
		s.inputReady = make(chan struct{}, 1)
	}
	return s.inputReady
}

// ClearWait drops the registered readiness channel.
func (s *Session) ClearWait() {
	s.mu.Lock()
	s.inputReady = nil
	s.mu.Unlock()
}
