package server

import (
	"encoding/json"
	"errors"
	"net"
	"strings"
	"time"

	"battleship/broker/internal/gameplay"
	"battleship/broker/internal/input"
	"battleship/broker/internal/logging"
	"battleship/broker/internal/session"
	"battleship/broker/internal/wire"
)

// Handler drives one accepted connection through authentication and then
// the chat/gameplay routing main loop, per §4.4.
type Handler struct {
	hub    *Hub
	sess   *session.Session
	logger *logging.Logger
	cmdSeq uint64
}

// NewHandler wraps a freshly accepted connection in a codec and session.
func NewHandler(hub *Hub, conn net.Conn, key [32]byte, logger *logging.Logger) (*Handler, error) {
	codec, err := wire.NewCodec(conn, key)
	if err != nil {
		return nil, err
	}
	return &Handler{
		hub:    hub,
		sess:   session.New(conn, codec),
		logger: logger,
	}, nil
}

// Serve runs the handler to completion: authentication, then the main
// loop, until the connection dies or the handler is told to stop.
func (h *Handler) Serve() {
	defer h.cleanup()

	if !h.authenticate() {
		return
	}
	h.hub.Join(h.sess)
	h.mainLoop()
}

func (h *Handler) cleanup() {
	h.sess.MarkDisconnected()
	if h.sess.Username != "" {
		h.hub.Leave(h.sess.Username)
		h.hub.Gate().Forget(h.sess.Username)
	}
	_ = h.sess.Conn.Close()
}

// authenticate loops on the REGISTER/SETPIN/LOGIN/PIN verb table until the
// session is bound to a username or the connection is lost.
func (h *Handler) authenticate() bool {
	for {
		verb, arg, ok := h.readCommand()
		if !ok {
			return false
		}
		switch strings.ToUpper(verb) {
		case "REGISTER":
			name := strings.TrimSpace(arg)
			if name == "" || h.hub.credentials.Exists(name) {
				h.reply("USERNAME_TAKEN")
				continue
			}
			h.reply("USERNAME_OK")
			pin, ok := h.expectPin()
			if !ok {
				return false
			}
			if err := h.hub.credentials.Register(name, pin); err != nil {
				h.reply("USERNAME_TAKEN")
				continue
			}
			h.sess.Bind(name)
			h.reply("REGISTRATION_SUCCESS")
			return true

		case "LOGIN":
			name := strings.TrimSpace(arg)
			if !h.hub.credentials.Exists(name) {
				h.reply("USER_NOT_FOUND")
				continue
			}
			h.reply("USERNAME_OK")
			if h.attemptLogin(name) {
				h.sess.Bind(name)
				h.reply("LOGIN_SUCCESS")
				return true
			}
			h.reply("LOGIN_FAILURE")

		default:
			h.reply("you must login or register first")
		}
	}
}

// expectPin reads a "SETPIN <pin>" line, used right after REGISTER replies
// USERNAME_OK; any other verb is answered with a reminder and read again.
func (h *Handler) expectPin() (string, bool) {
	verb, arg, ok := h.readCommand()
	if !ok {
		return "", false
	}
	if strings.ToUpper(verb) != "SETPIN" {
		h.reply("expected SETPIN <pin>")
		return h.expectPin()
	}
	return strings.TrimSpace(arg), true
}

// attemptLogin allows up to 3 PIN attempts before the login loop aborts.
func (h *Handler) attemptLogin(name string) bool {
	for attempt := 0; attempt < 3; attempt++ {
		verb, arg, ok := h.readCommand()
		if !ok {
			return false
		}
		if strings.ToUpper(verb) != "PIN" {
			h.reply("expected PIN <pin>")
			attempt--
			continue
		}
		if err := h.hub.credentials.Verify(name, strings.TrimSpace(arg)); err == nil {
			return true
		}
	}
	return false
}

// readCommand blocks for the next inbound command frame, decoding corrupted
// or replayed frames away (logged and skipped) rather than treating them as
// fatal, per §7.
func (h *Handler) readCommand() (verb, arg string, ok bool) {
	for {
		kind, raw, err := h.sess.Codec.Receive()
		if err != nil {
			if errors.Is(err, wire.ErrCorrupted) || errors.Is(err, wire.ErrReplayOrGap) {
				h.logger.Warn("dropping malformed frame", logging.Error(err))
				continue
			}
			return "", "", false
		}
		if kind != wire.KindCommand {
			h.reply("you must login or register first")
			continue
		}
		var cmd gameplay.Command
		if err := json.Unmarshal(raw, &cmd); err != nil {
			continue
		}
		verb, arg, _ = strings.Cut(strings.TrimSpace(cmd.Coord), " ")
		return verb, arg, true
	}
}

func (h *Handler) reply(msg string) {
	_ = h.sess.SendFrame(wire.KindSMessage, gameplay.NewSMessage(msg))
}

// mainLoop routes every inbound frame after authentication: chat fans out
// to the whole queue; gameplay commands are accepted only while the turn
// gate is open, and otherwise rejected with a wait notice.
func (h *Handler) mainLoop() {
	for {
		kind, raw, err := h.sess.Codec.Receive()
		if err != nil {
			if errors.Is(err, wire.ErrCorrupted) || errors.Is(err, wire.ErrReplayOrGap) {
				h.logger.Warn("dropping malformed frame", logging.Error(err))
				continue
			}
			return
		}

		switch kind {
		case wire.KindChat:
			var chat gameplay.Chat
			if err := json.Unmarshal(raw, &chat); err != nil {
				continue
			}
			h.hub.BroadcastChat(h.sess.Username, chat.Msg)

		case wire.KindCommand:
			var cmd gameplay.Command
			if err := json.Unmarshal(raw, &cmd); err != nil {
				continue
			}
			if !h.sess.MyTurn() {
				h.reply("please wait, it isn't your turn")
				continue
			}
			h.cmdSeq++
			decision := h.hub.Gate().Evaluate(input.Frame{
				ClientID:   h.sess.Username,
				SequenceID: h.cmdSeq,
				SentAt:     time.Now(),
			})
			if !decision.Accepted {
				h.reply("slow down, command rejected: " + decision.Reason.String())
				continue
			}
			h.sess.SetTurn(false)
			h.sess.PushInput(strings.TrimSpace(cmd.Coord))

		default:
			h.reply("unexpected frame")
		}
	}
}
