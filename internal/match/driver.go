package match

import (
	"fmt"
	"time"

	"battleship/broker/internal/board"
	"battleship/broker/internal/broadcast"
	"battleship/broker/internal/gameplay"
	"battleship/broker/internal/logging"
	"battleship/broker/internal/replay"
	"battleship/broker/internal/session"
	"battleship/broker/internal/wire"
)

// pollInterval bounds how often an input wait re-checks liveness, per the
// "poll interval ≤ 100 ms" concurrency note.
const pollInterval = 100 * time.Millisecond

// Driver runs one match to completion: the placement phase followed by the
// alternating turn phase, broadcasting updates as it goes.
type Driver struct {
	Sessions    map[string]*session.Session
	Spectators  func() []*session.Session
	Fleet       []gameplay.ShipClass
	TurnTimeout time.Duration
	Broadcaster *broadcast.Broadcaster
	Recorder    *replay.Recorder
	Writer      *replay.Writer
	Logger      *logging.Logger
}

// Run drives the match to completion or until a connection is lost.
// It returns Done with the winner's username, or ConnectionLost with the
// surviving (still-reachable) username.
func (d *Driver) Run(m *Match) (Outcome, string, error) {
	logger := d.Logger
	if logger == nil {
		logger = logging.L()
	}
	logger.Info("match starting", logging.Strings("players", m.Players[:]))

	if outcome, survivor, err := d.runPlacement(m); err != nil {
		logger.Warn("match aborted during placement", logging.String("survivor", survivor), logging.Error(err))
		return outcome, survivor, err
	}
	logger.Info("placement complete, turn phase starting", logging.String("first_player", m.CurrentPlayer))

	seq := uint64(0)
	for {
		attacker := d.Sessions[m.CurrentPlayer]
		defenderName := m.Opponent(m.CurrentPlayer)
		defender := d.Sessions[defenderName]

		attacker.SetTurn(true)
		if err := attacker.SendFrame(wire.KindPrompt, gameplay.NewPromptWithTimeout(
			"Enter coordinate to fire at "+defenderName+", or disconnect to forfeit", int(d.TurnTimeout.Seconds()))); err != nil {
			return ConnectionLost, defenderName, err
		}
		if err := defender.SendFrame(wire.KindWaiting, gameplay.NewWaiting("waiting for "+m.CurrentPlayer+" to fire")); err != nil {
			return ConnectionLost, m.CurrentPlayer, err
		}
		d.notifySpectators(m, "waiting for "+m.CurrentPlayer+" to fire", m.Boards[defenderName].RenderDisplay())

		raw, timedOut, lost := awaitInput(attacker, d.TurnTimeout)
		if lost {
			survivor, probeErr := ProbeSurvivor(d.Sessions[m.Players[0]], d.Sessions[m.Players[1]])
			logger.Warn("connection lost mid-turn", logging.String("survivor", survivor))
			return ConnectionLost, survivor, fmt.Errorf("%w: %v", wire.ErrConnectionLost, probeErr)
		}
		if timedOut {
			attacker.SetTurn(false)
			_ = attacker.SendFrame(wire.KindSMessage, gameplay.NewSMessage("You took too long. Skipping your turn."))
			_ = defender.SendFrame(wire.KindSMessage, gameplay.NewSMessage("Opponent time out. It is now your turn."))
			d.notifySpectators(m, m.CurrentPlayer+" timed out", m.Boards[defenderName].RenderDisplay())
			m.CurrentPlayer = defenderName
			continue
		}

		row, col, err := board.ParseCoordinate(raw)
		if err != nil {
			_ = attacker.SendFrame(wire.KindSMessage, gameplay.NewSMessage("[!] "+err.Error()))
			continue
		}

		outcome, shipName, err := m.Boards[defenderName].Fire(row, col)
		if err != nil {
			_ = attacker.SendFrame(wire.KindSMessage, gameplay.NewSMessage("[!] "+err.Error()))
			continue
		}
		seq++
		movePayload := []byte(fmt.Sprintf(`{"attacker":%q,"coord":%q}`, m.CurrentPlayer, raw))
		if d.Recorder != nil {
			d.Recorder.RecordMove(seq, time.Since(m.StartedAt).Milliseconds(), movePayload)
		}
		if d.Writer != nil {
			if err := d.Writer.AppendEvent(seq, time.Since(m.StartedAt).Milliseconds(), "fire", movePayload); err != nil {
				logger.Warn("replay writer append event failed", logging.Error(err))
			}
		}

		if outcome == board.AlreadyShot {
			_ = attacker.SendFrame(wire.KindSMessage, gameplay.NewSMessage("You already fired there."))
			continue
		}

		displayBoard := m.Boards[defenderName].RenderDisplay()
		if err := attacker.SendFrame(wire.KindBoard, gameplay.NewBoard(displayBoard, false)); err != nil {
			return ConnectionLost, defenderName, err
		}
		message := resultText(outcome, shipName)
		if err := attacker.SendFrame(wire.KindSMessage, gameplay.NewSMessage(message)); err != nil {
			return ConnectionLost, defenderName, err
		}
		if err := defender.SendFrame(wire.KindSMessage, gameplay.NewSMessage(message)); err != nil {
			return ConnectionLost, m.CurrentPlayer, err
		}
		d.notifySpectators(m, m.CurrentPlayer+" "+message, displayBoard)
		if d.Recorder != nil {
			d.Recorder.RecordBoard(seq, time.Since(m.StartedAt).Milliseconds(), []byte(displayBoard))
		}
		if d.Writer != nil {
			if err := d.Writer.AppendBoard(seq, time.Since(m.StartedAt).Milliseconds(), []byte(displayBoard)); err != nil {
				logger.Warn("replay writer append board failed", logging.Error(err))
			}
		}

		if m.Boards[defenderName].AllSunk() {
			_ = attacker.SendFrame(wire.KindResult, gameplay.NewResult("you win"))
			_ = defender.SendFrame(wire.KindResult, gameplay.NewResult("you lost"))
			logger.Info("match finished", logging.String("winner", m.CurrentPlayer))
			return Done, m.CurrentPlayer, nil
		}
		m.CurrentPlayer = defenderName
	}
}

func (d *Driver) runPlacement(m *Match) (Outcome, string, error) {
	for _, username := range m.Players {
		if m.Boards[username] != nil {
			continue
		}
		opponent := m.Opponent(username)
		if s := d.Sessions[opponent]; s != nil {
			_ = s.SendFrame(wire.KindWaiting, gameplay.NewWaiting(username+" is placing ships"))
		}
		d.notifySpectators(m, username+" is placing ships", "")

		placed := board.New()
		attacker := d.Sessions[username]
		for _, class := range d.Fleet {
			for {
				attacker.SetTurn(true)
				if err := attacker.SendFrame(wire.KindPrompt, gameplay.NewPrompt(
					fmt.Sprintf("Place your %s (%d cells). Enter starting coordinate followed by orientation (e.g. A1 V)", class.Name, class.Length))); err != nil {
					return ConnectionLost, m.Opponent(username), err
				}
				raw, _, lost := awaitInput(attacker, 0)
				if lost {
					survivor, probeErr := ProbeSurvivor(d.Sessions[m.Players[0]], d.Sessions[m.Players[1]])
					return ConnectionLost, survivor, fmt.Errorf("%w: %v", wire.ErrConnectionLost, probeErr)
				}
				row, col, orientation, err := board.ParsePlacement(raw)
				if err != nil {
					_ = attacker.SendFrame(wire.KindSMessage, gameplay.NewSMessage("[!] "+err.Error()))
					continue
				}
				if !placed.CanPlace(row, col, class.Length, orientation) {
					_ = attacker.SendFrame(wire.KindSMessage, gameplay.NewSMessage("[!] that placement overlaps or leaves the grid"))
					continue
				}
				if _, err := placed.Place(class.Name, row, col, class.Length, orientation); err != nil {
					_ = attacker.SendFrame(wire.KindSMessage, gameplay.NewSMessage("[!] "+err.Error()))
					continue
				}
				break
			}
		}
		m.Boards[username] = placed
		_ = attacker.SendFrame(wire.KindSMessage, gameplay.NewSMessage("all ships placed"))
		d.notifySpectators(m, username+" finished placing ships", "")
	}
	return Done, "", nil
}

func (d *Driver) notifySpectators(m *Match, text string, boardData string) {
	if d.Broadcaster == nil || d.Spectators == nil {
		return
	}
	targets := make([]broadcast.Target, 0)
	for _, s := range d.Spectators() {
		targets = append(targets, s)
	}
	d.Broadcaster.NotifySpectators(targets, text, boardData)
}

func resultText(outcome board.FireOutcome, shipName string) string {
	switch outcome {
	case board.Sunk:
		return "hit and sunk " + shipName + "!"
	case board.Hit:
		return "hit!"
	default:
		return "miss."
	}
}

// ProbeSurvivor determines which side of a broken match is still reachable
// by attempting a minimal send to the first session and, if that succeeds,
// to the second; the first side whose send fails is the loser. When both
// sends succeed the first session is reported as the survivor. Grounded in
// the original implementation's determine_winner_and_loser probe.
func ProbeSurvivor(first, second *session.Session) (string, error) {
	if first == nil || second == nil {
		return "", fmt.Errorf("match: both sessions required to probe survivor")
	}
	if err := first.SendFrame(wire.KindSMessage, gameplay.NewSMessage("")); err != nil {
		return second.Username, err
	}
	if err := second.SendFrame(wire.KindSMessage, gameplay.NewSMessage("")); err != nil {
		return first.Username, err
	}
	return first.Username, nil
}

// awaitInput blocks until a value is pushed into the session's mailbox, the
// timeout elapses (if positive), or the session disconnects. A timeout of
// zero or less blocks indefinitely (used during ship placement, which the
// spec does not bound with a timeout).
func awaitInput(s *session.Session, timeout time.Duration) (value string, timedOut bool, lost bool) {
	if v, ok := s.TakeInput(); ok {
		return v, false, false
	}
	ready := s.WaitForInput()
	defer s.ClearWait()

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ready:
			if v, ok := s.TakeInput(); ok {
				return v, false, false
			}
		case <-ticker.C:
			if !s.Connected() {
				return "", false, true
			}
			if !deadline.IsZero() && time.Now().After(deadline) {
				return "", true, false
			}
		}
	}
}
