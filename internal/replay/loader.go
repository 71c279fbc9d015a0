package replay

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"
)

// TimelineEntry represents a single replay datum ready for deterministic iteration.
type TimelineEntry struct {
	Seq        uint64
	ElapsedMs  int64
	CapturedAt time.Time
	Type       string
	Payload    json.RawMessage
}

// Loader rehydrates compressed match transcripts for review tooling.
type Loader struct {
	entries []TimelineEntry
}

// Load constructs a loader from the provided transcript file path.
func Load(path string) (*Loader, error) {
	if path == "" {
		return nil, fmt.Errorf("replay path must be provided")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader, err := gzip.NewReader(file)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	type entry struct {
		Seq        uint64          `json:"seq"`
		CapturedAt string          `json:"captured_at"`
		ElapsedMs  int64           `json:"elapsed_ms"`
		Payload    json.RawMessage `json:"payload"`
	}
	var envelope struct {
		Moves  []entry `json:"moves"`
		Boards []entry `json:"boards"`
		Chat   []entry `json:"chat"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, err
	}

	entries := make([]TimelineEntry, 0, len(envelope.Moves)+len(envelope.Boards)+len(envelope.Chat))

	//1.- Rehydrate placement/fire actions so deterministic reviews can include authoritative moves.
	for _, move := range envelope.Moves {
		captured, err := time.Parse(time.RFC3339Nano, move.CapturedAt)
		if err != nil {
			return nil, fmt.Errorf("parse move captured_at: %w", err)
		}
		entries = append(entries, TimelineEntry{
			Seq:        move.Seq,
			ElapsedMs:  move.ElapsedMs,
			CapturedAt: captured,
			Type:       "move",
			Payload:    append(json.RawMessage(nil), move.Payload...),
		})
	}

	//2.- Append board snapshots to feed deterministic review runs.
	for _, board := range envelope.Boards {
		captured, err := time.Parse(time.RFC3339Nano, board.CapturedAt)
		if err != nil {
			return nil, fmt.Errorf("parse board captured_at: %w", err)
		}
		entries = append(entries, TimelineEntry{
			Seq:        board.Seq,
			ElapsedMs:  board.ElapsedMs,
			CapturedAt: captured,
			Type:       "board",
			Payload:    append(json.RawMessage(nil), board.Payload...),
		})
	}

	//3.- Include chat lines so match logs replay deterministically alongside gameplay.
	for _, line := range envelope.Chat {
		captured, err := time.Parse(time.RFC3339Nano, line.CapturedAt)
		if err != nil {
			return nil, fmt.Errorf("parse chat captured_at: %w", err)
		}
		entries = append(entries, TimelineEntry{
			Seq:        line.Seq,
			ElapsedMs:  line.ElapsedMs,
			CapturedAt: captured,
			Type:       "chat",
			Payload:    append(json.RawMessage(nil), line.Payload...),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ElapsedMs == entries[j].ElapsedMs {
			if entries[i].Seq == entries[j].Seq {
				return entries[i].Type < entries[j].Type
			}
			return entries[i].Seq < entries[j].Seq
		}
		return entries[i].ElapsedMs < entries[j].ElapsedMs
	})

	return &Loader{entries: entries}, nil
}

// Replay iterates over the loaded entries in deterministic order.
func (l *Loader) Replay(apply func(TimelineEntry) error) error {
	if l == nil {
		return fmt.Errorf("loader not initialised")
	}
	if apply == nil {
		return fmt.Errorf("replay callback must be provided")
	}
	for _, entry := range l.entries {
		//1.- Invoke the callback for each timeline entry to drive the review tool.
		if err := apply(entry); err != nil {
			return err
		}
	}
	return nil
}

// Entries exposes a defensive copy of the timeline for external assertions.
func (l *Loader) Entries() []TimelineEntry {
	if l == nil {
		return nil
	}
	out := make([]TimelineEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
