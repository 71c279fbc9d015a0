package replay

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

var writerMatchCleaner = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

const boardInterval = 200 * time.Millisecond

// boardBlob stores board snapshot metadata before it is persisted to disk.
type boardBlob struct {
	Seq        uint64
	ElapsedMs  int64
	CapturedAt time.Time
	Payload    []byte
}

// Writer streams a single match's transcript to disk: chat lines and
// placement/fire events as a snappy-compressed JSON-lines log, board
// snapshots as a zstd-compressed binary stream.
type Writer struct {
	mu          sync.Mutex
	dir         string
	now         func() time.Time
	eventFile   *os.File
	eventStream *snappy.Writer
	boardFile   *os.File
	boardStream *zstd.Encoder
	pending     []boardBlob
	lastFlush   time.Time
	headerSeed  string
	players     []string
}

// Manifest describes the transcript bundle layout so tooling can locate artefacts.
type Manifest struct {
	Version         int    `json:"version"`
	CreatedAt       string `json:"created_at"`
	BoardIntervalMs int    `json:"board_interval_ms"`
	EventsPath      string `json:"events_path"`
	BoardsPath      string `json:"boards_path"`
}

// NewWriter prepares the replay directory and opens compressed sinks for a new match transcript.
func NewWriter(root, matchID string, clock func() time.Time) (*Writer, Manifest, error) {
	if root == "" {
		return nil, Manifest{}, fmt.Errorf("replay root must be provided")
	}
	if clock == nil {
		clock = time.Now
	}

	cleaned := writerMatchCleaner.ReplaceAllString(matchID, "")
	if cleaned == "" {
		cleaned = "match"
	}
	created := clock().UTC()
	folder := fmt.Sprintf("%s-%s", cleaned, created.Format("20060102T150405Z"))
	path := filepath.Join(root, folder)

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, Manifest{}, err
	}

	eventsPath := filepath.Join(path, "events.jsonl.sz")
	boardsPath := filepath.Join(path, "boards.bin.zst")
	manifestPath := filepath.Join(path, "manifest.json")

	eventFile, err := os.Create(eventsPath)
	if err != nil {
		return nil, Manifest{}, err
	}
	eventStream := snappy.NewBufferedWriter(eventFile)

	boardFile, err := os.Create(boardsPath)
	if err != nil {
		eventFile.Close()
		return nil, Manifest{}, err
	}
	boardStream, err := zstd.NewWriter(boardFile)
	if err != nil {
		eventStream.Close()
		eventFile.Close()
		boardFile.Close()
		return nil, Manifest{}, err
	}

	manifest := Manifest{
		Version:         1,
		CreatedAt:       created.Format(time.RFC3339Nano),
		BoardIntervalMs: int(boardInterval / time.Millisecond),
		EventsPath:      "events.jsonl.sz",
		BoardsPath:      "boards.bin.zst",
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		boardStream.Close()
		boardFile.Close()
		eventStream.Close()
		eventFile.Close()
		return nil, Manifest{}, err
	}
	if err := os.WriteFile(manifestPath, data, 0o644); err != nil {
		boardStream.Close()
		boardFile.Close()
		eventStream.Close()
		eventFile.Close()
		return nil, Manifest{}, err
	}

	writer := &Writer{
		dir:         path,
		now:         clock,
		eventFile:   eventFile,
		eventStream: eventStream,
		boardFile:   boardFile,
		boardStream: boardStream,
	}

	return writer, manifest, nil
}

// Directory exposes the directory backing the replay bundle.
func (w *Writer) Directory() string {
	if w == nil {
		return ""
	}
	return w.dir
}

// AppendEvent writes a single JSON line to the compressed event log: a chat
// message, a placement, a fire result, or a system announcement.
func (w *Writer) AppendEvent(seq uint64, elapsedMs int64, eventType string, payload []byte) error {
	if w == nil {
		return fmt.Errorf("writer not initialised")
	}
	captured := w.now().UTC()

	w.mu.Lock()
	defer w.mu.Unlock()

	//1.- Encode the event payload with metadata so downstream JSONL parsers can stream it safely.
	record := struct {
		Seq        uint64 `json:"seq"`
		ElapsedMs  int64  `json:"elapsed_ms"`
		CapturedAt string `json:"captured_at"`
		Type       string `json:"type"`
		PayloadB64 string `json:"payload_b64"`
	}{
		Seq:        seq,
		ElapsedMs:  elapsedMs,
		CapturedAt: captured.Format(time.RFC3339Nano),
		Type:       eventType,
		PayloadB64: base64.StdEncoding.EncodeToString(payload),
	}
	line, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if _, err := w.eventStream.Write(line); err != nil {
		return err
	}
	if _, err := w.eventStream.Write([]byte("\n")); err != nil {
		return err
	}
	return w.eventStream.Flush()
}

// AppendBoard buffers a board snapshot until the cadence interval is reached.
func (w *Writer) AppendBoard(seq uint64, elapsedMs int64, payload []byte) error {
	if w == nil {
		return fmt.Errorf("writer not initialised")
	}
	captured := w.now().UTC()
	clone := append([]byte(nil), payload...)

	w.mu.Lock()
	defer w.mu.Unlock()

	//1.- Stage the snapshot so cadence enforcement can persist batches together.
	w.pending = append(w.pending, boardBlob{Seq: seq, ElapsedMs: elapsedMs, CapturedAt: captured, Payload: clone})
	if w.lastFlush.IsZero() {
		w.lastFlush = captured
		return nil
	}
	if captured.Sub(w.lastFlush) >= boardInterval {
		if err := w.flushLocked(); err != nil {
			return err
		}
		w.lastFlush = captured
	}
	return nil
}

// SetHeaderMetadata configures the header persisted alongside the replay bundle.
func (w *Writer) SetHeaderMetadata(seed string, players []string) {
	if w == nil {
		return
	}
	w.mu.Lock()
	//1.- Cache the seed and roster for later header emission when the writer closes.
	w.headerSeed = seed
	w.players = append([]string(nil), players...)
	w.mu.Unlock()
}

// Flush forces pending board snapshots to be written regardless of cadence.
func (w *Writer) Flush() error {
	if w == nil {
		return fmt.Errorf("writer not initialised")
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	//1.- Persist pending snapshots then refresh the cadence anchor to avoid bursts.
	if err := w.flushLocked(); err != nil {
		return err
	}
	w.lastFlush = w.now().UTC()
	return nil
}

// Close synchronously flushes all buffers and releases file handles.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	//1.- Persist the metadata header before dismantling the streaming sinks.
	var firstErr error
	headerPath := filepath.Join(w.dir, "header.json")
	header := Header{
		SchemaVersion: HeaderSchemaVersion,
		MatchID:       filepath.Base(w.dir),
		MatchSeed:     w.headerSeed,
		Players:       append([]string(nil), w.players...),
		FilePointer:   "manifest.json",
	}
	if err := WriteHeader(headerPath, header); err != nil && firstErr == nil {
		firstErr = err
	}
	//2.- Attempt every flush/close and surface the first failure for callers to inspect.
	if err := w.flushLocked(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.eventStream.Flush(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.eventStream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.eventFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.boardStream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.boardFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// flushLocked writes buffered board snapshots to the zstd stream; callers must hold the mutex.
func (w *Writer) flushLocked() error {
	if len(w.pending) == 0 {
		return nil
	}
	//1.- Write length-prefixed snapshots so replayers can step efficiently.
	for _, board := range w.pending {
		header := make([]byte, 8+8+8+4)
		binary.LittleEndian.PutUint64(header[0:8], board.Seq)
		binary.LittleEndian.PutUint64(header[8:16], uint64(board.ElapsedMs))
		binary.LittleEndian.PutUint64(header[16:24], uint64(board.CapturedAt.UnixNano()))
		binary.LittleEndian.PutUint32(header[24:28], uint32(len(board.Payload)))
		if _, err := w.boardStream.Write(header); err != nil {
			return err
		}
		if _, err := w.boardStream.Write(board.Payload); err != nil {
			return err
		}
	}
	w.pending = w.pending[:0]
	return nil
}
