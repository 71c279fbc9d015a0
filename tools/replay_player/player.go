package replayplayer

import (
	"bufio"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"battleship/broker/internal/replay"
)

// Event represents a single event decoded from the JSONL log: a chat line,
// a placement, or a fire result.
type Event struct {
	Seq        uint64
	ElapsedMs  int64
	CapturedAt time.Time
	Type       string
	Payload    []byte
}

// Board represents a single board snapshot decoded from the binary blob stream.
type Board struct {
	Seq        uint64
	ElapsedMs  int64
	CapturedAt time.Time
	Payload    []byte
}

// ReplayBundle loads the manifest, events, and board snapshots for inspection.
func ReplayBundle(path string) (replay.Manifest, []Event, []Board, error) {
	if path == "" {
		return replay.Manifest{}, nil, nil, fmt.Errorf("path is required")
	}

	//1.- Locate the manifest so downstream parsing reuses relative asset paths.
	manifestPath := path
	info, err := os.Stat(path)
	if err != nil {
		return replay.Manifest{}, nil, nil, err
	}
	if info.IsDir() {
		manifestPath = filepath.Join(path, "manifest.json")
	}
	manifestDir := filepath.Dir(manifestPath)

	manifestBytes, err := os.ReadFile(manifestPath)
	if err != nil {
		return replay.Manifest{}, nil, nil, err
	}
	var manifest replay.Manifest
	if err := json.Unmarshal(manifestBytes, &manifest); err != nil {
		return replay.Manifest{}, nil, nil, err
	}
	if manifest.Version != 1 {
		return replay.Manifest{}, nil, nil, fmt.Errorf("unsupported manifest version %d", manifest.Version)
	}

	//2.- Decode events first so validation tools can reconstruct the timeline.
	events, err := loadEvents(filepath.Join(manifestDir, manifest.EventsPath))
	if err != nil {
		return replay.Manifest{}, nil, nil, err
	}

	//3.- Decode board snapshots afterwards because they can be replayed incrementally.
	boards, err := loadBoards(filepath.Join(manifestDir, manifest.BoardsPath))
	if err != nil {
		return replay.Manifest{}, nil, nil, err
	}

	return manifest, events, boards, nil
}

func loadEvents(path string) ([]Event, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := snappy.NewReader(file)
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var events []Event
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		//1.- Decode the JSON payload and convert the base64 field into raw bytes.
		var raw struct {
			Seq        uint64 `json:"seq"`
			ElapsedMs  int64  `json:"elapsed_ms"`
			CapturedAt string `json:"captured_at"`
			Type       string `json:"type"`
			PayloadB64 string `json:"payload_b64"`
		}
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			return nil, err
		}
		captured, err := time.Parse(time.RFC3339Nano, raw.CapturedAt)
		if err != nil {
			return nil, err
		}
		payload, err := base64.StdEncoding.DecodeString(raw.PayloadB64)
		if err != nil {
			return nil, err
		}
		events = append(events, Event{
			Seq:        raw.Seq,
			ElapsedMs:  raw.ElapsedMs,
			CapturedAt: captured,
			Type:       raw.Type,
			Payload:    payload,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func loadBoards(path string) ([]Board, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader, err := zstd.NewReader(file)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	payload, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	var boards []Board
	offset := 0
	for offset+28 <= len(payload) {
		//1.- Read the fixed header then hydrate the payload bytes for replay consumption.
		seq := binary.LittleEndian.Uint64(payload[offset : offset+8])
		offset += 8
		elapsed := int64(binary.LittleEndian.Uint64(payload[offset : offset+8]))
		offset += 8
		captured := int64(binary.LittleEndian.Uint64(payload[offset : offset+8]))
		offset += 8
		size := int(binary.LittleEndian.Uint32(payload[offset : offset+4]))
		offset += 4
		if size < 0 || offset+size > len(payload) {
			return nil, fmt.Errorf("board payload truncated")
		}
		blob := append([]byte(nil), payload[offset:offset+size]...)
		offset += size
		boards = append(boards, Board{
			Seq:        seq,
			ElapsedMs:  elapsed,
			CapturedAt: time.Unix(0, captured).UTC(),
			Payload:    blob,
		})
	}
	return boards, nil
}
