package wire

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"hash/crc32"
	"net"
	"testing"
)

type commandPayload struct {
	Type  string `json:"type"`
	Coord string `json:"coord"`
}

func TestCodecRoundTrip(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	key := DeriveKey("integration-secret")
	serverCodec, err := NewCodec(server, key)
	if err != nil {
		t.Fatalf("new server codec: %v", err)
	}
	clientCodec, err := NewCodec(client, key)
	if err != nil {
		t.Fatalf("new client codec: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- clientCodec.Send(KindCommand, commandPayload{Type: "command", Coord: "B5"})
	}()

	kind, data, err := serverCodec.Receive()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("send: %v", err)
	}
	if kind != KindCommand {
		t.Fatalf("unexpected kind: %v", kind)
	}
	var payload commandPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.Coord != "B5" {
		t.Fatalf("unexpected coord: %q", payload.Coord)
	}
}

func TestCodecSequenceIncrementsAndRejectsReplay(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	key := DeriveKey("seq-secret")
	serverCodec, _ := NewCodec(server, key)
	clientCodec, _ := NewCodec(client, key)

	for i := 0; i < 3; i++ {
		go func() { _ = clientCodec.Send(KindChat, commandPayload{Type: "chat"}) }()
		if _, _, err := serverCodec.Receive(); err != nil {
			t.Fatalf("receive %d: %v", i, err)
		}
	}
	if clientCodec.seqOut != 3 {
		t.Fatalf("expected seqOut 3, got %d", clientCodec.seqOut)
	}
	if serverCodec.seqIn != 3 {
		t.Fatalf("expected seqIn 3, got %d", serverCodec.seqIn)
	}

	// Manually craft a frame carrying a stale sequence number (replay).
	stale := envelope{Seq: 0, Data: []byte(`{"type":"chat"}`)}
	plaintext, _ := json.Marshal(stale)
	nonce := make([]byte, 8)
	ciphertext := make([]byte, len(plaintext))
	streamCipher(clientCodec.block, nonce, plaintext, ciphertext)

	frame := make([]byte, 16+len(ciphertext))
	binary.LittleEndian.PutUint16(frame[0:2], uint16(KindChat))
	binary.LittleEndian.PutUint16(frame[2:4], uint16(len(ciphertext)))
	copy(frame[8:16], nonce)
	copy(frame[16:], ciphertext)
	checksum := crc32.ChecksumIEEE(frame)
	binary.LittleEndian.PutUint32(frame[4:8], checksum)

	writeDone := make(chan struct{})
	go func() {
		_, _ = client.Write(frame)
		close(writeDone)
	}()
	if _, _, err := serverCodec.Receive(); !errors.Is(err, ErrReplayOrGap) {
		t.Fatalf("expected ErrReplayOrGap, got %v", err)
	}
	<-writeDone
}

func TestCodecRejectsCorruptedChecksum(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	key := DeriveKey("corrupt-secret")
	serverCodec, _ := NewCodec(server, key)
	clientCodec, _ := NewCodec(client, key)

	go func() {
		raw, _ := json.Marshal(envelope{Seq: 0, Data: []byte(`{"type":"chat"}`)})
		nonce := make([]byte, 8)
		ciphertext := make([]byte, len(raw))
		streamCipher(clientCodec.block, nonce, raw, ciphertext)
		frame := make([]byte, 16+len(ciphertext))
		binary.LittleEndian.PutUint16(frame[0:2], uint16(KindChat))
		binary.LittleEndian.PutUint16(frame[2:4], uint16(len(ciphertext)))
		copy(frame[8:16], nonce)
		copy(frame[16:], ciphertext)
		checksum := crc32.ChecksumIEEE(frame)
		binary.LittleEndian.PutUint32(frame[4:8], checksum^0x1)
		_, _ = client.Write(frame)
	}()

	if _, _, err := serverCodec.Receive(); !errors.Is(err, ErrCorrupted) {
		t.Fatalf("expected ErrCorrupted, got %v", err)
	}
}

func TestCodecReportsConnectionLostOnShortRead(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()

	key := DeriveKey("eof-secret")
	serverCodec, _ := NewCodec(server, key)

	go func() {
		_, _ = client.Write([]byte{0x01, 0x00})
		client.Close()
	}()

	if _, _, err := serverCodec.Receive(); !errors.Is(err, ErrConnectionLost) {
		t.Fatalf("expected ErrConnectionLost, got %v", err)
	}
}
