// Package wire implements the framed transport used between the game
// server and its clients: a fixed 16-byte header, CRC32 integrity
// check, AES-CTR confidentiality, and per-direction sequence numbers.
package wire

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"net"
	"sync/atomic"
)

const (
	headerSize = 16
	// MaxPayloadBytes bounds a single frame's ciphertext length.
	MaxPayloadBytes = 64 * 1024
)

// Kind identifies the message type carried by a frame header.
type Kind uint16

// Server-to-client and client-to-server frame kinds.
const (
	KindResult Kind = iota + 1
	KindBoard
	KindPrompt
	KindSMessage
	KindWaiting
	KindShutdown
	KindChat
	KindCommand
)

var (
	// ErrConnectionLost is returned for any network-layer failure.
	ErrConnectionLost = errors.New("wire: connection lost")
	// ErrCorrupted is returned when a frame's CRC32 does not match its contents.
	ErrCorrupted = errors.New("wire: frame corrupted")
	// ErrReplayOrGap is returned when a frame's sequence number is not the expected next value.
	ErrReplayOrGap = errors.New("wire: replay or sequence gap")
	// ErrProtocolError is returned for malformed JSON or an unexpected frame kind.
	ErrProtocolError = errors.New("wire: protocol error")
	// ErrPayloadTooLarge is returned when a frame declares a length above MaxPayloadBytes.
	ErrPayloadTooLarge = errors.New("wire: payload exceeds maximum size")
)

// DeriveKey hashes a shared secret passphrase into a 256-bit AES key.
func DeriveKey(sharedSecret string) [32]byte {
	return sha256.Sum256([]byte(sharedSecret))
}

// envelope is the JSON plaintext carried inside every frame's ciphertext.
type envelope struct {
	Seq  uint64          `json:"seq"`
	Data json.RawMessage `json:"data"`
}

// Codec encrypts and authenticates frames exchanged over a single connection.
// seq_out and seq_in are independent per direction, per §4.1.
type Codec struct {
	conn   net.Conn
	block  cipher.Block
	seqOut uint64
	seqIn  uint64
}

// NewCodec wraps conn with a codec keyed by the derived shared-secret key.
func NewCodec(conn net.Conn, key [32]byte) (*Codec, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("wire: new cipher: %w", err)
	}
	return &Codec{conn: conn, block: block}, nil
}

// Send encrypts data, stamps it with the next outbound sequence number, and
// writes the frame atomically. Any network error is reported as ErrConnectionLost.
func (c *Codec) Send(kind Kind, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("wire: marshal payload: %w", err)
	}
	seq := atomic.AddUint64(&c.seqOut, 1) - 1
	plaintext, err := json.Marshal(envelope{Seq: seq, Data: raw})
	if err != nil {
		return fmt.Errorf("wire: marshal envelope: %w", err)
	}

	nonce := make([]byte, 8)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("wire: generate nonce: %w", err)
	}
	ciphertext := make([]byte, len(plaintext))
	streamCipher(c.block, nonce, plaintext, ciphertext)

	if len(ciphertext) > MaxPayloadBytes {
		return ErrPayloadTooLarge
	}

	frame := make([]byte, headerSize+len(ciphertext))
	binary.LittleEndian.PutUint16(frame[0:2], uint16(kind))
	binary.LittleEndian.PutUint16(frame[2:4], uint16(len(ciphertext)))
	// checksum (frame[4:8]) left zeroed for the CRC computation below
	copy(frame[8:16], nonce)
	copy(frame[headerSize:], ciphertext)

	checksum := crc32.ChecksumIEEE(frame)
	binary.LittleEndian.PutUint32(frame[4:8], checksum)

	if _, err := c.conn.Write(frame); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	return nil
}

// Receive blocks until a full, valid frame arrives and returns its kind and
// raw data payload. Corrupted or out-of-sequence frames are reported as
// sentinel errors the caller should log and skip, per §7.
func (c *Codec) Receive() (Kind, json.RawMessage, error) {
	header := make([]byte, headerSize)
	if err := readFull(c.conn, header); err != nil {
		return 0, nil, err
	}

	kind := Kind(binary.LittleEndian.Uint16(header[0:2]))
	length := binary.LittleEndian.Uint16(header[2:4])
	wantChecksum := binary.LittleEndian.Uint32(header[4:8])
	nonce := append([]byte(nil), header[8:16]...)

	if int(length) > MaxPayloadBytes {
		return 0, nil, ErrPayloadTooLarge
	}

	ciphertext := make([]byte, length)
	if err := readFull(c.conn, ciphertext); err != nil {
		return 0, nil, err
	}

	frame := make([]byte, headerSize+len(ciphertext))
	copy(frame, header)
	binary.LittleEndian.PutUint32(frame[4:8], 0)
	copy(frame[headerSize:], ciphertext)
	if crc32.ChecksumIEEE(frame) != wantChecksum {
		return 0, nil, ErrCorrupted
	}

	plaintext := make([]byte, len(ciphertext))
	streamCipher(c.block, nonce, ciphertext, plaintext)

	var env envelope
	if err := json.Unmarshal(plaintext, &env); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrProtocolError, err)
	}

	expected := atomic.LoadUint64(&c.seqIn)
	if env.Seq != expected {
		return 0, nil, ErrReplayOrGap
	}
	atomic.AddUint64(&c.seqIn, 1)
	return kind, env.Data, nil
}

// streamCipher runs AES-CTR over src into dst using nonce as the counter's
// initial 8 bytes, padded to the block size.
func streamCipher(block cipher.Block, nonce []byte, src, dst []byte) {
	iv := make([]byte, aes.BlockSize)
	copy(iv, nonce)
	stream := cipher.NewCTR(block, iv)
	stream.XORKeyStream(dst, src)
}

// readFull reads exactly len(buf) bytes, looping over short reads. A
// zero-byte read (peer closed) or any other network error is reported as
// ErrConnectionLost.
func readFull(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return ErrConnectionLost
		}
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	return nil
}
