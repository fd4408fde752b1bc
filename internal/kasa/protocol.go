package kasa

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// DefaultPort is the TCP port of the smart home protocol.
	DefaultPort = 9999

	// initialKey seeds the XOR autokey cipher.
	initialKey byte = 171

	// headerSize is the length prefix of every frame.
	headerSize = 4

	// maxFrameSize bounds a response; a strip's sysinfo is a few KiB.
	maxFrameSize = 1 << 20
)

// Encrypt applies the autokey cipher: each output byte is the XOR of the
// input byte with the previous output byte.
func Encrypt(plain []byte) []byte {
	out := make([]byte, len(plain))
	key := initialKey
	for i, b := range plain {
		key ^= b
		out[i] = key
	}
	return out
}

// Decrypt reverses Encrypt.
func Decrypt(cipher []byte) []byte {
	out := make([]byte, len(cipher))
	key := initialKey
	for i, c := range cipher {
		out[i] = key ^ c
		key = c
	}
	return out
}

// WriteFrame writes the length-prefixed payload to w.
func WriteFrame(w io.Writer, payload []byte) error {
	buf := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint32(buf[:headerSize], uint32(len(payload))) //nolint:gosec // request payloads are tiny
	copy(buf[headerSize:], payload)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed payload from r.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("read frame header: %w", err)
	}

	size := binary.BigEndian.Uint32(header[:])
	if size > maxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}
	return payload, nil
}
