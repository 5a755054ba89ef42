// Package wire implements the length-prefixed, authenticated-encryption
// framed transport shared by the coordinator's remote-client connector
// and the server's session I/O, plus the Docker attach-socket
// demultiplexer used for the server-to-evaluator channel.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single frame's opaque payload, guarding against a
// corrupt or hostile length prefix forcing an unbounded allocation.
const MaxFrameSize = 64 << 20

var ErrFrameTooLarge = errors.New("wire: frame exceeds maximum size")

// WriteFrame writes length-prefixed opaque bytes: u32_be length followed
// by the payload itself.
func WriteFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("wire: writing frame length: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("wire: writing frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame. It returns io.EOF only when
// the stream ends cleanly before any bytes of the next frame arrive;
// a truncated frame is reported as io.ErrUnexpectedEOF.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("wire: reading frame length: %w", err)
	}

	length := binary.BigEndian.Uint32(lenBuf[:])
	if length > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("wire: reading frame payload: %w", err)
	}
	return payload, nil
}
