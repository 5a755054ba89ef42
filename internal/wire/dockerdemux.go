package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Docker attach socket stream identifiers, per the multiplexed stream
// protocol Docker uses for a container's stdout/stderr when attached
// without a TTY.
const (
	dockerStreamStdin  = 0
	dockerStreamStdout = 1
	dockerStreamStderr = 2
)

// DemuxDockerStream reads Docker's multiplexed attach-socket protocol
// from r: each chunk is an 8-byte header (stream_id, 0, 0, 0, length
// u32_be) followed by length bytes. Stdout chunks are re-delimited into
// stdout (the evaluator's own framed byte stream); stderr chunks are
// passed through to stderr with a "Docker stderr: " prefix, exactly as
// the original's DockerPort does for operator visibility.
func DemuxDockerStream(r io.Reader, stdout io.Writer, stderr io.Writer) error {
	var header [8]byte
	for {
		if _, err := io.ReadFull(r, header[:]); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("wire: reading docker stream header: %w", err)
		}

		streamID := header[0]
		length := binary.BigEndian.Uint32(header[4:8])

		chunk := make([]byte, length)
		if _, err := io.ReadFull(r, chunk); err != nil {
			return fmt.Errorf("wire: reading docker stream chunk: %w", err)
		}

		switch streamID {
		case dockerStreamStdout:
			if _, err := stdout.Write(chunk); err != nil {
				return fmt.Errorf("wire: writing demuxed stdout: %w", err)
			}
		case dockerStreamStderr:
			var prefixed bytes.Buffer
			prefixed.WriteString("Docker stderr: ")
			prefixed.Write(chunk)
			if _, err := stderr.Write(prefixed.Bytes()); err != nil {
				return fmt.Errorf("wire: writing demuxed stderr: %w", err)
			}
		default:
			// stdin echo or an unrecognized stream id; drop it.
		}
	}
}
