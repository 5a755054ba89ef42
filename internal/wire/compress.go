package wire

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"

	"github.com/permuter-search/permuter/internal/workerpool/pool"
)

// zlibWriters pools *zlib.Writer values across calls to CompressSource:
// a candidate source blob is compressed on every result that crosses
// either wire boundary (spec.md §9), so a run reuses the same handful of
// writers instead of allocating one per result. sync.Pool (via
// pool.NewDynamic) is the right shape here since writers can be dropped
// under memory pressure between candidates.
var zlibWriters = pool.NewDynamic(func() interface{} { return zlib.NewWriter(io.Discard) })

// CompressSource deflates a candidate source blob with zlib before it
// crosses the wire, the Go analogue of the original's use of Python's
// zlib module on the same path (spec.md §9).
func CompressSource(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlibWriters.Get().(*zlib.Writer)
	w.Reset(&buf)
	defer zlibWriters.Put(w)

	if _, err := w.Write(src); err != nil {
		return nil, fmt.Errorf("wire: compressing source: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("wire: closing zlib writer: %w", err)
	}
	return buf.Bytes(), nil
}

// DecompressSource inflates a zlib stream produced by CompressSource.
func DecompressSource(compressed []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("wire: opening zlib reader: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("wire: decompressing source: %w", err)
	}
	return out, nil
}
