package transport

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"

	"github.com/flowmesh/dataflow/internal/element"
)

// Frame = 4-byte big-endian length | 1-byte compression flag | payload.
// The length covers the flag byte plus payload. The flag byte is an
// extension over the bare record encoding: inter-worker edges carrying
// bulky Buffers benefit from compressing the wire payload, and the flag
// lets a receiver handle a mixed fleet (some edges compressed, some not)
// without a side channel.
const (
	flagRaw  byte = 0
	flagLZ4  byte = 1
	maxFrame      = 64 << 20
)

// WriteFrame encodes el and writes one length-prefixed frame to w. When
// compress is true the payload is LZ4-compressed before framing; the
// compressed form is kept only if it is smaller, otherwise the frame is
// sent raw.
func WriteFrame(w io.Writer, el element.Element, compress bool) error {
	payload, err := element.Encode(el)
	if err != nil {
		return fmt.Errorf("transport: encode element: %w", err)
	}

	flag := flagRaw
	if compress {
		compressed := make([]byte, lz4.CompressBlockBound(len(payload)))
		n, err := lz4.CompressBlock(payload, compressed, nil)
		if err != nil {
			return fmt.Errorf("transport: lz4 compress: %w", err)
		}
		if n > 0 && n < len(payload) {
			payload = compressed[:n]
			flag = flagLZ4
		}
	}

	var header [5]byte
	binary.BigEndian.PutUint32(header[0:4], uint32(len(payload)+1))
	header[4] = flag
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("transport: write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("transport: write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads and decodes one frame from r.
func ReadFrame(r io.Reader) (element.Element, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return element.Element{}, err // includes io.EOF on clean stream end
	}
	length := binary.BigEndian.Uint32(header[:])
	if length == 0 || length > maxFrame {
		return element.Element{}, fmt.Errorf("transport: frame length %d out of bounds", length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return element.Element{}, fmt.Errorf("transport: read frame body: %w", err)
	}

	flag, payload := body[0], body[1:]
	switch flag {
	case flagRaw:
		return element.Decode(payload)
	case flagLZ4:
		// The decompressed size isn't carried in the frame; grow the
		// destination buffer until lz4 stops reporting a short buffer.
		decompressed := make([]byte, len(payload)*4+64)
		for {
			n, err := lz4.UncompressBlock(payload, decompressed)
			if err == nil {
				return element.Decode(decompressed[:n])
			}
			if err == lz4.ErrInvalidSourceShortBuffer {
				decompressed = make([]byte, len(decompressed)*2)
				continue
			}
			return element.Element{}, fmt.Errorf("transport: lz4 decompress: %w", err)
		}
	default:
		return element.Element{}, fmt.Errorf("transport: unknown frame compression flag %d", flag)
	}
}
