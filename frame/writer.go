package frame

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Writer encodes frames into 32 KiB blocks over an io.Writer. It tracks
// the write offset within the current block and zero-fills the block tail
// whenever the remainder cannot hold a frame header.
type Writer struct {
	w         io.Writer
	blockFree int
	scratch   [HeaderSize]byte
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, blockFree: BlockSize}
}

// Capacity returns the payload capacity of the next frame, accounting for
// the padding WriteFrame would insert first.
func (w *Writer) Capacity() int {
	if w.blockFree < HeaderSize {
		return MaxPayload
	}
	return w.blockFree - HeaderSize
}

// WriteFrame writes a single frame. The payload must fit the capacity
// reported by Capacity. It returns the number of bytes written to the
// underlying writer, padding included.
func (w *Writer) WriteFrame(typ Type, payload []byte) (int, error) {
	written := 0
	if w.blockFree < HeaderSize {
		n, err := w.pad()
		written += n
		if err != nil {
			return written, err
		}
	}
	if len(payload) > w.blockFree-HeaderSize {
		return written, fmt.Errorf("frame: payload of %d bytes exceeds remaining block capacity %d",
			len(payload), w.blockFree-HeaderSize)
	}

	binary.LittleEndian.PutUint32(w.scratch[0:4], checksum(uint16(len(payload)), typ, payload))
	binary.LittleEndian.PutUint16(w.scratch[4:6], uint16(len(payload)))
	w.scratch[6] = byte(typ)

	n, err := w.w.Write(w.scratch[:])
	written += n
	if err != nil {
		return written, err
	}
	n, err = w.w.Write(payload)
	written += n
	if err != nil {
		return written, err
	}

	w.blockFree -= HeaderSize + len(payload)
	if w.blockFree == 0 {
		w.blockFree = BlockSize
	}
	return written, nil
}

var padding [HeaderSize - 1]byte

// pad zero-fills the remainder of the current block. Zero bytes never
// parse as a frame because type 0 is reserved.
func (w *Writer) pad() (int, error) {
	n, err := w.w.Write(padding[:w.blockFree])
	if err != nil {
		return n, err
	}
	w.blockFree = BlockSize
	return n, nil
}
