package frame

import (
	"encoding/binary"
	"errors"
	"io"
)

// Reader decodes frames block by block from an io.Reader holding a frame
// stream, typically a section of a log file capped at its flushed length.
//
// Error classification follows the recovery contract: any violation found
// in the short final block of the stream is ErrEndOfValidData (the
// expected artifact of a crash mid-write), while a violation inside a
// fully present block is ErrCorruptFrame and everything beyond it in the
// file must be treated as lost.
type Reader struct {
	r     io.Reader
	block [BlockSize]byte
	n     int
	off   int
	short bool
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadFrame returns the next frame. The payload slice aliases the
// reader's internal block buffer and is only valid until the next call.
func (r *Reader) ReadFrame() (Type, []byte, error) {
	for {
		if r.off+HeaderSize > r.n {
			// Block exhausted. A remainder smaller than a header is
			// writer padding inside a full block, or the torn tail of
			// a short one.
			if r.short {
				return 0, nil, ErrEndOfValidData
			}
			if err := r.loadBlock(); err != nil {
				return 0, nil, err
			}
			continue
		}

		hdr := r.block[r.off : r.off+HeaderSize]
		sum := binary.LittleEndian.Uint32(hdr[0:4])
		length := int(binary.LittleEndian.Uint16(hdr[4:6]))
		typ := Type(hdr[6])

		if typ.valid() && r.off+HeaderSize+length <= r.n {
			payload := r.block[r.off+HeaderSize : r.off+HeaderSize+length]
			if sum == checksum(uint16(length), typ, payload) {
				r.off += HeaderSize + length
				return typ, payload, nil
			}
		}
		if r.short {
			return 0, nil, ErrEndOfValidData
		}
		return 0, nil, ErrCorruptFrame
	}
}

func (r *Reader) loadBlock() error {
	if r.short {
		return ErrEndOfValidData
	}
	n, err := io.ReadFull(r.r, r.block[:])
	r.off, r.n = 0, n
	switch {
	case err == nil:
	case errors.Is(err, io.ErrUnexpectedEOF):
		r.short = true
	case errors.Is(err, io.EOF):
		return ErrEndOfValidData
	default:
		return err
	}
	return nil
}
