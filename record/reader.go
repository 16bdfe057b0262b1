package record

import (
	"github.com/walmux/walmux/frame"
)

// Reader reassembles records from a frame stream.
//
// The state machine tolerates the artifacts a crashed writer leaves
// behind: an orphan MIDDLE or LAST frame is skipped, and a FIRST frame
// discards any pending partial record.
type Reader struct {
	fr     *frame.Reader
	buf    []byte
	within bool
}

func NewReader(fr *frame.Reader) *Reader {
	return &Reader{fr: fr}
}

// ReadRecord returns the next complete record. The record's payload
// aliases an internal buffer and is only valid until the next call.
//
// frame.ErrEndOfValidData marks the clean end of readable data.
// frame.ErrCorruptFrame and ErrCorrupt mark integrity violations; the
// caller must not read further into the file after either.
func (r *Reader) ReadRecord() (Record, error) {
	for {
		typ, payload, err := r.fr.ReadFrame()
		if err != nil {
			return Record{}, err
		}
		switch typ {
		case frame.Full, frame.First:
			r.buf = append(r.buf[:0], payload...)
			r.within = true
		case frame.Middle, frame.Last:
			if !r.within {
				continue
			}
			r.buf = append(r.buf, payload...)
		}
		if typ == frame.Full || typ == frame.Last {
			r.within = false
			return Unmarshal(r.buf)
		}
	}
}
