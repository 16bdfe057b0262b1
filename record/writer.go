package record

import (
	"fmt"

	"github.com/klauspost/compress/s2"

	"github.com/walmux/walmux/frame"
)

// compressMinSize is the smallest payload worth compressing. Below it the
// s2 framing overhead dominates.
const compressMinSize = 512

// Writer lays records out as frames. One Writer owns the frame stream of
// one log file; it is not safe for concurrent use.
type Writer struct {
	fw       *frame.Writer
	compress bool
	buf      []byte
	cbuf     []byte
}

func NewWriter(fw *frame.Writer, compress bool) *Writer {
	return &Writer{fw: fw, compress: compress}
}

// WriteRecord writes rec as a FULL frame or a FIRST..LAST chain, never
// crossing a file boundary. Eligible payloads are s2-compressed when that
// makes them smaller. It returns the bytes written to the stream, frame
// headers and padding included, and the stored payload length.
func (w *Writer) WriteRecord(rec Record) (written, stored int, err error) {
	if len(rec.Queue) == 0 || len(rec.Queue) > MaxQueueNameLen {
		return 0, 0, fmt.Errorf("record: invalid queue name length %d", len(rec.Queue))
	}
	if w.compress && rec.Kind == KindAppend && !rec.Compressed && len(rec.Payload) >= compressMinSize {
		w.cbuf = s2.Encode(w.cbuf, rec.Payload)
		if len(w.cbuf) < len(rec.Payload) {
			rec.Payload = w.cbuf
			rec.Compressed = true
		}
	}
	w.buf = Marshal(w.buf[:0], rec)

	data := w.buf
	first := true
	for {
		capacity := w.fw.Capacity()
		n := len(data)
		if n > capacity {
			n = capacity
		}
		last := n == len(data)
		var typ frame.Type
		switch {
		case first && last:
			typ = frame.Full
		case first:
			typ = frame.First
		case last:
			typ = frame.Last
		default:
			typ = frame.Middle
		}
		fn, err := w.fw.WriteFrame(typ, data[:n])
		written += fn
		if err != nil {
			return written, 0, err
		}
		data = data[n:]
		first = false
		if last {
			return written, len(rec.Payload), nil
		}
	}
}

// MaxSizeOnDisk bounds the bytes WriteRecord may emit for a record whose
// wire form is encLen bytes: frame headers for the worst-case chain plus
// the padding of at most one block tail.
func MaxSizeOnDisk(encLen int) int64 {
	frames := encLen/frame.MaxPayload + 2
	return int64(encLen + frames*frame.HeaderSize + frame.HeaderSize - 1)
}
