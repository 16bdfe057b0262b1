// Package record implements the logical layer of the log: multiplexed
// records carrying a queue name, a per-queue position and an opaque
// payload, laid out as one or more frames.
//
// Wire form: kind uint8 | position uint64 LE | queue_len uint16 LE |
// queue bytes | payload. The high bit of the kind byte marks an
// s2-compressed payload.
package record

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/s2"
)

// Kind enumerates the multiplexed record kinds.
type Kind uint8

const (
	// KindAppend carries one payload for one queue.
	KindAppend Kind = iota
	// KindTruncate advances a queue's truncation frontier.
	KindTruncate
	// KindQueuePos snapshots a queue's next position. Written before
	// file reclamation so the position survives the deleted files.
	KindQueuePos
	// KindNewQueue registers an explicitly created, still-empty queue.
	KindNewQueue
)

func (k Kind) String() string {
	switch k {
	case KindAppend:
		return "append"
	case KindTruncate:
		return "truncate"
	case KindQueuePos:
		return "queuepos"
	case KindNewQueue:
		return "newqueue"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

const (
	headerLen      = 1 + 8 + 2
	compressedFlag = 0x80

	// MaxQueueNameLen is bounded by the uint16 length prefix.
	MaxQueueNameLen = 1<<16 - 1
)

// ErrCorrupt reports a checksum-valid frame sequence that does not decode
// to a record. Callers treat it like a corrupt frame: the rest of the
// file is lost.
var ErrCorrupt = errors.New("record: corrupt record")

// Record is one multiplexed log entry. Compressed reports the stored
// form of Payload; Expand returns the logical bytes either way.
type Record struct {
	Kind       Kind
	Queue      string
	Position   uint64
	Payload    []byte
	Compressed bool
}

// Expand returns the logical payload, decoding s2 when the record was
// stored compressed.
func (r *Record) Expand() ([]byte, error) {
	if !r.Compressed {
		return r.Payload, nil
	}
	out, err := s2.Decode(nil, r.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return out, nil
}

// EncodedLen returns the wire length of a record before framing.
func EncodedLen(queue string, payloadLen int) int {
	return headerLen + len(queue) + payloadLen
}

// Marshal appends the wire form of rec to dst.
func Marshal(dst []byte, rec Record) []byte {
	kind := byte(rec.Kind)
	if rec.Compressed {
		kind |= compressedFlag
	}
	dst = append(dst, kind)
	var scratch [8]byte
	binary.LittleEndian.PutUint64(scratch[:], rec.Position)
	dst = append(dst, scratch[:]...)
	binary.LittleEndian.PutUint16(scratch[:2], uint16(len(rec.Queue)))
	dst = append(dst, scratch[:2]...)
	dst = append(dst, rec.Queue...)
	dst = append(dst, rec.Payload...)
	return dst
}

// Unmarshal decodes one record. The payload is returned in its stored
// form, aliasing data; it is not decompressed.
func Unmarshal(data []byte) (Record, error) {
	if len(data) < headerLen {
		return Record{}, ErrCorrupt
	}
	compressed := data[0]&compressedFlag != 0
	kind := Kind(data[0] &^ compressedFlag)
	if kind > KindNewQueue {
		return Record{}, ErrCorrupt
	}
	if compressed && kind != KindAppend {
		return Record{}, ErrCorrupt
	}
	queueLen := int(binary.LittleEndian.Uint16(data[9:11]))
	if len(data) < headerLen+queueLen {
		return Record{}, ErrCorrupt
	}
	return Record{
		Kind:       kind,
		Queue:      string(data[headerLen : headerLen+queueLen]),
		Position:   binary.LittleEndian.Uint64(data[1:9]),
		Payload:    data[headerLen+queueLen:],
		Compressed: compressed,
	}, nil
}
