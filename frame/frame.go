// Package frame implements the physical layer of the log: fixed-size,
// checksummed frames packed into 32 KiB blocks. A frame never crosses a
// block boundary, so a torn write can only damage the tail of the last
// block written.
package frame

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
)

const (
	// BlockSize is the alignment unit of the on-disk format. Frames never
	// cross a block boundary.
	BlockSize = 32 * 1024

	// HeaderSize is checksum uint32 + length uint16 + type uint8.
	HeaderSize = 4 + 2 + 1

	// MaxPayload is the payload capacity of a frame written at the start
	// of a block.
	MaxPayload = BlockSize - HeaderSize
)

// Type tags a frame with its role in record fragmentation.
type Type uint8

const (
	// Type 0 is reserved so that zero padding never parses as a frame.
	Full Type = iota + 1
	First
	Middle
	Last
)

func (t Type) valid() bool {
	return t >= Full && t <= Last
}

var (
	// ErrEndOfValidData reports a clean end of readable frames: a plain
	// end of file, or a frame torn by a crash at the file's tail.
	ErrEndOfValidData = errors.New("frame: end of valid data")

	// ErrCorruptFrame reports an integrity violation inside a fully
	// written block. Nothing past the violation may be trusted.
	ErrCorruptFrame = errors.New("frame: corrupt frame")
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// checksum covers the length bytes, the type byte and the payload.
func checksum(length uint16, typ Type, payload []byte) uint32 {
	var tail [3]byte
	binary.LittleEndian.PutUint16(tail[0:2], length)
	tail[2] = byte(typ)
	sum := crc32.Update(0, castagnoli, tail[:])
	return crc32.Update(sum, castagnoli, payload)
}
