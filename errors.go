package walmux

import (
	"errors"
	"fmt"

	"github.com/walmux/walmux/queue"
)

var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("walmux: log is closed")

	// ErrInvalidQueueName is returned for an empty queue name or one
	// longer than the wire format can carry.
	ErrInvalidQueueName = errors.New("walmux: invalid queue name")

	// ErrRecordTooLarge is returned when a record's wire form exceeds
	// Options.MaxRecordSize.
	ErrRecordTooLarge = errors.New("walmux: record exceeds max record size")

	// ErrNonContiguous is returned by AppendAt when the target position
	// neither continues the queue nor repeats its last record.
	ErrNonContiguous = queue.ErrNonContiguous

	// ErrUnknownQueue is returned by operations that require the queue
	// to exist.
	ErrUnknownQueue = queue.ErrUnknownQueue

	// ErrQueueAlreadyExists is returned by CreateQueue.
	ErrQueueAlreadyExists = queue.ErrAlreadyExists
)

// ReadRecordError reports an IO failure while reading back a log file,
// as opposed to corruption, which is absorbed by cutting the file's
// logical tail.
type ReadRecordError struct {
	File string
	Err  error
}

func (e ReadRecordError) Error() string {
	return fmt.Sprintf("walmux: read %s: %v", e.File, e.Err)
}

func (e ReadRecordError) Unwrap() error { return e.Err }
