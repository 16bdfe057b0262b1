package walmux

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/walmux/walmux/catalog"
	"github.com/walmux/walmux/frame"
	"github.com/walmux/walmux/metrics"
	"github.com/walmux/walmux/record"
	"github.com/walmux/walmux/utils/log"
)

// Iterate returns an iterator over the queue's records at or past
// from, in position order. Positions before the truncation frontier
// are skipped. The iterator is a snapshot: records appended after the
// call are not seen, and files reclaimed mid-iteration are skipped
// without error.
func (l *Log) Iterate(name string, from uint64) (*Iterator, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	info, err := l.tracker.Info(name)
	if err != nil {
		return nil, fmt.Errorf("iterate %q: %w", name, err)
	}
	if from < info.TruncatedBefore {
		from = info.TruncatedBefore
	}

	it := &Iterator{
		dir:   l.dir,
		queue: name,
		next:  from,
		files: l.tracker.FilesFrom(name, from),
	}
	if l.active != nil {
		// Push buffered bytes to the OS so the snapshot covers every
		// record appended so far.
		if err := l.active.Flush(); err != nil {
			l.dropActive()
			return nil, fmt.Errorf("flush log file %s: %w", catalog.FileName(l.activeID), err)
		}
		it.activeID = l.activeID
		it.activeLimit = l.active.Size()
		it.haveActive = true
	}
	return it, nil
}

// Iterator walks one queue's records in position order. It is a
// one-shot snapshot bound to the files holding the queue's records at
// creation time; it holds at most one of them open at a time. Not safe
// for concurrent use.
type Iterator struct {
	dir   *catalog.Directory
	queue string

	// next is the smallest position still wanted. Yields advance it, so
	// output positions are strictly increasing and the duplicate left
	// behind by a retried append is returned once.
	next  uint64
	files []uint64

	haveActive  bool
	activeID    uint64
	activeLimit int64

	cur    *record.Reader
	curRd  *catalog.Reader
	curID  uint64
	pos    uint64
	buf    []byte
	err    error
	closed bool
}

// Next advances to the next record, reporting false at the end of the
// snapshot or on error.
func (it *Iterator) Next() bool {
	if it.closed || it.err != nil {
		return false
	}
	for {
		if it.cur == nil {
			if !it.openNextFile() {
				return false
			}
		}
		rec, err := it.cur.ReadRecord()
		if err != nil {
			it.finishFile(err)
			if it.err != nil {
				return false
			}
			continue
		}
		if rec.Kind != record.KindAppend || rec.Queue != it.queue || rec.Position < it.next {
			continue
		}
		payload, err := rec.Expand()
		if err != nil {
			// The frame checksums held but the payload does not decode.
			// Treat it like any corrupt tail: drop the rest of the file.
			log.Warn("log file %s: record at %d does not decode: %v",
				catalog.FileName(it.curID), rec.Position, err)
			metrics.CorruptFrames.Inc()
			it.finishFile(nil)
			continue
		}
		it.pos = rec.Position
		it.buf = append(it.buf[:0], payload...)
		it.next = rec.Position + 1
		return true
	}
}

// Position returns the position of the current record.
func (it *Iterator) Position() uint64 {
	return it.pos
}

// Payload returns the current record's payload. The slice is reused;
// it is valid until the next call to Next.
func (it *Iterator) Payload() []byte {
	return it.buf
}

// Err returns the first IO error hit, if any. Corruption and files
// reclaimed mid-iteration end the affected file early but are not
// errors.
func (it *Iterator) Err() error {
	return it.err
}

// Close releases the open file handle. The iterator is unusable
// afterwards.
func (it *Iterator) Close() error {
	it.closed = true
	it.cur = nil
	if it.curRd != nil {
		err := it.curRd.Close()
		it.curRd = nil
		return err
	}
	return nil
}

func (it *Iterator) openNextFile() bool {
	for len(it.files) > 0 {
		id := it.files[0]
		it.files = it.files[1:]
		rd, err := it.dir.OpenReader(id)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				// Reclaimed since the snapshot was taken; its records
				// were truncated away, so nothing wanted is lost.
				continue
			}
			it.err = ReadRecordError{File: catalog.FileName(id), Err: err}
			return false
		}
		limit := int64(-1)
		if it.haveActive && id == it.activeID {
			limit = it.activeLimit
		}
		it.curRd = rd
		it.curID = id
		it.cur = record.NewReader(frame.NewReader(rd.SectionTo(limit)))
		return true
	}
	return false
}

// finishFile closes the current file, classifying how its read ended:
// nil or a torn tail is clean, corruption is logged and counted, and
// anything else stops the iterator with an error.
func (it *Iterator) finishFile(err error) {
	if it.curRd != nil {
		if cerr := it.curRd.Close(); cerr != nil {
			log.Error("close log file %s: %v", catalog.FileName(it.curID), cerr)
		}
		it.curRd = nil
	}
	it.cur = nil
	switch {
	case err == nil, errors.Is(err, frame.ErrEndOfValidData):
	case errors.Is(err, frame.ErrCorruptFrame), errors.Is(err, record.ErrCorrupt):
		log.Warn("log file %s: cut at corrupt frame: %v", catalog.FileName(it.curID), err)
		metrics.CorruptFrames.Inc()
	default:
		it.err = ReadRecordError{File: catalog.FileName(it.curID), Err: err}
	}
}
