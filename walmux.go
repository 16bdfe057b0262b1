// Package walmux is a durable append-only record log multiplexing many
// independently truncatable queues over a single directory of log
// files. All queues share the same files, so appending to any number of
// queues costs one file write and at most one fsync, and the number of
// open file descriptors stays constant in the number of queues.
//
// Records are framed in fixed-size checksummed blocks; a crash can only
// lose the unsynced tail, never corrupt what a previous Sync made
// durable. Truncating a queue releases its records, and a log file is
// deleted once every queue has been truncated past the records it
// holds.
package walmux

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"github.com/gobwas/glob"

	"github.com/walmux/walmux/catalog"
	"github.com/walmux/walmux/frame"
	"github.com/walmux/walmux/metrics"
	"github.com/walmux/walmux/queue"
	"github.com/walmux/walmux/record"
	"github.com/walmux/walmux/utils/log"
)

// QueueInfo describes one queue: its retained position range, the
// truncation frontier and the retained record and byte counts.
type QueueInfo = queue.Info

// Log is a multi-queue write-ahead log rooted at one directory. All
// methods are safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	opts    Options
	dir     *catalog.Directory
	tracker *queue.Tracker

	active   *catalog.File
	activeID uint64
	rw       *record.Writer

	closed bool
}

// Open replays the log files under dir and returns a usable Log. The
// zero Options value selects the defaults. Corrupt file tails are cut
// and logged, never fatal: whatever a crash left behind, the records
// synced before it are recovered.
func Open(dir string, opts Options) (*Log, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}
	start := time.Now()

	d, err := catalog.OpenDirectory(dir)
	if err != nil {
		return nil, fmt.Errorf("open log directory: %w", err)
	}
	tracker := queue.NewTracker()

	ids := d.FileIDs()
	log.Info("replaying %d log files in %s", len(ids), dir)
	for _, id := range ids {
		if err := replayFile(d, id, tracker); err != nil {
			return nil, err
		}
	}

	l := &Log{opts: opts, dir: d, tracker: tracker}

	// A crash between writing truncate records and deleting the files
	// they released leaves fully-truncated files behind. Sweep them now.
	if err := l.reclaim(); err != nil {
		return nil, err
	}

	metrics.RecoverySeconds.Set(time.Since(start).Seconds())
	metrics.RetainedBytes.Set(float64(d.TotalSize()))
	log.Info("log open: %d queues over %d files, %s retained",
		len(tracker.Names()), d.NumFiles(), bytefmt.ByteSize(uint64(d.TotalSize())))
	return l, nil
}

// replayFile feeds one file's records into the tracker. Reading stops
// at the first integrity violation: a torn tail is the expected result
// of a crash, anything else is logged and counted.
func replayFile(d *catalog.Directory, id uint64, tracker *queue.Tracker) error {
	f, err := d.OpenReader(id)
	if err != nil {
		return ReadRecordError{File: catalog.FileName(id), Err: err}
	}
	defer f.Close()

	rr := record.NewReader(frame.NewReader(f.SectionTo(-1)))
	for {
		rec, err := rr.ReadRecord()
		switch {
		case err == nil:
		case errors.Is(err, frame.ErrEndOfValidData):
			return nil
		case errors.Is(err, frame.ErrCorruptFrame), errors.Is(err, record.ErrCorrupt):
			log.Warn("log file %s: cut at corrupt frame: %v", catalog.FileName(id), err)
			metrics.CorruptFrames.Inc()
			return nil
		default:
			return ReadRecordError{File: catalog.FileName(id), Err: err}
		}
		switch rec.Kind {
		case record.KindAppend:
			tracker.Observe(rec.Queue, id, rec.Position, uint64(len(rec.Payload)))
		case record.KindTruncate:
			tracker.ObserveTruncate(rec.Queue, rec.Position)
		case record.KindQueuePos:
			tracker.ObservePosition(rec.Queue, rec.Position)
		case record.KindNewQueue:
			tracker.ObserveCreate(rec.Queue)
		}
	}
}

// Append appends payload to the queue at the next position and returns
// the position assigned. The queue is created on first use.
func (l *Log) Append(name string, payload []byte) (uint64, error) {
	return l.append(name, nil, payload)
}

// AppendAt appends payload at an explicit position. The position must
// be the queue's next; re-appending the last record is accepted and
// ignored, so a retried append after a lost acknowledgment is safe. A
// queue with no position history, never appended to and never
// truncated, accepts any starting position.
func (l *Log) AppendAt(name string, pos uint64, payload []byte) (uint64, error) {
	return l.append(name, &pos, payload)
}

func (l *Log) append(name string, pos *uint64, payload []byte) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, ErrClosed
	}
	if len(name) == 0 || len(name) > record.MaxQueueNameLen {
		return 0, fmt.Errorf("append to %q: %w", name, ErrInvalidQueueName)
	}
	encLen := record.EncodedLen(name, len(payload))
	if int64(encLen) > l.opts.MaxRecordSize {
		return 0, fmt.Errorf("append to %q: %d bytes: %w", name, encLen, ErrRecordTooLarge)
	}

	assigned, noop, err := l.tracker.CheckAppend(name, pos)
	if err != nil {
		return 0, fmt.Errorf("append to %q at %d: %w", name, *pos, err)
	}
	if noop {
		return assigned, nil
	}

	if err := l.ensureWriter(encLen); err != nil {
		return 0, err
	}
	_, stored, err := l.writeRecord(record.Record{
		Kind:     record.KindAppend,
		Queue:    name,
		Position: assigned,
		Payload:  payload,
	})
	if err != nil {
		return 0, err
	}
	l.tracker.CommitAppend(name, l.activeID, assigned, uint64(stored))
	metrics.AppendedRecords.Inc()
	metrics.AppendedBytes.Add(float64(stored))

	if err := l.maybeSync(); err != nil {
		return 0, err
	}
	return assigned, nil
}

// CreateQueue registers an empty queue so it shows up in listings
// before its first record. Appending creates queues implicitly;
// CreateQueue only exists for callers that want the queue visible, and
// its emptiness detectable, ahead of time.
func (l *Log) CreateQueue(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if len(name) == 0 || len(name) > record.MaxQueueNameLen {
		return fmt.Errorf("create queue %q: %w", name, ErrInvalidQueueName)
	}
	if l.tracker.Has(name) {
		return fmt.Errorf("create queue %q: %w", name, ErrQueueAlreadyExists)
	}
	if err := l.writeControl(record.Record{Kind: record.KindNewQueue, Queue: name}); err != nil {
		return err
	}
	l.tracker.ObserveCreate(name)
	return l.maybeSync()
}

// Truncate drops every record of the queue before pos; the record at
// pos, if any, stays. Truncating past the end empties the queue and
// makes pos the next assigned position. Files wholly behind every
// queue's frontier are deleted.
func (l *Log) Truncate(name string, pos uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	changed, err := l.tracker.Truncate(name, pos)
	if err != nil {
		return fmt.Errorf("truncate %q: %w", name, err)
	}
	if !changed {
		return nil
	}
	if err := l.writeControl(record.Record{Kind: record.KindTruncate, Queue: name, Position: pos}); err != nil {
		return err
	}
	if err := l.reclaim(); err != nil {
		return err
	}
	return l.maybeSync()
}

// Sync makes every appended record durable. Under SyncOnAppend it is a
// no-op; under SyncManual it is the caller's only durability point.
func (l *Log) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	return l.syncActive()
}

// Close syncs and closes the active file. Every later operation
// returns ErrClosed, except the error-free accessors HasQueue,
// TotalSize, NumFiles, and Directory, which keep reporting the final
// state. Open iterators keep working: they hold their own read
// handles.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if l.active == nil {
		return nil
	}
	err := l.syncActive()
	if cerr := l.active.Close(); err == nil {
		err = cerr
	}
	l.active, l.rw = nil, nil
	log.Debug("log closed: %s", l.dir.Path())
	return err
}

// HasQueue reports whether the queue exists, created explicitly or by
// a first append.
func (l *Log) HasQueue(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tracker.Has(name)
}

// QueueInfo returns one queue's position range and retained footprint.
func (l *Log) QueueInfo(name string) (QueueInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return QueueInfo{}, ErrClosed
	}
	info, err := l.tracker.Info(name)
	if err != nil {
		return QueueInfo{}, fmt.Errorf("queue %q: %w", name, err)
	}
	return info, nil
}

// Queues returns the queue names matching pattern, sorted. The pattern
// is a glob with '/' as the separator, so "ingest/*" matches one level
// and "**" matches everything.
func (l *Log) Queues(pattern string) ([]string, error) {
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, fmt.Errorf("queue pattern %q: %w", pattern, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	var names []string
	for _, name := range l.tracker.Names() {
		if g.Match(name) {
			names = append(names, name)
		}
	}
	return names, nil
}

// TotalSize returns the on-disk footprint of all log files.
func (l *Log) TotalSize() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dir.TotalSize()
}

// NumFiles returns the number of log files currently on disk.
func (l *Log) NumFiles() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dir.NumFiles()
}

// Directory returns the log's root directory.
func (l *Log) Directory() string {
	return l.dir.Path()
}

// ensureWriter guarantees an active file with room for one record of
// encLen wire bytes, rotating first when the record would push the
// active file past the rotate threshold.
func (l *Log) ensureWriter(encLen int) error {
	if l.active != nil && l.active.Size() > 0 &&
		l.active.Size()+record.MaxSizeOnDisk(encLen) > l.opts.RotateThreshold {
		if err := l.rotate(); err != nil {
			return err
		}
	}
	if l.active == nil {
		f, id, err := l.dir.CreateNext()
		if err != nil {
			return fmt.Errorf("create log file: %w", err)
		}
		l.active, l.activeID, l.rw = f, id, record.NewWriter(frame.NewWriter(f), l.opts.Compression)
		log.Debug("opened log file %s", catalog.FileName(id))
	}
	return nil
}

// rotate seals the active file. Sealed files are synced on the way
// out, so rotation is also a durability point.
func (l *Log) rotate() error {
	size := l.active.Size()
	if err := l.syncActive(); err != nil {
		return err
	}
	err := l.active.Close()
	l.active, l.rw = nil, nil
	if err != nil {
		return fmt.Errorf("close log file %s: %w", catalog.FileName(l.activeID), err)
	}
	metrics.Rotations.Inc()
	log.Info("rotated log file %s at %s", catalog.FileName(l.activeID), bytefmt.ByteSize(uint64(size)))
	return nil
}

// writeRecord writes one record to the active file and keeps the
// directory's size accounting current. On a write error the active
// file is abandoned; its readable prefix stays valid and the next
// append starts a fresh file.
func (l *Log) writeRecord(rec record.Record) (written, stored int, err error) {
	written, stored, err = l.rw.WriteRecord(rec)
	if written > 0 {
		l.dir.UpdateSize(l.activeID, l.active.Size())
		metrics.RetainedBytes.Set(float64(l.dir.TotalSize()))
	}
	if err != nil {
		l.dropActive()
		return written, stored, fmt.Errorf("write %s record: %w", rec.Kind, err)
	}
	return written, stored, nil
}

func (l *Log) writeControl(rec record.Record) error {
	if err := l.ensureWriter(record.EncodedLen(rec.Queue, len(rec.Payload))); err != nil {
		return err
	}
	_, _, err := l.writeRecord(rec)
	return err
}

// dropActive abandons the active file after a write error.
func (l *Log) dropActive() {
	if l.active == nil {
		return
	}
	if err := l.active.Close(); err != nil {
		log.Error("close log file %s: %v", catalog.FileName(l.activeID), err)
	}
	l.active, l.rw = nil, nil
}

func (l *Log) maybeSync() error {
	switch l.opts.Sync {
	case SyncOnAppend:
		return l.syncActive()
	case SyncOnThreshold:
		if l.active != nil && l.active.Unsynced() >= l.opts.SyncThreshold {
			return l.syncActive()
		}
	}
	return nil
}

func (l *Log) syncActive() error {
	if l.active == nil || l.active.Unsynced() == 0 {
		return nil
	}
	if err := l.active.Sync(); err != nil {
		return fmt.Errorf("sync log file %s: %w", catalog.FileName(l.activeID), err)
	}
	metrics.Fsyncs.Inc()
	return nil
}

// reclaim deletes every log file no queue retains records in. The
// tracker state is snapshotted into the log and synced first, so
// deleting a file can never move a queue's positions backwards, even
// when that file held the only record of them.
func (l *Log) reclaim() error {
	var deletable []uint64
	for _, id := range l.dir.FileIDs() {
		if l.active != nil && id == l.activeID {
			continue
		}
		if l.tracker.FilePinned(id) {
			continue
		}
		deletable = append(deletable, id)
	}
	if len(deletable) == 0 {
		return nil
	}

	for _, info := range l.tracker.Snapshot() {
		if err := l.writeControl(record.Record{
			Kind: record.KindQueuePos, Queue: info.Name, Position: info.NextPosition,
		}); err != nil {
			return err
		}
		if info.TruncatedBefore == 0 {
			continue
		}
		if err := l.writeControl(record.Record{
			Kind: record.KindTruncate, Queue: info.Name, Position: info.TruncatedBefore,
		}); err != nil {
			return err
		}
	}
	if err := l.syncActive(); err != nil {
		return err
	}

	var freed int64
	for _, id := range deletable {
		size := l.dir.Size(id)
		if err := l.dir.Remove(id); err != nil {
			return fmt.Errorf("remove log file %s: %w", catalog.FileName(id), err)
		}
		freed += size
		metrics.FilesReclaimed.Inc()
	}
	metrics.BytesReclaimed.Add(float64(freed))
	metrics.RetainedBytes.Set(float64(l.dir.TotalSize()))
	log.Info("reclaimed %d log files, %s freed", len(deletable), bytefmt.ByteSize(uint64(freed)))
	return nil
}
