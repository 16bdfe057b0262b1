// Package queue tracks the in-memory state of every queue multiplexed
// into the log: position ranges, truncation frontiers, and the per-file
// spans that drive file reclamation. Payloads stay on disk; only
// bookkeeping lives here.
package queue

import (
	"errors"
	"sort"
)

var (
	// ErrNonContiguous reports an explicit append position that is
	// neither the expected next position nor an idempotent duplicate of
	// the last assigned one.
	ErrNonContiguous = errors.New("queue: non-contiguous position")

	// ErrUnknownQueue reports an operation on a queue that was never
	// appended to or registered.
	ErrUnknownQueue = errors.New("queue: unknown queue")

	// ErrAlreadyExists reports an explicit creation of a known queue.
	ErrAlreadyExists = errors.New("queue: queue already exists")
)

// Span is the range of one queue's records within one file. Bytes counts
// stored payload bytes, i.e. after compression.
type Span struct {
	First   uint64
	Last    uint64
	Records uint64
	Bytes   uint64
}

type state struct {
	first    uint64
	next     uint64
	frontier uint64
	assigned bool
	spans    map[uint64]*Span
	records  uint64
	bytes    uint64
}

// Info is the externally visible snapshot of one queue. Bytes is
// file-granular: records already truncated keep counting until the whole
// span holding them is dropped, so it is an upper bound on retained
// payload bytes.
type Info struct {
	Name            string
	FirstPosition   uint64
	NextPosition    uint64
	TruncatedBefore uint64
	Records         uint64
	Bytes           uint64
}

// Tracker maintains the queue map plus a per-file pin count: the number
// of queues that still retain records in each file. An unpinned file
// holds nothing reachable and may be reclaimed.
type Tracker struct {
	queues map[string]*state
	pins   map[uint64]int
}

func NewTracker() *Tracker {
	return &Tracker{
		queues: map[string]*state{},
		pins:   map[uint64]int{},
	}
}

func (t *Tracker) getOrCreate(name string) *state {
	st, ok := t.queues[name]
	if !ok {
		st = &state{spans: map[uint64]*Span{}}
		t.queues[name] = st
	}
	return st
}

// Has reports whether the queue is known.
func (t *Tracker) Has(name string) bool {
	_, ok := t.queues[name]
	return ok
}

// Create registers an empty queue.
func (t *Tracker) Create(name string) error {
	if _, ok := t.queues[name]; ok {
		return ErrAlreadyExists
	}
	t.queues[name] = &state{spans: map[uint64]*Span{}}
	return nil
}

// CheckAppend validates the append contract without mutating anything.
// A nil pos auto-assigns the next position. A queue that never had a
// position assigned accepts any explicit start. Otherwise an explicit
// position must be the expected next one; the last assigned position is
// accepted as an idempotent no-op.
func (t *Tracker) CheckAppend(name string, pos *uint64) (assigned uint64, noop bool, err error) {
	st := t.queues[name]
	if st == nil || !st.assigned {
		var next uint64
		if st != nil {
			next = st.next
		}
		if pos == nil {
			return next, false, nil
		}
		return *pos, false, nil
	}
	if pos == nil {
		return st.next, false, nil
	}
	switch {
	case *pos == st.next:
		return *pos, false, nil
	case *pos == st.next-1:
		return *pos, true, nil
	default:
		return 0, false, ErrNonContiguous
	}
}

// CommitAppend applies a validated append once its bytes reached the
// file. stored is the payload length as written, after compression.
func (t *Tracker) CommitAppend(name string, fileID, pos, stored uint64) {
	st := t.getOrCreate(name)
	if !st.assigned {
		st.first = pos
		st.assigned = true
	}
	st.next = pos + 1
	t.extendSpan(st, fileID, pos, stored)
}

// Truncate advances the frontier to pos, dropping every span wholly
// behind it. Truncating past the end empties the queue and advances
// next. A moved frontier also fixes the queue's position, exactly as
// replaying the truncate record would: explicit appends must continue
// at next from then on, even if the queue never held a record. It
// reports whether the frontier actually moved.
func (t *Tracker) Truncate(name string, pos uint64) (bool, error) {
	st, ok := t.queues[name]
	if !ok {
		return false, ErrUnknownQueue
	}
	if pos <= st.frontier {
		return false, nil
	}
	st.frontier = pos
	if st.frontier > st.next {
		st.next = st.frontier
	}
	st.assigned = true
	t.dropPassedSpans(st)
	return true, nil
}

// Observe applies a replayed append record. It is lenient about gaps:
// records lost to a corrupt file tail must not fail recovery, so next
// only ever advances.
func (t *Tracker) Observe(name string, fileID, pos, stored uint64) {
	st := t.getOrCreate(name)
	if pos < st.frontier {
		// Already truncated; dead data never pins a file.
		return
	}
	if !st.assigned {
		st.first = pos
		st.assigned = true
	}
	if pos >= st.next {
		st.next = pos + 1
	}
	t.extendSpan(st, fileID, pos, stored)
}

// ObserveTruncate applies a replayed truncate record, registering the
// queue when the rest of its history was already reclaimed.
func (t *Tracker) ObserveTruncate(name string, pos uint64) {
	st := t.getOrCreate(name)
	if pos > st.frontier {
		st.frontier = pos
	}
	if st.frontier > st.next {
		st.next = st.frontier
	}
	if pos > 0 {
		st.assigned = true
	}
	t.dropPassedSpans(st)
}

// ObservePosition applies a replayed position snapshot: evidence that
// positions below pos were assigned at some point.
func (t *Tracker) ObservePosition(name string, pos uint64) {
	st := t.getOrCreate(name)
	if pos > st.next {
		st.next = pos
	}
	if pos > 0 {
		st.assigned = true
	}
}

// ObserveCreate applies a replayed newqueue record.
func (t *Tracker) ObserveCreate(name string) {
	t.getOrCreate(name)
}

// FilePinned reports whether any queue still retains records in the
// file.
func (t *Tracker) FilePinned(id uint64) bool {
	return t.pins[id] > 0
}

// FilesFrom returns the ids of the files holding records of the queue
// at or past pos, ascending. Unknown queues return nothing.
func (t *Tracker) FilesFrom(name string, pos uint64) []uint64 {
	st, ok := t.queues[name]
	if !ok {
		return nil
	}
	var ids []uint64
	for id, span := range st.spans {
		if span.Last >= pos {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Info returns the snapshot for one queue. FirstPosition is the first
// retained position: truncation advances it even though the historical
// first record is remembered internally.
func (t *Tracker) Info(name string) (Info, error) {
	st, ok := t.queues[name]
	if !ok {
		return Info{}, ErrUnknownQueue
	}
	first := st.first
	if st.frontier > first {
		first = st.frontier
	}
	return Info{
		Name:            name,
		FirstPosition:   first,
		NextPosition:    st.next,
		TruncatedBefore: st.frontier,
		Records:         st.records,
		Bytes:           st.bytes,
	}, nil
}

// Names returns all known queue names, sorted.
func (t *Tracker) Names() []string {
	names := make([]string, 0, len(t.queues))
	for name := range t.queues {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns the Info of every queue, sorted by name. Reclamation
// writes these back into the log before deleting files.
func (t *Tracker) Snapshot() []Info {
	names := t.Names()
	infos := make([]Info, 0, len(names))
	for _, name := range names {
		info, _ := t.Info(name)
		infos = append(infos, info)
	}
	return infos
}

func (t *Tracker) extendSpan(st *state, fileID, pos, stored uint64) {
	span, ok := st.spans[fileID]
	if !ok {
		span = &Span{First: pos, Last: pos}
		st.spans[fileID] = span
		t.pins[fileID]++
	}
	span.Last = pos
	span.Records++
	span.Bytes += stored
	st.records++
	st.bytes += stored
}

func (t *Tracker) dropPassedSpans(st *state) {
	for fileID, span := range st.spans {
		if span.Last < st.frontier {
			st.records -= span.Records
			st.bytes -= span.Bytes
			delete(st.spans, fileID)
			t.pins[fileID]--
			if t.pins[fileID] <= 0 {
				delete(t.pins, fileID)
			}
		}
	}
}
