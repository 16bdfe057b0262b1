package walmux

import "fmt"

// SyncPolicy controls when appended records are fsynced to disk.
type SyncPolicy int

const (
	// SyncOnAppend fsyncs after every mutating operation. Records are
	// durable when the call returns. This is the default.
	SyncOnAppend SyncPolicy = iota

	// SyncManual never fsyncs on its own; the caller decides by calling
	// Sync. A crash loses every record appended since the last Sync.
	SyncManual

	// SyncOnThreshold fsyncs once at least SyncThreshold bytes have
	// been appended since the last sync.
	SyncOnThreshold
)

func (p SyncPolicy) String() string {
	switch p {
	case SyncOnAppend:
		return "on_append"
	case SyncManual:
		return "manual"
	case SyncOnThreshold:
		return "threshold"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

const (
	// DefaultRotateThreshold is the file size past which the active log
	// file is sealed and a new one started.
	DefaultRotateThreshold = 1 << 30

	// DefaultMaxRecordSize bounds the wire form of a single record.
	DefaultMaxRecordSize = 64 << 20

	// DefaultSyncThreshold is the unsynced byte count that triggers an
	// fsync under SyncOnThreshold.
	DefaultSyncThreshold = 1 << 20
)

// Options tunes a Log. The zero value is usable: every zero field takes
// its default and the sync policy is SyncOnAppend.
type Options struct {
	// RotateThreshold is the target size of one log file. A record that
	// would grow the active file past it goes to a fresh file instead.
	RotateThreshold int64

	// MaxRecordSize bounds the wire form (queue name plus payload) of a
	// single record. It must not exceed RotateThreshold, or a record
	// could never fit in any file.
	MaxRecordSize int64

	// Sync selects the durability policy.
	Sync SyncPolicy

	// SyncThreshold applies under SyncOnThreshold.
	SyncThreshold int64

	// Compression stores large compressible payloads s2-encoded.
	Compression bool
}

func (o *Options) normalize() error {
	if o.RotateThreshold == 0 {
		o.RotateThreshold = DefaultRotateThreshold
	}
	if o.MaxRecordSize == 0 {
		o.MaxRecordSize = DefaultMaxRecordSize
		if o.MaxRecordSize > o.RotateThreshold {
			o.MaxRecordSize = o.RotateThreshold
		}
	}
	if o.SyncThreshold == 0 {
		o.SyncThreshold = DefaultSyncThreshold
	}
	if o.RotateThreshold < 0 || o.MaxRecordSize < 0 || o.SyncThreshold < 0 {
		return fmt.Errorf("walmux: negative size in options")
	}
	if o.Sync < SyncOnAppend || o.Sync > SyncOnThreshold {
		return fmt.Errorf("walmux: unknown sync policy %v", o.Sync)
	}
	if o.MaxRecordSize > o.RotateThreshold {
		return fmt.Errorf("walmux: max record size %d exceeds rotate threshold %d",
			o.MaxRecordSize, o.RotateThreshold)
	}
	return nil
}
