package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var namespace = "walmux"
var subsystem = "log"

var (
	// AppendedRecords counts payload records appended across all queues
	AppendedRecords = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "appended_records_total",
		Help:      "Number of payload records appended, no-op duplicates excluded",
	})

	// AppendedBytes counts stored payload bytes, after compression
	AppendedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "appended_bytes_total",
		Help:      "Payload bytes appended as stored on disk",
	})

	// Fsyncs counts durability flushes of the active file
	Fsyncs = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "fsyncs_total",
		Help:      "Number of fsync calls on the active log file",
	})

	// Rotations counts active-file rollovers
	Rotations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "rotations_total",
		Help:      "Number of times the active log file was sealed and a new one started",
	})

	// FilesReclaimed counts log files deleted by truncation
	FilesReclaimed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "files_reclaimed_total",
		Help:      "Number of log files deleted after all queues truncated past them",
	})

	// BytesReclaimed counts the on-disk bytes freed by reclamation
	BytesReclaimed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "bytes_reclaimed_total",
		Help:      "Bytes of log files deleted after all queues truncated past them",
	})

	// CorruptFrames counts integrity violations found while reading
	CorruptFrames = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "corrupt_frames_total",
		Help:      "Number of times a file's logical tail was cut at a corrupt frame",
	})

	// RetainedBytes stores the current on-disk footprint of the log
	RetainedBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "retained_bytes",
		Help:      "Total size of all log files on disk",
	})

	// RecoverySeconds stores how long the last replay took
	RecoverySeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "recovery_seconds",
		Help:      "Seconds taken by the last startup replay",
	})
)
