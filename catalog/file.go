package catalog

import (
	"bufio"
	"os"
)

// writeBufferSize matches the block size of the frame layer, so a full
// block reaches the OS in one write.
const writeBufferSize = 32 * 1024

// File is the buffered append handle over the active log file. The
// manager serializes all access; File does no locking of its own.
type File struct {
	f        *os.File
	w        *bufio.Writer
	size     int64
	unsynced int64
}

// openFileForAppend creates the file exclusively: log files are written
// once, front to back, and never reopened for append.
func openFileForAppend(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	fadviseSequential(f)
	return &File{f: f, w: bufio.NewWriterSize(f, writeBufferSize)}, nil
}

func (f *File) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	f.size += int64(n)
	f.unsynced += int64(n)
	return n, err
}

// Size returns the logical appended length, buffered bytes included.
func (f *File) Size() int64 {
	return f.size
}

// DiskSize returns the bytes already handed to the OS. Readers can
// observe at most this much of the file.
func (f *File) DiskSize() int64 {
	return f.size - int64(f.w.Buffered())
}

// Unsynced returns the bytes appended since the last Sync.
func (f *File) Unsynced() int64 {
	return f.unsynced
}

// Flush hands buffered bytes to the OS without fsyncing. After Flush,
// DiskSize equals Size and readers observe every appended record.
func (f *File) Flush() error {
	return f.w.Flush()
}

// Sync flushes the write buffer and fsyncs the file. Only after Sync
// returns are the appended records durable.
func (f *File) Sync() error {
	if err := f.w.Flush(); err != nil {
		return err
	}
	if err := f.f.Sync(); err != nil {
		return err
	}
	f.unsynced = 0
	return nil
}

func (f *File) Close() error {
	if err := f.w.Flush(); err != nil {
		f.f.Close()
		return err
	}
	return f.f.Close()
}
