package catalog

import (
	"io"
	"path/filepath"

	"golang.org/x/exp/mmap"
)

// Reader is a read-only view of one log file taken over mmap. The
// mapping length is fixed at open time, which is what gives iterators
// their snapshot semantics. On POSIX the view stays readable even after
// the file is deleted.
type Reader struct {
	m *mmap.ReaderAt
}

// OpenReader maps one log file for reading.
func (d *Directory) OpenReader(id uint64) (*Reader, error) {
	m, err := mmap.Open(filepath.Join(d.path, FileName(id)))
	if err != nil {
		return nil, err
	}
	return &Reader{m: m}, nil
}

// Len returns the mapped length.
func (r *Reader) Len() int64 {
	return int64(r.m.Len())
}

// SectionTo returns a sequential reader over the first limit bytes of
// the file. A negative limit, or one past the mapped length, reads the
// whole mapping.
func (r *Reader) SectionTo(limit int64) io.Reader {
	if limit < 0 || limit > r.Len() {
		limit = r.Len()
	}
	return io.NewSectionReader(r.m, 0, limit)
}

func (r *Reader) Close() error {
	return r.m.Close()
}
