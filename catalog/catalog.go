// Package catalog manages the on-disk collection of log files: the
// naming scheme, directory scanning, file creation and deletion, and the
// read and append handles over individual files.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/walmux/walmux/utils/log"
)

const filePrefix = "wal-"

// FileName returns the canonical name of a log file: wal- followed by
// the zero-padded 20-digit id.
func FileName(id uint64) string {
	return fmt.Sprintf("%s%020d", filePrefix, id)
}

// ParseFileName extracts the id from a log file name. Anything that is
// not exactly a canonical name is rejected.
func ParseFileName(name string) (uint64, bool) {
	if len(name) != len(filePrefix)+20 || !strings.HasPrefix(name, filePrefix) {
		return 0, false
	}
	id, err := strconv.ParseUint(name[len(filePrefix):], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Directory is the ordered set of log files in one directory. It owns
// file creation and deletion. Access is serialized by the manager.
type Directory struct {
	path  string
	files []uint64
	sizes map[uint64]int64
}

// OpenDirectory creates path when missing and scans it for log files.
// Files with foreign names are left alone.
func OpenDirectory(path string) (*Directory, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	d := &Directory{path: path, sizes: map[uint64]int64{}}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		id, ok := ParseFileName(entry.Name())
		if !ok {
			log.Debug("catalog: ignoring foreign file %s", entry.Name())
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, err
		}
		d.files = append(d.files, id)
		d.sizes[id] = info.Size()
	}
	sort.Slice(d.files, func(i, j int) bool { return d.files[i] < d.files[j] })
	return d, nil
}

func (d *Directory) Path() string {
	return d.path
}

// FileIDs returns the ids of all log files in ascending order.
func (d *Directory) FileIDs() []uint64 {
	return append([]uint64(nil), d.files...)
}

func (d *Directory) NumFiles() int {
	return len(d.files)
}

// Size returns the last recorded size of one file.
func (d *Directory) Size(id uint64) int64 {
	return d.sizes[id]
}

// UpdateSize records the current size of a file, typically the active
// one as it grows.
func (d *Directory) UpdateSize(id uint64, size int64) {
	if _, ok := d.sizes[id]; ok {
		d.sizes[id] = size
	}
}

// TotalSize returns the summed size of all log files.
func (d *Directory) TotalSize() int64 {
	var total int64
	for _, size := range d.sizes {
		total += size
	}
	return total
}

// CreateNext creates the next log file, id max+1, and opens it for
// append.
func (d *Directory) CreateNext() (*File, uint64, error) {
	var next uint64
	if n := len(d.files); n > 0 {
		next = d.files[n-1] + 1
	}
	f, err := openFileForAppend(filepath.Join(d.path, FileName(next)))
	if err != nil {
		return nil, 0, err
	}
	d.files = append(d.files, next)
	d.sizes[next] = 0
	return f, next, nil
}

// Remove deletes one log file from disk and from the directory state.
func (d *Directory) Remove(id uint64) error {
	if err := os.Remove(filepath.Join(d.path, FileName(id))); err != nil {
		return err
	}
	delete(d.sizes, id)
	files := d.files[:0]
	for _, fid := range d.files {
		if fid != id {
			files = append(files, fid)
		}
	}
	d.files = files
	return nil
}
