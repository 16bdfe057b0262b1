package metrics

import (
	"os"
	"path/filepath"
	"time"

	"github.com/walmux/walmux/utils/log"
)

// Setter is an interface for prometheus metrics to improve unit-testability.
type Setter interface {
	Set(m float64)
}

// StartDiskUsageMonitor retrieves the total disk usage of the provided directory at each provided time interval,
// and set it as a prometheus metric.
func StartDiskUsageMonitor(s Setter, dir string, interval time.Duration) {
	s.Set(float64(DiskUsage(dir)))

	t := time.NewTicker(interval)
	for range t.C {
		s.Set(float64(DiskUsage(dir)))
	}
}

// DiskUsage returns the total size in bytes of the regular files under path.
// Files removed mid-walk are skipped, so it is safe to call while log files
// are being reclaimed.
func DiskUsage(path string) int64 {
	var totalSize int64
	err := filepath.Walk(path, func(name string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.Mode().IsRegular() {
			totalSize += info.Size()
		}
		return nil
	})
	if err != nil {
		log.Error("get the disk usage of the directory for monitoring", path, err)
	}
	return totalSize
}
