package metrics_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walmux/walmux/metrics"
)

type mockMetricsSetter struct {
	mu    sync.Mutex
	value float64
}

func (m *mockMetricsSetter) Set(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value = v
}

func (m *mockMetricsSetter) get() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value
}

func TestDiskUsage(t *testing.T) {
	tests := map[string]struct {
		setFilesFunc func(t *testing.T, dir string)
		want         int64
	}{
		"ok/ regular files are summed, nested directories included": {
			setFilesFunc: func(t *testing.T, dir string) {
				require.NoError(t, os.WriteFile(filepath.Join(dir, "wal-a"), make([]byte, 1000), 0o644))
				require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
				require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "wal-b"), make([]byte, 500), 0o644))
			},
			want: 1500,
		},
		"ok/ an empty directory reports zero": {
			setFilesFunc: func(t *testing.T, dir string) {},
			want:         0,
		},
	}
	for name := range tests {
		tt := tests[name]
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			tt.setFilesFunc(t, dir)
			assert.Equal(t, tt.want, metrics.DiskUsage(dir))
		})
	}
}

func TestDiskUsageMissingDirectory(t *testing.T) {
	assert.Zero(t, metrics.DiskUsage(filepath.Join(t.TempDir(), "nope")))
}

func TestStartDiskUsageMonitor(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wal-a"), make([]byte, 2048), 0o644))
	m := &mockMetricsSetter{}

	go metrics.StartDiskUsageMonitor(m, dir, 10*time.Millisecond)

	assert.Eventually(t, func() bool { return m.get() == 2048 },
		time.Second, 10*time.Millisecond)
}
