package pipeline

import (
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// memorySampleInterval limits how often the process RSS is read.
const memorySampleInterval = time.Second

// MemorySampler reports the resident memory of the current process in MB.
// Readings are cached for memorySampleInterval.
type MemorySampler struct {
	mu   sync.Mutex
	proc *process.Process
	last float64
	at   time.Time
}

// NewMemorySampler returns a sampler for this process. Sampling yields 0 when the
// process cannot be inspected.
func NewMemorySampler() *MemorySampler {
	proc, _ := process.NewProcess(int32(os.Getpid())) //nolint:gosec // pid fits in int32
	return &MemorySampler{proc: proc}
}

// SampleMB returns the resident set size in megabytes.
func (m *MemorySampler) SampleMB() float64 {
	if m == nil || m.proc == nil {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.at.IsZero() && time.Since(m.at) < memorySampleInterval {
		return m.last
	}
	info, err := m.proc.MemoryInfo()
	if err != nil {
		return m.last
	}
	m.last = float64(info.RSS) / (1024 * 1024)
	m.at = time.Now()
	return m.last
}
