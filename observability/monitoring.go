package observability

import (
	"chat-relay/domain"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/shirou/gopsutil/process"
)

// ProcessStats is what the health endpoint reports about the running process.
type ProcessStats struct {
	Pid        int32   `json:"pid"`
	Status     string  `json:"status"`
	RSSBytes   uint64  `json:"rss_bytes"`
	CPUPercent float64 `json:"cpu_percent"`
	AllocMemMb uint64  `json:"alloc_mem_mb"`
	NumGC      uint32  `json:"num_gc"`
	Goroutines int     `json:"goroutines"`
}

// DeliveryStats counts direct messages by the path they took.
type DeliveryStats struct {
	Live    uint64 `json:"live"`
	Offline uint64 `json:"offline"`
	Dropped uint64 `json:"dropped"`
}

// MonitoringManager keeps delivery counters and the latest process snapshot.
type MonitoringManager struct {
	log     *slog.Logger
	proc    *process.Process
	live    atomic.Uint64
	offline atomic.Uint64
	dropped atomic.Uint64

	mu     sync.RWMutex
	latest ProcessStats
}

func NewMonitoringManager(log *slog.Logger) (*MonitoringManager, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &MonitoringManager{log: log, proc: p}, nil
}

func (mm *MonitoringManager) RecordDelivery(d domain.Delivery) {
	switch d {
	case domain.DeliveryLive:
		mm.live.Add(1)
	case domain.DeliveryOffline:
		mm.offline.Add(1)
	default:
		mm.dropped.Add(1)
	}
}

func (mm *MonitoringManager) Deliveries() DeliveryStats {
	return DeliveryStats{
		Live:    mm.live.Load(),
		Offline: mm.offline.Load(),
		Dropped: mm.dropped.Load(),
	}
}

// Refresh samples the process. A failed sample keeps the previous values.
func (mm *MonitoringManager) Refresh() ProcessStats {
	stats, err := selfStats(mm.proc)
	if err != nil {
		mm.log.Warn("Failed to collect process stats", "error", err)
		return mm.Latest()
	}
	mm.mu.Lock()
	mm.latest = stats
	mm.mu.Unlock()
	return stats
}

func (mm *MonitoringManager) Latest() ProcessStats {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return mm.latest
}

func selfStats(p *process.Process) (ProcessStats, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return ProcessStats{}, err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return ProcessStats{}, err
	}
	status, err := p.Status()
	if err != nil {
		return ProcessStats{}, err
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return ProcessStats{
		Pid:        p.Pid,
		Status:     status,
		RSSBytes:   memInfo.RSS,
		CPUPercent: cpuPercent,
		AllocMemMb: m.Alloc / 1024 / 1024,
		NumGC:      m.NumGC,
		Goroutines: runtime.NumGoroutine(),
	}, nil
}
