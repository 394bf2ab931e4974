// Package diagnostics reports host and process resource usage.
package diagnostics

import (
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemMetrics holds host-wide and process resource usage.
type SystemMetrics struct {
	CollectedAt time.Time `json:"collected_at"`

	// CPU
	CPUModel   string  `json:"cpu_model"`
	CPUCores   int     `json:"cpu_cores"`
	CPUThreads int     `json:"cpu_threads"`
	CPUPercent float64 `json:"cpu_percent"`

	// Memory (in MB)
	MemTotalMB float64 `json:"mem_total_mb"`
	MemUsedMB  float64 `json:"mem_used_mb"`
	MemPercent float64 `json:"mem_percent"`

	// Disk holding the run store (in GB)
	DiskPath    string  `json:"disk_path"`
	DiskTotalGB float64 `json:"disk_total_gb"`
	DiskUsedGB  float64 `json:"disk_used_gb"`
	DiskPercent float64 `json:"disk_percent"`

	// Load Average (Unix)
	LoadAvg1  float64 `json:"load_avg_1"`
	LoadAvg5  float64 `json:"load_avg_5"`
	LoadAvg15 float64 `json:"load_avg_15"`

	// Process
	Goroutines  int     `json:"goroutines"`
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	NumGC       uint32  `json:"num_gc"`
	Uptime      string  `json:"uptime"`

	// SuggestedParallelism is a starting point for orchestrator.max_parallel.
	SuggestedParallelism int `json:"suggested_parallelism"`
}

// Collector gathers SystemMetrics. CPU usage is computed between two calls,
// so the first Collect reports zero.
type Collector struct {
	mu        sync.Mutex
	diskPath  string
	started   time.Time
	lastTotal float64
	lastIdle  float64

	infoCollected bool
	cpuModel      string
	cpuCores      int
	cpuThreads    int
}

// NewCollector creates a collector reporting disk usage for diskPath.
// An empty path means the root filesystem.
func NewCollector(diskPath string) *Collector {
	if diskPath == "" {
		diskPath = rootDiskPath()
	}
	return &Collector{diskPath: diskPath, started: time.Now()}
}

// Collect returns a snapshot. Sources that fail leave their fields zero.
func (c *Collector) Collect() SystemMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := SystemMetrics{CollectedAt: time.Now().UTC()}

	c.collectHardwareInfo(&stats)
	c.collectMemoryInfo(&stats)
	c.collectCPUInfo(&stats)
	c.collectDiskInfo(&stats)
	c.collectLoadAvg(&stats)
	c.collectProcessInfo(&stats)

	stats.SuggestedParallelism = suggestParallelism(stats.CPUThreads, stats.LoadAvg1)
	return stats
}

func (c *Collector) collectMemoryInfo(stats *SystemMetrics) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return
	}
	stats.MemTotalMB = float64(vm.Total) / 1024 / 1024
	stats.MemUsedMB = float64(vm.Used) / 1024 / 1024
	stats.MemPercent = vm.UsedPercent
}

func (c *Collector) collectCPUInfo(stats *SystemMetrics) {
	times, err := cpu.Times(false)
	if err != nil || len(times) == 0 {
		return
	}

	t := times[0]
	total := t.User + t.Nice + t.System + t.Idle + t.Iowait + t.Irq + t.Softirq + t.Steal
	idle := t.Idle + t.Iowait

	if c.lastTotal > 0 {
		totalDelta := total - c.lastTotal
		idleDelta := idle - c.lastIdle
		if totalDelta > 0 {
			stats.CPUPercent = (1 - idleDelta/totalDelta) * 100
		}
	}
	c.lastTotal = total
	c.lastIdle = idle
}

func (c *Collector) collectDiskInfo(stats *SystemMetrics) {
	stats.DiskPath = c.diskPath
	usage, err := disk.Usage(c.diskPath)
	if err != nil {
		return
	}
	stats.DiskTotalGB = float64(usage.Total) / 1024 / 1024 / 1024
	stats.DiskUsedGB = float64(usage.Used) / 1024 / 1024 / 1024
	stats.DiskPercent = usage.UsedPercent
}

func (c *Collector) collectLoadAvg(stats *SystemMetrics) {
	avg, err := load.Avg()
	if err != nil {
		return
	}
	stats.LoadAvg1 = avg.Load1
	stats.LoadAvg5 = avg.Load5
	stats.LoadAvg15 = avg.Load15
}

func (c *Collector) collectHardwareInfo(stats *SystemMetrics) {
	if !c.infoCollected {
		if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
			c.cpuModel = strings.TrimSpace(infos[0].ModelName)
		}
		if cores, err := cpu.Counts(false); err == nil && cores > 0 {
			c.cpuCores = cores
		}
		if threads, err := cpu.Counts(true); err == nil && threads > 0 {
			c.cpuThreads = threads
		}
		c.infoCollected = true
	}
	stats.CPUModel = c.cpuModel
	stats.CPUCores = c.cpuCores
	stats.CPUThreads = c.cpuThreads
}

func (c *Collector) collectProcessInfo(stats *SystemMetrics) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	stats.Goroutines = runtime.NumGoroutine()
	stats.HeapAllocMB = float64(ms.HeapAlloc) / 1024 / 1024
	stats.NumGC = ms.NumGC
	stats.Uptime = time.Since(c.started).Round(time.Second).String()
}

// suggestParallelism leaves headroom for the load already on the host.
// Unknown thread counts fall back to GOMAXPROCS.
func suggestParallelism(threads int, load1 float64) int {
	if threads <= 0 {
		threads = runtime.GOMAXPROCS(0)
	}
	n := threads - int(load1)
	if n < 1 {
		n = 1
	}
	return n
}

func rootDiskPath() string {
	if runtime.GOOS == "windows" {
		return "C:\\"
	}
	return "/"
}
