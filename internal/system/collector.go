// Package system collects host, CPU, memory and disk metrics for the
// operator API, and reads kernel temperature sensors as a fallback
// thermal source.
package system

import (
	"fmt"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/sensors"
)

// minDiskBytes filters tiny pseudo-volumes (boot stubs, snap loops)
// out of the disk report.
const minDiskBytes = 1 << 30

// HostInfo identifies the machine the agent runs on.
type HostInfo struct {
	Hostname        string `json:"hostname"`
	OS              string `json:"os"`
	Platform        string `json:"platform"`
	PlatformVersion string `json:"platform_version"`
	KernelVersion   string `json:"kernel_version"`
	Uptime          uint64 `json:"uptime"`
	UptimeHuman     string `json:"uptime_human"`
	BootTime        uint64 `json:"boot_time"`
}

// CPUInfo is a point-in-time CPU usage report.
type CPUInfo struct {
	Cores        int     `json:"cores"`
	ModelName    string  `json:"model_name"`
	UsagePercent float64 `json:"usage_percent"`
	LoadAvg1     float64 `json:"load_avg_1"`
	LoadAvg5     float64 `json:"load_avg_5"`
	LoadAvg15    float64 `json:"load_avg_15"`
}

// MemoryInfo is a point-in-time memory usage report.
type MemoryInfo struct {
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	Available   uint64  `json:"available"`
	UsedPercent float64 `json:"used_percent"`
	SwapTotal   uint64  `json:"swap_total"`
	SwapUsed    uint64  `json:"swap_used"`
	SwapPercent float64 `json:"swap_percent"`
}

// DiskUsage reports one mounted filesystem.
type DiskUsage struct {
	Device      string  `json:"device"`
	Mountpoint  string  `json:"mountpoint"`
	Fstype      string  `json:"fstype"`
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	UsedPercent float64 `json:"used_percent"`
}

// SensorTemp is one kernel-reported temperature reading.
type SensorTemp struct {
	Key  string  `json:"key"`
	Temp float64 `json:"temp"`
}

// Metrics bundles everything the metrics endpoint returns.
type Metrics struct {
	Timestamp time.Time   `json:"timestamp"`
	Host      HostInfo    `json:"host"`
	CPU       CPUInfo     `json:"cpu"`
	Memory    MemoryInfo  `json:"memory"`
	Disks     []DiskUsage `json:"disks"`
}

// Collector gathers system metrics via gopsutil.
type Collector struct{}

func NewCollector() *Collector {
	return &Collector{}
}

// Collect gathers a full metrics report. Host, CPU and memory failures
// are fatal; missing load average, swap or disks degrade gracefully.
func (c *Collector) Collect() (*Metrics, error) {
	h, err := c.HostInfo()
	if err != nil {
		return nil, err
	}
	cpuInfo, err := c.CPUInfo()
	if err != nil {
		return nil, err
	}
	memInfo, err := c.MemoryInfo()
	if err != nil {
		return nil, err
	}
	disks, _ := c.DiskUsage()

	return &Metrics{
		Timestamp: time.Now(),
		Host:      *h,
		CPU:       *cpuInfo,
		Memory:    *memInfo,
		Disks:     disks,
	}, nil
}

// HostInfo reads machine identity and uptime.
func (c *Collector) HostInfo() (*HostInfo, error) {
	info, err := host.Info()
	if err != nil {
		return nil, fmt.Errorf("host info: %w", err)
	}
	return &HostInfo{
		Hostname:        info.Hostname,
		OS:              info.OS,
		Platform:        info.Platform,
		PlatformVersion: info.PlatformVersion,
		KernelVersion:   info.KernelVersion,
		Uptime:          info.Uptime,
		UptimeHuman:     formatUptime(info.Uptime),
		BootTime:        info.BootTime,
	}, nil
}

// Hostname returns the machine name, or "unknown" when host info is
// unavailable.
func (c *Collector) Hostname() string {
	info, err := host.Info()
	if err != nil || info.Hostname == "" {
		return "unknown"
	}
	return info.Hostname
}

// CPUInfo samples total CPU usage over a short window.
func (c *Collector) CPUInfo() (*CPUInfo, error) {
	infos, err := cpu.Info()
	if err != nil {
		return nil, fmt.Errorf("cpu info: %w", err)
	}

	percent, err := cpu.Percent(200*time.Millisecond, false)
	if err != nil {
		return nil, fmt.Errorf("cpu percent: %w", err)
	}

	loadAvg, err := load.Avg()
	if err != nil {
		// Not available on all platforms
		loadAvg = &load.AvgStat{}
	}

	out := &CPUInfo{
		Cores:     len(infos),
		LoadAvg1:  loadAvg.Load1,
		LoadAvg5:  loadAvg.Load5,
		LoadAvg15: loadAvg.Load15,
	}
	if len(infos) > 0 {
		out.ModelName = infos[0].ModelName
	}
	if len(percent) > 0 {
		out.UsagePercent = percent[0]
	}
	return out, nil
}

// MemoryInfo reads virtual memory and swap usage.
func (c *Collector) MemoryInfo() (*MemoryInfo, error) {
	vmem, err := mem.VirtualMemory()
	if err != nil {
		return nil, fmt.Errorf("virtual memory: %w", err)
	}

	swap, err := mem.SwapMemory()
	if err != nil {
		swap = &mem.SwapMemoryStat{}
	}

	return &MemoryInfo{
		Total:       vmem.Total,
		Used:        vmem.Used,
		Available:   vmem.Available,
		UsedPercent: vmem.UsedPercent,
		SwapTotal:   swap.Total,
		SwapUsed:    swap.Used,
		SwapPercent: swap.UsedPercent,
	}, nil
}

// DiskUsage lists mounted real filesystems, skipping pseudo
// filesystems and volumes under 1 GiB.
func (c *Collector) DiskUsage() ([]DiskUsage, error) {
	partitions, err := disk.Partitions(false)
	if err != nil {
		return nil, fmt.Errorf("disk partitions: %w", err)
	}

	var out []DiskUsage
	for _, p := range partitions {
		if isPseudoFS(p.Fstype) {
			continue
		}
		usage, err := disk.Usage(p.Mountpoint)
		if err != nil || usage.Total < minDiskBytes {
			continue
		}
		out = append(out, DiskUsage{
			Device:      p.Device,
			Mountpoint:  p.Mountpoint,
			Fstype:      p.Fstype,
			Total:       usage.Total,
			Used:        usage.Used,
			UsedPercent: usage.UsedPercent,
		})
	}
	return out, nil
}

// SensorTemps reads kernel hwmon temperatures. Used as a degraded
// thermal source when the hardware monitor endpoint is unreachable.
func (c *Collector) SensorTemps() ([]SensorTemp, error) {
	stats, err := sensors.SensorsTemperatures()
	if err != nil && len(stats) == 0 {
		return nil, fmt.Errorf("sensor temperatures: %w", err)
	}

	var out []SensorTemp
	for _, s := range stats {
		if s.Temperature <= 0 {
			continue
		}
		out = append(out, SensorTemp{Key: s.SensorKey, Temp: s.Temperature})
	}
	return out, nil
}

func isPseudoFS(fstype string) bool {
	switch strings.ToLower(fstype) {
	case "squashfs", "tmpfs", "devtmpfs", "overlay", "proc", "sysfs", "cgroup", "cgroup2", "ramfs":
		return true
	}
	return false
}

func formatUptime(seconds uint64) string {
	d := time.Duration(seconds) * time.Second

	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
