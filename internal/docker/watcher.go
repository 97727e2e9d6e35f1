// Package docker surfaces running container workloads so a thermal
// spike can be traced to the process generating the load.
package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// Workload is one running container with its resource usage.
type Workload struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Image         string  `json:"image"`
	State         string  `json:"state"`
	Status        string  `json:"status"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryUsage   uint64  `json:"memory_usage"`
	MemoryPercent float64 `json:"memory_percent"`
}

// WorkloadList is the container report returned by the API.
type WorkloadList struct {
	Workloads []Workload `json:"workloads"`
	Total     int        `json:"total"`
}

// Watcher reads container state from the Docker daemon.
type Watcher struct {
	client *client.Client
}

func NewWatcher() (*Watcher, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return &Watcher{client: cli}, nil
}

// Available reports whether the Docker daemon answers a ping.
func (w *Watcher) Available(ctx context.Context) bool {
	_, err := w.client.Ping(ctx)
	return err == nil
}

func (w *Watcher) Close() error {
	return w.client.Close()
}

// List returns running containers sorted by CPU usage, hottest first.
// Per-container stats failures leave that entry at zero usage rather
// than failing the whole listing.
func (w *Watcher) List(ctx context.Context) (*WorkloadList, error) {
	containers, err := w.client.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}

	out := make([]Workload, 0, len(containers))
	for _, c := range containers {
		wl := Workload{
			ID:     shortID(c.ID),
			Image:  c.Image,
			State:  c.State,
			Status: c.Status,
		}
		if len(c.Names) > 0 {
			wl.Name = strings.TrimPrefix(c.Names[0], "/")
		}
		if cpu, mem, memPct, err := w.usage(ctx, c.ID); err == nil {
			wl.CPUPercent = cpu
			wl.MemoryUsage = mem
			wl.MemoryPercent = memPct
		}
		out = append(out, wl)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CPUPercent > out[j].CPUPercent })

	return &WorkloadList{Workloads: out, Total: len(out)}, nil
}

func (w *Watcher) usage(ctx context.Context, id string) (cpuPct float64, memUsage uint64, memPct float64, err error) {
	resp, err := w.client.ContainerStats(ctx, id, false)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("container stats: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("read stats: %w", err)
	}

	var v types.StatsJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return 0, 0, 0, fmt.Errorf("decode stats: %w", err)
	}

	cpuDelta := float64(v.CPUStats.CPUUsage.TotalUsage - v.PreCPUStats.CPUUsage.TotalUsage)
	systemDelta := float64(v.CPUStats.SystemUsage - v.PreCPUStats.SystemUsage)
	if systemDelta > 0 && cpuDelta > 0 {
		cpus := float64(v.CPUStats.OnlineCPUs)
		if cpus == 0 {
			cpus = float64(len(v.CPUStats.CPUUsage.PercpuUsage))
		}
		cpuPct = (cpuDelta / systemDelta) * cpus * 100.0
	}

	memUsage = v.MemoryStats.Usage
	if v.MemoryStats.Limit > 0 {
		memPct = float64(v.MemoryStats.Usage) / float64(v.MemoryStats.Limit) * 100.0
	}
	return cpuPct, memUsage, memPct, nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
