// Package process lists the CPU-hungriest processes so a thermal
// spike can be traced to the workload driving it.
package process

import (
	"fmt"
	"sort"

	"github.com/shirou/gopsutil/v4/process"
)

// Info is one process in the heat-source report.
type Info struct {
	PID        int32   `json:"pid"`
	Name       string  `json:"name"`
	Username   string  `json:"username"`
	CPUPercent float64 `json:"cpu_percent"`
	MemPercent float32 `json:"mem_percent"`
	Cmdline    string  `json:"cmdline"`
	NumThreads int32   `json:"num_threads"`
}

// List is a ranked process report.
type List struct {
	Processes []Info `json:"processes"`
	Total     int    `json:"total"`
}

// Lister reads running processes via gopsutil.
type Lister struct{}

func NewLister() *Lister {
	return &Lister{}
}

// TopByCPU returns the n busiest processes, hottest first. Processes
// that disappear mid-scan are skipped.
func (l *Lister) TopByCPU(n int) (*List, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	infos := make([]Info, 0, len(procs))
	for _, p := range procs {
		info, err := l.info(p)
		if err != nil {
			continue
		}
		infos = append(infos, *info)
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CPUPercent > infos[j].CPUPercent
	})

	total := len(infos)
	if n > 0 && n < len(infos) {
		infos = infos[:n]
	}

	return &List{Processes: infos, Total: total}, nil
}

func (l *Lister) info(p *process.Process) (*Info, error) {
	name, err := p.Name()
	if err != nil {
		return nil, err
	}

	info := &Info{
		PID:  p.Pid,
		Name: name,
	}

	// Best effort for the rest; a vanished process still errors out
	// on Name above
	if username, err := p.Username(); err == nil {
		info.Username = username
	}
	if cpuPct, err := p.CPUPercent(); err == nil {
		info.CPUPercent = cpuPct
	}
	if memPct, err := p.MemoryPercent(); err == nil {
		info.MemPercent = memPct
	}
	if cmdline, err := p.Cmdline(); err == nil {
		info.Cmdline = cmdline
	}
	if threads, err := p.NumThreads(); err == nil {
		info.NumThreads = threads
	}

	return info, nil
}
