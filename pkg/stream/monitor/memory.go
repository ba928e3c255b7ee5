// Package monitor reports process and system memory usage alongside the
// streaming logs, mirroring what an operator would otherwise pull from the
// host while diagnosing a stuck or bloated query.
package monitor

import (
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/tigerroll/swell/pkg/stream/support/util/logger"
)

const (
	megabyte = 1024 * 1024
	gigabyte = 1024 * 1024 * 1024
)

// InfoString returns a single pipe-delimited line of process and system
// memory usage. When the figures cannot be collected it returns a
// memory_error marker instead of failing, so callers can embed it in any log
// line unconditionally.
func InfoString() string {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return fmt.Sprintf("memory_error=%v", err)
	}
	memInfo, err := proc.MemoryInfo()
	if err != nil {
		return fmt.Sprintf("memory_error=%v", err)
	}
	memPct, err := proc.MemoryPercent()
	if err != nil {
		return fmt.Sprintf("memory_error=%v", err)
	}
	sysMem, err := mem.VirtualMemory()
	if err != nil {
		return fmt.Sprintf("memory_error=%v", err)
	}

	return fmt.Sprintf(
		"memory_rss=%.2fMB | memory_vms=%.2fMB | memory_pct=%.2f%% | sys_total=%.2fGB | sys_available=%.2fGB | sys_used_pct=%.2f%%",
		float64(memInfo.RSS)/megabyte,
		float64(memInfo.VMS)/megabyte,
		memPct,
		float64(sysMem.Total)/gigabyte,
		float64(sysMem.Available)/gigabyte,
		sysMem.UsedPercent,
	)
}

// StartPeriodicLogging launches a background goroutine that logs the memory
// usage line on the given interval for the lifetime of the process. It is not
// cancellable on purpose: the monitor must keep reporting through shutdown,
// and it dies with the process.
func StartPeriodicLogging(interval time.Duration) {
	logger.Infof("MEMORY_MONITOR_STARTED | interval=%s", interval)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			logger.Infof("MEMORY_USAGE | %s", InfoString())
		}
	}()
}
