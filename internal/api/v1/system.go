package api

import (
	"path/filepath"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/tphakala/logbook/internal/conf"
	"github.com/tphakala/logbook/internal/logger"
)

// diskWarnPercent is the disk usage at which the health check logs a warning.
const diskWarnPercent = 90.0

// SystemStats is the host section of the health check.
type SystemStats struct {
	MemoryUsedPercent float64 `json:"memory_used_percent"`
	DiskPath          string  `json:"disk_path,omitempty"`
	DiskFreeGB        float64 `json:"disk_free_gb"`
	DiskUsedPercent   float64 `json:"disk_used_percent"`
	HostUptimeSeconds uint64  `json:"host_uptime_seconds"`
}

// dataDir returns the directory holding local data, the SQLite database
// directory when that backend is used.
func (c *Controller) dataDir() string {
	if c.Settings.Datastore.Type == conf.DatastoreSQLite && c.Settings.Datastore.SQLite.Path != "" {
		return filepath.Dir(conf.ResolvePath(c.Settings.Datastore.SQLite.Path))
	}
	return "."
}

// systemStats collects host figures. Unavailable values are left zero.
func (c *Controller) systemStats() SystemStats {
	var stats SystemStats

	if vm, err := mem.VirtualMemory(); err == nil {
		stats.MemoryUsedPercent = vm.UsedPercent
	} else {
		GetLogger().Debug("memory stats unavailable", logger.Error(err))
	}

	dir := c.dataDir()
	if usage, err := disk.Usage(dir); err == nil {
		stats.DiskPath = usage.Path
		stats.DiskFreeGB = float64(usage.Free) / (1 << 30)
		stats.DiskUsedPercent = usage.UsedPercent
		if usage.UsedPercent >= diskWarnPercent {
			GetLogger().Warn("data directory disk nearly full",
				logger.String("path", usage.Path),
				logger.Float64("used_percent", usage.UsedPercent))
		}
	} else {
		GetLogger().Debug("disk stats unavailable", logger.String("path", dir), logger.Error(err))
	}

	if uptime, err := host.Uptime(); err == nil {
		stats.HostUptimeSeconds = uptime
	}
	return stats
}
