// Package platform detects container resource limits (cgroup v1/v2) and
// samples host CPU and memory usage. No other package of this module
// imports it.
package platform

import (
	"os"
	"strconv"
	"strings"
)

// MemoryLimit returns the container memory limit in bytes, trying
// cgroup v2 first and falling back to v1. Returns 0 when no limit is
// detected (bare metal, VM, unconstrained container).
func MemoryLimit() (int64, error) {
	if data, err := os.ReadFile("/sys/fs/cgroup/memory.max"); err == nil {
		limit := strings.TrimSpace(string(data))
		if limit != "max" {
			return strconv.ParseInt(limit, 10, 64)
		}
		return 0, nil
	}

	if data, err := os.ReadFile("/sys/fs/cgroup/memory/memory.limit_in_bytes"); err == nil {
		return strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	}

	return 0, nil
}

// CPUQuota returns the fractional CPU allocation (e.g. 1.5 cores),
// trying cgroup v2's cpu.max ("quota period") first, then v1's
// cpu.cfs_quota_us / cpu.cfs_period_us pair. Returns 0 when unlimited.
func CPUQuota() (float64, error) {
	if data, err := os.ReadFile("/sys/fs/cgroup/cpu.max"); err == nil {
		fields := strings.Fields(strings.TrimSpace(string(data)))
		if len(fields) == 2 && fields[0] != "max" {
			quota, err := strconv.ParseFloat(fields[0], 64)
			if err != nil {
				return 0, err
			}
			period, err := strconv.ParseFloat(fields[1], 64)
			if err != nil || period == 0 {
				return 0, err
			}
			return quota / period, nil
		}
		return 0, nil
	}

	quotaData, qErr := os.ReadFile("/sys/fs/cgroup/cpu/cpu.cfs_quota_us")
	periodData, pErr := os.ReadFile("/sys/fs/cgroup/cpu/cpu.cfs_period_us")
	if qErr != nil || pErr != nil {
		return 0, nil
	}
	quota, err := strconv.ParseFloat(strings.TrimSpace(string(quotaData)), 64)
	if err != nil || quota < 0 {
		return 0, nil
	}
	period, err := strconv.ParseFloat(strings.TrimSpace(string(periodData)), 64)
	if err != nil || period == 0 {
		return 0, err
	}
	return quota / period, nil
}
