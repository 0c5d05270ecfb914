// ABOUTME: Resolves the collector memory budget from configuration
// ABOUTME: Explicit sizes, or a ratio of the cgroup limit or physical memory

package config

import (
	"math"
	"strconv"
	"strings"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/cockroachdb/errors"
	"github.com/pbnjay/memory"
)

var (
	cgroupLimit  = memlimit.FromCgroup
	systemMemory = memory.TotalMemory
)

// Longest suffixes first so "MiB" is not read as "B".
var sizeUnits = []struct {
	suffix string
	mult   uint64
}{
	{"KiB", 1 << 10}, {"MiB", 1 << 20}, {"GiB", 1 << 30}, {"TiB", 1 << 40},
	{"KB", 1e3}, {"MB", 1e6}, {"GB", 1e9}, {"TB", 1e12},
	{"K", 1 << 10}, {"M", 1 << 20}, {"G", 1 << 30}, {"T", 1 << 40},
	{"B", 1},
}

// ParseSize parses a byte count with an optional unit suffix, such as
// "512", "64MiB" or "1.5GB".
func ParseSize(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	mult := uint64(1)
	for _, u := range sizeUnits {
		if strings.HasSuffix(s, u.suffix) {
			s = strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			mult = u.mult
			break
		}
	}
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		if n > 0 && mult > ^uint64(0)/n {
			return 0, errors.Newf("size %q overflows", s)
		}
		return n * mult, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0, errors.Newf("invalid size %q", s)
	}
	if v := f * float64(mult); v < math.MaxUint64 {
		return uint64(v), nil
	}
	return 0, errors.Newf("size %q overflows", s)
}

// MemorySource names where a resolved budget came from.
type MemorySource string

// Memory budget sources.
const (
	SourceUnlimited MemorySource = "unlimited"
	SourceExplicit  MemorySource = "explicit"
	SourceCgroup    MemorySource = "cgroup"
	SourceSystem    MemorySource = "system"
)

// ResolveMemoryLimit returns the budget in bytes (0 for unlimited) and where
// it came from. A ratio applies to the cgroup memory limit when one is set
// and to physical memory otherwise.
func (c Collector) ResolveMemoryLimit() (uint64, MemorySource, error) {
	if c.MemoryLimit != "" {
		limit, err := ParseSize(c.MemoryLimit)
		if err != nil {
			return 0, "", errors.Wrap(err, "collector.memory_limit")
		}
		return limit, SourceExplicit, nil
	}
	if c.MemoryRatio == 0 {
		return 0, SourceUnlimited, nil
	}

	available, source := uint64(0), SourceCgroup
	if limit, err := cgroupLimit(); err == nil && limit > 0 {
		available = limit
	} else {
		available, source = systemMemory(), SourceSystem
	}
	if available == 0 {
		return 0, "", errors.New("cannot determine available memory for collector.memory_ratio")
	}
	return uint64(float64(available) * c.MemoryRatio), source, nil
}
