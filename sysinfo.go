package wakebench

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// SystemInfo describes the host the benchmark runs on.
type SystemInfo struct {
	NCPUs         int    // Online logical CPUs
	PhysicalCores int    // Distinct (package, core) pairs
	CPUModel      string // "model name" from /proc/cpuinfo
}

// DetectSystem inspects the host topology. It degrades gracefully on
// machines without the sysfs topology tree (containers, non-Linux test
// runs): physical cores fall back to the logical count and the model to
// "Unknown".
func DetectSystem() SystemInfo {
	ncpus := runtime.NumCPU()
	return SystemInfo{
		NCPUs:         ncpus,
		PhysicalCores: detectPhysicalCores(ncpus),
		CPUModel:      readCPUModel(),
	}
}

// detectPhysicalCores counts distinct (package, core) pairs so SMT siblings
// are not double-counted when sizing background load.
func detectPhysicalCores(ncpus int) int {
	type coreID struct{ pkg, core int }
	cores := make(map[coreID]struct{})

	for cpu := 0; cpu < ncpus; cpu++ {
		pkg, err1 := readSysfsInt(fmt.Sprintf(
			"/sys/devices/system/cpu/cpu%d/topology/physical_package_id", cpu))
		core, err2 := readSysfsInt(fmt.Sprintf(
			"/sys/devices/system/cpu/cpu%d/topology/core_id", cpu))
		if err1 == nil && err2 == nil {
			cores[coreID{pkg, core}] = struct{}{}
		}
	}

	if len(cores) == 0 {
		return ncpus
	}
	return len(cores)
}

func readSysfsInt(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(b)))
}

func readCPUModel() string {
	b, err := os.ReadFile("/proc/cpuinfo")
	if err != nil {
		return "Unknown"
	}
	for _, line := range strings.Split(string(b), "\n") {
		if strings.HasPrefix(line, "model name") {
			if _, val, ok := strings.Cut(line, ":"); ok {
				return strings.TrimSpace(val)
			}
		}
	}
	return "Unknown"
}
