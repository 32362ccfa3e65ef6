package detector

import (
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/klauspost/cpuid/v2"
)

// WorkersEnv overrides RecommendedWorkers when set to a positive integer
const WorkersEnv = "SALIENCY_WORKERS"

// CPUReport summarizes the host processor
type CPUReport struct {
	WhenISO        string            `json:"when_iso"`
	Runtime        string            `json:"runtime"`
	Brand          string            `json:"brand"`
	Vendor         string            `json:"vendor"`
	PhysicalCores  int               `json:"physical_cores"`
	LogicalCores   int               `json:"logical_cores"`
	ThreadsPerCore int               `json:"threads_per_core"`
	CacheL2Bytes   int               `json:"cache_l2_bytes"`
	AVX2           bool              `json:"avx2"`
	AVX512         bool              `json:"avx512"`
	Features       []string          `json:"features"`
	Workers        int               `json:"recommended_workers"`
	Env            map[string]string `json:"env,omitempty"`
}

// DetectCPU reads the processor identification of the host
func DetectCPU() *CPUReport {
	c := cpuid.CPU
	return &CPUReport{
		WhenISO:        time.Now().UTC().Format(time.RFC3339),
		Runtime:        detectRuntime(),
		Brand:          c.BrandName,
		Vendor:         c.VendorString,
		PhysicalCores:  c.PhysicalCores,
		LogicalCores:   c.LogicalCores,
		ThreadsPerCore: c.ThreadsPerCore,
		CacheL2Bytes:   c.Cache.L2,
		AVX2:           c.Supports(cpuid.AVX2),
		AVX512:         c.Supports(cpuid.AVX512F, cpuid.AVX512DQ),
		Features:       c.FeatureSet(),
		Workers:        RecommendedWorkers(),
		Env:            pickEnv([]string{WorkersEnv}),
	}
}

// RecommendedWorkers returns how many attribution passes to run at once:
// the WorkersEnv override, else the physical core count, else GOMAXPROCS.
func RecommendedWorkers() int {
	if s := os.Getenv(WorkersEnv); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	if n := cpuid.CPU.PhysicalCores; n > 0 {
		return n
	}
	return runtime.GOMAXPROCS(0)
}
