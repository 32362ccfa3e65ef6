package detector

import (
	"encoding/json"
	"errors"
	"os"
	"runtime"
)

// ErrNoGPU is returned by DetectGPU when no adapter is available or the
// binary was built without the gpu tag.
var ErrNoGPU = errors.New("no gpu adapter available")

// GPUReport is a portable summary of the default adapter/device caps.
type GPUReport struct {
	WhenISO     string            `json:"when_iso"`
	Runtime     string            `json:"runtime"` // "native" or "wasm" (best-effort)
	Backend     string            `json:"backend"`
	AdapterType string            `json:"adapter_type"`
	VendorID    string            `json:"vendor_id_hex"`
	DeviceID    string            `json:"device_id_hex"`
	Name        string            `json:"name"`
	Driver      string            `json:"driver"`
	Recommended Recommendations   `json:"recommended"`
	Limits      Limits            `json:"limits"`
	Features    []string          `json:"features"`
	Env         map[string]string `json:"env,omitempty"`
}

type Limits struct {
	MaxComputeInvocationsPerWorkgroup uint32 `json:"max_compute_invocations_per_workgroup"`
	MaxComputeWorkgroupSizeX          uint32 `json:"max_compute_workgroup_size_x"`
	MaxComputeWorkgroupsPerDimension  uint32 `json:"max_compute_workgroups_per_dimension"`
	MaxStorageBufferBindingSize       uint64 `json:"max_storage_buffer_binding_size"`
	MaxBufferSize                     uint64 `json:"max_buffer_size"`
}

type Recommendations struct {
	WorkgroupX uint32 `json:"workgroup_x"`
	// Soft budget in bytes for one attribution pass worth of buffers.
	BudgetBytes uint64 `json:"budget_bytes"`
}

// Report combines the CPU report with the GPU probe, if any
type Report struct {
	CPU      *CPUReport `json:"cpu"`
	GPU      *GPUReport `json:"gpu,omitempty"`
	GPUError string     `json:"gpu_error,omitempty"`
}

// Detect runs both probes. A failed GPU probe is recorded, not returned.
func Detect() *Report {
	rep := &Report{CPU: DetectCPU()}
	gpu, err := DetectGPU()
	if err != nil {
		rep.GPUError = err.Error()
	} else {
		rep.GPU = gpu
	}
	return rep
}

// DetectJSON runs Detect and returns indented JSON
func DetectJSON() (string, error) {
	b, err := json.MarshalIndent(Detect(), "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func detectRuntime() string {
	if runtime.GOOS == "js" {
		return "wasm"
	}
	return "native"
}

func pickEnv(keys []string) map[string]string {
	out := map[string]string{}
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
