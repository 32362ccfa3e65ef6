//go:build !gpu

package detector

// DetectGPU always fails without the gpu build tag
func DetectGPU() (*GPUReport, error) {
	return nil, ErrNoGPU
}
