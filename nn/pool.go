package nn

import "math"

// InitMaxPool2DLayer creates a max-pooling layer over a CHW input
func InitMaxPool2DLayer(name string, inputChannels, inputHeight, inputWidth, kernelSize, stride int) LayerConfig {
	outputHeight := (inputHeight-kernelSize)/stride + 1
	outputWidth := (inputWidth-kernelSize)/stride + 1
	return LayerConfig{
		Name:          name,
		Type:          LayerMaxPool2D,
		Activation:    ActivationLinear,
		KernelSize:    kernelSize,
		Stride:        stride,
		Filters:       inputChannels,
		InputHeight:   inputHeight,
		InputWidth:    inputWidth,
		InputChannels: inputChannels,
		OutputHeight:  outputHeight,
		OutputWidth:   outputWidth,
		InputShape:    []int{inputChannels, inputHeight, inputWidth},
		OutputShape:   []int{inputChannels, outputHeight, outputWidth},
	}
}

// maxPool2DForwardCPU returns the pooled output and, for every output
// element, the flat input index that won the max.
func maxPool2DForwardCPU(input []float32, config *LayerConfig, batchSize int) ([]float32, []int) {
	inH := config.InputHeight
	inW := config.InputWidth
	c := config.InputChannels
	kSize := config.KernelSize
	stride := config.Stride
	outH := config.OutputHeight
	outW := config.OutputWidth

	output := make([]float32, batchSize*c*outH*outW)
	argmax := make([]int, len(output))

	for b := 0; b < batchSize; b++ {
		for ch := 0; ch < c; ch++ {
			base := b*c*inH*inW + ch*inH*inW
			for oh := 0; oh < outH; oh++ {
				for ow := 0; ow < outW; ow++ {
					best := float32(math.Inf(-1))
					bestIdx := -1
					for kh := 0; kh < kSize; kh++ {
						for kw := 0; kw < kSize; kw++ {
							idx := base + (oh*stride+kh)*inW + (ow*stride + kw)
							if bestIdx < 0 || input[idx] > best {
								best = input[idx]
								bestIdx = idx
							}
						}
					}
					outIdx := b*c*outH*outW + ch*outH*outW + oh*outW + ow
					output[outIdx] = best
					argmax[outIdx] = bestIdx
				}
			}
		}
	}

	return output, argmax
}

// maxPool2DBackwardCPU routes each output gradient to the input that produced the max
func maxPool2DBackwardCPU(gradOutput []float32, argmax []int, config *LayerConfig, batchSize int) []float32 {
	gradInput := make([]float32, batchSize*config.InputChannels*config.InputHeight*config.InputWidth)
	for i, g := range gradOutput {
		gradInput[argmax[i]] += g
	}
	return gradInput
}
