package nn

import (
	"math"
	"math/rand"
)

// InitConv2DLayer initializes a named Conv2D layer with He-initialized weights
// drawn from rng. Activation is fused into the layer; use ActivationLinear and
// a separate activation layer when the nonlinearity must be addressable.
func InitConv2DLayer(
	name string,
	inputHeight, inputWidth, inputChannels int,
	kernelSize, stride, padding, filters int,
	activation ActivationType,
	rng *rand.Rand,
) LayerConfig {
	outputHeight := (inputHeight+2*padding-kernelSize)/stride + 1
	outputWidth := (inputWidth+2*padding-kernelSize)/stride + 1

	kernelTotal := filters * inputChannels * kernelSize * kernelSize
	kernel := make([]float32, kernelTotal)
	stddev := float32(math.Sqrt(2.0 / float64(inputChannels*kernelSize*kernelSize)))
	for i := range kernel {
		kernel[i] = float32(rng.NormFloat64()) * stddev
	}

	// Small positive bias keeps a share of units alive after rectification
	bias := make([]float32, filters)
	for i := range bias {
		bias[i] = 0.01
	}

	return LayerConfig{
		Name:          name,
		Type:          LayerConv2D,
		Activation:    activation,
		KernelSize:    kernelSize,
		Stride:        stride,
		Padding:       padding,
		Filters:       filters,
		Kernel:        kernel,
		Bias:          bias,
		InputHeight:   inputHeight,
		InputWidth:    inputWidth,
		InputChannels: inputChannels,
		OutputHeight:  outputHeight,
		OutputWidth:   outputWidth,
		InputShape:    []int{inputChannels, inputHeight, inputWidth},
		OutputShape:   []int{filters, outputHeight, outputWidth},
	}
}

// conv2DForwardCPU performs 2D convolution on CPU
// input shape: [batch][inChannels][height][width] (flattened)
// output shape: [batch][filters][outHeight][outWidth] (flattened)
// Returns: preActivation (before activation), postActivation (after activation)
func conv2DForwardCPU(input []float32, config *LayerConfig, batchSize int) ([]float32, []float32) {
	inH := config.InputHeight
	inW := config.InputWidth
	inC := config.InputChannels
	kSize := config.KernelSize
	stride := config.Stride
	padding := config.Padding
	filters := config.Filters
	outH := config.OutputHeight
	outW := config.OutputWidth

	outputSize := batchSize * filters * outH * outW
	preActivation := make([]float32, outputSize)
	postActivation := make([]float32, outputSize)

	for b := 0; b < batchSize; b++ {
		for f := 0; f < filters; f++ {
			for oh := 0; oh < outH; oh++ {
				for ow := 0; ow < outW; ow++ {
					sum := config.Bias[f]

					for ic := 0; ic < inC; ic++ {
						for kh := 0; kh < kSize; kh++ {
							ih := oh*stride + kh - padding
							if ih < 0 || ih >= inH {
								continue
							}
							for kw := 0; kw < kSize; kw++ {
								iw := ow*stride + kw - padding
								if iw < 0 || iw >= inW {
									continue
								}
								inputIdx := b*inC*inH*inW + ic*inH*inW + ih*inW + iw
								kernelIdx := f*inC*kSize*kSize + ic*kSize*kSize + kh*kSize + kw
								sum += input[inputIdx] * config.Kernel[kernelIdx]
							}
						}
					}

					outputIdx := b*filters*outH*outW + f*outH*outW + oh*outW + ow
					preActivation[outputIdx] = sum
					postActivation[outputIdx] = activateCPU(sum, config.Activation)
				}
			}
		}
	}

	return preActivation, postActivation
}

// conv2DBackwardCPU propagates gradPre, the gradient at the pre-activation,
// back to the layer input. Weight gradients are not accumulated.
func conv2DBackwardCPU(
	gradPre []float32,
	config *LayerConfig,
	batchSize int,
) []float32 {
	inH := config.InputHeight
	inW := config.InputWidth
	inC := config.InputChannels
	kSize := config.KernelSize
	stride := config.Stride
	padding := config.Padding
	filters := config.Filters
	outH := config.OutputHeight
	outW := config.OutputWidth

	gradInput := make([]float32, batchSize*inC*inH*inW)

	for b := 0; b < batchSize; b++ {
		for f := 0; f < filters; f++ {
			for oh := 0; oh < outH; oh++ {
				for ow := 0; ow < outW; ow++ {
					outputIdx := b*filters*outH*outW + f*outH*outW + oh*outW + ow

					gradOut := gradPre[outputIdx]
					if gradOut == 0 {
						continue
					}

					for ic := 0; ic < inC; ic++ {
						for kh := 0; kh < kSize; kh++ {
							ih := oh*stride + kh - padding
							if ih < 0 || ih >= inH {
								continue
							}
							for kw := 0; kw < kSize; kw++ {
								iw := ow*stride + kw - padding
								if iw < 0 || iw >= inW {
									continue
								}
								inputIdx := b*inC*inH*inW + ic*inH*inW + ih*inW + iw
								kernelIdx := f*inC*kSize*kSize + ic*kSize*kSize + kh*kSize + kw
								gradInput[inputIdx] += gradOut * config.Kernel[kernelIdx]
							}
						}
					}
				}
			}
		}
	}

	return gradInput
}
