package nn

import (
	"math"
	"math/rand"
)

// InitDenseLayer initializes a named dense (fully-connected) layer.
// inputShape may be multi-dimensional; it is flattened in CHW order.
func InitDenseLayer(name string, inputShape []int, outputSize int, activation ActivationType, rng *rand.Rand) LayerConfig {
	inputSize := numElements(inputShape)
	stddev := float32(math.Sqrt(2.0 / float64(inputSize)))

	weights := make([]float32, inputSize*outputSize)
	for i := range weights {
		weights[i] = float32(rng.NormFloat64()) * stddev
	}

	bias := make([]float32, outputSize)
	for i := range bias {
		bias[i] = 0.01
	}

	return LayerConfig{
		Name:         name,
		Type:         LayerDense,
		Activation:   activation,
		InputHeight:  inputSize,  // Reuse as inputSize
		OutputHeight: outputSize, // Reuse as outputSize
		Kernel:       weights,    // Weight matrix [inputSize * outputSize]
		Bias:         bias,       // Bias vector [outputSize]
		InputShape:   append([]int(nil), inputShape...),
		OutputShape:  []int{outputSize},
	}
}

// denseForwardCPU performs forward pass for dense layer
// input: [batchSize * inputSize]
// weights: [inputSize * outputSize]
// output: [batchSize * outputSize]
func denseForwardCPU(input []float32, config *LayerConfig, batchSize int) ([]float32, []float32) {
	inputSize := config.InputHeight
	outputSize := config.OutputHeight
	weights := config.Kernel
	bias := config.Bias

	preAct := make([]float32, batchSize*outputSize)
	postAct := make([]float32, batchSize*outputSize)

	// output = input @ weights + bias
	for b := 0; b < batchSize; b++ {
		for o := 0; o < outputSize; o++ {
			sum := float32(0)
			for i := 0; i < inputSize; i++ {
				sum += input[b*inputSize+i] * weights[i*outputSize+o]
			}
			sum += bias[o]

			outIdx := b*outputSize + o
			preAct[outIdx] = sum
			postAct[outIdx] = activateCPU(sum, config.Activation)
		}
	}

	return preAct, postAct
}

// denseBackwardCPU propagates gradPre, the gradient at the pre-activation,
// back to the dense layer input
func denseBackwardCPU(gradPre []float32, config *LayerConfig, batchSize int) []float32 {
	inputSize := config.InputHeight
	outputSize := config.OutputHeight
	weights := config.Kernel

	gradInput := make([]float32, batchSize*inputSize)

	for b := 0; b < batchSize; b++ {
		for o := 0; o < outputSize; o++ {
			outIdx := b*outputSize + o
			grad := gradPre[outIdx]
			if grad == 0 {
				continue
			}
			for i := 0; i < inputSize; i++ {
				gradInput[b*inputSize+i] += weights[i*outputSize+o] * grad
			}
		}
	}

	return gradInput
}
