package nn

import (
	"fmt"
	"math"
)

// activateCPU applies the activation function on CPU
func activateCPU(v float32, activation ActivationType) float32 {
	switch activation {
	case ActivationScaledReLU:
		v = v * 1.1
		if v < 0 {
			v = 0
		}
		return v
	case ActivationSigmoid:
		return 1.0 / (1.0 + float32(math.Exp(float64(-v))))
	case ActivationTanh:
		return float32(math.Tanh(float64(v)))
	case ActivationSoftplus:
		return float32(math.Log(1.0 + math.Exp(float64(v))))
	case ActivationLeakyReLU:
		if v < 0 {
			v = v * 0.1
		}
		return v
	case ActivationReLU:
		if v < 0 {
			return 0
		}
		return v
	default:
		return v
	}
}

// activateDerivativeCPU computes the derivative of the activation function
// Note: This computes the derivative with respect to the PRE-activation value
func activateDerivativeCPU(preActivation float32, activation ActivationType) float32 {
	switch activation {
	case ActivationScaledReLU:
		// d/dv (max(0, 1.1*v)) = 1.1 if v > 0, else 0
		if preActivation > 0 {
			return 1.1
		}
		return 0
	case ActivationSigmoid:
		sig := 1.0 / (1.0 + float32(math.Exp(float64(-preActivation))))
		return sig * (1.0 - sig)
	case ActivationTanh:
		t := float32(math.Tanh(float64(preActivation)))
		return 1.0 - t*t
	case ActivationSoftplus:
		return 1.0 / (1.0 + float32(math.Exp(float64(-preActivation))))
	case ActivationLeakyReLU:
		if preActivation >= 0 {
			return 1.0
		}
		return 0.1
	case ActivationReLU:
		if preActivation > 0 {
			return 1.0
		}
		return 0
	default:
		return 1.0
	}
}

// IsRectifying reports whether the activation clamps negative inputs to zero
func (a ActivationType) IsRectifying() bool {
	return a == ActivationReLU || a == ActivationScaledReLU
}

func (a ActivationType) String() string {
	switch a {
	case ActivationScaledReLU:
		return "scaled_relu"
	case ActivationSigmoid:
		return "sigmoid"
	case ActivationTanh:
		return "tanh"
	case ActivationSoftplus:
		return "softplus"
	case ActivationLeakyReLU:
		return "leaky_relu"
	case ActivationLinear:
		return "linear"
	case ActivationReLU:
		return "relu"
	default:
		return "unknown"
	}
}

// ParseActivation maps a name produced by ActivationType.String back to its value
func ParseActivation(s string) (ActivationType, error) {
	switch s {
	case "scaled_relu":
		return ActivationScaledReLU, nil
	case "sigmoid":
		return ActivationSigmoid, nil
	case "tanh":
		return ActivationTanh, nil
	case "softplus":
		return ActivationSoftplus, nil
	case "leaky_relu":
		return ActivationLeakyReLU, nil
	case "linear", "":
		return ActivationLinear, nil
	case "relu":
		return ActivationReLU, nil
	default:
		return 0, fmt.Errorf("unknown activation %q", s)
	}
}

func (t LayerType) String() string {
	switch t {
	case LayerDense:
		return "dense"
	case LayerConv2D:
		return "conv2d"
	case LayerActivation:
		return "activation"
	case LayerMaxPool2D:
		return "maxpool2d"
	default:
		return "unknown"
	}
}

// ParseLayerType maps a name produced by LayerType.String back to its value
func ParseLayerType(s string) (LayerType, error) {
	switch s {
	case "dense":
		return LayerDense, nil
	case "conv2d":
		return LayerConv2D, nil
	case "activation":
		return LayerActivation, nil
	case "maxpool2d":
		return LayerMaxPool2D, nil
	default:
		return 0, fmt.Errorf("unknown layer type %q", s)
	}
}

// activationForwardCPU applies a standalone activation layer
func activationForwardCPU(input []float32, config *LayerConfig) ([]float32, []float32) {
	preAct := make([]float32, len(input))
	postAct := make([]float32, len(input))
	copy(preAct, input)
	for i, v := range input {
		postAct[i] = activateCPU(v, config.Activation)
	}
	return preAct, postAct
}

// activationBackwardCPU multiplies the incoming gradient by the activation derivative
func activationBackwardCPU(gradOutput, preAct []float32, config *LayerConfig) []float32 {
	gradInput := make([]float32, len(gradOutput))
	for i := range gradOutput {
		gradInput[i] = gradOutput[i] * activateDerivativeCPU(preAct[i], config.Activation)
	}
	return gradInput
}
