package nn

import (
	"fmt"
	"time"
)

// BackwardCPU propagates gradOutput, the gradient at the output of layer
// from, back through layers from..to (both inclusive) and returns the
// gradient with respect to the input of layer to. Backward hooks run after
// each layer and may replace the gradient that continues toward the input.
// On conv and dense layers, fused hooks run first and may replace the
// gradient at the pre-activation before the kernel is applied.
// A ForwardCPU call must precede it.
func (n *Network) BackwardCPU(from, to int, gradOutput []float32) ([]float32, time.Duration, error) {
	start := time.Now()

	if from < 0 || from >= len(n.Layers) || to < 0 || to > from {
		return nil, 0, fmt.Errorf("%w: backward from %d to %d over %d layers", ErrInvalidRange, from, to, len(n.Layers))
	}
	if len(n.activations) != len(n.Layers)+1 || n.activations[from+1] == nil {
		return nil, 0, fmt.Errorf("backward pass requested before forward pass")
	}
	if want := numElements(n.Layers[from].OutputShape); len(gradOutput) != want {
		return nil, 0, fmt.Errorf("%w: gradient for %s has %d elements, want %d",
			ErrShapeMismatch, n.Layers[from].Name, len(gradOutput), want)
	}

	grad := make([]float32, len(gradOutput))
	copy(grad, gradOutput)

	for layerIdx := from; layerIdx >= to; layerIdx-- {
		config := &n.Layers[layerIdx]
		preAct := n.preActivations[layerIdx]
		hooks := n.hooks.snapshot(layerIdx)

		var gradInput []float32
		switch config.Type {
		case LayerConv2D, LayerDense:
			gradPre, err := n.fusedBackward(layerIdx, hooks, grad, activationBackwardCPU(grad, preAct, config))
			if err != nil {
				return nil, 0, err
			}
			if config.Type == LayerConv2D {
				gradInput = conv2DBackwardCPU(gradPre, config, n.BatchSize)
			} else {
				gradInput = denseBackwardCPU(gradPre, config, n.BatchSize)
			}
		case LayerActivation:
			gradInput = activationBackwardCPU(grad, preAct, config)
		case LayerMaxPool2D:
			gradInput = maxPool2DBackwardCPU(grad, n.poolIndices[layerIdx], config, n.BatchSize)
		default:
			return nil, 0, fmt.Errorf("layer %d (%s): unsupported layer type %d", layerIdx, config.Name, config.Type)
		}

		for _, h := range hooks {
			if h.backward == nil {
				continue
			}
			ev := &BackwardEvent{
				LayerIdx:   layerIdx,
				Layer:      config.Name,
				Input:      n.activations[layerIdx],
				Output:     n.activations[layerIdx+1],
				GradOutput: grad,
				GradInput:  gradInput,
			}
			if replaced := h.backward(ev); replaced != nil {
				if len(replaced) != len(gradInput) {
					return nil, 0, fmt.Errorf("%w: backward hook on %s returned %d elements, want %d",
						ErrShapeMismatch, config.Name, len(replaced), len(gradInput))
				}
				gradInput = replaced
			}
		}

		notifyObserver(config, "backward", layerIdx, grad, gradInput)

		grad = gradInput
	}

	return grad, time.Since(start), nil
}

// fusedBackward runs the fused hooks of a conv or dense layer. gradPre is the
// gradient at the pre-activation; each hook may replace it before the kernel
// carries it to the layer input.
func (n *Network) fusedBackward(layerIdx int, hooks []hookEntry, grad, gradPre []float32) ([]float32, error) {
	config := &n.Layers[layerIdx]
	for _, h := range hooks {
		if h.fused == nil {
			continue
		}
		ev := &BackwardEvent{
			LayerIdx:   layerIdx,
			Layer:      config.Name,
			Input:      n.activations[layerIdx],
			Output:     n.activations[layerIdx+1],
			GradOutput: grad,
			GradInput:  gradPre,
		}
		if replaced := h.fused(ev); replaced != nil {
			if len(replaced) != len(gradPre) {
				return nil, fmt.Errorf("%w: fused hook on %s returned %d elements, want %d",
					ErrShapeMismatch, config.Name, len(replaced), len(gradPre))
			}
			gradPre = replaced
		}
	}
	return gradPre, nil
}
