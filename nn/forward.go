package nn

import (
	"fmt"
	"time"
)

// ForwardCPU executes the network on CPU and stores intermediate activations
// for a later BackwardCPU. Forward hooks run after each layer and may replace
// its output.
func (n *Network) ForwardCPU(input []float32) ([]float32, time.Duration, error) {
	start := time.Now()

	if want := numElements(n.InputShape); len(input) != want {
		return nil, 0, fmt.Errorf("%w: input has %d elements, network expects %v", ErrShapeMismatch, len(input), n.InputShape)
	}

	n.resetBuffers()
	n.activations[0] = make([]float32, len(input))
	copy(n.activations[0], input)

	data := n.activations[0]

	for layerIdx := range n.Layers {
		config := &n.Layers[layerIdx]

		var postAct []float32
		switch config.Type {
		case LayerConv2D:
			n.preActivations[layerIdx], postAct = conv2DForwardCPU(data, config, n.BatchSize)
		case LayerDense:
			n.preActivations[layerIdx], postAct = denseForwardCPU(data, config, n.BatchSize)
		case LayerActivation:
			n.preActivations[layerIdx], postAct = activationForwardCPU(data, config)
		case LayerMaxPool2D:
			postAct, n.poolIndices[layerIdx] = maxPool2DForwardCPU(data, config, n.BatchSize)
		default:
			return nil, 0, fmt.Errorf("layer %d (%s): unsupported layer type %d", layerIdx, config.Name, config.Type)
		}

		for _, h := range n.hooks.snapshot(layerIdx) {
			if h.forward == nil {
				continue
			}
			ev := &ForwardEvent{LayerIdx: layerIdx, Layer: config.Name, Input: data, Output: postAct}
			if replaced := h.forward(ev); replaced != nil {
				if len(replaced) != len(postAct) {
					return nil, 0, fmt.Errorf("%w: forward hook on %s returned %d elements, want %d",
						ErrShapeMismatch, config.Name, len(replaced), len(postAct))
				}
				postAct = replaced
			}
		}

		notifyObserver(config, "forward", layerIdx, data, postAct)

		n.activations[layerIdx+1] = postAct
		data = postAct
	}

	out := make([]float32, len(data))
	copy(out, data)
	return out, time.Since(start), nil
}
