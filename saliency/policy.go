package saliency

// RewritePolicy replaces the gradient at the input of a rectifier: the
// activation layer's input, or the pre-activation of a conv or dense layer
// with a fused rectifier. output is the rectifier's forward output and grad
// the gradient arriving at that output; the returned slice must have the
// same length. A nil policy leaves the
// ordinary derivative in place.
type RewritePolicy func(output, grad []float32) []float32

// Identity keeps each layer's own derivative; it is the vanilla rule.
var Identity RewritePolicy

// Guided passes gradient only where both the forward activation and the
// incoming gradient are positive.
func Guided(output, grad []float32) []float32 {
	out := make([]float32, len(grad))
	for i, g := range grad {
		if output[i] > 0 && g > 0 {
			out[i] = g
		}
	}
	return out
}

// Deconvolution rectifies the incoming gradient without regard to the
// forward activation.
func Deconvolution(_, grad []float32) []float32 {
	out := make([]float32, len(grad))
	for i, g := range grad {
		if g > 0 {
			out[i] = g
		}
	}
	return out
}

// rectifierHook holds the forward activation of one rectifying layer between
// the forward and backward pass of a single attribution call.
type rectifierHook struct {
	policy RewritePolicy
	output []float32
}

func (r *rectifierHook) store(output []float32) {
	r.output = append(r.output[:0], output...)
}

func (r *rectifierHook) rewrite(grad []float32) []float32 {
	return r.policy(r.output, grad)
}
