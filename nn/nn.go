// Package nn provides a named, sequential neural network evaluated on CPU
// with an inspectable interception table for forward and backward passes.
//
// A network is an ordered chain of named layers:
//   - Conv2D: 2D convolution, CHW tensors
//   - Dense: fully-connected, flattens its input
//   - Activation: standalone element-wise nonlinearity (ReLU, ScaledReLU, ...)
//   - MaxPool2D: max pooling, gradient routed to the winning input
//
// Every layer records the shape it consumes and produces, so any layer can be
// addressed by name through the Registry. Hooks attached through a
// HookManager run at each layer after it computes its output (forward) or
// its input gradient (backward) and may replace that tensor.
//
// Example usage:
//
//	net, _ := nn.NewAlexNet(nn.DefaultAlexNetConfig())
//
//	out, _, _ := net.ForwardCPU(img.Data)
//	conv1, _ := net.Registry().Resolve("conv1")
//	fc3, _ := net.Registry().Resolve("fc3")
//
//	seed := make([]float32, len(out))
//	seed[276] = 1
//	grad, _, _ := net.BackwardCPU(fc3.Index, conv1.Index, seed)
package nn
