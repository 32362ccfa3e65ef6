// Package saliency computes gradient attribution maps for a target unit of
// an nn.Network.
//
// An Attributor pins a target unit (a scalar of a flat layer, or a channel of
// a CHW layer), runs a forward pass, seeds the backward pass with a one-hot
// gradient at the target and captures the gradient arriving at a chosen stop
// layer. The backward rule at rectifying layers is a pluggable RewritePolicy:
// nil for vanilla gradients, Guided for guided backpropagation. A Smoother
// averages the map over noise-perturbed copies of the image.
//
//	net, _ := nn.NewAlexNet(nn.DefaultAlexNetConfig())
//	guided := saliency.NewGuided(net)
//	if err := guided.SetLayer("fc3", 276); err != nil {
//		return err
//	}
//	m, err := guided.Backprop(img, "conv1")         // shape [3 224 224]
//	m, err = guided.BackpropSmooth(img, 8, "conv1")  // averaged over 8 noisy copies
//
// Hooks are attached through a per-attributor nn.HookManager for the length of
// a single call and removed before it returns, whether it succeeds or not.
package saliency
