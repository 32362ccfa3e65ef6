package saliency

import (
	"fmt"
	"sync"

	"github.com/openfluke/saliency/nn"
)

// Backpropagator produces one attribution map for an image
type Backpropagator interface {
	Backprop(img *nn.Image, toLayer string) (*Map, error)
}

// Forker is a Backpropagator that can hand out an independent copy of itself
// bound to a private clone of its network. The Smoother uses it to run
// samples in parallel.
type Forker interface {
	Backpropagator
	Fork() Backpropagator
}

// Option configures an Attributor
type Option func(*Attributor)

// WithPolicy sets the gradient rule applied at rectifying layers
func WithPolicy(p RewritePolicy) Option {
	return func(a *Attributor) {
		a.policy = p
	}
}

// WithSmoother sets the smoother used by BackpropSmooth
func WithSmoother(s *Smoother) Option {
	return func(a *Attributor) {
		a.smoother = s
	}
}

// Attributor computes gradient maps of one target unit with respect to the
// input of a chosen layer. It is safe for concurrent use; calls on the same
// network are serialized.
type Attributor struct {
	net      *nn.Network
	policy   RewritePolicy
	smoother *Smoother
	hooks    *nn.HookManager

	mu         sync.Mutex
	target     LayerTarget
	handle     nn.LayerHandle
	configured bool
}

// New returns an unconfigured attributor over net. Without WithPolicy it
// computes plain gradients.
func New(net *nn.Network, opts ...Option) *Attributor {
	a := &Attributor{
		net:   net,
		hooks: net.NewHookManager(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.smoother == nil {
		a.smoother = NewSmoother(nil)
	}
	return a
}

// NewVanilla returns an attributor computing plain gradients
func NewVanilla(net *nn.Network, opts ...Option) *Attributor {
	return New(net, opts...)
}

// NewGuided returns an attributor applying guided backpropagation at every
// rectifying layer between the target and the stop layer.
func NewGuided(net *nn.Network, opts ...Option) *Attributor {
	return New(net, append([]Option{WithPolicy(Guided)}, opts...)...)
}

// Network returns the network the attributor runs on
func (a *Attributor) Network() *nn.Network {
	return a.net
}

// SetLayer targets channel (CHW layers) or element (flat layers) unit of layer
func (a *Attributor) SetLayer(layer string, unit int) error {
	return a.setTarget(LayerTarget{Layer: layer, Unit: unit})
}

// SetLayerPixel targets a single spatial position of a channel
func (a *Attributor) SetLayerPixel(layer string, unit, row, col int) error {
	return a.setTarget(LayerTarget{Layer: layer, Unit: unit, Pixel: true, Row: row, Col: col})
}

func (a *Attributor) setTarget(t LayerTarget) error {
	h, err := a.net.Registry().Resolve(t.Layer)
	if err != nil {
		return err
	}
	if err := t.validate(h); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.target = t
	a.handle = h
	a.configured = true
	return nil
}

// Target returns the current target and whether one is set
func (a *Attributor) Target() (LayerTarget, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.target, a.configured
}

// Backprop runs one forward and one backward pass and returns the gradient of
// the target unit with respect to the input of toLayer. The map has the
// shape of that input: the image shape when toLayer is the first layer.
func (a *Attributor) Backprop(img *nn.Image, toLayer string) (*Map, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.configured {
		return nil, ErrNotConfigured
	}
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrShapeMismatch)
	}
	reg := a.net.Registry()
	stop, err := reg.Resolve(toLayer)
	if err != nil {
		return nil, err
	}
	path, err := reg.OrderedBetween(a.target.Layer, toLayer)
	if err != nil {
		return nil, err
	}
	if !nn.ShapesEqual(img.Shape(), a.net.InputShape) {
		return nil, fmt.Errorf("%w: image %v, network expects %v", ErrShapeMismatch, img.Shape(), a.net.InputShape)
	}

	a.net.Lock()
	defer a.net.Unlock()
	defer a.hooks.DetachAll()

	sets := make(map[int]nn.Hooks)
	if a.policy != nil {
		for _, h := range nn.Rectifying(path) {
			rh := &rectifierHook{policy: a.policy}
			set := nn.Hooks{
				Forward: func(ev *nn.ForwardEvent) []float32 {
					rh.store(ev.Output)
					return nil
				},
			}
			rewrite := func(ev *nn.BackwardEvent) []float32 {
				return rh.rewrite(ev.GradOutput)
			}
			// a fused rectifier is rewritten at its pre-activation, before the kernel
			if h.IsFused() {
				set.Fused = rewrite
			} else {
				set.Backward = rewrite
			}
			sets[h.Index] = set
			a.hooks.AttachSet(h.Index, set)
		}
	}

	if _, _, err := a.net.ForwardCPU(img.Data); err != nil {
		return nil, fmt.Errorf("forward pass: %w", err)
	}

	// The stop layer keeps a single hook set: its own rewrite (if any)
	// followed by capture. Attaching replaces the rewrite-only set.
	var captured []float32
	stopSet := sets[stop.Index]
	stopRewrite := stopSet.Backward
	stopSet.Backward = func(ev *nn.BackwardEvent) []float32 {
		grad := ev.GradInput
		var replaced []float32
		if stopRewrite != nil {
			replaced = stopRewrite(ev)
			grad = replaced
		}
		captured = append([]float32(nil), grad...)
		return replaced
	}
	a.hooks.AttachSet(stop.Index, stopSet)

	if _, _, err := a.net.BackwardCPU(a.handle.Index, stop.Index, a.target.seed(a.handle)); err != nil {
		return nil, fmt.Errorf("backward pass: %w", err)
	}
	if captured == nil {
		return nil, fmt.Errorf("%w: no gradient reached %s", ErrShapeMismatch, toLayer)
	}

	m := &Map{
		Layer: toLayer,
		Shape: append([]int(nil), stop.InputShape...),
		Data:  captured,
	}
	if len(m.Data) != m.Size() {
		return nil, fmt.Errorf("%w: gradient at %s has %d elements, want %v", ErrShapeMismatch, toLayer, len(m.Data), m.Shape)
	}
	return m, nil
}

// BackpropSmooth averages Backprop over n noisy copies of img using the
// attributor's smoother.
func (a *Attributor) BackpropSmooth(img *nn.Image, n int, toLayer string) (*Map, error) {
	return a.smoother.Smooth(a, img, n, toLayer)
}

// Fork returns an attributor with the same policy and target bound to a
// clone of the network. The clone shares weights and has its own buffers and
// hooks, so the fork can run concurrently with a.
func (a *Attributor) Fork() Backpropagator {
	a.mu.Lock()
	defer a.mu.Unlock()

	f := New(a.net.Clone(), WithPolicy(a.policy), WithSmoother(a.smoother))
	f.target = a.target
	f.handle = a.handle
	f.configured = a.configured
	return f
}
