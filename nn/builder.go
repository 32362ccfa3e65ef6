package nn

import (
	"fmt"
	"math/rand"
)

// Builder assembles a Network layer by layer, threading the tensor shape so
// every layer knows what it consumes and produces.
type Builder struct {
	inputShape []int
	shape      []int
	layers     []LayerConfig
	names      map[string]bool
	rng        *rand.Rand
	err        error
}

// NewBuilder starts a network whose input has the given CHW (or flat) shape.
// rng seeds weight initialization; nil uses a fixed seed.
func NewBuilder(inputShape []int, rng *rand.Rand) *Builder {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	b := &Builder{
		inputShape: append([]int(nil), inputShape...),
		shape:      append([]int(nil), inputShape...),
		names:      make(map[string]bool),
		rng:        rng,
	}
	for _, d := range inputShape {
		if d <= 0 {
			b.err = fmt.Errorf("invalid input shape %v", inputShape)
		}
	}
	if len(inputShape) == 0 {
		b.err = fmt.Errorf("empty input shape")
	}
	return b
}

func (b *Builder) spatial(name string) (c, h, w int, ok bool) {
	if b.err != nil {
		return 0, 0, 0, false
	}
	if len(b.shape) != 3 {
		b.err = fmt.Errorf("layer %s needs a CHW input, got shape %v", name, b.shape)
		return 0, 0, 0, false
	}
	return b.shape[0], b.shape[1], b.shape[2], true
}

func (b *Builder) window(name string, kernelSize, stride, padding int) bool {
	if b.err != nil {
		return false
	}
	if kernelSize <= 0 || stride <= 0 || padding < 0 {
		b.err = fmt.Errorf("layer %s: invalid window kernel=%d stride=%d padding=%d", name, kernelSize, stride, padding)
		return false
	}
	return true
}

// Conv2D appends a linear convolution
func (b *Builder) Conv2D(name string, filters, kernelSize, stride, padding int) *Builder {
	return b.Conv2DActivation(name, filters, kernelSize, stride, padding, ActivationLinear)
}

// Conv2DActivation appends a convolution with a fused activation
func (b *Builder) Conv2DActivation(name string, filters, kernelSize, stride, padding int, act ActivationType) *Builder {
	c, h, w, ok := b.spatial(name)
	if !ok || !b.window(name, kernelSize, stride, padding) {
		return b
	}
	if filters <= 0 {
		b.err = fmt.Errorf("layer %s: invalid filter count %d", name, filters)
		return b
	}
	return b.Add(InitConv2DLayer(name, h, w, c, kernelSize, stride, padding, filters, act, b.rng))
}

// ReLU appends a standalone rectifying layer
func (b *Builder) ReLU(name string) *Builder {
	return b.Activation(name, ActivationReLU)
}

// Activation appends a standalone element-wise activation layer
func (b *Builder) Activation(name string, act ActivationType) *Builder {
	if b.err != nil {
		return b
	}
	return b.Add(LayerConfig{
		Name:        name,
		Type:        LayerActivation,
		Activation:  act,
		InputShape:  append([]int(nil), b.shape...),
		OutputShape: append([]int(nil), b.shape...),
	})
}

// MaxPool2D appends a max-pooling layer
func (b *Builder) MaxPool2D(name string, kernelSize, stride int) *Builder {
	c, h, w, ok := b.spatial(name)
	if !ok || !b.window(name, kernelSize, stride, 0) {
		return b
	}
	return b.Add(InitMaxPool2DLayer(name, c, h, w, kernelSize, stride))
}

// Dense appends a linear fully-connected layer, flattening its input
func (b *Builder) Dense(name string, outputs int) *Builder {
	return b.DenseActivation(name, outputs, ActivationLinear)
}

// DenseActivation appends a fully-connected layer with a fused activation
func (b *Builder) DenseActivation(name string, outputs int, act ActivationType) *Builder {
	if b.err != nil {
		return b
	}
	if outputs <= 0 {
		b.err = fmt.Errorf("layer %s: invalid output size %d", name, outputs)
		return b
	}
	return b.Add(InitDenseLayer(name, b.shape, outputs, act, b.rng))
}

// Shape returns the shape produced by the last layer added
func (b *Builder) Shape() []int {
	return append([]int(nil), b.shape...)
}

// Add appends a prebuilt layer. Its InputShape must hold as many elements as
// the current shape.
func (b *Builder) Add(cfg LayerConfig) *Builder {
	if b.err != nil {
		return b
	}
	switch {
	case cfg.Name == "":
		b.err = fmt.Errorf("layer %d has no name", len(b.layers))
	case b.names[cfg.Name]:
		b.err = fmt.Errorf("duplicate layer name %q", cfg.Name)
	case numElements(cfg.InputShape) != numElements(b.shape):
		b.err = fmt.Errorf("%w: layer %s expects input %v, previous layer produces %v",
			ErrShapeMismatch, cfg.Name, cfg.InputShape, b.shape)
	}
	if b.err != nil {
		return b
	}
	for _, d := range cfg.OutputShape {
		if d <= 0 {
			b.err = fmt.Errorf("layer %s has invalid output shape %v", cfg.Name, cfg.OutputShape)
			return b
		}
	}
	if len(cfg.OutputShape) == 0 {
		b.err = fmt.Errorf("layer %s has no output shape", cfg.Name)
		return b
	}
	b.names[cfg.Name] = true
	b.layers = append(b.layers, cfg)
	b.shape = append([]int(nil), cfg.OutputShape...)
	return b
}

// Build returns the network, or the first error met while building
func (b *Builder) Build() (*Network, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.layers) == 0 {
		return nil, fmt.Errorf("network has no layers")
	}
	return NewNetwork(b.inputShape, b.layers), nil
}
