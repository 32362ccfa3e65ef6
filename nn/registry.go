package nn

import (
	"fmt"
)

// LayerHandle is a resolved reference to one layer of a network
type LayerHandle struct {
	Index       int
	Name        string
	Type        LayerType
	Activation  ActivationType
	InputShape  []int
	OutputShape []int
}

// IsRectifying reports whether the layer applies a rectifying nonlinearity,
// either as a standalone activation layer or fused into a conv or dense layer.
func (h LayerHandle) IsRectifying() bool {
	switch h.Type {
	case LayerActivation, LayerConv2D, LayerDense:
		return h.Activation.IsRectifying()
	}
	return false
}

// IsFused reports whether the layer's activation is applied inside a conv or
// dense layer rather than by a layer of its own.
func (h LayerHandle) IsFused() bool {
	return h.Type == LayerConv2D || h.Type == LayerDense
}

// Units returns the number of addressable target units: channels for CHW
// outputs, elements for flat outputs.
func (h LayerHandle) Units() int {
	if len(h.OutputShape) == 0 {
		return 0
	}
	return h.OutputShape[0]
}

// Registry resolves layer names to positions in the forward order
type Registry struct {
	handles []LayerHandle
	byName  map[string]int
}

func newRegistry(layers []LayerConfig) *Registry {
	r := &Registry{
		handles: make([]LayerHandle, len(layers)),
		byName:  make(map[string]int, len(layers)),
	}
	for i, l := range layers {
		r.handles[i] = LayerHandle{
			Index:       i,
			Name:        l.Name,
			Type:        l.Type,
			Activation:  l.Activation,
			InputShape:  l.InputShape,
			OutputShape: l.OutputShape,
		}
		if l.Name != "" {
			r.byName[l.Name] = i
		}
	}
	return r
}

// Resolve returns the handle for name
func (r *Registry) Resolve(name string) (LayerHandle, error) {
	idx, ok := r.byName[name]
	if !ok {
		return LayerHandle{}, fmt.Errorf("%w: %q", ErrUnknownLayer, name)
	}
	return r.handles[idx], nil
}

// OrderedBetween returns the layers from start back to end, both inclusive,
// in the order a backward pass visits them.
func (r *Registry) OrderedBetween(start, end string) ([]LayerHandle, error) {
	s, err := r.Resolve(start)
	if err != nil {
		return nil, err
	}
	e, err := r.Resolve(end)
	if err != nil {
		return nil, err
	}
	if e.Index > s.Index {
		return nil, fmt.Errorf("%w: %q comes after %q", ErrInvalidRange, end, start)
	}
	out := make([]LayerHandle, 0, s.Index-e.Index+1)
	for i := s.Index; i >= e.Index; i-- {
		out = append(out, r.handles[i])
	}
	return out, nil
}

// Names returns layer names in forward order
func (r *Registry) Names() []string {
	names := make([]string, len(r.handles))
	for i, h := range r.handles {
		names[i] = h.Name
	}
	return names
}

// Len returns the number of layers
func (r *Registry) Len() int {
	return len(r.handles)
}

// Rectifying keeps only the rectifying layers of handles, preserving order
func Rectifying(handles []LayerHandle) []LayerHandle {
	var out []LayerHandle
	for _, h := range handles {
		if h.IsRectifying() {
			out = append(out, h)
		}
	}
	return out
}
