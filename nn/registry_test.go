package nn

import (
	"errors"
	"testing"
)

// TestRegistryResolve verifies names map to forward positions and shapes
func TestRegistryResolve(t *testing.T) {
	net := smallNetwork(t)
	reg := net.Registry()

	if reg.Len() != 6 {
		t.Fatalf("expected 6 layers, got %d", reg.Len())
	}
	pool, err := reg.Resolve("pool1")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if pool.Index != 2 || pool.Type != LayerMaxPool2D {
		t.Errorf("unexpected handle %+v", pool)
	}
	if !ShapesEqual(pool.InputShape, []int{3, 6, 6}) || !ShapesEqual(pool.OutputShape, []int{3, 3, 3}) {
		t.Errorf("unexpected pool shapes in=%v out=%v", pool.InputShape, pool.OutputShape)
	}
	if pool.Units() != 3 {
		t.Errorf("expected 3 units, got %d", pool.Units())
	}

	if _, err := reg.Resolve("conv9"); !errors.Is(err, ErrUnknownLayer) {
		t.Errorf("expected ErrUnknownLayer, got %v", err)
	}

	names := reg.Names()
	want := []string{"conv1", "relu1", "pool1", "fc1", "relu2", "fc2"}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("name %d: expected %s, got %s", i, want[i], names[i])
		}
	}
}

// TestRegistryOrderedBetween verifies backward order and inclusive bounds
func TestRegistryOrderedBetween(t *testing.T) {
	reg := smallNetwork(t).Registry()

	path, err := reg.OrderedBetween("fc2", "relu1")
	if err != nil {
		t.Fatalf("OrderedBetween failed: %v", err)
	}
	want := []string{"fc2", "relu2", "fc1", "pool1", "relu1"}
	if len(path) != len(want) {
		t.Fatalf("expected %d layers, got %d", len(want), len(path))
	}
	for i := range want {
		if path[i].Name != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], path[i].Name)
		}
	}

	rect := Rectifying(path)
	if len(rect) != 2 || rect[0].Name != "relu2" || rect[1].Name != "relu1" {
		t.Errorf("unexpected rectifying layers %v", rect)
	}

	single, err := reg.OrderedBetween("fc1", "fc1")
	if err != nil || len(single) != 1 {
		t.Errorf("expected a single layer, got %v (%v)", single, err)
	}

	if _, err := reg.OrderedBetween("relu1", "fc2"); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("expected ErrInvalidRange, got %v", err)
	}
	if _, err := reg.OrderedBetween("fc2", "nope"); !errors.Is(err, ErrUnknownLayer) {
		t.Errorf("expected ErrUnknownLayer, got %v", err)
	}
}

// TestRectifyingLayers verifies ReLU-family layers qualify, standalone or fused
func TestRectifyingLayers(t *testing.T) {
	h := LayerHandle{Type: LayerActivation, Activation: ActivationReLU}
	if !h.IsRectifying() {
		t.Error("ReLU layer should be rectifying")
	}
	h.Activation = ActivationScaledReLU
	if !h.IsRectifying() {
		t.Error("scaled ReLU layer should be rectifying")
	}
	h.Activation = ActivationTanh
	if h.IsRectifying() {
		t.Error("tanh layer should not be rectifying")
	}
	if h.IsFused() {
		t.Error("activation layer should not be fused")
	}

	h = LayerHandle{Type: LayerConv2D, Activation: ActivationReLU}
	if !h.IsRectifying() || !h.IsFused() {
		t.Error("conv with ReLU should be a fused rectifier")
	}
	h = LayerHandle{Type: LayerDense, Activation: ActivationScaledReLU}
	if !h.IsRectifying() || !h.IsFused() {
		t.Error("dense with scaled ReLU should be a fused rectifier")
	}
	h = LayerHandle{Type: LayerDense, Activation: ActivationLinear}
	if h.IsRectifying() {
		t.Error("linear dense layer should not be rectifying")
	}
	h = LayerHandle{Type: LayerMaxPool2D}
	if h.IsRectifying() {
		t.Error("max pool should not be rectifying")
	}
}
