package nn

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
)

// TestModelRoundTrip verifies a saved model reloads with identical outputs
func TestModelRoundTrip(t *testing.T) {
	net := smallNetwork(t)
	path := filepath.Join(t.TempDir(), "model.json")
	if err := net.SaveModel(path, "small"); err != nil {
		t.Fatalf("SaveModel failed: %v", err)
	}

	loaded, err := LoadModel(path, "small")
	if err != nil {
		t.Fatalf("LoadModel failed: %v", err)
	}
	if loaded.TotalLayers() != net.TotalLayers() {
		t.Fatalf("expected %d layers, got %d", net.TotalLayers(), loaded.TotalLayers())
	}
	for i := range net.Layers {
		a, b := net.Layers[i], loaded.Layers[i]
		if a.Name != b.Name || a.Type != b.Type || a.Activation != b.Activation {
			t.Errorf("layer %d: expected %s/%s/%s, got %s/%s/%s", i,
				a.Name, a.Type, a.Activation, b.Name, b.Type, b.Activation)
		}
		if !ShapesEqual(a.OutputShape, b.OutputShape) {
			t.Errorf("layer %d: expected shape %v, got %v", i, a.OutputShape, b.OutputShape)
		}
	}

	in := randomInput(72, 30)
	want, _, err := net.ForwardCPU(in)
	if err != nil {
		t.Fatalf("ForwardCPU failed: %v", err)
	}
	got, _, err := loaded.ForwardCPU(in)
	if err != nil {
		t.Fatalf("loaded ForwardCPU failed: %v", err)
	}
	if diff := MaxAbsDiff(want, got); diff != 0 {
		t.Errorf("outputs differ by %g", diff)
	}

	if _, err := LoadModel(path, "other"); err == nil {
		t.Error("expected an error for a missing model id")
	}
	if _, err := UnmarshalModel([]byte(`{"type":"something-else"}`), "small"); err == nil {
		t.Error("expected an error for a foreign bundle")
	}
}

// TestLoadWeightsTransposesDense verifies PyTorch [out, in] dense weights
func TestLoadWeightsTransposesDense(t *testing.T) {
	net, err := NewBuilder([]int{3}, nil).Dense("fc", 2).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	path := filepath.Join(t.TempDir(), "w.safetensors")
	err = SaveSafetensors(path, map[string]TensorWithShape{
		"fc.weight": {Values: []float32{1, 2, 3, 4, 5, 6}, Shape: []int{2, 3}},
		"fc.bias":   {Values: []float32{0.5, -0.5}, Shape: []int{2}},
		"other":     {Values: []float32{9}, Shape: []int{1}},
	}, nil)
	if err != nil {
		t.Fatalf("SaveSafetensors failed: %v", err)
	}

	n, err := net.LoadSafetensorsWeights(path)
	if err != nil {
		t.Fatalf("LoadSafetensorsWeights failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 layer loaded, got %d", n)
	}

	out, _, err := net.ForwardCPU([]float32{1, 1, 1})
	if err != nil {
		t.Fatalf("ForwardCPU failed: %v", err)
	}
	if out[0] != 6.5 || out[1] != 14.5 {
		t.Errorf("expected [6.5 14.5], got %v", out)
	}

	exported := net.WeightTensors()["fc.weight"]
	if !ShapesEqual(exported.Shape, []int{2, 3}) || exported.Values[1] != 2 || exported.Values[3] != 4 {
		t.Errorf("unexpected exported weight %+v", exported)
	}

	_, err = net.LoadWeights(map[string]TensorWithShape{
		"fc.weight": {Values: make([]float32, 6), Shape: []int{3, 2}},
	})
	if !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("expected ErrShapeMismatch, got %v", err)
	}
}

// TestSafetensorsDTypes verifies every supported payload type decodes
func TestSafetensorsDTypes(t *testing.T) {
	values := []float32{0, 1, -2.5, 0.333333, 65504, 1e-6}
	tensors := map[string]TensorWithShape{}
	for _, dt := range []string{"F32", "F64", "F16", "BF16"} {
		tensors[dt] = TensorWithShape{Values: values, Shape: []int{2, 3}, DType: dt}
	}

	blob, err := SerializeSafetensors(tensors, map[string]string{"source": "test"})
	if err != nil {
		t.Fatalf("SerializeSafetensors failed: %v", err)
	}
	got, meta, err := ParseSafetensors(blob)
	if err != nil {
		t.Fatalf("ParseSafetensors failed: %v", err)
	}
	if meta["source"] != "test" {
		t.Errorf("expected metadata to survive, got %v", meta)
	}

	tolerance := map[string]float64{"F32": 0, "F64": 0, "F16": 1e-3, "BF16": 1e-2}
	for dt, tol := range tolerance {
		tensor := got[dt]
		if tensor.DType != dt || !ShapesEqual(tensor.Shape, []int{2, 3}) {
			t.Errorf("%s: unexpected header %s %v", dt, tensor.DType, tensor.Shape)
			continue
		}
		for i, want := range values {
			if want == 1e-6 && dt != "F32" && dt != "F64" {
				continue
			}
			diff := math.Abs(float64(tensor.Values[i] - want))
			if diff > tol*math.Max(1, math.Abs(float64(want))) {
				t.Errorf("%s[%d]: expected %v, got %v", dt, i, want, tensor.Values[i])
			}
		}
	}

	if _, err := SerializeSafetensors(map[string]TensorWithShape{"__metadata__": {}}, nil); err == nil {
		t.Error("expected an error for the reserved tensor name")
	}
	if _, _, err := ParseSafetensors([]byte{1, 2, 3}); err == nil {
		t.Error("expected an error for truncated data")
	}
}

// TestFloat16Conversions verifies round-trips at notable values
func TestFloat16Conversions(t *testing.T) {
	for _, v := range []float32{0, 1, -1, 0.5, 2048, 65504, 6.1035156e-05, 5.9604645e-08} {
		if got := float16ToFloat32(float32ToFloat16(v)); got != v {
			t.Errorf("f16 round-trip of %v gave %v", v, got)
		}
	}
	if got := float16ToFloat32(float32ToFloat16(1e6)); !math.IsInf(float64(got), 1) {
		t.Errorf("expected overflow to +Inf, got %v", got)
	}
	for _, v := range []float32{0, 1, -3, 0.5, 256} {
		if got := bfloat16ToFloat32(float32ToBFloat16(v)); got != v {
			t.Errorf("bf16 round-trip of %v gave %v", v, got)
		}
	}
}
