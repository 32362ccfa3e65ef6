package fileio

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/openfluke/saliency/nn"
)

// ErrLayerNotFound is returned when Read asks for a layer the file lacks
var ErrLayerNotFound = errors.New("layer not in activation file")

// ErrNoHDF5 is returned for .h5 files when the package is built without the
// hdf5 tag
var ErrNoHDF5 = errors.New("hdf5 support not built in (build with -tags hdf5)")

const (
	dataSuffix     = "/data"
	rawShapeSuffix = "/raw_shape"
)

// LayerActivation is the stored activation of one layer. Shape is the
// layout of Data on disk; RawShape is the tensor shape before storage
// (e.g. [stimuli, channels, height, width] flattened to [stimuli, units]).
type LayerActivation struct {
	Data     []float32
	Shape    []int
	RawShape []int
}

// ActivationFile stores per-layer activations. Paths ending in .h5 or .hdf5
// use the HDF5 layout: one group per layer holding a "data" dataset and a
// "raw_shape" attribute. Other paths use a safetensors container: tensor
// "<layer>/data" holds the values and header metadata key "<layer>/raw_shape"
// holds the raw shape as a JSON array.
type ActivationFile struct {
	Path string
}

// NewActivationFile returns a handle for the file at path
func NewActivationFile(path string) *ActivationFile {
	return &ActivationFile{Path: path}
}

// IsHDF5 reports whether the file uses the HDF5 layout
func (f *ActivationFile) IsHDF5() bool {
	switch strings.ToLower(filepath.Ext(f.Path)) {
	case ".h5", ".hdf5":
		return true
	}
	return false
}

// Read loads the named layers, or every layer when none are named
func (f *ActivationFile) Read(layers ...string) (map[string]LayerActivation, error) {
	if f.IsHDF5() {
		acts, err := readH5(f.Path, layers)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Path, err)
		}
		return acts, nil
	}

	tensors, metadata, err := nn.LoadSafetensors(f.Path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Path, err)
	}

	if len(layers) == 0 {
		layers = layerNames(tensors)
	}

	out := make(map[string]LayerActivation, len(layers))
	for _, layer := range layers {
		t, ok := tensors[layer+dataSuffix]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrLayerNotFound, layer)
		}
		act := LayerActivation{
			Data:  t.Values,
			Shape: append([]int(nil), t.Shape...),
		}
		if raw, ok := metadata[layer+rawShapeSuffix]; ok {
			if err := json.Unmarshal([]byte(raw), &act.RawShape); err != nil {
				return nil, fmt.Errorf("%s: layer %s: bad raw_shape %q: %w", f.Path, layer, raw, err)
			}
		} else {
			act.RawShape = append([]int(nil), t.Shape...)
		}
		out[layer] = act
	}
	return out, nil
}

// Write replaces the file with acts
func (f *ActivationFile) Write(acts map[string]LayerActivation) error {
	acts, err := normalizeActivations(acts)
	if err != nil {
		return err
	}
	if f.IsHDF5() {
		if err := writeH5(f.Path, acts); err != nil {
			return fmt.Errorf("%s: %w", f.Path, err)
		}
		return nil
	}

	tensors := make(map[string]nn.TensorWithShape, len(acts))
	metadata := make(map[string]string, len(acts))
	for layer, act := range acts {
		raw, err := json.Marshal(act.RawShape)
		if err != nil {
			return err
		}
		tensors[layer+dataSuffix] = nn.TensorWithShape{Values: act.Data, Shape: act.Shape, DType: "F32"}
		metadata[layer+rawShapeSuffix] = string(raw)
	}

	data, err := nn.SerializeSafetensors(tensors, metadata)
	if err != nil {
		return fmt.Errorf("%s: %w", f.Path, err)
	}
	if err := os.WriteFile(f.Path, data, 0644); err != nil {
		return fmt.Errorf("failed to write activation file: %w", err)
	}
	return nil
}

// normalizeActivations checks every layer and fills in missing shapes
func normalizeActivations(acts map[string]LayerActivation) (map[string]LayerActivation, error) {
	out := make(map[string]LayerActivation, len(acts))
	for layer, act := range acts {
		if layer == "" || strings.Contains(layer, "/") {
			return nil, fmt.Errorf("invalid layer name %q", layer)
		}
		shape := act.Shape
		if len(shape) == 0 {
			shape = []int{len(act.Data)}
		}
		if size := shapeSize(shape); size != len(act.Data) {
			return nil, fmt.Errorf("%w: layer %s has %d values for shape %v", nn.ErrShapeMismatch, layer, len(act.Data), shape)
		}
		rawShape := act.RawShape
		if len(rawShape) == 0 {
			rawShape = shape
		}
		if shapeSize(rawShape) != len(act.Data) {
			return nil, fmt.Errorf("%w: layer %s raw shape %v does not hold %d values",
				nn.ErrShapeMismatch, layer, rawShape, len(act.Data))
		}
		out[layer] = LayerActivation{Data: act.Data, Shape: shape, RawShape: rawShape}
	}
	return out, nil
}

// Layers lists the layers stored in the file, sorted by name
func (f *ActivationFile) Layers() ([]string, error) {
	if f.IsHDF5() {
		layers, err := layersH5(f.Path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Path, err)
		}
		return layers, nil
	}
	tensors, _, err := nn.LoadSafetensors(f.Path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Path, err)
	}
	return layerNames(tensors), nil
}

func layerNames(tensors map[string]nn.TensorWithShape) []string {
	var names []string
	for name := range tensors {
		if layer, ok := strings.CutSuffix(name, dataSuffix); ok {
			names = append(names, layer)
		}
	}
	sort.Strings(names)
	return names
}

func shapeSize(shape []int) int {
	size := 1
	for _, d := range shape {
		size *= d
	}
	return size
}
