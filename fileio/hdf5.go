//go:build hdf5

package fileio

import (
	"fmt"
	"sort"

	"gonum.org/v1/hdf5"
)

const (
	h5Data     = "data"
	h5RawShape = "raw_shape"
)

func readH5(path string, layers []string) (map[string]LayerActivation, error) {
	f, err := hdf5.OpenFile(path, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, fmt.Errorf("failed to open activation file: %w", err)
	}
	defer f.Close()

	stored, err := h5Groups(f)
	if err != nil {
		return nil, err
	}
	if len(layers) == 0 {
		layers = stored
	}
	present := make(map[string]bool, len(stored))
	for _, name := range stored {
		present[name] = true
	}

	out := make(map[string]LayerActivation, len(layers))
	for _, layer := range layers {
		if !present[layer] {
			return nil, fmt.Errorf("%w: %s", ErrLayerNotFound, layer)
		}
		act, err := readH5Layer(f, layer)
		if err != nil {
			return nil, fmt.Errorf("layer %s: %w", layer, err)
		}
		out[layer] = act
	}
	return out, nil
}

func readH5Layer(f *hdf5.File, layer string) (LayerActivation, error) {
	var act LayerActivation

	g, err := f.OpenGroup(layer)
	if err != nil {
		return act, err
	}
	defer g.Close()

	dset, err := g.OpenDataset(h5Data)
	if err != nil {
		return act, err
	}
	defer dset.Close()

	space := dset.Space()
	defer space.Close()
	dims, _, err := space.SimpleExtentDims()
	if err != nil {
		return act, err
	}
	act.Shape = make([]int, len(dims))
	for i, d := range dims {
		act.Shape[i] = int(d)
	}

	if act.Data, err = readH5Floats(dset, shapeSize(act.Shape)); err != nil {
		return act, err
	}

	attr, err := g.OpenAttribute(h5RawShape)
	if err != nil {
		// files without raw_shape store the tensor unflattened
		act.RawShape = append([]int(nil), act.Shape...)
		return act, nil
	}
	defer attr.Close()
	aspace := attr.Space()
	defer aspace.Close()
	raw := make([]int64, aspace.SimpleExtentNPoints())
	if err := attr.Read(&raw, hdf5.T_NATIVE_INT64); err != nil {
		return act, fmt.Errorf("bad raw_shape: %w", err)
	}
	act.RawShape = make([]int, len(raw))
	for i, d := range raw {
		act.RawShape[i] = int(d)
	}
	return act, nil
}

// readH5Floats reads a float32 or float64 dataset as float32
func readH5Floats(dset *hdf5.Dataset, n int) ([]float32, error) {
	dtype, err := dset.Datatype()
	if err != nil {
		return nil, err
	}
	defer dtype.Close()
	if dtype.Class() != hdf5.T_FLOAT {
		return nil, fmt.Errorf("data is not floating point")
	}

	switch dtype.Size() {
	case 4:
		data := make([]float32, n)
		if err := dset.Read(&data); err != nil {
			return nil, err
		}
		return data, nil
	case 8:
		wide := make([]float64, n)
		if err := dset.Read(&wide); err != nil {
			return nil, err
		}
		data := make([]float32, n)
		for i, v := range wide {
			data[i] = float32(v)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported float width %d", dtype.Size())
	}
}

func writeH5(path string, acts map[string]LayerActivation) (err error) {
	f, err := hdf5.CreateFile(path, hdf5.F_ACC_TRUNC)
	if err != nil {
		return fmt.Errorf("failed to create activation file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	layers := make([]string, 0, len(acts))
	for layer := range acts {
		layers = append(layers, layer)
	}
	sort.Strings(layers)
	for _, layer := range layers {
		if err := writeH5Layer(f, layer, acts[layer]); err != nil {
			return fmt.Errorf("layer %s: %w", layer, err)
		}
	}
	return nil
}

func writeH5Layer(f *hdf5.File, layer string, act LayerActivation) error {
	g, err := f.CreateGroup(layer)
	if err != nil {
		return err
	}
	defer g.Close()

	dims := make([]uint, len(act.Shape))
	for i, d := range act.Shape {
		dims[i] = uint(d)
	}
	space, err := hdf5.CreateSimpleDataspace(dims, nil)
	if err != nil {
		return err
	}
	defer space.Close()
	dset, err := g.CreateDataset(h5Data, hdf5.T_NATIVE_FLOAT, space)
	if err != nil {
		return err
	}
	defer dset.Close()
	if err := dset.Write(&act.Data); err != nil {
		return err
	}

	raw := make([]int64, len(act.RawShape))
	for i, d := range act.RawShape {
		raw[i] = int64(d)
	}
	aspace, err := hdf5.CreateSimpleDataspace([]uint{uint(len(raw))}, nil)
	if err != nil {
		return err
	}
	defer aspace.Close()
	attr, err := g.CreateAttribute(h5RawShape, hdf5.T_NATIVE_INT64, aspace)
	if err != nil {
		return err
	}
	defer attr.Close()
	return attr.Write(&raw, hdf5.T_NATIVE_INT64)
}

func layersH5(path string) ([]string, error) {
	f, err := hdf5.OpenFile(path, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, fmt.Errorf("failed to open activation file: %w", err)
	}
	defer f.Close()
	return h5Groups(f)
}

// h5Groups lists the top-level groups, sorted by name
func h5Groups(f *hdf5.File) ([]string, error) {
	n, err := f.NumObjects()
	if err != nil {
		return nil, err
	}
	var names []string
	for i := uint(0); i < n; i++ {
		kind, err := f.ObjectTypeByIndex(i)
		if err != nil {
			return nil, err
		}
		if kind != hdf5.H5G_GROUP {
			continue
		}
		name, err := f.ObjectNameByIndex(i)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
