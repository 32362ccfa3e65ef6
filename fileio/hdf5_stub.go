//go:build !hdf5

package fileio

func readH5(path string, layers []string) (map[string]LayerActivation, error) {
	return nil, ErrNoHDF5
}

func writeH5(path string, acts map[string]LayerActivation) error {
	return ErrNoHDF5
}

func layersH5(path string) ([]string, error) {
	return nil, ErrNoHDF5
}
