package fileio

import (
	"fmt"

	"github.com/openfluke/saliency/nn"
)

// CollectActivations runs every image through net and stacks the outputs of
// the named layers, one row per image. Each result has Shape [images, units]
// and RawShape [images, ...layer output shape].
func CollectActivations(net *nn.Network, images []*nn.Image, layers ...string) (map[string]LayerActivation, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("no images")
	}

	handles := make([]nn.LayerHandle, len(layers))
	for i, name := range layers {
		h, err := net.Registry().Resolve(name)
		if err != nil {
			return nil, err
		}
		handles[i] = h
	}

	out := make(map[string]LayerActivation, len(layers))
	for _, h := range handles {
		units := shapeSize(h.OutputShape)
		out[h.Name] = LayerActivation{
			Data:     make([]float32, 0, len(images)*units),
			Shape:    []int{len(images), units},
			RawShape: append([]int{len(images)}, h.OutputShape...),
		}
	}

	net.Lock()
	defer net.Unlock()
	for i, img := range images {
		if _, _, err := net.ForwardCPU(img.Data); err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
		for _, h := range handles {
			act := out[h.Name]
			act.Data = append(act.Data, net.Activation(h.Index)...)
			out[h.Name] = act
		}
	}
	return out, nil
}
