package nn

import (
	"fmt"
	"math/rand"
)

// AlexNetConfig sizes an AlexNet-shaped network. Layer names follow the
// conv1..conv5 / fc1..fc3 convention with _relu and _maxpool suffixes.
type AlexNetConfig struct {
	ImageSize  int    // square input side, 224 for the reference network
	ConvWidths [5]int // output channels of conv1..conv5
	FCWidths   [3]int // output units of fc1..fc3
	Seed       int64  // weight initialization seed
}

// DefaultAlexNetConfig returns the reference AlexNet dimensions
func DefaultAlexNetConfig() AlexNetConfig {
	return AlexNetConfig{
		ImageSize:  224,
		ConvWidths: [5]int{64, 192, 384, 256, 256},
		FCWidths:   [3]int{4096, 4096, 1000},
		Seed:       1,
	}
}

// NewAlexNet builds the feature/classifier stack of AlexNet with randomly
// initialized weights. Load trained parameters with LoadSafetensorsWeights.
func NewAlexNet(cfg AlexNetConfig) (*Network, error) {
	if cfg.ImageSize < 63 {
		return nil, fmt.Errorf("alexnet needs an image size of at least 63, got %d", cfg.ImageSize)
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	cw := cfg.ConvWidths
	fw := cfg.FCWidths

	b := NewBuilder([]int{3, cfg.ImageSize, cfg.ImageSize}, rng).
		Conv2D("conv1", cw[0], 11, 4, 2).ReLU("conv1_relu").MaxPool2D("conv1_maxpool", 3, 2).
		Conv2D("conv2", cw[1], 5, 1, 2).ReLU("conv2_relu").MaxPool2D("conv2_maxpool", 3, 2).
		Conv2D("conv3", cw[2], 3, 1, 1).ReLU("conv3_relu").
		Conv2D("conv4", cw[3], 3, 1, 1).ReLU("conv4_relu").
		Conv2D("conv5", cw[4], 3, 1, 1).ReLU("conv5_relu").MaxPool2D("conv5_maxpool", 3, 2).
		Dense("fc1", fw[0]).ReLU("fc1_relu").
		Dense("fc2", fw[1]).ReLU("fc2_relu").
		Dense("fc3", fw[2])

	return b.Build()
}
