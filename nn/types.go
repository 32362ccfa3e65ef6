package nn

import (
	"sync"
)

// ActivationType defines the activation function used in a layer
type ActivationType int

const (
	ActivationScaledReLU ActivationType = 0 // v * 1.1, then ReLU
	ActivationSigmoid    ActivationType = 1 // 1 / (1 + exp(-v))
	ActivationTanh       ActivationType = 2 // tanh(v)
	ActivationSoftplus   ActivationType = 3 // log(1 + exp(v))
	ActivationLeakyReLU  ActivationType = 4 // v if v >= 0, else v * 0.1
	ActivationLinear     ActivationType = 5 // identity
	ActivationReLU       ActivationType = 6 // max(0, v)
)

// LayerType defines the type of neural network layer
type LayerType int

const (
	LayerDense      LayerType = 0 // Dense/Fully-connected layer
	LayerConv2D     LayerType = 1 // 2D Convolutional layer
	LayerActivation LayerType = 2 // Standalone element-wise nonlinearity
	LayerMaxPool2D  LayerType = 3 // 2D max pooling
)

// LayerConfig holds configuration for one named layer of the network
type LayerConfig struct {
	Name       string
	Type       LayerType
	Activation ActivationType

	// Conv2D / MaxPool2D parameters
	KernelSize int       // Size of convolution or pooling window (e.g., 3 for 3x3)
	Stride     int       // Stride for convolution or pooling
	Padding    int       // Padding for convolution
	Filters    int       // Number of output filters/channels
	Kernel     []float32 // Conv: [filters][inChannels][kernelH][kernelW], Dense: [inputSize][outputSize]
	Bias       []float32 // Bias terms [filters] or [outputSize]

	// Shape information
	InputHeight   int // Dense: input size
	InputWidth    int
	InputChannels int
	OutputHeight  int // Dense: output size
	OutputWidth   int

	// Shapes of the tensors consumed and produced by the layer, CHW or flat
	InputShape  []int
	OutputShape []int

	// Observer receives forward/backward events for this layer (optional)
	Observer LayerObserver `json:"-"`
}

// Network is an ordered chain of named layers evaluated on CPU.
// A Network is not safe for concurrent passes; use Lock/Unlock or Clone.
type Network struct {
	InputShape []int // CHW shape of the network input
	BatchSize  int   // always 1 for attribution passes

	// Layer configuration in forward order
	Layers []LayerConfig

	// activations[0] = input, activations[i] = output of layer i-1
	activations [][]float32

	// Storage for pre-activation values (needed for derivatives)
	preActivations [][]float32

	// Max-pool argmax positions per layer
	poolIndices [][]int

	hooks    *hookTable
	registry *Registry

	mu sync.Mutex
}

// NewNetwork creates a network over the given layers. Shapes must already be
// filled in; use a Builder to infer them.
func NewNetwork(inputShape []int, layers []LayerConfig) *Network {
	n := &Network{
		InputShape: append([]int(nil), inputShape...),
		BatchSize:  1,
		Layers:     layers,
	}
	n.resetBuffers()
	n.hooks = newHookTable()
	n.registry = newRegistry(n.Layers)
	return n
}

func (n *Network) resetBuffers() {
	total := len(n.Layers)
	n.activations = make([][]float32, total+1) // +1 for input
	n.preActivations = make([][]float32, total)
	n.poolIndices = make([][]int, total)
}

// TotalLayers returns the number of layers in the network
func (n *Network) TotalLayers() int {
	return len(n.Layers)
}

// GetLayer returns the layer configuration at the given forward index
func (n *Network) GetLayer(idx int) *LayerConfig {
	if idx >= 0 && idx < len(n.Layers) {
		return &n.Layers[idx]
	}
	return nil
}

// Registry returns the name lookup for this network's layers
func (n *Network) Registry() *Registry {
	return n.registry
}

// Lock acquires exclusive use of the network for one forward/backward pass.
func (n *Network) Lock() { n.mu.Lock() }

// Unlock releases the network.
func (n *Network) Unlock() { n.mu.Unlock() }

// Clone returns a network that shares layer weights read-only but owns its
// activation buffers and interception table. Observers are not carried over.
func (n *Network) Clone() *Network {
	layers := make([]LayerConfig, len(n.Layers))
	copy(layers, n.Layers)
	for i := range layers {
		layers[i].Observer = nil
	}
	return NewNetwork(n.InputShape, layers)
}

// Activation returns the stored output of layer idx from the last forward pass
func (n *Network) Activation(idx int) []float32 {
	if idx < 0 || idx+1 >= len(n.activations) {
		return nil
	}
	return n.activations[idx+1]
}

func numElements(shape []int) int {
	if len(shape) == 0 {
		return 0
	}
	total := 1
	for _, d := range shape {
		total *= d
	}
	return total
}

// ShapesEqual reports whether two shapes are identical
func ShapesEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
