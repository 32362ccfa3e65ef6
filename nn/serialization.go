package nn

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
)

const (
	bundleType    = "saliency-model"
	bundleVersion = 1
	weightsFormat = "safetensors+base64"
)

// ModelBundle represents a collection of saved models
type ModelBundle struct {
	Type    string       `json:"type"`
	Version int          `json:"version"`
	Models  []SavedModel `json:"models"`
}

// SavedModel represents a single saved model with config and weights
type SavedModel struct {
	ID      string         `json:"id"`
	Config  NetworkConfig  `json:"cfg"`
	Weights EncodedWeights `json:"weights"`
}

// NetworkConfig represents the network architecture
type NetworkConfig struct {
	ID         string            `json:"id"`
	InputShape []int             `json:"input_shape"`
	Layers     []LayerDefinition `json:"layers"`
}

// LayerDefinition defines a single layer's configuration. Shapes are
// re-inferred on load.
type LayerDefinition struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Activation string `json:"activation,omitempty"`

	// Conv2D / MaxPool2D fields
	Filters    int `json:"filters,omitempty"`
	KernelSize int `json:"kernel_size,omitempty"`
	Stride     int `json:"stride,omitempty"`
	Padding    int `json:"padding,omitempty"`

	// Dense fields
	OutputSize int `json:"output_size,omitempty"`
}

// EncodedWeights stores the weights as a base64 safetensors blob
type EncodedWeights struct {
	Format string `json:"fmt"`
	Data   string `json:"data"`
}

// SaveModel writes the network to a JSON bundle file
func (n *Network) SaveModel(filename, modelID string) error {
	data, err := n.MarshalModel(modelID)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}

// MarshalModel encodes the network as a JSON bundle holding a single model
func (n *Network) MarshalModel(modelID string) ([]byte, error) {
	cfg := NetworkConfig{
		ID:         modelID,
		InputShape: n.InputShape,
		Layers:     make([]LayerDefinition, len(n.Layers)),
	}
	for i, l := range n.Layers {
		def := LayerDefinition{
			Name:       l.Name,
			Type:       l.Type.String(),
			Activation: l.Activation.String(),
		}
		switch l.Type {
		case LayerConv2D:
			def.Filters = l.Filters
			def.KernelSize = l.KernelSize
			def.Stride = l.Stride
			def.Padding = l.Padding
		case LayerMaxPool2D:
			def.KernelSize = l.KernelSize
			def.Stride = l.Stride
		case LayerDense:
			def.OutputSize = l.OutputHeight
		}
		cfg.Layers[i] = def
	}

	blob, err := SerializeSafetensors(n.WeightTensors(), map[string]string{"model_id": modelID})
	if err != nil {
		return nil, fmt.Errorf("failed to encode weights: %w", err)
	}

	bundle := ModelBundle{
		Type:    bundleType,
		Version: bundleVersion,
		Models: []SavedModel{{
			ID:     modelID,
			Config: cfg,
			Weights: EncodedWeights{
				Format: weightsFormat,
				Data:   base64.StdEncoding.EncodeToString(blob),
			},
		}},
	}
	return json.MarshalIndent(bundle, "", "  ")
}

// LoadModel reads the model with modelID from a JSON bundle file
func LoadModel(filename, modelID string) (*Network, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}
	return UnmarshalModel(data, modelID)
}

// UnmarshalModel decodes the model with modelID from bundle bytes
func UnmarshalModel(data []byte, modelID string) (*Network, error) {
	var bundle ModelBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("failed to parse model bundle: %w", err)
	}
	if bundle.Type != bundleType {
		return nil, fmt.Errorf("unexpected bundle type %q", bundle.Type)
	}

	for _, m := range bundle.Models {
		if m.ID != modelID {
			continue
		}
		net, err := buildFromConfig(m.Config)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", modelID, err)
		}
		if m.Weights.Format != weightsFormat {
			return nil, fmt.Errorf("model %s: unsupported weights format %q", modelID, m.Weights.Format)
		}
		blob, err := base64.StdEncoding.DecodeString(m.Weights.Data)
		if err != nil {
			return nil, fmt.Errorf("model %s: failed to decode weights: %w", modelID, err)
		}
		tensors, _, err := ParseSafetensors(blob)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", modelID, err)
		}
		if _, err := net.LoadWeights(tensors); err != nil {
			return nil, fmt.Errorf("model %s: %w", modelID, err)
		}
		return net, nil
	}
	return nil, fmt.Errorf("model %s not found in bundle", modelID)
}

func buildFromConfig(cfg NetworkConfig) (*Network, error) {
	b := NewBuilder(cfg.InputShape, nil)
	for _, def := range cfg.Layers {
		lt, err := ParseLayerType(def.Type)
		if err != nil {
			return nil, fmt.Errorf("layer %s: %w", def.Name, err)
		}
		act, err := ParseActivation(def.Activation)
		if err != nil {
			return nil, fmt.Errorf("layer %s: %w", def.Name, err)
		}
		switch lt {
		case LayerConv2D:
			b.Conv2DActivation(def.Name, def.Filters, def.KernelSize, def.Stride, def.Padding, act)
		case LayerDense:
			b.DenseActivation(def.Name, def.OutputSize, act)
		case LayerActivation:
			b.Activation(def.Name, act)
		case LayerMaxPool2D:
			b.MaxPool2D(def.Name, def.KernelSize, def.Stride)
		}
	}
	return b.Build()
}
