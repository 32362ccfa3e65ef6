package nn

// ModelTelemetry describes a network's structure
type ModelTelemetry struct {
	ID          string           `json:"id"`
	InputShape  []int            `json:"input_shape"`
	TotalLayers int              `json:"total_layers"`
	TotalParams int              `json:"total_parameters"`
	Layers      []LayerTelemetry `json:"layers"`
}

// LayerTelemetry contains metadata about a specific layer
type LayerTelemetry struct {
	Index      int    `json:"index"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	Activation string `json:"activation,omitempty"`
	Parameters int    `json:"parameters"`
	Rectifying bool   `json:"rectifying,omitempty"`

	InputShape  []int `json:"input_shape"`
	OutputShape []int `json:"output_shape"`
}

// ExtractNetworkBlueprint summarizes every layer of n
func ExtractNetworkBlueprint(n *Network, modelID string) ModelTelemetry {
	telemetry := ModelTelemetry{
		ID:          modelID,
		InputShape:  append([]int(nil), n.InputShape...),
		TotalLayers: len(n.Layers),
		Layers:      make([]LayerTelemetry, 0, len(n.Layers)),
	}

	for i, cfg := range n.Layers {
		tel := LayerTelemetry{
			Index:       i,
			Name:        cfg.Name,
			Type:        cfg.Type.String(),
			Parameters:  len(cfg.Kernel) + len(cfg.Bias),
			Rectifying:  cfg.Type != LayerMaxPool2D && cfg.Activation.IsRectifying(),
			InputShape:  append([]int(nil), cfg.InputShape...),
			OutputShape: append([]int(nil), cfg.OutputShape...),
		}
		if cfg.Type != LayerMaxPool2D {
			tel.Activation = cfg.Activation.String()
		}
		telemetry.Layers = append(telemetry.Layers, tel)
		telemetry.TotalParams += tel.Parameters
	}
	return telemetry
}
