package nn

import (
	"fmt"
)

// LayerObserver receives per-layer events during forward and backward passes.
// Observers only look; use a HookManager to capture or rewrite tensors.
type LayerObserver interface {
	OnForward(event LayerEvent)
	OnBackward(event LayerEvent)
}

// LayerEvent describes one layer visit
type LayerEvent struct {
	Type      string // "forward" or "backward"
	LayerIdx  int
	LayerName string
	LayerType LayerType
	Stats     LayerStats
	Input     []float32 `json:"-"`
	Output    []float32 `json:"-"` // activation (forward) or input gradient (backward)
}

// LayerStats summarizes an activation or gradient slice
type LayerStats struct {
	AvgActivation float32 `json:"avg"`
	MaxActivation float32 `json:"max"`
	MinActivation float32 `json:"min"`
	ActiveNeurons int     `json:"active"`
	TotalNeurons  int     `json:"total"`
	LayerType     string  `json:"layer_type"`
}

// computeLayerStats calculates summary statistics for an activation slice
func computeLayerStats(data []float32, layerType string, threshold float32) LayerStats {
	if len(data) == 0 {
		return LayerStats{LayerType: layerType}
	}

	var sum float32
	max := data[0]
	min := data[0]
	activeCount := 0

	for _, v := range data {
		sum += v
		if v > max {
			max = v
		}
		if v < min {
			min = v
		}
		if v > threshold {
			activeCount++
		}
	}

	return LayerStats{
		AvgActivation: sum / float32(len(data)),
		MaxActivation: max,
		MinActivation: min,
		ActiveNeurons: activeCount,
		TotalNeurons:  len(data),
		LayerType:     layerType,
	}
}

// notifyObserver sends an event to the layer's observer if one exists
func notifyObserver(config *LayerConfig, eventType string, layerIdx int, input, output []float32) {
	if config.Observer == nil {
		return
	}

	event := LayerEvent{
		Type:      eventType,
		LayerIdx:  layerIdx,
		LayerName: config.Name,
		LayerType: config.Type,
		Stats:     computeLayerStats(output, config.Type.String(), 0.0),
		Input:     input,
		Output:    output,
	}

	if eventType == "forward" {
		config.Observer.OnForward(event)
	} else {
		config.Observer.OnBackward(event)
	}
}

// SetObserver attaches obs to every layer; nil detaches
func (n *Network) SetObserver(obs LayerObserver) {
	for i := range n.Layers {
		n.Layers[i].Observer = obs
	}
}

// ConsoleObserver prints layer events to stdout
type ConsoleObserver struct {
	Verbose bool // If true, print small outputs in full
}

func (o *ConsoleObserver) OnForward(event LayerEvent) {
	fmt.Printf("[FWD] Layer %d %s (%s): avg=%.4f max=%.4f active=%d/%d\n",
		event.LayerIdx, event.LayerName, event.Stats.LayerType,
		event.Stats.AvgActivation, event.Stats.MaxActivation,
		event.Stats.ActiveNeurons, event.Stats.TotalNeurons)

	if o.Verbose && event.Output != nil && len(event.Output) <= 20 {
		fmt.Printf("       Output: %v\n", event.Output)
	}
}

func (o *ConsoleObserver) OnBackward(event LayerEvent) {
	fmt.Printf("[BWD] Layer %d %s (%s): grad_avg=%.4f grad_max=%.4f grad_min=%.4f\n",
		event.LayerIdx, event.LayerName, event.Stats.LayerType,
		event.Stats.AvgActivation, event.Stats.MaxActivation, event.Stats.MinActivation)
}

// ChannelObserver sends events to a Go channel (for internal processing)
type ChannelObserver struct {
	Events chan LayerEvent
}

func NewChannelObserver(bufferSize int) *ChannelObserver {
	return &ChannelObserver{
		Events: make(chan LayerEvent, bufferSize),
	}
}

func (o *ChannelObserver) OnForward(event LayerEvent) {
	select {
	case o.Events <- event:
	default:
		// Channel full, drop event to avoid blocking
	}
}

func (o *ChannelObserver) OnBackward(event LayerEvent) {
	select {
	case o.Events <- event:
	default:
	}
}
