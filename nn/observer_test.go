package nn

import (
	"testing"
)

// TestChannelObserverEvents verifies one event per layer and direction
func TestChannelObserverEvents(t *testing.T) {
	net := smallNetwork(t)
	obs := NewChannelObserver(32)
	net.SetObserver(obs)

	if _, _, err := net.ForwardCPU(randomInput(72, 40)); err != nil {
		t.Fatalf("ForwardCPU failed: %v", err)
	}
	if _, _, err := net.BackwardCPU(5, 3, make([]float32, 4)); err != nil {
		t.Fatalf("BackwardCPU failed: %v", err)
	}
	close(obs.Events)

	var forward, backward []LayerEvent
	for ev := range obs.Events {
		switch ev.Type {
		case "forward":
			forward = append(forward, ev)
		case "backward":
			backward = append(backward, ev)
		}
	}
	if len(forward) != 6 {
		t.Errorf("expected 6 forward events, got %d", len(forward))
	}
	if len(backward) != 3 {
		t.Fatalf("expected 3 backward events, got %d", len(backward))
	}
	if backward[0].LayerName != "fc2" || backward[2].LayerName != "fc1" {
		t.Errorf("expected backward order fc2..fc1, got %s..%s", backward[0].LayerName, backward[2].LayerName)
	}
	if forward[1].Stats.MinActivation < 0 {
		t.Errorf("relu output should be non-negative, got min %v", forward[1].Stats.MinActivation)
	}
	if forward[0].Stats.TotalNeurons != 108 {
		t.Errorf("expected 108 conv outputs, got %d", forward[0].Stats.TotalNeurons)
	}
}

// TestChannelObserverDropsWhenFull verifies a full buffer never blocks a pass
func TestChannelObserverDropsWhenFull(t *testing.T) {
	net := smallNetwork(t)
	obs := NewChannelObserver(2)
	net.SetObserver(obs)
	if _, _, err := net.ForwardCPU(randomInput(72, 41)); err != nil {
		t.Fatalf("ForwardCPU failed: %v", err)
	}
	if len(obs.Events) != 2 {
		t.Errorf("expected 2 buffered events, got %d", len(obs.Events))
	}

	net.SetObserver(nil)
	clone := net.Clone()
	for i := range clone.Layers {
		if clone.Layers[i].Observer != nil {
			t.Fatalf("layer %d: clone should not carry observers", i)
		}
	}
}
