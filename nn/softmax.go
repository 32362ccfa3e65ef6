package nn

import (
	"math"
	"sort"
)

// Softmax converts logits to probabilities. Temperature 0 means 1.
func Softmax(logits []float32, temperature float32) []float32 {
	if len(logits) == 0 {
		return nil
	}
	if temperature == 0 {
		temperature = 1.0
	}

	maxLogit := logits[0] / temperature
	for _, v := range logits {
		if v/temperature > maxLogit {
			maxLogit = v / temperature
		}
	}

	// Numerical stability: subtract max
	probs := make([]float32, len(logits))
	sum := float32(0.0)
	for i, v := range logits {
		probs[i] = float32(math.Exp(float64(v/temperature - maxLogit)))
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

// Ranked is one entry of a TopK result
type Ranked struct {
	Index int
	Value float32
}

// TopK returns the k largest values with their indices, largest first.
// Equal values keep index order.
func TopK(v []float32, k int) []Ranked {
	ranked := make([]Ranked, len(v))
	for i, x := range v {
		ranked[i] = Ranked{Index: i, Value: x}
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].Value > ranked[b].Value
	})
	if k < len(ranked) {
		ranked = ranked[:k]
	}
	return ranked
}
