package saliency

import (
	"fmt"

	"github.com/openfluke/saliency/nn"
)

// Map is an attribution map: the gradient of the target unit over the input
// of the stop layer, stored row-major with the layer's input shape.
type Map struct {
	Layer string
	Shape []int
	Data  []float32
}

// Size returns the element count implied by Shape
func (m *Map) Size() int {
	if len(m.Shape) == 0 {
		return 0
	}
	size := 1
	for _, d := range m.Shape {
		size *= d
	}
	return size
}

// Clone returns a deep copy
func (m *Map) Clone() *Map {
	return &Map{
		Layer: m.Layer,
		Shape: append([]int(nil), m.Shape...),
		Data:  append([]float32(nil), m.Data...),
	}
}

// AbsMax collapses the channel axis of a CHW map by taking the largest
// absolute value at every position. Maps without three axes are returned
// as absolute values unchanged in shape.
func (m *Map) AbsMax() *Map {
	if len(m.Shape) != 3 {
		out := m.Clone()
		for i, v := range out.Data {
			if v < 0 {
				out.Data[i] = -v
			}
		}
		return out
	}
	c, h, w := m.Shape[0], m.Shape[1], m.Shape[2]
	plane := h * w
	data := make([]float32, plane)
	for ch := 0; ch < c; ch++ {
		for i, v := range m.Data[ch*plane : (ch+1)*plane] {
			if v < 0 {
				v = -v
			}
			if v > data[i] {
				data[i] = v
			}
		}
	}
	return &Map{Layer: m.Layer, Shape: []int{1, h, w}, Data: data}
}

// Normalized returns a copy scaled to [0, 1]
func (m *Map) Normalized() *Map {
	out := m.Clone()
	out.Data = nn.Normalize(m.Data)
	return out
}

// Agreement returns the Pearson and Spearman correlation between two maps of
// the same shape.
func (m *Map) Agreement(other *Map) (pearson, spearman float64, err error) {
	if !nn.ShapesEqual(m.Shape, other.Shape) {
		return 0, 0, fmt.Errorf("%w: maps %v and %v", ErrShapeMismatch, m.Shape, other.Shape)
	}
	if pearson, err = nn.PearsonCorrelation(m.Data, other.Data); err != nil {
		return 0, 0, err
	}
	if spearman, err = nn.SpearmanCorrelation(m.Data, other.Data); err != nil {
		return 0, 0, err
	}
	return pearson, spearman, nil
}
