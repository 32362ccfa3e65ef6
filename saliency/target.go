package saliency

import (
	"fmt"

	"github.com/openfluke/saliency/nn"
)

// LayerTarget names the unit whose activation is being explained. For CHW
// layers Unit is a channel and the seed covers the whole channel plane unless
// Pixel is set, in which case only (Row, Col) is seeded.
type LayerTarget struct {
	Layer string
	Unit  int
	Pixel bool
	Row   int
	Col   int
}

func (t LayerTarget) String() string {
	if t.Pixel {
		return fmt.Sprintf("%s[%d](%d,%d)", t.Layer, t.Unit, t.Row, t.Col)
	}
	return fmt.Sprintf("%s[%d]", t.Layer, t.Unit)
}

// validate checks t against the resolved layer
func (t LayerTarget) validate(h nn.LayerHandle) error {
	units := h.Units()
	if t.Unit < 0 || t.Unit >= units {
		return fmt.Errorf("%w: unit %d of %s, layer has %d units", ErrInvalidTarget, t.Unit, h.Name, units)
	}
	if !t.Pixel {
		return nil
	}
	if len(h.OutputShape) != 3 {
		return fmt.Errorf("%w: pixel target on %s, which has no spatial extent (shape %v)", ErrInvalidTarget, h.Name, h.OutputShape)
	}
	if t.Row < 0 || t.Row >= h.OutputShape[1] || t.Col < 0 || t.Col >= h.OutputShape[2] {
		return fmt.Errorf("%w: pixel (%d,%d) outside %s plane %dx%d",
			ErrInvalidTarget, t.Row, t.Col, h.Name, h.OutputShape[1], h.OutputShape[2])
	}
	return nil
}

// seed builds the one-hot gradient placed at the output of the target layer
func (t LayerTarget) seed(h nn.LayerHandle) []float32 {
	size := 1
	for _, d := range h.OutputShape {
		size *= d
	}
	seed := make([]float32, size)

	if len(h.OutputShape) != 3 {
		seed[t.Unit] = 1
		return seed
	}

	height, width := h.OutputShape[1], h.OutputShape[2]
	plane := height * width
	if t.Pixel {
		seed[t.Unit*plane+t.Row*width+t.Col] = 1
		return seed
	}
	for i := t.Unit * plane; i < (t.Unit+1)*plane; i++ {
		seed[i] = 1
	}
	return seed
}
