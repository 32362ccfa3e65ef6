package nn

import "errors"

var (
	// ErrUnknownLayer is returned when a layer name is not in the network.
	ErrUnknownLayer = errors.New("unknown layer")
	// ErrInvalidRange is returned when a stop layer does not precede the start layer.
	ErrInvalidRange = errors.New("invalid layer range")
	// ErrShapeMismatch is returned when a tensor disagrees with a layer's declared shape.
	ErrShapeMismatch = errors.New("shape mismatch")
)
