package saliency

import (
	"errors"

	"github.com/openfluke/saliency/nn"
)

// Layer lookup and shape errors come from the network package; they are
// re-exported so callers can match every attribution error from one place.
var (
	ErrUnknownLayer  = nn.ErrUnknownLayer
	ErrInvalidRange  = nn.ErrInvalidRange
	ErrShapeMismatch = nn.ErrShapeMismatch
)

var (
	// ErrInvalidTarget is returned when a unit index or pixel lies outside the target layer.
	ErrInvalidTarget = errors.New("invalid target unit")
	// ErrNotConfigured is returned when attribution is requested before SetLayer.
	ErrNotConfigured = errors.New("attributor has no target layer")
	// ErrInvalidSampleCount is returned when smoothing is asked for fewer than one sample.
	ErrInvalidSampleCount = errors.New("sample count must be at least 1")
)
