// Package classifier adapts decoded images to an opaque classification
// capability (image tensor in, probability vector out) and maps its output
// onto the fixed dermatological label set.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrInference wraps failures raised by a capability.
var ErrInference = errors.New("classification failed")

// Layout is the memory order of a 4-D image tensor.
type Layout int

const (
	// NHWC stores channels last (batch, height, width, channel).
	NHWC Layout = iota
	// NCHW stores channels first (batch, channel, height, width).
	NCHW
)

// ParseLayout accepts "NHWC" or "NCHW", case-insensitively. Empty means NHWC.
func ParseLayout(s string) (Layout, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "NHWC":
		return NHWC, nil
	case "NCHW":
		return NCHW, nil
	default:
		return NHWC, fmt.Errorf("unknown tensor layout %q", s)
	}
}

func (l Layout) String() string {
	if l == NCHW {
		return "NCHW"
	}
	return "NHWC"
}

// Tensor is a single-item batch of RGB samples rescaled to [0,1].
type Tensor struct {
	Shape  []int64
	Layout Layout
	Data   []float32
}

// Capability is the trained model: a normalized tensor in, a probability
// vector aligned with Labels out. Implementations must be safe for
// concurrent use, serializing internally if the runtime is not reentrant.
type Capability interface {
	Predict(ctx context.Context, input Tensor) ([]float32, error)
}

// InputSpecifier is implemented by capabilities that know their expected
// input resolution and layout.
type InputSpecifier interface {
	InputSpec() (size int, layout Layout)
}
