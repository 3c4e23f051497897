package classifier

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/nfnt/resize"
	"go.uber.org/zap"

	"github.com/example/skin-check/internal/imaging"
)

// DefaultInputSize is the side length the bundled models are trained on.
const DefaultInputSize = 224

// Result is the adapter output. Confidence is a percentage in [0,100].
// Degraded marks the sentinel result produced when no capability is loaded.
type Result struct {
	Label         string             `json:"label"`
	Confidence    float64            `json:"confidence"`
	Degraded      bool               `json:"degraded"`
	Probabilities map[string]float64 `json:"probabilities,omitempty"`
}

// Options configures preprocessing. Zero values defer to the capability's
// InputSpec, then to DefaultInputSize and NHWC.
type Options struct {
	InputSize int
	Layout    *Layout
}

// Adapter resizes and normalizes admitted images and invokes the capability.
type Adapter struct {
	capability Capability
	inputSize  int
	layout     Layout
	logger     *zap.Logger
}

// NewAdapter builds an adapter. capability may be nil, in which case every
// call yields the degraded Unknown result.
func NewAdapter(capability Capability, opts Options, logger *zap.Logger) *Adapter {
	size, layout := DefaultInputSize, NHWC
	if spec, ok := capability.(InputSpecifier); ok {
		size, layout = spec.InputSpec()
	}
	if opts.InputSize > 0 {
		size = opts.InputSize
	}
	if opts.Layout != nil {
		layout = *opts.Layout
	}
	return &Adapter{
		capability: capability,
		inputSize:  size,
		layout:     layout,
		logger:     logger.Named("classifier"),
	}
}

// Available reports whether a capability is loaded.
func (a *Adapter) Available() bool {
	return a.capability != nil
}

// Classify returns the most probable label for img.
func (a *Adapter) Classify(ctx context.Context, img *imaging.DecodedImage) (*Result, error) {
	if a.capability == nil {
		a.logger.Warn("classification capability not loaded, returning degraded result")
		return &Result{Label: Unknown, Confidence: 0, Degraded: true}, nil
	}

	probs, err := a.capability.Predict(ctx, a.Preprocess(img))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInference, err)
	}
	if len(probs) != NumLabels {
		return nil, fmt.Errorf("%w: expected %d probabilities, got %d", ErrInference, NumLabels, len(probs))
	}

	best := 0
	byLabel := make(map[string]float64, NumLabels)
	for i, p := range probs {
		if math.IsNaN(float64(p)) {
			return nil, fmt.Errorf("%w: probability %d is NaN", ErrInference, i)
		}
		byLabel[labels[i]] = float64(p)
		if p > probs[best] {
			best = i
		}
	}

	confidence := math.Min(math.Max(float64(probs[best])*100, 0), 100)
	return &Result{
		Label:         labels[best],
		Confidence:    confidence,
		Probabilities: byLabel,
	}, nil
}

// Preprocess resizes img bilinearly to the model resolution and rescales the
// samples to [0,1] in the adapter's layout, as a batch of one.
func (a *Adapter) Preprocess(img *imaging.DecodedImage) Tensor {
	size := a.inputSize
	var src image.Image = img.RGBA()
	if img.Width != size || img.Height != size {
		src = resize.Resize(uint(size), uint(size), src, resize.Bilinear)
	}

	plane := size * size
	data := make([]float32, 3*plane)
	put := func(x, y int, r, g, b uint8) {
		p := y*size + x
		if a.layout == NCHW {
			data[p] = float32(r) / 255
			data[plane+p] = float32(g) / 255
			data[2*plane+p] = float32(b) / 255
			return
		}
		data[p*3] = float32(r) / 255
		data[p*3+1] = float32(g) / 255
		data[p*3+2] = float32(b) / 255
	}

	if rgba, ok := src.(*image.RGBA); ok {
		for y := 0; y < size; y++ {
			row := rgba.Pix[rgba.PixOffset(rgba.Rect.Min.X, rgba.Rect.Min.Y+y):]
			for x := 0; x < size; x++ {
				put(x, y, row[x*4], row[x*4+1], row[x*4+2])
			}
		}
	} else {
		b := src.Bounds()
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				r, g, bl, _ := src.At(b.Min.X+x, b.Min.Y+y).RGBA()
				put(x, y, uint8(r>>8), uint8(g>>8), uint8(bl>>8))
			}
		}
	}

	shape := []int64{1, int64(size), int64(size), 3}
	if a.layout == NCHW {
		shape = []int64{1, 3, int64(size), int64(size)}
	}
	return Tensor{Shape: shape, Layout: a.layout, Data: data}
}
