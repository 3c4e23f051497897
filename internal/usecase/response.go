package usecase

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/example/skin-check/internal/admission"
)

var (
	// ErrNotSkinImage means the admission filter rejected the upload.
	ErrNotSkinImage = errors.New("image does not appear to contain skin")
	// ErrNotFound means no diagnosis exists for the request id and caller.
	ErrNotFound = errors.New("diagnosis not found")
	// ErrPersistenceDisabled is returned by queries when no repository is configured.
	ErrPersistenceDisabled = errors.New("diagnosis persistence is not configured")
)

// RejectionError carries the verdict of a rejected upload. It unwraps to
// ErrNotSkinImage.
type RejectionError struct {
	RequestID string
	Verdict   admission.Verdict
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%v (skin_ratio=%.4f edge_ratio=%.4f)", ErrNotSkinImage, e.Verdict.SkinRatio, e.Verdict.EdgeRatio)
}

func (e *RejectionError) Unwrap() error {
	return ErrNotSkinImage
}

// ClassificationError reports a capability failure after the image was admitted.
type ClassificationError struct {
	RequestID string
	Verdict   admission.Verdict
	Err       error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classification failed for admitted image: %v", e.Err)
}

func (e *ClassificationError) Unwrap() error {
	return e.Err
}

// DisplayOnly holds presentation values with no diagnostic meaning. They are
// drawn at random per request and must never be read as model output.
type DisplayOnly struct {
	Red   int `json:"red"`
	Green int `json:"green"`
}

// Response is the assembled outcome of one upload.
type Response struct {
	RequestID     string             `json:"request_id"`
	Admitted      bool               `json:"admitted"`
	SkinRatio     float64            `json:"skin_ratio"`
	EdgeRatio     float64            `json:"edge_ratio"`
	Label         string             `json:"label"`
	Confidence    float64            `json:"confidence"`
	Degraded      bool               `json:"degraded"`
	Probabilities map[string]float64 `json:"probabilities,omitempty"`
	DisplayOnly   DisplayOnly        `json:"display_only"`
	ImageURL      string             `json:"image_url,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
}

// DisplayRange bounds the display-only values, inclusive on both ends.
type DisplayRange struct {
	RedMin   int `yaml:"red_min"`
	RedMax   int `yaml:"red_max"`
	GreenMin int `yaml:"green_min"`
	GreenMax int `yaml:"green_max"`
}

// DefaultDisplayRange returns red in [60,90] and green in [20,30].
func DefaultDisplayRange() DisplayRange {
	return DisplayRange{RedMin: 60, RedMax: 90, GreenMin: 20, GreenMax: 30}
}

// DisplayGenerator draws DisplayOnly values.
type DisplayGenerator struct {
	rng  DisplayRange
	intN func(n int) int
}

// NewDisplayGenerator returns a generator over r. Inverted bounds are swapped.
func NewDisplayGenerator(r DisplayRange) *DisplayGenerator {
	if r.RedMin > r.RedMax {
		r.RedMin, r.RedMax = r.RedMax, r.RedMin
	}
	if r.GreenMin > r.GreenMax {
		r.GreenMin, r.GreenMax = r.GreenMax, r.GreenMin
	}
	return &DisplayGenerator{rng: r, intN: rand.IntN}
}

// Next draws a new pair.
func (g *DisplayGenerator) Next() DisplayOnly {
	return DisplayOnly{
		Red:   g.rng.RedMin + g.intN(g.rng.RedMax-g.rng.RedMin+1),
		Green: g.rng.GreenMin + g.intN(g.rng.GreenMax-g.rng.GreenMin+1),
	}
}
