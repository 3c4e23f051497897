// Package admission decides whether a decoded image plausibly shows human
// skin before it is handed to the classifier. The decision combines a colour
// test (share of pixels inside an HSV skin box) with a texture test (share of
// Canny edge pixels); both must pass.
package admission

import (
	"github.com/example/skin-check/internal/imaging"
)

// Thresholds holds the HSV skin box, the ratio limits and the Canny
// hysteresis thresholds. Box bounds are inclusive.
type Thresholds struct {
	HueMin uint8 `yaml:"hue_min"`
	HueMax uint8 `yaml:"hue_max"`
	SatMin uint8 `yaml:"sat_min"`
	SatMax uint8 `yaml:"sat_max"`
	ValMin uint8 `yaml:"val_min"`
	ValMax uint8 `yaml:"val_max"`

	MinSkinRatio float64 `yaml:"min_skin_ratio"`
	MaxEdgeRatio float64 `yaml:"max_edge_ratio"`

	CannyLow  int `yaml:"canny_low"`
	CannyHigh int `yaml:"canny_high"`
}

// DefaultThresholds returns the standard skin box [0,20]x[30,180]x[60,255],
// a minimum skin ratio of 0.15, a maximum edge ratio of 0.01 and Canny
// thresholds of 100/200.
func DefaultThresholds() Thresholds {
	return Thresholds{
		HueMin:       0,
		HueMax:       20,
		SatMin:       30,
		SatMax:       180,
		ValMin:       60,
		ValMax:       255,
		MinSkinRatio: 0.15,
		MaxEdgeRatio: 0.01,
		CannyLow:     100,
		CannyHigh:    200,
	}
}

// InSkinBox reports whether an HSV triple falls inside the skin box.
func (t Thresholds) InSkinBox(h, s, v uint8) bool {
	return h >= t.HueMin && h <= t.HueMax &&
		s >= t.SatMin && s <= t.SatMax &&
		v >= t.ValMin && v <= t.ValMax
}

// Decide applies the admission rule to precomputed ratios.
func (t Thresholds) Decide(skinRatio, edgeRatio float64) bool {
	return skinRatio >= t.MinSkinRatio && edgeRatio <= t.MaxEdgeRatio
}

// Verdict is the admission decision together with the evidence behind it.
type Verdict struct {
	Admitted  bool    `json:"admitted"`
	SkinRatio float64 `json:"skin_ratio"`
	EdgeRatio float64 `json:"edge_ratio"`
}

// Analyzer computes a verdict for a decoded image.
type Analyzer interface {
	Analyze(img *imaging.DecodedImage) Verdict
}

// Filter is the pure Go Analyzer.
type Filter struct {
	thresholds Thresholds
}

// NewFilter returns a filter using t.
func NewFilter(t Thresholds) *Filter {
	return &Filter{thresholds: t}
}

// Thresholds returns the thresholds the filter was built with.
func (f *Filter) Thresholds() Thresholds {
	return f.thresholds
}

// Analyze always computes both ratios, even when the first test already fails.
func (f *Filter) Analyze(img *imaging.DecodedImage) Verdict {
	skin := f.SkinRatio(img)
	edge := f.EdgeRatio(img)
	return Verdict{
		Admitted:  f.thresholds.Decide(skin, edge),
		SkinRatio: skin,
		EdgeRatio: edge,
	}
}

// SkinRatio is the fraction of pixels inside the skin box.
func (f *Filter) SkinRatio(img *imaging.DecodedImage) float64 {
	total := img.Pixels()
	if total == 0 {
		return 0
	}
	skin := 0
	for i := 0; i < len(img.Pix); i += 3 {
		h, s, v := RGBToHSV(img.Pix[i], img.Pix[i+1], img.Pix[i+2])
		if f.thresholds.InSkinBox(h, s, v) {
			skin++
		}
	}
	return float64(skin) / float64(total)
}

// EdgeRatio is the fraction of pixels marked by Canny on the luminance plane.
func (f *Filter) EdgeRatio(img *imaging.DecodedImage) float64 {
	total := img.Pixels()
	if total == 0 {
		return 0
	}
	edges := Canny(Grayscale(img), img.Width, img.Height, f.thresholds.CannyLow, f.thresholds.CannyHigh)
	count := 0
	for _, e := range edges {
		if e != 0 {
			count++
		}
	}
	return float64(count) / float64(total)
}
