//go:build gocv

package admission

import (
	"gocv.io/x/gocv"

	"github.com/example/skin-check/internal/imaging"
)

// OpenCVAnalyzer computes the same verdict as Filter using OpenCV through
// gocv. It is only available in binaries built with the gocv tag.
type OpenCVAnalyzer struct {
	thresholds Thresholds
	fallback   *Filter
}

// NewOpenCVAnalyzer returns an OpenCV-backed analyzer using t.
func NewOpenCVAnalyzer(t Thresholds) *OpenCVAnalyzer {
	return &OpenCVAnalyzer{thresholds: t, fallback: NewFilter(t)}
}

// Analyze falls back to the pure Go filter if the buffer cannot be wrapped.
func (a *OpenCVAnalyzer) Analyze(img *imaging.DecodedImage) Verdict {
	total := img.Pixels()
	if total == 0 {
		return Verdict{}
	}

	src, err := gocv.NewMatFromBytes(img.Height, img.Width, gocv.MatTypeCV8UC3, img.Pix)
	if err != nil {
		return a.fallback.Analyze(img)
	}
	defer src.Close()

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(src, &hsv, gocv.ColorRGBToHSV)

	mask := gocv.NewMat()
	defer mask.Close()
	t := a.thresholds
	lower := gocv.NewScalar(float64(t.HueMin), float64(t.SatMin), float64(t.ValMin), 0)
	upper := gocv.NewScalar(float64(t.HueMax), float64(t.SatMax), float64(t.ValMax), 0)
	gocv.InRangeWithScalar(hsv, lower, upper, &mask)
	skin := float64(gocv.CountNonZero(mask)) / float64(total)

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(src, &gray, gocv.ColorRGBToGray)

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(gray, &edges, float32(t.CannyLow), float32(t.CannyHigh))
	edge := float64(gocv.CountNonZero(edges)) / float64(total)

	return Verdict{
		Admitted:  t.Decide(skin, edge),
		SkinRatio: skin,
		EdgeRatio: edge,
	}
}
