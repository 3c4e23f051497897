//go:build !gocv

package cmd

import "github.com/example/skin-check/internal/admission"

func newAnalyzer(t admission.Thresholds) admission.Analyzer {
	return admission.NewFilter(t)
}
