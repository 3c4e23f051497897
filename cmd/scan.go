package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/skin-check/internal/admission"
	"github.com/example/skin-check/internal/imaging"
	"github.com/example/skin-check/internal/usecase"
)

var scanJSON bool

var scanCmd = &cobra.Command{
	Use:   "scan <image>...",
	Short: "Screen and classify local image files",
	Long: `Run the admission filter and classifier over image files.

Rejected images report their skin and edge ratios. Nothing is stored,
persisted or cached.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "print one JSON object per file")
}

// uploadDiagnoser is the slice of the use case the CLI needs.
type uploadDiagnoser interface {
	DiagnoseUpload(ctx context.Context, sub usecase.Submission, data []byte) (*usecase.Response, error)
}

type scanReport struct {
	File     string             `json:"file"`
	Status   string             `json:"status"`
	Result   *usecase.Response  `json:"result,omitempty"`
	Verdict  *admission.Verdict `json:"verdict,omitempty"`
	ErrorMsg string             `json:"error,omitempty"`
}

const (
	statusAdmitted = "admitted"
	statusRejected = "rejected"
	statusInvalid  = "invalid"
	statusFailed   = "failed"
)

func runScan(cmd *cobra.Command, args []string) error {
	uc, cleanup, err := newLocalUseCase(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	out := cmd.OutOrStdout()
	for _, path := range args {
		report := scanFile(cmd.Context(), uc, path)
		if err := writeReport(out, report, scanJSON); err != nil {
			return err
		}
	}
	return nil
}

// newLocalUseCase builds a pipeline without storage, persistence or cache.
func newLocalUseCase(ctx context.Context) (*usecase.DiagnosisUseCase, func(), error) {
	capability, closeCapability, err := buildCapability(ctx, appConfig.Classifier, logger)
	if err != nil {
		return nil, nil, err
	}
	adapter, err := buildAdapter(capability, appConfig.Classifier, logger)
	if err != nil {
		closeCapability()
		return nil, nil, err
	}
	uc := usecase.NewDiagnosisUseCase(pipelineDependencies(appConfig, adapter), logger)
	return uc, closeCapability, nil
}

func scanFile(ctx context.Context, uc uploadDiagnoser, path string) scanReport {
	report := scanReport{File: path}

	data, err := os.ReadFile(path)
	if err != nil {
		report.Status = statusFailed
		report.ErrorMsg = err.Error()
		return report
	}

	resp, err := uc.DiagnoseUpload(ctx, usecase.Submission{}, data)
	var rejection *usecase.RejectionError
	var classification *usecase.ClassificationError
	switch {
	case err == nil:
		report.Status = statusAdmitted
		report.Result = resp
	case errors.As(err, &rejection):
		report.Status = statusRejected
		report.Verdict = &rejection.Verdict
	case errors.Is(err, imaging.ErrInvalidImageData):
		report.Status = statusInvalid
		report.ErrorMsg = err.Error()
	case errors.As(err, &classification):
		report.Status = statusFailed
		report.Verdict = &classification.Verdict
		report.ErrorMsg = err.Error()
	default:
		report.Status = statusFailed
		report.ErrorMsg = err.Error()
	}
	return report
}

func writeReport(w io.Writer, report scanReport, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(w).Encode(report)
	}
	_, err := fmt.Fprintln(w, renderReport(report))
	return err
}

func renderReport(r scanReport) string {
	var b strings.Builder
	switch r.Status {
	case statusAdmitted:
		b.WriteString(formatSuccess(r.File) + "\n")
		res := r.Result
		if res.Degraded {
			b.WriteString(renderKeyValue("Label", formatWarning(res.Label)) + "\n")
		} else {
			b.WriteString(renderKeyValue("Label", res.Label) + "\n")
		}
		b.WriteString(renderKeyValue("Confidence", fmt.Sprintf("%.2f%%", res.Confidence)) + "\n")
		b.WriteString(renderKeyValue("Skin ratio", fmt.Sprintf("%.4f", res.SkinRatio)) + "\n")
		b.WriteString(renderKeyValue("Edge ratio", fmt.Sprintf("%.4f", res.EdgeRatio)))
	case statusRejected:
		b.WriteString(formatWarning(r.File+": not a skin image") + "\n")
		b.WriteString(renderKeyValue("Skin ratio", fmt.Sprintf("%.4f", r.Verdict.SkinRatio)) + "\n")
		b.WriteString(renderKeyValue("Edge ratio", fmt.Sprintf("%.4f", r.Verdict.EdgeRatio)))
	default:
		b.WriteString(formatError(r.File+": "+r.Status) + "\n")
		b.WriteString(formatMuted(r.ErrorMsg))
	}
	return b.String()
}
