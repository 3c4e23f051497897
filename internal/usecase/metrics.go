package usecase

import "context"

// MetricsSummary represents aggregated diagnosis insights.
type MetricsSummary struct {
	TotalRequests              int64            `json:"total_requests"`
	AdmittedRequests           int64            `json:"admitted_requests"`
	RejectedRequests           int64            `json:"rejected_requests"`
	DegradedRequests           int64            `json:"degraded_requests"`
	AdmissionRate              float64          `json:"admission_rate"`
	AverageConfidence          float64          `json:"average_confidence"`
	AverageProcessingLatencyMs float64          `json:"average_processing_latency_ms"`
	LabelCounts                map[string]int64 `json:"label_counts"`
}

// GetMetricsSummary aggregates diagnosis metrics from persisted logs.
func (uc *DiagnosisUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	if uc.repo == nil {
		return nil, ErrPersistenceDisabled
	}
	aggregation, err := uc.repo.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalRequests:              aggregation.TotalCount,
		AdmittedRequests:           aggregation.AdmittedCount,
		RejectedRequests:           aggregation.TotalCount - aggregation.AdmittedCount,
		DegradedRequests:           aggregation.DegradedCount,
		AverageConfidence:          aggregation.AverageConfidence,
		AverageProcessingLatencyMs: aggregation.AverageLatencyMs,
		LabelCounts:                aggregation.LabelCounts,
	}

	if aggregation.TotalCount > 0 {
		summary.AdmissionRate = float64(aggregation.AdmittedCount) / float64(aggregation.TotalCount)
	}

	return summary, nil
}
