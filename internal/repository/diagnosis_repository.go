package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/skin-check/internal/retry"
)

// DiagnosisLog represents one processed upload, admitted or not.
type DiagnosisLog struct {
	ID         uint      `gorm:"primaryKey"`
	RequestID  string    `gorm:"column:request_id;uniqueIndex;size:64"`
	UserID     string    `gorm:"column:user_id;index;size:64"`
	SessionID  string    `gorm:"column:session_id;size:64"`
	Admitted   bool      `gorm:"column:admitted"`
	SkinRatio  float64   `gorm:"column:skin_ratio"`
	EdgeRatio  float64   `gorm:"column:edge_ratio"`
	Label      string    `gorm:"column:label;size:64"`
	Confidence float64   `gorm:"column:confidence"`
	Degraded   bool      `gorm:"column:degraded"`
	Red        int       `gorm:"column:display_red"`
	Green      int       `gorm:"column:display_green"`
	ImageRef   string    `gorm:"column:image_ref;size:512"`
	SHA1Hash   string    `gorm:"column:sha1_hash;index;size:40"`
	LatencyMs  int64     `gorm:"column:latency_ms"`
	Details    string    `gorm:"column:details;type:text"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (DiagnosisLog) TableName() string {
	return "diagnosis_logs"
}

// MetricsAggregation holds raw aggregates over all diagnosis logs.
type MetricsAggregation struct {
	TotalCount        int64
	AdmittedCount     int64
	DegradedCount     int64
	AverageConfidence float64
	AverageLatencyMs  float64
	LabelCounts       map[string]int64
}

// DiagnosisRepository provides persistence APIs for diagnosis logs.
type DiagnosisRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewDiagnosisRepository creates a new repository instance.
func NewDiagnosisRepository(db *gorm.DB, logger *zap.Logger) *DiagnosisRepository {
	policy := retry.DefaultPolicy()
	return &DiagnosisRepository{
		db:             db,
		logger:         logger.Named("diagnosis_repository"),
		retryAttempts:  policy.Attempts,
		initialBackoff: policy.InitialBackoff,
		maxBackoff:     policy.MaxBackoff,
	}
}

// AutoMigrate ensures the schema is available.
func (r *DiagnosisRepository) AutoMigrate(ctx context.Context) error {
	return r.executeWithRetry(ctx, "repository.auto_migrate", "", func() error {
		return r.db.WithContext(ctx).AutoMigrate(&DiagnosisLog{})
	})
}

// SaveLog persists a diagnosis log entry.
func (r *DiagnosisRepository) SaveLog(ctx context.Context, log *DiagnosisLog) error {
	return r.executeWithRetry(ctx, "repository.save_log", log.RequestID, func() error {
		return r.db.WithContext(ctx).Create(log).Error
	})
}

// FindByRequestIDAndUser retrieves a diagnosis log matching the request and owner.
func (r *DiagnosisRepository) FindByRequestIDAndUser(ctx context.Context, requestID, userID string) (*DiagnosisLog, error) {
	var log DiagnosisLog
	err := r.executeWithRetry(ctx, "repository.find_log", requestID, func() error {
		return r.db.WithContext(ctx).First(&log, "request_id = ? AND user_id = ?", requestID, userID).Error
	})
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// FindByHash lists earlier logs of the same image content for a user.
func (r *DiagnosisRepository) FindByHash(ctx context.Context, userID, hash, excludeRequestID string) ([]*DiagnosisLog, error) {
	var logs []*DiagnosisLog
	err := r.executeWithRetry(ctx, "repository.find_by_hash", excludeRequestID, func() error {
		return r.db.WithContext(ctx).
			Where("user_id = ? AND sha1_hash = ? AND request_id <> ?", userID, hash, excludeRequestID).
			Order("created_at DESC").
			Find(&logs).Error
	})
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// AggregateMetrics summarises every stored log.
func (r *DiagnosisRepository) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	var totals struct {
		Total         int64
		Admitted      int64
		Degraded      int64
		AvgConfidence float64
		AvgLatency    float64
	}
	var labels []struct {
		Label string
		Count int64
	}

	err := r.executeWithRetry(ctx, "repository.aggregate_metrics", "", func() error {
		err := r.db.WithContext(ctx).Model(&DiagnosisLog{}).Select(
			"COUNT(*) AS total, " +
				"COALESCE(SUM(CASE WHEN admitted THEN 1 ELSE 0 END), 0) AS admitted, " +
				"COALESCE(SUM(CASE WHEN degraded THEN 1 ELSE 0 END), 0) AS degraded, " +
				"COALESCE(AVG(CASE WHEN admitted AND NOT degraded THEN confidence END), 0) AS avg_confidence, " +
				"COALESCE(AVG(latency_ms), 0) AS avg_latency",
		).Scan(&totals).Error
		if err != nil {
			return err
		}
		return r.db.WithContext(ctx).Model(&DiagnosisLog{}).
			Select("label, COUNT(*) AS count").
			Where("admitted = ? AND degraded = ?", true, false).
			Group("label").
			Scan(&labels).Error
	})
	if err != nil {
		return nil, err
	}

	agg := &MetricsAggregation{
		TotalCount:        totals.Total,
		AdmittedCount:     totals.Admitted,
		DegradedCount:     totals.Degraded,
		AverageConfidence: totals.AvgConfidence,
		AverageLatencyMs:  totals.AvgLatency,
		LabelCounts:       make(map[string]int64, len(labels)),
	}
	for _, l := range labels {
		agg.LabelCounts[l.Label] = l.Count
	}
	return agg, nil
}

func (r *DiagnosisRepository) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	policy := retry.Policy{
		Attempts:       r.retryAttempts,
		InitialBackoff: r.initialBackoff,
		MaxBackoff:     r.maxBackoff,
		Expected:       isRecordNotFound,
	}
	return retry.Do(ctx, r.logger, policy, operation, requestID, fn)
}

func isRecordNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
