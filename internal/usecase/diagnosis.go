package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/skin-check/internal/admission"
	"github.com/example/skin-check/internal/classifier"
	"github.com/example/skin-check/internal/imaging"
	"github.com/example/skin-check/internal/logging"
	"github.com/example/skin-check/internal/repository"
	"github.com/example/skin-check/internal/retry"
	"github.com/example/skin-check/internal/storage"
)

// DiagnosisRepository defines the persistence operations needed by the use case.
type DiagnosisRepository interface {
	SaveLog(ctx context.Context, log *repository.DiagnosisLog) error
	FindByRequestIDAndUser(ctx context.Context, requestID, userID string) (*repository.DiagnosisLog, error)
	FindByHash(ctx context.Context, userID, hash, excludeRequestID string) ([]*repository.DiagnosisLog, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// Classifier turns an admitted image into a label. *classifier.Adapter
// satisfies it.
type Classifier interface {
	Classify(ctx context.Context, img *imaging.DecodedImage) (*classifier.Result, error)
}

// Dependencies wires the pipeline stages and the optional collaborators.
// Repository, Cache and Storage may be nil.
type Dependencies struct {
	Decoder    *imaging.Decoder
	Analyzer   admission.Analyzer
	Classifier Classifier
	Display    *DisplayGenerator
	Repository DiagnosisRepository
	Cache      Cache
	Storage    storage.Store
	ResultTTL  time.Duration
}

// Submission identifies who sent an upload.
type Submission struct {
	UserID    string
	SessionID string
}

// DuplicateReport lists earlier diagnoses of byte-identical uploads.
type DuplicateReport struct {
	Request    *Response   `json:"request"`
	Duplicates []*Response `json:"duplicates"`
}

// DiagnosisUseCase runs decode, admission, classification and assembly.
type DiagnosisUseCase struct {
	decoder    *imaging.Decoder
	analyzer   admission.Analyzer
	classifier Classifier
	display    *DisplayGenerator
	repo       DiagnosisRepository
	cache      Cache
	store      storage.Store
	resultTTL  time.Duration
	policy     retry.Policy
	logger     *zap.Logger
	now        func() time.Time
}

type cachedDiagnosis struct {
	UserID   string   `json:"user_id"`
	Response Response `json:"response"`
}

// NewDiagnosisUseCase constructs a new use case instance.
func NewDiagnosisUseCase(deps Dependencies, logger *zap.Logger) *DiagnosisUseCase {
	if deps.Decoder == nil {
		deps.Decoder = imaging.NewDecoder(0)
	}
	if deps.Analyzer == nil {
		deps.Analyzer = admission.NewFilter(admission.DefaultThresholds())
	}
	if deps.Classifier == nil {
		deps.Classifier = classifier.NewAdapter(nil, classifier.Options{}, logger)
	}
	if deps.Display == nil {
		deps.Display = NewDisplayGenerator(DefaultDisplayRange())
	}
	if deps.ResultTTL <= 0 {
		deps.ResultTTL = 5 * time.Minute
	}
	return &DiagnosisUseCase{
		decoder:    deps.Decoder,
		analyzer:   deps.Analyzer,
		classifier: deps.Classifier,
		display:    deps.Display,
		repo:       deps.Repository,
		cache:      deps.Cache,
		store:      deps.Storage,
		resultTTL:  deps.ResultTTL,
		policy:     retry.DefaultPolicy(),
		logger:     logger.Named("diagnosis_usecase"),
		now:        time.Now,
	}
}

// DiagnoseUpload processes raw image bytes.
func (uc *DiagnosisUseCase) DiagnoseUpload(ctx context.Context, sub Submission, data []byte) (*Response, error) {
	requestID := uuid.NewString()
	start := uc.now()

	img, err := uc.decoder.Decode(data)
	if err != nil {
		return nil, logging.NewOperationError("usecase.decode", requestID, err)
	}
	return uc.diagnose(ctx, requestID, sub, img, data, start)
}

// DiagnoseBase64 processes a base64 payload, optionally carrying a data URL prefix.
func (uc *DiagnosisUseCase) DiagnoseBase64(ctx context.Context, sub Submission, payload string) (*Response, error) {
	requestID := uuid.NewString()
	start := uc.now()

	img, raw, err := uc.decoder.DecodeBase64(payload)
	if err != nil {
		return nil, logging.NewOperationError("usecase.decode_base64", requestID, err)
	}
	return uc.diagnose(ctx, requestID, sub, img, raw, start)
}

func (uc *DiagnosisUseCase) diagnose(ctx context.Context, requestID string, sub Submission, img *imaging.DecodedImage, raw []byte, start time.Time) (*Response, error) {
	opLogger := logging.WithOperation(uc.logger, "usecase.diagnose", requestID)

	imageRef, err := uc.saveArtifact(ctx, requestID, raw)
	if err != nil {
		opLogger.Error("failed to store upload", zap.Error(err))
		return nil, err
	}

	hash := sha1.Sum(raw)
	entry := &repository.DiagnosisLog{
		RequestID: requestID,
		UserID:    sub.UserID,
		SessionID: sub.SessionID,
		SHA1Hash:  hex.EncodeToString(hash[:]),
		CreatedAt: start.UTC(),
	}

	verdict := uc.analyzer.Analyze(img)
	entry.SkinRatio = verdict.SkinRatio
	entry.EdgeRatio = verdict.EdgeRatio
	if !verdict.Admitted {
		opLogger.Info("upload rejected by admission filter",
			zap.Float64("skin_ratio", verdict.SkinRatio),
			zap.Float64("edge_ratio", verdict.EdgeRatio),
		)
		uc.discardArtifact(ctx, requestID, imageRef)
		entry.Details = "rejected: not a skin image"
		uc.persist(ctx, entry, start)
		return nil, &RejectionError{RequestID: requestID, Verdict: verdict}
	}

	result, err := uc.classifier.Classify(ctx, img)
	if err != nil {
		opLogger.Error("classification failed", zap.Error(err))
		uc.discardArtifact(ctx, requestID, imageRef)
		return nil, &ClassificationError{RequestID: requestID, Verdict: verdict, Err: err}
	}

	resp := &Response{
		RequestID:     requestID,
		Admitted:      true,
		SkinRatio:     verdict.SkinRatio,
		EdgeRatio:     verdict.EdgeRatio,
		Label:         result.Label,
		Confidence:    result.Confidence,
		Degraded:      result.Degraded,
		Probabilities: result.Probabilities,
		DisplayOnly:   uc.display.Next(),
		ImageURL:      imageRef,
		CreatedAt:     entry.CreatedAt,
	}

	entry.Admitted = true
	entry.Label = resp.Label
	entry.Confidence = resp.Confidence
	entry.Degraded = resp.Degraded
	entry.Red = resp.DisplayOnly.Red
	entry.Green = resp.DisplayOnly.Green
	entry.ImageRef = imageRef
	entry.Details = fmt.Sprintf("label:%s confidence:%.2f hash:%s", resp.Label, resp.Confidence, entry.SHA1Hash)
	uc.persist(ctx, entry, start)
	uc.cacheResult(ctx, sub.UserID, resp)

	return resp, nil
}

func (uc *DiagnosisUseCase) saveArtifact(ctx context.Context, requestID string, raw []byte) (string, error) {
	if uc.store == nil {
		return "", nil
	}
	name := requestID + mimetype.Detect(raw).Extension()
	ref, err := uc.store.Save(ctx, name, raw)
	if err != nil {
		return "", logging.NewOperationError("usecase.store_image", requestID, err)
	}
	return ref, nil
}

func (uc *DiagnosisUseCase) discardArtifact(ctx context.Context, requestID, ref string) {
	if uc.store == nil || ref == "" {
		return
	}
	if err := uc.store.Delete(ctx, ref); err != nil {
		logging.WithOperation(uc.logger, "usecase.delete_image", requestID).Warn("failed to delete stored upload", zap.Error(err))
	}
}

// persist records the outcome. Failures are logged and never fail the request.
func (uc *DiagnosisUseCase) persist(ctx context.Context, entry *repository.DiagnosisLog, start time.Time) {
	if uc.repo == nil {
		return
	}
	entry.LatencyMs = uc.now().Sub(start).Milliseconds()
	if err := uc.repo.SaveLog(ctx, entry); err != nil {
		logging.WithOperation(uc.logger, "usecase.save_log", entry.RequestID).Error("failed to persist diagnosis log", zap.Error(err))
	}
}

func (uc *DiagnosisUseCase) cacheResult(ctx context.Context, userID string, resp *Response) {
	if uc.cache == nil {
		return
	}
	opLogger := logging.WithOperation(uc.logger, "cache.set.result", resp.RequestID)
	serialized, err := json.Marshal(cachedDiagnosis{UserID: userID, Response: *resp})
	if err != nil {
		opLogger.Error("failed to serialize diagnosis", zap.Error(err))
		return
	}
	err = retry.Do(ctx, uc.logger, uc.policy, "cache.set.result", resp.RequestID, func() error {
		return uc.cache.Set(ctx, cacheKey(resp.RequestID), string(serialized), uc.resultTTL)
	})
	if err != nil {
		opLogger.Warn("failed to cache diagnosis", zap.Error(err))
	}
}

func cacheKey(requestID string) string {
	return fmt.Sprintf("diagnosis:%s", requestID)
}

// GetResult retrieves a cached diagnosis or loads it from persistence.
func (uc *DiagnosisUseCase) GetResult(ctx context.Context, userID, requestID string) (*Response, error) {
	if uc.cache != nil {
		var cached string
		policy := uc.policy.WithExpected(func(err error) bool { return errors.Is(err, redis.Nil) })
		err := retry.Do(ctx, uc.logger, policy, "cache.get.result", requestID, func() error {
			value, err := uc.cache.Get(ctx, cacheKey(requestID))
			if err != nil {
				return err
			}
			cached = value
			return nil
		})
		switch {
		case err == nil:
			var payload cachedDiagnosis
			if err := json.Unmarshal([]byte(cached), &payload); err != nil {
				logging.WithOperation(uc.logger, "usecase.get_result", requestID).Warn("failed to decode cached result", zap.Error(err))
			} else if payload.UserID == userID {
				return &payload.Response, nil
			}
		case !errors.Is(err, redis.Nil):
			logging.WithOperation(uc.logger, "usecase.get_result", requestID).Warn("failed to read cache", zap.Error(err))
		}
	}

	if uc.repo == nil {
		return nil, ErrNotFound
	}
	log, err := uc.repo.FindByRequestIDAndUser(ctx, requestID, userID)
	if err != nil {
		return nil, notFound(err)
	}
	return responseFromLog(log), nil
}

// GetDuplicateReport lists earlier diagnoses of the same image content.
func (uc *DiagnosisUseCase) GetDuplicateReport(ctx context.Context, userID, requestID string) (*DuplicateReport, error) {
	if uc.repo == nil {
		return nil, ErrPersistenceDisabled
	}
	log, err := uc.repo.FindByRequestIDAndUser(ctx, requestID, userID)
	if err != nil {
		return nil, notFound(err)
	}

	duplicates, err := uc.repo.FindByHash(ctx, userID, log.SHA1Hash, log.RequestID)
	if err != nil {
		return nil, err
	}

	report := &DuplicateReport{
		Request:    responseFromLog(log),
		Duplicates: make([]*Response, 0, len(duplicates)),
	}
	for _, d := range duplicates {
		report.Duplicates = append(report.Duplicates, responseFromLog(d))
	}
	return report, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func responseFromLog(log *repository.DiagnosisLog) *Response {
	return &Response{
		RequestID:   log.RequestID,
		Admitted:    log.Admitted,
		SkinRatio:   log.SkinRatio,
		EdgeRatio:   log.EdgeRatio,
		Label:       log.Label,
		Confidence:  log.Confidence,
		Degraded:    log.Degraded,
		DisplayOnly: DisplayOnly{Red: log.Red, Green: log.Green},
		ImageURL:    log.ImageRef,
		CreatedAt:   log.CreatedAt,
	}
}
