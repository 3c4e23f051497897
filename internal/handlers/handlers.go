package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/skin-check/internal/auth"
	"github.com/example/skin-check/internal/imaging"
	"github.com/example/skin-check/internal/logging"
	"github.com/example/skin-check/internal/session"
	"github.com/example/skin-check/internal/usecase"
)

// MaxUploadSize is the largest accepted image in bytes.
const MaxUploadSize = 10 << 20

// SessionCookie names the cookie carrying the browser session id.
const SessionCookie = "session_id"

// requestOverhead leaves room for multipart framing and JSON wrapping.
const requestOverhead = 1 << 20

// DiagnosisService is the use case surface the handlers depend on.
type DiagnosisService interface {
	DiagnoseUpload(ctx context.Context, sub usecase.Submission, data []byte) (*usecase.Response, error)
	DiagnoseBase64(ctx context.Context, sub usecase.Submission, payload string) (*usecase.Response, error)
	GetResult(ctx context.Context, userID, requestID string) (*usecase.Response, error)
	GetDuplicateReport(ctx context.Context, userID, requestID string) (*usecase.DuplicateReport, error)
	GetMetricsSummary(ctx context.Context) (*usecase.MetricsSummary, error)
}

// SessionStore remembers the last prediction per browser session.
type SessionStore interface {
	SetLast(ctx context.Context, sessionID string, p session.Prediction) error
	Last(ctx context.Context, sessionID string) (*session.Prediction, error)
	Clear(ctx context.Context, sessionID string) error
}

// RouteConfig carries the optional collaborators of the HTTP layer.
type RouteConfig struct {
	// Protect guards /results and /metrics. Nil leaves them open.
	Protect gin.HandlerFunc
	// Identify attaches an optional identity to uploads.
	Identify gin.HandlerFunc
	// Sessions enables /prediction. Nil disables it.
	Sessions SessionStore
	// UploadDir is served under UploadPrefix when both are set.
	UploadDir    string
	UploadPrefix string
	Logger       *zap.Logger
}

type handler struct {
	svc      DiagnosisService
	sessions SessionStore
	logger   *zap.Logger
}

type base64Request struct {
	Image string `json:"image"`
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, svc DiagnosisService, cfg RouteConfig) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handler{svc: svc, sessions: cfg.Sessions, logger: logger.Named("handlers")}

	protect := cfg.Protect
	if protect == nil {
		protect = func(c *gin.Context) { c.Next() }
	}
	identify := cfg.Identify
	if identify == nil {
		identify = func(c *gin.Context) { c.Next() }
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/upload", identify, h.upload)
	router.POST("/upload_base64", identify, h.uploadBase64)
	router.GET("/prediction", h.prediction)

	router.GET("/results/:id", protect, h.result)
	router.GET("/results/:id/duplicates", protect, h.duplicates)
	router.GET("/metrics", protect, h.metrics)

	if cfg.UploadDir != "" && cfg.UploadPrefix != "" {
		router.Static(cfg.UploadPrefix, cfg.UploadDir)
	}
}

func (h *handler) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadSize+requestOverhead)

	file, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds maximum upload size"})
			return
		}
		h.clearSession(c)
		c.JSON(http.StatusBadRequest, gin.H{"error": "no image uploaded"})
		return
	}
	if file.Size > MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds maximum upload size"})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open image"})
		return
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image"})
		return
	}

	if !isImage(file.Header.Get("Content-Type"), data) {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "uploaded file is not an image"})
		return
	}

	sub := h.submission(c)
	resp, err := h.svc.DiagnoseUpload(c.Request.Context(), sub, data)
	h.respond(c, sub, resp, err)
}

func (h *handler) uploadBase64(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadSize*4/3+requestOverhead)

	var req base64Request
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds maximum upload size"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.Image) == "" {
		h.clearSession(c)
		c.JSON(http.StatusBadRequest, gin.H{"error": "no image data provided"})
		return
	}

	sub := h.submission(c)
	resp, err := h.svc.DiagnoseBase64(c.Request.Context(), sub, req.Image)
	h.respond(c, sub, resp, err)
}

func (h *handler) respond(c *gin.Context, sub usecase.Submission, resp *usecase.Response, err error) {
	if err != nil {
		h.writeError(c, err)
		return
	}

	if h.sessions != nil {
		prediction := session.Prediction{
			RequestID:  resp.RequestID,
			Label:      resp.Label,
			Confidence: resp.Confidence,
			Degraded:   resp.Degraded,
			Red:        resp.DisplayOnly.Red,
			Green:      resp.DisplayOnly.Green,
			ImageURL:   resp.ImageURL,
			CreatedAt:  resp.CreatedAt,
		}
		if err := h.sessions.SetLast(c.Request.Context(), sub.SessionID, prediction); err != nil {
			h.logger.Warn("failed to remember prediction", zap.String("request_id", resp.RequestID), zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (h *handler) prediction(c *gin.Context) {
	if h.sessions == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sessions are not configured"})
		return
	}
	sessionID, err := c.Cookie(SessionCookie)
	if err != nil || sessionID == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no prediction available"})
		return
	}

	p, err := h.sessions.Last(c.Request.Context(), sessionID)
	if errors.Is(err, session.ErrNoPrediction) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no prediction available"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *handler) result(c *gin.Context) {
	userID, _ := auth.GetUserID(c.Request.Context())
	resp, err := h.svc.GetResult(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handler) duplicates(c *gin.Context) {
	userID, _ := auth.GetUserID(c.Request.Context())
	report, err := h.svc.GetDuplicateReport(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *handler) metrics(c *gin.Context) {
	summary, err := h.svc.GetMetricsSummary(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// submission identifies the caller, issuing a session cookie on first contact.
func (h *handler) submission(c *gin.Context) usecase.Submission {
	userID, _ := auth.GetUserID(c.Request.Context())
	sessionID, err := c.Cookie(SessionCookie)
	if err != nil || sessionID == "" {
		sessionID = uuid.NewString()
		c.SetCookie(SessionCookie, sessionID, int(session.DefaultTTL.Seconds()), "/", "", false, true)
	}
	return usecase.Submission{UserID: userID, SessionID: sessionID}
}

func (h *handler) clearSession(c *gin.Context) {
	if h.sessions == nil {
		return
	}
	sessionID, err := c.Cookie(SessionCookie)
	if err != nil || sessionID == "" {
		return
	}
	if err := h.sessions.Clear(c.Request.Context(), sessionID); err != nil {
		h.logger.Warn("failed to clear session", zap.Error(err))
	}
}

func (h *handler) writeError(c *gin.Context, err error) {
	var rejection *usecase.RejectionError
	var classification *usecase.ClassificationError

	switch {
	case errors.As(err, &rejection):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      "the uploaded image does not appear to contain skin",
			"request_id": rejection.RequestID,
			"skin_ratio": rejection.Verdict.SkinRatio,
			"edge_ratio": rejection.Verdict.EdgeRatio,
		})
	case errors.Is(err, imaging.ErrInvalidImageData):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &classification):
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":      classification.Error(),
			"request_id": classification.RequestID,
			"skin_ratio": classification.Verdict.SkinRatio,
			"edge_ratio": classification.Verdict.EdgeRatio,
		})
	case errors.Is(err, usecase.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
	case errors.Is(err, usecase.ErrPersistenceDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		h.logger.Error("request failed", logging.ErrorFields(err)...)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// isImage accepts a declared image/* type, and otherwise sniffs the content.
func isImage(declared string, data []byte) bool {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if strings.HasPrefix(declared, "image/") {
		return true
	}
	if declared != "" && declared != "application/octet-stream" {
		return false
	}
	return strings.HasPrefix(mimetype.Detect(data).String(), "image/")
}
