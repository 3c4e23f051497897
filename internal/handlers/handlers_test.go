package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/example/skin-check/internal/admission"
	"github.com/example/skin-check/internal/auth"
	"github.com/example/skin-check/internal/imaging"
	"github.com/example/skin-check/internal/session"
	"github.com/example/skin-check/internal/usecase"
)

const testJWTSecret = "test-secret"

// pngMagic is enough for content sniffing; the stub service never decodes it.
var pngMagic = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type stubService struct {
	resp       *usecase.Response
	err        error
	uploads    [][]byte
	payloads   []string
	subs       []usecase.Submission
	resultUser string
	report     *usecase.DuplicateReport
	summary    *usecase.MetricsSummary
}

func (s *stubService) DiagnoseUpload(ctx context.Context, sub usecase.Submission, data []byte) (*usecase.Response, error) {
	s.uploads = append(s.uploads, data)
	s.subs = append(s.subs, sub)
	return s.resp, s.err
}

func (s *stubService) DiagnoseBase64(ctx context.Context, sub usecase.Submission, payload string) (*usecase.Response, error) {
	s.payloads = append(s.payloads, payload)
	s.subs = append(s.subs, sub)
	return s.resp, s.err
}

func (s *stubService) GetResult(ctx context.Context, userID, requestID string) (*usecase.Response, error) {
	s.resultUser = userID
	return s.resp, s.err
}

func (s *stubService) GetDuplicateReport(ctx context.Context, userID, requestID string) (*usecase.DuplicateReport, error) {
	return s.report, s.err
}

func (s *stubService) GetMetricsSummary(ctx context.Context) (*usecase.MetricsSummary, error) {
	return s.summary, s.err
}

type stubSessions struct {
	last    map[string]session.Prediction
	cleared []string
}

func newStubSessions() *stubSessions {
	return &stubSessions{last: map[string]session.Prediction{}}
}

func (s *stubSessions) SetLast(ctx context.Context, sessionID string, p session.Prediction) error {
	s.last[sessionID] = p
	return nil
}

func (s *stubSessions) Last(ctx context.Context, sessionID string) (*session.Prediction, error) {
	p, ok := s.last[sessionID]
	if !ok {
		return nil, session.ErrNoPrediction
	}
	return &p, nil
}

func (s *stubSessions) Clear(ctx context.Context, sessionID string) error {
	s.cleared = append(s.cleared, sessionID)
	delete(s.last, sessionID)
	return nil
}

func newTestRouter(svc DiagnosisService, sessions SessionStore) *gin.Engine {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.MaxMultipartMemory = MaxUploadSize
	cfg := RouteConfig{
		Protect:  auth.JWTMiddleware(testJWTSecret, ""),
		Identify: auth.OptionalJWTMiddleware(testJWTSecret, ""),
	}
	if sessions != nil {
		cfg.Sessions = sessions
	}
	RegisterRoutes(router, svc, cfg)
	return router
}

func okResponse() *usecase.Response {
	return &usecase.Response{
		RequestID:   "req-1",
		Admitted:    true,
		SkinRatio:   0.9,
		Label:       "FU-athlete-foot",
		Confidence:  88,
		DisplayOnly: usecase.DisplayOnly{Red: 75, Green: 25},
		ImageURL:    "/uploads/req-1.png",
		CreatedAt:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestUploadRejectsLargeUpload(t *testing.T) {
	router := newTestRouter(&stubService{}, nil)

	token := buildTestToken(t, "user-123")
	body, contentType := buildMultipartBody(t, "image/png", bytes.Repeat([]byte("a"), MaxUploadSize+1))

	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status %d, got %d", http.StatusRequestEntityTooLarge, resp.Code)
	}
}

func TestUploadRejectsUnsupportedContentType(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(svc, nil)

	body, contentType := buildMultipartBody(t, "text/plain", []byte("hello"))

	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected status %d, got %d", http.StatusUnsupportedMediaType, resp.Code)
	}
	if len(svc.uploads) != 0 {
		t.Fatal("unsupported uploads must not reach the use case")
	}
}

func TestUploadSuccessRemembersPrediction(t *testing.T) {
	svc := &stubService{resp: okResponse()}
	sessions := newStubSessions()
	router := newTestRouter(svc, sessions)

	token := buildTestToken(t, "user-123")
	body, contentType := buildMultipartBody(t, "application/octet-stream", pngMagic)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var got usecase.Response
	if err := json.Unmarshal(resp.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.Label != "FU-athlete-foot" || got.DisplayOnly.Red != 75 {
		t.Fatalf("unexpected body %+v", got)
	}

	if len(svc.subs) != 1 || svc.subs[0].UserID != "user-123" || svc.subs[0].SessionID == "" {
		t.Fatalf("unexpected submission %+v", svc.subs)
	}
	sessionID := svc.subs[0].SessionID
	if p, ok := sessions.last[sessionID]; !ok || p.RequestID != "req-1" {
		t.Fatalf("expected prediction remembered for session %s, got %+v", sessionID, sessions.last)
	}

	var cookie *http.Cookie
	for _, c := range resp.Result().Cookies() {
		if c.Name == SessionCookie {
			cookie = c
		}
	}
	if cookie == nil || cookie.Value != sessionID {
		t.Fatalf("expected session cookie %s, got %+v", sessionID, cookie)
	}

	req = httptest.NewRequest(http.MethodGet, "/prediction", nil)
	req.AddCookie(cookie)
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "FU-athlete-foot") {
		t.Fatalf("expected remembered prediction, got %d %s", resp.Code, resp.Body.String())
	}
}

func TestUploadErrorMapping(t *testing.T) {
	verdict := admission.Verdict{SkinRatio: 0.05, EdgeRatio: 0.2}
	cases := []struct {
		name   string
		err    error
		status int
		field  string
	}{
		{"rejected", &usecase.RejectionError{RequestID: "r", Verdict: verdict}, http.StatusBadRequest, "skin_ratio"},
		{"invalid", fmt.Errorf("decode: %w", imaging.ErrInvalidImageData), http.StatusBadRequest, "error"},
		{"classification", &usecase.ClassificationError{RequestID: "r", Verdict: verdict, Err: errors.New("boom")}, http.StatusInternalServerError, "edge_ratio"},
		{"other", errors.New("disk full"), http.StatusInternalServerError, "error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(&stubService{err: tc.err}, nil)
			body, contentType := buildMultipartBody(t, "image/png", pngMagic)
			req := httptest.NewRequest(http.MethodPost, "/upload", body)
			req.Header.Set("Content-Type", contentType)

			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)

			if resp.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, resp.Code)
			}
			var payload map[string]any
			if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if _, ok := payload[tc.field]; !ok {
				t.Fatalf("expected field %q in %v", tc.field, payload)
			}
		})
	}
}

func TestUploadWithoutImageClearsSession(t *testing.T) {
	sessions := newStubSessions()
	sessions.last["sess-1"] = session.Prediction{RequestID: "old"}
	router := newTestRouter(&stubService{}, sessions)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("note", "nothing"); err != nil {
		t.Fatalf("failed to write field: %v", err)
	}
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "sess-1"})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
	if len(sessions.cleared) != 1 || sessions.cleared[0] != "sess-1" {
		t.Fatalf("expected session to be cleared, got %v", sessions.cleared)
	}
}

func TestUploadBase64(t *testing.T) {
	svc := &stubService{resp: okResponse()}
	router := newTestRouter(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/upload_base64", strings.NewReader(`{"image":"data:image/png;base64,AAAA"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if len(svc.payloads) != 1 || svc.payloads[0] != "data:image/png;base64,AAAA" {
		t.Fatalf("unexpected payloads %v", svc.payloads)
	}

	for name, body := range map[string]string{"empty image": `{"image":""}`, "bad json": `{`} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/upload_base64", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)
			if resp.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", resp.Code)
			}
		})
	}
}

func TestPredictionWithoutSession(t *testing.T) {
	router := newTestRouter(&stubService{}, newStubSessions())

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/prediction", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/prediction", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "unknown"})
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}

	router = newTestRouter(&stubService{}, nil)
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/prediction", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503 without sessions, got %d", resp.Code)
	}
}

func TestResultsRequireAuth(t *testing.T) {
	svc := &stubService{resp: okResponse()}
	router := newTestRouter(svc, nil)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/results/req-1", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/results/req-1", nil)
	req.Header.Set("Authorization", "Bearer "+buildTestToken(t, "user-9"))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if svc.resultUser != "user-9" {
		t.Fatalf("expected lookup scoped to user-9, got %q", svc.resultUser)
	}
}

func TestResultsNotFound(t *testing.T) {
	router := newTestRouter(&stubService{err: usecase.ErrNotFound}, nil)

	req := httptest.NewRequest(http.MethodGet, "/results/missing", nil)
	req.Header.Set("Authorization", "Bearer "+buildTestToken(t, "user-1"))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
}

func TestMetrics(t *testing.T) {
	svc := &stubService{summary: &usecase.MetricsSummary{TotalRequests: 3}}
	router := newTestRouter(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Authorization", "Bearer "+buildTestToken(t, "user-1"))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"total_requests":3`) {
		t.Fatalf("unexpected metrics response %d %s", resp.Code, resp.Body.String())
	}

	router = newTestRouter(&stubService{err: usecase.ErrPersistenceDisabled}, nil)
	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Authorization", "Bearer "+buildTestToken(t, "user-1"))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", resp.Code)
	}
}

func TestHealth(t *testing.T) {
	router := newTestRouter(&stubService{}, nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
}

func buildMultipartBody(t *testing.T, contentType string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="upload"`)
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("failed to create multipart part: %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("failed to write payload: %v", err)
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	return body, writer.FormDataContentType()
}

func buildTestToken(t *testing.T, subject string) string {
	t.Helper()

	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}
