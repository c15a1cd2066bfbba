package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mangakantei/manga-kantei-api/internal/analyzer"
	"github.com/mangakantei/manga-kantei-api/internal/models"
	"github.com/mangakantei/manga-kantei-api/internal/session"
	"github.com/mangakantei/manga-kantei-api/internal/utils"
)

type stubService struct {
	data       *models.AnalysisData
	err        error
	lastReq    *models.UploadRequest
	snapshot   session.Snapshot
	preview    *session.Preview
	history    []models.MangaLog
	item       *models.MangaLog
	configured bool
	resets     int
}

func (s *stubService) Analyze(_ context.Context, req *models.UploadRequest) (*models.AnalysisData, error) {
	s.lastReq = req
	return s.data, s.err
}

func (s *stubService) Snapshot() session.Snapshot { return s.snapshot }
func (s *stubService) Reset()                     { s.resets++ }

func (s *stubService) Preview() (session.Preview, bool) {
	if s.preview == nil {
		return session.Preview{}, false
	}
	return *s.preview, true
}

func (s *stubService) History(context.Context) []models.MangaLog { return s.history }

func (s *stubService) HistoryItem(_ context.Context, id int64) (*models.MangaLog, bool) {
	if s.item != nil && s.item.ID == id {
		return s.item, true
	}
	return nil, false
}

func (s *stubService) Configured() bool { return s.configured }

func newHandler(svc *stubService) *AnalysisHandler {
	return NewAnalysisHandler(svc, utils.NewLogger("error"), 5<<20)
}

func pngUpload(t *testing.T) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("image", "cover.png")
	require.NoError(t, err)
	_, err = part.Write([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0x01, 0x02})
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	return body, writer.FormDataContentType()
}

func TestUploadAndAnalyze_Success(t *testing.T) {
	score := 8.5
	svc := &stubService{data: &models.AnalysisData{
		Valid:       true,
		Title:       "Test Work",
		Format:      models.FormatManga,
		Demographic: models.DemographicSeinen,
		Genres:      []string{"Action", "Drama"},
		Description: "...",
		Score:       &score,
	}}
	h := newHandler(svc)

	body, contentType := pngUpload(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.UploadAndAnalyze(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got models.AnalysisData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Test Work", got.Title)
	require.NotNil(t, got.Score)
	assert.Equal(t, 8.5, *got.Score)

	require.NotNil(t, svc.lastReq)
	assert.Equal(t, "image/png", svc.lastReq.MimeType)
	assert.Equal(t, "cover.png", svc.lastReq.Filename)
}

func TestUploadAndAnalyze_NoFile(t *testing.T) {
	h := newHandler(&stubService{})

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()

	h.UploadAndAnalyze(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadAndAnalyze_UnsupportedType(t *testing.T) {
	h := newHandler(&stubService{})

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("image", "notes.pdf")
	require.NoError(t, err)
	part.Write([]byte("%PDF-1.7 not an image"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()

	h.UploadAndAnalyze(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "PNG, JPEG, WEBP and GIF")
}

func TestUploadAndAnalyze_DomainFailureMapsTo422(t *testing.T) {
	svc := &stubService{err: &analyzer.AnalysisError{
		Kind:    analyzer.FailureInvalidDomain,
		Message: "Esto es una fotografía real.",
	}}
	h := newHandler(svc)

	body, contentType := pngUpload(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.UploadAndAnalyze(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "fotografía real")
}

func TestUploadAndAnalyze_TransportFailureMapsTo502(t *testing.T) {
	svc := &stubService{err: &analyzer.AnalysisError{
		Kind:    analyzer.FailureTransport,
		Message: "401 Unauthorized",
	}}
	h := newHandler(svc)

	body, contentType := pngUpload(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.UploadAndAnalyze(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "401 Unauthorized")
}

func TestGetHistoryItem_Projection(t *testing.T) {
	score := 7.0
	svc := &stubService{item: &models.MangaLog{
		ID:          3,
		CreatedAt:   time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		ImageURL:    "https://store/y.png",
		Title:       "Obra",
		Format:      models.FormatManhwa,
		Demographic: models.DemographicNA,
		Genres:      []string{"Romance"},
		Description: "desc",
		Score:       &score,
	}}
	h := newHandler(svc)

	req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/v1/history/3", nil), map[string]string{"id": "3"})
	rec := httptest.NewRecorder()

	h.GetHistoryItem(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var detail HistoryDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, "https://store/y.png", detail.ImageURL)
	require.NotNil(t, detail.Data)
	assert.True(t, detail.Data.Valid)
	assert.Empty(t, detail.Data.ErrorMessage)
	assert.Equal(t, "Obra", detail.Data.Title)
}

func TestGetHistoryItem_NotFound(t *testing.T) {
	h := newHandler(&stubService{})

	req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/v1/history/99", nil), map[string]string{"id": "99"})
	rec := httptest.NewRecorder()

	h.GetHistoryItem(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetStatus(t *testing.T) {
	h := newHandler(&stubService{configured: true})

	rec := httptest.NewRecorder()
	h.GetStatus(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"connected":true,"mode":"database"}`, rec.Body.String())

	h = newHandler(&stubService{configured: false})
	rec = httptest.NewRecorder()
	h.GetStatus(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	assert.JSONEq(t, `{"connected":false,"mode":"local"}`, rec.Body.String())
}

func TestGetPreview(t *testing.T) {
	svc := &stubService{preview: &session.Preview{
		ID:       "abc",
		Data:     []byte("png-bytes"),
		MimeType: "image/png",
	}}
	h := newHandler(svc)

	req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/v1/session/preview/abc", nil), map[string]string{"id": "abc"})
	rec := httptest.NewRecorder()

	h.GetPreview(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "png-bytes", rec.Body.String())

	// A released or superseded preview id is gone.
	req = mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/v1/session/preview/stale", nil), map[string]string{"id": "stale"})
	rec = httptest.NewRecorder()
	h.GetPreview(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResetSession(t *testing.T) {
	svc := &stubService{snapshot: session.Snapshot{State: session.StateIdle}}
	h := newHandler(svc)

	rec := httptest.NewRecorder()
	h.ResetSession(rec, httptest.NewRequest(http.MethodPost, "/api/v1/session/reset", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, svc.resets)
	assert.Contains(t, rec.Body.String(), `"state":"idle"`)
}
