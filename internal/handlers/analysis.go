package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/mangakantei/manga-kantei-api/internal/analyzer"
	"github.com/mangakantei/manga-kantei-api/internal/models"
	"github.com/mangakantei/manga-kantei-api/internal/services"
	"github.com/mangakantei/manga-kantei-api/internal/sniff"
	"github.com/mangakantei/manga-kantei-api/internal/utils"
)

type AnalysisHandler struct {
	service     services.AnalysisService
	logger      *utils.Logger
	maxFileSize int64
}

func NewAnalysisHandler(service services.AnalysisService, logger *utils.Logger, maxFileSize int64) *AnalysisHandler {
	return &AnalysisHandler{
		service:     service,
		logger:      logger,
		maxFileSize: maxFileSize,
	}
}

// UploadAndAnalyze accepts a multipart image, runs the analysis cycle and
// responds with the record. Persistence continues in the background; its
// progress shows up on the session endpoint.
func (h *AnalysisHandler) UploadAndAnalyze(w http.ResponseWriter, r *http.Request) {
	// Reject oversized requests before reading the body
	if r.ContentLength > h.maxFileSize {
		h.respondError(w, utils.NewBadRequestError("Image exceeds the size limit"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize)

	if err := r.ParseMultipartForm(h.maxFileSize); err != nil {
		if strings.Contains(err.Error(), "request body too large") {
			h.respondError(w, utils.NewBadRequestError("Image exceeds the size limit"))
			return
		}
		h.respondError(w, utils.NewBadRequestError("Invalid form data"))
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		h.respondError(w, utils.NewBadRequestError("No image provided"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxFileSize+1))
	if err != nil {
		h.respondError(w, utils.NewInternalError("Failed to read image"))
		return
	}

	if int64(len(data)) > h.maxFileSize {
		h.respondError(w, utils.NewBadRequestError("Image exceeds the size limit"))
		return
	}

	if len(data) == 0 {
		h.respondError(w, utils.NewBadRequestError("Uploaded image is empty"))
		return
	}

	mimeType := sniff.DetermineMime(data, header.Filename, header.Header.Get("Content-Type"))

	h.logger.Info("Image upload",
		"filename", header.Filename,
		"reported_content_type", header.Header.Get("Content-Type"),
		"determined_content_type", mimeType,
		"size", len(data))

	if !sniff.IsSupported(mimeType) {
		h.respondError(w, utils.NewBadRequestError("Only PNG, JPEG, WEBP and GIF images are allowed"))
		return
	}

	req := &models.UploadRequest{
		Image:    data,
		Filename: header.Filename,
		MimeType: mimeType,
	}

	result, err := h.service.Analyze(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, result)
}

// GetSession returns the current state snapshot.
func (h *AnalysisHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.service.Snapshot())
}

// ResetSession returns the machine to Idle and releases the preview.
func (h *AnalysisHandler) ResetSession(w http.ResponseWriter, r *http.Request) {
	h.service.Reset()
	h.respondJSON(w, http.StatusOK, h.service.Snapshot())
}

// GetPreview serves the transient preview image currently owned by the
// session, if the requested id is still live.
func (h *AnalysisHandler) GetPreview(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	preview, ok := h.service.Preview()
	if !ok || preview.ID != id {
		h.respondError(w, utils.NewNotFoundError("Preview not found"))
		return
	}

	w.Header().Set("Content-Type", preview.MimeType)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(preview.Data)
}

// GetHistory returns the merged history list, newest first.
func (h *AnalysisHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.service.History(r.Context()))
}

// HistoryDetail is a persisted log reshaped for the read-only overlay.
type HistoryDetail struct {
	ImageURL  string               `json:"image_url"`
	CreatedAt time.Time            `json:"created_at"`
	Data      *models.AnalysisData `json:"data"`
}

// GetHistoryItem projects one log into the AnalysisData shape.
func (h *AnalysisHandler) GetHistoryItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		h.respondError(w, utils.NewBadRequestError("Invalid history id"))
		return
	}

	log, ok := h.service.HistoryItem(r.Context(), id)
	if !ok {
		h.respondError(w, utils.NewNotFoundError("History entry not found"))
		return
	}

	h.respondJSON(w, http.StatusOK, &HistoryDetail{
		ImageURL:  log.ImageURL,
		CreatedAt: log.CreatedAt,
		Data:      log.ToAnalysisData(),
	})
}

// GetStatus reports the connectivity indicator: database mode when the
// backend is configured, local mode otherwise.
func (h *AnalysisHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	mode := "local"
	if h.service.Configured() {
		mode = "database"
	}
	h.respondJSON(w, http.StatusOK, map[string]any{
		"connected": h.service.Configured(),
		"mode":      mode,
	})
}

func (h *AnalysisHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", "error", err)
	}
}

func (h *AnalysisHandler) respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "Internal server error"

	switch e := err.(type) {
	case *utils.AppError:
		status = e.StatusCode
		message = e.Message
	case *analyzer.AnalysisError:
		message = e.Message
		if e.Kind == analyzer.FailureInvalidDomain {
			status = http.StatusUnprocessableEntity
		} else {
			status = http.StatusBadGateway
		}
	}

	h.logger.Error("Request error", "status", status, "error", message)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
