package router

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mangakantei/manga-kantei-api/internal/handlers"
	"github.com/mangakantei/manga-kantei-api/internal/middleware"
	"github.com/mangakantei/manga-kantei-api/internal/services"
	"github.com/mangakantei/manga-kantei-api/internal/utils"
)

func NewRouter(service services.AnalysisService, logger *utils.Logger, maxFileSize int64) http.Handler {
	r := mux.NewRouter()

	// Middlewares
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS())
	r.Use(middleware.Recovery(logger))

	analysisHandler := handlers.NewAnalysisHandler(service, logger, maxFileSize)

	api := r.PathPrefix("/api/v1").Subrouter()

	// Health check
	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	// Analysis cycle
	api.HandleFunc("/analyses", analysisHandler.UploadAndAnalyze).Methods(http.MethodPost)
	api.HandleFunc("/session", analysisHandler.GetSession).Methods(http.MethodGet)
	api.HandleFunc("/session/reset", analysisHandler.ResetSession).Methods(http.MethodPost)
	api.HandleFunc("/session/preview/{id}", analysisHandler.GetPreview).Methods(http.MethodGet)

	// History
	api.HandleFunc("/history", analysisHandler.GetHistory).Methods(http.MethodGet)
	api.HandleFunc("/history/{id}", analysisHandler.GetHistoryItem).Methods(http.MethodGet)

	// Connectivity indicator
	api.HandleFunc("/status", analysisHandler.GetStatus).Methods(http.MethodGet)

	return r
}
