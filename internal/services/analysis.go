package services

import (
	"context"
	"time"

	"github.com/mangakantei/manga-kantei-api/internal/analyzer"
	"github.com/mangakantei/manga-kantei-api/internal/config"
	"github.com/mangakantei/manga-kantei-api/internal/models"
	"github.com/mangakantei/manga-kantei-api/internal/repository"
	"github.com/mangakantei/manga-kantei-api/internal/session"
	"github.com/mangakantei/manga-kantei-api/internal/storage"
	"github.com/mangakantei/manga-kantei-api/internal/utils"
)

const historyLimit = 20

// saveTimeout bounds the detached persistence task, which outlives the
// originating request.
const saveTimeout = 60 * time.Second

type AnalysisService interface {
	Analyze(ctx context.Context, req *models.UploadRequest) (*models.AnalysisData, error)
	Snapshot() session.Snapshot
	Reset()
	Preview() (session.Preview, bool)
	History(ctx context.Context) []models.MangaLog
	HistoryItem(ctx context.Context, id int64) (*models.MangaLog, bool)
	Configured() bool
}

type analysisService struct {
	machine    *session.Machine
	analyzer   analyzer.Analyzer
	orch       *Orchestrator
	repo       repository.Repository
	logger     *utils.Logger
	configured bool

	// test hook, called when a detached save finishes
	onSaveDone func()
}

// NewService wires the full analyze-and-save pipeline. store and repo may be
// nil when the backend is not configured; the orchestrator then runs in
// local-analysis-only mode.
func NewService(repo repository.Repository, store storage.ObjectStore, cfg *config.Config, logger *utils.Logger) AnalysisService {
	gemini := analyzer.NewGeminiAnalyzer(cfg.GeminiAPIKey, cfg.GeminiModel, logger)
	configured := cfg.BackendConfigured() && store != nil && repo != nil

	return &analysisService{
		machine:    session.NewMachine(),
		analyzer:   gemini,
		orch:       NewOrchestrator(configured, store, repo, logger),
		repo:       repo,
		logger:     logger,
		configured: configured,
	}
}

// Analyze runs one image-selection cycle: Analyzing, then either Result plus
// a detached save, or Failed. The response never waits on persistence.
func (s *analysisService) Analyze(ctx context.Context, req *models.UploadRequest) (*models.AnalysisData, error) {
	gen, err := s.machine.StartAnalysis(req.Image, req.MimeType)
	if err != nil {
		return nil, utils.NewConflictError(err.Error())
	}

	data, err := s.analyzer.AnalyzeImage(ctx, req.Image, req.MimeType)
	if err != nil {
		s.logger.Error("Analysis failed", "error", err, "filename", req.Filename)
		s.machine.FailAnalysis(gen, err.Error())
		return nil, err
	}

	s.machine.CompleteAnalysis(gen, data)
	s.logger.Info("Image analyzed",
		"title", data.Title,
		"format", data.Format,
		"demographic", data.Demographic)

	go s.persist(gen, data, req.Image, req.MimeType)

	return data, nil
}

// persist is the detached save. Every publication is keyed to the cycle's
// generation, so a save finishing after a reset or a newer analysis is
// silently dropped.
func (s *analysisService) persist(gen uint64, data *models.AnalysisData, image []byte, mimeType string) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	publish := func(status string) {
		s.machine.SetSaveStatus(gen, status)
	}

	if log := s.orch.SaveAnalysis(ctx, data, image, mimeType, publish); log != nil {
		s.machine.AppendLog(gen, *log)
	}

	if s.onSaveDone != nil {
		s.onSaveDone()
	}
}

func (s *analysisService) Snapshot() session.Snapshot {
	return s.machine.Snapshot()
}

func (s *analysisService) Reset() {
	s.machine.Reset()
}

func (s *analysisService) Preview() (session.Preview, bool) {
	return s.machine.Preview()
}

// History merges the latest persisted rows into the session list. Fetch
// failures are swallowed: history is an enhancement, never an error the
// user sees.
func (s *analysisService) History(ctx context.Context) []models.MangaLog {
	if s.configured {
		logs, err := s.repo.RecentLogs(ctx, historyLimit)
		if err != nil {
			s.logger.Error("Failed to fetch history", "error", err)
		} else {
			s.machine.ApplyHistory(logs)
		}
	}
	return s.machine.History()
}

func (s *analysisService) HistoryItem(ctx context.Context, id int64) (*models.MangaLog, bool) {
	if log, ok := s.machine.FindLog(id); ok {
		return &log, true
	}

	if !s.configured {
		return nil, false
	}

	log, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to fetch history item", "error", err, "id", id)
		return nil, false
	}
	if log == nil {
		return nil, false
	}
	return log, true
}

func (s *analysisService) Configured() bool {
	return s.configured
}
