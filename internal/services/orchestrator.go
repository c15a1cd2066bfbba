package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mangakantei/manga-kantei-api/internal/models"
	"github.com/mangakantei/manga-kantei-api/internal/repository"
	"github.com/mangakantei/manga-kantei-api/internal/session"
	"github.com/mangakantei/manga-kantei-api/internal/sniff"
	"github.com/mangakantei/manga-kantei-api/internal/storage"
	"github.com/mangakantei/manga-kantei-api/internal/utils"
)

// StatusFunc publishes a save-phase status string.
type StatusFunc func(status string)

// Orchestrator performs the best-effort save of a finished analysis: upload
// the image, insert the row, retry once without score when the deployed
// schema predates that column. It never lets a failure escape; persistence
// going wrong must not invalidate a result the user is already looking at.
type Orchestrator struct {
	configured bool
	store      storage.ObjectStore
	repo       repository.Repository
	logger     *utils.Logger
}

func NewOrchestrator(configured bool, store storage.ObjectStore, repo repository.Repository, logger *utils.Logger) *Orchestrator {
	return &Orchestrator{
		configured: configured,
		store:      store,
		repo:       repo,
		logger:     logger,
	}
}

// SaveAnalysis runs the phases in strict order, publishing each one. It
// returns the persisted log on success and nil otherwise. One upload
// attempt, at most two insert attempts, no backoff.
func (o *Orchestrator) SaveAnalysis(ctx context.Context, data *models.AnalysisData, image []byte, mimeType string, publish StatusFunc) *models.MangaLog {
	if !o.configured || o.store == nil || o.repo == nil {
		publish(session.StatusLocalOnly)
		return nil
	}

	publish(session.StatusUploading)

	objectName := newObjectName(mimeType)
	imageURL, err := o.store.Upload(ctx, objectName, image, mimeType)
	if err != nil {
		o.logger.Error("Failed to upload image", "error", err, "object", objectName)
		publish(session.StatusUploadError)
		return nil
	}

	publish(session.StatusSaving)

	log := &models.MangaLog{
		ImageURL:    imageURL,
		Title:       data.Title,
		Format:      data.Format,
		Demographic: data.Demographic,
		Genres:      data.Genres,
		Description: data.Description,
		Score:       data.Score,
	}

	inserted, err := o.repo.Insert(ctx, log, true)
	if err != nil && isScoreSchemaError(err) {
		// The deployed table predates the score column. Insert once more
		// without it; no further retries whatever happens.
		o.logger.Warn("Insert rejected score column, retrying without it", "error", err)
		inserted, err = o.repo.Insert(ctx, log, false)
	}
	if err != nil {
		o.logger.Error("Failed to save analysis", "error", err)
		publish(session.StatusSaveError)
		return nil
	}

	publish(session.StatusSaved)
	return inserted
}

// isScoreSchemaError reports whether an insert failure names the score
// column. The substring check is deliberately the only place that knows
// about this; a backend with structured error codes could replace it here.
func isScoreSchemaError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "score")
}

// newObjectName builds a collision-resistant object name: millisecond
// timestamp, random suffix, extension matching the image type.
func newObjectName(mimeType string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%d-%s.%s", time.Now().UnixMilli(), suffix, sniff.ExtensionFor(mimeType))
}
