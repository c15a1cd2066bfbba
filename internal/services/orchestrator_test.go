package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mangakantei/manga-kantei-api/internal/models"
	"github.com/mangakantei/manga-kantei-api/internal/session"
	"github.com/mangakantei/manga-kantei-api/internal/utils"
)

type fakeStore struct {
	uploads    int
	failUpload bool
	url        string
	lastName   string
	lastMime   string
}

func (f *fakeStore) Upload(_ context.Context, objectName string, _ []byte, contentType string) (string, error) {
	f.uploads++
	f.lastName = objectName
	f.lastMime = contentType
	if f.failUpload {
		return "", errors.New("bucket not reachable")
	}
	return f.url, nil
}

func (f *fakeStore) PublicURL(string) string { return f.url }

type fakeRepo struct {
	insertFlags []bool // includeScore per attempt
	insertErrs  []error
	nextID      int64
	rows        []models.MangaLog
}

func (f *fakeRepo) Insert(_ context.Context, log *models.MangaLog, includeScore bool) (*models.MangaLog, error) {
	f.insertFlags = append(f.insertFlags, includeScore)
	if len(f.insertErrs) > 0 {
		err := f.insertErrs[0]
		f.insertErrs = f.insertErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	f.nextID++
	row := *log
	row.ID = f.nextID
	if !includeScore {
		row.Score = nil
	}
	f.rows = append(f.rows, row)
	return &row, nil
}

func (f *fakeRepo) GetByID(_ context.Context, id int64) (*models.MangaLog, error) {
	for i := range f.rows {
		if f.rows[i].ID == id {
			return &f.rows[i], nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) RecentLogs(_ context.Context, limit int) ([]models.MangaLog, error) {
	if limit > len(f.rows) {
		limit = len(f.rows)
	}
	out := make([]models.MangaLog, 0, limit)
	for i := len(f.rows) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.rows[i])
	}
	return out, nil
}

func analysisFixture() *models.AnalysisData {
	score := 8.5
	return &models.AnalysisData{
		Valid:       true,
		Title:       "Test Work",
		Format:      models.FormatManga,
		Demographic: models.DemographicSeinen,
		Genres:      []string{"Action", "Drama"},
		Description: "...",
		Score:       &score,
	}
}

func collectStatuses(statuses *[]string) StatusFunc {
	return func(status string) {
		*statuses = append(*statuses, status)
	}
}

func testLogger() *utils.Logger {
	return utils.NewLogger("error")
}

func TestOrchestrator_NotConfigured(t *testing.T) {
	store := &fakeStore{url: "https://store/x.png"}
	repo := &fakeRepo{}
	o := NewOrchestrator(false, store, repo, testLogger())

	var statuses []string
	got := o.SaveAnalysis(context.Background(), analysisFixture(), []byte("img"), "image/png", collectStatuses(&statuses))

	assert.Nil(t, got)
	assert.Equal(t, []string{session.StatusLocalOnly}, statuses)
	assert.Zero(t, store.uploads)
	assert.Empty(t, repo.insertFlags)
}

func TestOrchestrator_UploadFailureHaltsBeforeInsert(t *testing.T) {
	store := &fakeStore{failUpload: true}
	repo := &fakeRepo{}
	o := NewOrchestrator(true, store, repo, testLogger())

	var statuses []string
	got := o.SaveAnalysis(context.Background(), analysisFixture(), []byte("img"), "image/png", collectStatuses(&statuses))

	assert.Nil(t, got)
	assert.Equal(t, 1, store.uploads)
	assert.Empty(t, repo.insertFlags, "insert must never run after a failed upload")
	assert.Equal(t, []string{session.StatusUploading, session.StatusUploadError}, statuses)
}

func TestOrchestrator_Success(t *testing.T) {
	store := &fakeStore{url: "https://store/x.png"}
	repo := &fakeRepo{}
	o := NewOrchestrator(true, store, repo, testLogger())

	var statuses []string
	got := o.SaveAnalysis(context.Background(), analysisFixture(), []byte("img"), "image/png", collectStatuses(&statuses))

	require.NotNil(t, got)
	assert.Equal(t, "https://store/x.png", got.ImageURL)
	assert.Equal(t, "Test Work", got.Title)
	require.NotNil(t, got.Score)
	assert.Equal(t, 8.5, *got.Score)

	assert.Equal(t, []string{session.StatusUploading, session.StatusSaving, session.StatusSaved}, statuses)
	assert.Equal(t, []bool{true}, repo.insertFlags)
	assert.Equal(t, "image/png", store.lastMime)
	assert.True(t, strings.HasSuffix(store.lastName, ".png"), "object name %q should carry the image extension", store.lastName)
}

func TestOrchestrator_ScoreSchemaDriftRetriesOnce(t *testing.T) {
	store := &fakeStore{url: "https://store/x.png"}
	repo := &fakeRepo{insertErrs: []error{errors.New(`table manga_logs has no column named score`)}}
	o := NewOrchestrator(true, store, repo, testLogger())

	var statuses []string
	got := o.SaveAnalysis(context.Background(), analysisFixture(), []byte("img"), "image/png", collectStatuses(&statuses))

	require.NotNil(t, got)
	assert.Nil(t, got.Score)
	assert.Equal(t, []bool{true, false}, repo.insertFlags)
	assert.Equal(t, session.StatusSaved, statuses[len(statuses)-1])
}

func TestOrchestrator_NonScoreInsertFailureNoRetry(t *testing.T) {
	store := &fakeStore{url: "https://store/x.png"}
	repo := &fakeRepo{insertErrs: []error{errors.New("database is locked")}}
	o := NewOrchestrator(true, store, repo, testLogger())

	var statuses []string
	got := o.SaveAnalysis(context.Background(), analysisFixture(), []byte("img"), "image/png", collectStatuses(&statuses))

	assert.Nil(t, got)
	assert.Equal(t, []bool{true}, repo.insertFlags, "a failure not naming score must not retry")
	assert.Equal(t, session.StatusSaveError, statuses[len(statuses)-1])
}

func TestOrchestrator_RetryFailureGivesUp(t *testing.T) {
	store := &fakeStore{url: "https://store/x.png"}
	repo := &fakeRepo{insertErrs: []error{
		errors.New(`table manga_logs has no column named score`),
		errors.New(`table manga_logs has no column named score`),
	}}
	o := NewOrchestrator(true, store, repo, testLogger())

	var statuses []string
	got := o.SaveAnalysis(context.Background(), analysisFixture(), []byte("img"), "image/png", collectStatuses(&statuses))

	assert.Nil(t, got)
	assert.Equal(t, []bool{true, false}, repo.insertFlags, "exactly one retry, never more")
	assert.Equal(t, session.StatusSaveError, statuses[len(statuses)-1])
}

func TestIsScoreSchemaError(t *testing.T) {
	assert.True(t, isScoreSchemaError(errors.New("column \"score\" of relation \"manga_logs\" does not exist")))
	assert.False(t, isScoreSchemaError(errors.New("connection refused")))
	assert.False(t, isScoreSchemaError(nil))
}
