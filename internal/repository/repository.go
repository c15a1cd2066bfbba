package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/mangakantei/manga-kantei-api/internal/models"
)

// Repository is the manga_logs row store. Insert can be asked to leave the
// score column out of the statement entirely, which is how the orchestrator
// recovers when talking to an older deployed schema without that column.
type Repository interface {
	Insert(ctx context.Context, log *models.MangaLog, includeScore bool) (*models.MangaLog, error)
	GetByID(ctx context.Context, id int64) (*models.MangaLog, error)
	RecentLogs(ctx context.Context, limit int) ([]models.MangaLog, error)
}

type repository struct {
	db *sqlx.DB

	// Reads adapt to the deployed schema: the score column is probed once
	// and cached. Writes stay caller-controlled so an insert against a
	// legacy schema still surfaces the column error the retry keys on.
	scoreOnce sync.Once
	hasScore  bool
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) scoreColumnPresent(ctx context.Context) bool {
	r.scoreOnce.Do(func() {
		_, err := r.db.ExecContext(ctx, "SELECT score FROM manga_logs LIMIT 0")
		r.hasScore = err == nil
	})
	return r.hasScore
}

func (r *repository) Insert(ctx context.Context, log *models.MangaLog, includeScore bool) (*models.MangaLog, error) {
	genresJSON, err := json.Marshal(log.Genres)
	if err != nil {
		return nil, err
	}

	createdAt := log.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var res sql.Result
	if includeScore && log.Score != nil {
		query := `
			INSERT INTO manga_logs (created_at, image_url, title, format, demographic, genres, description, score)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`
		res, err = r.db.ExecContext(ctx, query,
			createdAt,
			log.ImageURL,
			log.Title,
			log.Format,
			log.Demographic,
			string(genresJSON),
			log.Description,
			*log.Score,
		)
	} else {
		query := `
			INSERT INTO manga_logs (created_at, image_url, title, format, demographic, genres, description)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`
		res, err = r.db.ExecContext(ctx, query,
			createdAt,
			log.ImageURL,
			log.Title,
			log.Format,
			log.Demographic,
			string(genresJSON),
			log.Description,
		)
	}
	if err != nil {
		return nil, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	return r.GetByID(ctx, id)
}

func (r *repository) GetByID(ctx context.Context, id int64) (*models.MangaLog, error) {
	withScore := r.scoreColumnPresent(ctx)

	query := `
		SELECT ` + selectColumns(withScore) + `
		FROM manga_logs
		WHERE id = $1
	`

	row := r.db.QueryRowContext(ctx, query, id)
	log, err := scanLog(row, withScore)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return log, nil
}

func (r *repository) RecentLogs(ctx context.Context, limit int) ([]models.MangaLog, error) {
	withScore := r.scoreColumnPresent(ctx)

	query := `
		SELECT ` + selectColumns(withScore) + `
		FROM manga_logs
		WHERE image_url IS NOT NULL AND image_url != ''
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []models.MangaLog{}
	for rows.Next() {
		log, err := scanLog(rows, withScore)
		if err != nil {
			return nil, err
		}
		logs = append(logs, *log)
	}

	return logs, rows.Err()
}

func selectColumns(withScore bool) string {
	cols := "id, created_at, image_url, title, format, demographic, genres, description"
	if withScore {
		cols += ", score"
	}
	return cols
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLog(row rowScanner, withScore bool) (*models.MangaLog, error) {
	var log models.MangaLog
	var genresJSON string
	var score sql.NullFloat64

	dest := []any{
		&log.ID,
		&log.CreatedAt,
		&log.ImageURL,
		&log.Title,
		&log.Format,
		&log.Demographic,
		&genresJSON,
		&log.Description,
	}
	if withScore {
		dest = append(dest, &score)
	}

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	if genresJSON != "" {
		if err := json.Unmarshal([]byte(genresJSON), &log.Genres); err != nil {
			return nil, err
		}
	}

	if score.Valid {
		log.Score = &score.Float64
	}

	return &log, nil
}
