package models

import (
	"time"
)

// Format values the model is instructed to return verbatim.
const (
	FormatManga    = "Manga"
	FormatManhwa   = "Manhwa"
	FormatManhua   = "Manhua"
	FormatAnimeArt = "Anime Art"
)

// Demographic values the model is instructed to return verbatim.
const (
	DemographicShonen     = "Shonen"
	DemographicShojo      = "Shojo"
	DemographicSeinen     = "Seinen"
	DemographicJosei      = "Josei"
	DemographicKodomomuke = "Kodomomuke"
	DemographicNA         = "N/A"
)

// AnalysisData is the structured classification of one image as returned
// by the model. Score is a pointer because older responses (and older
// persisted rows) omit it; absent is not zero.
type AnalysisData struct {
	Valid        bool     `json:"valid"`
	Title        string   `json:"title"`
	Format       string   `json:"format"`
	Demographic  string   `json:"demographic"`
	Genres       []string `json:"genres"`
	Description  string   `json:"description"`
	Score        *float64 `json:"score,omitempty"`
	ErrorMessage string   `json:"error_message,omitempty"`
}

// MangaLog is one persisted analysis: the AnalysisData fields minus the
// validity envelope, plus identity, timestamp and the stored image location.
// The object store owns the image bytes; ImageURL is only a pointer to them.
type MangaLog struct {
	ID          int64     `json:"id" db:"id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	ImageURL    string    `json:"image_url" db:"image_url"`
	Title       string    `json:"title" db:"title"`
	Format      string    `json:"format" db:"format"`
	Demographic string    `json:"demographic" db:"demographic"`
	Genres      []string  `json:"genres" db:"-"`
	Description string    `json:"description" db:"description"`
	Score       *float64  `json:"score,omitempty" db:"score"`
}

// ToAnalysisData reshapes a persisted log back into the AnalysisData shape
// for the read-only history detail view. The projection is always valid and
// never carries an error message.
func (l *MangaLog) ToAnalysisData() *AnalysisData {
	return &AnalysisData{
		Valid:       true,
		Title:       l.Title,
		Format:      l.Format,
		Demographic: l.Demographic,
		Genres:      l.Genres,
		Description: l.Description,
		Score:       l.Score,
	}
}

// UploadRequest carries one image through the analyze cycle.
type UploadRequest struct {
	Image    []byte
	Filename string
	MimeType string
}
