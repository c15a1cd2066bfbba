package session

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/mangakantei/manga-kantei-api/internal/models"
)

// State is the primary analysis state. Exactly one holds at a time; the
// save status is orthogonal and only meaningful in StateResult.
type State int

const (
	StateIdle State = iota
	StateAnalyzing
	StateResult
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAnalyzing:
		return "analyzing"
	case StateResult:
		return "result"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

func (s State) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Save-phase statuses published by the persistence orchestrator.
const (
	StatusLocalOnly   = "local-analysis-only"
	StatusUploading   = "uploading image"
	StatusSaving      = "saving record"
	StatusSaved       = "saved to history"
	StatusUploadError = "upload error"
	StatusSaveError   = "save error"
)

// Preview is the transient image being analyzed or displayed. The machine
// owns its bytes and releases them when it is superseded or on reset.
type Preview struct {
	ID       string
	Data     []byte
	MimeType string
}

// Snapshot is a point-in-time copy of the machine for rendering.
type Snapshot struct {
	State      State                `json:"state"`
	Data       *models.AnalysisData `json:"data,omitempty"`
	Error      string               `json:"error,omitempty"`
	SaveStatus string               `json:"save_status,omitempty"`
	PreviewID  string               `json:"preview_id,omitempty"`
}

// Machine is the single source of truth for what the client renders. All
// mutation happens under one mutex, and every update from a detached task
// carries the generation it was started under: updates from a superseded
// generation are dropped instead of clobbering newer state.
type Machine struct {
	mu         sync.Mutex
	state      State
	generation uint64
	preview    *Preview
	data       *models.AnalysisData
	errMsg     string
	saveStatus string
	history    []models.MangaLog
}

func NewMachine() *Machine {
	return &Machine{state: StateIdle}
}

// StartAnalysis releases any previous preview, stores the new one and moves
// to StateAnalyzing. It returns the generation token that every later update
// for this cycle must present. Starting while a cycle is already in flight
// is rejected; the caller surfaces that as a conflict.
func (m *Machine) StartAnalysis(image []byte, mimeType string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateAnalyzing {
		return 0, fmt.Errorf("an analysis is already in progress")
	}

	m.releasePreviewLocked()
	m.preview = &Preview{
		ID:       uuid.NewString(),
		Data:     image,
		MimeType: mimeType,
	}

	m.generation++
	m.state = StateAnalyzing
	m.data = nil
	m.errMsg = ""
	m.saveStatus = ""

	return m.generation, nil
}

// CompleteAnalysis moves Analyzing -> Result. Stale generations are ignored.
func (m *Machine) CompleteAnalysis(gen uint64, data *models.AnalysisData) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation || m.state != StateAnalyzing {
		return false
	}

	m.state = StateResult
	m.data = data
	return true
}

// FailAnalysis moves Analyzing -> Failed with the user-facing message.
func (m *Machine) FailAnalysis(gen uint64, message string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation || m.state != StateAnalyzing {
		return false
	}

	m.state = StateFailed
	m.errMsg = message
	return true
}

// SetSaveStatus updates the save-phase annotation on a displayed result.
// It never changes the primary state.
func (m *Machine) SetSaveStatus(gen uint64, status string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation || m.state != StateResult {
		return false
	}

	m.saveStatus = status
	return true
}

// AppendLog prepends a freshly persisted log to the history list.
func (m *Machine) AppendLog(gen uint64, log models.MangaLog) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation {
		return false
	}

	m.history = append([]models.MangaLog{log}, m.history...)
	return true
}

// ApplyHistory merges a bulk fetch into the list. Entries already present
// (session prepends, or an earlier fetch) stay in front; a slow fetch can
// never stomp a save that landed first.
func (m *Machine) ApplyHistory(logs []models.MangaLog) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[int64]bool, len(m.history))
	for _, existing := range m.history {
		seen[existing.ID] = true
	}

	for _, log := range logs {
		if !seen[log.ID] {
			m.history = append(m.history, log)
		}
	}
}

// Reset returns to Idle: the preview is released and analysis data, error
// and save status are cleared. Bumping the generation guarantees in-flight
// detached tasks from the old cycle are no-ops when they land.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.releasePreviewLocked()
	m.generation++
	m.state = StateIdle
	m.data = nil
	m.errMsg = ""
	m.saveStatus = ""
}

func (m *Machine) releasePreviewLocked() {
	if m.preview != nil {
		m.preview.Data = nil
		m.preview = nil
	}
}

// Preview returns the current preview image, if any.
func (m *Machine) Preview() (Preview, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.preview == nil {
		return Preview{}, false
	}
	return *m.preview, true
}

// History returns a copy of the current history list, newest first.
func (m *Machine) History() []models.MangaLog {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.MangaLog, len(m.history))
	copy(out, m.history)
	return out
}

// FindLog looks up one history entry by id for the read-only detail view.
func (m *Machine) FindLog(id int64) (models.MangaLog, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, log := range m.history {
		if log.ID == id {
			return log, true
		}
	}
	return models.MangaLog{}, false
}

// Snapshot copies the renderable state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		State:      m.state,
		Data:       m.data,
		Error:      m.errMsg,
		SaveStatus: m.saveStatus,
	}
	if m.preview != nil {
		snap.PreviewID = m.preview.ID
	}
	return snap
}
