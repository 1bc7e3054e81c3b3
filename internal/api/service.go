package api

import (
	"encoding/json"
	"errors"
	"os"

	"casewatch/internal/apperr"
	"casewatch/internal/journal"
	"casewatch/internal/models"
	"casewatch/internal/storage"
)

// StatusSource exposes the monitor's in-memory processing state.
type StatusSource interface {
	Snapshot() []models.CaseStatus
	Status(caseID string) (models.CaseStatus, bool)
}

// TransitionSource exposes the journal's transition history; may be nil
// when no journal is configured.
type TransitionSource interface {
	History(caseID string) ([]journal.Transition, error)
	Latest() ([]journal.Transition, error)
}

// CaseDetail is the full status payload for one case.
type CaseDetail struct {
	models.CaseStatus
	Transitions []journal.Transition `json:"transitions,omitempty"`
}

// Service reads pipeline state for the API and MCP surfaces.
type Service struct {
	statuses    StatusSource
	transitions TransitionSource
	workDir     storage.Provider
}

// NewService creates a read-only status service.
func NewService(statuses StatusSource, transitions TransitionSource, workDir storage.Provider) *Service {
	return &Service{statuses: statuses, transitions: transitions, workDir: workDir}
}

// ListCases returns the current status of every known case. When the
// monitor has no record (fresh start), the journal's latest transitions
// fill in what previous runs saw.
func (s *Service) ListCases() ([]models.CaseStatus, error) {
	statuses := s.statuses.Snapshot()
	if len(statuses) > 0 || s.transitions == nil {
		return statuses, nil
	}

	latest, err := s.transitions.Latest()
	if err != nil {
		return nil, err
	}
	out := make([]models.CaseStatus, 0, len(latest))
	for _, t := range latest {
		out = append(out, models.CaseStatus{
			CaseID:      t.CaseID,
			Fingerprint: t.Fingerprint,
			State:       t.State,
			Stage:       t.Stage,
			Reason:      t.Reason,
			Decision:    t.Decision,
			UpdatedAt:   t.CreatedAt,
		})
	}
	return out, nil
}

// GetCase returns one case's status with its journal history.
func (s *Service) GetCase(caseID string) (*CaseDetail, error) {
	status, ok := s.statuses.Status(caseID)
	detail := &CaseDetail{CaseStatus: status}
	if s.transitions != nil {
		transitions, err := s.transitions.History(caseID)
		if err != nil {
			return nil, err
		}
		detail.Transitions = transitions
		if !ok && len(transitions) > 0 {
			last := transitions[len(transitions)-1]
			detail.CaseStatus = models.CaseStatus{
				CaseID:      last.CaseID,
				Fingerprint: last.Fingerprint,
				State:       last.State,
				Stage:       last.Stage,
				Reason:      last.Reason,
				Decision:    last.Decision,
				UpdatedAt:   last.CreatedAt,
			}
			ok = true
		}
	}
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return detail, nil
}

// GetHistory returns the extracted history entries for one case from
// the work directory.
func (s *Service) GetHistory(caseID string) ([]models.HistoryEntry, error) {
	data, err := s.workDir.Read(caseID + ".json")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	var entries []models.HistoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
