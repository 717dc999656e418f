package analysis

import (
	"context"
	"time"

	"bid-review/decision/status"
)

// DefaultHistoryLimit is the number of entries a history listing returns.
const DefaultHistoryLimit = 20

// HistoryEntry is the summary of a recorded analysis.
type HistoryEntry struct {
	ID                string       `json:"id"`
	SessionID         string       `json:"session_id,omitempty"`
	Project           string       `json:"project,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	InputHash         string       `json:"input_hash"`
	Status            status.Code  `json:"status"`
	Color             status.Color `json:"color"`
	Message           string       `json:"message"`
	CompletenessScore float64      `json:"completeness_score"`
	AccuracyScore     float64      `json:"accuracy_score"`
	Matches           int          `json:"matches"`
	Discrepancies     int          `json:"discrepancies"`
	Missing           int          `json:"missing"`
	Extra             int          `json:"extra"`
	CriticalIssues    int          `json:"critical_issues"`
	Warnings          int          `json:"warnings"`
}

// Entry summarizes the analysis for history listings.
func (a *Analysis) Entry() HistoryEntry {
	e := HistoryEntry{
		ID:                a.ID,
		SessionID:         a.SessionID,
		Project:           a.Project,
		CreatedAt:         a.CreatedAt,
		InputHash:         a.InputHash,
		Status:            a.Status.Code,
		Color:             a.Status.Color,
		Message:           a.Status.Message,
		CompletenessScore: a.Status.CompletenessScore,
		AccuracyScore:     a.Status.AccuracyScore,
		CriticalIssues:    len(a.Findings.CriticalIssues),
		Warnings:          len(a.Findings.Warnings),
	}
	if r := a.Report; r != nil {
		e.Matches = len(r.Matches)
		e.Discrepancies = len(r.Discrepancies)
		e.Missing = len(r.Missing)
		e.Extra = len(r.Extra)
	}
	return e
}

// HistoryFilter narrows a history listing. A zero Limit means
// DefaultHistoryLimit.
type HistoryFilter struct {
	SessionID string
	Limit     int
}

// EffectiveLimit returns the limit to apply.
func (f HistoryFilter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultHistoryLimit
	}
	return f.Limit
}

// HistoryStore records analyses. Get returns an ANALYSIS_NOT_FOUND error for
// unknown IDs. List returns the newest entries first.
type HistoryStore interface {
	Save(ctx context.Context, a *Analysis) error
	Get(ctx context.Context, id string) (*Analysis, error)
	List(ctx context.Context, filter HistoryFilter) ([]HistoryEntry, error)
	Ping(ctx context.Context) error
	Close() error
}
