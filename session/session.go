// Package session holds the per-user review workflow state: uploaded
// requirements, proposal, plan quantities and findings.
package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"bid-review/decision/lineitem"
	"bid-review/decision/takeoff"
)

// Session is one estimator's review workspace.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Project            string              `json:"project,omitempty"`
	Requirements       []lineitem.LineItem `json:"requirements"`
	RequirementsSource string              `json:"requirements_source,omitempty"`
	Proposal           []lineitem.LineItem `json:"proposal"`
	ProposalSource     string              `json:"proposal_source,omitempty"`

	PlanQuantities []takeoff.AggregatedItem `json:"plan_quantities"`
	PlanRawCount   int                      `json:"plan_raw_count,omitempty"`
	PlanSources    []string                 `json:"plan_sources,omitempty"`

	Findings *lineitem.Finding `json:"findings,omitempty"`

	LastAnalysisID string `json:"last_analysis_id,omitempty"`
}

// New creates an empty session. An empty id gets a generated one.
func New(id string) *Session {
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()
	return &Session{ID: id, CreatedAt: now, UpdatedAt: now}
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	data, err := json.Marshal(s)
	if err != nil {
		c := *s
		return &c
	}
	var c Session
	if err := json.Unmarshal(data, &c); err != nil {
		c = *s
	}
	return &c
}

// SetPlanQuantities aggregates raw plan takeoff items into the session.
func (s *Session) SetPlanQuantities(items []lineitem.LineItem, sources []string) {
	s.PlanQuantities = takeoff.Aggregate(items)
	s.PlanRawCount = len(items)
	s.PlanSources = sources
}

// Clear drops every uploaded document. Analysis history is kept.
func (s *Session) Clear() {
	s.Project = ""
	s.Requirements, s.RequirementsSource = nil, ""
	s.Proposal, s.ProposalSource = nil, ""
	s.PlanQuantities, s.PlanRawCount, s.PlanSources = nil, 0, nil
	s.Findings = nil
}

// Summary reports what has been uploaded to a session.
type Summary struct {
	SessionID          string `json:"session_id"`
	HasRequirements    bool   `json:"has_requirements"`
	RequirementsCount  int    `json:"requirements_count"`
	RequirementsSource string `json:"requirements_source,omitempty"`
	HasProposal        bool   `json:"has_proposal"`
	ProposalCount      int    `json:"proposal_count"`
	ProposalSource     string `json:"proposal_source,omitempty"`
	HasPlanQuantities  bool   `json:"has_plan_quantities"`
	PlanQuantityCount  int    `json:"plan_quantity_count"`
	HasFindings        bool   `json:"has_findings"`
	LastAnalysisID     string `json:"last_analysis_id,omitempty"`
}

// Summary returns the upload status of the session.
func (s *Session) Summary() Summary {
	return Summary{
		SessionID:          s.ID,
		HasRequirements:    s.Requirements != nil,
		RequirementsCount:  len(s.Requirements),
		RequirementsSource: s.RequirementsSource,
		HasProposal:        s.Proposal != nil,
		ProposalCount:      len(s.Proposal),
		ProposalSource:     s.ProposalSource,
		HasPlanQuantities:  s.PlanQuantities != nil,
		PlanQuantityCount:  len(s.PlanQuantities),
		HasFindings:        s.Findings != nil,
		LastAnalysisID:     s.LastAnalysisID,
	}
}

// Store persists sessions.
type Store interface {
	// Get returns a SESSION_NOT_FOUND error for unknown or expired sessions.
	Get(ctx context.Context, id string) (*Session, error)
	// Update loads the session, creating it when absent, applies fn and saves
	// the result. Updates of one session are serialized.
	Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error)
	Delete(ctx context.Context, id string) error
	Close() error
}
