// Package analysis runs a full bid review: reconciliation, AI findings, bid
// status and prioritized recommendations, and records the outcome.
package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"bid-review/decision/lineitem"
	"bid-review/decision/recommend"
	"bid-review/decision/reconcile"
	"bid-review/decision/status"
)

// FindingSource produces AI findings for a proposal.
type FindingSource interface {
	Analyze(ctx context.Context, requirements, proposal []lineitem.LineItem) (lineitem.Finding, error)
}

// Analysis is the recorded outcome of one bid review.
type Analysis struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id,omitempty"`
	Project   string    `json:"project,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	InputHash string    `json:"input_hash"`

	Report          *reconcile.Report          `json:"rule_based"`
	AIFindings      lineitem.Finding           `json:"ai_findings"`
	Findings        lineitem.Finding           `json:"findings"`
	Status          status.Status              `json:"bid_status"`
	Recommendations []recommend.Recommendation `json:"recommendations"`

	// AIError is set when findings were requested but could not be obtained.
	AIError string `json:"ai_error,omitempty"`
}

// Request is the input of Analyze.
type Request struct {
	SessionID    string
	Project      string
	Requirements []lineitem.LineItem
	Proposal     []lineitem.LineItem
	// Findings, when set, is used instead of calling Source.
	Findings *lineitem.Finding
	Source   FindingSource
}

// Analyzer wires the decision engines together.
type Analyzer struct {
	engine      *reconcile.Engine
	status      *status.Engine
	prioritizer *recommend.Prioritizer
	history     HistoryStore
	now         func() time.Time
}

// NewAnalyzer creates an analyzer. Nil engines use their defaults and a nil
// history disables recording.
func NewAnalyzer(engine *reconcile.Engine, statusEngine *status.Engine, prioritizer *recommend.Prioritizer, history HistoryStore) *Analyzer {
	if engine == nil {
		engine = reconcile.NewEngine(nil)
	}
	if statusEngine == nil {
		statusEngine = status.NewEngine(nil)
	}
	if prioritizer == nil {
		prioritizer = recommend.NewPrioritizer(nil)
	}
	return &Analyzer{
		engine:      engine,
		status:      statusEngine,
		prioritizer: prioritizer,
		history:     history,
		now:         time.Now,
	}
}

// Engine returns the reconciliation engine.
func (a *Analyzer) Engine() *reconcile.Engine {
	return a.engine
}

// History returns the history store, which may be nil.
func (a *Analyzer) History() HistoryStore {
	return a.history
}

// Analyze reviews a proposal against its requirements. A failing finding
// source or history store does not fail the analysis.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*Analysis, error) {
	report := a.engine.Reconcile(req.Requirements, req.Proposal)

	result := &Analysis{
		ID:        uuid.New().String(),
		SessionID: req.SessionID,
		Project:   req.Project,
		CreatedAt: a.now().UTC(),
		InputHash: InputHash(req.Requirements, req.Proposal),
		Report:    report,
	}

	var ai lineitem.Finding
	switch {
	case req.Findings != nil:
		ai = req.Findings.Clone()
	case req.Source != nil:
		f, err := req.Source.Analyze(ctx, req.Requirements, req.Proposal)
		if err != nil {
			log.Warn().Err(err).Str("analysis_id", result.ID).Msg("AI findings unavailable, continuing with rule-based analysis")
			result.AIError = err.Error()
		} else {
			ai = f
		}
	}

	result.AIFindings = a.prioritizer.MergeFindings(nil, ai)
	result.Findings = a.prioritizer.MergeFindings(report, ai)
	result.Status = a.status.Evaluate(status.Input{
		Completeness:  report.CompletenessScore,
		Accuracy:      report.AccuracyScore,
		CriticalCount: len(result.Findings.CriticalIssues),
		WarningCount:  len(result.Findings.Warnings),
		MissingCount:  len(report.Missing),
	})
	result.Recommendations = a.prioritizer.Prioritize(report, result.AIFindings)

	log.Info().
		Str("analysis_id", result.ID).
		Int("required", report.RequiredCount).
		Int("proposed", report.ProposedCount).
		Int("matches", len(report.Matches)).
		Int("discrepancies", len(report.Discrepancies)).
		Int("missing", len(report.Missing)).
		Int("extra", len(report.Extra)).
		Float64("completeness", report.CompletenessScore).
		Float64("accuracy", report.AccuracyScore).
		Str("status", string(result.Status.Code)).
		Msg("Bid analysis complete")

	if a.history != nil {
		if err := a.history.Save(ctx, result); err != nil {
			log.Error().Err(err).Str("analysis_id", result.ID).Msg("Failed to record analysis history")
		}
	}
	return result, nil
}

// InputHash fingerprints the reconciled inputs so repeated reviews of the
// same documents can be recognized in history.
func InputHash(requirements, proposal []lineitem.LineItem) string {
	h := sha256.New()
	enc := json.NewEncoder(h)
	_ = enc.Encode(requirements)
	_ = enc.Encode(proposal)
	return hex.EncodeToString(h.Sum(nil))
}

// StatusEngine returns the status engine.
func (a *Analyzer) StatusEngine() *status.Engine {
	return a.status
}
