package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"bid-review/decision/analysis"
	"bid-review/decision/lineitem"
	"bid-review/decision/reconcile"
	"bid-review/decision/takeoff"
	"bid-review/ingest"
	"bid-review/pkg/errors"
	"bid-review/session"
)

// =============================================================================
// SESSION WORKFLOW
// =============================================================================

// UploadResponse acknowledges a document upload.
type UploadResponse struct {
	SessionID  string          `json:"session_id"`
	Source     string          `json:"source,omitempty"`
	ItemsCount int             `json:"items_count"`
	Session    session.Summary `json:"session"`
}

// PlanUploadResponse acknowledges a plan-quantities upload.
type PlanUploadResponse struct {
	SessionID       string                   `json:"session_id"`
	Sources         []string                 `json:"sources"`
	RawCount        int                      `json:"raw_count"`
	AggregatedCount int                      `json:"aggregated_count"`
	Items           []takeoff.AggregatedItem `json:"items"`
}

// AnalyzeRequest is the optional body of POST /api/v1/session/analyze.
type AnalyzeRequest struct {
	UseAI   bool   `json:"use_ai"`
	Project string `json:"project" validate:"max=200"`
}

// sessionID returns the request's session, creating an ID when none was sent,
// and echoes it back.
func sessionID(w http.ResponseWriter, r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get(SessionHeader))
	if id == "" {
		id = session.New("").ID
	}
	w.Header().Set(SessionHeader, id)
	return id
}

func (s *Server) handleUploadRequirements(w http.ResponseWriter, r *http.Request) {
	s.uploadItems(w, r, func(sess *session.Session, items []lineitem.LineItem, source string) {
		sess.Requirements, sess.RequirementsSource = items, source
	})
}

func (s *Server) handleUploadProposal(w http.ResponseWriter, r *http.Request) {
	s.uploadItems(w, r, func(sess *session.Session, items []lineitem.LineItem, source string) {
		sess.Proposal, sess.ProposalSource = items, source
	})
}

func (s *Server) uploadItems(w http.ResponseWriter, r *http.Request, set func(*session.Session, []lineitem.LineItem, string)) {
	id := sessionID(w, r)
	items, sources, err := s.readItems(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	source := strings.Join(sources, ", ")
	project := r.URL.Query().Get("project")

	sess, err := s.sessions.Update(r.Context(), id, func(sess *session.Session) error {
		set(sess, items, source)
		if project != "" {
			sess.Project = project
		}
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, UploadResponse{
		SessionID:  id,
		Source:     source,
		ItemsCount: len(items),
		Session:    sess.Summary(),
	})
}

func (s *Server) handleUploadPlan(w http.ResponseWriter, r *http.Request) {
	id := sessionID(w, r)
	items, sources, err := s.readItems(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	sess, err := s.sessions.Update(r.Context(), id, func(sess *session.Session) error {
		sess.SetPlanQuantities(items, sources)
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, PlanUploadResponse{
		SessionID:       id,
		Sources:         sess.PlanSources,
		RawCount:        sess.PlanRawCount,
		AggregatedCount: len(sess.PlanQuantities),
		Items:           sess.PlanQuantities,
	})
}

// handleUploadFindings accepts a findings JSON document, or the raw text of a
// model response when sent as text/plain.
func (s *Server) handleUploadFindings(w http.ResponseWriter, r *http.Request) {
	id := sessionID(w, r)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var findings lineitem.Finding
	if mediaType(r) == "text/plain" {
		res := ingest.ParseFindings(string(data), "findings")
		if !res.OK() {
			s.writeError(w, r, res.Err)
			return
		}
		findings = res.Value
	} else {
		findings, err = ingest.DecodeFindings(data, "findings")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	sess, err := s.sessions.Update(r.Context(), id, func(sess *session.Session) error {
		sess.Findings = &findings
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, sess.Summary())
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	id := sessionID(w, r)

	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !stderrors.Is(err, io.EOF) {
		s.writeError(w, r, errors.NewParseError("request", err))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, r, errors.NewValidationError("request", err))
		return
	}

	sess, err := s.loadSession(r, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if sess.Requirements == nil {
		s.writeError(w, r, errors.NewMissingInputError("requirements document"))
		return
	}
	if sess.Proposal == nil {
		s.writeError(w, r, errors.NewMissingInputError("bid proposal"))
		return
	}

	areq := analysis.Request{
		SessionID:    id,
		Project:      sess.Project,
		Requirements: sess.Requirements,
		Proposal:     sess.Proposal,
		Findings:     sess.Findings,
	}
	if req.Project != "" {
		areq.Project = req.Project
	}
	if req.UseAI && areq.Findings == nil {
		areq.Source = s.ai
		if s.ai == nil {
			areq.Source = unavailableSource{}
		}
	}

	result, err := s.analyzer.Analyze(r.Context(), areq)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if _, err := s.sessions.Update(r.Context(), id, func(sess *session.Session) error {
		sess.LastAnalysisID = result.ID
		return nil
	}); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, result)
}

// SessionCompareResponse is the result of a session quantity comparison.
type SessionCompareResponse struct {
	SessionID  string                        `json:"session_id"`
	Tolerance  float64                       `json:"tolerance"`
	Comparison *reconcile.QuantityComparison `json:"comparison"`
}

func (s *Server) handleSessionCompare(w http.ResponseWriter, r *http.Request) {
	id := sessionID(w, r)

	var override *float64
	if v := r.URL.Query().Get("tolerance"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil || t < 0 {
			s.writeError(w, r, errors.NewValidationError("request", fmt.Errorf("invalid tolerance %q", v)))
			return
		}
		override = &t
	}

	sess, err := s.loadSession(r, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if sess.Proposal == nil {
		s.writeError(w, r, errors.NewMissingInputError("bid proposal"))
		return
	}
	if sess.PlanQuantities == nil {
		s.writeError(w, r, errors.NewMissingInputError("plan quantities"))
		return
	}

	tolerance := s.tolerance(override)
	plan := takeoff.LineItems(sess.PlanQuantities)
	s.jsonResponse(w, http.StatusOK, SessionCompareResponse{
		SessionID:  id,
		Tolerance:  tolerance,
		Comparison: s.analyzer.Engine().CompareQuantities(sess.Proposal, plan, tolerance),
	})
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	id := sessionID(w, r)
	sess, err := s.sessions.Get(r.Context(), id)
	if errors.Code(err) == errors.ErrCodeSessionNotFound {
		sess, err = session.New(id), nil
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, sess.Summary())
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	id := sessionID(w, r)
	sess, err := s.sessions.Update(r.Context(), id, func(sess *session.Session) error {
		sess.Clear()
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, sess.Summary())
}

// unavailableSource stands in for the AI collaborator when none is
// configured, so a request for AI findings is reported on the analysis.
type unavailableSource struct{}

func (unavailableSource) Analyze(context.Context, []lineitem.LineItem, []lineitem.LineItem) (lineitem.Finding, error) {
	return lineitem.Finding{}, errors.NewAIUnavailableError(fmt.Errorf("no API key configured"))
}

// loadSession treats an unknown session as one with nothing uploaded.
func (s *Server) loadSession(r *http.Request, id string) (*session.Session, error) {
	sess, err := s.sessions.Get(r.Context(), id)
	if errors.Code(err) == errors.ErrCodeSessionNotFound {
		return session.New(id), nil
	}
	return sess, err
}

// =============================================================================
// UPLOADS
// =============================================================================

// readItems reads line items from a multipart upload of one or more "file"
// parts, or from a JSON body.
func (s *Server) readItems(r *http.Request) ([]lineitem.LineItem, []string, error) {
	if mediaType(r) != "multipart/form-data" {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, nil, err
		}
		source := r.URL.Query().Get("source")
		if source == "" {
			source = "upload"
		}
		items, err := ingest.DecodeItems(data, source)
		if err != nil {
			return nil, nil, err
		}
		return items, []string{source}, nil
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, nil, errors.NewParseError("upload", err)
	}
	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		return nil, nil, errors.NewValidationError("upload", fmt.Errorf("no file part in upload"))
	}

	items := make([]lineitem.LineItem, 0)
	sources := make([]string, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return nil, nil, errors.NewParseError(fh.Filename, err)
		}
		got, err := ingest.ReadItems(fh.Filename, f)
		f.Close()
		if err != nil {
			return nil, nil, err
		}
		items = append(items, got...)
		sources = append(sources, fh.Filename)
	}
	return items, sources, nil
}

func mediaType(r *http.Request) string {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return mt
}
