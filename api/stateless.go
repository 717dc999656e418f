package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"bid-review/decision/lineitem"
	"bid-review/decision/status"
	"bid-review/decision/takeoff"
	"bid-review/ingest"
	"bid-review/pkg/errors"
)

// =============================================================================
// STATELESS ENDPOINTS
// =============================================================================

// ReconcileRequest is the body of POST /api/v1/reconcile.
type ReconcileRequest struct {
	Required  json.RawMessage `json:"required"`
	Proposed  json.RawMessage `json:"proposed"`
	Tolerance *float64        `json:"tolerance,omitempty" validate:"omitempty,gte=0"`
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	required, err := decodeItems(req.Required, "required")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	proposed, err := decodeItems(req.Proposed, "proposed")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	engine := s.analyzer.Engine()
	tolerance := engine.Config().VarianceTolerance
	if req.Tolerance != nil {
		tolerance = *req.Tolerance
	}
	s.jsonResponse(w, http.StatusOK, engine.ReconcileWithTolerance(required, proposed, tolerance))
}

// CompareRequest is the body of POST /api/v1/compare.
type CompareRequest struct {
	Proposal  json.RawMessage `json:"proposal"`
	Plan      json.RawMessage `json:"plan"`
	Tolerance *float64        `json:"tolerance,omitempty" validate:"omitempty,gte=0"`
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req CompareRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	proposal, err := decodeItems(req.Proposal, "proposal")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	plan, err := decodeItems(req.Plan, "plan")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, s.analyzer.Engine().CompareQuantities(proposal, plan, s.tolerance(req.Tolerance)))
}

// AggregateRequest is the body of POST /api/v1/aggregate.
type AggregateRequest struct {
	Items json.RawMessage `json:"items"`
}

// AggregateResponse reports aggregated plan quantities.
type AggregateResponse struct {
	Items      []takeoff.AggregatedItem `json:"items"`
	RawCount   int                      `json:"raw_count"`
	Aggregated int                      `json:"aggregated_count"`
	Totals     takeoff.CostTotals       `json:"totals"`
}

func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	var req AggregateRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	items, err := decodeItems(req.Items, "items")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	aggs := takeoff.Aggregate(items)
	s.jsonResponse(w, http.StatusOK, AggregateResponse{
		Items:      aggs,
		RawCount:   len(items),
		Aggregated: len(aggs),
		Totals:     takeoff.Totals(items),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var in status.Input
	if err := s.decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, s.analyzer.StatusEngine().Evaluate(in))
}

// =============================================================================
// DECODING
// =============================================================================

// decode reads a JSON body and validates it.
func (s *Server) decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.NewParseError("request", err)
	}
	if err := s.validate.Struct(v); err != nil {
		return errors.NewValidationError("request", err)
	}
	return nil
}

// decodeItems decodes a line-item list field. An absent field is an empty
// list.
func decodeItems(raw json.RawMessage, field string) ([]lineitem.LineItem, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return []lineitem.LineItem{}, nil
	}
	items, err := ingest.DecodeItems(raw, field)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", field, err)
	}
	return items, nil
}

func (s *Server) tolerance(override *float64) float64 {
	if override != nil {
		return *override
	}
	return s.config.CompareTolerance
}
