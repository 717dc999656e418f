package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"bid-review/decision/analysis"
	"bid-review/pkg/errors"
	"bid-review/report"
)

// =============================================================================
// HISTORY ENDPOINTS
// =============================================================================

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	h := s.analyzer.History()
	if h == nil {
		s.jsonResponse(w, http.StatusOK, []analysis.HistoryEntry{})
		return
	}

	filter := analysis.HistoryFilter{SessionID: r.URL.Query().Get("session_id")}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, r, errors.NewValidationError("request", fmt.Errorf("invalid limit %q", v)))
			return
		}
		filter.Limit = n
	}

	entries, err := h.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, entries)
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	a, err := s.getAnalysis(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, a)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	a, err := s.getAnalysis(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteWorkbook(&buf, a); err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="bid-analysis-%s.xlsx"`, a.ID))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *Server) getAnalysis(r *http.Request) (*analysis.Analysis, error) {
	id := chi.URLParam(r, "id")
	h := s.analyzer.History()
	if h == nil {
		return nil, errors.NewAnalysisNotFoundError(id)
	}
	return h.Get(r.Context(), id)
}
