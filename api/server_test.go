package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"bid-review/db/memory"
	"bid-review/decision/analysis"
	"bid-review/decision/reconcile"
	"bid-review/decision/status"
	"bid-review/session"
)

const (
	requirementsJSON = `{"line_items":[
		{"description":"Silt Fence","quantity":500,"unit":"LF"},
		{"description":"Inlet Protection","quantity":4,"unit":"EA"},
		{"description":"Mobilization","quantity":1,"unit":"LS"}
	]}`
	proposalJSON = `[
		{"description":"SILT FENCE","quantity":"510","unit":"LF","unit_price":"3.25"},
		{"description":"Mobilization","quantity":1,"unit":"LS","unit_price":"12000"}
	]`
)

func newTestServer(t *testing.T, cfg *Config) (*Server, http.Handler) {
	t.Helper()
	history := memory.NewHistoryStore(100)
	analyzer := analysis.NewAnalyzer(nil, nil, nil, history)
	srv := NewServer(analyzer, memory.NewSessionStore(time.Hour), nil, cfg)
	return srv, srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path, sessionID, contentType string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if sessionID != "" {
		req.Header.Set(SessionHeader, sessionID)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	t.Parallel()
	_, h := newTestServer(t, nil)

	for _, path := range []string{"/health", "/ready"} {
		rec := do(t, h, http.MethodGet, path, "", "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s want=200 got=%d", path, rec.Code)
		}
	}
}

func TestReconcileEndpoint(t *testing.T) {
	t.Parallel()
	_, h := newTestServer(t, nil)

	body := `{"required":` + requirementsJSON + `,"proposed":` + proposalJSON + `,"tolerance":0.01}`
	rec := do(t, h, http.MethodPost, "/api/v1/reconcile", "", "application/json", []byte(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}

	report := decodeBody[reconcile.Report](t, rec)
	if len(report.Matches) != 1 || len(report.Discrepancies) != 1 || len(report.Missing) != 1 {
		t.Fatalf("a 2%% variance must be a discrepancy at 1%% tolerance: %+v", report)
	}
	if report.Discrepancies[0].VariancePct != 2 {
		t.Fatalf("variance_pct=%v", report.Discrepancies[0].VariancePct)
	}
}

func TestReconcileEndpoint_BadRequests(t *testing.T) {
	t.Parallel()
	_, h := newTestServer(t, nil)

	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"not json", `{`, "PARSE_FAILED"},
		{"negative tolerance", `{"required":[],"proposed":[],"tolerance":-1}`, "VALIDATION_FAILED"},
		{"bad items", `{"required":{"line_items":"nope"},"proposed":[]}`, "PARSE_FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/v1/reconcile", "", "application/json", []byte(tt.body))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("want=400 got=%d body=%s", rec.Code, rec.Body.String())
			}
			if got := decodeBody[ErrorResponse](t, rec); got.Code != tt.wantCode {
				t.Fatalf("code want=%s got=%s", tt.wantCode, got.Code)
			}
		})
	}
}

func TestCompareEndpoint_ZeroTolerance(t *testing.T) {
	t.Parallel()
	_, h := newTestServer(t, nil)

	const items = `"proposal":[{"description":"Silt Fence","quantity":505,"unit":"LF"}],` +
		`"plan":[{"description":"Silt Fence","quantity":500,"unit":"LF"}]`

	rec := do(t, h, http.MethodPost, "/api/v1/compare", "", "application/json", []byte(`{`+items+`}`))
	cmp := decodeBody[reconcile.QuantityComparison](t, rec)
	if len(cmp.Matches) != 1 {
		t.Fatalf("1%% is inside the default tolerance: %+v", cmp)
	}

	rec = do(t, h, http.MethodPost, "/api/v1/compare", "", "application/json", []byte(`{`+items+`,"tolerance":0}`))
	cmp = decodeBody[reconcile.QuantityComparison](t, rec)
	if len(cmp.Matches) != 0 || len(cmp.OverEstimated) != 1 {
		t.Fatalf("zero tolerance must be strict: %+v", cmp)
	}
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()
	_, h := newTestServer(t, nil)

	body := `{"completeness_score":95,"accuracy_score":70,"critical_count":0,"warning_count":1,"missing_count":0}`
	rec := do(t, h, http.MethodPost, "/api/v1/status", "", "application/json", []byte(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("want=200 got=%d", rec.Code)
	}
	got := decodeBody[status.Status](t, rec)
	if got.Code != status.NeedsReview || got.Message != "Quantity accuracy is 70% - review discrepancies" {
		t.Fatalf("status: %+v", got)
	}
}

func TestAggregateEndpoint(t *testing.T) {
	t.Parallel()
	_, h := newTestServer(t, nil)

	body := `{"items":[
		{"description":"Curb & Gutter","quantity":100,"unit":"lf","category":"Paving","source":"C-101"},
		{"description":"curb gutter","quantity":50,"unit":"LF","source":"C-102"}
	]}`
	rec := do(t, h, http.MethodPost, "/api/v1/aggregate", "", "application/json", []byte(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}
	got := decodeBody[AggregateResponse](t, rec)
	if got.RawCount != 2 || got.Aggregated != 1 || got.Items[0].SourceCount != 2 {
		t.Fatalf("aggregate: %+v", got)
	}
}

func TestSessionWorkflow(t *testing.T) {
	t.Parallel()
	_, h := newTestServer(t, nil)

	rec := do(t, h, http.MethodPost, "/api/v1/session/requirements?project=Riverside", "", "application/json", []byte(requirementsJSON))
	if rec.Code != http.StatusOK {
		t.Fatalf("requirements upload: %d %s", rec.Code, rec.Body.String())
	}
	sid := rec.Header().Get(SessionHeader)
	if sid == "" {
		t.Fatalf("session id not echoed")
	}
	if up := decodeBody[UploadResponse](t, rec); up.ItemsCount != 3 || !up.Session.HasRequirements {
		t.Fatalf("upload response: %+v", up)
	}

	rec = do(t, h, http.MethodPost, "/api/v1/session/analyze", sid, "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("analyze without proposal want=400 got=%d", rec.Code)
	}
	if e := decodeBody[ErrorResponse](t, rec); e.Code != "MISSING_INPUT" || e.Error != "Please upload bid proposal first" {
		t.Fatalf("error: %+v", e)
	}

	rec = do(t, h, http.MethodPost, "/api/v1/session/proposal", sid, "application/json", []byte(proposalJSON))
	if rec.Code != http.StatusOK {
		t.Fatalf("proposal upload: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodPost, "/api/v1/session/analyze", sid, "application/json", []byte(`{}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("analyze: %d %s", rec.Code, rec.Body.String())
	}
	result := decodeBody[analysis.Analysis](t, rec)
	if result.Project != "Riverside" || result.SessionID != sid {
		t.Fatalf("analysis identity: %+v", result)
	}
	if result.Status.Code != status.Incomplete || result.Status.Color != status.Orange {
		t.Fatalf("status: %+v", result.Status)
	}
	if len(result.Findings.Warnings) != 1 || result.Findings.Warnings[0] != "Missing item: Inlet Protection" {
		t.Fatalf("merged warnings: %+v", result.Findings.Warnings)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/session/status", sid, "", nil)
	if sum := decodeBody[session.Summary](t, rec); sum.LastAnalysisID != result.ID || sum.ProposalCount != 2 {
		t.Fatalf("summary: %+v", sum)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/history?session_id="+sid, "", "", nil)
	entries := decodeBody[[]analysis.HistoryEntry](t, rec)
	if len(entries) != 1 || entries[0].ID != result.ID || entries[0].Missing != 1 {
		t.Fatalf("history: %+v", entries)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/history/"+result.ID+"/export.xlsx", "", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Header().Get("Content-Disposition"), result.ID) {
		t.Fatalf("export: %d %v", rec.Code, rec.Header())
	}
	f, err := excelize.OpenReader(rec.Body)
	if err != nil {
		t.Fatalf("export is not a workbook: %v", err)
	}
	f.Close()

	rec = do(t, h, http.MethodPost, "/api/v1/session/clear", sid, "", nil)
	if sum := decodeBody[session.Summary](t, rec); sum.HasRequirements || sum.HasProposal {
		t.Fatalf("clear kept uploads: %+v", sum)
	}
	rec = do(t, h, http.MethodGet, "/api/v1/history", "", "", nil)
	if entries := decodeBody[[]analysis.HistoryEntry](t, rec); len(entries) != 1 {
		t.Fatalf("clear must keep history: %+v", entries)
	}
}

func TestAnalyze_UploadedFindingsAndAIFallback(t *testing.T) {
	t.Parallel()
	_, h := newTestServer(t, nil)

	const sid = "findings-session"
	do(t, h, http.MethodPost, "/api/v1/session/requirements", sid, "application/json", []byte(requirementsJSON))
	do(t, h, http.MethodPost, "/api/v1/session/proposal", sid, "application/json", []byte(proposalJSON))

	rec := do(t, h, http.MethodPost, "/api/v1/session/analyze", sid, "application/json", []byte(`{"use_ai":true}`))
	result := decodeBody[analysis.Analysis](t, rec)
	if result.AIError == "" {
		t.Fatalf("AI requested without a client should be reported on the analysis")
	}

	fenced := "```json\n{\"critical_issues\":[\"Bond form not signed\"],\"warnings\":[],\"recommendations\":[]}\n```"
	rec = do(t, h, http.MethodPost, "/api/v1/session/findings", sid, "text/plain", []byte(fenced))
	if rec.Code != http.StatusOK {
		t.Fatalf("findings upload: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodPost, "/api/v1/session/analyze", sid, "", nil)
	result = decodeBody[analysis.Analysis](t, rec)
	if result.Status.Code != status.NotReady || result.AIError != "" {
		t.Fatalf("uploaded critical issue should block the bid: %+v", result.Status)
	}
	if len(result.Recommendations) == 0 || result.Recommendations[0].Action != "Bond form not signed" {
		t.Fatalf("critical issue should lead recommendations: %+v", result.Recommendations)
	}
}

func TestPlanUploadAndCompare(t *testing.T) {
	t.Parallel()
	_, h := newTestServer(t, nil)

	const sid = "plan-session"
	do(t, h, http.MethodPost, "/api/v1/session/proposal", sid, "application/json", []byte(proposalJSON))

	rec := do(t, h, http.MethodPost, "/api/v1/session/compare", sid, "", nil)
	if e := decodeBody[ErrorResponse](t, rec); e.Error != "Please upload plan quantities first" {
		t.Fatalf("compare without plan: %+v", e)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, sheet := range []struct {
		name string
		rows [][]any
	}{
		{"C-101.xlsx", [][]any{{"Description", "Qty", "Unit"}, {"Silt Fence", 300, "LF"}}},
		{"C-102.xlsx", [][]any{{"Description", "Qty", "Unit"}, {"silt fence", 150, "lf"}, {"Mobilization", 1, "LS"}}},
	} {
		part, err := mw.CreateFormFile("file", sheet.name)
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		if _, err := part.Write(workbook(t, sheet.rows)); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	mw.Close()

	rec = do(t, h, http.MethodPost, "/api/v1/session/plan-quantities", sid, mw.FormDataContentType(), body.Bytes())
	if rec.Code != http.StatusOK {
		t.Fatalf("plan upload: %d %s", rec.Code, rec.Body.String())
	}
	plan := decodeBody[PlanUploadResponse](t, rec)
	if plan.RawCount != 3 || plan.AggregatedCount != 2 || len(plan.Sources) != 2 {
		t.Fatalf("plan: %+v", plan)
	}

	rec = do(t, h, http.MethodPost, "/api/v1/session/compare", sid, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("compare: %d %s", rec.Code, rec.Body.String())
	}
	cmp := decodeBody[SessionCompareResponse](t, rec)
	if cmp.Tolerance != 0.10 {
		t.Fatalf("default tolerance: %v", cmp.Tolerance)
	}
	// 510 proposed against 450 on plans is 13% over.
	if len(cmp.Comparison.OverEstimated) != 1 || len(cmp.Comparison.Matches) != 1 {
		t.Fatalf("comparison: %+v", cmp.Comparison)
	}

	rec = do(t, h, http.MethodPost, "/api/v1/session/compare?tolerance=0.2", sid, "", nil)
	cmp = decodeBody[SessionCompareResponse](t, rec)
	if len(cmp.Comparison.Matches) != 2 {
		t.Fatalf("wider tolerance should match both: %+v", cmp.Comparison)
	}
}

func TestAPIKeyAndNotFound(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.APIKey = "secret"
	_, h := newTestServer(t, cfg)

	rec := do(t, h, http.MethodGet, "/api/v1/history", "", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("want=401 got=%d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/health", "", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("health must not require a key, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/history/missing", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("want=404 got=%d", rec.Code)
	}
	if e := decodeBody[ErrorResponse](t, rec); e.Code != "ANALYSIS_NOT_FOUND" {
		t.Fatalf("error: %+v", e)
	}
}

func workbook(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		r := row
		if err := f.SetSheetRow("Sheet1", cell, &r); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}
