package stubapi

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	"omraudit/internal/domain"
)

// ExportFileName is the attachment name of a batch's corrected results.
func ExportFileName(batchID string) string {
	return fmt.Sprintf("corrected_results_%s.csv", batchID)
}

type cleanupRequest struct {
	BatchID string `json:"batch_id"`
	Confirm bool   `json:"confirm"`
}

func (s *Server) listAudits(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		status, template, batchID *string
		page, pageSize            *int
	)
	for name, dest := range map[string]any{
		"status": &status, "template": &template, "batch_id": &batchID,
		"page": &page, "page_size": &pageSize,
	} {
		if err := runtime.BindQueryParameter("form", true, false, name, q, dest); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	p := domain.ListParams{Page: 1, PageSize: 20}
	if status != nil && *status != "" {
		switch st := domain.AuditStatus(*status); st {
		case domain.StatusPending, domain.StatusResolved, domain.StatusReopened:
			p.Status = st
		default:
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", *status))
			return
		}
	}
	if template != nil {
		p.Template = *template
	}
	if batchID != nil && *batchID != "" {
		if !validBatchID(*batchID) {
			writeError(w, http.StatusBadRequest, "invalid batch_id")
			return
		}
		p.BatchID = *batchID
	}
	if page != nil {
		if *page < 1 {
			writeError(w, http.StatusBadRequest, "page must be at least 1")
			return
		}
		p.Page = *page
	}
	if pageSize != nil {
		if *pageSize < 1 || *pageSize > 100 {
			writeError(w, http.StatusBadRequest, "page_size must be between 1 and 100")
			return
		}
		p.PageSize = *pageSize
	}

	resp, err := s.audits.ListAudits(r.Context(), p)
	if err != nil {
		s.writeRepoError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func bindID(w http.ResponseWriter, r *http.Request) (int, bool) {
	var id int
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Required: true})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	return id, true
}

func (s *Server) getAudit(w http.ResponseWriter, r *http.Request) {
	id, ok := bindID(w, r)
	if !ok {
		return
	}
	d, err := s.audits.GetAudit(r.Context(), id)
	if err != nil {
		s.writeRepoError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) submitDecision(w http.ResponseWriter, r *http.Request) {
	id, ok := bindID(w, r)
	if !ok {
		return
	}
	var req domain.DecisionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var bad []string
	for q, v := range req.Answers {
		if !validAnswers[v] {
			bad = append(bad, fmt.Sprintf("%s=%s", q, v))
		}
	}
	if len(bad) > 0 {
		sort.Strings(bad)
		writeError(w, http.StatusBadRequest, "invalid answer values: "+strings.Join(bad, ", "))
		return
	}
	req.Notes = sanitizeNotes(req.Notes)

	d, err := s.audits.ApplyDecision(r.Context(), id, req)
	if err != nil {
		s.writeRepoError(w, r, err)
		return
	}
	s.logger(r).Info("decision recorded", "audit", id, "answers", len(req.Answers))
	writeJSON(w, http.StatusOK, d)
}

// exportBatch serves the corrected results CSV (format=file) or the
// metadata of the last export (format=json).
func (s *Server) exportBatch(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	var batchID string
	format := "file"
	if err := runtime.BindQueryParameter("form", true, true, "batch_id", q, &batchID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var formatParam *string
	if err := runtime.BindQueryParameter("form", true, false, "format", q, &formatParam); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if formatParam != nil {
		format = strings.ToLower(*formatParam)
	}
	if format != "file" && format != "json" {
		writeError(w, http.StatusBadRequest, "format must be file or json")
		return
	}
	if !validBatchID(batchID) {
		writeError(w, http.StatusBadRequest, "invalid batch_id")
		return
	}

	if format == "json" {
		meta, err := s.audits.LastExport(r.Context(), batchID)
		if err != nil {
			s.writeRepoError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, meta)
		return
	}

	_, table, err := s.audits.ExportBatch(r.Context(), batchID, user)
	if err != nil {
		s.writeRepoError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, ExportFileName(batchID)))
	w.WriteHeader(http.StatusOK)
	cw := csv.NewWriter(w)
	_ = cw.Write(table.Columns)
	_ = cw.WriteAll(table.Rows)
	if err := cw.Error(); err != nil {
		s.logger(r).Error("write export", "batch", batchID, "err", err)
	}
}

func (s *Server) cleanupBatch(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}
	var req cleanupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.Confirm {
		writeError(w, http.StatusBadRequest, "confirm the cleanup by setting 'confirm' to true")
		return
	}
	if !validBatchID(req.BatchID) {
		writeError(w, http.StatusBadRequest, "invalid batch_id")
		return
	}
	resp, err := s.audits.CleanupBatch(r.Context(), req.BatchID)
	if err != nil {
		s.writeRepoError(w, r, err)
		return
	}
	s.logger(r).Info("batch cleaned", "batch", req.BatchID)
	writeJSON(w, http.StatusOK, resp)
}
