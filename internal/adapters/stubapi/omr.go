package stubapi

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"omraudit/internal/domain"
	"omraudit/internal/ports"
	"omraudit/internal/workers/sheetreader"
)

func (s *Server) listTemplates(w http.ResponseWriter, _ *http.Request) {
	templates := slices.Clone(s.opts.Templates)
	slices.Sort(templates)
	if templates == nil {
		templates = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"templates": templates})
}

type sheetFile struct {
	name string
	data []byte
}

// processOMR accepts a ZIP of scanned sheets, reads every sheet on the
// worker pool and registers the flagged ones for review.
func (s *Server) processOMR(w http.ResponseWriter, r *http.Request) {
	if !s.processing.TryLock() {
		writeError(w, http.StatusTooManyRequests, "a batch is already being processed, try again when it finishes")
		return
	}
	defer s.processing.Unlock()
	log := s.logger(r)

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid upload: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	template := r.FormValue("template")
	if !validTemplate(template) {
		writeError(w, http.StatusBadRequest, "invalid template name")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()
	if !strings.HasSuffix(strings.ToLower(header.Filename), ".zip") {
		writeError(w, http.StatusBadRequest, "the file must be a ZIP archive")
		return
	}
	if !slices.Contains(s.opts.Templates, template) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("template %q not found, see /api/templates", template))
		return
	}
	content, err := io.ReadAll(io.LimitReader(file, s.opts.MaxUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read upload: "+err.Error())
		return
	}
	if int64(len(content)) > s.opts.MaxUploadBytes {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("ZIP exceeds the %d byte limit", s.opts.MaxUploadBytes))
		return
	}
	sheets, err := unzipSheets(content)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	batchID, err := s.audits.CreateBatch(ctx, template)
	if err != nil {
		s.writeRepoError(w, r, err)
		return
	}
	for _, sh := range sheets {
		job := ports.SheetJob{BatchID: batchID, Template: template, Filename: sh.name, Data: sh.data}
		if _, err := s.jobs.EnqueueSheet(ctx, job); err != nil {
			s.writeRepoError(w, r, err)
			return
		}
	}
	start := time.Now()
	results := sheetreader.Drain(ctx, s.jobs, s.processor, batchID, s.opts.Workers, log)

	resp := domain.ProcessResponse{
		Results: []domain.OMRResult{},
		Summary: domain.ProcessSummary{Total: len(results), BatchID: batchID},
	}
	for _, res := range results {
		if res.Err != nil {
			resp.Summary.Errors++
			resp.Errors = append(resp.Errors, fmt.Sprintf("%s: %v", res.Job.Filename, res.Err))
			continue
		}
		resp.Summary.Processed++
		marked := path.Join(batchID, "marked", path.Base(res.Job.Filename))
		url := "/static/" + marked
		warnings := res.Read.Warnings
		if warnings == nil {
			warnings = []string{}
		}
		resp.Results = append(resp.Results, domain.OMRResult{
			Filename:          res.Job.Filename,
			Data:              res.Read.Answers,
			ProcessedImage:    path.Base(marked),
			ProcessedImageURL: &url,
			Warnings:          warnings,
		})
	}
	switch {
	case resp.Summary.Processed == 0:
		resp.Status = "error"
	case resp.Summary.Errors > 0:
		resp.Status = "partial"
	default:
		resp.Status = "success"
	}
	if sum, err := s.audits.Batch(ctx, batchID); err == nil {
		resp.Audit = &sum
	}
	log.Info("batch processed", "batch", batchID, "template", template,
		"total", resp.Summary.Total, "processed", resp.Summary.Processed, "errors", resp.Summary.Errors, "took", time.Since(start))
	writeJSON(w, http.StatusOK, resp)
}

// unzipSheets returns the archive's files, skipping directories and hidden
// or resource-fork entries. At least one image is required.
func unzipSheets(content []byte) ([]sheetFile, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, errors.New("invalid ZIP archive")
	}
	var (
		out    []sheetFile
		images int
	)
	for _, f := range zr.File {
		name := path.Base(f.Name)
		if f.FileInfo().IsDir() || strings.HasPrefix(f.Name, "__MACOSX/") || strings.HasPrefix(name, ".") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(io.LimitReader(rc, maxEntryBytes))
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		if sheetreader.IsImage(name) {
			images++
		}
		out = append(out, sheetFile{name: name, data: data})
	}
	if images == 0 {
		return nil, errors.New("no valid images found in the ZIP")
	}
	return out, nil
}

func (s *Server) serveImage(w http.ResponseWriter, r *http.Request) {
	p := chi.URLParam(r, "*")
	data, err := s.images.Image(r.Context(), p)
	if err != nil {
		s.writeRepoError(w, r, err)
		return
	}
	http.ServeContent(w, r, path.Base(p), time.Time{}, bytes.NewReader(data))
}
