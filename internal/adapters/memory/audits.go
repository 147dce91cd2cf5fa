package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"omraudit/internal/domain"
	"omraudit/internal/ports"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func (s *Store) Batch(_ context.Context, batchID string) (domain.AuditSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[batchID]
	if !ok {
		return domain.AuditSummary{}, fmt.Errorf("batch %s: %w", batchID, ports.ErrNotFound)
	}
	sum := domain.AuditSummary{BatchID: b.id, Status: b.status, Items: []domain.AuditListItem{}}
	for _, d := range s.batchAuditsLocked(b.id) {
		sum.Items = append(sum.Items, d.ListItem())
		sum.Total++
		switch d.Status {
		case domain.StatusPending:
			sum.Pending++
		case domain.StatusResolved:
			sum.Resolved++
		}
	}
	return sum, nil
}

// batchAuditsLocked returns the batch's audit items in id order.
func (s *Store) batchAuditsLocked(batchID string) []*domain.AuditDetail {
	var out []*domain.AuditDetail
	for _, d := range s.audits {
		if d.BatchID == batchID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListAudits filters, counts and pages audit items, newest first.
func (s *Store) ListAudits(_ context.Context, p domain.ListParams) (domain.AuditListResponse, error) {
	page := max(p.Page, 1)
	size := p.PageSize
	if size < 1 {
		size = defaultPageSize
	}
	size = min(size, maxPageSize)

	s.mu.Lock()
	var matched []domain.AuditListItem
	for _, d := range s.audits {
		if p.Status != "" && d.Status != p.Status {
			continue
		}
		if p.Template != "" && d.Template != p.Template {
			continue
		}
		if p.BatchID != "" && d.BatchID != p.BatchID {
			continue
		}
		matched = append(matched, d.ListItem())
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.CreatedAt.Equal(b.CreatedAt.Time) {
			return a.CreatedAt.After(b.CreatedAt.Time)
		}
		return a.ID > b.ID
	})

	resp := domain.AuditListResponse{
		Items:      []domain.AuditListItem{},
		Total:      len(matched),
		Page:       page,
		PageSize:   size,
		TotalPages: max(1, (len(matched)+size-1)/size),
	}
	for _, it := range matched {
		switch it.Status {
		case domain.StatusPending:
			resp.Pending++
		case domain.StatusResolved:
			resp.Resolved++
		case domain.StatusReopened:
			resp.Reopened++
		}
	}
	start := (page - 1) * size
	if start < len(matched) {
		resp.Items = append(resp.Items, matched[start:min(start+size, len(matched))]...)
	}
	return resp, nil
}

func (s *Store) GetAudit(_ context.Context, id int) (domain.AuditDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.audits[id]
	if !ok {
		return domain.AuditDetail{}, fmt.Errorf("audit item %d: %w", id, ports.ErrNotFound)
	}
	return cloneDetail(d), nil
}

// ApplyDecision stores the corrected answers and notes and resolves the item.
// An empty answer clears the correction. Any previous export of the batch is
// discarded.
func (s *Store) ApplyDecision(_ context.Context, id int, req domain.DecisionRequest) (domain.AuditDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.audits[id]
	if !ok {
		return domain.AuditDetail{}, fmt.Errorf("audit item %d: %w", id, ports.ErrNotFound)
	}
	index := make(map[string]int, len(d.Responses))
	for i, r := range d.Responses {
		index[r.Question] = i
	}
	var unknown []string
	for q := range req.Answers {
		if _, ok := index[q]; !ok {
			unknown = append(unknown, q)
		}
	}
	if len(unknown) > 0 {
		slices.Sort(unknown)
		return domain.AuditDetail{}, fmt.Errorf("unknown questions for this item: %s: %w", strings.Join(unknown, ", "), ports.ErrInvalid)
	}
	for q, v := range req.Answers {
		r := &d.Responses[index[q]]
		if v == "" {
			r.CorrectedValue = nil
			continue
		}
		r.CorrectedValue = &v
	}
	d.Notes = cloneString(req.Notes)
	d.Status = domain.StatusResolved
	d.UpdatedAt = domain.NewTimestamp(s.clock.Now().UTC())
	if b, ok := s.batches[d.BatchID]; ok {
		s.invalidateExportLocked(b)
	}
	return cloneDetail(d), nil
}

func (s *Store) invalidateExportLocked(b *batch) {
	if b.export != nil {
		s.log.Debug("export invalidated", "batch", b.id)
	}
	b.export = nil
	b.status = domain.BatchPending
}

// ExportBatch applies every correction to the results sheet. An existing
// export is returned unchanged; decisions and new sheets discard it.
func (s *Store) ExportBatch(_ context.Context, batchID, user string) (domain.ExportMetadata, ports.ResultTable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[batchID]
	if !ok || len(b.rows) == 0 {
		return domain.ExportMetadata{}, ports.ResultTable{}, fmt.Errorf("batch %s: %w", batchID, ports.ErrNotFound)
	}

	corrections := map[string]map[string]string{}
	for _, d := range s.batchAuditsLocked(b.id) {
		values := make(map[string]string, len(d.Responses))
		for _, r := range d.Responses {
			switch {
			case r.CorrectedValue != nil:
				values[r.Question] = *r.CorrectedValue
			case r.ReadValue != nil:
				values[r.Question] = *r.ReadValue
			default:
				values[r.Question] = ""
			}
		}
		corrections[d.FileID] = values
	}

	rows := slices.Clone(b.rows)
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	table := ports.ResultTable{Columns: append([]string{"file_id"}, b.questions...)}
	for _, row := range rows {
		line := make([]string, 0, len(table.Columns))
		line = append(line, row.fileID)
		fixed := corrections[row.fileID]
		for _, q := range b.questions {
			v := row.answers[q]
			if c, ok := fixed[q]; ok {
				v = c
			}
			line = append(line, v)
		}
		table.Rows = append(table.Rows, line)
	}

	if b.export == nil {
		by := user
		b.export = &domain.ExportMetadata{
			BatchID:              b.id,
			Status:               domain.BatchExported,
			ExportedAt:           domain.NewTimestamp(s.clock.Now().UTC()),
			ExportedBy:           &by,
			CorrectedResultsPath: b.id + "/corrected_results.csv",
			ManifestPath:         b.id + "/results_manifest.json",
		}
		b.status = domain.BatchExported
		s.log.Info("batch exported", "batch", b.id, "user", user, "rows", len(table.Rows))
	}
	return *b.export, table, nil
}

// LastExport returns the metadata of the current export, or ErrNotFound when
// the batch has none.
func (s *Store) LastExport(_ context.Context, batchID string) (domain.ExportMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[batchID]
	if !ok || b.export == nil {
		return domain.ExportMetadata{}, fmt.Errorf("export of %s: %w", batchID, ports.ErrNotFound)
	}
	return *b.export, nil
}

// CleanupBatch forgets an exported batch with its items, jobs and images.
func (s *Store) CleanupBatch(_ context.Context, batchID string) (domain.CleanupResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[batchID]
	if !ok {
		return domain.CleanupResponse{}, fmt.Errorf("batch %s: %w", batchID, ports.ErrNotFound)
	}
	if b.status != domain.BatchExported {
		return domain.CleanupResponse{}, fmt.Errorf("batch must be exported before cleanup: %w", ports.ErrConflict)
	}
	for id, d := range s.audits {
		if d.BatchID == batchID {
			delete(s.audits, id)
		}
	}
	for id, j := range s.jobs {
		if j.job.BatchID == batchID {
			delete(s.jobs, id)
		}
	}
	prefix := batchID + "/"
	for p := range s.images {
		if strings.HasPrefix(p, prefix) {
			delete(s.images, p)
		}
	}
	delete(s.batches, batchID)
	return domain.CleanupResponse{
		BatchID:      batchID,
		Status:       domain.BatchCleaned,
		RemovedPaths: []string{"results/" + batchID, "exports/" + batchID, "static/" + batchID},
	}, nil
}
