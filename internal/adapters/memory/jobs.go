package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"omraudit/internal/domain"
	"omraudit/internal/ports"
)

type jobStatus string

const (
	jobQueued    jobStatus = "queued"
	jobRunning   jobStatus = "running"
	jobCompleted jobStatus = "completed"
	jobFailed    jobStatus = "failed"
)

type sheetJob struct {
	job        ports.SheetJob
	seq        int
	status     jobStatus
	attempts   int
	reason     string
	queuedAt   time.Time
	startedAt  time.Time
	finishedAt time.Time
}

// EnqueueSheet queues a sheet of an existing batch.
func (s *Store) EnqueueSheet(_ context.Context, job ports.SheetJob) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.batches[job.BatchID]; !ok {
		return "", fmt.Errorf("batch %s: %w", job.BatchID, ports.ErrNotFound)
	}
	job.ID = uuid.NewString()
	s.nextSeq++
	s.jobs[job.ID] = &sheetJob{job: job, seq: s.nextSeq, status: jobQueued, queuedAt: s.clock.Now()}
	return job.ID, nil
}

// ClaimNext picks the oldest queued job of the batch and marks it running.
func (s *Store) ClaimNext(_ context.Context, batchID string) (ports.SheetJob, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var next *sheetJob
	for _, j := range s.jobs {
		if j.status != jobQueued || j.job.BatchID != batchID {
			continue
		}
		if next == nil || j.seq < next.seq {
			next = j
		}
	}
	if next == nil {
		return ports.SheetJob{}, false, nil
	}
	next.status = jobRunning
	next.attempts++
	next.startedAt = s.clock.Now()
	return next.job, true, nil
}

// MarkCompleted stores the read as a results row. Sheets with problem
// answers also become pending audit items.
func (s *Store) MarkCompleted(_ context.Context, jobID string, read ports.SheetRead) (*domain.AuditDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", jobID, ports.ErrNotFound)
	}
	if j.status != jobRunning {
		return nil, fmt.Errorf("job %s is %s: %w", jobID, j.status, ports.ErrConflict)
	}
	b, ok := s.batches[j.job.BatchID]
	if !ok {
		return nil, fmt.Errorf("batch %s: %w", j.job.BatchID, ports.ErrNotFound)
	}
	now := s.clock.Now().UTC()
	j.status = jobCompleted
	j.finishedAt = now

	b.rows = append(b.rows, resultRow{seq: j.seq, fileID: j.job.Filename, answers: maps.Clone(read.Answers)})
	for _, q := range read.Questions {
		if !slices.Contains(b.questions, q) {
			b.questions = append(b.questions, q)
		}
	}
	s.invalidateExportLocked(b)

	original := imagePath(b.id, "original", j.job.Filename)
	marked := imagePath(b.id, "marked", j.job.Filename)
	s.images[original] = j.job.Data
	s.images[marked] = j.job.Data

	issues := domain.DetectIssues(read.Questions, read.Answers)
	if len(issues) == 0 {
		return nil, nil
	}
	d := &domain.AuditDetail{
		ID:             s.nextAudit,
		FileID:         j.job.Filename,
		Template:       b.template,
		BatchID:        b.id,
		Issues:         issues,
		Status:         domain.StatusPending,
		RawAnswers:     maps.Clone(read.Answers),
		ImageURL:       publicURL(original),
		MarkedImageURL: publicURL(marked),
		CreatedAt:      domain.NewTimestamp(now),
		UpdatedAt:      domain.NewTimestamp(now),
	}
	for _, q := range read.Questions {
		r := domain.AuditResponse{Question: q}
		if v := read.Answers[q]; v != "" {
			r.ReadValue = &v
		}
		d.Responses = append(d.Responses, r)
	}
	s.nextAudit++
	s.audits[d.ID] = d
	out := cloneDetail(d)
	return &out, nil
}

func (s *Store) MarkFailed(_ context.Context, jobID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s: %w", jobID, ports.ErrNotFound)
	}
	j.status = jobFailed
	j.reason = reason
	j.finishedAt = s.clock.Now()
	s.log.Warn("sheet failed", "job", jobID, "file", j.job.Filename, "reason", reason)
	return nil
}
