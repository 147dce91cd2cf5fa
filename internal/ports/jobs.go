package ports

import (
	"context"

	"omraudit/internal/domain"
)

// SheetJob is one scanned sheet waiting to be read.
type SheetJob struct {
	ID       string
	BatchID  string
	Template string
	Filename string
	Data     []byte
}

// SheetRead is the outcome of reading one sheet. Questions keeps the
// template's question order.
type SheetRead struct {
	Questions []string
	Answers   map[string]string
	Warnings  []string
}

// JobRepository supports claiming and completing sheet jobs.
type JobRepository interface {
	EnqueueSheet(ctx context.Context, job SheetJob) (jobID string, err error)
	// ClaimNext marks the oldest queued job of batchID running.
	ClaimNext(ctx context.Context, batchID string) (job SheetJob, found bool, err error)
	// MarkCompleted records the read. It returns the audit item created for
	// the sheet, or nil when the sheet needs no review.
	MarkCompleted(ctx context.Context, jobID string, read SheetRead) (*domain.AuditDetail, error)
	MarkFailed(ctx context.Context, jobID string, reason string) error
}
