package ports

import (
	"context"
	"errors"

	"omraudit/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict reports an operation not allowed in the current state.
	ErrConflict = errors.New("conflict")
	ErrInvalid  = errors.New("invalid input")
)

// CredentialStore persists the auditor's credentials between runs.
type CredentialStore interface {
	// Load reports found=false when nothing usable is stored.
	Load() (creds domain.Credentials, found bool, err error)
	Save(creds domain.Credentials) error
	Clear() error
}

// ResultTable is the results sheet of a batch: one row per read sheet,
// "file_id" first and then one column per question.
type ResultTable struct {
	Columns []string
	Rows    [][]string
}

// AuditRepository backs the stand-in audit server.
type AuditRepository interface {
	CreateBatch(ctx context.Context, template string) (batchID string, err error)
	Batch(ctx context.Context, batchID string) (domain.AuditSummary, error)
	ListAudits(ctx context.Context, p domain.ListParams) (domain.AuditListResponse, error)
	GetAudit(ctx context.Context, id int) (domain.AuditDetail, error)
	ApplyDecision(ctx context.Context, id int, req domain.DecisionRequest) (domain.AuditDetail, error)
	// ExportBatch marks the batch exported by user and returns the results
	// with every correction applied.
	ExportBatch(ctx context.Context, batchID, user string) (domain.ExportMetadata, ResultTable, error)
	LastExport(ctx context.Context, batchID string) (domain.ExportMetadata, error)
	CleanupBatch(ctx context.Context, batchID string) (domain.CleanupResponse, error)
}

// ImageStore keeps the sheet images served under /static.
type ImageStore interface {
	Image(ctx context.Context, path string) ([]byte, error)
}
