package ports

import (
	"context"

	"omraudit/internal/domain"
)

// AuditAPI is the remote audit backend. Every call carries the caller's
// credentials explicitly.
type AuditAPI interface {
	Templates(ctx context.Context) ([]string, error)
	ProcessOMR(ctx context.Context, creds domain.Credentials, up domain.Upload) (domain.ProcessResponse, error)
	ListAudits(ctx context.Context, creds domain.Credentials, p domain.ListParams) (domain.AuditListResponse, error)
	GetAudit(ctx context.Context, creds domain.Credentials, id int) (domain.AuditDetail, error)
	SubmitDecision(ctx context.Context, creds domain.Credentials, id int, req domain.DecisionRequest) (domain.AuditDetail, error)
	ExportFile(ctx context.Context, creds domain.Credentials, batchID string) (domain.Blob, error)
	ExportMetadata(ctx context.Context, creds domain.Credentials, batchID string) (domain.ExportMetadata, error)
	Cleanup(ctx context.Context, creds domain.Credentials, batchID string) (domain.CleanupResponse, error)
}

// Audits is the cached, credential-aware view of the backend used by the
// review console.
type Audits interface {
	List(ctx context.Context, p domain.ListParams) (domain.AuditListResponse, error)
	Detail(ctx context.Context, id int) (domain.AuditDetail, error)
	SubmitDecision(ctx context.Context, id int, req domain.DecisionRequest) (domain.AuditDetail, error)
	ExportFile(ctx context.Context, batchID string) (domain.Blob, error)
	ExportMetadata(ctx context.Context, batchID string) (*domain.ExportMetadata, error)
	Cleanup(ctx context.Context, batchID string) (domain.CleanupResponse, error)
}

// Notifier shows transient success/error messages to the auditor.
type Notifier interface {
	Success(title, msg string)
	Error(title, msg string)
}

// FileSink stores a downloaded file and returns where it ended up.
type FileSink interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
}
