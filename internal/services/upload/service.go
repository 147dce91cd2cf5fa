package upload

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"omraudit/internal/domain"
	"omraudit/internal/logging"
)

var (
	ErrTemplateRequired = errors.New("select a template")
	ErrFileRequired     = errors.New("select a ZIP file")
	ErrNotZip           = errors.New("only ZIP files are accepted")
	ErrTokenRequired    = errors.New("set the audit token before processing")
	ErrNoTemplates      = errors.New("the backend offers no templates")
)

// Backend is the part of the audits service used for uploads.
type Backend interface {
	Templates(ctx context.Context) ([]string, error)
	ProcessOMR(ctx context.Context, up domain.Upload) (domain.ProcessResponse, error)
}

type CredentialSource interface {
	Snapshot() (domain.Credentials, bool)
}

type Service struct {
	backend       Backend
	creds         CredentialSource
	tokenRequired bool
	log           *slog.Logger
}

func New(backend Backend, creds CredentialSource, tokenRequired bool, log *slog.Logger) *Service {
	if log == nil {
		log = logging.Discard()
	}
	return &Service{backend: backend, creds: creds, tokenRequired: tokenRequired, log: log}
}

// Validate checks the form before anything is sent.
func (s *Service) Validate(up domain.Upload) error {
	if strings.TrimSpace(up.Template) == "" {
		return ErrTemplateRequired
	}
	if up.FileName == "" || up.Content == nil {
		return ErrFileRequired
	}
	if !strings.HasSuffix(strings.ToLower(up.FileName), ".zip") {
		return ErrNotZip
	}
	if s.tokenRequired {
		if creds, _ := s.creds.Snapshot(); creds.Token == "" {
			return ErrTokenRequired
		}
	}
	return nil
}

// DefaultTemplate picks the first template offered by the backend.
func (s *Service) DefaultTemplate(ctx context.Context) (string, error) {
	templates, err := s.backend.Templates(ctx)
	if err != nil {
		return "", err
	}
	if len(templates) == 0 {
		return "", ErrNoTemplates
	}
	return templates[0], nil
}

// Submit validates and uploads a batch. An empty template is replaced by the
// backend's default before validation.
func (s *Service) Submit(ctx context.Context, up domain.Upload) (domain.ProcessResponse, error) {
	if strings.TrimSpace(up.Template) == "" {
		if tpl, err := s.DefaultTemplate(ctx); err == nil {
			up.Template = tpl
		}
	}
	if err := s.Validate(up); err != nil {
		return domain.ProcessResponse{}, err
	}
	resp, err := s.backend.ProcessOMR(ctx, up)
	if err != nil {
		s.log.Warn("processing failed", "file", up.FileName, "template", up.Template, "err", err)
		return resp, err
	}
	s.log.Info("batch processed",
		"batch", resp.Summary.BatchID,
		"processed", resp.Summary.Processed,
		"errors", resp.Summary.Errors)
	return resp, nil
}

// FirstItemID returns the audit item to select after an upload, if any.
func FirstItemID(resp domain.ProcessResponse) int {
	if resp.Audit == nil {
		return 0
	}
	items := domain.SortByPriority(resp.Audit.Items)
	if len(items) == 0 {
		return 0
	}
	return items[0].ID
}
