package memory

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"omraudit/internal/domain"
	"omraudit/internal/logging"
	"omraudit/internal/ports"
)

// Store keeps batches, audit items, sheet jobs and images in memory. One
// mutex guards everything; every method is safe for concurrent use.
type Store struct {
	clock clockwork.Clock
	log   *slog.Logger

	mu        sync.Mutex
	nextAudit int
	nextSeq   int
	batches   map[string]*batch
	audits    map[int]*domain.AuditDetail
	jobs      map[string]*sheetJob
	images    map[string][]byte
}

type batch struct {
	id        string
	template  string
	createdAt time.Time
	status    domain.BatchStatus
	questions []string
	rows      []resultRow
	export    *domain.ExportMetadata
}

type resultRow struct {
	seq     int
	fileID  string
	answers map[string]string
}

var (
	_ ports.AuditRepository = (*Store)(nil)
	_ ports.JobRepository   = (*Store)(nil)
	_ ports.ImageStore      = (*Store)(nil)
)

func New(clock clockwork.Clock, log *slog.Logger) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Store{
		clock:     clock,
		log:       log,
		nextAudit: 1,
		batches:   map[string]*batch{},
		audits:    map[int]*domain.AuditDetail{},
		jobs:      map[string]*sheetJob{},
		images:    map[string][]byte{},
	}
}

// CreateBatch opens an empty batch for template.
func (s *Store) CreateBatch(_ context.Context, template string) (string, error) {
	now := s.clock.Now().UTC()
	short, _, _ := strings.Cut(uuid.NewString(), "-")
	id := fmt.Sprintf("%s_%s_%s", template, now.Format("20060102_150405"), short)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[id] = &batch{id: id, template: template, createdAt: now, status: domain.BatchPending}
	return id, nil
}

// Image returns a stored sheet image by its path below /static.
func (s *Store) Image(_ context.Context, p string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.images[path.Clean(strings.TrimPrefix(p, "/"))]
	if !ok {
		return nil, fmt.Errorf("image %s: %w", p, ports.ErrNotFound)
	}
	return b, nil
}

func imagePath(batchID, variant, fileID string) string {
	return path.Join(batchID, variant, path.Base(fileID))
}

func publicURL(p string) *string {
	u := "/static/" + p
	return &u
}

func cloneDetail(d *domain.AuditDetail) domain.AuditDetail {
	out := *d
	out.Issues = append([]domain.Issue(nil), d.Issues...)
	out.Responses = make([]domain.AuditResponse, len(d.Responses))
	for i, r := range d.Responses {
		out.Responses[i] = domain.AuditResponse{
			Question:       r.Question,
			ReadValue:      cloneString(r.ReadValue),
			CorrectedValue: cloneString(r.CorrectedValue),
		}
	}
	out.RawAnswers = maps.Clone(d.RawAnswers)
	out.Notes = cloneString(d.Notes)
	return out
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
