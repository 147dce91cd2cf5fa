package audits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"omraudit/internal/config"
	"omraudit/internal/domain"
	"omraudit/internal/logging"
	"omraudit/internal/ports"
	"omraudit/internal/services/query"
)

const (
	TemplatesStaleTime = 10 * time.Minute
	MetadataStaleTime  = 10 * time.Second
)

var (
	// ErrNotEnabled means the query's prerequisites (hydrated credentials, a
	// user, the required identifier) are missing; no request was sent.
	ErrNotEnabled     = errors.New("query not enabled")
	ErrSubmitInFlight = errors.New("a decision for this item is already being saved")
)

// CredentialSource exposes the current credentials and hydration state.
type CredentialSource interface {
	Snapshot() (domain.Credentials, bool)
}

// Enabled reports whether an authenticated query may run.
func Enabled(creds domain.Credentials, hydrated bool, required ...string) bool {
	if !hydrated || strings.TrimSpace(creds.User) == "" {
		return false
	}
	for _, r := range required {
		if r == "" {
			return false
		}
	}
	return true
}

// Service wraps the backend with caching, enablement and invalidation rules.
type Service struct {
	api      ports.AuditAPI
	creds    CredentialSource
	cache    *query.Cache
	cacheTTL time.Duration
	log      *slog.Logger

	mu       sync.Mutex
	inflight map[int]struct{}
}

func New(api ports.AuditAPI, creds CredentialSource, cache *query.Cache, cacheTTL time.Duration, log *slog.Logger) *Service {
	if log == nil {
		log = logging.Discard()
	}
	return &Service{api: api, creds: creds, cache: cache, cacheTTL: cacheTTL, log: log, inflight: make(map[int]struct{})}
}

func (s *Service) Cache() *query.Cache { return s.cache }

func (s *Service) credentials(required ...string) (domain.Credentials, error) {
	creds, hydrated := s.creds.Snapshot()
	if !Enabled(creds, hydrated, required...) {
		return domain.Credentials{}, ErrNotEnabled
	}
	return creds, nil
}

func ListKey(p domain.ListParams, user string) query.Key {
	return query.Key{
		Kind:    query.KindAuditList,
		ID:      p.BatchID,
		Variant: fmt.Sprintf("%s|%s|%d|%d|%s", p.Status, p.Template, p.Page, p.PageSize, user),
	}
}

func DetailKey(id int) query.Key {
	return query.Key{Kind: query.KindAuditDetail, ID: strconv.Itoa(id)}
}

func SummaryKey(batchID string) query.Key {
	return query.Key{Kind: query.KindBatchSummary, ID: batchID}
}

func TemplatesKey() query.Key { return query.Key{Kind: query.KindTemplates} }

func (s *Service) Templates(ctx context.Context) ([]string, error) {
	return query.Fetch(ctx, s.cache, TemplatesKey(), TemplatesStaleTime, s.api.Templates)
}

// ProcessOMR uploads a batch. The caller validates the form beforehand.
func (s *Service) ProcessOMR(ctx context.Context, up domain.Upload) (domain.ProcessResponse, error) {
	creds, _ := s.creds.Snapshot()
	resp, err := s.api.ProcessOMR(ctx, creds, up)
	if err != nil {
		return resp, err
	}
	s.cache.Invalidate(query.OfKind(query.KindAuditList, query.KindBatchSummary))
	return resp, nil
}

// List fetches one page of audit items. Page defaults to 1 and the page size
// is clamped to 1..100.
func (s *Service) List(ctx context.Context, p domain.ListParams) (domain.AuditListResponse, error) {
	creds, err := s.credentials()
	if err != nil {
		return domain.AuditListResponse{}, err
	}
	if p.Page < 1 {
		p.Page = 1
	}
	p.PageSize = config.ClampPageSize(p.PageSize)
	return query.Fetch(ctx, s.cache, ListKey(p, creds.User), s.cacheTTL, func(ctx context.Context) (domain.AuditListResponse, error) {
		return s.api.ListAudits(ctx, creds, p)
	})
}

func (s *Service) Detail(ctx context.Context, id int) (domain.AuditDetail, error) {
	creds, err := s.credentials(idString(id))
	if err != nil {
		return domain.AuditDetail{}, err
	}
	return query.Fetch(ctx, s.cache, DetailKey(id), s.cacheTTL, func(ctx context.Context) (domain.AuditDetail, error) {
		return s.api.GetAudit(ctx, creds, id)
	})
}

// SubmitDecision saves a decision. Only one submission per item may be
// outstanding; a second one fails with ErrSubmitInFlight. On success the
// item's detail and every list and batch summary are invalidated.
func (s *Service) SubmitDecision(ctx context.Context, id int, req domain.DecisionRequest) (domain.AuditDetail, error) {
	creds, err := s.credentials(idString(id))
	if err != nil {
		return domain.AuditDetail{}, err
	}
	s.mu.Lock()
	if _, busy := s.inflight[id]; busy {
		s.mu.Unlock()
		return domain.AuditDetail{}, ErrSubmitInFlight
	}
	s.inflight[id] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.inflight, id)
		s.mu.Unlock()
	}()

	detail, err := s.api.SubmitDecision(ctx, creds, id, req)
	if err != nil {
		return detail, err
	}
	detailKey := DetailKey(id)
	s.cache.Invalidate(func(k query.Key) bool {
		return k == detailKey || k.Kind == query.KindAuditList || k.Kind == query.KindBatchSummary
	})
	s.log.Info("decision saved", "audit", id, "user", creds.User)
	return detail, nil
}

func (s *Service) ExportFile(ctx context.Context, batchID string) (domain.Blob, error) {
	creds, err := s.credentials(batchID)
	if err != nil {
		return domain.Blob{}, err
	}
	blob, err := s.api.ExportFile(ctx, creds, batchID)
	if err != nil {
		return blob, err
	}
	s.cache.Invalidate(func(k query.Key) bool { return k == SummaryKey(batchID) })
	return blob, nil
}

// ExportMetadata returns the batch's last export, or nil when there is none.
// Backend failures are logged and reported as no export.
func (s *Service) ExportMetadata(ctx context.Context, batchID string) (*domain.ExportMetadata, error) {
	creds, err := s.credentials(batchID)
	if err != nil {
		return nil, err
	}
	meta, err := query.Fetch(ctx, s.cache, SummaryKey(batchID), MetadataStaleTime, func(ctx context.Context) (*domain.ExportMetadata, error) {
		m, err := s.api.ExportMetadata(ctx, creds, batchID)
		if err != nil {
			s.log.Debug("no export metadata", "batch", batchID, "err", err)
			return nil, nil
		}
		return &m, nil
	})
	if err != nil {
		return nil, nil
	}
	return meta, nil
}

// Cleanup deletes a batch on the backend and drops every batch-scoped cache.
func (s *Service) Cleanup(ctx context.Context, batchID string) (domain.CleanupResponse, error) {
	creds, err := s.credentials(batchID)
	if err != nil {
		return domain.CleanupResponse{}, err
	}
	resp, err := s.api.Cleanup(ctx, creds, batchID)
	if err != nil {
		return resp, err
	}
	n := s.cache.Remove(query.OfKind(query.KindAuditList, query.KindAuditDetail, query.KindBatchSummary))
	s.log.Info("batch cleaned", "batch", batchID, "removedPaths", len(resp.RemovedPaths), "droppedQueries", n)
	return resp, nil
}

func idString(id int) string {
	if id <= 0 {
		return ""
	}
	return strconv.Itoa(id)
}
