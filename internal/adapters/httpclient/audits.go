package httpclient

import (
	"context"
	"net/http"
	"net/url"

	"omraudit/internal/domain"
)

const auditsPath = "/api/audits"

func (c *Client) ListAudits(ctx context.Context, creds domain.Credentials, p domain.ListParams) (domain.AuditListResponse, error) {
	q := url.Values{}
	if p.Status != "" {
		if err := addQuery(q, "status", string(p.Status)); err != nil {
			return domain.AuditListResponse{}, err
		}
	}
	if p.Template != "" {
		if err := addQuery(q, "template", p.Template); err != nil {
			return domain.AuditListResponse{}, err
		}
	}
	if p.BatchID != "" {
		if err := addQuery(q, "batch_id", p.BatchID); err != nil {
			return domain.AuditListResponse{}, err
		}
	}
	if p.Page > 0 {
		if err := addQuery(q, "page", p.Page); err != nil {
			return domain.AuditListResponse{}, err
		}
	}
	if p.PageSize > 0 {
		if err := addQuery(q, "page_size", p.PageSize); err != nil {
			return domain.AuditListResponse{}, err
		}
	}
	var out domain.AuditListResponse
	err := c.doJSON(ctx, request{method: http.MethodGet, path: auditsPath, query: q, creds: creds}, &out)
	return out, err
}

func (c *Client) GetAudit(ctx context.Context, creds domain.Credentials, id int) (domain.AuditDetail, error) {
	seg, err := pathParam("id", id)
	if err != nil {
		return domain.AuditDetail{}, err
	}
	var out domain.AuditDetail
	err = c.doJSON(ctx, request{method: http.MethodGet, path: auditsPath + "/" + seg, creds: creds}, &out)
	return out, err
}

func (c *Client) SubmitDecision(ctx context.Context, creds domain.Credentials, id int, req domain.DecisionRequest) (domain.AuditDetail, error) {
	seg, err := pathParam("id", id)
	if err != nil {
		return domain.AuditDetail{}, err
	}
	body, err := jsonBody(req)
	if err != nil {
		return domain.AuditDetail{}, err
	}
	var out domain.AuditDetail
	err = c.doJSON(ctx, request{
		method:      http.MethodPost,
		path:        auditsPath + "/" + seg + "/decision",
		creds:       creds,
		body:        body,
		contentType: "application/json",
	}, &out)
	return out, err
}

func exportQuery(batchID, format string) (url.Values, error) {
	q := url.Values{}
	if err := addQuery(q, "batch_id", batchID); err != nil {
		return nil, err
	}
	if err := addQuery(q, "format", format); err != nil {
		return nil, err
	}
	return q, nil
}

// ExportFile downloads the corrected results CSV of a batch.
func (c *Client) ExportFile(ctx context.Context, creds domain.Credentials, batchID string) (domain.Blob, error) {
	q, err := exportQuery(batchID, "file")
	if err != nil {
		return domain.Blob{}, err
	}
	return c.doBlob(ctx, request{method: http.MethodGet, path: auditsPath + "/export", query: q, creds: creds})
}

func (c *Client) ExportMetadata(ctx context.Context, creds domain.Credentials, batchID string) (domain.ExportMetadata, error) {
	q, err := exportQuery(batchID, "json")
	if err != nil {
		return domain.ExportMetadata{}, err
	}
	var out domain.ExportMetadata
	err = c.doJSON(ctx, request{method: http.MethodGet, path: auditsPath + "/export", query: q, creds: creds}, &out)
	return out, err
}

func (c *Client) Cleanup(ctx context.Context, creds domain.Credentials, batchID string) (domain.CleanupResponse, error) {
	body, err := jsonBody(domain.CleanupRequest{BatchID: batchID, Confirm: true})
	if err != nil {
		return domain.CleanupResponse{}, err
	}
	var out domain.CleanupResponse
	err = c.doJSON(ctx, request{
		method:      http.MethodPost,
		path:        auditsPath + "/cleanup",
		creds:       creds,
		body:        body,
		contentType: "application/json",
	}, &out)
	return out, err
}
