package domain

import (
	"io"
)

// Core models shared by the API client, the query layer and the review console.
// JSON tags follow the backend's wire format.

type AuditStatus string

const (
	StatusPending  AuditStatus = "pending"
	StatusResolved AuditStatus = "resolved"
	StatusReopened AuditStatus = "reopened"
)

type BatchStatus string

const (
	BatchPending  BatchStatus = "pending"
	BatchExported BatchStatus = "exported"
	BatchCleaned  BatchStatus = "cleaned"
)

type AuditListItem struct {
	ID             int         `json:"id"`
	FileID         string      `json:"file_id"`
	Template       string      `json:"template"`
	BatchID        string      `json:"batch_id"`
	Issues         []Issue     `json:"issues"`
	Status         AuditStatus `json:"status"`
	ImageURL       *string     `json:"image_url,omitempty"`
	MarkedImageURL *string     `json:"marked_image_url,omitempty"`
	CreatedAt      Timestamp   `json:"created_at"`
}

type AuditResponse struct {
	Question       string  `json:"question"`
	ReadValue      *string `json:"read_value"`
	CorrectedValue *string `json:"corrected_value"`
}

// Effective is the corrected value when one exists, otherwise the read value.
func (r AuditResponse) Effective() string {
	if r.CorrectedValue != nil && *r.CorrectedValue != "" {
		return *r.CorrectedValue
	}
	if r.ReadValue != nil {
		return *r.ReadValue
	}
	return ""
}

type AuditDetail struct {
	ID             int               `json:"id"`
	FileID         string            `json:"file_id"`
	Template       string            `json:"template"`
	BatchID        string            `json:"batch_id"`
	Issues         []Issue           `json:"issues"`
	Status         AuditStatus       `json:"status"`
	Notes          *string           `json:"notes,omitempty"`
	RawAnswers     map[string]string `json:"raw_answers"`
	ImageURL       *string           `json:"image_url,omitempty"`
	MarkedImageURL *string           `json:"marked_image_url,omitempty"`
	CreatedAt      Timestamp         `json:"created_at"`
	UpdatedAt      Timestamp         `json:"updated_at"`
	Responses      []AuditResponse   `json:"responses"`
}

// ListItem projects a detail onto its list row.
func (d AuditDetail) ListItem() AuditListItem {
	return AuditListItem{
		ID:             d.ID,
		FileID:         d.FileID,
		Template:       d.Template,
		BatchID:        d.BatchID,
		Issues:         d.Issues,
		Status:         d.Status,
		ImageURL:       d.ImageURL,
		MarkedImageURL: d.MarkedImageURL,
		CreatedAt:      d.CreatedAt,
	}
}

type AuditListResponse struct {
	Items      []AuditListItem `json:"items"`
	Total      int             `json:"total"`
	Pending    int             `json:"pending"`
	Resolved   int             `json:"resolved"`
	Reopened   int             `json:"reopened"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
	TotalPages int             `json:"total_pages"`
}

type AuditSummary struct {
	BatchID  string          `json:"batch_id"`
	Total    int             `json:"total"`
	Pending  int             `json:"pending"`
	Resolved int             `json:"resolved"`
	Status   BatchStatus     `json:"status"`
	Items    []AuditListItem `json:"items"`
}

type OMRResult struct {
	Filename          string            `json:"filename"`
	Data              map[string]string `json:"data"`
	ProcessedImage    string            `json:"processed_image"`
	ProcessedImageURL *string           `json:"processed_image_url,omitempty"`
	Warnings          []string          `json:"warnings"`
}

type ProcessSummary struct {
	Total     int    `json:"total"`
	Processed int    `json:"processed"`
	Errors    int    `json:"errors"`
	BatchID   string `json:"batch_id"`
}

type ProcessResponse struct {
	Status  string         `json:"status"`
	Results []OMRResult    `json:"results"`
	Summary ProcessSummary `json:"summary"`
	Errors  []string       `json:"errors,omitempty"`
	Audit   *AuditSummary  `json:"audit,omitempty"`
}

type DecisionRequest struct {
	Answers map[string]string `json:"answers"`
	Notes   *string           `json:"notes,omitempty"`
}

type ExportMetadata struct {
	BatchID              string      `json:"batch_id"`
	Status               BatchStatus `json:"status"`
	ExportedAt           Timestamp   `json:"exported_at"`
	ExportedBy           *string     `json:"exported_by,omitempty"`
	CorrectedResultsPath string      `json:"corrected_results_path"`
	ManifestPath         string      `json:"manifest_path"`
}

type CleanupRequest struct {
	BatchID string `json:"batch_id"`
	Confirm bool   `json:"confirm"`
}

type CleanupResponse struct {
	BatchID      string      `json:"batch_id"`
	Status       BatchStatus `json:"status"`
	RemovedPaths []string    `json:"removed_paths"`
}

type ListParams struct {
	Status   AuditStatus
	Template string
	BatchID  string
	Page     int
	PageSize int
}

// Upload is one ZIP archive of scanned sheets submitted for processing.
type Upload struct {
	Template string
	FileName string
	Content  io.Reader
}

// Blob is a downloaded file body.
type Blob struct {
	Data        []byte
	ContentType string
}

// Credentials identify the auditor to the backend. Token may be empty.
type Credentials struct {
	User  string `json:"user"`
	Token string `json:"token,omitempty"`
}
