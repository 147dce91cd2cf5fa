package httpclient

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"omraudit/internal/domain"
)

func (c *Client) Templates(ctx context.Context) ([]string, error) {
	var out struct {
		Templates []string `json:"templates"`
	}
	if err := c.doJSON(ctx, request{method: http.MethodGet, path: "/api/templates"}, &out); err != nil {
		return nil, err
	}
	return out.Templates, nil
}

// ProcessOMR streams a ZIP of scanned sheets as multipart form data. Only the
// token is sent; the backend does not attribute uploads to a user.
func (c *Client) ProcessOMR(ctx context.Context, creds domain.Credentials, up domain.Upload) (domain.ProcessResponse, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := writeUpload(mw, up)
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	var out domain.ProcessResponse
	err := c.doJSON(ctx, request{
		method:      http.MethodPost,
		path:        "/api/process-omr",
		creds:       domain.Credentials{Token: creds.Token},
		body:        pr,
		contentType: mw.FormDataContentType(),
	}, &out)
	// Unblock the writer if the request ended before the body was consumed.
	pr.CloseWithError(io.ErrClosedPipe)
	return out, err
}

func writeUpload(mw *multipart.Writer, up domain.Upload) error {
	part, err := mw.CreateFormFile("file", filepath.Base(up.FileName))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, up.Content); err != nil {
		return fmt.Errorf("read upload: %w", err)
	}
	return mw.WriteField("template", up.Template)
}
