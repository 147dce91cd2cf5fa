package httpclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"omraudit/internal/domain"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL + "/")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestErrorMessageExtraction(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"error field", 400, `{"error":"bad batch"}`, "bad batch"},
		{"detail field", 404, `{"detail":"Item not found"}`, "Item not found"},
		{"error wins", 409, `{"error":"first","detail":"second"}`, "first"},
		{"validation list", 422, `{"detail":[{"msg":"field required"},{"msg":"too long"}]}`, "field required; too long"},
		{"status text", 503, `not json`, "Service Unavailable"},
		{"unknown status", 599, ``, "request failed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				io.WriteString(w, tc.body)
			})
			_, err := c.GetAudit(context.Background(), domain.Credentials{User: "ana"}, 7)
			if err == nil {
				t.Fatal("expected error")
			}
			if err.Error() != tc.want {
				t.Fatalf("message = %q, want %q", err.Error(), tc.want)
			}
			if StatusOf(err) != tc.status {
				t.Fatalf("status = %d", StatusOf(err))
			}
		})
	}
}

func TestAuthHeaders(t *testing.T) {
	var got http.Header
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		io.WriteString(w, `{"items":[],"total":0}`)
	})
	ctx := context.Background()

	if _, err := c.ListAudits(ctx, domain.Credentials{User: "ana"}, domain.ListParams{}); err != nil {
		t.Fatal(err)
	}
	if got.Get(HeaderUser) != "ana" {
		t.Errorf("user header = %q", got.Get(HeaderUser))
	}
	if _, ok := got[http.CanonicalHeaderKey(HeaderToken)]; ok {
		t.Errorf("token header sent without a token")
	}
	if got.Get(HeaderCorrelationID) == "" {
		t.Errorf("missing correlation id")
	}

	if _, err := c.ListAudits(ctx, domain.Credentials{User: "ana", Token: "s3cret"}, domain.ListParams{}); err != nil {
		t.Fatal(err)
	}
	if got.Get(HeaderToken) != "s3cret" {
		t.Errorf("token header = %q", got.Get(HeaderToken))
	}
}

func TestListAuditsQuery(t *testing.T) {
	var query string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/audits" {
			t.Errorf("path = %s", r.URL.Path)
		}
		query = r.URL.RawQuery
		io.WriteString(w, `{"items":[{"id":3,"file_id":"a.png","issues":["q2: unmarked"],"status":"pending","created_at":"2024-05-01T10:00:00"}],"total":1,"pending":1,"page":2,"page_size":50,"total_pages":1}`)
	})
	resp, err := c.ListAudits(context.Background(), domain.Credentials{User: "ana"}, domain.ListParams{
		Status: domain.StatusPending, BatchID: "batch 1", Page: 2, PageSize: 50,
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"status=pending", "batch_id=batch+1", "page=2", "page_size=50"} {
		if !strings.Contains(query, want) {
			t.Errorf("query %q missing %q", query, want)
		}
	}
	if strings.Contains(query, "template") {
		t.Errorf("empty template sent: %q", query)
	}
	if len(resp.Items) != 1 || resp.Items[0].Issues[0].Kind != domain.IssueUnmarked {
		t.Fatalf("items = %+v", resp.Items)
	}
}

func TestNoContentIsEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	out, err := c.Cleanup(context.Background(), domain.Credentials{User: "ana"}, "b1")
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if out.BatchID != "" || len(out.RemovedPaths) != 0 {
		t.Fatalf("expected empty result, got %+v", out)
	}
}

func TestSubmitDecisionAndCleanupBodies(t *testing.T) {
	var decision domain.DecisionRequest
	var cleanup domain.CleanupRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/audits/12/decision":
			json.NewDecoder(r.Body).Decode(&decision)
			io.WriteString(w, `{"id":12,"status":"resolved","responses":[{"question":"q1","read_value":"A","corrected_value":"B"}]}`)
		case "/api/audits/cleanup":
			json.NewDecoder(r.Body).Decode(&cleanup)
			io.WriteString(w, `{"batch_id":"b1","status":"cleaned","removed_paths":["x"]}`)
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()
	creds := domain.Credentials{User: "ana"}
	detail, err := c.SubmitDecision(ctx, creds, 12, domain.DecisionRequest{Answers: map[string]string{"q1": "B"}})
	if err != nil {
		t.Fatal(err)
	}
	if detail.Status != domain.StatusResolved || decision.Answers["q1"] != "B" || decision.Notes != nil {
		t.Fatalf("detail %+v decision %+v", detail, decision)
	}
	res, err := c.Cleanup(ctx, creds, "b1")
	if err != nil {
		t.Fatal(err)
	}
	if !cleanup.Confirm || cleanup.BatchID != "b1" || res.Status != domain.BatchCleaned {
		t.Fatalf("cleanup req %+v res %+v", cleanup, res)
	}
}

func TestExportFormats(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format") == "file" {
			w.Header().Set("Content-Type", "text/csv")
			io.WriteString(w, "file_id,q1\na.png,B\n")
			return
		}
		io.WriteString(w, `{"batch_id":"b1","status":"exported","exported_at":"2024-05-01T10:00:00Z","exported_by":"ana"}`)
	})
	ctx := context.Background()
	creds := domain.Credentials{User: "ana"}
	blob, err := c.ExportFile(ctx, creds, "b1")
	if err != nil {
		t.Fatal(err)
	}
	if blob.ContentType != "text/csv" || !strings.HasPrefix(string(blob.Data), "file_id") {
		t.Fatalf("blob = %+v", blob)
	}
	meta, err := c.ExportMetadata(ctx, creds, "b1")
	if err != nil {
		t.Fatal(err)
	}
	if meta.Status != domain.BatchExported || meta.ExportedBy == nil || *meta.ExportedBy != "ana" {
		t.Fatalf("meta = %+v", meta)
	}
}

func TestProcessOMRMultipart(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(HeaderUser) != "" {
			t.Errorf("upload should not carry the user header")
		}
		if r.Header.Get(HeaderToken) != "tok" {
			t.Errorf("token = %q", r.Header.Get(HeaderToken))
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		if hdr.Filename != "scans.zip" || string(data) != "PK-data" || r.FormValue("template") != "gabarito" {
			t.Errorf("got %s %q template=%q", hdr.Filename, data, r.FormValue("template"))
		}
		io.WriteString(w, `{"status":"success","results":[],"summary":{"total":2,"processed":2,"errors":0,"batch_id":"b9"}}`)
	})
	resp, err := c.ProcessOMR(context.Background(), domain.Credentials{User: "ana", Token: "tok"}, domain.Upload{
		Template: "gabarito", FileName: "/tmp/in/scans.zip", Content: strings.NewReader("PK-data"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Summary.BatchID != "b9" {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestTemplates(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"templates":["a","b"]}`)
	})
	got, err := c.Templates(context.Background())
	if err != nil || len(got) != 2 || got[0] != "a" {
		t.Fatalf("Templates = %v, %v", got, err)
	}
}

func TestResolveImageURL(t *testing.T) {
	cases := []struct{ base, ref, want string }{
		{"http://localhost:8000/", "/static/batch 1/original/arquivo final.jpg", "http://localhost:8000/static/batch%201/original/arquivo%20final.jpg"},
		{"", "/static/a.png", "http://localhost:8000/static/a.png"},
		{"http://api", "https://cdn.example.com/a b.png", "https://cdn.example.com/a b.png"},
		{"http://api", "//cdn.example.com/a.png", "//cdn.example.com/a.png"},
		{"http://api", "HTTP://cdn.example.com/a.png", "HTTP://cdn.example.com/a.png"},
		{"http://api", "data:image/png;base64,AAA=", "data:image/png;base64,AAA="},
		{"http://api", "/media/a b.png", "/media/a b.png"},
		{"http://api", "/static/lote/çã.png", "http://api/static/lote/%C3%A7%C3%A3.png"},
		{"http://api", "", ""},
	}
	for _, tc := range cases {
		if got := ResolveImageURL(tc.base, tc.ref); got != tc.want {
			t.Errorf("ResolveImageURL(%q, %q) = %q, want %q", tc.base, tc.ref, got, tc.want)
		}
	}
}
