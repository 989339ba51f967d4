package s3

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type putRecord struct {
	method      string
	path        string
	contentType string
	body        string
}

func fakeS3(t *testing.T, status int) (*httptest.Server, func() []putRecord) {
	t.Helper()
	var mu sync.Mutex
	var puts []putRecord
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		puts = append(puts, putRecord{r.Method, r.URL.Path, r.Header.Get("Content-Type"), string(data)})
		mu.Unlock()
		if status != http.StatusOK {
			w.WriteHeader(status)
			io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>denied</Message></Error>`)
			return
		}
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(ts.Close)
	return ts, func() []putRecord {
		mu.Lock()
		defer mu.Unlock()
		return append([]putRecord(nil), puts...)
	}
}

func newTestSink(t *testing.T, endpoint string) *Sink {
	t.Helper()
	s, err := New(context.Background(), Config{
		Endpoint:  endpoint,
		Bucket:    "exports",
		Prefix:    "reports",
		AccessKey: "test",
		SecretKey: "test",
		Region:    "us-east-1",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestSave(t *testing.T) {
	ts, puts := fakeS3(t, http.StatusOK)
	s := newTestSink(t, ts.URL)

	loc, err := s.Save(context.Background(), "report.docx", strings.NewReader("docx body"), 9)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if loc != "s3://exports/reports/report.docx" {
		t.Errorf("location = %s", loc)
	}

	got := puts()
	if len(got) != 1 {
		t.Fatalf("expected 1 request, got %d", len(got))
	}
	if got[0].method != http.MethodPut || got[0].path != "/exports/reports/report.docx" {
		t.Errorf("unexpected request %s %s", got[0].method, got[0].path)
	}
	if got[0].contentType != docxContentType {
		t.Errorf("content type = %s", got[0].contentType)
	}
	if !strings.Contains(got[0].body, "docx body") {
		t.Errorf("body missing content: %q", got[0].body)
	}
}

func TestSaveError(t *testing.T) {
	ts, _ := fakeS3(t, http.StatusForbidden)
	s := newTestSink(t, ts.URL)

	if _, err := s.Save(context.Background(), "report.docx", strings.NewReader("x"), 1); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{Region: "us-east-1"}); err == nil {
		t.Fatal("expected error without bucket")
	}
}

func TestKey(t *testing.T) {
	s := &Sink{bucket: "b"}
	if k := s.key("dir/a.docx"); k != "a.docx" {
		t.Errorf("key = %s", k)
	}
	s.prefix = "out/"
	if k := s.key("a.docx"); k != "out/a.docx" {
		t.Errorf("key = %s", k)
	}
}
