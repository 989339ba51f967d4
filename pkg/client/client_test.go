package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwang05/lexreview/pkg/protocol"
	"github.com/vitwang05/lexreview/pkg/retry"
)

type staticToken string

func (s staticToken) CurrentToken() string { return string(s) }

func newTestClient(t *testing.T, h http.HandlerFunc, token string) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{
		BaseURL:     srv.URL + "/",
		Tokens:      staticToken(token),
		Timeout:     5 * time.Second,
		LongTimeout: 5 * time.Second,
		RetryConfig: retry.Config{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: 2 * time.Millisecond, Multiplier: 2},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestListFiles(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, protocol.PathFiles, r.URL.Path)
		assert.Equal(t, "temp", r.URL.Query().Get("directory"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		writeJSON(w, http.StatusOK, protocol.FileListResponse{"temp": {
			{Name: "doc1.pdf", Path: "temp/doc1.pdf", Size: 2048, Modified: 1700000000.5},
		}})
	}, "tok")

	files, err := c.ListFiles(context.Background(), "temp")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "temp/doc1.pdf", files[0].Path)
	assert.Equal(t, int64(2048), files[0].Size)
	assert.Equal(t, int64(1700000000), files[0].Modified.Unix())
}

func TestListFilesWithoutSession(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Values("Authorization"))
		writeJSON(w, http.StatusOK, protocol.FileListResponse{})
	}, "")

	files, err := c.ListFiles(context.Background(), "vbpl")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestListRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			writeJSON(w, http.StatusBadGateway, map[string]string{"detail": "upstream"})
			return
		}
		writeJSON(w, http.StatusOK, []protocol.ResultFileEntry{{Filename: "a.json", ModifiedTime: 1}})
	}, "")

	results, err := c.ListResults(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Result file not found"})
	}, "")

	_, err := c.GetResult(context.Background(), "missing.json")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, "Result file not found", Detail(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetResultEscapesName(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/process-results/doc%201.json", r.URL.EscapedPath())
		io.WriteString(w, `{"results": [{"title": "A", "sub_items": [{"title": "B"}]}], "processing_time": 3}`)
	}, "")

	set, err := c.GetResult(context.Background(), "doc 1.json")
	require.NoError(t, err)
	require.Len(t, set.Nodes, 1)
	require.Len(t, set.Nodes[0].Children, 1)
	require.NotNil(t, set.ProcessingTime)
	assert.Equal(t, 3.0, *set.ProcessingTime)
}

func TestMutatingCallsRequireSession(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}, "")
	ctx := context.Background()

	errs := []error{c.DeleteFile(ctx, "temp/a.pdf"), c.Learn(ctx, "vbpl/a.pdf")}
	_, err := c.Upload(ctx, protocol.PathUploadSubject, "a.pdf", strings.NewReader("x"), 1, nil)
	errs = append(errs, err)
	_, err = c.Process(ctx, ProcessParams{FilePath: "temp/a.pdf", StartPage: 1, EndPage: 1, Mode: "1"})
	errs = append(errs, err)
	_, err = c.GenerateDocx(ctx, "a.json")
	errs = append(errs, err)

	for _, err := range errs {
		assert.ErrorIs(t, err, ErrNoSession)
		assert.True(t, IsUnauthorized(err))
	}
	assert.Zero(t, calls.Load())
}

func TestUnauthorizedStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, map[string]string{"detail": "Admin only"})
	}, "tok")

	err := c.Learn(context.Background(), "vbpl/a.pdf")
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	assert.Equal(t, "Admin only", Detail(err))
}

func TestValidationDetail(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		io.WriteString(w, `{"detail": [{"loc": ["query", "start_page"], "msg": "value is not a valid integer"}, {"loc": ["query"], "msg": "field required"}]}`)
	}, "tok")

	_, err := c.Process(context.Background(), ProcessParams{FilePath: "temp/a.pdf", StartPage: 1, EndPage: 1, Mode: "1"})
	require.Error(t, err)
	assert.Equal(t, "value is not a valid integer; field required", Detail(err))
}

func TestProcessSendsOneRequest(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		q := r.URL.Query()
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "temp/a.pdf", q.Get("file_path"))
		assert.Equal(t, "3", q.Get("start_page"))
		assert.Equal(t, "7", q.Get("end_page"))
		assert.Equal(t, "2", q.Get("process_type"))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"detail": "busy"})
	}, "tok")

	_, err := c.Process(context.Background(), ProcessParams{FilePath: "temp/a.pdf", StartPage: 3, EndPage: 7, Mode: "2"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "analysis is never retried")
}

func TestUpload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, protocol.PathUploadSubject, r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		f, h, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "a.pdf", h.Filename)
		assert.Len(t, data, 1000)
		writeJSON(w, http.StatusOK, protocol.UploadResponse{Filename: "a.pdf", FilePath: "temp/a.pdf"})
	}, "tok")

	var last atomic.Int64
	resp, err := c.Upload(context.Background(), protocol.PathUploadSubject, "a.pdf",
		strings.NewReader(strings.Repeat("x", 1000)), 1000, func(sent, total int64) {
			assert.GreaterOrEqual(t, sent, last.Load())
			assert.Equal(t, int64(1000), total)
			last.Store(sent)
		})
	require.NoError(t, err)
	assert.Equal(t, "temp/a.pdf", resp.FilePath)
	assert.Equal(t, int64(1000), last.Load())
}

func TestUploadEmptyBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	}, "tok")

	resp, err := c.Upload(context.Background(), protocol.PathUploadCorpus, "law.pdf", strings.NewReader("x"), 1, nil)
	require.NoError(t, err)
	assert.Empty(t, resp.FilePath)
}

func TestGenerateDocx(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req protocol.GenerateDocxRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "report.json", req.Filename)
		w.Write([]byte("PK docx"))
	}, "tok")

	rc, err := c.GenerateDocx(context.Background(), "report.json")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "PK docx", string(data))
}

func TestLogin(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.NoError(t, r.ParseForm())
		if r.PostForm.Get("username") != "alice" || r.PostForm.Get("password") != "secret" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Incorrect username or password"})
			return
		}
		writeJSON(w, http.StatusOK, protocol.LoginResponse{AccessToken: "abc", TokenType: "bearer"})
	}, "stale")

	resp, err := c.Login(context.Background(), "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, "abc", resp.AccessToken)

	_, err = c.Login(context.Background(), "alice", "wrong")
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	assert.Equal(t, "Incorrect username or password", Detail(err))
}

func TestTransportErrorIsNotStatus(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1", RetryConfig: retry.Once()})
	_, err := c.ListFiles(context.Background(), "temp")
	require.Error(t, err)
	_, ok := AsStatus(err)
	assert.False(t, ok)
	assert.False(t, IsNotFound(err))
	assert.False(t, errors.Is(err, ErrNoSession))
}
