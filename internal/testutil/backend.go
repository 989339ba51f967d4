// Package testutil provides an in-memory analysis backend for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/bcrypt"

	"github.com/vitwang05/lexreview/pkg/client"
	"github.com/vitwang05/lexreview/pkg/protocol"
	"github.com/vitwang05/lexreview/pkg/retry"
)

// Passwords are the accounts every fake backend starts with.
var Passwords = map[string]string{"alice": "secret", "admin": "admin-secret"}

// DocxContent is the body served by /generate-docx.
var DocxContent = []byte("PK\x03\x04 fake docx body")

// Request is one recorded call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Auth   string
	// File is the multipart file name for uploads.
	File string
	Size int64
}

// Failure is a canned error response.
type Failure struct {
	Status int
	Detail string
}

// Backend is a fake of the analysis backend served over httptest.
type Backend struct {
	// RequireAuth makes mutating routes answer 401 without the right bearer token.
	RequireAuth bool
	// Token is issued by /login and expected by RequireAuth.
	Token string
	// ProcessResult is the body returned by /process.
	ProcessResult string
	// ProcessGate, when set, blocks /process until it yields or is closed.
	ProcessGate chan struct{}

	server *httptest.Server

	mu          sync.Mutex
	users       map[string][]byte
	files       map[string][]protocol.FileEntry
	results     map[string]string
	resultOrder []string
	uploadFail  map[string]Failure
	routeFail   map[string][]Failure
	requests    []Request
}

// NewBackend starts a fake backend that is closed when the test ends.
func NewBackend(t testing.TB) *Backend {
	t.Helper()
	b := &Backend{
		Token:         "test-token",
		ProcessResult: `{"results": [], "process_time": 0.5}`,
		users:         make(map[string][]byte),
		files:         make(map[string][]protocol.FileEntry),
		results:       make(map[string]string),
		uploadFail:    make(map[string]Failure),
		routeFail:     make(map[string][]Failure),
	}
	for user, pass := range Passwords {
		b.AddUser(user, pass)
	}
	b.server = httptest.NewServer(b.router())
	t.Cleanup(b.server.Close)
	return b
}

// AddUser registers an account for /login. Passwords are kept as bcrypt hashes.
func (b *Backend) AddUser(name, password string) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	b.mu.Lock()
	b.users[name] = hash
	b.mu.Unlock()
}

// URL returns the base URL of the fake.
func (b *Backend) URL() string {
	return b.server.URL
}

// Client returns an API client for the fake with fast retries.
func (b *Backend) Client(tokens client.TokenSource) *client.Client {
	return client.New(client.Config{
		BaseURL:     b.server.URL,
		Tokens:      tokens,
		Timeout:     5 * time.Second,
		LongTimeout: 10 * time.Second,
		RetryConfig: retry.Config{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond, Multiplier: 2},
	})
}

// AddFile places a file in category.
func (b *Backend) AddFile(category, name string, size int64, modified float64) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := category + "/" + name
	b.files[category] = append(b.files[category], protocol.FileEntry{Name: name, Path: p, Size: size, Modified: modified})
	return p
}

// Files returns the names held in category.
func (b *Backend) Files(category string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var names []string
	for _, f := range b.files[category] {
		names = append(names, f.Name)
	}
	return names
}

// AddResult stores a persisted result set under name.
func (b *Backend) AddResult(name, payload string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.results[name]; !ok {
		b.resultOrder = append(b.resultOrder, name)
	}
	b.results[name] = payload
}

// FailUpload makes the upload of the named file fail.
func (b *Backend) FailUpload(name string, f Failure) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uploadFail[name] = f
}

// FailNext queues failures for a route such as "GET /files". Each request to
// the route consumes one.
func (b *Backend) FailNext(route string, fs ...Failure) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.routeFail[route] = append(b.routeFail[route], fs...)
}

// Requests returns the recorded calls.
func (b *Backend) Requests() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.requests)
}

// RequestsTo returns the recorded calls to method and path.
func (b *Backend) RequestsTo(method, p string) []Request {
	var out []Request
	for _, r := range b.Requests() {
		if r.Method == method && r.Path == p {
			out = append(out, r)
		}
	}
	return out
}

func (b *Backend) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(b.record)
	r.Use(b.injectFailures)

	r.Post(protocol.PathLogin, b.handleLogin)
	r.Get(protocol.PathFiles, b.handleListFiles)
	r.Get(protocol.PathProcessResults, b.handleListResults)
	r.Get(protocol.PathProcessResults+"/{name}", b.handleGetResult)

	r.Group(func(r chi.Router) {
		r.Use(b.auth)
		r.Delete(protocol.PathFiles, b.handleDeleteFile)
		r.Post(protocol.PathUploadSubject, b.handleUpload("temp"))
		r.Post(protocol.PathUploadCorpus, b.handleUpload("vbpl"))
		r.Post(protocol.PathProcess, b.handleProcess)
		r.Post(protocol.PathLearn, b.handleLearn)
		r.Post(protocol.PathGenerateDocx, b.handleGenerateDocx)
	})
	return r
}

func (b *Backend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.requests = append(b.requests, Request{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Auth:   r.Header.Get("Authorization"),
		})
		b.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.Method + " " + r.URL.Path
		b.mu.Lock()
		queue := b.routeFail[route]
		var f *Failure
		if len(queue) > 0 {
			f = &queue[0]
			b.routeFail[route] = queue[1:]
		}
		b.mu.Unlock()

		if f != nil {
			writeDetail(w, f.Status, f.Detail)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.RequireAuth && r.Header.Get("Authorization") != "Bearer "+b.Token {
			writeDetail(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeDetail(w, http.StatusBadRequest, "bad form")
		return
	}
	user, pass := r.PostForm.Get("username"), r.PostForm.Get("password")
	b.mu.Lock()
	hash, ok := b.users[user]
	b.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(hash, []byte(pass)) != nil {
		writeDetail(w, http.StatusUnauthorized, "Incorrect username or password")
		return
	}
	writeJSON(w, http.StatusOK, protocol.LoginResponse{AccessToken: b.Token, TokenType: "bearer"})
}

func (b *Backend) handleListFiles(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("directory")
	b.mu.Lock()
	files := slices.Clone(b.files[category])
	b.mu.Unlock()
	if files == nil {
		files = []protocol.FileEntry{}
	}
	writeJSON(w, http.StatusOK, protocol.FileListResponse{category: files})
}

func (b *Backend) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Query().Get("path")
	b.mu.Lock()
	defer b.mu.Unlock()
	for category, files := range b.files {
		for i, f := range files {
			if f.Path == p {
				b.files[category] = slices.Delete(files, i, i+1)
				writeJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
				return
			}
		}
	}
	writeDetail(w, http.StatusNotFound, "File not found")
}

func (b *Backend) handleUpload(category string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		if err != nil {
			writeDetail(w, http.StatusUnprocessableEntity, "missing file field")
			return
		}
		defer file.Close()
		n, _ := io.Copy(io.Discard, file)
		name := path.Base(header.Filename)

		b.mu.Lock()
		b.requests[len(b.requests)-1].File = name
		b.requests[len(b.requests)-1].Size = n
		f, fail := b.uploadFail[name]
		b.mu.Unlock()
		if fail {
			writeDetail(w, f.Status, f.Detail)
			return
		}

		p := b.AddFile(category, name, n, float64(time.Now().Unix()))
		if category == "vbpl" {
			writeJSON(w, http.StatusOK, map[string]string{})
			return
		}
		writeJSON(w, http.StatusOK, protocol.UploadResponse{Filename: name, FilePath: p})
	}
}

func (b *Backend) handleProcess(w http.ResponseWriter, r *http.Request) {
	if b.ProcessGate != nil {
		select {
		case <-b.ProcessGate:
		case <-r.Context().Done():
			return
		}
	}
	q := r.URL.Query()
	if q.Get("file_path") == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "file_path is required")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	io.WriteString(w, b.ProcessResult)
}

func (b *Backend) handleLearn(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "learning started"})
}

func (b *Backend) handleListResults(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	entries := make([]protocol.ResultFileEntry, 0, len(b.resultOrder))
	for i, name := range b.resultOrder {
		entries = append(entries, protocol.ResultFileEntry{
			Filename:     name,
			ModifiedTime: float64(1700000000 + i),
			Timestamp:    fmt.Sprintf("2023111%d_000000", i),
		})
	}
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, entries)
}

func (b *Backend) handleGetResult(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	b.mu.Lock()
	payload, ok := b.results[name]
	b.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "Result file not found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	io.WriteString(w, payload)
}

func (b *Backend) handleGenerateDocx(w http.ResponseWriter, r *http.Request) {
	var req protocol.GenerateDocxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}
	b.mu.Lock()
	_, ok := b.results[strings.TrimSpace(req.Filename)]
	b.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "Result file not found")
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.wordprocessingml.document")
	w.Write(DocxContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
