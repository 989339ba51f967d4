package registry

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwang05/lexreview/internal/apperr"
	"github.com/vitwang05/lexreview/internal/testutil"
)

type staticToken string

func (s staticToken) CurrentToken() string { return string(s) }

func newRegistry(t *testing.T) (*Registry, *testutil.Backend) {
	t.Helper()
	be := testutil.NewBackend(t)
	be.RequireAuth = true
	return New(be.Client(staticToken(be.Token)), nil), be
}

func TestListSourceFiles(t *testing.T) {
	r, be := newRegistry(t)
	be.AddFile("temp", "doc1.pdf", 2048, 1700000000)
	be.AddFile("temp", "doc2.pdf", 10, 1700000100)
	be.AddFile("vbpl", "law.pdf", 99, 1700000200)

	files, err := r.ListSourceFiles(context.Background(), "temp")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "doc1.pdf", files[0].Name)
	assert.Equal(t, "temp/doc1.pdf", files[0].Path)
	assert.Equal(t, int64(2048), files[0].Size)
	assert.True(t, files[0].Modified.Equal(time.Unix(1700000000, 0)))

	assert.Empty(t, r.SourceFiles("vbpl"), "other categories are not fetched")
}

func TestListSourceFilesIdempotent(t *testing.T) {
	r, be := newRegistry(t)
	be.AddFile("temp", "b.pdf", 1, 1)
	be.AddFile("temp", "a.pdf", 2, 2)

	first, err := r.ListSourceFiles(context.Background(), "temp")
	require.NoError(t, err)
	second, err := r.ListSourceFiles(context.Background(), "temp")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestListSourceFilesFailureKeepsPrevious(t *testing.T) {
	r, be := newRegistry(t)
	be.AddFile("temp", "doc1.pdf", 1, 1)

	_, err := r.ListSourceFiles(context.Background(), "temp")
	require.NoError(t, err)

	be.AddFile("temp", "doc2.pdf", 1, 1)
	be.FailNext("GET /files",
		testutil.Failure{Status: http.StatusBadRequest, Detail: "Invalid directory"},
	)

	files, err := r.ListSourceFiles(context.Background(), "temp")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindFetch))
	assert.Equal(t, "Invalid directory", apperr.Message(err))
	require.Len(t, files, 1, "previous list returned")
	assert.Len(t, r.SourceFiles("temp"), 1, "previous list kept")
}

func TestListSourceFilesRetriesServerErrors(t *testing.T) {
	r, be := newRegistry(t)
	be.AddFile("temp", "doc1.pdf", 1, 1)
	be.FailNext("GET /files",
		testutil.Failure{Status: http.StatusBadGateway},
		testutil.Failure{Status: http.StatusServiceUnavailable},
	)

	files, err := r.ListSourceFiles(context.Background(), "temp")
	require.NoError(t, err)
	assert.Len(t, files, 1)
	assert.Len(t, be.RequestsTo(http.MethodGet, "/files"), 3)
}

func TestDeleteFileRelists(t *testing.T) {
	r, be := newRegistry(t)
	keep := be.AddFile("temp", "keep.pdf", 1, 1)
	drop := be.AddFile("temp", "drop.pdf", 1, 1)

	_, err := r.ListSourceFiles(context.Background(), "temp")
	require.NoError(t, err)

	require.NoError(t, r.DeleteFile(context.Background(), drop))

	files := r.SourceFiles("temp")
	require.Len(t, files, 1)
	assert.Equal(t, keep, files[0].Path)

	deletes := be.RequestsTo(http.MethodDelete, "/files")
	require.Len(t, deletes, 1)
	assert.Equal(t, drop, deletes[0].Query.Get("path"))
	assert.Equal(t, "Bearer test-token", deletes[0].Auth)
}

func TestDeleteFileFailureNoOptimisticRemoval(t *testing.T) {
	r, be := newRegistry(t)
	p := be.AddFile("temp", "doc.pdf", 1, 1)
	_, err := r.ListSourceFiles(context.Background(), "temp")
	require.NoError(t, err)

	be.FailNext("DELETE /files", testutil.Failure{Status: http.StatusInternalServerError, Detail: "disk busy"})

	err = r.DeleteFile(context.Background(), p)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindFetch))
	assert.Equal(t, "disk busy", apperr.Message(err))
	assert.Len(t, r.SourceFiles("temp"), 1)
	assert.Len(t, be.RequestsTo(http.MethodDelete, "/files"), 1, "deletes are not retried")
}

func TestDeleteFileUnknownPathIsFetchError(t *testing.T) {
	r, _ := newRegistry(t)

	err := r.DeleteFile(context.Background(), "temp/missing.pdf")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindFetch), "got %v", err)
	assert.False(t, apperr.Is(err, apperr.KindNotFound))
}

func TestDeleteFileWithoutSession(t *testing.T) {
	be := testutil.NewBackend(t)
	r := New(be.Client(staticToken("")), nil)

	err := r.DeleteFile(context.Background(), "temp/doc.pdf")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindAuth))
	assert.Empty(t, be.RequestsTo(http.MethodDelete, "/files"))
}

func TestListingWithoutSession(t *testing.T) {
	be := testutil.NewBackend(t)
	be.RequireAuth = true
	be.AddFile("temp", "doc.pdf", 1, 1)
	r := New(be.Client(staticToken("")), nil)

	files, err := r.ListSourceFiles(context.Background(), "temp")
	require.NoError(t, err)
	assert.Len(t, files, 1)
	assert.Empty(t, be.RequestsTo(http.MethodGet, "/files")[0].Auth)
}

func TestResultFiles(t *testing.T) {
	r, be := newRegistry(t)
	be.AddResult("b.json", `{"results": []}`)
	be.AddResult("a.json", `{"results": [{"title": "Điều 1"}], "process_time": 1.5}`)

	records, err := r.ListResultFiles(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "b.json", records[0].Filename, "backend order kept")
	assert.Equal(t, records, r.ResultFiles())

	set, err := r.GetResultFile(context.Background(), "a.json")
	require.NoError(t, err)
	require.Len(t, set.Nodes, 1)
	assert.Equal(t, "Điều 1", set.Nodes[0].Title)
	require.NotNil(t, set.ProcessingTime)
	assert.Equal(t, 1.5, *set.ProcessingTime)
}

func TestGetResultFileNotFound(t *testing.T) {
	r, _ := newRegistry(t)

	_, err := r.GetResultFile(context.Background(), "missing.json")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestGetResultFileFetchError(t *testing.T) {
	r, be := newRegistry(t)
	be.AddResult("a.json", `{"results": []}`)
	be.FailNext("GET /process-results/a.json",
		testutil.Failure{Status: 500}, testutil.Failure{Status: 500}, testutil.Failure{Status: 500},
	)

	_, err := r.GetResultFile(context.Background(), "a.json")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindFetch))
}

func TestCategoryOf(t *testing.T) {
	r, _ := newRegistry(t)
	assert.Equal(t, "temp", r.categoryOf("temp/doc1.pdf"))
	assert.Equal(t, "vbpl", r.categoryOf("/vbpl/law.pdf"))
	assert.Equal(t, "vbpl", r.categoryOf(`vbpl\law.pdf`))
}
