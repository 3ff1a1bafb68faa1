package graph

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetflow/sheetflow/internal/logging"
)

const samplePage = `{
	"value": [
		{"id": "item-1", "name": "budget.xlsx", "eTag": "\"v1\"",
		 "file": {"mimeType": "application/vnd.ms-excel"},
		 "fileSystemInfo": {"lastModifiedDateTime": "2024-03-01T10:00:00Z"}},
		{"id": "dir-1", "name": "archive",
		 "fileSystemInfo": {"lastModifiedDateTime": "2024-03-01T09:00:00Z"}}
	],
	"@odata.nextLink": "https://next.example/page2"
}`

func newTestClient(t *testing.T) *Client {
	t.Helper()
	return NewClient(&StaticTokenProvider{Token: "test-token"}, logging.NewNullLogger())
}

func TestFetchPage_DecodesEnvelopeAndSendsBearer(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	page, err := newTestClient(t).FetchPage(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-token", gotAuth)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "item-1", page.Items[0].ID)
	assert.True(t, page.Items[0].IsFile())
	assert.False(t, page.Items[1].IsFile())
	assert.Equal(t, "https://next.example/page2", page.NextCursor)
	assert.Empty(t, page.TerminalCursor)
}

func TestFetchPage_TerminalCursor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"value": [], "@odata.deltaLink": "https://delta.example/resume"}`))
	}))
	defer srv.Close()

	page, err := newTestClient(t).FetchPage(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, "https://delta.example/resume", page.TerminalCursor)
}

func TestFetchPage_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "throttled", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(t).FetchPage(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestFetch_AtomicDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("workbook bytes"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "landing", "budget.xlsx")
	require.NoError(t, newTestClient(t).Fetch(context.Background(), srv.URL, dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "workbook bytes", string(data))

	// No .part file remains next to the destination.
	entries, err := os.ReadDir(filepath.Dir(dest))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestFetch_FailedDownloadLeavesNothing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "budget.xlsx")
	err := newTestClient(t).Fetch(context.Background(), srv.URL, dest)
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

type countingProvider struct {
	calls atomic.Int32
}

func (p *countingProvider) GetToken(context.Context) (string, time.Time, error) {
	p.calls.Add(1)
	return "tok", time.Now().Add(time.Hour), nil
}

func (p *countingProvider) String() string { return "Counting" }

func TestBearer_CachedUntilNearExpiry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"value": []}`))
	}))
	defer srv.Close()

	provider := &countingProvider{}
	c := NewClient(provider, logging.NewNullLogger())

	for i := 0; i < 3; i++ {
		_, err := c.FetchPage(context.Background(), srv.URL)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), provider.calls.Load())
}

func TestDrive_URLs(t *testing.T) {
	d := NewDrive("drive-1", "folder-1").WithBaseURL("http://local")

	assert.Equal(t, "http://local/drives/drive-1/items/folder-1/children?$top=999", d.ChildrenURL())
	assert.Equal(t, "http://local/drives/drive-1/items/folder-1/delta", d.DeltaURL())
	assert.Equal(t, "http://local/drives/drive-1/items/item-9/content", d.ContentRef("item-9"))
}
