package physionet

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testClient(baseURL string, attempts int) *Client {
	return NewClient(Config{
		BaseURL:     baseURL,
		Username:    "reader",
		Password:    "secret",
		Timeout:     5 * time.Second,
		Delay:       time.Millisecond,
		MaxAttempts: attempts,
	}, quietLogger())
}

func TestClient_URL(t *testing.T) {
	tests := []struct {
		base, path, want string
	}{
		{DefaultBaseURL, "files/p10/p1000/s5000/a.dcm", "https://physionet.org/files/mimic-cxr/2.0.0/files/p10/p1000/s5000/a.dcm"},
		{"https://example.org/root", "/files/x.dcm", "https://example.org/root/files/x.dcm"},
	}
	for _, tt := range tests {
		c := NewClient(Config{BaseURL: tt.base}, quietLogger())
		assert.Equal(t, tt.want, c.URL(tt.path))
	}
}

func TestClient_DownloadAll(t *testing.T) {
	var flakyHits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "reader" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/files/ok.dcm":
			w.Write([]byte("DICM-ok"))
		case "/files/flaky.dcm":
			if atomic.AddInt32(&flakyHits, 1) == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.Write([]byte("DICM-flaky"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	out := t.TempDir()
	require.NoError(t, os.WriteFile(OutputPath(out, "have"), []byte("cached"), 0644))

	items := []Item{
		{DicomID: "ok", Path: "files/ok.dcm"},
		{DicomID: "flaky", Path: "files/flaky.dcm"},
		{DicomID: "gone", Path: "files/gone.dcm"},
		{DicomID: "have", Path: "files/have.dcm"},
	}

	summary, err := testClient(server.URL, 3).DownloadAll(context.Background(), items, out)
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 2, summary.Downloaded)
	assert.Equal(t, 1, summary.Existing)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "gone", summary.Failures[0].DicomID)
	assert.ErrorIs(t, summary.Failures[0].Err, ErrNotFound)
	assert.Equal(t, int32(2), atomic.LoadInt32(&flakyHits))

	data, err := os.ReadFile(OutputPath(out, "flaky"))
	require.NoError(t, err)
	assert.Equal(t, "DICM-flaky", string(data))

	cached, err := os.ReadFile(OutputPath(out, "have"))
	require.NoError(t, err)
	assert.Equal(t, "cached", string(cached))

	_, err = os.Stat(OutputPath(out, "gone"))
	assert.True(t, os.IsNotExist(err))
}

func TestClient_BoundedAttempts(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	status, err := testClient(server.URL, 3).Download(context.Background(), Item{DicomID: "a", Path: "a.dcm"}, t.TempDir())
	assert.Equal(t, StatusFailed, status)
	assert.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestClient_EmptyFileIsRefetched(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("DICM"))
	}))
	defer server.Close()

	out := t.TempDir()
	require.NoError(t, os.WriteFile(OutputPath(out, "a"), nil, 0644))

	status, err := testClient(server.URL, 1).Download(context.Background(), Item{DicomID: "a", Path: "a.dcm"}, out)
	require.NoError(t, err)
	assert.Equal(t, StatusDownloaded, status)
}

func TestClient_BreakerOpens(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	var items []Item
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		items = append(items, Item{DicomID: id, Path: id + ".dcm"})
	}

	summary, err := testClient(server.URL, 1).DownloadAll(context.Background(), items, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 8, summary.Failed)
	assert.Equal(t, int32(tripAfter), atomic.LoadInt32(&hits))
	assert.True(t, errors.Is(summary.Failures[7].Err, gobreaker.ErrOpenState))
}

func TestClient_Cancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("DICM"))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := testClient(server.URL, 1).DownloadAll(ctx, []Item{{DicomID: "a", Path: "a.dcm"}}, t.TempDir())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, summary.Downloaded)
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, Exists(dir, "x"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.dcm"), []byte("1"), 0644))
	assert.True(t, Exists(dir, "x"))
}
