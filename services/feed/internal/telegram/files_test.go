package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testToken = "123:abc"

func fakeBotAPI(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/bot"+testToken+"/getFile", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		switch id := r.URL.Query().Get("file_id"); id {
		case "known":
			fmt.Fprint(w, `{"ok":true,"result":{"file_id":"known","file_unique_id":"u1","file_path":"videos/file_1.mp4"}}`)
		case "broken":
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprint(w, `<html>bad gateway</html>`)
		default:
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"ok":false,"error_code":400,"description":"Bad Request: invalid file_id"}`)
		}
	})
	mux.HandleFunc("/file/bot"+testToken+"/videos/file_1.mp4", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Range") == "bytes=0-3" {
			w.Header().Set("Content-Range", "bytes 0-3/10")
			w.WriteHeader(http.StatusPartialContent)
			fmt.Fprint(w, "0123")
			return
		}
		fmt.Fprint(w, "0123456789")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestFilePath_Known(t *testing.T) {
	srv, _ := fakeBotAPI(t)
	c := NewFileClient(srv.URL, testToken)

	path, err := c.FilePath(context.Background(), "known")
	require.NoError(t, err)
	assert.Equal(t, "videos/file_1.mp4", path)
	assert.Equal(t, srv.URL+"/file/bot"+testToken+"/videos/file_1.mp4", c.FileURL(path))
}

func TestFilePath_UnknownHandle(t *testing.T) {
	srv, _ := fakeBotAPI(t)
	c := NewFileClient(srv.URL, testToken)

	_, err := c.FilePath(context.Background(), "gone")
	require.ErrorIs(t, err, ErrFileNotFound)
}

func TestFilePath_UpstreamFailure(t *testing.T) {
	srv, _ := fakeBotAPI(t)
	c := NewFileClient(srv.URL, testToken)

	_, err := c.FilePath(context.Background(), "broken")
	require.ErrorIs(t, err, ErrUpstream)
	assert.False(t, errors.Is(err, ErrFileNotFound))
}

func TestFilePath_NotConfigured(t *testing.T) {
	c := NewFileClient("http://127.0.0.1:1", "")

	_, err := c.FilePath(context.Background(), "known")
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestFilePath_TransportErrorHidesToken(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c := NewFileClient(base, testToken)
	_, err := c.FilePath(context.Background(), "known")
	require.ErrorIs(t, err, ErrUpstream)
	assert.NotContains(t, err.Error(), testToken)
}

func TestBreaker_IgnoresUnknownHandles(t *testing.T) {
	srv, calls := fakeBotAPI(t)
	cb := NewBreaker("telegram-test", 2, time.Minute, zap.NewNop())
	c := NewFileClient(srv.URL, testToken, WithCircuitBreaker(cb))

	for i := 0; i < 5; i++ {
		_, err := c.FilePath(context.Background(), "gone")
		require.ErrorIs(t, err, ErrFileNotFound)
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())
	assert.Equal(t, int32(5), calls.Load())
}

func TestBreaker_OpensOnUpstreamFailures(t *testing.T) {
	srv, calls := fakeBotAPI(t)
	cb := NewBreaker("telegram-test", 2, time.Minute, zap.NewNop())
	c := NewFileClient(srv.URL, testToken, WithCircuitBreaker(cb))

	for i := 0; i < 2; i++ {
		_, err := c.FilePath(context.Background(), "broken")
		require.ErrorIs(t, err, ErrUpstream)
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())

	_, err := c.FilePath(context.Background(), "known")
	require.ErrorIs(t, err, ErrUpstream)
	assert.Equal(t, int32(2), calls.Load(), "open breaker must not reach upstream")
}

func TestOpen_ForwardsRange(t *testing.T) {
	srv, _ := fakeBotAPI(t)
	c := NewFileClient(srv.URL, testToken)

	resp, err := c.Open(context.Background(), "videos/file_1.mp4", "bytes=0-3")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, "0123", string(body))

	_, err = c.Open(context.Background(), "videos/missing.mp4", "")
	require.ErrorIs(t, err, ErrFileNotFound)
}

func TestFileURL_TrimsLeadingSlash(t *testing.T) {
	c := NewFileClient("https://api.telegram.org/", testToken)
	assert.True(t, strings.HasSuffix(c.FileURL("/a/b.mp4"), "/file/bot"+testToken+"/a/b.mp4"))
}
