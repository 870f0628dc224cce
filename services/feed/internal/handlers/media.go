package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/reelfeed/internal/platform/api"
	"github.com/example/reelfeed/internal/platform/httpserver"
	"github.com/example/reelfeed/internal/platform/signing"
	"github.com/example/reelfeed/services/feed/internal/metrics"
	"github.com/example/reelfeed/services/feed/internal/telegram"
)

// Upstream headers forwarded to the player; everything else is dropped.
var proxiedHeaders = []string{
	"Content-Type",
	"Content-Length",
	"Content-Range",
	"Accept-Ranges",
	"Last-Modified",
	"ETag",
}

// MediaProxyHandler streams a file named by a signed token so the bot token
// never reaches the client. Mount it at /api/media/{token}.
type MediaProxyHandler struct {
	signer *signing.Signer
	files  *telegram.FileClient
	log    *zap.Logger
}

func NewMediaProxyHandler(s *signing.Signer, files *telegram.FileClient, log *zap.Logger) *MediaProxyHandler {
	return &MediaProxyHandler{signer: s, files: files, log: log}
}

func (h *MediaProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rid := httpserver.RequestIDFromContext(r.Context())

	path, err := h.signer.Verify(chi.URLParam(r, "token"))
	if err != nil {
		h.log.Debug("media token rejected", zap.Error(err), zap.String("request_id", rid))
		api.Forbidden(w, "INVALID_TOKEN", "media link is invalid or expired", rid)
		return
	}

	resp, err := h.files.Open(r.Context(), path, r.Header.Get("Range"))
	switch {
	case err == nil:
	case errors.Is(err, telegram.ErrFileNotFound):
		api.NotFound(w, "FILE_NOT_FOUND", "File not found or expired", rid)
		return
	default:
		h.log.Error("media upstream failed", zap.Error(err), zap.String("request_id", rid))
		api.WriteError(w, http.StatusBadGateway, "UPSTREAM_ERROR", "media upstream failed", rid, nil)
		return
	}
	defer resp.Body.Close()

	for _, k := range proxiedHeaders {
		if v := resp.Header.Get(k); v != "" {
			w.Header().Set(k, v)
		}
	}
	if w.Header().Get("Accept-Ranges") == "" {
		w.Header().Set("Accept-Ranges", "bytes")
	}
	w.Header().Set("Cache-Control", "private, max-age="+strconv.Itoa(int(time.Hour.Seconds())))
	w.WriteHeader(resp.StatusCode)

	n, err := io.Copy(w, resp.Body)
	metrics.ProxiedBytes.Add(float64(n))
	if err != nil && r.Context().Err() == nil {
		h.log.Warn("media stream interrupted", zap.Error(err), zap.Int64("bytes", n), zap.String("request_id", rid))
	}
}
