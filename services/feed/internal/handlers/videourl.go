package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/reelfeed/internal/platform/api"
	"github.com/example/reelfeed/internal/platform/httpserver"
	"github.com/example/reelfeed/services/feed/internal/media"
	"github.com/example/reelfeed/services/feed/internal/telegram"
)

type videoURLResponse struct {
	URL       string `json:"url"`
	ExpiresAt string `json:"expires_at"`
}

type VideoURLHandler struct {
	resolver *media.Resolver
	log      *zap.Logger
}

func NewVideoURLHandler(r *media.Resolver, log *zap.Logger) *VideoURLHandler {
	return &VideoURLHandler{resolver: r, log: log}
}

func (h *VideoURLHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rid := httpserver.RequestIDFromContext(r.Context())

	fileID := strings.TrimSpace(r.URL.Query().Get("file_id"))
	if fileID == "" {
		api.BadRequest(w, "MISSING_FILE_ID", "file_id parameter is required", rid, nil)
		return
	}

	p, err := h.resolver.Resolve(r.Context(), fileID)
	switch {
	case err == nil:
	case errors.Is(err, telegram.ErrNotConfigured):
		h.log.Error("video url requested but bot token is not configured", zap.String("request_id", rid))
		api.InternalCode(w, "NOT_CONFIGURED", "Bot token not configured", rid)
		return
	case errors.Is(err, telegram.ErrFileNotFound):
		h.log.Info("file handle not resolvable", zap.String("file_id", fileID), zap.Error(err))
		api.NotFound(w, "FILE_NOT_FOUND", "File not found or expired", rid)
		return
	case errors.Is(err, context.Canceled):
		return
	default:
		h.log.Error("resolve file failed", zap.String("file_id", fileID), zap.Error(err), zap.String("request_id", rid))
		api.InternalCode(w, "UPSTREAM_ERROR", "Failed to get video URL", rid)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	api.WriteJSON(w, http.StatusOK, videoURLResponse{
		URL:       p.URL,
		ExpiresAt: p.ExpiresAt.UTC().Format(time.RFC3339),
	})
}
