package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/example/reelfeed/internal/platform/api"
	"github.com/example/reelfeed/internal/platform/httpserver"
	"github.com/example/reelfeed/services/feed/internal/feed"
	"github.com/example/reelfeed/services/feed/internal/metrics"
	"github.com/example/reelfeed/services/feed/internal/store"
)

// timeLayout is ISO-8601 UTC with milliseconds.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

type videoJSON struct {
	ID        int64   `json:"id"`
	FileID    string  `json:"file_id"`
	Caption   *string `json:"caption"`
	MessageID int64   `json:"message_id"`
	PostedAt  string  `json:"posted_at"`
}

type videosResponse struct {
	Videos     []videoJSON `json:"videos"`
	NextCursor *int64      `json:"next_cursor"`
	HasMore    bool        `json:"has_more"`
}

func toVideoJSON(v store.Video) videoJSON {
	return videoJSON{
		ID:        v.ID,
		FileID:    v.FileID,
		Caption:   v.Caption,
		MessageID: v.MessageID,
		PostedAt:  v.PostedAt.UTC().Format(timeLayout),
	}
}

type VideosHandler struct {
	pages *feed.Paginator
	log   *zap.Logger
}

func NewVideosHandler(p *feed.Paginator, log *zap.Logger) *VideosHandler {
	return &VideosHandler{pages: p, log: log}
}

func (h *VideosHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rid := httpserver.RequestIDFromContext(r.Context())
	q := r.URL.Query()

	cursor, err := feed.ParseCursor(q.Get("cursor"))
	if err != nil {
		metrics.PagesServed.WithLabelValues("invalid").Inc()
		api.BadRequest(w, "INVALID_CURSOR", "Invalid cursor parameter", rid, nil)
		return
	}
	limit, err := feed.ParseLimit(q.Get("limit"))
	if err != nil {
		metrics.PagesServed.WithLabelValues("invalid").Inc()
		api.BadRequest(w, "INVALID_PAGE_SIZE", "limit must be a positive integer", rid, nil)
		return
	}

	page, err := h.pages.Page(r.Context(), cursor, limit)
	switch {
	case errors.Is(err, feed.ErrInvalidCursor):
		metrics.PagesServed.WithLabelValues("invalid").Inc()
		api.BadRequest(w, "INVALID_CURSOR", "Invalid cursor parameter", rid, nil)
		return
	case errors.Is(err, feed.ErrInvalidPageSize):
		metrics.PagesServed.WithLabelValues("invalid").Inc()
		api.BadRequest(w, "INVALID_PAGE_SIZE", "limit must be a positive integer", rid, nil)
		return
	case err != nil:
		metrics.PagesServed.WithLabelValues("error").Inc()
		h.log.Error("list videos failed", zap.Error(err), zap.String("request_id", rid))
		api.Internal(w, rid)
		return
	}

	resp := videosResponse{
		Videos:     make([]videoJSON, 0, len(page.Items)),
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore(),
	}
	for _, v := range page.Items {
		resp.Videos = append(resp.Videos, toVideoJSON(v))
	}

	metrics.PagesServed.WithLabelValues("ok").Inc()
	metrics.PageSize.Observe(float64(len(resp.Videos)))
	w.Header().Set("Cache-Control", "no-store")
	api.WriteJSON(w, http.StatusOK, resp)
}
