package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/reelfeed/services/feed/internal/feed"
	"github.com/example/reelfeed/services/feed/internal/store"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func seededVideos(t *testing.T, n int) (*VideosHandler, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	for i := 1; i <= n; i++ {
		var caption *string
		if i%2 == 0 {
			c := "clip " + strconv.Itoa(i)
			caption = &c
		}
		_, _, err := st.Upsert(context.Background(), store.NewVideo{
			FileID:    "file-" + strconv.Itoa(i),
			MessageID: int64(i),
			Caption:   caption,
			PostedAt:  base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}
	return NewVideosHandler(feed.NewPaginator(st), zap.NewNop()), st
}

func getVideos(h http.Handler, query string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/videos"+query, nil))
	return rr
}

type videosBody struct {
	Videos []struct {
		ID        int64   `json:"id"`
		FileID    string  `json:"file_id"`
		Caption   *string `json:"caption"`
		MessageID int64   `json:"message_id"`
		PostedAt  string  `json:"posted_at"`
	} `json:"videos"`
	NextCursor *int64 `json:"next_cursor"`
	HasMore    bool   `json:"has_more"`
}

func decodeVideos(t *testing.T, rr *httptest.ResponseRecorder) videosBody {
	t.Helper()
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var out videosBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func TestVideos_Traversal(t *testing.T) {
	h, _ := seededVideos(t, 25)

	first := decodeVideos(t, getVideos(h, "?limit=10"))
	require.Len(t, first.Videos, 10)
	require.True(t, first.HasMore)
	assert.Equal(t, first.Videos[9].ID, *first.NextCursor)
	assert.Equal(t, int64(25), first.Videos[0].MessageID)

	second := decodeVideos(t, getVideos(h, "?limit=10&cursor="+strconv.FormatInt(*first.NextCursor, 10)))
	require.Len(t, second.Videos, 10)
	assert.Equal(t, int64(15), second.Videos[0].MessageID)

	third := decodeVideos(t, getVideos(h, "?limit=10&cursor="+strconv.FormatInt(*second.NextCursor, 10)))
	assert.Len(t, third.Videos, 5)
	assert.Nil(t, third.NextCursor)
	assert.False(t, third.HasMore)
}

func TestVideos_WireFormat(t *testing.T) {
	h, _ := seededVideos(t, 2)

	rr := getVideos(h, "")
	body := decodeVideos(t, rr)
	require.Len(t, body.Videos, 2)

	newest := body.Videos[0]
	assert.Equal(t, "file-2", newest.FileID)
	assert.Equal(t, "clip 2", *newest.Caption)
	assert.Equal(t, "2024-05-01T12:02:00.000Z", newest.PostedAt)
	assert.Nil(t, body.Videos[1].Caption)
	assert.Contains(t, rr.Body.String(), `"next_cursor":null`)
	assert.Contains(t, rr.Body.String(), `"caption":null`)
}

func TestVideos_EmptyFeed(t *testing.T) {
	h, _ := seededVideos(t, 0)

	rr := getVideos(h, "")
	assert.JSONEq(t, `{"videos":[],"next_cursor":null,"has_more":false}`, rr.Body.String())
}

func TestVideos_DefaultAndClampedLimit(t *testing.T) {
	h, _ := seededVideos(t, 60)

	assert.Len(t, decodeVideos(t, getVideos(h, "")).Videos, feed.DefaultPageSize)
	assert.Len(t, decodeVideos(t, getVideos(h, "?limit=999")).Videos, feed.MaxPageSize)
}

func TestVideos_BadParameters(t *testing.T) {
	h, _ := seededVideos(t, 3)

	cases := map[string]string{
		"?cursor=abc":  "INVALID_CURSOR",
		"?cursor=-4":   "INVALID_CURSOR",
		"?cursor=9999": "INVALID_CURSOR",
		"?limit=0":     "INVALID_PAGE_SIZE",
		"?limit=-1":    "INVALID_PAGE_SIZE",
		"?limit=lots":  "INVALID_PAGE_SIZE",
	}
	for query, code := range cases {
		t.Run(query, func(t *testing.T) {
			rr := getVideos(h, query)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Contains(t, rr.Body.String(), code)
		})
	}
}

type unavailableStore struct{ store.VideoStore }

func (unavailableStore) List(context.Context, *int64, int) ([]store.Video, error) {
	return nil, context.DeadlineExceeded
}

func TestVideos_StorageFailure(t *testing.T) {
	h := NewVideosHandler(feed.NewPaginator(unavailableStore{}), zap.NewNop())

	rr := getVideos(h, "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "INTERNAL")
}
