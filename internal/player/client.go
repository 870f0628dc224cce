package player

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrUnresolvable means the server could not find the media handle.
var ErrUnresolvable = errors.New("player: video unresolvable")

// StatusError is a non-2xx answer carrying the server's error envelope.
type StatusError struct {
	Status  int
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("player: status %d: %s: %s", e.Status, e.Code, e.Message)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrUnresolvable && e.Status == http.StatusNotFound
}

// Client talks to the feed service's pagination and file-URL endpoints.
// Concurrent identical page requests share one round trip.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	pages singleflight.Group
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type pageResponse struct {
	Videos     []Video `json:"videos"`
	NextCursor *int64  `json:"next_cursor"`
	HasMore    bool    `json:"has_more"`
}

func (c *Client) Page(ctx context.Context, cursor *int64, limit int) (Page, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if cursor != nil {
		q.Set("cursor", strconv.FormatInt(*cursor, 10))
	}
	u := c.BaseURL + "/api/videos?" + q.Encode()

	v, err, _ := c.pages.Do(u, func() (interface{}, error) {
		var out pageResponse
		if err := c.getJSON(ctx, u, &out); err != nil {
			return Page{}, err
		}
		return Page{Videos: out.Videos, NextCursor: out.NextCursor}, nil
	})
	if err != nil {
		return Page{}, err
	}
	return v.(Page), nil
}

type videoURLResponse struct {
	URL string `json:"url"`
}

func (c *Client) Resolve(ctx context.Context, fileID string) (string, error) {
	u := c.BaseURL + "/api/video-url?file_id=" + url.QueryEscape(fileID)
	var out videoURLResponse
	if err := c.getJSON(ctx, u, &out); err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", fmt.Errorf("%w: empty url", ErrUnresolvable)
	}
	return out.URL, nil
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		var env errorEnvelope
		_ = json.Unmarshal(b, &env)
		return &StatusError{Status: resp.StatusCode, Code: env.Error.Code, Message: env.Error.Message}
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("player: decode %s: %w", resp.Request.URL.Path, err)
	}
	return nil
}
