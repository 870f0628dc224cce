package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

var (
	// ErrFileNotFound means the Bot API rejected the handle (unknown, expired
	// or too large to download).
	ErrFileNotFound = errors.New("telegram: file not found")
	// ErrUpstream covers transport, status and decoding failures.
	ErrUpstream = errors.New("telegram: upstream failure")
	// ErrNotConfigured means no bot token was provided.
	ErrNotConfigured = errors.New("telegram: bot token not configured")
)

const DefaultBaseURL = "https://api.telegram.org"

type FileClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	CB         *gobreaker.CircuitBreaker
	Log        *zap.Logger
}

type Option func(*FileClient)

func WithCircuitBreaker(cb *gobreaker.CircuitBreaker) Option {
	return func(c *FileClient) { c.CB = cb }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *FileClient) { c.HTTPClient = hc }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *FileClient) { c.Log = log }
}

func NewFileClient(baseURL, token string, opts ...Option) *FileClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &FileClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: defaultHTTPClient(),
		Log:        zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// defaultHTTPClient bounds the wait for response headers only; Open streams
// bodies of arbitrary length through the same client.
func defaultHTTPClient() *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.ResponseHeaderTimeout = 10 * time.Second
	return &http.Client{Transport: tr}
}

// NewBreaker returns a breaker that opens after failures consecutive upstream
// errors. ErrFileNotFound is an answer, not a failure, so it never trips it.
func NewBreaker(name string, failures uint32, timeout time.Duration, log *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrFileNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

func (c *FileClient) Configured() bool {
	return c.Token != ""
}

// FilePath exchanges a file handle for its download path.
func (c *FileClient) FilePath(ctx context.Context, fileID string) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	if c.CB == nil {
		return c.getFile(ctx, fileID)
	}
	res, err := c.CB.Execute(func() (interface{}, error) {
		return c.getFile(ctx, fileID)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: %v", ErrUpstream, err)
		}
		return "", err
	}
	return res.(string), nil
}

func (c *FileClient) getFile(ctx context.Context, fileID string) (string, error) {
	u := c.BaseURL + "/bot" + c.Token + "/getFile?file_id=" + url.QueryEscape(fileID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		// url.Error embeds the request URL, which carries the token.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", ErrUpstream, err)
	}
	var out Response[File]
	if err := json.Unmarshal(b, &out); err != nil {
		return "", fmt.Errorf("%w: status %d: decode: %v", ErrUpstream, resp.StatusCode, err)
	}
	if !out.OK {
		// 400 is "invalid file_id" / "file is too big"; anything else is the
		// upstream misbehaving.
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound {
			c.Log.Debug("getFile rejected handle", zap.Int("code", out.ErrorCode), zap.String("description", out.Description))
			return "", fmt.Errorf("%w: %s", ErrFileNotFound, out.Description)
		}
		return "", fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, out.Description)
	}
	if out.Result.FilePath == "" {
		return "", fmt.Errorf("%w: empty file_path", ErrFileNotFound)
	}
	return out.Result.FilePath, nil
}

// FileURL is the direct download URL for a path returned by FilePath. It
// embeds the bot token.
func (c *FileClient) FileURL(filePath string) string {
	return c.BaseURL + "/file/bot" + c.Token + "/" + strings.TrimLeft(filePath, "/")
}

// Open streams a file from the Bot API file endpoint, forwarding rangeHeader
// when set. The caller closes the body.
func (c *FileClient) Open(ctx context.Context, filePath, rangeHeader string) (*http.Response, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.FileURL(filePath), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, ErrFileNotFound
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}
	return resp, nil
}
