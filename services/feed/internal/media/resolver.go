// Package media turns opaque file handles into playable URLs.
package media

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/example/reelfeed/internal/platform/signing"
	"github.com/example/reelfeed/services/feed/internal/metrics"
	"github.com/example/reelfeed/services/feed/internal/telegram"
)

// directURLLifetime is the minimum validity the Bot API guarantees for a
// file download link.
const directURLLifetime = time.Hour

// ProxyPath is the route prefix of the signed media proxy.
const ProxyPath = "/api/media/"

// Files is the subset of the Bot API client the resolver needs.
type Files interface {
	Configured() bool
	FilePath(ctx context.Context, fileID string) (string, error)
	FileURL(filePath string) string
}

type Playable struct {
	URL       string
	ExpiresAt time.Time
}

// Resolver is uncached: every call goes upstream.
type Resolver struct {
	files  Files
	signer *signing.Signer
	// publicBase and ttl only apply when signer is set.
	publicBase string
	ttl        time.Duration
	log        *zap.Logger
	now        func() time.Time
}

type Option func(*Resolver)

// WithSigning makes Resolve hand out proxy URLs under publicBase instead of
// direct upstream links that embed the bot token.
func WithSigning(s *signing.Signer, publicBase string, ttl time.Duration) Option {
	return func(r *Resolver) {
		r.signer = s
		r.publicBase = publicBase
		r.ttl = ttl
	}
}

func NewResolver(files Files, log *zap.Logger, opts ...Option) *Resolver {
	r := &Resolver{files: files, log: log, now: time.Now}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Resolver) Resolve(ctx context.Context, fileID string) (Playable, error) {
	if !r.files.Configured() {
		metrics.Resolutions.WithLabelValues("not_configured").Inc()
		return Playable{}, telegram.ErrNotConfigured
	}

	start := time.Now()
	path, err := r.files.FilePath(ctx, fileID)
	metrics.ResolveDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Resolutions.WithLabelValues(statusOf(err)).Inc()
		return Playable{}, err
	}

	now := r.now()
	if r.signer == nil {
		metrics.Resolutions.WithLabelValues("ok").Inc()
		return Playable{URL: r.files.FileURL(path), ExpiresAt: now.Add(directURLLifetime).UTC()}, nil
	}

	exp := now.Add(r.ttl).UTC().Truncate(time.Second)
	token, err := r.signer.Sign(path, exp)
	if err != nil {
		metrics.Resolutions.WithLabelValues("error").Inc()
		return Playable{}, err
	}
	metrics.Resolutions.WithLabelValues("ok").Inc()
	return Playable{URL: r.publicBase + ProxyPath + token, ExpiresAt: exp}, nil
}

// Signed reports whether Resolve returns proxy URLs.
func (r *Resolver) Signed() bool { return r.signer != nil }

func statusOf(err error) string {
	switch {
	case errors.Is(err, telegram.ErrFileNotFound):
		return "not_found"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
