// Package publisher provides NATS JetStream event publishing for the feed.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/reelfeed/services/feed/internal/store"
)

const (
	SubjectVideoIngested = "feed.video.ingested"
	StreamName           = "FEED_EVENTS"
)

// Publisher publishes feed events to NATS JetStream.
type Publisher struct {
	nc  *nats.Conn
	js  nats.JetStreamContext
	log *zap.Logger
}

// New wraps nc and ensures the FEED_EVENTS stream exists.
// A nil nc yields a no-op publisher (stub).
func New(nc *nats.Conn, log *zap.Logger) (*Publisher, error) {
	if nc == nil {
		log.Warn("NATS_URL not set, feed events will not be published (stub mode)")
		return &Publisher{log: log}, nil
	}

	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     StreamName,
		Subjects: []string{"feed.>"},
		Storage:  nats.FileStorage,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		log.Warn("failed to create NATS stream (may already exist)", zap.Error(err))
	}

	log.Info("NATS publisher initialised", zap.String("stream", StreamName))
	return &Publisher{nc: nc, js: js, log: log}, nil
}

// VideoIngested is published once per stored video, on first insert only.
type VideoIngested struct {
	EventID   string    `json:"event_id"`
	VideoID   int64     `json:"video_id"`
	FileID    string    `json:"file_id"`
	MessageID int64     `json:"message_id"`
	Caption   *string   `json:"caption"`
	PostedAt  time.Time `json:"posted_at"`
}

func NewVideoIngested(v store.Video) VideoIngested {
	return VideoIngested{
		EventID:   uuid.NewString(),
		VideoID:   v.ID,
		FileID:    v.FileID,
		MessageID: v.MessageID,
		Caption:   v.Caption,
		PostedAt:  v.PostedAt,
	}
}

// PublishVideoIngested sends evt on SubjectVideoIngested. The message id
// header lets JetStream drop redeliveries of the same video.
// If JetStream is not configured (stub), it logs and returns nil.
func (p *Publisher) PublishVideoIngested(ctx context.Context, evt VideoIngested) error {
	if p.js == nil {
		p.log.Debug("NATS stub: skipping publish", zap.String("subject", SubjectVideoIngested), zap.Int64("video_id", evt.VideoID))
		return nil
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	msg := nats.NewMsg(SubjectVideoIngested)
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, "video-"+strconv.FormatInt(evt.MessageID, 10))

	ack, err := p.js.PublishMsg(msg, nats.Context(ctx))
	if err != nil {
		return err
	}

	p.log.Debug("NATS event published",
		zap.String("subject", SubjectVideoIngested),
		zap.String("event_id", evt.EventID),
		zap.Uint64("seq", ack.Sequence),
	)
	return nil
}

// Run blocks until ctx is done, then drains the connection.
func (p *Publisher) Run(ctx context.Context) error {
	<-ctx.Done()
	if p.nc == nil {
		return nil
	}
	if err := p.nc.Drain(); err != nil {
		p.log.Warn("NATS drain failed", zap.Error(err))
		p.nc.Close()
	}
	return nil
}

// Stub reports whether events are being dropped.
func (p *Publisher) Stub() bool { return p.js == nil }
