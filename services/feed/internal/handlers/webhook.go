package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/example/reelfeed/internal/platform/api"
	"github.com/example/reelfeed/internal/platform/httpserver"
	"github.com/example/reelfeed/services/feed/internal/ingest"
	"github.com/example/reelfeed/services/feed/internal/metrics"
	"github.com/example/reelfeed/services/feed/internal/publisher"
	"github.com/example/reelfeed/services/feed/internal/store"
	"github.com/example/reelfeed/services/feed/internal/telegram"
)

const maxBodyBytes = 1 << 20

// EventPublisher is satisfied by *publisher.Publisher.
type EventPublisher interface {
	PublishVideoIngested(ctx context.Context, evt publisher.VideoIngested) error
}

type webhookReply struct {
	OK        bool   `json:"ok"`
	Message   string `json:"message"`
	Reason    string `json:"reason,omitempty"`
	VideoID   int64  `json:"video_id,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

var rejectionMessages = map[ingest.Reason]string{
	ingest.ReasonNoMessage:    "No message found",
	ingest.ReasonWrongChannel: "Not from target channel",
	ingest.ReasonNotVideo:     "Not a video message",
	ingest.ReasonMalformed:    "Malformed update",
}

// WebhookHandler ingests Telegram webhook POSTs. Everything except an auth
// failure or a storage error is acknowledged with 200 so Telegram does not
// redeliver updates that are ignored on purpose.
type WebhookHandler struct {
	secret  string
	channel string
	log     *zap.Logger
	store   store.VideoStore
	pub     EventPublisher
}

func NewWebhookHandler(secret, channel string, log *zap.Logger, st store.VideoStore, pub EventPublisher) *WebhookHandler {
	return &WebhookHandler{
		secret:  secret,
		channel: channel,
		log:     log,
		store:   st,
		pub:     pub,
	}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rid := httpserver.RequestIDFromContext(r.Context())

	// An empty secret leaves the endpoint open.
	if h.secret != "" && !telegram.ValidSecret(h.secret, r.Header.Get(telegram.SecretHeader)) {
		metrics.WebhookUpdates.WithLabelValues("unauthorized").Inc()
		h.log.Warn("webhook secret mismatch", zap.String("request_id", rid))
		api.Unauthorized(w, "UNAUTHORIZED", "invalid webhook secret token", rid)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		api.BadRequest(w, "READ_ERROR", "cannot read body", rid, nil)
		return
	}

	var update telegram.Update
	if err := json.Unmarshal(body, &update); err != nil {
		h.log.Warn("webhook body is not a valid update", zap.Error(err), zap.String("request_id", rid))
		h.ack(w, ingest.Decision{Reason: ingest.ReasonMalformed})
		return
	}

	decision := ingest.Classify(update, h.channel)
	if !decision.Accepted {
		h.log.Debug("update ignored",
			zap.Int64("update_id", update.UpdateID),
			zap.String("reason", string(decision.Reason)),
		)
		h.ack(w, decision)
		return
	}

	rec, inserted, err := h.store.Upsert(r.Context(), decision.Video)
	if err != nil {
		metrics.WebhookUpdates.WithLabelValues("failed").Inc()
		h.log.Error("store video failed",
			zap.Error(err),
			zap.Int64("message_id", decision.Video.MessageID),
			zap.String("request_id", rid),
		)
		api.Internal(w, rid)
		return
	}

	if !inserted {
		metrics.WebhookUpdates.WithLabelValues("duplicate").Inc()
		h.log.Debug("duplicate update, existing video kept", zap.Int64("message_id", rec.MessageID), zap.Int64("video_id", rec.ID))
		api.WriteJSON(w, http.StatusOK, webhookReply{OK: true, Message: "Video already processed", VideoID: rec.ID, Duplicate: true})
		return
	}

	metrics.WebhookUpdates.WithLabelValues("inserted").Inc()
	h.log.Info("video ingested", zap.Int64("video_id", rec.ID), zap.Int64("message_id", rec.MessageID))

	// The row is committed; a lost event must not turn into a redelivery.
	if err := h.pub.PublishVideoIngested(r.Context(), publisher.NewVideoIngested(rec)); err != nil {
		h.log.Warn("publish video.ingested failed", zap.Error(err), zap.Int64("video_id", rec.ID))
	}

	api.WriteJSON(w, http.StatusOK, webhookReply{OK: true, Message: "Video processed", VideoID: rec.ID})
}

func (h *WebhookHandler) ack(w http.ResponseWriter, d ingest.Decision) {
	metrics.WebhookUpdates.WithLabelValues(string(d.Reason)).Inc()
	api.WriteJSON(w, http.StatusOK, webhookReply{
		OK:      true,
		Message: rejectionMessages[d.Reason],
		Reason:  string(d.Reason),
	})
}

// WebhookStatus answers GET on the webhook path.
func WebhookStatus(w http.ResponseWriter, _ *http.Request) {
	api.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "telegram-webhook"})
}
