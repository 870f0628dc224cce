// Package ingest decides which webhook updates become stored videos.
package ingest

import (
	"strconv"
	"strings"
	"time"

	"github.com/example/reelfeed/services/feed/internal/store"
	"github.com/example/reelfeed/services/feed/internal/telegram"
)

// Reason explains why an update was not ingested. Rejections are
// acknowledged upstream, never retried.
type Reason string

const (
	ReasonNoMessage    Reason = "no_message"
	ReasonWrongChannel Reason = "wrong_channel"
	ReasonNotVideo     Reason = "not_video"
	ReasonMalformed    Reason = "malformed"
)

// Decision is either Accepted with Video filled, or carries a Reason.
type Decision struct {
	Accepted bool
	Video    store.NewVideo
	Reason   Reason
}

func reject(r Reason) Decision { return Decision{Reason: r} }

// Classify is pure: it performs no I/O. An empty expectedChannel accepts
// every chat.
func Classify(u telegram.Update, expectedChannel string) Decision {
	msg := u.ChannelPost
	if msg == nil {
		msg = u.Message
	}
	if msg == nil {
		return reject(ReasonNoMessage)
	}

	if !channelMatches(msg.Chat, expectedChannel) {
		return reject(ReasonWrongChannel)
	}

	fileID, ok := videoFileID(msg)
	if !ok {
		return reject(ReasonNotVideo)
	}
	if fileID == "" || msg.MessageID == 0 || msg.Date <= 0 {
		return reject(ReasonMalformed)
	}

	v := store.NewVideo{
		FileID:    fileID,
		MessageID: msg.MessageID,
		PostedAt:  time.Unix(msg.Date, 0).UTC(),
	}
	if msg.Caption != "" {
		c := msg.Caption
		v.Caption = &c
	}
	return Decision{Accepted: true, Video: v}
}

func channelMatches(chat telegram.Chat, expected string) bool {
	expected = strings.TrimSpace(expected)
	if expected == "" {
		return true
	}
	if name, ok := strings.CutPrefix(expected, "@"); ok {
		return chat.Username != "" && strings.EqualFold(name, chat.Username)
	}
	return expected == strconv.FormatInt(chat.ID, 10)
}

// videoFileID reports the handle of a native video, or of a document whose
// MIME type is video/*.
func videoFileID(msg *telegram.Message) (string, bool) {
	if msg.Video != nil {
		return msg.Video.FileID, true
	}
	if d := msg.Document; d != nil && hasVideoMIME(d.MimeType) {
		return d.FileID, true
	}
	return "", false
}

func hasVideoMIME(mime string) bool {
	const prefix = "video/"
	return len(mime) >= len(prefix) && strings.EqualFold(mime[:len(prefix)], prefix)
}
