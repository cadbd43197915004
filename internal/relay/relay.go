// Package relay forwards chat events to the external real-time pub/sub
// broker. Delivery is at-most-once and best-effort: a failed publish is
// logged by the caller and never rolls back message persistence.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// presenceChannel carries join/leave events for the whole chat surface.
const presenceChannel = "chat"

// MessageEvent is the payload broadcast when a message is created. Ids
// travel as hex strings so any subscriber can consume them without BSON.
type MessageEvent struct {
	MessageID      string    `json:"messageId"`
	ConversationID string    `json:"conversationId"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	Content        string    `json:"content"`
	Date           time.Time `json:"date"`
}

// PresenceEvent is the payload broadcast when a user joins or leaves chat.
type PresenceEvent struct {
	Event string `json:"event"` // "join" or "leave"
	Token string `json:"token"`
}

// RedisRelay publishes events on Redis pub/sub channels. Message events
// go out on a conversation-scoped channel so clients subscribe only to
// threads they participate in.
type RedisRelay struct {
	client *redis.Client
}

// New returns a RedisRelay over the given client.
func New(client *redis.Client) *RedisRelay {
	return &RedisRelay{client: client}
}

// ConversationChannel names the pub/sub channel for one conversation.
func ConversationChannel(conversationID string) string {
	return "conversation:" + conversationID
}

// PublishMessage broadcasts a freshly stored message on its conversation's
// channel. The error is informational only; by the time this runs the
// message is already durable.
func (r *RedisRelay) PublishMessage(ctx context.Context, ev MessageEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode message event: %w", err)
	}
	if err := r.client.Publish(ctx, ConversationChannel(ev.ConversationID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish message event: %w", err)
	}
	return nil
}

// PublishPresence broadcasts a join/leave event on the shared chat channel.
func (r *RedisRelay) PublishPresence(ctx context.Context, ev PresenceEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode presence event: %w", err)
	}
	if err := r.client.Publish(ctx, presenceChannel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish presence event: %w", err)
	}
	return nil
}
