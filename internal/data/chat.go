package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"foodshare/backend/internal/normalize"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MaxMessageLength bounds message content size in characters.
const MaxMessageLength = 1000

// ChatStore manages the two linked chat collections: conversations and
// messages. A conversation is a private thread between exactly two users;
// it exclusively owns its message-reference sequence.
type ChatStore struct {
	// conversations and messages collection references, set via NewChatStore()
	conversations *mongo.Collection
	messages      *mongo.Collection
}

// NewChatStore returns a ChatStore over the given collections.
func NewChatStore(conversations, messages *mongo.Collection) *ChatStore {
	return &ChatStore{conversations: conversations, messages: messages}
}

// PairKey returns the canonical order-independent key for a participant
// pair: the two hex ids sorted lexicographically and joined with ":".
// PairKey(a, b) == PairKey(b, a), which is what makes the find-or-create
// upsert race-free under the unique participants_key index.
func PairKey(a, b bson.ObjectID) string {
	ah, bh := a.Hex(), b.Hex()
	if ah > bh {
		ah, bh = bh, ah
	}
	return ah + ":" + bh
}

// FindOrCreateConversation resolves the single conversation between two
// users, creating it atomically if it does not exist yet. The whole
// find-or-create is ONE FindOneAndUpdate upsert keyed by the canonical
// pair key: two concurrent first messages between the same pair both land
// on the same document instead of racing to create two threads.
func (c *ChatStore) FindOrCreateConversation(ctx context.Context, userA, userB bson.ObjectID, subject *bson.ObjectID) (*Conversation, error) {
	if userA == userB {
		return nil, fmt.Errorf("%w: cannot start a conversation with yourself", ErrValidation)
	}

	now := time.Now()

	// $setOnInsert only applies when the upsert creates the document, so
	// an existing conversation keeps its message list and subject.
	update := bson.M{
		"$setOnInsert": bson.M{
			"participants":  bson.A{userA, userB},
			"messages":      bson.A{},
			"last_activity": now,
			"created_at":    now,
			"updated_at":    now,
		},
	}
	if subject != nil {
		update["$setOnInsert"].(bson.M)["subject"] = *subject
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	key := PairKey(userA, userB)

	var conv Conversation
	err := c.conversations.FindOneAndUpdate(ctx,
		bson.M{"participants_key": key}, update, opts).Decode(&conv)
	if err != nil {
		// Two upserts racing on the same missing key: the loser hits the
		// unique index. The document exists now, so a plain find resolves it.
		if mongo.IsDuplicateKeyError(err) {
			if ferr := c.conversations.FindOne(ctx, bson.M{"participants_key": key}).Decode(&conv); ferr == nil {
				return &conv, nil
			}
		}
		return nil, err
	}
	return &conv, nil
}

// SendMessage appends a message to the pair's conversation (creating the
// conversation on first contact) and refreshes the conversation's
// last-message pointer and last-activity marker. The returned message is
// durably stored before any notification is attempted; broadcast is the
// caller's concern.
func (c *ChatStore) SendMessage(ctx context.Context, from, to bson.ObjectID, content string, subject *bson.ObjectID) (*Message, *Conversation, error) {
	content = normalize.Content(content)
	if content == "" {
		return nil, nil, fmt.Errorf("%w: content is required", ErrValidation)
	}
	if len([]rune(content)) > MaxMessageLength {
		return nil, nil, fmt.Errorf("%w: content exceeds %d characters", ErrValidation, MaxMessageLength)
	}

	// Step 1: resolve (or atomically create) the conversation
	conv, err := c.FindOrCreateConversation(ctx, from, to, subject)
	if err != nil {
		return nil, nil, err
	}

	// Step 2: insert the message referencing its owning conversation
	now := time.Now()
	msg := &Message{
		From:           from,
		To:             to,
		Content:        content,
		Date:           now,
		ConversationID: conv.ID,
		Read:           false,
		CreatedAt:      now,
	}

	result, err := c.messages.InsertOne(ctx, msg)
	if err != nil {
		return nil, nil, err
	}
	msg.ID = result.InsertedID.(bson.ObjectID)

	// Step 3: push the message ref and move the denormalized pointers.
	// Last-write-wins between concurrent senders; the message list itself
	// only ever grows.
	convUpdate := bson.M{
		"$push": bson.M{"messages": msg.ID},
		"$set": bson.M{
			"last_message":  msg.ID,
			"last_activity": msg.Date,
			"updated_at":    msg.Date,
		},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated Conversation
	if err := c.conversations.FindOneAndUpdate(ctx, bson.M{"_id": conv.ID}, convUpdate, opts).Decode(&updated); err != nil {
		return nil, nil, err
	}

	return msg, &updated, nil
}

// GetConversation returns the conversation between two users, or
// ErrNotFound when the pair has never exchanged a message.
func (c *ChatStore) GetConversation(ctx context.Context, userA, userB bson.ObjectID) (*Conversation, error) {
	var conv Conversation
	err := c.conversations.FindOne(ctx, bson.M{"participants_key": PairKey(userA, userB)}).Decode(&conv)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &conv, nil
}

// History returns up to limit recent messages between two users, ordered
// oldest→newest. A pair without a conversation yields ErrNotFound.
func (c *ChatStore) History(ctx context.Context, userA, userB bson.ObjectID, limit int64) ([]*Message, *Conversation, error) {
	conv, err := c.GetConversation(ctx, userA, userB)
	if err != nil {
		return nil, nil, err
	}

	// Query newest-first so the limit keeps the most recent messages,
	// then reverse to chronological order for the client
	opts := options.Find().
		SetSort(bson.M{"date": -1}).
		SetLimit(limit)

	cursor, err := c.messages.Find(ctx, bson.M{"conversation_id": conv.ID}, opts)
	if err != nil {
		return nil, nil, err
	}
	defer cursor.Close(ctx)

	var msgs []*Message
	if err = cursor.All(ctx, &msgs); err != nil {
		return nil, nil, err
	}

	// Classic two-pointer reverse: DB gave newest first, client wants
	// oldest first
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	return msgs, conv, nil
}

// MarkRead flips a message's read flag false→true and stamps read_at.
// Only the recipient may mark a message read, and a message already read
// keeps its original read_at: the filter matches read=false so the update
// can only ever fire once per message. No other post-creation mutation of
// a message exists anywhere in the store.
func (c *ChatStore) MarkRead(ctx context.Context, msgID, reader bson.ObjectID) (*Message, error) {
	now := time.Now()
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated Message
	err := c.messages.FindOneAndUpdate(ctx,
		bson.M{"_id": msgID, "to": reader, "read": false},
		bson.M{"$set": bson.M{"read": true, "read_at": now}},
		opts).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			// Either the message doesn't exist, the caller isn't the
			// recipient, or it was already read. Distinguish the
			// already-read case so callers can treat it as success.
			var existing Message
			ferr := c.messages.FindOne(ctx, bson.M{"_id": msgID, "to": reader}).Decode(&existing)
			if ferr == nil && existing.Read {
				return &existing, nil
			}
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &updated, nil
}

// RecentConversations returns a user's conversations ordered by last
// activity, newest first.
func (c *ChatStore) RecentConversations(ctx context.Context, user bson.ObjectID, limit int64) ([]*Conversation, error) {
	opts := options.Find().
		SetSort(bson.M{"last_activity": -1}).
		SetLimit(limit)

	cursor, err := c.conversations.Find(ctx, bson.M{"participants": user}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var convs []*Conversation
	if err = cursor.All(ctx, &convs); err != nil {
		return nil, err
	}
	return convs, nil
}
