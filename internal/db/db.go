// Package db manages MongoDB connections and collections.
package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// Client wraps mongo.Client and exposes the marketplace collections.
type Client struct {
	// client is the underlying MongoDB connection (thread-safe, can be reused)
	client *mongo.Client

	// db is the application database; collections ("users", "dons",
	// "conversations", "messages") are accessed via this reference
	db *mongo.Database
}

// New connects to MongoDB and returns a Client scoped to the named database.
func New(ctx context.Context, mongoURI, database string) (*Client, error) {
	// SetConnectTimeout: fail fast if MongoDB is unreachable
	opts := options.Client().
		ApplyURI(mongoURI).
		SetConnectTimeout(10 * time.Second)

	// Creates the client; the actual connection is verified by the ping below
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Bound the ping so startup does not hang on a dead server
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &Client{
		client: client,
		db:     client.Database(database),
	}, nil
}

// UsersCollection returns the users collection.
func (c *Client) UsersCollection() *mongo.Collection {
	return c.db.Collection("users")
}

// DonsCollection returns the donation listings collection.
func (c *Client) DonsCollection() *mongo.Collection {
	return c.db.Collection("dons")
}

// ConversationsCollection returns the conversations collection.
func (c *Client) ConversationsCollection() *mongo.Collection {
	return c.db.Collection("conversations")
}

// MessagesCollection returns the messages collection.
func (c *Client) MessagesCollection() *mongo.Collection {
	return c.db.Collection("messages")
}

// Close disconnects from MongoDB.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// CreateIndexes creates the indexes every query path relies on. Safe to
// call on every startup; Mongo treats existing identical indexes as a no-op.
func (c *Client) CreateIndexes(ctx context.Context) error {
	// ===== USERS =====
	usersIndexes := []mongo.IndexModel{
		{
			// Unique email: prevents duplicate registration and backs
			// GetUserByEmail lookups
			Keys:    map[string]int{"email": 1},
			Options: options.Index().SetUnique(true),
		},
		{
			// Session-token lookups (profile routes authenticate by token)
			Keys: map[string]int{"token": 1},
		},
	}
	if _, err := c.UsersCollection().Indexes().CreateMany(ctx, usersIndexes); err != nil {
		return fmt.Errorf("failed to create users indexes: %w", err)
	}

	// ===== DONS =====
	donsIndexes := []mongo.IndexModel{
		{
			// 2dsphere index on the GeoJSON location; required by the
			// $near proximity queries in DonsStore.Near
			Keys: map[string]string{"location": "2dsphere"},
		},
		{
			// List sorts newest-first on created_at
			Keys: map[string]int{"created_at": -1},
		},
	}
	if _, err := c.DonsCollection().Indexes().CreateMany(ctx, donsIndexes); err != nil {
		return fmt.Errorf("failed to create dons indexes: %w", err)
	}

	// ===== CONVERSATIONS =====
	convIndexes := []mongo.IndexModel{
		{
			// Unique canonical participant-pair key. This is what makes the
			// find-or-create upsert atomic: two concurrent first messages
			// between the same pair resolve to one document.
			Keys:    map[string]int{"participants_key": 1},
			Options: options.Index().SetUnique(true),
		},
		{
			// Recent-conversation listings sort on last_activity
			Keys: map[string]int{"last_activity": -1},
		},
	}
	if _, err := c.ConversationsCollection().Indexes().CreateMany(ctx, convIndexes); err != nil {
		return fmt.Errorf("failed to create conversations indexes: %w", err)
	}

	// ===== MESSAGES =====
	msgIndexes := []mongo.IndexModel{
		{
			// History reads a conversation's messages ordered by date.
			// Compound keys must be bson.D: the driver rejects multi-key
			// maps because their field order is undefined.
			Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "date", Value: -1}},
		},
		{
			// Unread lookups for a recipient
			Keys: bson.D{{Key: "to", Value: 1}, {Key: "read", Value: 1}},
		},
	}
	if _, err := c.MessagesCollection().Indexes().CreateMany(ctx, msgIndexes); err != nil {
		return fmt.Errorf("failed to create messages indexes: %w", err)
	}

	return nil
}
