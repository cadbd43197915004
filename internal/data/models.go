package data

import (
	"time"

	"foodshare/backend/internal/geo"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Address is the embedded postal address on a user document. The location
// point lets proximity features work from a user's home position.
type Address struct {
	Street     string     `bson:"street,omitempty" json:"street,omitempty"`
	PostalCode string     `bson:"postal_code,omitempty" json:"postalCode,omitempty"`
	City       string     `bson:"city,omitempty" json:"city,omitempty"`
	Country    string     `bson:"country,omitempty" json:"country,omitempty"`
	Location   *geo.Point `bson:"location,omitempty" json:"location,omitempty"`
}

// DonationRecord tracks the dons a user has given away and received.
type DonationRecord struct {
	Received []bson.ObjectID `bson:"received" json:"received"`
	Given    []bson.ObjectID `bson:"given" json:"given"`
}

// Score is a user's reputation subdocument: the ratings other users left
// and the donation exchange record behind them.
type Score struct {
	Notation []float64       `bson:"notation,omitempty" json:"notation,omitempty"`
	Dons     *DonationRecord `bson:"dons,omitempty" json:"dons,omitempty"`
}

// User maps to the users collection.
type User struct {
	ID        bson.ObjectID   `bson:"_id,omitempty" json:"id"`
	Email     string          `bson:"email" json:"email"`
	UserName  string          `bson:"user_name,omitempty" json:"userName,omitempty"`
	FirstName string          `bson:"first_name,omitempty" json:"firstName,omitempty"`
	LastName  string          `bson:"last_name,omitempty" json:"lastName,omitempty"`
	Password  string          `bson:"password" json:"-"`
	Token     string          `bson:"token" json:"-"`
	Picture   string          `bson:"picture,omitempty" json:"picture,omitempty"`
	Birthday  *time.Time      `bson:"birthday,omitempty" json:"birthday,omitempty"`
	Phone     string          `bson:"phone,omitempty" json:"phone,omitempty"`
	Address   *Address        `bson:"address,omitempty" json:"address,omitempty"`
	Score     *Score          `bson:"score,omitempty" json:"score,omitempty"`
	Favorites []bson.ObjectID `bson:"favorites" json:"favorites"`
	IsOnline  bool            `bson:"is_online" json:"isOnline"`
	LastSeen  *time.Time      `bson:"last_seen,omitempty" json:"lastSeen,omitempty"`
	CreatedAt time.Time       `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time       `bson:"updated_at" json:"updatedAt"`
}

// Don maps to the dons collection (a donation listing).
// DistanceKm is never persisted; it is filled in by List when the caller
// supplies observer coordinates, and stays nil when the don has no valid
// location.
type Don struct {
	ID          bson.ObjectID `bson:"_id,omitempty" json:"id"`
	Title       string        `bson:"title" json:"title"`
	Description string        `bson:"description" json:"description"`
	Image       string        `bson:"image,omitempty" json:"image,omitempty"`
	Location    *geo.Point    `bson:"location,omitempty" json:"location,omitempty"`
	User        bson.ObjectID `bson:"user" json:"user"`
	CreatedAt   time.Time     `bson:"created_at" json:"createdAt"`

	DistanceKm *float64 `bson:"-" json:"distanceKm,omitempty"`
}

// Conversation maps to the conversations collection: a private thread
// between exactly two participants, optionally about a specific don.
// ParticipantsKey is the canonical order-independent pair key that the
// unique index and the find-or-create upsert are built on.
type Conversation struct {
	ID              bson.ObjectID   `bson:"_id,omitempty" json:"id"`
	Subject         *bson.ObjectID  `bson:"subject,omitempty" json:"subject,omitempty"`
	Participants    []bson.ObjectID `bson:"participants" json:"participants"`
	ParticipantsKey string          `bson:"participants_key" json:"-"`
	Messages        []bson.ObjectID `bson:"messages" json:"messages"`
	LastMessage     *bson.ObjectID  `bson:"last_message,omitempty" json:"lastMessage,omitempty"`
	LastActivity    time.Time       `bson:"last_activity" json:"lastActivity"`
	CreatedAt       time.Time       `bson:"created_at" json:"createdAt"`
	UpdatedAt       time.Time       `bson:"updated_at" json:"updatedAt"`
}

// Message maps to the messages collection. Immutable after creation except
// for the read flag (false→true once) and its read timestamp.
type Message struct {
	ID             bson.ObjectID `bson:"_id,omitempty" json:"id"`
	From           bson.ObjectID `bson:"from" json:"from"`
	To             bson.ObjectID `bson:"to" json:"to"`
	Content        string        `bson:"content" json:"content"`
	Date           time.Time     `bson:"date" json:"date"`
	ConversationID bson.ObjectID `bson:"conversation_id" json:"conversationId"`
	Read           bool          `bson:"read" json:"read"`
	ReadAt         *time.Time    `bson:"read_at,omitempty" json:"readAt,omitempty"`
	CreatedAt      time.Time     `bson:"created_at" json:"createdAt"`
}
