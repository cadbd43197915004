// Package data provides DB models and stores.
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

// UsersStore performs user DB operations.
type UsersStore struct {
	// coll is reference to "users" collection in MongoDB
	// Set via NewUsersStore() and used in all methods below
	coll *mongo.Collection
}

// NewUsersStore returns a UsersStore using the provided collection.
func NewUsersStore(coll *mongo.Collection) *UsersStore {
	return &UsersStore{coll: coll}
}

// CreateUser inserts a new user document with an already-hashed password
// and a freshly issued session token.
func (u *UsersStore) CreateUser(ctx context.Context, email, hashedPassword, token string) (*User, error) {
	user := &User{
		Email:     normalize.Email(email), // Stored lowercased + trimmed
		Password:  hashedPassword,         // Already hashed by auth.HashPassword()
		Token:     token,                  // Session token returned to the client
		Favorites: []bson.ObjectID{},      // Empty set, never nil in responses
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	result, err := u.coll.InsertOne(ctx, user)
	if err != nil {
		// Duplicate email hits the unique index on the users collection
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrUserExists
		}
		return nil, err
	}

	// MongoDB auto-generates the _id field; extract it and set on User struct
	user.ID = result.InsertedID.(bson.ObjectID)
	return user, nil
}

// GetUserByEmail finds a user by (normalized) email.
func (u *UsersStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := u.coll.FindOne(ctx, bson.M{"email": normalize.Email(email)}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetUserByToken finds a user by session token. Profile routes identify
// the caller this way.
func (u *UsersStore) GetUserByToken(ctx context.Context, token string) (*User, error) {
	var user User
	err := u.coll.FindOne(ctx, bson.M{"token": token}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetUserByID finds a user by ObjectID.
func (u *UsersStore) GetUserByID(ctx context.Context, id bson.ObjectID) (*User, error) {
	var user User
	err := u.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// UserExists checks if a user exists by email.
func (u *UsersStore) UserExists(ctx context.Context, email string) (bool, error) {
	// CountDocuments is cheaper than FindOne when only existence matters
	count, err := u.coll.CountDocuments(ctx, bson.M{"email": normalize.Email(email)})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ProfileUpdate carries the caller-editable profile fields. Picture and
// Birthday are optional; the zero value leaves the stored value alone.
type ProfileUpdate struct {
	Email     string
	UserName  string
	FirstName string
	LastName  string
	Phone     string
	Picture   string
	Birthday  *time.Time
	Address   *Address
}

// UpdateProfile replaces the profile fields of the user owning the given
// session token and returns the updated document.
func (u *UsersStore) UpdateProfile(ctx context.Context, token string, p ProfileUpdate) (*User, error) {
	set := bson.M{
		"email":      normalize.Email(p.Email),
		"user_name":  p.UserName,
		"first_name": p.FirstName,
		"last_name":  p.LastName,
		"phone":      p.Phone,
		"updated_at": time.Now(),
	}
	if p.Picture != "" {
		set["picture"] = p.Picture
	}
	if p.Birthday != nil {
		set["birthday"] = *p.Birthday
	}
	if p.Address != nil {
		// Address carries an optional GeoJSON point; if present it must be
		// well-formed or proximity features silently break on this user
		if p.Address.Location != nil {
			if err := p.Address.Location.Validate(); err != nil {
				return nil, fmt.Errorf("%w: address %s", ErrValidation, err)
			}
		}
		set["address"] = p.Address
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated User
	err := u.coll.FindOneAndUpdate(ctx, bson.M{"token": token}, bson.M{"$set": set}, opts).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &updated, nil
}

// UpdatePassword swaps the stored hash. Verifying the old password is the
// handler's job.
func (u *UsersStore) UpdatePassword(ctx context.Context, token, newHash string) error {
	res, err := u.coll.UpdateOne(ctx, bson.M{"token": token},
		bson.M{"$set": bson.M{"password": newHash, "updated_at": time.Now()}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Favorites returns the don ids the user has favorited, in stored order.
// A missing user is a distinct not-found error, never an empty list.
func (u *UsersStore) Favorites(ctx context.Context, userID bson.ObjectID) ([]bson.ObjectID, error) {
	user, err := u.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Favorites == nil {
		return []bson.ObjectID{}, nil
	}
	return user.Favorites, nil
}

// AddFavorite adds a don to the user's favorites. $addToSet keeps set
// semantics: re-adding an existing favorite is a no-op, insertion order
// of distinct entries is preserved.
func (u *UsersStore) AddFavorite(ctx context.Context, userID, donID bson.ObjectID) ([]bson.ObjectID, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated User
	err := u.coll.FindOneAndUpdate(ctx, bson.M{"_id": userID},
		bson.M{"$addToSet": bson.M{"favorites": donID}}, opts).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return updated.Favorites, nil
}

// RemoveFavorite removes a don from the user's favorites. Removing an id
// that is not present is a no-op.
func (u *UsersStore) RemoveFavorite(ctx context.Context, userID, donID bson.ObjectID) ([]bson.ObjectID, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated User
	err := u.coll.FindOneAndUpdate(ctx, bson.M{"_id": userID},
		bson.M{"$pull": bson.M{"favorites": donID}}, opts).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if updated.Favorites == nil {
		return []bson.ObjectID{}, nil
	}
	return updated.Favorites, nil
}

// SetPresence flips the online flag and stamps last_seen when a user
// leaves. Keyed by session token since presence changes come from the
// chat join/leave endpoints.
func (u *UsersStore) SetPresence(ctx context.Context, token string, online bool) error {
	set := bson.M{"is_online": online}
	if !online {
		set["last_seen"] = time.Now()
	}

	res, err := u.coll.UpdateOne(ctx, bson.M{"token": token}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
