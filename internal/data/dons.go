package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"foodshare/backend/internal/geo"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// DefaultNearRadiusMeters bounds proximity searches when the caller does
// not supply a radius.
const DefaultNearRadiusMeters = 5000

// DonsStore performs donation-listing DB operations.
type DonsStore struct {
	// coll is reference to "dons" collection in MongoDB
	// Set via NewDonsStore() and used in all methods below
	coll *mongo.Collection
}

// NewDonsStore returns a DonsStore using the provided collection.
func NewDonsStore(coll *mongo.Collection) *DonsStore {
	return &DonsStore{coll: coll}
}

// Create validates and inserts a new donation listing.
func (d *DonsStore) Create(ctx context.Context, don *Don) (*Don, error) {
	// Required fields first: a listing without them is useless to browsers
	if don.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if don.Description == "" {
		return nil, fmt.Errorf("%w: description is required", ErrValidation)
	}
	if don.User.IsZero() {
		return nil, fmt.Errorf("%w: user is required", ErrValidation)
	}

	// Location must be a well-formed GeoJSON point: {type: "Point",
	// coordinates: [longitude, latitude]}. A malformed point would be
	// accepted by InsertOne but break the 2dsphere index queries later,
	// so it is rejected up front as a validation failure.
	if err := don.Location.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err)
	}

	don.CreatedAt = time.Now()

	// InsertOne adds the document to the "dons" collection
	result, err := d.coll.InsertOne(ctx, don)
	if err != nil {
		return nil, err
	}

	// MongoDB auto-generates the _id field; extract it and set on the struct
	don.ID = result.InsertedID.(bson.ObjectID)
	return don, nil
}

// List returns all listings ordered by creation time descending. When the
// observer point is non-nil each result is annotated with the computed
// great-circle distance from the observer; listings without a valid
// location keep a nil distance.
func (d *DonsStore) List(ctx context.Context, observer *geo.Point) ([]*Don, error) {
	// Newest listings first
	opts := options.Find().SetSort(bson.M{"created_at": -1})

	cursor, err := d.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var dons []*Don
	if err = cursor.All(ctx, &dons); err != nil {
		return nil, err
	}

	// Annotation happens in application code; the $near path in Near()
	// shares the same geo.Point type so both speak the same
	// longitude-first convention.
	if observer != nil {
		annotateDistances(dons, observer)
	}

	return dons, nil
}

// annotateDistances fills DistanceKm on each don from the observer's
// position. Dons without a valid GeoJSON point are left unannotated.
func annotateDistances(dons []*Don, observer *geo.Point) {
	for _, don := range dons {
		if don.Location.Validate() != nil {
			continue
		}
		km := geo.DistanceBetween(observer, don.Location)
		don.DistanceKm = &km
	}
}

// Near returns listings around the given point, nearest first, bounded by
// maxMeters (DefaultNearRadiusMeters when <= 0). The search is delegated
// to MongoDB's $near operator on the 2dsphere index: sorting by distance
// and radius filtering happen inside the storage engine.
func (d *DonsStore) Near(ctx context.Context, pt *geo.Point, maxMeters int) ([]*Don, error) {
	if err := pt.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err)
	}
	if maxMeters <= 0 {
		maxMeters = DefaultNearRadiusMeters
	}

	// $geometry takes the reference point in GeoJSON form (longitude
	// first); $maxDistance is in meters. Results come back sorted
	// nearest-first — no application-side sort needed.
	filter := bson.M{
		"location": bson.M{
			"$near": bson.M{
				"$geometry":    pt,
				"$maxDistance": maxMeters,
			},
		},
	}

	cursor, err := d.coll.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var dons []*Don
	if err = cursor.All(ctx, &dons); err != nil {
		return nil, err
	}

	return dons, nil
}

// GetByID returns a single listing by identifier.
func (d *DonsStore) GetByID(ctx context.Context, id bson.ObjectID) (*Don, error) {
	var don Don
	err := d.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&don)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &don, nil
}

// GetMany returns the listings whose ids are in the given set, in the
// order the ids were given — favorites hydration must preserve the
// order favorites were added in. Missing ids are silently absent from
// the result (a favorited don may have been deleted since).
func (d *DonsStore) GetMany(ctx context.Context, ids []bson.ObjectID) ([]*Don, error) {
	if len(ids) == 0 {
		return []*Don{}, nil
	}

	cursor, err := d.coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var fetched []*Don
	if err = cursor.All(ctx, &fetched); err != nil {
		return nil, err
	}

	// $in gives no ordering guarantee; re-walk ids to restore it
	byID := make(map[bson.ObjectID]*Don, len(fetched))
	for _, don := range fetched {
		byID[don.ID] = don
	}
	dons := make([]*Don, 0, len(fetched))
	for _, id := range ids {
		if don, ok := byID[id]; ok {
			dons = append(dons, don)
		}
	}
	return dons, nil
}

// Update performs a full-field replace of the mutable listing fields.
func (d *DonsStore) Update(ctx context.Context, id bson.ObjectID, don *Don) (*Don, error) {
	if don.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if don.Description == "" {
		return nil, fmt.Errorf("%w: description is required", ErrValidation)
	}
	if err := don.Location.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err)
	}

	update := bson.M{"$set": bson.M{
		"title":       don.Title,
		"description": don.Description,
		"image":       don.Image,
		"location":    don.Location,
	}}

	// ReturnDocument After so the caller gets the post-update state back
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated Don
	err := d.coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &updated, nil
}

// Delete removes a listing by identifier. Deletion is hard; listings are
// never soft-deleted.
func (d *DonsStore) Delete(ctx context.Context, id bson.ObjectID) (*Don, error) {
	var deleted Don
	err := d.coll.FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&deleted)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &deleted, nil
}
