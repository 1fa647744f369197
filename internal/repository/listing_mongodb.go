package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"atstore-api/internal/model"
)

// MongoListingRepository stores each listing as one document. Update is a
// revision-guarded ReplaceOne retried on a lost race.
type MongoListingRepository struct {
	collection *mongo.Collection
}

// NewMongoListingRepository creates a listing repository on db.
func NewMongoListingRepository(db *mongo.Database) *MongoListingRepository {
	return &MongoListingRepository{collection: db.Collection(listingsCollection)}
}

func (r *MongoListingRepository) Create(ctx context.Context, l *model.Listing) error {
	if _, err := r.collection.InsertOne(ctx, l); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert listing: %w", err)
	}
	return nil
}

func (r *MongoListingRepository) Get(ctx context.Context, id string) (*model.Listing, error) {
	var l model.Listing
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&l); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return &l, nil
}

func (r *MongoListingRepository) ListByGame(ctx context.Context, game string) ([]*model.Listing, error) {
	return r.find(ctx, bson.M{"game": game})
}

func (r *MongoListingRepository) ListByOwner(ctx context.Context, ownerID string) ([]*model.Listing, error) {
	return r.find(ctx, bson.M{"owner_id": ownerID})
}

func (r *MongoListingRepository) find(ctx context.Context, filter bson.M) ([]*model.Listing, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}
	defer cursor.Close(ctx)

	out := make([]*model.Listing, 0)
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode listings: %w", err)
	}
	return out, nil
}

func (r *MongoListingRepository) Update(ctx context.Context, id string, fn MutateFunc) (*model.Listing, error) {
	return updateWithRetry(ctx, id, fn, r.Get, r.swap)
}

func (r *MongoListingRepository) swap(ctx context.Context, next *model.Listing, expected int64) (bool, error) {
	res, err := r.collection.ReplaceOne(ctx, bson.M{"_id": next.ID, "revision": expected}, next)
	if err != nil {
		return false, fmt.Errorf("failed to replace listing: %w", err)
	}
	return res.MatchedCount == 1, nil
}

func (r *MongoListingRepository) Delete(ctx context.Context, id string) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete listing: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoListingRepository) Ping(ctx context.Context) error {
	return r.collection.Database().Client().Ping(ctx, nil)
}

// Close is a no-op: the client is shared and disconnected by the order repository.
func (r *MongoListingRepository) Close() error {
	return nil
}

var _ ListingRepository = (*MongoListingRepository)(nil)
