package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"atstore-api/internal/model"
)

// MongoOrderRepository stores orders as documents keyed by order id.
type MongoOrderRepository struct {
	collection *mongo.Collection
}

// NewMongoOrderRepository creates an order repository on db.
func NewMongoOrderRepository(db *mongo.Database) *MongoOrderRepository {
	return &MongoOrderRepository{collection: db.Collection(ordersCollection)}
}

func (r *MongoOrderRepository) Create(ctx context.Context, o *model.Order) error {
	if _, err := r.collection.InsertOne(ctx, o); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

func (r *MongoOrderRepository) findOne(ctx context.Context, filter bson.M) (*model.Order, error) {
	var o model.Order
	if err := r.collection.FindOne(ctx, filter).Decode(&o); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return &o, nil
}

func (r *MongoOrderRepository) Get(ctx context.Context, orderID string) (*model.Order, error) {
	return r.findOne(ctx, bson.M{"_id": orderID})
}

func (r *MongoOrderRepository) count(ctx context.Context, filter bson.M) (bool, error) {
	n, err := r.collection.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check order existence: %w", err)
	}
	return n > 0, nil
}

func (r *MongoOrderRepository) ExistsOrderID(ctx context.Context, orderID string) (bool, error) {
	return r.count(ctx, bson.M{"_id": orderID})
}

func (r *MongoOrderRepository) ExistsCheckoutCode(ctx context.Context, code string) (bool, error) {
	return r.count(ctx, bson.M{"checkout_code": code})
}

func (r *MongoOrderRepository) FindPendingByCheckoutCode(ctx context.Context, code string) (*model.Order, error) {
	return r.findOne(ctx, bson.M{"checkout_code": code, "status": model.OrderPending})
}

func (r *MongoOrderRepository) ListByUser(ctx context.Context, userID string) ([]*model.Order, error) {
	return r.find(ctx, bson.M{"user_id": userID})
}

func (r *MongoOrderRepository) ListByStatus(ctx context.Context, status model.OrderStatus, dr model.DateRange) ([]*model.Order, error) {
	filter := bson.M{"status": status}
	created := bson.M{}
	if dr.From != nil {
		created["$gte"] = *dr.From
	}
	if dr.To != nil {
		created["$lte"] = *dr.To
	}
	if len(created) > 0 {
		filter["created_at"] = created
	}
	return r.find(ctx, filter)
}

func (r *MongoOrderRepository) find(ctx context.Context, filter bson.M) ([]*model.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer cursor.Close(ctx)

	out := make([]*model.Order, 0)
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode orders: %w", err)
	}
	return out, nil
}

func (r *MongoOrderRepository) TransitionStatus(ctx context.Context, orderID string, change model.StatusChange) error {
	set := bson.M{"status": change.To, "updated_at": change.At}
	if change.To == model.OrderPaid {
		set["paid_at"] = change.At
		if change.PaidAmount != nil {
			set["paid_amount"] = *change.PaidAmount
		}
	}

	filter := bson.M{"_id": orderID}
	if change.From != "" {
		filter["status"] = change.From
	}

	res, err := r.collection.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	exists, err := r.ExistsOrderID(ctx, orderID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

func (r *MongoOrderRepository) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.collection.UpdateMany(ctx,
		bson.M{"status": model.OrderPending, "expires_at": bson.M{"$lte": now}},
		bson.M{"$set": bson.M{"status": model.OrderExpired, "updated_at": now}})
	if err != nil {
		return 0, fmt.Errorf("failed to expire orders: %w", err)
	}
	return res.ModifiedCount, nil
}

func (r *MongoOrderRepository) PurgeExpired(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	filter := bson.M{"status": model.OrderExpired, "updated_at": bson.M{"$lte": cutoff}}
	opts := options.Find().SetLimit(int64(batchSize)).SetProjection(bson.M{"_id": 1})

	var total int64
	for {
		cursor, err := r.collection.Find(ctx, filter, opts)
		if err != nil {
			return total, fmt.Errorf("failed to select expired orders: %w", err)
		}
		var docs []struct {
			ID string `bson:"_id"`
		}
		if err := cursor.All(ctx, &docs); err != nil {
			return total, fmt.Errorf("failed to decode expired orders: %w", err)
		}
		if len(docs) == 0 {
			return total, nil
		}

		ids := make([]string, len(docs))
		for i, d := range docs {
			ids[i] = d.ID
		}
		res, err := r.collection.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
		if err != nil {
			return total, fmt.Errorf("failed to delete expired orders: %w", err)
		}
		total += res.DeletedCount

		if len(docs) < batchSize {
			return total, nil
		}
	}
}

func (r *MongoOrderRepository) Ping(ctx context.Context) error {
	return r.collection.Database().Client().Ping(ctx, nil)
}

// Close disconnects the shared client.
func (r *MongoOrderRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return r.collection.Database().Client().Disconnect(ctx)
}

var _ OrderRepository = (*MongoOrderRepository)(nil)
