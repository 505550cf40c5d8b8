package repositories

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/shopsathi/shopsathi_backend/config"
	"github.com/shopsathi/shopsathi_backend/models"
)

// ErrOrderNotFound is returned when an order lookup or update matches nothing.
var ErrOrderNotFound = errors.New("order not found")

type OrderRepository struct {
	collection *mongo.Collection
}

func NewOrderRepository(db *mongo.Client) *OrderRepository {
	return &OrderRepository{
		collection: config.GetCollection(db, "orders"),
	}
}

func (r *OrderRepository) Insert(ctx context.Context, order *models.Order) error {
	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	now := time.Now()
	order.CreatedAt = now
	order.UpdatedAt = now

	_, err := r.collection.InsertOne(ctx, order)
	return err
}

func (r *OrderRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	var order models.Order
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&order)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, id primitive.ObjectID, status models.OrderStatus) error {
	result, err := r.collection.UpdateByID(ctx, id, bson.M{
		"$set": bson.M{
			"orderStatus": status,
			"updatedAt":   time.Now(),
		},
	})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// CountQualifyingSales counts the seller's orders in a commission-qualifying
// status (processing, shipped or delivered), excluding the order under
// evaluation. A count of zero marks that order as the seller's first sale.
func (r *OrderRepository) CountQualifyingSales(ctx context.Context, sellerID, excludeOrderID primitive.ObjectID) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{
		"sellerId": sellerID,
		"_id":      bson.M{"$ne": excludeOrderID},
		"orderStatus": bson.M{"$in": []models.OrderStatus{
			models.OrderStatusProcessing,
			models.OrderStatusShipped,
			models.OrderStatusDelivered,
		}},
	})
}
