package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/shopsathi/shopsathi_backend/config"
	"github.com/shopsathi/shopsathi_backend/models"
)

// ErrInvalidTransition is returned when a status change is not allowed by
// the commission lifecycle, including the case where the row is no longer
// pending by the time the update runs.
var ErrInvalidTransition = errors.New("invalid commission status transition")

type CommissionRepository struct {
	collection *mongo.Collection
}

func NewCommissionRepository(db *mongo.Client) *CommissionRepository {
	return &CommissionRepository{
		collection: config.GetCollection(db, "commissions"),
	}
}

func (r *CommissionRepository) InsertMany(ctx context.Context, rows []models.Commission) error {
	if len(rows) == 0 {
		return nil
	}
	docs := make([]interface{}, len(rows))
	for i := range rows {
		docs[i] = rows[i]
	}
	_, err := r.collection.InsertMany(ctx, docs)
	return err
}

func (r *CommissionRepository) FindPendingByOrder(ctx context.Context, orderID primitive.ObjectID) ([]models.Commission, error) {
	cursor, err := r.collection.Find(ctx, bson.M{
		"orderId": orderID,
		"status":  models.CommissionStatusPending,
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []models.Commission
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Transition moves one ledger row out of pending. The update filters on the
// current pending status, so a row that was already credited or cancelled is
// left untouched and the call fails with ErrInvalidTransition.
func (r *CommissionRepository) Transition(ctx context.Context, id primitive.ObjectID, next models.CommissionStatus) error {
	if !models.CommissionStatusPending.CanTransitionTo(next) {
		return fmt.Errorf("%w: pending -> %s", ErrInvalidTransition, next)
	}

	now := time.Now()
	set := bson.M{"status": next}
	switch next {
	case models.CommissionStatusCredited:
		set["creditedAt"] = now
	case models.CommissionStatusCancelled:
		set["cancelledAt"] = now
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{
		"_id":    id,
		"status": models.CommissionStatusPending,
	}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: row %s is not pending", ErrInvalidTransition, id.Hex())
	}
	return nil
}

// FindByRecipient returns one page of a recipient's ledger history, newest
// first, along with the total row count.
func (r *CommissionRepository) FindByRecipient(ctx context.Context, recipientID primitive.ObjectID, page, limit int) ([]models.Commission, int64, error) {
	skip := (page - 1) * limit

	cursor, err := r.collection.Find(
		ctx,
		bson.M{"recipientId": recipientID},
		options.Find().SetSort(bson.M{"createdAt": -1}).SetSkip(int64(skip)).SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var rows []models.Commission
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, 0, err
	}

	total, err := r.collection.CountDocuments(ctx, bson.M{"recipientId": recipientID})
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
