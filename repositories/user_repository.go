package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/shopsathi/shopsathi_backend/config"
	"github.com/shopsathi/shopsathi_backend/models"
)

// ErrUserNotFound is returned when a lookup or balance update matches no user.
var ErrUserNotFound = errors.New("user not found")

// BalanceDelta is a set of signed adjustments applied to one user's
// commission balances in a single atomic update. Pending and Available are
// clamped so they never drop below zero.
type BalanceDelta struct {
	Pending        float64
	Available      float64
	DirectEarned   float64
	ReferralEarned float64
	TotalEarnings  float64
}

const referralCodeCacheTTL = 10 * time.Minute

type UserRepository struct {
	collection *mongo.Collection
	cache      *redis.Client
}

// NewUserRepository wraps the users collection. cache may be nil, in which
// case referral-code lookups always hit MongoDB.
func NewUserRepository(db *mongo.Client, cache *redis.Client) *UserRepository {
	return &UserRepository{
		collection: config.GetCollection(db, "users"),
		cache:      cache,
	}
}

func (r *UserRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var user models.User
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindByReferralCode resolves a referral code to its owner. Lookups are
// cached in Redis: a user's referredByCode is set in the same operation that
// assigns their own code, so a cached document can never carry a stale
// upline pointer. The short TTL covers everything else.
func (r *UserRepository) FindByReferralCode(ctx context.Context, code string) (*models.User, error) {
	cacheKey := "referral:code:" + code

	if r.cache != nil {
		if cached, err := r.cache.Get(ctx, cacheKey).Result(); err == nil {
			var user models.User
			if err := json.Unmarshal([]byte(cached), &user); err == nil {
				return &user, nil
			}
		}
	}

	var user models.User
	err := r.collection.FindOne(ctx, bson.M{"referralCode": code}).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if r.cache != nil {
		if data, err := json.Marshal(user); err == nil {
			r.cache.Set(ctx, cacheKey, data, referralCodeCacheTTL)
		}
	}

	return &user, nil
}

// ApplyBalanceDelta adjusts one user's balances as a single atomic update.
// The pipeline form lets pendingCommission and availableCommission clamp at
// zero server-side, so concurrent orders touching the same recipient never
// race a read-modify-write.
func (r *UserRepository) ApplyBalanceDelta(ctx context.Context, userID primitive.ObjectID, delta BalanceDelta) error {
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"pendingCommission":        clampedAdd("$pendingCommission", delta.Pending),
			"availableCommission":      clampedAdd("$availableCommission", delta.Available),
			"directCommissionEarned":   plainAdd("$directCommissionEarned", delta.DirectEarned),
			"referralCommissionEarned": plainAdd("$referralCommissionEarned", delta.ReferralEarned),
			"totalEarnings":            plainAdd("$totalEarnings", delta.TotalEarnings),
			"updatedAt":                "$$NOW",
		}}},
	}

	result, err := r.collection.UpdateByID(ctx, userID, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

// IncrementTotalSales adds the product total of a new order to the seller's
// lifetime sales.
func (r *UserRepository) IncrementTotalSales(ctx context.Context, userID primitive.ObjectID, amount float64) error {
	result, err := r.collection.UpdateByID(ctx, userID, bson.M{
		"$inc": bson.M{"totalSales": amount},
		"$set": bson.M{"updatedAt": time.Now()},
	})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

func clampedAdd(field string, delta float64) bson.M {
	return bson.M{"$max": bson.A{0, bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{field, 0}}, delta}}}}
}

func plainAdd(field string, delta float64) bson.M {
	return bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{field, 0}}, delta}}
}
