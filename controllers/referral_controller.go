package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/shopsathi/shopsathi_backend/config"
	"github.com/shopsathi/shopsathi_backend/models"
	"github.com/shopsathi/shopsathi_backend/utils"
)

type ReferralController struct {
	db *mongo.Client
}

func NewReferralController(db *mongo.Client) *ReferralController {
	return &ReferralController{db: db}
}

// ApplyReferralCode binds the authenticated user to their upline and assigns
// the user's own referral code. The upline binding is one-time: once
// referredByCode is set it never changes, which keeps the referral graph a
// forest and lets the chain resolver trust it.
func (rc *ReferralController) ApplyReferralCode(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	userID, err := utils.GetUserIDFromToken(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "User ID not found in context",
		})
	}

	var req models.ApplyReferralRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request body",
			Data:    err.Error(),
		})
	}

	usersCollection := config.GetCollection(rc.db, "users")

	var user models.User
	err = usersCollection.FindOne(ctx, bson.M{"_id": userID}).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return c.JSON(http.StatusNotFound, models.Response{
				Status:  http.StatusNotFound,
				Message: "User not found",
			})
		}
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Database error",
			Data:    err.Error(),
		})
	}

	// Joining without a code finalizes the account as a chain root.
	if req.ReferralCode == "" {
		ownCode, err := rc.ensureReferralCode(ctx, usersCollection, &user)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, models.Response{
				Status:  http.StatusInternalServerError,
				Message: "Failed to assign referral code",
			})
		}
		return c.JSON(http.StatusOK, models.Response{
			Status:  http.StatusOK,
			Message: "Referral code assigned successfully",
			Data:    bson.M{"referralCode": ownCode},
		})
	}

	if user.ReferredByCode != "" {
		return c.JSON(http.StatusConflict, models.Response{
			Status:  http.StatusConflict,
			Message: "You have already used a referral code",
		})
	}

	var referrer models.User
	err = usersCollection.FindOne(ctx, bson.M{"referralCode": req.ReferralCode}).Decode(&referrer)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return c.JSON(http.StatusNotFound, models.Response{
				Status:  http.StatusNotFound,
				Message: "Referral code not found",
			})
		}
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Database error",
			Data:    err.Error(),
		})
	}

	if referrer.ID == user.ID {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Cannot use your own referral code",
		})
	}

	// Record the downline on the referrer side.
	_, err = usersCollection.UpdateByID(ctx, referrer.ID, bson.M{
		"$push": bson.M{"referrals": user.ID},
		"$set":  bson.M{"updatedAt": time.Now()},
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to update referrer",
			Data:    err.Error(),
		})
	}

	// Bind the upline; the guard keeps a concurrent apply from overwriting it.
	_, err = usersCollection.UpdateOne(ctx, bson.M{
		"_id":            user.ID,
		"referredByCode": bson.M{"$in": bson.A{nil, ""}},
	}, bson.M{
		"$set": bson.M{
			"referredByCode": req.ReferralCode,
			"updatedAt":      time.Now(),
		},
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to set referral binding",
		})
	}

	ownCode, err := rc.ensureReferralCode(ctx, usersCollection, &user)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to assign referral code",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Referral processed successfully",
		Data: bson.M{
			"referrerId":   referrer.ID,
			"referralCode": ownCode,
		},
	})
}

// GetReferralSummary returns the user's referral code, link and commission
// balances.
func (rc *ReferralController) GetReferralSummary(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	user, err := utils.GetUserFromToken(c, rc.db)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Unauthorized",
		})
	}

	usersCollection := config.GetCollection(rc.db, "users")
	code, err := rc.ensureReferralCode(ctx, usersCollection, user)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to generate referral code",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Referral data fetched successfully",
		Data: models.ReferralSummary{
			ReferralCode:             code,
			ReferralLink:             "https://shopsathi.com/register?ref=" + code,
			ReferralCount:            len(user.Referrals),
			PendingCommission:        user.PendingCommission,
			AvailableCommission:      user.AvailableCommission,
			ReferralCommissionEarned: user.ReferralCommissionEarned,
			TotalEarnings:            user.TotalEarnings,
			TotalSales:               user.TotalSales,
		},
	})
}

// ensureReferralCode assigns the user's unique code if they do not have one
// yet, retrying on the rare generated collision.
func (rc *ReferralController) ensureReferralCode(ctx context.Context, usersCollection *mongo.Collection, user *models.User) (string, error) {
	if user.ReferralCode != "" {
		return user.ReferralCode, nil
	}

	var lastErr error
	for attempt := 0; attempt < 5; attempt++ {
		code, err := utils.GenerateReferralCode()
		if err != nil {
			return "", err
		}

		_, err = usersCollection.UpdateOne(ctx, bson.M{
			"_id":          user.ID,
			"referralCode": bson.M{"$in": bson.A{nil, ""}},
		}, bson.M{
			"$set": bson.M{
				"referralCode": code,
				"updatedAt":    time.Now(),
			},
		})
		if err == nil {
			user.ReferralCode = code
			return code, nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return "", err
		}
		lastErr = err
	}
	return "", lastErr
}
