// models/user.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User model
type User struct {
	ID             primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	Email          string             `json:"email" bson:"email"`
	FullName       string             `json:"fullName" bson:"fullName"`
	Phone          string             `json:"phone,omitempty" bson:"phone,omitempty"`
	IsActive       bool               `json:"isActive" bson:"isActive"`
	LastActivityAt time.Time          `json:"lastActivityAt" bson:"lastActivityAt"`

	// Referral fields. ReferralCode is assigned once at account finalization
	// and is unique across users. ReferredByCode is the code of the direct
	// upline and never changes after it is set.
	ReferralCode   string               `json:"referralCode,omitempty" bson:"referralCode,omitempty"`
	ReferredByCode string               `json:"referredByCode,omitempty" bson:"referredByCode,omitempty"`
	Referrals      []primitive.ObjectID `json:"referrals,omitempty" bson:"referrals,omitempty"`

	// Commission balances, kept in lockstep with the commission ledger.
	// PendingCommission and AvailableCommission never go below zero.
	PendingCommission        float64 `json:"pendingCommission" bson:"pendingCommission"`
	AvailableCommission      float64 `json:"availableCommission" bson:"availableCommission"`
	DirectCommissionEarned   float64 `json:"directCommissionEarned" bson:"directCommissionEarned"`
	ReferralCommissionEarned float64 `json:"referralCommissionEarned" bson:"referralCommissionEarned"`
	TotalEarnings            float64 `json:"totalEarnings" bson:"totalEarnings"`
	TotalSales               float64 `json:"totalSales" bson:"totalSales"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// ApplyReferralRequest binds an upline's referral code to the current user.
type ApplyReferralRequest struct {
	ReferralCode string `json:"referralCode"`
}

type ReferralSummary struct {
	ReferralCode             string  `json:"referralCode"`
	ReferralLink             string  `json:"referralLink"`
	ReferralCount            int     `json:"referralCount"`
	PendingCommission        float64 `json:"pendingCommission"`
	AvailableCommission      float64 `json:"availableCommission"`
	ReferralCommissionEarned float64 `json:"referralCommissionEarned"`
	TotalEarnings            float64 `json:"totalEarnings"`
	TotalSales               float64 `json:"totalSales"`
}

// Response model
type Response struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
