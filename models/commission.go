// models/commission.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CommissionStatus is the lifecycle of a commission ledger entry. The only
// legal transitions are pending -> credited and pending -> cancelled; both
// end states are terminal.
type CommissionStatus string

const (
	CommissionStatusPending   CommissionStatus = "pending"
	CommissionStatusCredited  CommissionStatus = "credited"
	CommissionStatusCancelled CommissionStatus = "cancelled"
)

// IsValid reports whether s is a known commission status.
func (s CommissionStatus) IsValid() bool {
	switch s {
	case CommissionStatusPending, CommissionStatusCredited, CommissionStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether the ledger allows s -> next.
func (s CommissionStatus) CanTransitionTo(next CommissionStatus) bool {
	if s != CommissionStatusPending {
		return false
	}
	return next == CommissionStatusCredited || next == CommissionStatusCancelled
}

// CommissionType distinguishes an upline referral award from a seller's
// own-sale credit. The referral engine only ever writes referral entries;
// the direct type exists for the seller-credit path.
type CommissionType string

const (
	CommissionTypeDirect   CommissionType = "direct"
	CommissionTypeReferral CommissionType = "referral"
)

// Commission is one ledger entry: a single award owed to one recipient for
// one order. Rows are created once, with status pending, and afterwards only
// their status ever changes. They are never deleted.
type Commission struct {
	ID          primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	RecipientID primitive.ObjectID `json:"recipientId" bson:"recipientId"`
	SellerID    primitive.ObjectID `json:"sellerId" bson:"sellerId"`
	OrderID     primitive.ObjectID `json:"orderId" bson:"orderId"`
	Type        CommissionType     `json:"type" bson:"type"`

	// Level is the seller's chain depth at award time. It is recorded for
	// audit and never recomputed.
	Level int `json:"level" bson:"level"`

	ProductPrice         float64          `json:"productPrice" bson:"productPrice"`
	CommissionPercentage float64          `json:"commissionPercentage" bson:"commissionPercentage"`
	Amount               float64          `json:"amount" bson:"amount"`
	Status               CommissionStatus `json:"status" bson:"status"`
	Description          string           `json:"description,omitempty" bson:"description,omitempty"`

	CreatedAt   time.Time  `json:"createdAt" bson:"createdAt"`
	CreditedAt  *time.Time `json:"creditedAt,omitempty" bson:"creditedAt,omitempty"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty" bson:"cancelledAt,omitempty"`
}
