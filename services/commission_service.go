// services/commission_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/shopsathi/shopsathi_backend/models"
	"github.com/shopsathi/shopsathi_backend/repositories"
)

// MaxChainDepth caps how far up the referral chain commissions reach.
const MaxChainDepth = 4

var (
	// ErrSellerNotFound means the order's seller id resolves to no user at
	// award-creation time. Nothing is persisted.
	ErrSellerNotFound = errors.New("seller not found")
	// ErrRecipientNotFound means a chain member no longer resolves to a user
	// at credit/cancel time. The affected row is skipped whole: its status
	// stays pending and no balance moves.
	ErrRecipientNotFound = errors.New("commission recipient not found")
)

// awardSpec is one entry of the static distribution table.
type awardSpec struct {
	UplineIndex       int
	BasePercentage    float64
	FirstSaleEligible bool
}

// distributionTable maps a seller at level L to the prefix of length L:
// the direct referrer gets 6%, then 4%, 2% and 1% walking up the chain.
// Only the direct referrer is eligible for the first-sale bonus.
var distributionTable = []awardSpec{
	{UplineIndex: 0, BasePercentage: 6, FirstSaleEligible: true},
	{UplineIndex: 1, BasePercentage: 4},
	{UplineIndex: 2, BasePercentage: 2},
	{UplineIndex: 3, BasePercentage: 1},
}

// firstSaleBonusPercentage is added to the direct referrer's base rate,
// exactly once per seller, on the seller's first qualifying order.
const firstSaleBonusPercentage = 4.0

type UserStore interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindByReferralCode(ctx context.Context, code string) (*models.User, error)
	ApplyBalanceDelta(ctx context.Context, userID primitive.ObjectID, delta repositories.BalanceDelta) error
	IncrementTotalSales(ctx context.Context, userID primitive.ObjectID, amount float64) error
}

type OrderStore interface {
	CountQualifyingSales(ctx context.Context, sellerID, excludeOrderID primitive.ObjectID) (int64, error)
}

type CommissionStore interface {
	InsertMany(ctx context.Context, rows []models.Commission) error
	FindPendingByOrder(ctx context.Context, orderID primitive.ObjectID) ([]models.Commission, error)
	Transition(ctx context.Context, id primitive.ObjectID, next models.CommissionStatus) error
}

// TxnRunner runs fn as one logical transaction.
type TxnRunner interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// CommissionService is the multi-level referral commission engine: it walks
// a seller's upline, prices the awards, writes the pending ledger rows and
// drives them to credited or cancelled as the owning order settles.
type CommissionService struct {
	users       UserStore
	orders      OrderStore
	commissions CommissionStore
	txn         TxnRunner
}

func NewCommissionService(users UserStore, orders OrderStore, commissions CommissionStore, txn TxnRunner) *CommissionService {
	return &CommissionService{
		users:       users,
		orders:      orders,
		commissions: commissions,
		txn:         txn,
	}
}

// AwardResult reports what CreateAwardsForOrder persisted.
type AwardResult struct {
	SellerLevel      int
	FirstSale        bool
	DirectPercentage float64
	Commissions      []models.Commission
}

// TotalAmount is the sum distributed across all created rows.
func (r *AwardResult) TotalAmount() float64 {
	var total float64
	for _, row := range r.Commissions {
		total += row.Amount
	}
	return total
}

// ResolveChain walks the seller's upline by following referredByCode,
// nearest referrer first. The walk stops at a user with no code, at a code
// that resolves to nobody (a dangling code ends the chain, it is not an
// error) or at MaxChainDepth entries. The loop bound also guarantees
// termination if the referral graph is ever corrupted into a cycle.
func (s *CommissionService) ResolveChain(ctx context.Context, seller *models.User) ([]models.User, error) {
	chain := make([]models.User, 0, MaxChainDepth)
	current := seller
	for len(chain) < MaxChainDepth {
		code := current.ReferredByCode
		if code == "" {
			break
		}
		referrer, err := s.users.FindByReferralCode(ctx, code)
		if err != nil {
			if errors.Is(err, repositories.ErrUserNotFound) {
				break
			}
			return nil, fmt.Errorf("resolving referral code %q: %w", code, err)
		}
		chain = append(chain, *referrer)
		current = referrer
	}
	return chain, nil
}

// SellerLevel is the length of the seller's referral chain: 0 means no
// referrer at all, 1 through MaxChainDepth the depth of upline available
// for awards.
func (s *CommissionService) SellerLevel(ctx context.Context, sellerID primitive.ObjectID) (int, error) {
	seller, err := s.users.FindByID(ctx, sellerID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return 0, fmt.Errorf("%w: %s", ErrSellerNotFound, sellerID.Hex())
		}
		return 0, err
	}
	chain, err := s.ResolveChain(ctx, seller)
	if err != nil {
		return 0, err
	}
	return len(chain), nil
}

// isFirstSale reports whether the seller has no other order in a qualifying
// status besides the one being evaluated.
func (s *CommissionService) isFirstSale(ctx context.Context, sellerID, excludeOrderID primitive.ObjectID) (bool, error) {
	count, err := s.orders.CountQualifyingSales(ctx, sellerID, excludeOrderID)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// CreateAwardsForOrder resolves the seller's chain, prices one award per
// upline position and persists the pending ledger rows together with the
// recipients' pendingCommission reservations as a single transaction.
//
// A seller with no upline is not an error: the call succeeds with an empty
// result ("no commission chain"). An unresolvable seller fails with
// ErrSellerNotFound and persists nothing.
func (s *CommissionService) CreateAwardsForOrder(ctx context.Context, order *models.Order) (*AwardResult, error) {
	seller, err := s.users.FindByID(ctx, order.SellerID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSellerNotFound, order.SellerID.Hex())
		}
		return nil, err
	}

	chain, err := s.ResolveChain(ctx, seller)
	if err != nil {
		return nil, err
	}

	level := len(chain)
	result := &AwardResult{SellerLevel: level}
	if level == 0 {
		return result, nil
	}
	if level > MaxChainDepth {
		// Unreachable while ResolveChain caps the walk; kept so a future
		// change to the depth rule cannot distribute past the table.
		return result, nil
	}

	productPrice := order.ProductTotal()

	firstSale, err := s.isFirstSale(ctx, seller.ID, order.ID)
	if err != nil {
		return nil, fmt.Errorf("checking first sale for seller %s: %w", seller.ID.Hex(), err)
	}
	result.FirstSale = firstSale

	now := time.Now()
	rows := make([]models.Commission, 0, level)
	for _, award := range distributionTable[:level] {
		if award.UplineIndex >= len(chain) {
			continue
		}
		recipient := chain[award.UplineIndex]

		percentage := award.BasePercentage
		description := fmt.Sprintf("Level %d referral commission on order %s", award.UplineIndex+1, order.OrderNumber)
		if firstSale && award.FirstSaleEligible {
			percentage += firstSaleBonusPercentage
			description += " (first sale bonus)"
		}
		if award.UplineIndex == 0 {
			result.DirectPercentage = percentage
		}

		rows = append(rows, models.Commission{
			ID:                   primitive.NewObjectID(),
			RecipientID:          recipient.ID,
			SellerID:             seller.ID,
			OrderID:              order.ID,
			Type:                 models.CommissionTypeReferral,
			Level:                level,
			ProductPrice:         productPrice,
			CommissionPercentage: percentage,
			Amount:               productPrice * percentage / 100,
			Status:               models.CommissionStatusPending,
			Description:          description,
			CreatedAt:            now,
		})
	}

	err = s.txn.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.commissions.InsertMany(ctx, rows); err != nil {
			return err
		}
		for _, row := range rows {
			err := s.users.ApplyBalanceDelta(ctx, row.RecipientID, repositories.BalanceDelta{Pending: row.Amount})
			if err != nil {
				return fmt.Errorf("reserving %.2f for recipient %s: %w", row.Amount, row.RecipientID.Hex(), err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reserving commissions for order %s: %w", order.OrderNumber, err)
	}

	result.Commissions = rows
	return result, nil
}

// CreditPendingForOrder moves every pending row of the order to credited:
// pendingCommission comes down, availableCommission and the earned totals go
// up, all in one transaction per row so a failure leaves that row fully
// untouched. Rows are independent; one bad recipient does not block the
// rest. With no pending rows the call is a no-op, which makes it idempotent
// under repeated delivery events.
func (s *CommissionService) CreditPendingForOrder(ctx context.Context, orderID primitive.ObjectID) (int, error) {
	rows, err := s.commissions.FindPendingByOrder(ctx, orderID)
	if err != nil {
		return 0, err
	}

	credited := 0
	var errs []error
	for _, row := range rows {
		delta := repositories.BalanceDelta{
			Pending:       -row.Amount,
			Available:     row.Amount,
			TotalEarnings: row.Amount,
		}
		if row.Type == models.CommissionTypeDirect {
			delta.DirectEarned = row.Amount
		} else {
			delta.ReferralEarned = row.Amount
		}

		err := s.transitionRow(ctx, row, models.CommissionStatusCredited, delta)
		if err != nil {
			log.Printf("commission ledger inconsistency: crediting row %s for order %s: %v", row.ID.Hex(), orderID.Hex(), err)
			errs = append(errs, err)
			continue
		}
		credited++
	}
	return credited, errors.Join(errs...)
}

// CancelPendingForOrder moves every pending row of the order to cancelled
// and releases the recipients' reservations. availableCommission and the
// earned totals are untouched: a cancelled commission was never credited.
// Idempotent for the same reason CreditPendingForOrder is.
func (s *CommissionService) CancelPendingForOrder(ctx context.Context, orderID primitive.ObjectID) (int, error) {
	rows, err := s.commissions.FindPendingByOrder(ctx, orderID)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	var errs []error
	for _, row := range rows {
		err := s.transitionRow(ctx, row, models.CommissionStatusCancelled, repositories.BalanceDelta{Pending: -row.Amount})
		if err != nil {
			log.Printf("commission ledger inconsistency: cancelling row %s for order %s: %v", row.ID.Hex(), orderID.Hex(), err)
			errs = append(errs, err)
			continue
		}
		cancelled++
	}
	return cancelled, errors.Join(errs...)
}

// transitionRow applies the balance adjustment and the status flip as one
// transaction. The balance goes first: if the recipient has vanished the
// row stays pending instead of advancing with no money moved.
func (s *CommissionService) transitionRow(ctx context.Context, row models.Commission, next models.CommissionStatus, delta repositories.BalanceDelta) error {
	return s.txn.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.users.ApplyBalanceDelta(ctx, row.RecipientID, delta); err != nil {
			if errors.Is(err, repositories.ErrUserNotFound) {
				return fmt.Errorf("%w: %s", ErrRecipientNotFound, row.RecipientID.Hex())
			}
			return err
		}
		return s.commissions.Transition(ctx, row.ID, next)
	})
}
