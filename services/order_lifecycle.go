// services/order_lifecycle.go
package services

import (
	"context"
	"fmt"
	"log"

	"github.com/shopsathi/shopsathi_backend/models"
)

// OrderLifecycle is the seam between the order handlers and the commission
// engine. The engine never decides whether an order is delivered or
// cancelled; it only reacts to the transitions reported here.
type OrderLifecycle struct {
	users  UserStore
	engine *CommissionService
}

func NewOrderLifecycle(users UserStore, engine *CommissionService) *OrderLifecycle {
	return &OrderLifecycle{users: users, engine: engine}
}

// OnOrderCreated records the sale and reserves the upline commissions.
// Order creation is the authority: commission failures are logged and
// swallowed so the purchase itself never fails on this path. Anonymous
// orders generate no commissions and no sales total.
func (l *OrderLifecycle) OnOrderCreated(ctx context.Context, order *models.Order) {
	if order.SellerID.IsZero() {
		return
	}

	// The seller's lifetime sales grow regardless of commission outcome.
	if err := l.users.IncrementTotalSales(ctx, order.SellerID, order.ProductTotal()); err != nil {
		log.Printf("failed to record sale total for seller %s on order %s: %v", order.SellerID.Hex(), order.OrderNumber, err)
	}

	result, err := l.engine.CreateAwardsForOrder(ctx, order)
	if err != nil {
		log.Printf("commission reservation failed for order %s: %v", order.OrderNumber, err)
		return
	}

	if result.SellerLevel == 0 {
		log.Printf("order %s: seller %s has no commission chain", order.OrderNumber, order.SellerID.Hex())
		return
	}
	log.Printf("order %s: reserved %d commissions totalling %.2f (seller level %d, direct rate %.0f%%)",
		order.OrderNumber, len(result.Commissions), result.TotalAmount(), result.SellerLevel, result.DirectPercentage)
}

// OnOrderStatusChanged fires the engine exactly on the edge into a terminal
// status: credit on entering delivered, cancel on entering cancelled,
// nothing otherwise. The returned error never undoes the status change; it
// exists so the caller can surface a stuck ledger to an operator.
func (l *OrderLifecycle) OnOrderStatusChanged(ctx context.Context, order *models.Order, previous, next models.OrderStatus) error {
	switch {
	case next == models.OrderStatusDelivered && previous != models.OrderStatusDelivered:
		credited, err := l.engine.CreditPendingForOrder(ctx, order.ID)
		if err != nil {
			return fmt.Errorf("crediting commissions for order %s: %w", order.OrderNumber, err)
		}
		log.Printf("order %s delivered: credited %d commissions", order.OrderNumber, credited)

	case next == models.OrderStatusCancelled && previous != models.OrderStatusCancelled:
		cancelledRows, err := l.engine.CancelPendingForOrder(ctx, order.ID)
		if err != nil {
			return fmt.Errorf("cancelling commissions for order %s: %w", order.OrderNumber, err)
		}
		log.Printf("order %s cancelled: released %d commissions", order.OrderNumber, cancelledRows)
	}
	return nil
}
