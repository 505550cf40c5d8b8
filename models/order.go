// models/order.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OrderStatus is the externally-driven lifecycle of an order.
// Allowed transitions: processing -> shipped -> delivered, and any
// non-terminal status -> cancelled. Delivered and cancelled are terminal.
type OrderStatus string

const (
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// IsValid reports whether s is a known order status.
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether s admits no further transitions.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CanTransitionTo reports whether the order state machine allows s -> next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch next {
	case OrderStatusShipped:
		return s == OrderStatusProcessing
	case OrderStatusDelivered:
		return s == OrderStatusProcessing || s == OrderStatusShipped
	case OrderStatusCancelled:
		return true
	}
	return false
}

// OrderItem is one product line on an order. Price is the unit product
// price only, excluding shipping, tax and platform fees.
type OrderItem struct {
	ProductID primitive.ObjectID `json:"productId" bson:"productId"`
	Name      string             `json:"name" bson:"name"`
	Price     float64            `json:"price" bson:"price"`
	Quantity  int                `json:"quantity" bson:"quantity"`
}

// Order model
type Order struct {
	ID          primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	OrderNumber string             `json:"orderNumber" bson:"orderNumber"`
	SellerID    primitive.ObjectID `json:"sellerId,omitempty" bson:"sellerId,omitempty"`
	Items       []OrderItem        `json:"items" bson:"items"`
	OrderStatus OrderStatus        `json:"orderStatus" bson:"orderStatus"`
	CreatedAt   time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// ProductTotal is the commissionable amount of the order: the sum of
// price x quantity across line items.
func (o *Order) ProductTotal() float64 {
	var total float64
	for _, item := range o.Items {
		total += item.Price * float64(item.Quantity)
	}
	return total
}

// CreateOrderRequest is the payload for placing a new order.
type CreateOrderRequest struct {
	Items []CreateOrderItem `json:"items" validate:"required,min=1,dive"`
}

type CreateOrderItem struct {
	ProductID string  `json:"productId" validate:"required"`
	Name      string  `json:"name" validate:"required"`
	Price     float64 `json:"price" validate:"required,gt=0"`
	Quantity  int     `json:"quantity" validate:"required,gt=0"`
}

// UpdateOrderStatusRequest is the payload for an order status change.
type UpdateOrderStatusRequest struct {
	Status OrderStatus `json:"status" validate:"required"`
}
