package controllers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/shopsathi/shopsathi_backend/models"
	"github.com/shopsathi/shopsathi_backend/repositories"
	"github.com/shopsathi/shopsathi_backend/utils"
)

// OrderStore is the slice of order persistence the controller needs.
type OrderStore interface {
	Insert(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error)
	UpdateStatus(ctx context.Context, id primitive.ObjectID, status models.OrderStatus) error
}

// LifecycleHooks is the commission engine's seam into order events.
type LifecycleHooks interface {
	OnOrderCreated(ctx context.Context, order *models.Order)
	OnOrderStatusChanged(ctx context.Context, order *models.Order, previous, next models.OrderStatus) error
}

type OrderController struct {
	orders    OrderStore
	lifecycle LifecycleHooks
}

func NewOrderController(orders OrderStore, lifecycle LifecycleHooks) *OrderController {
	return &OrderController{orders: orders, lifecycle: lifecycle}
}

// CreateOrder persists a new order for the authenticated seller and reserves
// the upline commissions. The order succeeds even when the commission path
// fails; that failure is logged inside the lifecycle hook.
func (oc *OrderController) CreateOrder(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sellerID, err := utils.GetUserIDFromToken(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "User ID not found in context",
		})
	}

	var req models.CreateOrderRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request body",
			Data:    err.Error(),
		})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid order payload",
			Data:    err.Error(),
		})
	}

	items := make([]models.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		productID, err := primitive.ObjectIDFromHex(item.ProductID)
		if err != nil {
			return c.JSON(http.StatusBadRequest, models.Response{
				Status:  http.StatusBadRequest,
				Message: "Invalid product ID format",
			})
		}
		items = append(items, models.OrderItem{
			ProductID: productID,
			Name:      item.Name,
			Price:     item.Price,
			Quantity:  item.Quantity,
		})
	}

	order := &models.Order{
		OrderNumber: uuid.NewString(),
		SellerID:    sellerID,
		Items:       items,
		OrderStatus: models.OrderStatusProcessing,
	}

	if err := oc.orders.Insert(ctx, order); err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to create order",
			Data:    err.Error(),
		})
	}

	oc.lifecycle.OnOrderCreated(ctx, order)

	return c.JSON(http.StatusCreated, models.Response{
		Status:  http.StatusCreated,
		Message: "Order created successfully",
		Data:    order,
	})
}

// GetOrder returns one of the authenticated seller's orders.
func (oc *OrderController) GetOrder(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sellerID, err := utils.GetUserIDFromToken(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "User ID not found in context",
		})
	}

	orderID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid order ID format",
		})
	}

	order, err := oc.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repositories.ErrOrderNotFound) {
			return c.JSON(http.StatusNotFound, models.Response{
				Status:  http.StatusNotFound,
				Message: "Order not found",
			})
		}
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Database error",
			Data:    err.Error(),
		})
	}

	if order.SellerID != sellerID {
		return c.JSON(http.StatusNotFound, models.Response{
			Status:  http.StatusNotFound,
			Message: "Order not found",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Order fetched successfully",
		Data:    order,
	})
}

// UpdateOrderStatus applies an externally-decided status change and lets the
// commission engine react to the edge into delivered or cancelled. A failure
// on the commission side never rolls the status back; it is logged for
// operator attention.
func (oc *OrderController) UpdateOrderStatus(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	orderID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid order ID format",
		})
	}

	var req models.UpdateOrderStatusRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request body",
			Data:    err.Error(),
		})
	}
	if !req.Status.IsValid() {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Unknown order status",
		})
	}

	order, err := oc.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repositories.ErrOrderNotFound) {
			return c.JSON(http.StatusNotFound, models.Response{
				Status:  http.StatusNotFound,
				Message: "Order not found",
			})
		}
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Database error",
			Data:    err.Error(),
		})
	}

	previous := order.OrderStatus
	if previous == req.Status {
		// Re-saving the same status triggers nothing.
		return c.JSON(http.StatusOK, models.Response{
			Status:  http.StatusOK,
			Message: "Order status unchanged",
			Data:    order,
		})
	}
	if !previous.CanTransitionTo(req.Status) {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Order status transition not allowed",
		})
	}

	if err := oc.orders.UpdateStatus(ctx, orderID, req.Status); err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to update order status",
			Data:    err.Error(),
		})
	}
	order.OrderStatus = req.Status

	if err := oc.lifecycle.OnOrderStatusChanged(ctx, order, previous, req.Status); err != nil {
		// The status change stands; the stuck ledger needs an operator.
		log.Printf("commission settlement failed after status update of order %s: %v", order.OrderNumber, err)
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Order status updated successfully",
		Data:    order,
	})
}
