package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/shopsathi/shopsathi_backend/controllers"
	"github.com/shopsathi/shopsathi_backend/middleware"
)

// RegisterOrderRoutes sets up the order lifecycle endpoints.
func RegisterOrderRoutes(e *echo.Echo, orderController *controllers.OrderController) {
	r := e.Group("/api")
	r.Use(middleware.JWTMiddleware())

	r.POST("/orders", orderController.CreateOrder)
	r.GET("/orders/:id", orderController.GetOrder)
	r.PUT("/orders/:id/status", orderController.UpdateOrderStatus)
}
