package routes

import (
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/shopsathi/shopsathi_backend/controllers"
	"github.com/shopsathi/shopsathi_backend/middleware"
)

// RegisterReferralRoutes sets up referral binding and commission history
// endpoints.
func RegisterReferralRoutes(e *echo.Echo, db *mongo.Client) {
	referralController := controllers.NewReferralController(db)
	commissionController := controllers.NewCommissionController(db)

	r := e.Group("/api")
	r.Use(middleware.JWTMiddleware())

	r.POST("/referral/apply", referralController.ApplyReferralCode)
	r.GET("/referral/summary", referralController.GetReferralSummary)
	r.GET("/commissions", commissionController.GetMyCommissions)
}
