package main

import (
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"

	"github.com/shopsathi/shopsathi_backend/config"
	"github.com/shopsathi/shopsathi_backend/controllers"
	"github.com/shopsathi/shopsathi_backend/middleware"
	"github.com/shopsathi/shopsathi_backend/repositories"
	"github.com/shopsathi/shopsathi_backend/routes"
	"github.com/shopsathi/shopsathi_backend/services"
)

// CustomValidator is a custom validator for Echo
type CustomValidator struct {
	validator *validator.Validate
}

// Validate validates the request body
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

func main() {
	// Load .env file
	err := godotenv.Load()
	if err != nil {
		log.Println("Warning: .env file not found")
	}

	// Connect to Redis (optional, caches referral code lookups)
	redisClient := config.ConnectRedis()

	// Connect to database
	client := config.ConnectDB()

	// Create a new Echo instance
	e := echo.New()

	// Initialize custom validator
	customValidator := &CustomValidator{validator: validator.New()}
	e.Validator = customValidator

	// Initialize rate limiter
	rateLimiter := middleware.NewRateLimiter()

	// Middleware
	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORS())
	e.Use(echoMiddleware.Secure())
	e.Use(rateLimiter.RateLimit())

	e.Match([]string{"GET", "HEAD"}, "/", func(c echo.Context) error {
		return c.JSON(200, map[string]string{
			"status":  "OK",
			"message": "ShopSathi Backend is running",
			"version": "1.0",
		})
	})

	e.Match([]string{"GET", "HEAD"}, "/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{
			"status":   "healthy",
			"database": "connected",
		})
	})

	// Initialize repositories
	userRepo := repositories.NewUserRepository(client, redisClient)
	orderRepo := repositories.NewOrderRepository(client)
	commissionRepo := repositories.NewCommissionRepository(client)
	txnRunner := repositories.NewMongoTxnRunner(client)

	// Initialize the commission engine and its order-lifecycle bridge
	commissionService := services.NewCommissionService(userRepo, orderRepo, commissionRepo, txnRunner)
	orderLifecycle := services.NewOrderLifecycle(userRepo, commissionService)

	// Initialize controllers
	orderController := controllers.NewOrderController(orderRepo, orderLifecycle)

	// Register routes
	routes.RegisterOrderRoutes(e, orderController)
	routes.RegisterReferralRoutes(e, client)

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	e.Logger.Fatal(e.Start(":" + port))
}
