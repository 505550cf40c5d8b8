package controllers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/shopsathi/shopsathi_backend/models"
	"github.com/shopsathi/shopsathi_backend/repositories"
	"github.com/shopsathi/shopsathi_backend/utils"
)

type CommissionController struct {
	commissions *repositories.CommissionRepository
}

func NewCommissionController(db *mongo.Client) *CommissionController {
	return &CommissionController{
		commissions: repositories.NewCommissionRepository(db),
	}
}

// GetMyCommissions returns the authenticated user's commission ledger
// history, newest first, paginated.
func (cc *CommissionController) GetMyCommissions(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	recipientID, err := utils.GetUserIDFromToken(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "User ID not found in context",
		})
	}

	page := 1
	limit := 20
	if pageStr := c.QueryParam("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}
	if limitStr := c.QueryParam("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	rows, total, err := cc.commissions.FindByRecipient(ctx, recipientID, page, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to fetch commissions",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Commissions fetched successfully",
		Data: map[string]interface{}{
			"commissions": rows,
			"pagination": map[string]interface{}{
				"page":       page,
				"limit":      limit,
				"total":      total,
				"totalPages": (total + int64(limit) - 1) / int64(limit),
			},
		},
	})
}
