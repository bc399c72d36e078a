package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"stock-forecast-api/internal/models"
	"stock-forecast-api/internal/montecarlo"
	"stock-forecast-api/internal/services"
	"stock-forecast-api/pkg/yahoo"
)

// writeError maps service errors onto HTTP responses
func writeError(c *fiber.Ctx, err error) error {
	if field, constraint, ok := montecarlo.Details(err); ok {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error:   "Invalid forecast input",
			Message: constraint,
			Field:   field,
			Code:    fiber.StatusBadRequest,
		})
	}

	switch {
	case errors.Is(err, services.ErrEmptySymbol):
		return badRequest(c, "Symbol is required", "", "symbol")
	case errors.Is(err, yahoo.ErrSymbolNotFound):
		return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
			Error:   "Ticker not found",
			Message: err.Error(),
			Code:    fiber.StatusNotFound,
		})
	case errors.Is(err, context.DeadlineExceeded):
		return c.Status(fiber.StatusGatewayTimeout).JSON(models.ErrorResponse{
			Error:   "Forecast timed out",
			Message: err.Error(),
			Code:    fiber.StatusGatewayTimeout,
		})
	}

	return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{
		Error:   "Request failed",
		Message: err.Error(),
		Code:    fiber.StatusInternalServerError,
	})
}

func badRequest(c *fiber.Ctx, msg, detail, field string) error {
	return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
		Error:   msg,
		Message: detail,
		Field:   field,
		Code:    fiber.StatusBadRequest,
	})
}

// CustomErrorHandler handles Fiber errors
func CustomErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}

	return c.Status(code).JSON(models.ErrorResponse{
		Error:   "Request failed",
		Message: err.Error(),
		Code:    code,
	})
}
