package handler

import (
	"github.com/labstack/echo/v4"

	"tradepost/internal/usecase"
	"tradepost/pkg/errors"
	"tradepost/pkg/response"
)

type RentalHandler struct {
	marketplace *usecase.Marketplace
}

func NewRentalHandler(marketplace *usecase.Marketplace) *RentalHandler {
	return &RentalHandler{
		marketplace: marketplace,
	}
}

type CreateRentalRequest struct {
	ItemID        string  `json:"item_id" validate:"required"`
	Currency      string  `json:"currency,omitempty"`
	RatePerDay    float64 `json:"rate_per_day" validate:"required,gt=0"`
	MinPeriodDays int     `json:"min_period_days" validate:"required,gt=0"`
	MaxPeriodDays int     `json:"max_period_days" validate:"required,gt=0"`
}

func (h *RentalHandler) CreateRental(c echo.Context) error {
	var req CreateRentalRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, errors.BadRequest("Validation failed", err))
	}

	sellerID, ok := c.Get("uid").(string)
	if !ok {
		return response.Error(c, errors.Unauthorized("User not authenticated", nil))
	}

	input := usecase.CreateRentalInput{
		ItemID:        req.ItemID,
		Currency:      req.Currency,
		RatePerDay:    req.RatePerDay,
		MinPeriodDays: req.MinPeriodDays,
		MaxPeriodDays: req.MaxPeriodDays,
	}

	listing, err := h.marketplace.CreateRental(c.Request().Context(), sellerID, input)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, listing)
}

type AcceptRentalRequest struct {
	PeriodDays  int  `json:"period_days" validate:"required,gt=0"`
	AutoRenewal bool `json:"auto_renewal,omitempty"`
}

func (h *RentalHandler) AcceptRental(c echo.Context) error {
	var req AcceptRentalRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, errors.BadRequest("Validation failed", err))
	}

	renterID, ok := c.Get("uid").(string)
	if !ok {
		return response.Error(c, errors.Unauthorized("User not authenticated", nil))
	}

	contract, err := h.marketplace.AcceptRental(c.Request().Context(), renterID, c.Param("id"), req.PeriodDays, req.AutoRenewal)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, contract)
}

func (h *RentalHandler) EndRental(c echo.Context) error {
	actorID, ok := c.Get("uid").(string)
	if !ok {
		return response.Error(c, errors.Unauthorized("User not authenticated", nil))
	}

	contract, err := h.marketplace.EndRental(c.Request().Context(), actorID, c.Param("id"), c.Param("contractId"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, contract)
}
