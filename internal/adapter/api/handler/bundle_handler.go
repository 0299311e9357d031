package handler

import (
	"github.com/labstack/echo/v4"

	"tradepost/internal/usecase"
	"tradepost/pkg/errors"
	"tradepost/pkg/response"
)

type BundleHandler struct {
	marketplace *usecase.Marketplace
}

func NewBundleHandler(marketplace *usecase.Marketplace) *BundleHandler {
	return &BundleHandler{
		marketplace: marketplace,
	}
}

type CreateBundleRequest struct {
	ItemIDs     []string `json:"item_ids" validate:"required,min=2"`
	Currency    string   `json:"currency,omitempty"`
	TotalPrice  float64  `json:"total_price" validate:"required,gt=0"`
	DiscountPct float64  `json:"discount_pct,omitempty"`
}

func (h *BundleHandler) CreateBundle(c echo.Context) error {
	var req CreateBundleRequest
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

	input := usecase.CreateBundleInput{
		ItemIDs:     req.ItemIDs,
		Currency:    req.Currency,
		TotalPrice:  req.TotalPrice,
		DiscountPct: req.DiscountPct,
	}

	listing, err := h.marketplace.CreateBundle(c.Request().Context(), sellerID, input)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, listing)
}
