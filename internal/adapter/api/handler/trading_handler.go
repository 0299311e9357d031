package handler

import (
	"github.com/labstack/echo/v4"

	"tradepost/internal/usecase"
	"tradepost/pkg/errors"
	"tradepost/pkg/response"
)

// TradingHandler covers the money-moving operations on a listing: bids,
// immediate purchase and bundle purchase.
type TradingHandler struct {
	marketplace *usecase.Marketplace
}

func NewTradingHandler(marketplace *usecase.Marketplace) *TradingHandler {
	return &TradingHandler{
		marketplace: marketplace,
	}
}

type PlaceBidRequest struct {
	// Zero is a valid bid on a zero-minimum auction; the engine's minimum
	// check decides acceptance, not the transport.
	Amount *float64 `json:"amount" validate:"required,gte=0"`
}

func (h *TradingHandler) PlaceBid(c echo.Context) error {
	var req PlaceBidRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, errors.BadRequest("Validation failed", err))
	}

	bidderID, ok := c.Get("uid").(string)
	if !ok {
		return response.Error(c, errors.Unauthorized("User not authenticated", nil))
	}

	bid, err := h.marketplace.PlaceBid(c.Request().Context(), c.Param("id"), bidderID, *req.Amount)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, bid)
}

func (h *TradingHandler) BuyNow(c echo.Context) error {
	buyerID, ok := c.Get("uid").(string)
	if !ok {
		return response.Error(c, errors.Unauthorized("User not authenticated", nil))
	}

	listing, err := h.marketplace.BuyNow(c.Request().Context(), c.Param("id"), buyerID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, listing)
}

func (h *TradingHandler) PurchaseBundle(c echo.Context) error {
	buyerID, ok := c.Get("uid").(string)
	if !ok {
		return response.Error(c, errors.Unauthorized("User not authenticated", nil))
	}

	listing, err := h.marketplace.PurchaseBundle(c.Request().Context(), buyerID, c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, listing)
}
