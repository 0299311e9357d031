package handler

import (
	"time"

	"github.com/labstack/echo/v4"

	"tradepost/internal/domain/entity"
	"tradepost/internal/usecase"
	"tradepost/pkg/errors"
	"tradepost/pkg/response"
	"tradepost/pkg/utils"
)

type ListingHandler struct {
	marketplace *usecase.Marketplace
}

func NewListingHandler(marketplace *usecase.Marketplace) *ListingHandler {
	return &ListingHandler{
		marketplace: marketplace,
	}
}

type CreateListingRequest struct {
	ItemID   string `json:"item_id" validate:"required"`
	Kind     string `json:"kind" validate:"required,oneof=fixed_price auction"`
	Currency string `json:"currency,omitempty"`

	Price *float64 `json:"price,omitempty"`

	MinimumBid          *float64 `json:"minimum_bid,omitempty"`
	ReservePrice        *float64 `json:"reserve_price,omitempty"`
	BuyNowPrice         *float64 `json:"buy_now_price,omitempty"`
	MinimumIncrement    float64  `json:"minimum_increment,omitempty"`
	DurationHours       int      `json:"duration_hours,omitempty"`
	AutoExtend          bool     `json:"auto_extend,omitempty"`
	ExtensionWindowSecs int      `json:"extension_window_seconds,omitempty"`
}

func (h *ListingHandler) CreateListing(c echo.Context) error {
	var req CreateListingRequest
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

	input := usecase.CreateListingInput{
		ItemID:           req.ItemID,
		Kind:             entity.ListingKind(req.Kind),
		Currency:         req.Currency,
		Price:            req.Price,
		MinimumBid:       req.MinimumBid,
		ReservePrice:     req.ReservePrice,
		BuyNowPrice:      req.BuyNowPrice,
		MinimumIncrement: req.MinimumIncrement,
		Duration:         time.Duration(req.DurationHours) * time.Hour,
		AutoExtend:       req.AutoExtend,
		ExtensionWindow:  time.Duration(req.ExtensionWindowSecs) * time.Second,
	}

	listing, err := h.marketplace.CreateListing(c.Request().Context(), sellerID, input)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, listing)
}

func (h *ListingHandler) GetListing(c echo.Context) error {
	listing, err := h.marketplace.GetListing(c.Request().Context(), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, listing)
}

func (h *ListingHandler) ListListings(c echo.Context) error {
	params := utils.GetPaginationParams(c)

	listings, total, err := h.marketplace.Listings.ListListings(
		c.Request().Context(),
		c.QueryParam("kind"),
		c.QueryParam("status"),
		c.QueryParam("seller_id"),
		params.PageSize,
		params.Offset,
	)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Paginated(c, listings, total, params.Page, params.PageSize)
}

func (h *ListingHandler) CancelListing(c echo.Context) error {
	requesterID, ok := c.Get("uid").(string)
	if !ok {
		return response.Error(c, errors.Unauthorized("User not authenticated", nil))
	}

	listing, err := h.marketplace.CancelListing(c.Request().Context(), c.Param("id"), requesterID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, listing)
}

func (h *ListingHandler) ListBids(c echo.Context) error {
	bids, err := h.marketplace.Listings.ListBids(c.Request().Context(), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, bids)
}

func (h *ListingHandler) GetSettlement(c echo.Context) error {
	record, err := h.marketplace.Listings.GetSettlement(c.Request().Context(), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, record)
}
