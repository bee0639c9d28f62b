package api

import (
	"errors"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"marketplace-service/internal/auction"
	"marketplace-service/internal/discount"
	"marketplace-service/internal/entity"
	"marketplace-service/internal/pricing"
	"marketplace-service/internal/service"
)

type MarketHandler struct {
	storeService *service.StoreService
}

// NewMarketHandler creates a new instance of MarketHandler.
func NewMarketHandler(storeService *service.StoreService) *MarketHandler {
	return &MarketHandler{storeService: storeService}
}

type JwtCustomClaims struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	UserID int    `json:"user_id"`
	jwt.RegisteredClaims
}

// userID reads the verified user from the jwt middleware. Authentication
// itself happens outside this service.
func userID(c echo.Context) int {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok {
		return 0
	}
	claims, ok := token.Claims.(*JwtCustomClaims)
	if !ok {
		return 0
	}
	return claims.UserID
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, auction.ErrAuctionNotFound),
		errors.Is(err, pricing.ErrProductNotFound),
		errors.Is(err, discount.ErrPolicyNotFound):
		return 404
	case errors.Is(err, auction.ErrBidTooLow),
		errors.Is(err, auction.ErrSelfBid),
		errors.Is(err, discount.ErrBadPercentage),
		errors.Is(err, discount.ErrEmptyScope),
		errors.Is(err, pricing.ErrInsufficientStock):
		return 400
	case errors.Is(err, auction.ErrAuctionClosed),
		errors.Is(err, auction.ErrAuctionExpired),
		errors.Is(err, auction.ErrAuctionExists):
		return 409
	}
	return 500
}

// CreateStore creates a store --> POST /stores
func (h *MarketHandler) CreateStore(c echo.Context) error {
	store := entity.Store{}
	if err := c.Bind(&store); err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid request payload"})
	}
	store.FounderID = userID(c)

	created, err := h.storeService.CreateStore(c.Request().Context(), &store)
	if err != nil {
		return c.JSON(statusFor(err), map[string]string{"error": err.Error()})
	}
	return c.JSON(200, created)
}

// CreateProduct creates a product --> POST /products
func (h *MarketHandler) CreateProduct(c echo.Context) error {
	product := entity.Product{}
	if err := c.Bind(&product); err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid request payload"})
	}

	created, err := h.storeService.CreateProduct(c.Request().Context(), &product)
	if err != nil {
		return c.JSON(statusFor(err), map[string]string{"error": err.Error()})
	}
	return c.JSON(200, created)
}

// GetProduct retrieves a product by ID --> GET /products/:id
func (h *MarketHandler) GetProduct(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid ID"})
	}

	product, err := h.storeService.GetProduct(c.Request().Context(), id)
	if err != nil {
		return c.JSON(statusFor(err), map[string]string{"error": err.Error()})
	}
	return c.JSON(200, product)
}

// UpdateStock sets a product's available quantity --> PUT /products/:id/stock
func (h *MarketHandler) UpdateStock(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid ID"})
	}

	body := struct {
		Stock int `json:"stock"`
	}{}
	if err := c.Bind(&body); err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid request payload"})
	}

	if err := h.storeService.UpdateStock(c.Request().Context(), id, body.Stock); err != nil {
		return c.JSON(statusFor(err), map[string]string{"error": err.Error()})
	}
	return c.JSON(200, map[string]string{"message": "stock updated"})
}

// OpenAuction lists a product for auction --> POST /stores/:storeID/auctions
func (h *MarketHandler) OpenAuction(c echo.Context) error {
	storeID, err := strconv.Atoi(c.Param("storeID"))
	if err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid store ID"})
	}

	body := struct {
		ProductID int `json:"product_id"`
		Days      int `json:"days"`
	}{}
	if err := c.Bind(&body); err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid request payload"})
	}

	a, err := h.storeService.OpenAuction(c.Request().Context(), userID(c), storeID, body.ProductID, body.Days)
	if err != nil {
		return c.JSON(statusFor(err), map[string]string{"error": err.Error()})
	}
	return c.JSON(200, a)
}

// PlaceBid submits a bid --> POST /auctions/:productID/bids
func (h *MarketHandler) PlaceBid(c echo.Context) error {
	productID, err := strconv.Atoi(c.Param("productID"))
	if err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid product ID"})
	}

	body := struct {
		Amount decimal.Decimal `json:"amount"`
	}{}
	if err := c.Bind(&body); err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid request payload"})
	}

	key := c.Request().Header.Get("Idempotent-Key")
	err = h.storeService.PlaceBid(c.Request().Context(), productID, userID(c), body.Amount, key)
	if err != nil {
		return c.JSON(statusFor(err), map[string]string{"error": err.Error()})
	}
	return c.JSON(200, map[string]string{"message": "bid accepted"})
}

// CloseAuction ends an auction --> POST /auctions/:productID/close
func (h *MarketHandler) CloseAuction(c echo.Context) error {
	productID, err := strconv.Atoi(c.Param("productID"))
	if err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid product ID"})
	}

	outcome, err := h.storeService.CloseAuction(c.Request().Context(), productID)
	if err != nil {
		return c.JSON(statusFor(err), map[string]string{"error": err.Error()})
	}
	return c.JSON(200, outcome)
}

// ExtendAuction pushes an auction deadline out --> POST /auctions/:productID/extend
func (h *MarketHandler) ExtendAuction(c echo.Context) error {
	productID, err := strconv.Atoi(c.Param("productID"))
	if err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid product ID"})
	}

	body := struct {
		ExtraDays int `json:"extra_days"`
	}{}
	if err := c.Bind(&body); err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid request payload"})
	}

	endTime, err := h.storeService.ExtendAuction(c.Request().Context(), productID, body.ExtraDays)
	if err != nil {
		return c.JSON(statusFor(err), map[string]string{"error": err.Error()})
	}
	return c.JSON(200, map[string]any{"end_time": endTime})
}

// AddDiscount activates a discount policy --> POST /stores/:storeID/discounts
func (h *MarketHandler) AddDiscount(c echo.Context) error {
	storeID, err := strconv.Atoi(c.Param("storeID"))
	if err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid store ID"})
	}

	req := service.PolicyRequest{}
	if err := c.Bind(&req); err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid request payload"})
	}

	policy, err := h.storeService.AddDiscount(c.Request().Context(), userID(c), storeID, &req)
	if err != nil {
		return c.JSON(statusFor(err), map[string]string{"error": err.Error()})
	}
	return c.JSON(200, map[string]string{"policy_id": policy.ID})
}

// RemoveDiscount removes a discount policy node --> DELETE /stores/:storeID/discounts/:policyID
func (h *MarketHandler) RemoveDiscount(c echo.Context) error {
	storeID, err := strconv.Atoi(c.Param("storeID"))
	if err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid store ID"})
	}

	err = h.storeService.RemoveDiscount(c.Request().Context(), userID(c), storeID, c.Param("policyID"))
	if err != nil {
		return c.JSON(statusFor(err), map[string]string{"error": err.Error()})
	}
	return c.JSON(200, map[string]string{"message": "policy removed"})
}

// PriceCart computes the charge per store for a cart --> POST /cart/price
func (h *MarketHandler) PriceCart(c echo.Context) error {
	cart := entity.Cart{}
	if err := c.Bind(&cart); err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid request payload"})
	}

	amounts, err := h.storeService.PriceCart(c.Request().Context(), userID(c), cart)
	if err != nil {
		return c.JSON(statusFor(err), map[string]string{"error": err.Error()})
	}
	return c.JSON(200, amounts)
}
