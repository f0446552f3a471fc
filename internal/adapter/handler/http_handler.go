package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/mall-order/internal/core/domain"
	"github.com/rl1809/mall-order/internal/core/service"
	"github.com/rl1809/mall-order/internal/logger"
)

// OrderHandler exposes the submit/poll API.
type OrderHandler struct {
	orders *service.SubmitService
	logger *zap.Logger
}

func NewOrderHandler(orders *service.SubmitService, log *zap.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, logger: log}
}

// NewRouter wires the HTTP surface.
func NewRouter(h *OrderHandler, log *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), logger.GinMiddleware(log))

	router.GET("/health", h.Health)
	v1 := router.Group("/api/v1")
	{
		v1.POST("/orders", h.Submit)
		v1.GET("/orders/:trade_no", h.Status)
	}
	return router
}

type submitItemInput struct {
	SkuID    string `json:"sku_id" binding:"required"`
	Quantity int    `json:"quantity" binding:"required,gt=0"`
}

type addressInput struct {
	Name     string `json:"name" binding:"required"`
	Phone    string `json:"phone" binding:"required"`
	Province string `json:"province"`
	City     string `json:"city"`
	Detail   string `json:"detail" binding:"required"`
}

type submitOrderRequest struct {
	MemberID      string            `json:"member_id" binding:"required"`
	OrderType     string            `json:"order_type" binding:"required,oneof=normal seckill group_buy"`
	Items         []submitItemInput `json:"items" binding:"required,min=1,dive"`
	AddressID     string            `json:"address_id"`
	Address       *addressInput     `json:"address"`
	CouponID      string            `json:"coupon_id"`
	ActivityID    string            `json:"activity_id"`
	ExpectedTotal string            `json:"expected_total"`
}

type submitOrderResponse struct {
	TradeNo string `json:"trade_no"`
	Status  string `json:"status"`
}

type submissionStatusResponse struct {
	TradeNo string `json:"trade_no"`
	Status  string `json:"status"`
	OrderID string `json:"order_id,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// Submit accepts an order submission and returns the trade number to poll.
// A success here means the reservation was accepted, not that the order is
// durable yet.
func (h *OrderHandler) Submit(c *gin.Context) {
	var req submitOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Message: err.Error()})
		return
	}

	submitReq := service.SubmitRequest{
		MemberID:   req.MemberID,
		Type:       domain.OrderType(req.OrderType),
		AddressID:  req.AddressID,
		CouponID:   req.CouponID,
		ActivityID: req.ActivityID,
	}
	for _, item := range req.Items {
		submitReq.Items = append(submitReq.Items, service.SubmitItem{
			SkuID:    item.SkuID,
			Quantity: item.Quantity,
		})
	}
	if req.Address != nil {
		submitReq.Address = &domain.Address{
			MemberID: req.MemberID,
			Name:     req.Address.Name,
			Phone:    req.Address.Phone,
			Province: req.Address.Province,
			City:     req.Address.City,
			Detail:   req.Address.Detail,
		}
	}
	if req.ExpectedTotal != "" {
		expected, err := decimal.NewFromString(req.ExpectedTotal)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Message: "invalid expected_total"})
			return
		}
		submitReq.ExpectedTotal = &expected
	}

	result, err := h.orders.Submit(c.Request.Context(), submitReq)
	if err != nil {
		status, message := mapSubmitError(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("submit failed", zap.Error(err))
		}
		c.JSON(status, errorResponse{Message: message})
		return
	}

	c.JSON(http.StatusAccepted, submitOrderResponse{
		TradeNo: result.TradeNo,
		Status:  string(result.State),
	})
}

// Status reports the submission's lifecycle state; safe to poll repeatedly.
func (h *OrderHandler) Status(c *gin.Context) {
	tradeNo := c.Param("trade_no")

	sub, err := h.orders.Status(c.Request.Context(), tradeNo)
	if err != nil {
		if errors.Is(err, domain.ErrSubmissionNotFound) {
			c.JSON(http.StatusNotFound, errorResponse{Message: "submission not found"})
			return
		}
		h.logger.Error("status lookup failed", zap.String("trade_no", tradeNo), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Message: "internal error"})
		return
	}

	c.JSON(http.StatusOK, submissionStatusResponse{
		TradeNo: sub.TradeNo,
		Status:  string(sub.State),
		OrderID: sub.OrderID,
		Reason:  sub.Reason,
	})
}

func (h *OrderHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func mapSubmitError(err error) (int, string) {
	switch {
	case domain.IsInsufficientStock(err):
		return http.StatusGone, "sold out"
	case errors.Is(err, domain.ErrPurchaseCapExceeded):
		return http.StatusForbidden, "purchase cap exceeded"
	case errors.Is(err, domain.ErrPriceMismatch):
		return http.StatusConflict, "price changed, refresh and retry"
	case errors.Is(err, domain.ErrSessionClosed):
		return http.StatusBadRequest, "activity is not open"
	case errors.Is(err, domain.ErrCouponNotAllowed),
		errors.Is(err, domain.ErrCouponNotUsable):
		return http.StatusBadRequest, "coupon cannot be used"
	case errors.Is(err, domain.ErrUnsupportedOrderType),
		errors.Is(err, domain.ErrNoItems),
		errors.Is(err, domain.ErrSkuNotFound),
		errors.Is(err, domain.ErrActivityNotFound),
		errors.Is(err, domain.ErrAddressNotFound):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
