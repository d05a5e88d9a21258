// Package handler exposes the delivery surface over HTTP/JSON.
package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chaintrack/tracking-service/internal/apperr"
	"github.com/chaintrack/tracking-service/internal/model"
	"github.com/chaintrack/tracking-service/internal/service"
)

type Handler struct {
	service *service.DeliveryService
	logger  *zap.Logger
}

func New(svc *service.DeliveryService, logger *zap.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

// Register wires the routes. Mutations sit behind the auth middleware;
// lookups are public, matching the original tracking page.
func (h *Handler) Register(r *gin.Engine, auth gin.HandlerFunc) {
	api := r.Group("/api")
	{
		api.GET("/deliveries", h.GetRecent)
		api.GET("/deliveries/:id", h.GetByID)
		api.GET("/track/:trackingNumber", h.TrackByNumber)
		api.GET("/transactions", h.ListTransactions)

		authed := api.Group("", auth)
		{
			authed.POST("/deliveries", h.CreateDelivery)
			authed.PATCH("/deliveries/:id/status", h.SetStatus)
			authed.POST("/deliveries/:id/locations", h.AddLocation)
		}
	}
	r.GET("/health", h.Health)
}

func (h *Handler) CreateDelivery(c *gin.Context) {
	var req model.CreateDeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	delivery, err := h.service.CreateDelivery(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"delivery": delivery, "transaction_hash": delivery.TransactionHash})
}

func (h *Handler) SetStatus(c *gin.Context) {
	var req model.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	status, ok := model.ParseStatus(req.Status)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status: " + req.Status})
		return
	}

	if err := h.service.SetStatus(c.Request.Context(), c.Param("id"), status); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) AddLocation(c *gin.Context) {
	var req model.AddLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	if err := h.service.AddLocation(c.Request.Context(), c.Param("id"), &req); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) TrackByNumber(c *gin.Context) {
	delivery, err := h.service.TrackByNumber(c.Request.Context(), c.Param("trackingNumber"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"delivery": delivery})
}

func (h *Handler) GetByID(c *gin.Context) {
	delivery, err := h.service.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"delivery": delivery})
}

func (h *Handler) GetRecent(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	deliveries, err := h.service.GetRecent(c.Request.Context(), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deliveries": deliveries})
}

func (h *Handler) ListTransactions(c *gin.Context) {
	filter := model.TransactionFilter{
		Type:   c.Query("type"),
		Status: c.Query("status"),
		Search: c.Query("search"),
	}
	transactions, err := h.service.ListTransactions(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": transactions})
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case apperr.IsCode(err, apperr.CodeValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": apperr.Message(err)})
	case apperr.IsCode(err, apperr.CodeUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": apperr.Message(err)})
	case apperr.IsCode(err, apperr.CodeNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": apperr.Message(err)})
	default:
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": apperr.Message(err)})
	}
}
