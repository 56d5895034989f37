package api

import (
	"net/http"

	"marketplace/internal/models"
	"marketplace/internal/service"

	"github.com/gin-gonic/gin"
)

type patchItemStatusRequest struct {
	Status models.ItemStatus `json:"status"`
}

type adminItemRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) listVendorItems(c *gin.Context) {
	items, err := h.fulfillment.ListItems(c.Request.Context(), principal(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *Handler) patchItemStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req patchItemStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	item, err := h.fulfillment.PatchItemStatus(c.Request.Context(), principal(c), id, req.Status)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":    "order item status updated successfully",
		"new_status": item.Status,
	})
}

func (h *Handler) vendorDashboard(c *gin.Context) {
	dashboard, err := h.fulfillment.Dashboard(c.Request.Context(), principal(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dashboard)
}

func (h *Handler) adminUpdateOrder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.AdminOrderUpdate
	if !bindJSON(c, &req) {
		return
	}

	order, err := h.orders.AdminUpdateOrder(c.Request.Context(), principal(c), id, &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// adminUpdateItem changes an item's quantity and returns the reconciled order
func (h *Handler) adminUpdateItem(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req adminItemRequest
	if !bindJSON(c, &req) {
		return
	}

	order, err := h.orders.AdminUpdateItemQuantity(c.Request.Context(), principal(c), id, req.Quantity)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) adminDeleteItem(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	order, err := h.orders.AdminDeleteItem(c.Request.Context(), principal(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}
