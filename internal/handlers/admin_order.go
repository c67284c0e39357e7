package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// AdminGetOrder is the read-only view the admin order workflow starts from.
func AdminGetOrder(svc OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /admin/api/orders/:orderNumber"
		defer handlePanic(c, route)

		order, ok := lookupOrder(c, svc, route)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"order":       order,
			"transitions": order.Status.NextStatuses(),
		})
	}
}
