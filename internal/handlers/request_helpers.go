package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"orderengine/internal/orders"
)

func handlePanic(c *gin.Context, route string) {
	if r := recover(); r != nil {
		log.Printf("[%s] panic recovered: %v", route, r)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func respondWithError(c *gin.Context, status int, route string, message string) {
	log.Printf("[%s] returning error %d: %s", route, status, message)
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

// respondWithOrderError renders an engine error as
// {"error": kind, "message": ..., "details": ...}.
func respondWithOrderError(c *gin.Context, route string, err error) {
	kind := orders.Kind(err)
	status := orders.HTTPStatus(err)
	body := gin.H{"error": kind, "message": err.Error()}

	var (
		validationErr *orders.ValidationError
		notFoundErr   *orders.ProductNotFoundError
		stockErr      *orders.InsufficientStockError
	)
	switch {
	case errors.As(err, &validationErr):
		body["details"] = validationErr.Fields
	case errors.As(err, &notFoundErr):
		body["details"] = gin.H{"productId": notFoundErr.ProductID}
	case errors.As(err, &stockErr):
		body["details"] = stockErr.Items
	case kind == orders.KindGeneration:
		body["message"] = "could not allocate an order number"
	default:
		body["message"] = "internal server error"
	}

	log.Printf("[%s] returning error %d: %v", route, status, err)
	c.AbortWithStatusJSON(status, body)
}
