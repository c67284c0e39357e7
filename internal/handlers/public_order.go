package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"orderengine/internal/idempotency"
	"orderengine/internal/middleware"
	"orderengine/internal/models"
	"orderengine/internal/orders"
)

// OrderService is the part of the order engine the HTTP layer drives.
type OrderService interface {
	PlaceOrder(ctx context.Context, userID string, req orders.CreateOrderRequest) (*models.Order, error)
	FindOrder(ctx context.Context, orderNumber string) (*models.Order, error)
	ListOrders(ctx context.Context, userID string, page, limit int64) ([]models.Order, int64, error)
}

// IdempotencyStore remembers which order an Idempotency-Key produced.
type IdempotencyStore interface {
	Claim(ctx context.Context, userID, key string) (string, error)
	Complete(ctx context.Context, userID, key, orderNumber string) error
	Release(ctx context.Context, userID, key string) error
}

const (
	idempotencyTimeout = 2 * time.Second
	completeAttempts   = 3
	completeRetryDelay = 50 * time.Millisecond
)

/* =========================
   CREATE ORDER
========================= */

// CreateOrder places an order for the authenticated user. idem may be nil,
// in which case the Idempotency-Key header is ignored.
func CreateOrder(svc OrderService, idem IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /orders"
		defer handlePanic(c, route)

		userID := middleware.UserID(c)
		if userID == "" {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}

		var req orders.CreateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithOrderError(c, route, bindError(err))
			return
		}

		key := idempotency.Key(c.Request)
		if idem != nil && key != "" {
			replayed, ok := claimIdempotencyKey(c, svc, idem, route, userID, key)
			if !ok {
				return
			}
			if replayed != nil {
				c.Header("Idempotent-Replayed", "true")
				c.JSON(http.StatusOK, replayed)
				return
			}
		} else {
			key = ""
		}

		order, err := svc.PlaceOrder(c.Request.Context(), userID, req)
		if err != nil {
			if key != "" {
				releaseIdempotencyKey(c.Request.Context(), idem, userID, key)
			}
			respondWithOrderError(c, route, err)
			return
		}

		if key != "" {
			completeIdempotencyKey(c.Request.Context(), idem, userID, key, order.OrderNumber)
		}

		c.JSON(http.StatusCreated, order)
	}
}

// claimIdempotencyKey returns the earlier order for a replayed key, nil when
// the caller now owns the key, and false when a response was already written.
func claimIdempotencyKey(c *gin.Context, svc OrderService, idem IdempotencyStore, route, userID, key string) (*models.Order, bool) {
	number, err := idem.Claim(c.Request.Context(), userID, key)
	switch {
	case errors.Is(err, idempotency.ErrKeyTooLong):
		respondWithError(c, http.StatusBadRequest, route, err.Error())
		return nil, false
	case errors.Is(err, idempotency.ErrInFlight):
		respondWithError(c, http.StatusConflict, route, err.Error())
		return nil, false
	case err != nil:
		log.Printf("[ORDER] [ERROR] idempotency claim failed user=%s: %v", userID, err)
		respondWithError(c, http.StatusServiceUnavailable, route, "idempotency store unavailable")
		return nil, false
	case number == "":
		return nil, true
	}

	order, err := svc.FindOrder(c.Request.Context(), number)
	if err != nil {
		log.Printf("[ORDER] [ERROR] replay lookup failed number=%s: %v", number, err)
		respondWithError(c, http.StatusInternalServerError, route, "internal server error")
		return nil, false
	}
	log.Printf("[ORDER] [INFO] idempotent replay number=%s user=%s", number, userID)
	return order, true
}

// completeIdempotencyKey records the committed order against key. A key left
// pending would answer 409 to every retry until it expires, so transient
// failures are retried.
func completeIdempotencyKey(ctx context.Context, idem IdempotencyStore, userID, key, orderNumber string) {
	ctx = context.WithoutCancel(ctx)
	delay := completeRetryDelay
	for attempt := 1; attempt <= completeAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, idempotencyTimeout)
		err := idem.Complete(attemptCtx, userID, key, orderNumber)
		cancel()
		if err == nil {
			return
		}
		log.Printf("[ORDER] [ERROR] idempotency complete attempt %d failed number=%s: %v", attempt, orderNumber, err)
		if attempt < completeAttempts {
			time.Sleep(delay)
			delay *= 2
		}
	}
}

// bindError turns a decoding failure into a ValidationError, naming the
// offending field when the decoder reports one.
func bindError(err error) *orders.ValidationError {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return &orders.ValidationError{Fields: []orders.FieldError{{
			Field:   typeErr.Field,
			Message: "must be a " + typeErr.Type.String(),
		}}}
	}
	return &orders.ValidationError{Fields: []orders.FieldError{{
		Field:   "body",
		Message: "must be a valid JSON order request",
	}}}
}

func releaseIdempotencyKey(ctx context.Context, idem IdempotencyStore, userID, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), idempotencyTimeout)
	defer cancel()
	if err := idem.Release(ctx, userID, key); err != nil {
		log.Printf("[ORDER] [ERROR] idempotency release failed user=%s: %v", userID, err)
	}
}

/* =========================
   READ ORDERS
========================= */

// GetMyOrders lists the caller's orders, newest first.
func GetMyOrders(svc OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /orders"
		defer handlePanic(c, route)

		page, limit, err := parsePaginationParams(c.Query("page"), c.Query("limit"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		list, total, err := svc.ListOrders(c.Request.Context(), middleware.UserID(c), page, limit)
		if err != nil {
			log.Printf("[%s] list orders failed: %v", route, err)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"data": list,
			"pagination": gin.H{
				"page":       page,
				"limit":      limit,
				"total":      total,
				"totalPages": totalPages(total, limit),
			},
		})
	}
}

// GetOrder returns one order to its owner or to an admin. Orders of other
// users answer 404 so order numbers cannot be probed.
func GetOrder(svc OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /orders/:orderNumber"
		defer handlePanic(c, route)

		order, ok := lookupOrder(c, svc, route)
		if !ok {
			return
		}
		if order.UserID != middleware.UserID(c) && !middleware.IsAdmin(c) {
			respondWithError(c, http.StatusNotFound, route, "order not found")
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

func lookupOrder(c *gin.Context, svc OrderService, route string) (*models.Order, bool) {
	number := strings.TrimSpace(c.Param("orderNumber"))
	if number == "" {
		respondWithError(c, http.StatusBadRequest, route, "orderNumber is required")
		return nil, false
	}

	order, err := svc.FindOrder(c.Request.Context(), number)
	if errors.Is(err, orders.ErrOrderNotFound) {
		respondWithError(c, http.StatusNotFound, route, "order not found")
		return nil, false
	}
	if err != nil {
		log.Printf("[%s] find order failed: %v", route, err)
		respondWithError(c, http.StatusInternalServerError, route, "db error")
		return nil, false
	}
	return order, true
}
