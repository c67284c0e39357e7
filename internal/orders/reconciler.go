package orders

import (
	"context"
	"log"
	"time"
)

const (
	cartClearAttempts = 3
	cartClearDelay    = 100 * time.Millisecond
)

// CartReconciler empties the purchaser's cart after a committed order. It is
// not part of the order transaction: a failed clear leaves a stale cart, which
// the next successful checkout or the user removes.
type CartReconciler struct {
	carts    CartStore
	observer Observer
}

func NewCartReconciler(carts CartStore, observer Observer) *CartReconciler {
	if observer == nil {
		observer = noopObserver{}
	}
	return &CartReconciler{carts: carts, observer: observer}
}

// Reconcile clears the cart, retrying transient failures with a short
// backoff. Calling it on an empty cart is a no-op.
func (r *CartReconciler) Reconcile(ctx context.Context, userID string) error {
	var lastErr error
	delay := cartClearDelay

	for attempt := 1; attempt <= cartClearAttempts; attempt++ {
		removed, err := r.carts.ClearCart(ctx, userID)
		if err == nil {
			log.Printf("[CART] [INFO] cart cleared user=%s removed=%d", userID, removed)
			return nil
		}
		lastErr = err
		log.Printf("[CART] [ERROR] cart clear attempt %d failed user=%s: %v", attempt, userID, err)

		if attempt == cartClearAttempts {
			break
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			r.observer.CartClearFailed()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}

	r.observer.CartClearFailed()
	return lastErr
}
