package orders

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrDuplicateOrderNumber is returned by a store when the order number
	// unique constraint rejects an insert.
	ErrDuplicateOrderNumber = errors.New("order number already exists")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order not found")
	// ErrNegativeAmount rejects negative money inputs to the totals calculator.
	ErrNegativeAmount = errors.New("amount must not be negative")
)

const (
	KindValidation        = "validation"
	KindProductNotFound   = "product_not_found"
	KindInsufficientStock = "insufficient_stock"
	KindGeneration        = "generation"
	KindInternal          = "internal"
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError enumerates every missing or malformed request field.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

type StockShortage struct {
	ProductID string `json:"productId"`
	Available int    `json:"available"`
	Requested int    `json:"requested"`
}

// InsufficientStockError lists every item whose requested quantity exceeded
// the stock observed under lock.
type InsufficientStockError struct {
	Items []StockShortage
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Items))
	for _, s := range e.Items {
		parts = append(parts, fmt.Sprintf("product %s (available %d, requested %d)", s.ProductID, s.Available, s.Requested))
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}

type GenerationError struct {
	Attempts int
	Err      error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("order number generation failed after %d attempts: %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("order number generation failed after %d attempts", e.Attempts)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// InternalError wraps unexpected storage failures.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// Kind returns a stable machine readable name for an engine error.
func Kind(err error) string {
	var (
		validationErr *ValidationError
		notFoundErr   *ProductNotFoundError
		stockErr      *InsufficientStockError
		generationErr *GenerationError
	)
	switch {
	case errors.As(err, &validationErr):
		return KindValidation
	case errors.As(err, &notFoundErr):
		return KindProductNotFound
	case errors.As(err, &stockErr):
		return KindInsufficientStock
	case errors.As(err, &generationErr):
		return KindGeneration
	default:
		return KindInternal
	}
}

func HTTPStatus(err error) int {
	switch Kind(err) {
	case KindValidation, KindProductNotFound:
		return http.StatusBadRequest
	case KindInsufficientStock:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// classify keeps typed engine errors and wraps everything else as internal.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if Kind(err) != KindInternal {
		return err
	}
	var internalErr *InternalError
	if errors.As(err, &internalErr) {
		return err
	}
	return &InternalError{Op: op, Err: err}
}
