package orders

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

const defaultPaymentMethod = "cash"

// MaxLineQuantity bounds the units of one product in a single order, after
// duplicate lines are merged.
const MaxLineQuantity = 10000

type OrderLine struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0,lte=10000"`
}

// CreateOrderRequest is the checkout payload. Prices and totals are never
// part of it; they are derived from the catalog inside the transaction.
type CreateOrderRequest struct {
	Name          string      `json:"name" validate:"required,max=120"`
	Email         string      `json:"email" validate:"required,email"`
	Phone         string      `json:"phone" validate:"required,min=7,max=20"`
	Address       string      `json:"address" validate:"required,max=500"`
	PostalCode    string      `json:"postalCode" validate:"required,max=16"`
	Notes         string      `json:"notes" validate:"max=500"`
	PaymentMethod string      `json:"paymentMethod" validate:"omitempty,oneof=cash card transfer"`
	Items         []OrderLine `json:"items" validate:"required,min=1,dive"`
}

// Validator performs structural validation of checkout requests. It never
// looks at stock.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{validate: v}
}

// Validate normalizes req in place and returns a *ValidationError listing
// every offending field.
func (v *Validator) Validate(userID string, req *CreateOrderRequest) error {
	normalizeRequest(req)

	var fields []FieldError
	if strings.TrimSpace(userID) == "" {
		fields = append(fields, FieldError{Field: "userId", Message: "is required"})
	}

	if err := v.validate.Struct(req); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return err
		}
		for _, fieldError := range validationErrors {
			fields = append(fields, FieldError{
				Field:   fieldPath(fieldError.Namespace()),
				Message: fieldMessage(fieldError),
			})
		}
	}

	fields = append(fields, mergedQuantityErrors(req.Items)...)

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// mergedQuantityErrors reports products whose lines add up to more than
// MaxLineQuantity. Lines already rejected on their own are skipped, so the
// running sum stays far from overflow.
func mergedQuantityErrors(items []OrderLine) []FieldError {
	totals := make(map[string]int, len(items))
	reported := make(map[string]bool)
	var fields []FieldError
	for _, item := range items {
		if item.ProductID == "" || item.Quantity <= 0 || item.Quantity > MaxLineQuantity {
			continue
		}
		if reported[item.ProductID] {
			continue
		}
		totals[item.ProductID] += item.Quantity
		if totals[item.ProductID] > MaxLineQuantity {
			reported[item.ProductID] = true
			fields = append(fields, FieldError{
				Field:   "items",
				Message: fmt.Sprintf("total quantity of product %s must be at most %d", item.ProductID, MaxLineQuantity),
			})
		}
	}
	return fields
}

func normalizeRequest(req *CreateOrderRequest) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Phone = strings.TrimSpace(req.Phone)
	req.Address = strings.TrimSpace(req.Address)
	req.PostalCode = strings.TrimSpace(req.PostalCode)
	req.Notes = strings.TrimSpace(req.Notes)
	req.PaymentMethod = strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if req.PaymentMethod == "" {
		req.PaymentMethod = defaultPaymentMethod
	}
	for i := range req.Items {
		req.Items[i].ProductID = strings.TrimSpace(req.Items[i].ProductID)
	}
}

// fieldPath drops the root struct name: "CreateOrderRequest.items[0].quantity"
// becomes "items[0].quantity".
func fieldPath(namespace string) string {
	if idx := strings.Index(namespace, "."); idx >= 0 {
		return namespace[idx+1:]
	}
	return namespace
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at least %s item(s)", fe.Param())
		}
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	default:
		return "is invalid"
	}
}
