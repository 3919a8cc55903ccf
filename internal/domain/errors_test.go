package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsValidationError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "invalid customer", err: ErrInvalidCustomer, want: true},
		{name: "invalid product", err: ErrInvalidProduct, want: true},
		{name: "invalid request", err: ErrInvalidRequest, want: true},
		{name: "currency mismatch", err: ErrCurrencyMismatch, want: true},
		{name: "amount overflow", err: ErrAmountOverflow, want: true},
		{name: "wrapped invalid product", err: fmt.Errorf("create order: %w", ErrInvalidProduct), want: true},
		{name: "insufficient stock", err: ErrInsufficientStock, want: false},
		{name: "storage error", err: errors.New("connection refused"), want: false},
		{name: "nil error", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidationError(tt.err); got != tt.want {
				t.Errorf("IsValidationError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsStockError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "insufficient stock", err: ErrInsufficientStock, want: true},
		{name: "joined insufficient stock", err: errors.Join(ErrInsufficientStock, errors.New("product p1")), want: true},
		{name: "invalid product", err: ErrInvalidProduct, want: false},
		{name: "nil error", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsStockError(tt.err); got != tt.want {
				t.Errorf("IsStockError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUserFacingMessages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrInvalidCustomer, "you can't create an order with an invalid customer"},
		{ErrInvalidProduct, "you can't create an order with invalid products"},
		{ErrInsufficientStock, "you can't place an order with a product that exceeds the amount stored"},
	}

	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("message = %q, want %q", got, tt.want)
		}
	}
}
