package order

import "errors"

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrPaymentNotFound   = errors.New("order payment not found")
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrInvalidAmounts    = errors.New("order amounts are inconsistent")
)
