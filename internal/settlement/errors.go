package settlement

import "errors"

var (
	ErrOrderNotFound        = errors.New("order not found for payment reference")
	ErrPaymentMismatch      = errors.New("payment does not match order")
	ErrOrderNotPayable      = errors.New("order is not awaiting payment")
	ErrConcurrentSettlement = errors.New("settlement already in progress for payment")
	ErrMerchantNotFound     = errors.New("merchant for order not found")

	ErrOrderNotPaid            = errors.New("order has no completed settlement")
	ErrRefundExceedsSettled    = errors.New("refund exceeds settled amount")
	ErrInvalidRefund           = errors.New("invalid refund request")
	ErrSettlementNotRefundable = errors.New("settlement cannot be refunded")
)

// IsPermanent reports whether retrying the same delivery can never succeed.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrPaymentMismatch) ||
		errors.Is(err, ErrOrderNotPayable) ||
		errors.Is(err, ErrMerchantNotFound)
}
