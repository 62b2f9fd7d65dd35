package payout

import "errors"

var (
	ErrKYCRequired    = errors.New("kyc verification required for payouts")
	ErrInvalidPin     = errors.New("invalid wallet pin")
	ErrAmountTooSmall = errors.New("amount below minimum transaction amount")
	ErrTransferFailed = errors.New("transfer instruction failed")

	// ErrTransferRejected means the provider answered and refused the instruction,
	// so no money left. Any other Instruct error leaves the outcome unknown.
	ErrTransferRejected = errors.New("transfer rejected by provider")
)
