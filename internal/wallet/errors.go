package wallet

import "errors"

var (
	ErrWalletNotFound       = errors.New("wallet not found")
	ErrWalletInactive       = errors.New("wallet is not active")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInvalidAmount        = errors.New("amount must be positive")
	ErrReferenceConflict    = errors.New("reference already used by a different ledger entry")
	ErrImmutableTransaction = errors.New("ledger transactions are append-only")
	ErrLedgerInvariant      = errors.New("wallet balance invariant violated")
)
