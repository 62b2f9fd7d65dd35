package payout

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/zjoart/go-paystack-settlement/internal/notify"
	"github.com/zjoart/go-paystack-settlement/internal/user"
	"github.com/zjoart/go-paystack-settlement/internal/wallet"
	"github.com/zjoart/go-paystack-settlement/pkg/id"
	"github.com/zjoart/go-paystack-settlement/pkg/logger"
	"golang.org/x/crypto/bcrypt"
)

type Request struct {
	UserID        uuid.UUID
	Amount        int64
	Pin           string
	BankCode      string
	AccountNumber string
	AccountName   string
	Reason        string
}

type ResultStatus string

const (
	StatusInitiated ResultStatus = "INITIATED"
	// StatusUnconfirmed: the debit stands but the provider's answer was lost.
	StatusUnconfirmed ResultStatus = "UNCONFIRMED"
)

type Result struct {
	Reference   string              `json:"reference"`
	Status      ResultStatus        `json:"status"`
	Transaction *wallet.Transaction `json:"transaction"`
	Receipt     *Receipt            `json:"receipt"`
}

type Service struct {
	Users      user.Repository
	Wallets    wallet.Repository
	Ledger     wallet.Ledger
	Instructor Instructor
	Dispatcher *notify.Dispatcher
	MinAmount  int64
}

// Payout debits the caller's wallet and sends the money to their bank account.
// Only a transfer the provider rejected is credited back, under "<reference>-REV".
// Timeouts and unreadable answers keep the debit and report StatusUnconfirmed.
func (s *Service) Payout(ctx context.Context, req Request) (*Result, error) {
	if req.Amount < s.MinAmount {
		return nil, ErrAmountTooSmall
	}

	verified, err := s.Users.IsKYCVerified(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("kyc lookup: %w", err)
	}
	if !verified {
		return nil, ErrKYCRequired
	}

	w, err := s.Wallets.GetWalletByUserID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if w.PinHash == "" || bcrypt.CompareHashAndPassword([]byte(w.PinHash), []byte(req.Pin)) != nil {
		return nil, ErrInvalidPin
	}

	reference := id.Reference("PYT")
	fields := logger.Fields{logger.ReferenceKey: reference, logger.UserIdKey: req.UserID.String()}

	entry, err := s.Ledger.Debit(ctx, wallet.DebitInput{
		UserID:      req.UserID,
		Amount:      req.Amount,
		Type:        wallet.TransactionDebit,
		Reference:   reference,
		Description: "Payout to bank account",
		Metadata: map[string]interface{}{
			wallet.MetaKind:  "payout",
			"bank_code":      req.BankCode,
			"account_number": req.AccountNumber,
		},
	})
	if err != nil {
		return nil, err
	}

	receipt, err := s.Instructor.Instruct(ctx, Instruction{
		Reference:     reference,
		Amount:        req.Amount,
		Currency:      w.Currency,
		BankCode:      req.BankCode,
		AccountNumber: req.AccountNumber,
		AccountName:   req.AccountName,
		Reason:        req.Reason,
	})
	if errors.Is(err, ErrTransferRejected) {
		logger.Warn("Payout instruction rejected, reversing debit", logger.Merge(logger.WithError(err), fields))
		s.reverse(ctx, req, reference)
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err != nil {
		logger.Error("Payout outcome unknown, debit kept for reconciliation", logger.Merge(logger.WithError(err), fields))
		s.Dispatcher.Dispatch(notify.Event{
			Type:           notify.PayoutUnconfirmed,
			MerchantUserID: req.UserID,
			Reference:      reference,
			Amount:         req.Amount,
			Currency:       w.Currency,
			Detail:         err.Error(),
		})
		return &Result{Reference: reference, Status: StatusUnconfirmed, Transaction: entry}, nil
	}

	logger.Info("Payout initiated", logger.Merge(fields, logger.Fields{"amount": req.Amount}))
	s.Dispatcher.Dispatch(notify.Event{
		Type:           notify.PayoutInitiated,
		MerchantUserID: req.UserID,
		Reference:      reference,
		Amount:         req.Amount,
		Currency:       w.Currency,
	})

	return &Result{Reference: reference, Status: StatusInitiated, Transaction: entry, Receipt: receipt}, nil
}

func (s *Service) reverse(ctx context.Context, req Request, reference string) {
	// the debit is committed; the credit back must outlive a cancelled request
	ctx = context.WithoutCancel(ctx)

	_, err := s.Ledger.Credit(ctx, wallet.CreditInput{
		UserID:      req.UserID,
		Amount:      req.Amount,
		Reference:   reference + "-REV",
		Description: "Reversal of failed payout",
		Metadata: map[string]interface{}{
			wallet.MetaKind: "payout_reversal",
			"payout_ref":    reference,
		},
	})
	if err != nil && !errors.Is(err, wallet.ErrReferenceConflict) {
		logger.Error("CRITICAL: Payout debited but reversal failed", logger.Merge(logger.WithError(err), logger.Fields{
			logger.ReferenceKey: reference,
			logger.UserIdKey:    req.UserID.String(),
		}))
		return
	}

	s.Dispatcher.Dispatch(notify.Event{
		Type:           notify.PayoutReversed,
		MerchantUserID: req.UserID,
		Reference:      reference,
		Amount:         req.Amount,
	})
}
