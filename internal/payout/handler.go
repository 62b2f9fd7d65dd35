package payout

import (
	"errors"
	"net/http"

	"github.com/zjoart/go-paystack-settlement/internal/user"
	"github.com/zjoart/go-paystack-settlement/internal/wallet"
	"github.com/zjoart/go-paystack-settlement/pkg/logger"
	"github.com/zjoart/go-paystack-settlement/pkg/utils"
)

type Handler struct {
	Service *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Service: svc}
}

type PayoutRequest struct {
	Amount        int64  `json:"amount" validate:"required,gt=0"`
	Pin           string `json:"pin" validate:"required,len=4,numeric"`
	BankCode      string `json:"bank_code" validate:"required"`
	AccountNumber string `json:"account_number" validate:"required,len=10,numeric"`
	AccountName   string `json:"account_name" validate:"required"`
	Reason        string `json:"reason" validate:"max=200"`
}

func (h *Handler) Payout(w http.ResponseWriter, r *http.Request) {
	usr, ok := r.Context().Value(utils.UserKey).(user.User)
	if !ok {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Unauthorized", nil)
		return
	}

	var req PayoutRequest
	if status, err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", map[string]string{"error": err.Error()})
		return
	}

	result, err := h.Service.Payout(r.Context(), Request{
		UserID:        usr.ID,
		Amount:        req.Amount,
		Pin:           req.Pin,
		BankCode:      req.BankCode,
		AccountNumber: req.AccountNumber,
		AccountName:   req.AccountName,
		Reason:        req.Reason,
	})
	if err != nil {
		status, msg := payoutErrorStatus(err)
		if status == http.StatusInternalServerError {
			logger.Error("Payout failed", logger.Merge(logger.WithError(err), logger.Fields{logger.UserIdKey: usr.ID.String()}))
		}
		utils.BuildErrorResponse(w, status, msg, nil)
		return
	}

	if result.Status == StatusUnconfirmed {
		utils.BuildSuccessResponse(w, http.StatusAccepted, "Payout submitted, awaiting confirmation", result)
		return
	}
	utils.BuildSuccessResponse(w, http.StatusOK, "Payout initiated", result)
}

func payoutErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrAmountTooSmall):
		return http.StatusBadRequest, "Amount is below the minimum transaction amount"
	case errors.Is(err, ErrKYCRequired):
		return http.StatusForbidden, "KYC verification is required for payouts"
	case errors.Is(err, ErrInvalidPin):
		return http.StatusUnauthorized, "Invalid PIN"
	case errors.Is(err, wallet.ErrWalletNotFound):
		return http.StatusNotFound, "Wallet not found"
	case errors.Is(err, wallet.ErrWalletInactive):
		return http.StatusForbidden, "Wallet is not active"
	case errors.Is(err, wallet.ErrInsufficientFunds):
		return http.StatusBadRequest, "Insufficient funds"
	case errors.Is(err, ErrTransferFailed):
		return http.StatusBadGateway, "Transfer could not be initiated, your wallet has been refunded"
	}
	return http.StatusInternalServerError, "Payout failed"
}
