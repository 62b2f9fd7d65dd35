package settlement

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/zjoart/go-paystack-settlement/internal/business"
	"github.com/zjoart/go-paystack-settlement/internal/order"
	"github.com/zjoart/go-paystack-settlement/internal/payout"
	"github.com/zjoart/go-paystack-settlement/internal/user"
	"github.com/zjoart/go-paystack-settlement/internal/wallet"
	"github.com/zjoart/go-paystack-settlement/pkg/id"
	"github.com/zjoart/go-paystack-settlement/pkg/logger"
	"github.com/zjoart/go-paystack-settlement/pkg/utils"
)

type Handler struct {
	Refunds     *RefundService
	Orders      order.Repository
	Businesses  business.Repository
	Settlements Repository
}

func NewHandler(refunds *RefundService, orders order.Repository, businesses business.Repository, settlements Repository) *Handler {
	return &Handler{Refunds: refunds, Orders: orders, Businesses: businesses, Settlements: settlements}
}

type CreateRefundRequest struct {
	Amount        int64  `json:"amount" validate:"gte=0"`
	Reason        string `json:"reason" validate:"required,max=500"`
	RefundType    string `json:"refund_type" validate:"required,oneof=FULL PARTIAL"`
	RefundMethod  string `json:"refund_method" validate:"required,oneof=WALLET BANK"`
	BankCode      string `json:"bank_code" validate:"required_if=RefundMethod BANK"`
	AccountNumber string `json:"account_number" validate:"required_if=RefundMethod BANK"`
	AccountName   string `json:"account_name" validate:"required_if=RefundMethod BANK"`
}

func (h *Handler) CreateRefund(w http.ResponseWriter, r *http.Request) {
	usr, ok := r.Context().Value(utils.UserKey).(user.User)
	if !ok {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Unauthorized", nil)
		return
	}

	ord, ok := h.ownedOrder(w, r, usr)
	if !ok {
		return
	}

	var req CreateRefundRequest
	if status, err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", map[string]string{"error": err.Error()})
		return
	}

	in := RefundRequest{
		OrderID:     ord.ID,
		Amount:      req.Amount,
		Reason:      req.Reason,
		Type:        RefundType(req.RefundType),
		Method:      RefundMethod(req.RefundMethod),
		RequestedBy: "user:" + usr.ID.String(),
	}
	if in.Method == MethodBank {
		in.Bank = &BankAccount{BankCode: req.BankCode, AccountNumber: req.AccountNumber, AccountName: req.AccountName}
	}

	result, err := h.Refunds.Refund(r.Context(), in)
	if err != nil {
		status, msg := refundErrorStatus(err)
		if status == http.StatusInternalServerError {
			logger.Error("Refund failed", logger.Merge(logger.WithError(err), logger.Fields{logger.OrderIDKey: ord.ID.String()}))
		}
		utils.BuildErrorResponse(w, status, msg, map[string]string{"error": err.Error()})
		return
	}

	utils.BuildSuccessResponse(w, http.StatusCreated, "Refund processed", result)
}

func (h *Handler) ListRefunds(w http.ResponseWriter, r *http.Request) {
	usr, _ := r.Context().Value(utils.UserKey).(user.User)

	ord, ok := h.ownedOrder(w, r, usr)
	if !ok {
		return
	}

	refunds, err := h.Settlements.ListRefunds(r.Context(), ord.ID)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to fetch refunds", nil)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Refunds", refunds)
}

// ownedOrder loads the {id} order and hides orders of other merchants behind a 404.
func (h *Handler) ownedOrder(w http.ResponseWriter, r *http.Request, usr user.User) (*order.Order, bool) {
	orderID, err := id.IsValidUUID(mux.Vars(r)["id"])
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Invalid order id", nil)
		return nil, false
	}

	ord, err := h.Orders.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			utils.BuildErrorResponse(w, http.StatusNotFound, "Order not found", nil)
			return nil, false
		}
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to load order", nil)
		return nil, false
	}

	biz, err := h.Businesses.GetByID(r.Context(), ord.BusinessID)
	if err != nil || biz.OwnerUserID != usr.ID {
		utils.BuildErrorResponse(w, http.StatusNotFound, "Order not found", nil)
		return nil, false
	}

	return ord, true
}

func refundErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, order.ErrOrderNotFound):
		return http.StatusNotFound, "Order not found"
	case errors.Is(err, ErrOrderNotPaid), errors.Is(err, ErrSettlementNotRefundable):
		return http.StatusConflict, "Order cannot be refunded"
	case errors.Is(err, ErrRefundExceedsSettled):
		return http.StatusUnprocessableEntity, "Refund exceeds settled amount"
	case errors.Is(err, ErrInvalidRefund):
		return http.StatusUnprocessableEntity, "Invalid refund"
	case errors.Is(err, wallet.ErrInsufficientFunds):
		return http.StatusBadRequest, "Insufficient funds"
	case errors.Is(err, wallet.ErrWalletNotFound), errors.Is(err, wallet.ErrWalletInactive):
		return http.StatusConflict, "Merchant wallet unavailable"
	case errors.Is(err, payout.ErrTransferFailed):
		return http.StatusBadGateway, "Bank refund could not be initiated"
	}
	return http.StatusInternalServerError, "Refund failed"
}
