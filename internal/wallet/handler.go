package wallet

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/zjoart/go-paystack-settlement/internal/user"
	"github.com/zjoart/go-paystack-settlement/pkg/config"
	"github.com/zjoart/go-paystack-settlement/pkg/logger"
	"github.com/zjoart/go-paystack-settlement/pkg/utils"
	"golang.org/x/crypto/bcrypt"
)

type Handler struct {
	Config config.Config
	Repo   Repository
}

func NewHandler(cfg config.Config, repo Repository) *Handler {
	return &Handler{Config: cfg, Repo: repo}
}

type CreateWalletRequest struct {
	Pin string `json:"pin" validate:"required,len=4,numeric"`
}

func (h *Handler) CreateWallet(w http.ResponseWriter, r *http.Request) {
	usr, ok := r.Context().Value(utils.UserKey).(user.User)
	if !ok {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Unauthorized", nil)
		return
	}

	var req CreateWalletRequest
	if status, err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", map[string]string{"error": err.Error()})
		return
	}

	// check if wallet exists
	existingWallet, _ := h.Repo.GetWalletByUserID(r.Context(), usr.ID)
	if existingWallet != nil {
		utils.BuildErrorResponse(w, http.StatusConflict, "User already has a wallet", nil)
		return
	}

	hashedPin, err := bcrypt.GenerateFromPassword([]byte(req.Pin), bcrypt.DefaultCost)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to secure PIN", nil)
		return
	}

	wallet := Wallet{
		UserID:       usr.ID,
		WalletNumber: generateWalletNumber(),
		PinHash:      string(hashedPin),
		Currency:     "NGN",
		Status:       WalletActive,
	}

	if err := h.Repo.CreateWallet(r.Context(), &wallet); err != nil {
		logger.Error("Failed to create wallet", logger.Merge(logger.WithError(err), logger.Fields{logger.UserIdKey: usr.ID.String()}))
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to create wallet", nil)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusCreated, "Wallet created successfully", map[string]interface{}{
		"wallet_number":     wallet.WalletNumber,
		"available_balance": wallet.AvailableBalance,
		"currency":          wallet.Currency,
	})
}

func (h *Handler) GetWalletBalance(w http.ResponseWriter, r *http.Request) {
	usr, _ := r.Context().Value(utils.UserKey).(user.User)

	wallet, err := h.Repo.GetWalletByUserID(r.Context(), usr.ID)
	if err != nil {
		h.walletLookupFailed(w, err)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Wallet Balance", map[string]any{
		"available_balance": wallet.AvailableBalance,
		"ledger_balance":    wallet.LedgerBalance,
		"pending_balance":   wallet.PendingBalance,
		"currency":          wallet.Currency,
	})
}

func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	usr, _ := r.Context().Value(utils.UserKey).(user.User)

	wallet, err := h.Repo.GetWalletByUserID(r.Context(), usr.ID)
	if err != nil {
		h.walletLookupFailed(w, err)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Wallet Details", wallet)
}

func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	usr, _ := r.Context().Value(utils.UserKey).(user.User)

	wallet, err := h.Repo.GetWalletByUserID(r.Context(), usr.ID)
	if err != nil {
		h.walletLookupFailed(w, err)
		return
	}

	limit, offset, page := utils.GetPaginationDetails(r)

	txs, err := h.Repo.GetTransactions(r.Context(), wallet.ID, limit, offset)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to fetch transactions", nil)
		return
	}

	count, _ := h.Repo.CountTransactions(r.Context(), wallet.ID)
	totalPages := int(math.Ceil(float64(count) / float64(limit)))

	utils.BuildSuccessResponse(w, http.StatusOK, "Transaction History", map[string]interface{}{
		"transactions": txs,
		"meta": map[string]interface{}{
			"total_items":  count,
			"total_pages":  totalPages,
			"current_page": page,
			"limit":        limit,
		},
	})
}

func (h *Handler) walletLookupFailed(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrWalletNotFound) {
		utils.BuildErrorResponse(w, http.StatusNotFound, "Wallet not found", nil)
		return
	}
	logger.Error("Wallet lookup failed", logger.WithError(err))
	utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to load wallet", nil)
}

func generateWalletNumber() string {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	return fmt.Sprintf("%010d", r.Int63n(10000000000))
}
