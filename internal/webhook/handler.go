package webhook

import (
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/zjoart/go-paystack-settlement/internal/payment"
	"github.com/zjoart/go-paystack-settlement/pkg/logger"
	"github.com/zjoart/go-paystack-settlement/pkg/utils"
)

const maxWebhookBody = 1 << 20

type Handler struct {
	Processor *Processor
}

func NewHandler(p *Processor) *Handler {
	return &Handler{Processor: p}
}

// Receive handles POST /api/webhooks/{provider}.
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	name, err := payment.ParseProviderName(mux.Vars(r)["provider"])
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusNotFound, "Unknown provider", nil)
		return
	}

	prov, err := h.Processor.Verifier.Registry.Get(name)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusNotFound, "Unknown provider", nil)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.BuildErrorResponse(w, http.StatusRequestEntityTooLarge, "Payload too large", nil)
			return
		}
		logger.Error("Webhook: Failed to read body", logger.Fields{logger.ErrorKey: err.Error(), "remote_addr": r.RemoteAddr})
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Failed to read body", nil)
		return
	}

	ack := h.Processor.Receive(r.Context(), name, body, r.Header.Get(prov.SignatureHeader()))
	if ack.Status >= http.StatusBadRequest {
		utils.BuildErrorResponse(w, ack.Status, ack.Message, nil)
		return
	}

	utils.BuildSuccessResponse(w, ack.Status, ack.Message, map[string]interface{}{
		"event_id":  ack.EventID,
		"duplicate": ack.Duplicate,
	})
}
