package payment

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zjoart/go-paystack-settlement/pkg/utils"
)

type paystackProvider struct {
	secret string
}

func NewPaystack(secret string) Provider {
	return &paystackProvider{secret: secret}
}

func (p *paystackProvider) Name() ProviderName { return Paystack }

func (p *paystackProvider) SignatureHeader() string { return "x-paystack-signature" }

func (p *paystackProvider) VerifySignature(body []byte, signature string) error {
	return verifyHMACSHA512(p.secret, body, signature)
}

type paystackEvent struct {
	Event string `json:"event" validate:"required"`
	Data  struct {
		ID         json.RawMessage `json:"id"`
		Reference  string          `json:"reference" validate:"required"`
		Status     string          `json:"status"`
		Amount     int64           `json:"amount" validate:"gte=0"`
		Currency   string          `json:"currency"`
		Fees       int64           `json:"fees"`
		Channel    string          `json:"channel"`
		Subaccount *struct {
			SubaccountCode string `json:"subaccount_code"`
			SplitShare     int64  `json:"split_share"`
		} `json:"subaccount"`
	} `json:"data"`
}

func (p *paystackProvider) Parse(body []byte) (*Envelope, error) {
	var evt paystackEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, fmt.Errorf("paystack: %v: %w", err, ErrMalformedPayload)
	}
	if err := utils.Validate(&evt); err != nil {
		return nil, fmt.Errorf("paystack: %v: %w", err, ErrMalformedPayload)
	}

	env := &Envelope{
		EventID:   paystackEventID(evt.Event, evt.Data.ID, body),
		EventType: evt.Event,
		Reference: evt.Data.Reference,
	}

	if !strings.HasPrefix(evt.Event, "charge.") {
		return env, nil
	}

	status, known := paystackStatus(evt.Data.Status)
	out := &Outcome{
		Provider:       Paystack,
		Reference:      evt.Data.Reference,
		AmountPaid:     evt.Data.Amount,
		Currency:       strings.ToUpper(evt.Data.Currency),
		ProviderStatus: evt.Data.Status,
		Status:         status,
		Fees:           evt.Data.Fees,
		Channel:        evt.Data.Channel,
		UnknownStatus:  !known,
	}
	if sub := evt.Data.Subaccount; sub != nil && sub.SubaccountCode != "" {
		out.Split = &SplitInfo{SubaccountCode: sub.SubaccountCode, Share: sub.SplitShare}
	}
	env.Outcome = out
	return env, nil
}

func paystackEventID(event string, id json.RawMessage, body []byte) string {
	raw := strings.Trim(string(id), `"`)
	if raw == "" || raw == "null" {
		return Digest(body)
	}
	return event + ":" + raw
}

func paystackStatus(s string) (Status, bool) {
	switch strings.ToLower(s) {
	case "success":
		return StatusSuccess, true
	case "failed", "abandoned", "reversed":
		return StatusFailed, true
	case "pending", "ongoing", "processing", "queued":
		return StatusPending, true
	}
	return StatusPending, false
}
