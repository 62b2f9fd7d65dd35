package payment

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/zjoart/go-paystack-settlement/pkg/utils"
)

type monnifyProvider struct {
	clientSecret string
}

func NewMonnify(clientSecret string) Provider {
	return &monnifyProvider{clientSecret: clientSecret}
}

func (m *monnifyProvider) Name() ProviderName { return Monnify }

func (m *monnifyProvider) SignatureHeader() string { return "monnify-signature" }

func (m *monnifyProvider) VerifySignature(body []byte, signature string) error {
	return verifyHMACSHA512(m.clientSecret, body, signature)
}

type monnifyEvent struct {
	EventType string `json:"eventType" validate:"required"`
	EventData struct {
		TransactionReference string      `json:"transactionReference"`
		PaymentReference     string      `json:"paymentReference" validate:"required"`
		AmountPaid           json.Number `json:"amountPaid"`
		SettlementAmount     json.Number `json:"settlementAmount"`
		PaymentStatus        string      `json:"paymentStatus"`
		PaymentMethod        string      `json:"paymentMethod"`
		Currency             string      `json:"currency"`
		SubAccounts          []struct {
			SubAccountCode string      `json:"subAccountCode"`
			SplitAmount    json.Number `json:"splitAmount"`
		} `json:"subAccounts"`
	} `json:"eventData"`
}

func (m *monnifyProvider) Parse(body []byte) (*Envelope, error) {
	var evt monnifyEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, fmt.Errorf("monnify: %v: %w", err, ErrMalformedPayload)
	}
	if err := utils.Validate(&evt); err != nil {
		return nil, fmt.Errorf("monnify: %v: %w", err, ErrMalformedPayload)
	}

	data := evt.EventData
	eventID := Digest(body)
	if data.TransactionReference != "" {
		eventID = evt.EventType + ":" + data.TransactionReference
	}

	env := &Envelope{
		EventID:   eventID,
		EventType: evt.EventType,
		Reference: data.PaymentReference,
	}

	if !strings.HasSuffix(evt.EventType, "_TRANSACTION") {
		return env, nil
	}

	paid, err := nairaToKobo(data.AmountPaid)
	if err != nil {
		return nil, fmt.Errorf("monnify amountPaid: %v: %w", err, ErrMalformedPayload)
	}

	var fees int64
	if data.SettlementAmount != "" {
		settled, err := nairaToKobo(data.SettlementAmount)
		if err != nil {
			return nil, fmt.Errorf("monnify settlementAmount: %v: %w", err, ErrMalformedPayload)
		}
		if settled <= paid {
			fees = paid - settled
		}
	}

	status, known := monnifyStatus(data.PaymentStatus)
	out := &Outcome{
		Provider:       Monnify,
		Reference:      data.PaymentReference,
		AmountPaid:     paid,
		Currency:       strings.ToUpper(data.Currency),
		ProviderStatus: data.PaymentStatus,
		Status:         status,
		Fees:           fees,
		Channel:        data.PaymentMethod,
		UnknownStatus:  !known,
	}

	if len(data.SubAccounts) > 0 && data.SubAccounts[0].SubAccountCode != "" {
		sub := data.SubAccounts[0]
		routed, err := nairaToKobo(sub.SplitAmount)
		if err != nil {
			return nil, fmt.Errorf("monnify splitAmount: %v: %w", err, ErrMalformedPayload)
		}
		// Monnify reports what the subaccount received; the platform kept the rest.
		share := paid - routed
		if share < 0 {
			share = 0
		}
		out.Split = &SplitInfo{SubaccountCode: sub.SubAccountCode, Share: share}
	}

	env.Outcome = out
	return env, nil
}

// nairaToKobo converts Monnify's decimal naira amounts to integer kobo.
func nairaToKobo(n json.Number) (int64, error) {
	if n == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return 0, err
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("negative amount %s", d)
	}
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart(), nil
}

func monnifyStatus(s string) (Status, bool) {
	switch strings.ToUpper(s) {
	case "PAID", "OVERPAID":
		return StatusSuccess, true
	case "FAILED", "CANCELLED", "EXPIRED", "ABANDONED", "REVERSED":
		return StatusFailed, true
	case "PENDING", "PARTIALLY_PAID":
		return StatusPending, true
	}
	return StatusPending, false
}
