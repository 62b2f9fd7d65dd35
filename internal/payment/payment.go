package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"strings"
)

type ProviderName string

const (
	Paystack ProviderName = "PAYSTACK"
	Monnify  ProviderName = "MONNIFY"
)

// ParseProviderName accepts the lower-case path form used in webhook URLs.
func ParseProviderName(s string) (ProviderName, error) {
	switch ProviderName(strings.ToUpper(s)) {
	case Paystack:
		return Paystack, nil
	case Monnify:
		return Monnify, nil
	}
	return "", fmt.Errorf("%q: %w", s, ErrUnknownProvider)
}

// Status is the internal tri-state every provider vocabulary is folded into.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
	StatusPending Status = "PENDING"
)

// SplitInfo is present when the provider already routed funds to a merchant
// subaccount. Share is the portion the platform kept, in kobo.
type SplitInfo struct {
	SubaccountCode string `json:"subaccount_code"`
	Share          int64  `json:"share"`
}

// Outcome is a verified payment result. Amounts are kobo.
type Outcome struct {
	Provider       ProviderName `json:"provider"`
	Reference      string       `json:"reference"`
	AmountPaid     int64        `json:"amount_paid"`
	Currency       string       `json:"currency"`
	ProviderStatus string       `json:"provider_status"`
	Status         Status       `json:"status"`
	Fees           int64        `json:"fees"`
	Channel        string       `json:"channel,omitempty"`
	Split          *SplitInfo   `json:"split,omitempty"`
	// UnknownStatus marks a provider status outside the known vocabulary.
	// Status is PENDING in that case.
	UnknownStatus bool `json:"unknown_status,omitempty"`
}

// Envelope is a parsed webhook delivery.
type Envelope struct {
	EventID   string
	EventType string
	Reference string
	// Outcome is nil for events that carry no payment result (transfers, disputes).
	Outcome *Outcome
}

type Provider interface {
	Name() ProviderName
	SignatureHeader() string
	VerifySignature(body []byte, signature string) error
	Parse(body []byte) (*Envelope, error)
}

func signHMACSHA512(secret string, body []byte) []byte {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

// Sign returns the hex HMAC-SHA512 of body, the form both providers send.
func Sign(secret string, body []byte) string {
	return hex.EncodeToString(signHMACSHA512(secret, body))
}

func verifyHMACSHA512(secret string, body []byte, signature string) error {
	if signature == "" {
		return fmt.Errorf("missing signature: %w", ErrInvalidSignature)
	}
	received, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return fmt.Errorf("signature is not hex: %w", ErrInvalidSignature)
	}
	if !hmac.Equal(received, signHMACSHA512(secret, body)) {
		return ErrInvalidSignature
	}
	return nil
}

// Digest is the hex SHA-256 of body, used as an event id when a provider sends none.
func Digest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
