package payout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/zjoart/go-paystack-settlement/pkg/logger"
)

// Instruction asks the bank/transfer collaborator to move money out.
type Instruction struct {
	Reference     string
	Amount        int64
	Currency      string
	BankCode      string
	AccountNumber string
	AccountName   string
	Reason        string
}

type Receipt struct {
	TransferCode string `json:"transfer_code"`
	Status       string `json:"status"`
}

type Instructor interface {
	Instruct(ctx context.Context, in Instruction) (*Receipt, error)
}

const paystackBaseURL = "https://api.paystack.co"

// PaystackTransfers sends payouts through the Paystack transfer API.
type PaystackTransfers struct {
	BaseURL string
	Secret  string
	Client  *http.Client
}

func NewPaystackTransfers(secret string) *PaystackTransfers {
	return &PaystackTransfers{
		BaseURL: paystackBaseURL,
		Secret:  secret,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type paystackResponse struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (p *PaystackTransfers) Instruct(ctx context.Context, in Instruction) (*Receipt, error) {
	var recipient struct {
		RecipientCode string `json:"recipient_code"`
	}
	if err := p.post(ctx, "/transferrecipient", map[string]interface{}{
		"type":           "nuban",
		"name":           in.AccountName,
		"account_number": in.AccountNumber,
		"bank_code":      in.BankCode,
		"currency":       in.Currency,
	}, &recipient); err != nil {
		// no transfer can exist without a recipient
		if !errors.Is(err, ErrTransferRejected) {
			err = fmt.Errorf("%w: %v", ErrTransferRejected, err)
		}
		return nil, fmt.Errorf("create transfer recipient: %w", err)
	}

	var receipt Receipt
	if err := p.post(ctx, "/transfer", map[string]interface{}{
		"source":    "balance",
		"amount":    in.Amount,
		"recipient": recipient.RecipientCode,
		"reference": in.Reference,
		"reason":    in.Reason,
	}, &receipt); err != nil {
		return nil, fmt.Errorf("initiate transfer: %w", err)
	}

	return &receipt, nil
}

func (p *PaystackTransfers) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.Secret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		logger.Error("Paystack error", logger.Fields{
			"status_code": resp.StatusCode,
			"path":        path,
			"body":        string(respBody),
		})
		return fmt.Errorf("%w: paystack returned status %d", ErrTransferRejected, resp.StatusCode)
	}

	var result paystackResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return err
	}
	if !result.Status {
		return fmt.Errorf("%w: %s", ErrTransferRejected, result.Message)
	}
	return json.Unmarshal(result.Data, out)
}
