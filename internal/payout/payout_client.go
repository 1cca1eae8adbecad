package payout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/a2sh3r/fundsledger/internal/logger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type PayoutStatus string

const (
	StatusPending   PayoutStatus = "PENDING"
	StatusCommitted PayoutStatus = "COMMITTED"
	StatusCompleted PayoutStatus = "COMPLETED"
	StatusFailed    PayoutStatus = "FAILED"
)

type ClientInterface interface {
	VerifyEligibility(ctx context.Context, email string) (bool, error)
	CreatePayout(ctx context.Context, req PayoutRequest) (*PayoutResponse, error)
	CommitPayout(ctx context.Context, payoutID string) (*PayoutResponse, error)
	GetPayoutStatus(ctx context.Context, payoutID string) (*PayoutResponse, int, error)
}

type PayoutRequest struct {
	WithdrawalID string          `json:"withdrawal_id"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Email        string          `json:"email"`
}

type PayoutResponse struct {
	ID            string          `json:"id"`
	Status        PayoutStatus    `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	FailureReason string          `json:"failure_reason,omitempty"`
}

type eligibilityResponse struct {
	Eligible bool `json:"eligible"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// VerifyEligibility asks the provider whether email can receive payouts. An
// unknown payee (404) is not eligible.
func (c *Client) VerifyEligibility(ctx context.Context, email string) (bool, error) {
	endpoint := fmt.Sprintf("%s/api/payees/eligibility?%s", c.baseURL, url.Values{"email": {email}}.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer closeBody(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result eligibilityResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, err
	}
	return result.Eligible, nil
}

func (c *Client) CreatePayout(ctx context.Context, payoutReq PayoutRequest) (*PayoutResponse, error) {
	body, err := json.Marshal(payoutReq)
	if err != nil {
		return nil, err
	}
	logger.Log.Info("creating payout", zap.String("withdrawal_id", payoutReq.WithdrawalID))
	return c.post(ctx, fmt.Sprintf("%s/api/payouts", c.baseURL), body)
}

func (c *Client) CommitPayout(ctx context.Context, payoutID string) (*PayoutResponse, error) {
	logger.Log.Info("committing payout", zap.String("payout_id", payoutID))
	return c.post(ctx, fmt.Sprintf("%s/api/payouts/%s/commit", c.baseURL, url.PathEscape(payoutID)), nil)
}

func (c *Client) post(ctx context.Context, endpoint string, body []byte) (*PayoutResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result PayoutResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if result.ID == "" {
		return nil, fmt.Errorf("payout response without id")
	}
	return &result, nil
}

// GetPayoutStatus returns a nil response with a nil error when the provider
// has nothing to report yet (404) or asks to back off (429).
func (c *Client) GetPayoutStatus(ctx context.Context, payoutID string) (*PayoutResponse, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/payouts/%s", c.baseURL, url.PathEscape(payoutID)), nil)
	if err != nil {
		return nil, 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer closeBody(resp.Body)

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusTooManyRequests {
		return nil, resp.StatusCode, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result PayoutResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, resp.StatusCode, err
	}
	return &result, resp.StatusCode, nil
}

func closeBody(body io.ReadCloser) {
	if err := body.Close(); err != nil {
		logger.Log.Error("failed to close payout response body", zap.Error(err))
	}
}
