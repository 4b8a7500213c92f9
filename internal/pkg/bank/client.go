// Package bank adapts the banking-as-a-service provider: virtual account
// provisioning, name enquiry, interbank transfers and transfer status.
package bank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/owopay/owo-api/internal/pkg/circuitbreaker"
	"github.com/owopay/owo-api/internal/pkg/provider"
	"github.com/owopay/owo-api/internal/pkg/retry"
)

// Config holds bank provider configuration.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	// Timeout for short calls; LongTimeout covers account provisioning and
	// interbank transfers, which can run for minutes.
	Timeout     time.Duration
	LongTimeout time.Duration
}

// Client is the bank rails adapter.
type Client struct {
	httpClient *http.Client
	config     Config
	tokens     *provider.TokenCache
	breaker    *circuitbreaker.Breaker
	retryCfg   retry.Config
}

// NewClient creates a bank provider client.
func NewClient(cfg Config, rdb *redis.Client) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.LongTimeout == 0 {
		cfg.LongTimeout = 180 * time.Second
	}
	retryCfg := retry.DefaultConfig()
	retryCfg.Retryable = provider.Retryable
	return &Client{
		// Per-call deadlines come from the request context.
		httpClient: &http.Client{},
		config:     cfg,
		tokens:     provider.NewTokenCache(rdb, "bank"),
		breaker:    circuitbreaker.New("bank", circuitbreaker.DefaultConfig()),
		retryCfg:   retryCfg,
	}
}

// NameEnquiryResult is the resolved owner of an account number.
type NameEnquiryResult struct {
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number"`
	BankCode      string `json:"bank_code"`
}

// TransferRequest initiates an outbound interbank transfer. Reference is the
// idempotency key; replays with the same reference are no-ops on the
// provider side.
type TransferRequest struct {
	Reference     string `json:"reference"`
	Amount        int64  `json:"amount"` // kobo
	AccountNumber string `json:"account_number"`
	BankCode      string `json:"bank_code"`
	Narration     string `json:"narration"`
}

// TransferResult is the provider's acknowledgement of a transfer.
type TransferResult struct {
	ProviderReference string `json:"provider_reference"`
	Status            string `json:"status"`
}

// TransferStatus resolves a transfer by our reference.
type TransferStatus struct {
	Reference         string `json:"reference"`
	ProviderReference string `json:"provider_reference"`
	Status            string `json:"status"` // pending|completed|failed
}

// VirtualAccountRequest provisions a dedicated NUBAN for a user.
type VirtualAccountRequest struct {
	Reference   string `json:"reference"`
	AccountName string `json:"account_name"`
	BVN         string `json:"bvn"`
	Phone       string `json:"phone"`
}

// VirtualAccount is the provisioned NUBAN.
type VirtualAccount struct {
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
	BankName      string `json:"bank_name"`
}

// NameEnquiry resolves the owner of account at bankCode.
func (c *Client) NameEnquiry(ctx context.Context, accountNumber, bankCode string) (*NameEnquiryResult, error) {
	var out NameEnquiryResult
	err := c.call(ctx, http.MethodPost, "/v1/transfers/name-enquiry", map[string]string{
		"account_number": accountNumber,
		"bank_code":      bankCode,
	}, &out, c.config.Timeout)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Transfer executes an interbank transfer. A deadline with no response code
// maps to ErrUnknownOutcome so the caller can park the transaction as
// pending for the reconciler.
func (c *Client) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	var out TransferResult
	err := c.call(ctx, http.MethodPost, "/v1/transfers", req, &out, c.config.LongTimeout)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: transfer %s", provider.ErrUnknownOutcome, req.Reference)
		}
		return nil, err
	}
	return &out, nil
}

// GetStatus resolves a transfer by reference; used by the reconciler.
func (c *Client) GetStatus(ctx context.Context, reference string) (*TransferStatus, error) {
	var out TransferStatus
	err := c.call(ctx, http.MethodGet, "/v1/transfers/"+reference, nil, &out, c.config.Timeout)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetBalance returns the provider-side ledger balance in kobo.
func (c *Client) GetBalance(ctx context.Context) (int64, error) {
	var out struct {
		Balance int64 `json:"balance"`
	}
	if err := c.call(ctx, http.MethodGet, "/v1/accounts/balance", nil, &out, c.config.Timeout); err != nil {
		return 0, err
	}
	return out.Balance, nil
}

// CreateVirtualAccount provisions a dedicated NUBAN. Provisioning is slow on
// the provider side, so it runs under the long timeout.
func (c *Client) CreateVirtualAccount(ctx context.Context, req VirtualAccountRequest) (*VirtualAccount, error) {
	var out VirtualAccount
	err := c.call(ctx, http.MethodPost, "/v1/virtual-accounts", req, &out, c.config.LongTimeout)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// authenticate fetches (or reuses) a bearer token.
func (c *Client) authenticate(ctx context.Context) (string, error) {
	token, err := c.tokens.Get(ctx)
	if err == nil && token != "" {
		return token, nil
	}

	body, _ := json.Marshal(map[string]string{
		"client_id":     c.config.ClientID,
		"client_secret": c.config.ClientSecret,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.config.BaseURL, "/")+"/v1/auth/token", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("bank auth failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("bank auth failed: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: auth returned %d", provider.ErrAuth, resp.StatusCode)
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(raw, &out); err != nil || out.AccessToken == "" {
		return "", fmt.Errorf("%w: malformed auth response", provider.ErrAuth)
	}
	if err := c.tokens.Put(ctx, out.AccessToken, time.Duration(out.ExpiresIn)*time.Second); err == nil {
		return out.AccessToken, nil
	}
	return out.AccessToken, nil
}

// call runs one provider request under breaker and retry protection.
func (c *Client) call(ctx context.Context, method, path string, body, out any, timeout time.Duration) error {
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return retry.Do(ctx, c.retryCfg, "bank"+path, func(ctx context.Context) error {
			return c.doRequest(ctx, method, path, body, out, timeout)
		})
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return fmt.Errorf("%w: circuit open", provider.ErrUnavailable)
	}
	var apiErr *provider.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Status == 401 || apiErr.Status == 403:
			return fmt.Errorf("%w: %s", provider.ErrAuth, apiErr.Message)
		case apiErr.Status >= 500 || apiErr.Status == 408 || apiErr.Status == 429:
			return fmt.Errorf("%w: %s", provider.ErrUnavailable, apiErr.Message)
		default:
			return fmt.Errorf("%w: %s", provider.ErrRejected, apiErr.Message)
		}
	}
	return err
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, out any, timeout time.Duration) error {
	if strings.TrimSpace(c.config.BaseURL) == "" {
		return errors.New("bank config error: base_url is empty")
	}

	token, err := c.authenticate(ctx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode bank request: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.config.BaseURL, "/")+path, reader)
	if err != nil {
		return fmt.Errorf("bank api call failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("bank api call failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("bank api call failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode == 401 {
			// Token may have been revoked early; drop it so the retry
			// re-authenticates.
			c.tokens.Invalidate(ctx)
		}
		apiErr := &provider.APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var parsed struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &parsed) == nil && parsed.Message != "" {
			apiErr.Code = parsed.Code
			apiErr.Message = parsed.Message
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to parse bank response: %w", err)
	}
	return nil
}
