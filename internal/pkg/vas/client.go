// Package vas adapts the value-added-services provider: airtime, data
// bundles and utility bill payments.
package vas

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

	"github.com/owopay/owo-api/internal/pkg/circuitbreaker"
	"github.com/owopay/owo-api/internal/pkg/provider"
	"github.com/owopay/owo-api/internal/pkg/retry"
)

// Config holds VAS provider configuration.
type Config struct {
	BaseURL   string
	APIKey    string
	SecretKey string
	Timeout   time.Duration
}

// Client is the VAS provider adapter.
type Client struct {
	httpClient *http.Client
	config     Config
	breaker    *circuitbreaker.Breaker
	retryCfg   retry.Config
}

// NewClient creates a VAS provider client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	retryCfg := retry.DefaultConfig()
	retryCfg.Retryable = provider.Retryable
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
		breaker:    circuitbreaker.New("vas", circuitbreaker.DefaultConfig()),
		retryCfg:   retryCfg,
	}
}

// AirtimeRequest tops up a phone with airtime.
type AirtimeRequest struct {
	Reference string `json:"reference"`
	Phone     string `json:"phone"`
	Network   string `json:"network"`
	Amount    int64  `json:"amount"` // kobo
}

// DataRequest buys a data bundle by the provider's plan id.
type DataRequest struct {
	Reference string `json:"reference"`
	Phone     string `json:"phone"`
	Network   string `json:"network"`
	PlanID    string `json:"plan_id"`
}

// BillRequest pays an electricity bill.
type BillRequest struct {
	Reference   string `json:"reference"`
	Disco       string `json:"disco"`
	MeterType   string `json:"meter_type"` // prepaid|postpaid
	MeterNumber string `json:"meter_number"`
	Amount      int64  `json:"amount"` // kobo
}

// PurchaseResult acknowledges a VAS purchase. Token is present for prepaid
// electricity and must be forwarded in the receipt.
type PurchaseResult struct {
	ProviderReference string `json:"provider_reference"`
	Status            string `json:"status"`
	Token             string `json:"token,omitempty"`
}

// MeterInfo is the validated owner of a meter number.
type MeterInfo struct {
	CustomerName string `json:"customer_name"`
	Address      string `json:"address,omitempty"`
}

// BuyAirtime purchases airtime.
func (c *Client) BuyAirtime(ctx context.Context, req AirtimeRequest) (*PurchaseResult, error) {
	var out PurchaseResult
	if err := c.call(ctx, http.MethodPost, "/v1/airtime", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BuyData purchases a data bundle.
func (c *Client) BuyData(ctx context.Context, req DataRequest) (*PurchaseResult, error) {
	var out PurchaseResult
	if err := c.call(ctx, http.MethodPost, "/v1/data", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PayBill pays an electricity bill; prepaid meters get a recharge token back.
func (c *Client) PayBill(ctx context.Context, req BillRequest) (*PurchaseResult, error) {
	var out PurchaseResult
	if err := c.call(ctx, http.MethodPost, "/v1/bills/electricity", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ValidateMeter resolves a meter number before payment.
func (c *Client) ValidateMeter(ctx context.Context, disco, meterType, meterNumber string) (*MeterInfo, error) {
	var out MeterInfo
	err := c.call(ctx, http.MethodPost, "/v1/bills/electricity/validate", map[string]string{
		"disco":        disco,
		"meter_type":   meterType,
		"meter_number": meterNumber,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetStatus resolves a purchase by reference; used by the reconciler.
func (c *Client) GetStatus(ctx context.Context, reference string) (*PurchaseResult, error) {
	var out PurchaseResult
	if err := c.call(ctx, http.MethodGet, "/v1/purchases/"+reference, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return retry.Do(ctx, c.retryCfg, "vas"+path, func(ctx context.Context) error {
			return c.doRequest(ctx, method, path, body, out)
		})
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return fmt.Errorf("%w: circuit open", provider.ErrUnavailable)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", provider.ErrUnknownOutcome, err)
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

func (c *Client) doRequest(ctx context.Context, method, path string, body, out any) error {
	if strings.TrimSpace(c.config.BaseURL) == "" {
		return errors.New("vas config error: base_url is empty")
	}

	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode vas request: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.config.BaseURL, "/")+path, reader)
	if err != nil {
		return fmt.Errorf("vas api call failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	if c.config.SecretKey != "" {
		req.Header.Set("X-Secret-Key", c.config.SecretKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("vas api call failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("vas api call failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
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
		return fmt.Errorf("failed to parse vas response: %w", err)
	}
	return nil
}
