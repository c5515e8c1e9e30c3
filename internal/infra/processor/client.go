// Package processor talks to the external payment processor over HTTP.
package processor

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"rentcar/internal/app/policies"
)

var ErrNotConfigured = errors.New("processor: client not configured")

// Client implements policies.ProcessorPort against the processor's REST API.
type Client struct {
	HTTP     *http.Client
	Endpoint string
	APIKey   string
	// ReturnURL is where the processor sends the renter after checkout.
	ReturnURL string
	Logger    *slog.Logger
}

type createChargeRequest struct {
	Reference   string `json:"reference"`
	BookingID   string `json:"booking_id"`
	Purpose     string `json:"purpose"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
	ReturnURL   string `json:"return_url,omitempty"`
}

type createChargeResponse struct {
	OrderCode   string `json:"order_code"`
	CheckoutURL string `json:"checkout_url"`
}

type statusResponse struct {
	OrderCode string `json:"order_code"`
	Status    string `json:"status"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *Client) CreateCharge(ctx context.Context, req policies.ChargeRequest) (policies.ChargeResult, error) {
	var zero policies.ChargeResult
	if c == nil || c.HTTP == nil || c.Endpoint == "" {
		return zero, ErrNotConfigured
	}
	body, err := json.Marshal(createChargeRequest{
		Reference:   req.Reference,
		BookingID:   req.BookingID,
		Purpose:     req.Purpose,
		Amount:      req.Amount.Amount,
		Currency:    req.Amount.Currency,
		Description: req.Description,
		ReturnURL:   c.ReturnURL,
	})
	if err != nil {
		return zero, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("charges"), bytes.NewReader(body))
	if err != nil {
		return zero, err
	}
	var out createChargeResponse
	if err := c.do(httpReq, &out); err != nil {
		c.logError("create charge failed", req.Reference, err)
		return zero, err
	}
	if out.OrderCode == "" {
		return zero, errors.New("processor: response without order code")
	}
	return policies.ChargeResult{OrderCode: out.OrderCode, CheckoutURL: out.CheckoutURL}, nil
}

func (c *Client) Status(ctx context.Context, orderCode string) (policies.ChargeStatus, error) {
	if c == nil || c.HTTP == nil || c.Endpoint == "" {
		return "", ErrNotConfigured
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("charges", orderCode), nil)
	if err != nil {
		return "", err
	}
	var out statusResponse
	if err := c.do(httpReq, &out); err != nil {
		c.logError("charge status failed", orderCode, err)
		return "", err
	}
	return policies.ChargeStatus(strings.ToUpper(out.Status)), nil
}

func (c *Client) FindByReference(ctx context.Context, reference string) (policies.ChargeResult, error) {
	var zero policies.ChargeResult
	if c == nil || c.HTTP == nil || c.Endpoint == "" {
		return zero, ErrNotConfigured
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("charges")+"?reference="+url.QueryEscape(reference), nil)
	if err != nil {
		return zero, err
	}
	var out createChargeResponse
	if err := c.do(httpReq, &out); err != nil {
		c.logError("charge lookup failed", reference, err)
		return zero, err
	}
	if out.OrderCode == "" {
		return zero, policies.ErrChargeNotFound
	}
	return policies.ChargeResult{OrderCode: out.OrderCode, CheckoutURL: out.CheckoutURL}, nil
}

func (c *Client) do(req *http.Request, out any) error {
	if req.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("processor: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		var apiErr errorResponse
		_ = json.Unmarshal(snippet, &apiErr)
		if resp.StatusCode == http.StatusPaymentRequired || apiErr.Code == "declined" {
			return fmt.Errorf("%w: %s", policies.ErrChargeDeclined, strings.TrimSpace(apiErr.Message))
		}
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s", policies.ErrChargeNotFound, strings.TrimSpace(apiErr.Message))
		}
		return fmt.Errorf("processor: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) url(parts ...string) string {
	escaped := make([]string, 0, len(parts))
	for _, p := range parts {
		escaped = append(escaped, url.PathEscape(p))
	}
	return strings.TrimRight(c.Endpoint, "/") + "/" + strings.Join(escaped, "/")
}

func (c *Client) logError(msg, ref string, err error) {
	if c.Logger != nil {
		c.Logger.Warn(msg, "ref", ref, "error", err)
	}
}

// Sign returns the hex HMAC-SHA256 the processor attaches to webhook bodies.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a webhook body against its signature header.
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := Sign(secret, body)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

var _ policies.ProcessorPort = (*Client)(nil)
