package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sinew-backend/internal/config"
	"sinew-backend/internal/model"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type PaypalClient interface {
	CreateOrder(ctx context.Context, params *CreateOrderParams) (*model.PaypalOrder, error)
	GetOrder(ctx context.Context, orderID string) (*model.PaypalOrder, error)
	CaptureOrder(ctx context.Context, orderID string) (*model.PaypalOrder, error)
	VerifyWebhookSignature(ctx context.Context, headers http.Header, body []byte) error
}

type CreateOrderParams struct {
	Amount      decimal.Decimal
	Currency    string
	Description string
	CustomID    string
	ReturnURL   string
	CancelURL   string
}

// PaypalAPIError is a non-2xx answer from the PayPal REST API.
type PaypalAPIError struct {
	StatusCode int
	Name       string
	Message    string
	Issues     []string
}

func (e *PaypalAPIError) Error() string {
	return fmt.Sprintf("paypal error %d %s: %s %v", e.StatusCode, e.Name, e.Message, e.Issues)
}

func (e *PaypalAPIError) HasIssue(issue string) bool {
	for _, i := range e.Issues {
		if i == issue {
			return true
		}
	}
	return false
}

var ErrWebhookSignature = errors.New("paypal webhook signature verification failed")

type paypalClientImpl struct {
	httpClient         *http.Client
	baseApiURL         string
	paypalClientID     string
	paypalClientSecret string
	webhookID          string
	brandName          string

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewPaypalClient(paypalCfg *config.Paypal, timeout time.Duration) PaypalClient {
	return &paypalClientImpl{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseApiURL:         strings.TrimRight(paypalCfg.BaseApiURL, "/"),
		paypalClientID:     paypalCfg.ClientID,
		paypalClientSecret: paypalCfg.ClientSecret,
		webhookID:          paypalCfg.WebhookID,
		brandName:          paypalCfg.BrandName,
	}
}

func (c *paypalClientImpl) getAccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	auth := base64.StdEncoding.EncodeToString(
		[]byte(c.paypalClientID + ":" + c.paypalClientSecret),
	)

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseApiURL+"/v1/oauth2/token",
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", decodePaypalError(resp)
	}

	var res struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if res.AccessToken == "" {
		return "", errors.New("paypal returned an empty access token")
	}

	c.accessToken = res.AccessToken
	// refresh a minute early
	c.tokenExpiry = time.Now().Add(time.Duration(res.ExpiresIn)*time.Second - time.Minute)

	return c.accessToken, nil
}

func (c *paypalClientImpl) CreateOrder(ctx context.Context, params *CreateOrderParams) (*model.PaypalOrder, error) {
	unit := map[string]interface{}{
		"amount": map[string]string{
			"currency_code": params.Currency,
			"value":         params.Amount.StringFixed(2),
		},
		"description": params.Description,
	}
	if params.CustomID != "" {
		unit["custom_id"] = params.CustomID
	}

	payload := map[string]interface{}{
		"intent":         "CAPTURE",
		"purchase_units": []map[string]interface{}{unit},
		"application_context": map[string]string{
			"brand_name":          c.brandName,
			"user_action":         "PAY_NOW",
			"shipping_preference": "NO_SHIPPING",
			"return_url":          params.ReturnURL,
			"cancel_url":          params.CancelURL,
		},
	}

	var order model.PaypalOrder
	if err := c.do(ctx, http.MethodPost, "/v2/checkout/orders", payload, "", &order); err != nil {
		return nil, fmt.Errorf("create paypal order: %w", err)
	}

	return &order, nil
}

func (c *paypalClientImpl) GetOrder(ctx context.Context, orderID string) (*model.PaypalOrder, error) {
	var order model.PaypalOrder
	path := "/v2/checkout/orders/" + url.PathEscape(orderID)
	if err := c.do(ctx, http.MethodGet, path, nil, "", &order); err != nil {
		return nil, fmt.Errorf("get paypal order: %w", err)
	}

	return &order, nil
}

// CaptureOrder sends a PayPal-Request-Id derived from the order id, so a
// repeated capture is answered with the original result.
func (c *paypalClientImpl) CaptureOrder(ctx context.Context, orderID string) (*model.PaypalOrder, error) {
	var order model.PaypalOrder
	path := fmt.Sprintf("/v2/checkout/orders/%s/capture", url.PathEscape(orderID))
	if err := c.do(ctx, http.MethodPost, path, map[string]string{}, "capture-"+orderID, &order); err != nil {
		return nil, fmt.Errorf("paypal capture order: %w", err)
	}

	return &order, nil
}

func (c *paypalClientImpl) VerifyWebhookSignature(ctx context.Context, headers http.Header, body []byte) error {
	if c.webhookID == "" {
		return errors.New("paypal webhook id is not configured")
	}

	payload := map[string]interface{}{
		"auth_algo":         headers.Get("PAYPAL-AUTH-ALGO"),
		"cert_url":          headers.Get("PAYPAL-CERT-URL"),
		"transmission_id":   headers.Get("PAYPAL-TRANSMISSION-ID"),
		"transmission_sig":  headers.Get("PAYPAL-TRANSMISSION-SIG"),
		"transmission_time": headers.Get("PAYPAL-TRANSMISSION-TIME"),
		"webhook_id":        c.webhookID,
		"webhook_event":     json.RawMessage(body),
	}

	var res struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/notifications/verify-webhook-signature", payload, "", &res); err != nil {
		return fmt.Errorf("verify webhook signature: %w", err)
	}
	if res.VerificationStatus != "SUCCESS" {
		return ErrWebhookSignature
	}

	return nil
}

func (c *paypalClientImpl) do(ctx context.Context, method, path string, payload interface{}, requestID string, out interface{}) error {
	accessToken, err := c.getAccessToken(ctx)
	if err != nil {
		return fmt.Errorf("get paypal access token: %w", err)
	}

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal req payload: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseApiURL+path, body)
	if err != nil {
		return fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	if requestID != "" {
		req.Header.Set("PayPal-Request-Id", requestID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodePaypalError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode paypal response: %w", err)
	}
	return nil
}

func decodePaypalError(resp *http.Response) error {
	b, _ := io.ReadAll(resp.Body)

	var body struct {
		Name    string `json:"name"`
		Message string `json:"message"`
		Error   string `json:"error"`
		Details []struct {
			Issue string `json:"issue"`
		} `json:"details"`
	}
	apiErr := &PaypalAPIError{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(b, &body); err != nil {
		apiErr.Message = string(b)
		return apiErr
	}

	apiErr.Name = body.Name
	if apiErr.Name == "" {
		apiErr.Name = body.Error
	}
	apiErr.Message = body.Message
	for _, d := range body.Details {
		apiErr.Issues = append(apiErr.Issues, d.Issue)
	}
	return apiErr
}
