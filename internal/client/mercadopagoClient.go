package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sinew-backend/internal/config"
	"sinew-backend/internal/model"
	"strconv"
	"strings"
	"time"
)

type MercadoPagoClient interface {
	CreatePreference(ctx context.Context, pref *model.MPPreferenceRequest) (*model.MPPreference, error)
	GetPreference(ctx context.Context, preferenceID string) (*model.MPPreference, error)
	GetPayment(ctx context.Context, paymentID string) (*model.MPPayment, error)
	GetMerchantOrder(ctx context.Context, merchantOrderID string) (*model.MPMerchantOrder, error)
	SearchApprovedPayments(ctx context.Context, since, until time.Time, offset, limit int) (*model.MPPaymentSearch, error)
}

// MercadoPagoAPIError is a non-2xx answer from the Mercado Pago API.
type MercadoPagoAPIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *MercadoPagoAPIError) Error() string {
	return fmt.Sprintf("mercadopago error %d %s: %s", e.StatusCode, e.Code, e.Message)
}

func IsMercadoPagoNotFound(err error) bool {
	var apiErr *MercadoPagoAPIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

type mercadoPagoClientImpl struct {
	httpClient  *http.Client
	baseApiURL  string
	accessToken string
}

func NewMercadoPagoClient(mpCfg *config.MercadoPago, timeout time.Duration) MercadoPagoClient {
	return &mercadoPagoClientImpl{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseApiURL:  strings.TrimRight(mpCfg.BaseApiURL, "/"),
		accessToken: mpCfg.AccessToken,
	}
}

func (c *mercadoPagoClientImpl) CreatePreference(ctx context.Context, pref *model.MPPreferenceRequest) (*model.MPPreference, error) {
	var out model.MPPreference
	if err := c.do(ctx, http.MethodPost, "/checkout/preferences", pref, &out); err != nil {
		return nil, fmt.Errorf("create mercadopago preference: %w", err)
	}

	return &out, nil
}

func (c *mercadoPagoClientImpl) GetPreference(ctx context.Context, preferenceID string) (*model.MPPreference, error) {
	var out model.MPPreference
	if err := c.do(ctx, http.MethodGet, "/checkout/preferences/"+url.PathEscape(preferenceID), nil, &out); err != nil {
		return nil, fmt.Errorf("get mercadopago preference: %w", err)
	}

	return &out, nil
}

func (c *mercadoPagoClientImpl) GetPayment(ctx context.Context, paymentID string) (*model.MPPayment, error) {
	var out model.MPPayment
	if err := c.do(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(paymentID), nil, &out); err != nil {
		return nil, fmt.Errorf("get mercadopago payment: %w", err)
	}

	return &out, nil
}

func (c *mercadoPagoClientImpl) GetMerchantOrder(ctx context.Context, merchantOrderID string) (*model.MPMerchantOrder, error) {
	var out model.MPMerchantOrder
	if err := c.do(ctx, http.MethodGet, "/merchant_orders/"+url.PathEscape(merchantOrderID), nil, &out); err != nil {
		return nil, fmt.Errorf("get mercadopago merchant order: %w", err)
	}

	return &out, nil
}

func (c *mercadoPagoClientImpl) SearchApprovedPayments(ctx context.Context, since, until time.Time, offset, limit int) (*model.MPPaymentSearch, error) {
	q := url.Values{}
	q.Set("status", model.MPStatusApproved)
	q.Set("range", "date_created")
	q.Set("begin_date", since.UTC().Format("2006-01-02T15:04:05.000Z07:00"))
	q.Set("end_date", until.UTC().Format("2006-01-02T15:04:05.000Z07:00"))
	q.Set("sort", "date_created")
	q.Set("criteria", "asc")
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))

	var out model.MPPaymentSearch
	if err := c.do(ctx, http.MethodGet, "/v1/payments/search?"+q.Encode(), nil, &out); err != nil {
		return nil, fmt.Errorf("search mercadopago payments: %w", err)
	}

	return &out, nil
}

func (c *mercadoPagoClientImpl) do(ctx context.Context, method, path string, payload interface{}, out interface{}) error {
	if c.accessToken == "" {
		return errors.New("mercadopago access token is not configured")
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
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &MercadoPagoAPIError{StatusCode: resp.StatusCode, Message: string(b)}
		var e struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		if json.Unmarshal(b, &e) == nil && e.Message != "" {
			apiErr.Message = e.Message
			apiErr.Code = e.Error
		}
		return apiErr
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode mercadopago response: %w", err)
	}
	return nil
}
