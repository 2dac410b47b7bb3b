package model

import (
	"encoding/json"
	"strings"
)

const (
	MPStatusApproved = "approved"

	MPTopicPayment       = "payment"
	MPTopicMerchantOrder = "merchant_order"
)

type MPItem struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Quantity    int     `json:"quantity"`
	CurrencyID  string  `json:"currency_id"`
	UnitPrice   float64 `json:"unit_price"`
}

type MPPayerRef struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

type MPBackURLs struct {
	Success string `json:"success"`
	Failure string `json:"failure"`
	Pending string `json:"pending"`
}

type MPPreferenceRequest struct {
	Items             []MPItem          `json:"items"`
	Payer             *MPPayerRef       `json:"payer,omitempty"`
	BackURLs          MPBackURLs        `json:"back_urls"`
	AutoReturn        string            `json:"auto_return,omitempty"`
	ExternalReference string            `json:"external_reference"`
	NotificationURL   string            `json:"notification_url,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

type MPPreference struct {
	ID                string          `json:"id"`
	InitPoint         string          `json:"init_point"`
	SandboxInitPoint  string          `json:"sandbox_init_point"`
	ExternalReference string          `json:"external_reference"`
	Items             []MPItem        `json:"items"`
	Metadata          json.RawMessage `json:"metadata"`
}

type MPIdentification struct {
	Type   string `json:"type"`
	Number string `json:"number"`
}

type MPPayer struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (p MPPayer) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

type MPAdditionalInfo struct {
	Items []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"items"`
	Payer MPPayer `json:"payer"`
}

// MPPayment is the subset of GET /v1/payments/{id} the adapter reads.
type MPPayment struct {
	ID                json.Number      `json:"id"`
	Status            string           `json:"status"`
	StatusDetail      string           `json:"status_detail"`
	TransactionAmount float64          `json:"transaction_amount"`
	CurrencyID        string           `json:"currency_id"`
	Description       string           `json:"description"`
	ExternalReference string           `json:"external_reference"`
	Payer             MPPayer          `json:"payer"`
	AdditionalInfo    MPAdditionalInfo `json:"additional_info"`
	Metadata          map[string]any   `json:"metadata"`
	DateCreated       string           `json:"date_created"`
}

// MetadataString looks up a metadata key in both camelCase and the snake_case
// form Mercado Pago rewrites keys to.
func (p *MPPayment) MetadataString(keys ...string) string {
	for _, k := range keys {
		if v, ok := p.Metadata[k].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

type MPMerchantOrderPayment struct {
	ID     json.Number `json:"id"`
	Status string      `json:"status"`
}

type MPMerchantOrder struct {
	ID                json.Number              `json:"id"`
	PreferenceID      string                   `json:"preference_id"`
	ExternalReference string                   `json:"external_reference"`
	Payments          []MPMerchantOrderPayment `json:"payments"`
}

type MPPaymentSearch struct {
	Paging struct {
		Total  int `json:"total"`
		Limit  int `json:"limit"`
		Offset int `json:"offset"`
	} `json:"paging"`
	Results []MPPayment `json:"results"`
}

// MPNotification is a webhook or IPN delivery reduced to topic and resource id.
type MPNotification struct {
	Topic     string
	ID        string
	RequestID string
	Signature string
}
