package model

import "strings"

const (
	PaypalStatusApproved  = "APPROVED"
	PaypalStatusCompleted = "COMPLETED"

	PaypalEventCaptureCompleted = "PAYMENT.CAPTURE.COMPLETED"
)

type PayerName struct {
	GivenName string `json:"given_name"`
	Surname   string `json:"surname"`
}

type Payer struct {
	PayerID string    `json:"payer_id"`
	Email   string    `json:"email_address"`
	Name    PayerName `json:"name"`
}

func (p Payer) FullName() string {
	return strings.TrimSpace(p.Name.GivenName + " " + p.Name.Surname)
}

type PaypalLink struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

type Amount struct {
	Currency string `json:"currency_code"`
	Value    string `json:"value"`
}

type Capture struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	CreateTime string `json:"create_time"`
	Final      bool   `json:"final_capture"`
	Amount     Amount `json:"amount"`
	CustomID   string `json:"custom_id"`
}

type Payments struct {
	Captures []Capture `json:"captures"`
}

type PurchaseUnit struct {
	ReferenceID string   `json:"reference_id"`
	CustomID    string   `json:"custom_id"`
	Description string   `json:"description"`
	Amount      *Amount  `json:"amount,omitempty"`
	Payments    Payments `json:"payments"`
}

// PaypalOrder is the body of GET /v2/checkout/orders/{id} and of the capture call.
type PaypalOrder struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	Links         []PaypalLink   `json:"links"`
	Payer         Payer          `json:"payer"`
	PurchaseUnits []PurchaseUnit `json:"purchase_units"`
}

// CustomID returns the first custom_id found on the order or its captures.
func (o *PaypalOrder) CustomID() string {
	for _, pu := range o.PurchaseUnits {
		if pu.CustomID != "" {
			return pu.CustomID
		}
		for _, c := range pu.Payments.Captures {
			if c.CustomID != "" {
				return c.CustomID
			}
		}
	}
	return ""
}

// CapturedAmount prefers the first capture amount, falling back to the unit amount.
func (o *PaypalOrder) CapturedAmount() Amount {
	for _, pu := range o.PurchaseUnits {
		for _, c := range pu.Payments.Captures {
			if c.Amount.Value != "" {
				return c.Amount
			}
		}
	}
	for _, pu := range o.PurchaseUnits {
		if pu.Amount != nil {
			return *pu.Amount
		}
	}
	return Amount{}
}

func (o *PaypalOrder) Description() string {
	for _, pu := range o.PurchaseUnits {
		if pu.Description != "" {
			return pu.Description
		}
	}
	return ""
}

func (o *PaypalOrder) ApproveURL() string {
	for _, link := range o.Links {
		if link.Rel == "approve" || link.Rel == "payer-action" {
			return link.Href
		}
	}
	return ""
}

type RelatedIDs struct {
	OrderID string `json:"order_id"`
}

type SupplementaryData struct {
	RelatedIDs RelatedIDs `json:"related_ids"`
}

type PaypalResource struct {
	ID                string            `json:"id"`
	Status            string            `json:"status"`
	CustomID          string            `json:"custom_id"`
	Amount            Amount            `json:"amount"`
	SupplementaryData SupplementaryData `json:"supplementary_data"`
}

type PayPalWebhookEvent struct {
	ID           string         `json:"id"`
	EventType    string         `json:"event_type"`
	ResourceType string         `json:"resource_type"`
	CreateTime   string         `json:"create_time"`
	Resource     PaypalResource `json:"resource"`
}
