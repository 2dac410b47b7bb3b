package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

const (
	ProviderPaypal      = "paypal"
	ProviderMercadoPago = "mercadopago"
	ProviderManual      = "manual"
)

// BookID is the sku of the single book product.
const BookID = "libro-001"

const coursePrefix = "course:"

type ProductKind string

const (
	ProductKindBook   ProductKind = "book"
	ProductKindCourse ProductKind = "course"
)

// ProductRef is either the book or one course identified by slug.
type ProductRef struct {
	kind ProductKind
	slug string
}

func BookRef() ProductRef {
	return ProductRef{kind: ProductKindBook}
}

func CourseRef(slug string) ProductRef {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return BookRef()
	}
	return ProductRef{kind: ProductKindCourse, slug: slug}
}

// ParseProductRef decodes the side-channel value carried through a provider
// ("course:<slug>"). Anything else is the book.
func ParseProductRef(s string) ProductRef {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, coursePrefix) {
		return CourseRef(strings.TrimPrefix(s, coursePrefix))
	}
	return BookRef()
}

// LooksLikeCourse reports whether s carries the course prefix.
func LooksLikeCourse(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), coursePrefix) &&
		len(strings.TrimSpace(s)) > len(coursePrefix)
}

func (r ProductRef) Kind() ProductKind {
	if r.kind == "" {
		return ProductKindBook
	}
	return r.kind
}

func (r ProductRef) IsCourse() bool { return r.kind == ProductKindCourse }

func (r ProductRef) Slug() string { return r.slug }

// ItemID is the provider-native encoding: "course:<slug>" or the book sku.
func (r ProductRef) ItemID() string {
	if r.IsCourse() {
		return coursePrefix + r.slug
	}
	return BookID
}

// ExternalReference is stored on Mercado Pago preferences.
func (r ProductRef) ExternalReference() string {
	if r.IsCourse() {
		return coursePrefix + r.slug
	}
	return "book:" + BookID
}

func (r ProductRef) String() string {
	if r.IsCourse() {
		return "course(" + r.slug + ")"
	}
	return "book"
}

// Cart describes what the buyer is about to pay for.
type Cart struct {
	Product    ProductRef
	Title      string
	UnitAmount decimal.Decimal
	Currency   string
	BuyerEmail string
	BuyerName  string
}

// CheckoutHandle is what a provider returns when an order or preference is created.
type CheckoutHandle struct {
	Provider   string
	ExternalID string
	Status     string
	ApproveURL string
}

// PaymentApproved is the provider-neutral event the fulfillment engine consumes.
type PaymentApproved struct {
	Provider        string
	ExternalOrderID string
	Amount          decimal.Decimal
	Currency        string
	BuyerEmail      string
	BuyerName       string
	Product         ProductRef
	Description     string
}

type NotificationResult struct {
	OK  bool
	Via string
	ID  string
}

type FulfillmentResult struct {
	PurchaseID string
	UserID     string
	Provider   string
	OrderID    string
	Product    ProductRef

	// Duplicate is set when the event had already been fulfilled.
	Duplicate bool

	DownloadToken string
	DownloadURL   string
	CourseURL     string
	RedirectURL   string

	Emailed      bool
	EmailVia     string
	EmailID      string
	EmailFailure string
}
