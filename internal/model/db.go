package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PlaceholderPasswordHash marks accounts created from a payment. It is not a
// bcrypt hash, so no password ever matches it.
const PlaceholderPasswordHash = "!purchase-placeholder"

type User struct {
	ID           string `gorm:"primaryKey;size:36"`
	Name         string `gorm:"size:128"`
	Email        string `gorm:"size:255;uniqueIndex;not null"` // lowercased, trimmed
	PasswordHash string `gorm:"size:255;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u *User) HasPassword() bool {
	return u.PasswordHash != "" && u.PasswordHash != PlaceholderPasswordHash
}

type Purchase struct {
	ID     string  `gorm:"primaryKey;size:36"`
	UserID string  `gorm:"size:36;index;not null"`
	BookID *string `gorm:"size:64"`

	Price    decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Currency string          `gorm:"size:8;not null"`
	Status   string          `gorm:"size:32;not null"` // COMPLETED

	// (provider, order_id) is the idempotency boundary
	Provider string `gorm:"size:32;not null;uniqueIndex:ux_purchases_provider_order,priority:1"`
	OrderID  string `gorm:"size:128;not null;uniqueIndex:ux_purchases_provider_order,priority:2"`

	CourseSlug  *string `gorm:"size:128;index"`
	Description string  `gorm:"size:255"`

	PurchaseDate time.Time `gorm:"not null"`
	CreatedAt    time.Time
}

// Product returns the entitlement this purchase granted.
func (p *Purchase) Product() ProductRef {
	if p.CourseSlug != nil && *p.CourseSlug != "" {
		return CourseRef(*p.CourseSlug)
	}
	return BookRef()
}

type DownloadToken struct {
	ID         string    `gorm:"primaryKey;size:36"`
	UserID     string    `gorm:"size:36;index;not null"`
	PurchaseID string    `gorm:"size:36;index"`
	Token      string    `gorm:"size:128;uniqueIndex;not null"`
	ExpiresAt  time.Time `gorm:"not null;index"`
	Used       bool      `gorm:"not null;default:false"`
	UsedAt     *time.Time
	CreatedAt  time.Time
}

// Valid reports whether the token can still be consumed at now.
func (t *DownloadToken) Valid(now time.Time) bool {
	return !t.Used && now.Before(t.ExpiresAt)
}

type GrantedBy string

const (
	GrantedByPurchase    GrantedBy = "purchase"
	GrantedBySimulated   GrantedBy = "simulated"
	GrantedByPaypal      GrantedBy = "paypal"
	GrantedByMercadoPago GrantedBy = "mercadopago"
)

type CourseAccess struct {
	ID         string    `gorm:"primaryKey;size:36"`
	UserID     string    `gorm:"size:36;not null;uniqueIndex:ux_course_access_user_course,priority:1"`
	CourseSlug string    `gorm:"size:128;not null;uniqueIndex:ux_course_access_user_course,priority:2"`
	Provider   string    `gorm:"size:32;not null"`
	GrantedBy  GrantedBy `gorm:"size:32;not null"`
	GrantedAt  time.Time `gorm:"not null"`
	Notes      string    `gorm:"size:255"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (CourseAccess) TableName() string {
	return "course_access"
}

type PasswordReset struct {
	ID        string    `gorm:"primaryKey;size:36"`
	UserID    string    `gorm:"size:36;index;not null"`
	TokenHash string    `gorm:"size:64;uniqueIndex;not null"` // sha256 hex of the emailed token
	ExpiresAt time.Time `gorm:"not null"`
	Used      bool      `gorm:"not null;default:false"`
	CreatedAt time.Time
}

type Product struct {
	ID       string          `gorm:"primaryKey;size:128;not null"` // book sku or course slug
	Kind     ProductKind     `gorm:"size:16;index;not null"`
	Title    string          `gorm:"size:255;not null"`
	Price    decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Currency string          `gorm:"size:8;not null"`
	Level    string          `gorm:"size:16"` // free, pro
}

func (p *Product) Ref() ProductRef {
	if p.Kind == ProductKindCourse {
		return CourseRef(p.ID)
	}
	return BookRef()
}

type WebhookEvent struct {
	ID          uint   `gorm:"primaryKey"`
	Provider    string `gorm:"size:32;not null;uniqueIndex:ux_webhook_events_provider_event,priority:1"`
	EventID     string `gorm:"size:128;not null;uniqueIndex:ux_webhook_events_provider_event,priority:2"`
	EventType   string `gorm:"size:64;index"`
	ProcessedAt time.Time
	CreatedAt   time.Time
}
