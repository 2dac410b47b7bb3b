package dto

import (
	"sinew-backend/internal/model"
	"time"

	"github.com/shopspring/decimal"
)

type CreateOrderRequest struct {
	Provider    string           `json:"provider"`
	ProductType string           `json:"productType"`
	Slug        string           `json:"slug"`
	Title       string           `json:"title"`
	UnitAmount  *decimal.Decimal `json:"unitAmount"`
	Currency    string           `json:"currency"`
	BuyerEmail  string           `json:"buyerEmail"`
	BuyerName   string           `json:"buyerName"`
}

type CheckoutResponse struct {
	Provider   string `json:"provider"`
	ID         string `json:"id"`
	Status     string `json:"status"`
	ApproveURL string `json:"approveUrl"`
}

func NewCheckoutResponse(h *model.CheckoutHandle) *CheckoutResponse {
	return &CheckoutResponse{
		Provider:   h.Provider,
		ID:         h.ExternalID,
		Status:     h.Status,
		ApproveURL: h.ApproveURL,
	}
}

type CaptureRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type FulfillmentResponse struct {
	Success     bool   `json:"success"`
	Duplicate   bool   `json:"duplicate"`
	OrderID     string `json:"orderId"`
	RedirectTo  string `json:"redirectTo"`
	DownloadURL string `json:"downloadUrl,omitempty"`
	CourseURL   string `json:"courseUrl,omitempty"`
	Emailed     bool   `json:"emailed"`
	EmailError  string `json:"emailError,omitempty"`
}

func NewFulfillmentResponse(r *model.FulfillmentResult) *FulfillmentResponse {
	return &FulfillmentResponse{
		Success:     true,
		Duplicate:   r.Duplicate,
		OrderID:     r.OrderID,
		RedirectTo:  r.RedirectURL,
		DownloadURL: r.DownloadURL,
		CourseURL:   r.CourseURL,
		Emailed:     r.Emailed,
		EmailError:  r.EmailFailure,
	}
}

type WebhookResponse struct {
	Received bool `json:"received"`
}

// MPWebhookBody covers both the webhook and the legacy IPN body shapes.
type MPWebhookBody struct {
	Type     string `json:"type"`
	Topic    string `json:"topic"`
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Data     struct {
		ID string `json:"id"`
	} `json:"data"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UserResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type AuthResponse struct {
	Token string        `json:"token"`
	User  *UserResponse `json:"user"`
}

func NewAuthResponse(token string, u *model.User) *AuthResponse {
	return &AuthResponse{
		Token: token,
		User:  &UserResponse{ID: u.ID, Name: u.Name, Email: u.Email},
	}
}

type PurchaseResponse struct {
	ID           string          `json:"id"`
	Provider     string          `json:"provider"`
	OrderID      string          `json:"orderId"`
	ProductType  string          `json:"productType"`
	Slug         string          `json:"slug,omitempty"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency"`
	Status       string          `json:"status"`
	PurchaseDate time.Time       `json:"purchaseDate"`
}

type CourseGrantResponse struct {
	Slug      string    `json:"slug"`
	GrantedBy string    `json:"grantedBy"`
	GrantedAt time.Time `json:"grantedAt"`
}

type ProfileResponse struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Email     string                 `json:"email"`
	CreatedAt time.Time              `json:"createdAt"`
	UpdatedAt time.Time              `json:"updatedAt"`
	Purchases []*PurchaseResponse    `json:"purchases"`
	Courses   []*CourseGrantResponse `json:"courses"`
}

func NewProfileResponse(u *model.User, purchases []*model.Purchase, courses []*model.CourseAccess) *ProfileResponse {
	res := &ProfileResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
		Purchases: make([]*PurchaseResponse, 0, len(purchases)),
		Courses:   make([]*CourseGrantResponse, 0, len(courses)),
	}
	for _, p := range purchases {
		ref := p.Product()
		res.Purchases = append(res.Purchases, &PurchaseResponse{
			ID:           p.ID,
			Provider:     p.Provider,
			OrderID:      p.OrderID,
			ProductType:  string(ref.Kind()),
			Slug:         ref.Slug(),
			Price:        p.Price,
			Currency:     p.Currency,
			Status:       p.Status,
			PurchaseDate: p.PurchaseDate,
		})
	}
	for _, c := range courses {
		res.Courses = append(res.Courses, &CourseGrantResponse{
			Slug:      c.CourseSlug,
			GrantedBy: string(c.GrantedBy),
			GrantedAt: c.GrantedAt,
		})
	}
	return res
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type ResetTokenResponse struct {
	Valid bool `json:"valid"`
}

type CourseAccessResponse struct {
	Granted bool `json:"granted"`
}

type MessageResponse struct {
	Message string `json:"message"`
}
