package model

import (
	"testing"
	"time"
)

func TestParseProductRef(t *testing.T) {
	tests := []struct {
		in       string
		course   bool
		slug     string
		itemID   string
		external string
	}{
		{"course:masterclass", true, "masterclass", "course:masterclass", "course:masterclass"},
		{"  course:pro-avanzado ", true, "pro-avanzado", "course:pro-avanzado", "course:pro-avanzado"},
		{"course:", false, "", BookID, "book:" + BookID},
		{"libro-001", false, "", BookID, "book:" + BookID},
		{"", false, "", BookID, "book:" + BookID},
	}

	for _, tt := range tests {
		ref := ParseProductRef(tt.in)
		if ref.IsCourse() != tt.course {
			t.Errorf("ParseProductRef(%q).IsCourse() = %v, want %v", tt.in, ref.IsCourse(), tt.course)
		}
		if ref.Slug() != tt.slug {
			t.Errorf("ParseProductRef(%q).Slug() = %q, want %q", tt.in, ref.Slug(), tt.slug)
		}
		if ref.ItemID() != tt.itemID {
			t.Errorf("ParseProductRef(%q).ItemID() = %q, want %q", tt.in, ref.ItemID(), tt.itemID)
		}
		if ref.ExternalReference() != tt.external {
			t.Errorf("ParseProductRef(%q).ExternalReference() = %q, want %q", tt.in, ref.ExternalReference(), tt.external)
		}
	}
}

func TestProductRef_ZeroValueIsBook(t *testing.T) {
	var ref ProductRef
	if ref.Kind() != ProductKindBook {
		t.Errorf("zero ProductRef kind = %q, want book", ref.Kind())
	}
	if CourseRef("  ") != BookRef() {
		t.Error("blank course slug should collapse to the book")
	}
	if CourseRef("masterclass") != CourseRef("masterclass") {
		t.Error("course refs with the same slug should be equal")
	}
}

func TestPurchase_Product(t *testing.T) {
	slug := "masterclass"
	if got := (&Purchase{CourseSlug: &slug}).Product(); got != CourseRef(slug) {
		t.Errorf("Product() = %v, want course", got)
	}
	if got := (&Purchase{}).Product(); got != BookRef() {
		t.Errorf("Product() = %v, want book", got)
	}
}

func TestDownloadToken_Valid(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name  string
		token DownloadToken
		want  bool
	}{
		{"fresh", DownloadToken{ExpiresAt: now.Add(time.Hour)}, true},
		{"used", DownloadToken{ExpiresAt: now.Add(time.Hour), Used: true}, false},
		{"expired", DownloadToken{ExpiresAt: now.Add(-time.Second)}, false},
		{"used and expired", DownloadToken{ExpiresAt: now.Add(-time.Second), Used: true}, false},
	}
	for _, tt := range tests {
		if got := tt.token.Valid(now); got != tt.want {
			t.Errorf("%s: Valid() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestUser_HasPassword(t *testing.T) {
	if (&User{PasswordHash: PlaceholderPasswordHash}).HasPassword() {
		t.Error("placeholder hash must not count as a password")
	}
	if !(&User{PasswordHash: "$2a$12$abc"}).HasPassword() {
		t.Error("bcrypt hash should count as a password")
	}
}

func TestPaypalOrder_Accessors(t *testing.T) {
	order := &PaypalOrder{
		Links: []PaypalLink{{Rel: "self", Href: "s"}, {Rel: "approve", Href: "https://paypal/approve"}},
		PurchaseUnits: []PurchaseUnit{{
			Amount: &Amount{Currency: "USD", Value: "35.00"},
			Payments: Payments{Captures: []Capture{{
				Status:   PaypalStatusCompleted,
				Amount:   Amount{Currency: "USD", Value: "35.00"},
				CustomID: "course:masterclass",
			}}},
		}},
	}

	if order.ApproveURL() != "https://paypal/approve" {
		t.Errorf("ApproveURL() = %q", order.ApproveURL())
	}
	if order.CustomID() != "course:masterclass" {
		t.Errorf("CustomID() = %q", order.CustomID())
	}
	if a := order.CapturedAmount(); a.Value != "35.00" || a.Currency != "USD" {
		t.Errorf("CapturedAmount() = %+v", a)
	}
}

func TestMPPayment_MetadataString(t *testing.T) {
	p := &MPPayment{Metadata: map[string]any{"course_slug": "masterclass", "n": 3}}
	if got := p.MetadataString("courseSlug", "course_slug"); got != "masterclass" {
		t.Errorf("MetadataString() = %q", got)
	}
	if got := p.MetadataString("n"); got != "" {
		t.Errorf("non-string metadata should be ignored, got %q", got)
	}
}
