package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"sinew-backend/internal/model"
	"sinew-backend/internal/repository"
	"strings"

	"github.com/google/uuid"
)

type IdentityService interface {
	Resolve(ctx context.Context, in *IdentityInput) (*Identity, error)
}

type IdentityInput struct {
	Email string
	Name  string
	// used to build a placeholder address when Email is unusable
	Provider   string
	ExternalID string
}

type Identity struct {
	User        *model.User
	Created     bool
	Placeholder bool
}

type identityServiceImpl struct {
	userRepo          repository.UserRepository
	placeholderDomain string
}

func NewIdentityService(userRepo repository.UserRepository, placeholderDomain string) IdentityService {
	return &identityServiceImpl{
		userRepo:          userRepo,
		placeholderDomain: placeholderDomain,
	}
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func ValidEmail(email string) bool {
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func PlaceholderEmail(provider, externalID, domain string) string {
	return NormalizeEmail(fmt.Sprintf("%s+%s@%s", provider, externalID, domain))
}

func (s *identityServiceImpl) IsPlaceholder(email string) bool {
	return strings.HasSuffix(email, "@"+s.placeholderDomain)
}

func (s *identityServiceImpl) Resolve(ctx context.Context, in *IdentityInput) (*Identity, error) {
	email := NormalizeEmail(in.Email)
	placeholder := false
	if !ValidEmail(email) {
		if in.ExternalID == "" {
			return nil, errors.New("buyer email missing and no external id to anchor a placeholder")
		}
		email = PlaceholderEmail(in.Provider, in.ExternalID, s.placeholderDomain)
		placeholder = true
		slog.WarnContext(ctx, "buyer email unusable, using placeholder identity",
			"provider", in.Provider, "external_id", in.ExternalID)
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err == nil {
		return &Identity{User: user, Placeholder: placeholder || s.IsPlaceholder(email)}, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("find user by email: %w", err)
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}
	user = &model.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: model.PlaceholderPasswordHash,
	}

	err = s.userRepo.Create(ctx, nil, user)
	if errors.Is(err, repository.ErrUserExists) {
		// lost a race against a concurrent fulfillment for the same buyer
		existing, findErr := s.userRepo.FindByEmail(ctx, email)
		if findErr != nil {
			return nil, fmt.Errorf("find user after duplicate create: %w", findErr)
		}
		return &Identity{User: existing, Placeholder: placeholder}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	slog.InfoContext(ctx, "user created from payment", "user_id", user.ID, "provider", in.Provider)
	return &Identity{User: user, Created: true, Placeholder: placeholder}, nil
}
