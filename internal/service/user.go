package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sinew-backend/internal/model"
	"sinew-backend/internal/repository"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	bcryptCost        = 12
	minPasswordLength = 8
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrWeakPassword       = errors.New("password must have at least 8 characters, a letter and a digit")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")
)

type AuthResult struct {
	Token string
	User  *model.User
}

type UserService interface {
	Register(ctx context.Context, name, email, password string) (*AuthResult, error)
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	// ForgotPassword behaves the same whether or not the account exists.
	ForgotPassword(ctx context.Context, email string) error
	ValidateResetToken(ctx context.Context, token string) (bool, error)
	ResetPassword(ctx context.Context, token, password string) error
	Profile(ctx context.Context, userID string) (*Profile, error)
}

// Profile is an account with everything it has bought and every course it
// can open.
type Profile struct {
	User      *model.User
	Purchases []*model.Purchase
	Courses   []*model.CourseAccess
}

type userServiceImpl struct {
	db         *gorm.DB
	userRepo   repository.UserRepository
	resetRepo  repository.PasswordResetRepository
	purchases  repository.PurchaseRepository
	courses    repository.CourseAccessRepository
	tokens     TokenManager
	notifier   NotificationService
	resetTTL   time.Duration
	resetURL   string
	bcryptCost int
	now        func() time.Time
}

func NewUserService(
	db *gorm.DB,
	userRepo repository.UserRepository,
	resetRepo repository.PasswordResetRepository,
	purchaseRepo repository.PurchaseRepository,
	courseAccessRepo repository.CourseAccessRepository,
	tokens TokenManager,
	notifier NotificationService,
	frontendURL string,
	resetTTL time.Duration,
) UserService {
	return &userServiceImpl{
		db:         db,
		userRepo:   userRepo,
		resetRepo:  resetRepo,
		purchases:  purchaseRepo,
		courses:    courseAccessRepo,
		tokens:     tokens,
		notifier:   notifier,
		resetTTL:   resetTTL,
		resetURL:   frontendURL + "/reset-password",
		bcryptCost: bcryptCost,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *userServiceImpl) Register(ctx context.Context, name, email, password string) (*AuthResult, error) {
	email = NormalizeEmail(email)
	if !ValidEmail(email) {
		return nil, ErrInvalidEmail
	}
	if err := checkPassword(password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := s.userRepo.Create(ctx, nil, user); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	slog.InfoContext(ctx, "user registered", "user_id", user.ID)
	return s.authenticate(user)
}

func (s *userServiceImpl) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.userRepo.FindByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}

	// accounts created by a purchase have no password until reset
	if !user.HasPassword() {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.authenticate(user)
}

func (s *userServiceImpl) authenticate(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, User: user}, nil
}

func (s *userServiceImpl) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.userRepo.FindByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("find user: %w", err)
	}

	raw, err := newToken()
	if err != nil {
		return err
	}
	if err := s.resetRepo.Create(ctx, &model.PasswordReset{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: hashResetToken(raw),
		ExpiresAt: s.now().Add(s.resetTTL),
	}); err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}

	_, err = s.notifier.Send(ctx, &Notification{
		Kind:     NotificationReset,
		To:       user.Email,
		Name:     user.Name,
		ResetURL: s.resetURL + "?token=" + url.QueryEscape(raw),
	})
	if err != nil {
		slog.ErrorContext(ctx, "reset email not sent", "user_id", user.ID, "error", err)
	}
	return nil
}

func (s *userServiceImpl) ValidateResetToken(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	_, err := s.resetRepo.FindValid(ctx, nil, hashResetToken(token), s.now())
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("find password reset: %w", err)
	}
	return true, nil
}

func (s *userServiceImpl) ResetPassword(ctx context.Context, token, password string) error {
	if token == "" {
		return ErrInvalidResetToken
	}
	if err := checkPassword(password); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		reset, err := s.resetRepo.FindValid(ctx, tx, hashResetToken(token), now)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidResetToken
		}
		if err != nil {
			return fmt.Errorf("find password reset: %w", err)
		}

		// the conditional update decides between concurrent resets with the same token
		consumed, err := s.resetRepo.Consume(ctx, tx, reset.ID, now)
		if err != nil {
			return fmt.Errorf("consume password reset: %w", err)
		}
		if !consumed {
			return ErrInvalidResetToken
		}

		if err := s.userRepo.UpdatePassword(ctx, tx, reset.UserID, string(hash)); err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		if err := s.resetRepo.MarkUsed(ctx, tx, reset.UserID); err != nil {
			return fmt.Errorf("mark reset used: %w", err)
		}

		slog.InfoContext(ctx, "password reset", "user_id", reset.UserID)
		return nil
	})
}

func (s *userServiceImpl) Profile(ctx context.Context, userID string) (*Profile, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}

	purchases, err := s.purchases.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	courses, err := s.courses.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list course access: %w", err)
	}

	return &Profile{User: user, Purchases: purchases, Courses: courses}, nil
}

func checkPassword(password string) error {
	if len([]rune(password)) < minPasswordLength {
		return ErrWeakPassword
	}
	var letter, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter || !digit {
		return ErrWeakPassword
	}
	return nil
}

func hashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
