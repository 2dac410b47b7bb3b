package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sinew-backend/internal/metrics"
	"sinew-backend/internal/model"
	"sinew-backend/internal/repository"
	"time"
)

var (
	ErrTokenNotFound = errors.New("download token not found")
	ErrTokenUsed     = errors.New("download token already used")
	ErrTokenExpired  = errors.New("download token expired")
)

type DownloadService interface {
	// Check validates a token without changing it.
	Check(ctx context.Context, token string) (*model.DownloadToken, error)
	// Consume validates a token and marks it used. Only one caller can
	// consume a given token.
	Consume(ctx context.Context, token string) (*model.DownloadToken, error)
}

type downloadServiceImpl struct {
	downloadTokenRepo repository.DownloadTokenRepository
	metrics           metrics.Recorder
	now               func() time.Time
}

func NewDownloadService(downloadTokenRepo repository.DownloadTokenRepository, recorder metrics.Recorder) DownloadService {
	return &downloadServiceImpl{
		downloadTokenRepo: downloadTokenRepo,
		metrics:           recorder,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

func (s *downloadServiceImpl) Check(ctx context.Context, token string) (*model.DownloadToken, error) {
	dt, err := s.find(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := validate(dt, s.now()); err != nil {
		return nil, err
	}
	return dt, nil
}

func (s *downloadServiceImpl) Consume(ctx context.Context, token string) (*model.DownloadToken, error) {
	now := s.now()

	ok, err := s.downloadTokenRepo.Consume(ctx, token, now)
	if err != nil {
		s.metrics.RecordDownload("error")
		return nil, fmt.Errorf("consume download token: %w", err)
	}

	dt, err := s.find(ctx, token)
	if err != nil {
		return nil, err
	}
	if !ok {
		// nothing flipped: tell the caller why
		err := validate(dt, now)
		if err == nil {
			err = ErrTokenUsed
		}
		s.metrics.RecordDownload(downloadResult(err))
		return nil, err
	}

	s.metrics.RecordDownload("ok")
	slog.InfoContext(ctx, "download token consumed", "user_id", dt.UserID, "purchase_id", dt.PurchaseID)
	return dt, nil
}

func (s *downloadServiceImpl) find(ctx context.Context, token string) (*model.DownloadToken, error) {
	if token == "" {
		s.metrics.RecordDownload(downloadResult(ErrTokenNotFound))
		return nil, ErrTokenNotFound
	}
	dt, err := s.downloadTokenRepo.FindByToken(ctx, token)
	if errors.Is(err, repository.ErrNotFound) {
		s.metrics.RecordDownload(downloadResult(ErrTokenNotFound))
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find download token: %w", err)
	}
	return dt, nil
}

// validate checks expiry before use so an expired token always reports expired.
func validate(dt *model.DownloadToken, now time.Time) error {
	switch {
	case dt.Valid(now):
		return nil
	case !now.Before(dt.ExpiresAt):
		return ErrTokenExpired
	default:
		return ErrTokenUsed
	}
}

func downloadResult(err error) string {
	switch {
	case errors.Is(err, ErrTokenNotFound):
		return "not_found"
	case errors.Is(err, ErrTokenUsed):
		return "used"
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	default:
		return "error"
	}
}
