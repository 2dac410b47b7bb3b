package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sinew-backend/internal/client"
	"sinew-backend/internal/metrics"
	"sinew-backend/internal/model"
)

type NotificationKind string

const (
	NotificationPurchase     NotificationKind = "purchase"
	NotificationCourseAccess NotificationKind = "courseAccess"
	NotificationReset        NotificationKind = "reset"
)

var ErrNoMailTransport = errors.New("no mail transport configured")

type Notification struct {
	Kind        NotificationKind
	To          string
	Name        string
	DownloadURL string
	CourseTitle string
	CourseURL   string
	ResetURL    string
}

type NotificationService interface {
	// Send makes exactly one delivery attempt.
	Send(ctx context.Context, n *Notification) (*model.NotificationResult, error)
}

type notificationServiceImpl struct {
	primary  client.MailTransport
	fallback client.MailTransport
	metrics  metrics.Recorder
}

// NewNotificationService takes the API transport and the SMTP transport; either may be nil.
func NewNotificationService(primary, fallback client.MailTransport, recorder metrics.Recorder) NotificationService {
	return &notificationServiceImpl{
		primary:  primary,
		fallback: fallback,
		metrics:  recorder,
	}
}

func (s *notificationServiceImpl) transport() client.MailTransport {
	if s.primary != nil {
		return s.primary
	}
	return s.fallback
}

func (s *notificationServiceImpl) Send(ctx context.Context, n *Notification) (*model.NotificationResult, error) {
	tr := s.transport()
	if tr == nil {
		s.metrics.RecordNotification(string(n.Kind), "", false)
		return &model.NotificationResult{}, ErrNoMailTransport
	}

	subject, body, err := renderTemplate(n)
	if err != nil {
		return &model.NotificationResult{Via: tr.Name()}, err
	}

	id, err := tr.Send(ctx, &client.Email{
		To:      n.To,
		Subject: subject,
		HTML:    body,
		Text:    htmlToText(body),
	})
	if err != nil {
		s.metrics.RecordNotification(string(n.Kind), tr.Name(), false)
		return &model.NotificationResult{Via: tr.Name()}, fmt.Errorf("send %s email via %s: %w", n.Kind, tr.Name(), err)
	}

	s.metrics.RecordNotification(string(n.Kind), tr.Name(), true)
	slog.InfoContext(ctx, "email sent", "kind", n.Kind, "via", tr.Name(), "id", id)

	return &model.NotificationResult{OK: true, Via: tr.Name(), ID: id}, nil
}
