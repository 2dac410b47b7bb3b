package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sinew-backend/internal/config"
	"time"

	"github.com/resend/resend-go/v2"
	"github.com/wneessen/go-mail"
)

const (
	MailViaResend = "resend"
	MailViaSMTP   = "smtp"
)

type Email struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// MailTransport delivers one email and returns the transport's message id.
type MailTransport interface {
	Name() string
	Send(ctx context.Context, email *Email) (string, error)
}

type resendTransportImpl struct {
	client *resend.Client
	from   string
}

// NewResendTransport talks to the Resend API at baseURL, or at the default
// host when baseURL is empty.
func NewResendTransport(apiKey, from, baseURL string) (MailTransport, error) {
	c := resend.NewClient(apiKey)
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("parse resend base url: %w", err)
		}
		c.BaseURL = u
	}
	return &resendTransportImpl{client: c, from: from}, nil
}

func (t *resendTransportImpl) Name() string {
	return MailViaResend
}

func (t *resendTransportImpl) Send(ctx context.Context, email *Email) (string, error) {
	req := &resend.SendEmailRequest{
		From:    t.from,
		To:      []string{email.To},
		Subject: email.Subject,
		Html:    email.HTML,
		Text:    email.Text,
	}

	resp, err := t.client.Emails.SendWithContext(ctx, req)
	if err != nil {
		return "", fmt.Errorf("resend send: %w", err)
	}

	return resp.Id, nil
}

type smtpTransportImpl struct {
	client *mail.Client
	from   string
}

func NewSMTPTransport(mailCfg *config.Mail) (MailTransport, error) {
	if mailCfg.SMTPHost == "" {
		return nil, errors.New("smtp host is empty")
	}

	opts := []mail.Option{
		mail.WithPort(mailCfg.SMTPPort),
		mail.WithTimeout(15 * time.Second),
	}
	if mailCfg.SMTPSecure {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSOpportunistic))
	}
	if mailCfg.SMTPUser != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(mailCfg.SMTPUser),
			mail.WithPassword(mailCfg.SMTPPass),
		)
	}

	c, err := mail.NewClient(mailCfg.SMTPHost, opts...)
	if err != nil {
		return nil, fmt.Errorf("new smtp client: %w", err)
	}

	return &smtpTransportImpl{
		client: c,
		from:   mailCfg.From,
	}, nil
}

func (t *smtpTransportImpl) Name() string {
	return MailViaSMTP
}

func (t *smtpTransportImpl) Send(ctx context.Context, email *Email) (string, error) {
	m, err := buildMessage(t.from, email)
	if err != nil {
		return "", err
	}

	if err := t.client.DialAndSendWithContext(ctx, m); err != nil {
		return "", fmt.Errorf("smtp send: %w", err)
	}

	return m.GetMessageID(), nil
}

func buildMessage(from string, email *Email) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(from); err != nil {
		return nil, fmt.Errorf("set from: %w", err)
	}
	if err := m.To(email.To); err != nil {
		return nil, fmt.Errorf("set to: %w", err)
	}
	m.Subject(email.Subject)
	m.SetMessageID()
	m.SetBodyString(mail.TypeTextHTML, email.HTML)
	if email.Text != "" {
		m.AddAlternativeString(mail.TypeTextPlain, email.Text)
	}

	return m, nil
}

// NewMailTransports returns the configured transports; either may be nil.
func NewMailTransports(mailCfg *config.Mail) (primary MailTransport, fallback MailTransport, err error) {
	if mailCfg.ResendAPIKey != "" {
		primary, err = NewResendTransport(mailCfg.ResendAPIKey, mailCfg.From, mailCfg.ResendBaseURL)
		if err != nil {
			return nil, nil, err
		}
	}
	if mailCfg.SMTPHost != "" {
		fallback, err = NewSMTPTransport(mailCfg)
		if err != nil {
			return nil, nil, err
		}
	}
	return primary, fallback, nil
}
