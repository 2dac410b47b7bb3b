package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

type Config struct {
	Environment Environment
	Log         Log
	HTTP        HTTPServer
	BaseURL     string `env:"BASE_URL" envDefault:"http://localhost:8080"`
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`

	// bounded timeout applied to every outbound payment provider call
	ProviderTimeout time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"10s"`

	Database    Database    `envPrefix:"DATABASE_"`
	Auth        Auth        `envPrefix:"AUTH_"`
	Paypal      Paypal      `envPrefix:"PAYPAL_"`
	MercadoPago MercadoPago `envPrefix:"MP_"`
	Mail        Mail        `envPrefix:"MAIL_"`
	Download    Download    `envPrefix:"DOWNLOAD_"`
	Fulfillment Fulfillment `envPrefix:"FULFILLMENT_"`
	Reconcile   Reconcile   `envPrefix:"RECONCILE_"`
}

type Environment struct {
	Name string `env:"ENVIRONMENT" envDefault:"development"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type HTTPServer struct {
	Host string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port string `env:"HTTP_PORT" envDefault:"8080"`
}

type Database struct {
	Driver      string `env:"DRIVER" envDefault:"mysql"` // mysql, postgres, sqlite
	URL         string `env:"URL"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`
	MaxOpenConn int    `env:"MAX_OPEN_CONNS" envDefault:"50"`
	MaxIdleConn int    `env:"MAX_IDLE_CONNS" envDefault:"10"`
}

type Auth struct {
	JWTSecret string        `env:"JWT_SECRET"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" envDefault:"168h"`
	ResetTTL  time.Duration `env:"RESET_TTL" envDefault:"1h"`
	// requests per second allowed per client IP on account routes
	RateLimit float64 `env:"RATE_LIMIT" envDefault:"1"`
	RateBurst int     `env:"RATE_BURST" envDefault:"5"`
}

type Paypal struct {
	BaseApiURL   string `env:"BASE_API_URL" envDefault:"https://api-m.sandbox.paypal.com"`
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	WebhookID    string `env:"WEBHOOK_ID"`
	BrandName    string `env:"BRAND_NAME" envDefault:"SINEW"`
}

type MercadoPago struct {
	BaseApiURL      string `env:"BASE_API_URL" envDefault:"https://api.mercadopago.com"`
	AccessToken     string `env:"ACCESS_TOKEN"`
	WebhookSecret   string `env:"WEBHOOK_SECRET"`
	Sandbox         bool   `env:"SANDBOX" envDefault:"false"`
	DefaultCurrency string `env:"DEFAULT_CURRENCY" envDefault:"ARS"`
}

type Mail struct {
	From         string `env:"FROM" envDefault:"SINEW <no-reply@sineworg.com>"`
	ResendAPIKey string `env:"RESEND_API_KEY"`
	// empty uses the public Resend API
	ResendBaseURL string `env:"RESEND_BASE_URL"`
	SMTPHost      string `env:"SMTP_HOST"`
	SMTPPort      int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser      string `env:"SMTP_USER"`
	SMTPPass      string `env:"SMTP_PASS"`
	// implicit TLS (port 465 style) instead of STARTTLS
	SMTPSecure bool `env:"SMTP_SECURE" envDefault:"false"`
}

type Download struct {
	FilePath string        `env:"FILE_PATH" envDefault:"protected-pdfs/libro.pdf"`
	FileName string        `env:"FILE_NAME" envDefault:"libro.pdf"`
	TokenTTL time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
}

type Fulfillment struct {
	PlaceholderDomain string        `env:"PLACEHOLDER_DOMAIN" envDefault:"placeholder.invalid"`
	NotifyTimeout     time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"15s"`
}

type Reconcile struct {
	// zero disables the background sweep in serve
	Interval time.Duration `env:"INTERVAL" envDefault:"0s"`
	Window   time.Duration `env:"WINDOW" envDefault:"48h"`
}

// Load parses the process environment into a Config and checks the values
// every command depends on.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.Database.Driver)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT must be positive")
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	c.FrontendURL = strings.TrimRight(c.FrontendURL, "/")
	return nil
}

func (c *Config) Address() string {
	return c.HTTP.Host + ":" + c.HTTP.Port
}

func (c *Config) IsProduction() bool {
	return c.Environment.Name == "production"
}
