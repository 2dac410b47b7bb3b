package server

import (
	"context"
	"net/http"
	"sinew-backend/internal/config"
	"sinew-backend/internal/handler"
	"sinew-backend/internal/metrics"
	authmw "sinew-backend/internal/middleware"
	"sinew-backend/internal/service"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

type Services struct {
	Checkout    service.CheckoutService
	Paypal      service.PaypalService
	MercadoPago service.MercadoPagoService
	Download    service.DownloadService
	Course      service.CourseService
	User        service.UserService
	Tokens      service.TokenManager
}

type Server struct {
	echo               *echo.Echo
	cfg                *config.Config
	tokens             service.TokenManager
	gatherer           prometheus.Gatherer
	orderHandler       *handler.OrderHandler
	paypalHandler      *handler.PaypalHandler
	mercadoPagoHandler *handler.MercadoPagoHandler
	downloadHandler    *handler.DownloadHandler
	courseHandler      *handler.CourseHandler
	userHandler        *handler.UserHandler
}

func NewServer(cfg *config.Config, svcs *Services, gatherer prometheus.Gatherer) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(requestLoggerConfig()))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{cfg.FrontendURL},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	s := &Server{
		echo:               e,
		cfg:                cfg,
		tokens:             svcs.Tokens,
		gatherer:           gatherer,
		orderHandler:       handler.NewOrderHandler(svcs.Checkout),
		paypalHandler:      handler.NewPaypalHandler(svcs.Paypal),
		mercadoPagoHandler: handler.NewMercadoPagoHandler(svcs.MercadoPago, cfg.FrontendURL),
		downloadHandler:    handler.NewDownloadHandler(svcs.Download, cfg.Download.FilePath, cfg.Download.FileName),
		courseHandler:      handler.NewCourseHandler(svcs.Course),
		userHandler:        handler.NewUserHandler(svcs.User),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.GET("/metrics", echo.WrapHandler(metrics.Handler(s.gatherer)))

	api := s.echo.Group("/api")

	api.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// -------- checkout --------
	api.POST("/orders", s.orderHandler.CreateOrder)
	api.POST("/orders/:id/capture", s.paypalHandler.CaptureOrder, authmw.OptionalJWTAuth(s.tokens))

	// -------- provider callbacks --------
	api.GET("/payments/return", s.mercadoPagoHandler.Return)
	api.Match([]string{http.MethodGet, http.MethodPost}, "/payments/webhook", s.mercadoPagoHandler.Webhook)
	api.POST("/payments/webhook/paypal", s.paypalHandler.PayPalWebhook)

	// -------- entitlements --------
	api.GET("/download/:token", s.downloadHandler.Download)
	api.HEAD("/download/:token", s.downloadHandler.Check)

	courses := api.Group("/courses", authmw.JWTAuth(s.tokens))
	courses.POST("/:slug/buy-simulated", s.courseHandler.BuySimulated)
	courses.GET("/:slug/access", s.courseHandler.Access)

	// -------- accounts --------
	users := api.Group("/users", middleware.RateLimiterWithConfig(s.rateLimiterConfig()))
	users.POST("/register", s.userHandler.Register)
	users.POST("/login", s.userHandler.Login)
	users.POST("/forgot-password", s.userHandler.ForgotPassword)
	users.GET("/reset-password/:token", s.userHandler.ValidateResetToken)
	users.POST("/reset-password", s.userHandler.ResetPassword)
	users.GET("/profile", s.userHandler.Profile, authmw.JWTAuth(s.tokens))
}

func (s *Server) rateLimiterConfig() middleware.RateLimiterConfig {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(s.cfg.Auth.RateLimit),
		Burst:     s.cfg.Auth.RateBurst,
		ExpiresIn: 10 * time.Minute,
	})
	return middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return echo.NewHTTPError(http.StatusTooManyRequests, "too many requests, try again later")
		},
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
