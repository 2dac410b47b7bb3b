package handler

import (
	"net/http"
	"sinew-backend/internal/dto"
	"sinew-backend/internal/middleware"
	"sinew-backend/internal/service"

	"github.com/labstack/echo/v4"
)

const forgotPasswordMessage = "Si el correo está registrado, te enviamos un enlace para restablecer la contraseña."

type UserHandler struct {
	userService service.UserService
}

func NewUserHandler(userService service.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

func (h *UserHandler) Register(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.RegisterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	res, err := h.userService.Register(ctx, req.Name, req.Email, req.Password)
	if err != nil {
		return toHTTPError(c, err)
	}

	return c.JSON(http.StatusCreated, dto.NewAuthResponse(res.Token, res.User))
}

func (h *UserHandler) Login(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	res, err := h.userService.Login(ctx, req.Email, req.Password)
	if err != nil {
		return toHTTPError(c, err)
	}

	return c.JSON(http.StatusOK, dto.NewAuthResponse(res.Token, res.User))
}

func (h *UserHandler) ForgotPassword(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.ForgotPasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	if err := h.userService.ForgotPassword(ctx, req.Email); err != nil {
		return toHTTPError(c, err)
	}

	return c.JSON(http.StatusOK, &dto.MessageResponse{Message: forgotPasswordMessage})
}

func (h *UserHandler) ValidateResetToken(c echo.Context) error {
	ctx := c.Request().Context()

	valid, err := h.userService.ValidateResetToken(ctx, c.Param("token"))
	if err != nil {
		return toHTTPError(c, err)
	}

	return c.JSON(http.StatusOK, &dto.ResetTokenResponse{Valid: valid})
}

func (h *UserHandler) ResetPassword(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.ResetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	if err := h.userService.ResetPassword(ctx, req.Token, req.Password); err != nil {
		return toHTTPError(c, err)
	}

	return c.JSON(http.StatusOK, &dto.MessageResponse{Message: "Contraseña actualizada."})
}

func (h *UserHandler) Profile(c echo.Context) error {
	ctx := c.Request().Context()

	profile, err := h.userService.Profile(ctx, middleware.UserID(c))
	if err != nil {
		return toHTTPError(c, err)
	}

	return c.JSON(http.StatusOK, dto.NewProfileResponse(profile.User, profile.Purchases, profile.Courses))
}
