package handler

import (
	"net/http"
	"sinew-backend/internal/dto"
	"sinew-backend/internal/middleware"
	"sinew-backend/internal/service"

	"github.com/labstack/echo/v4"
)

type CourseHandler struct {
	courseService service.CourseService
}

func NewCourseHandler(courseService service.CourseService) *CourseHandler {
	return &CourseHandler{
		courseService: courseService,
	}
}

func (h *CourseHandler) BuySimulated(c echo.Context) error {
	ctx := c.Request().Context()

	result, err := h.courseService.GrantSimulated(ctx, middleware.UserID(c), c.Param("slug"))
	if err != nil {
		return toHTTPError(c, err)
	}

	return c.JSON(http.StatusOK, dto.NewFulfillmentResponse(result))
}

func (h *CourseHandler) Access(c echo.Context) error {
	ctx := c.Request().Context()

	granted, err := h.courseService.HasAccess(ctx, middleware.UserID(c), c.Param("slug"))
	if err != nil {
		return toHTTPError(c, err)
	}

	return c.JSON(http.StatusOK, &dto.CourseAccessResponse{Granted: granted})
}
