package handler

import (
	"log/slog"
	"net/http"
	"os"
	"sinew-backend/internal/service"

	"github.com/labstack/echo/v4"
)

type DownloadHandler struct {
	downloadService service.DownloadService
	filePath        string
	fileName        string
}

func NewDownloadHandler(downloadService service.DownloadService, filePath, fileName string) *DownloadHandler {
	return &DownloadHandler{
		downloadService: downloadService,
		filePath:        filePath,
		fileName:        fileName,
	}
}

// Download marks the token used before the file is streamed.
func (h *DownloadHandler) Download(c echo.Context) error {
	ctx := c.Request().Context()

	// never burn a token when there is nothing to send
	if _, err := os.Stat(h.filePath); err != nil {
		slog.ErrorContext(ctx, "protected file unavailable", "path", h.filePath, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "file unavailable")
	}

	token, err := h.downloadService.Consume(ctx, c.Param("token"))
	if err != nil {
		return toHTTPError(c, err)
	}

	slog.InfoContext(ctx, "serving download", "user_id", token.UserID)
	return c.Attachment(h.filePath, h.fileName)
}

// Check answers HEAD requests without consuming the token.
func (h *DownloadHandler) Check(c echo.Context) error {
	if _, err := h.downloadService.Check(c.Request().Context(), c.Param("token")); err != nil {
		return toHTTPError(c, err)
	}

	c.Response().Header().Set(echo.HeaderContentType, "application/pdf")
	return c.NoContent(http.StatusOK)
}
