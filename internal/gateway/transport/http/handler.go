package http

import (
	"context"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/tedymoisa/micro-link-shortener/internal/gateway/transport/http/dto"
	"github.com/tedymoisa/micro-link-shortener/internal/models"
)

type service interface {
	Create(ctx context.Context, longURL string) (*models.ShortURL, error)
	ResolveURL(ctx context.Context, shortCode string) (string, error)
	ResolveQRCode(ctx context.Context, shortCode string) (string, error)
}

type Handler struct {
	service service
}

func NewHandler(service service) *Handler {
	return &Handler{service: service}
}

// Clients only ever see a generic 400 on create/lookup failures; no error
// detail leaks into the response body.
func badRequest() *echo.HTTPError {
	return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
}

func (h *Handler) Shorten(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.ShortenRequest
	if err := c.Bind(&req); err != nil {
		return badRequest()
	}
	if !validLongURL(req.LongURL) {
		return badRequest()
	}

	shortURL, err := h.service.Create(ctx, req.LongURL)
	if err != nil {
		return badRequest()
	}

	return c.JSON(http.StatusCreated, shortURL)
}

func (h *Handler) GetURL(c echo.Context) error {
	ctx := c.Request().Context()

	longURL, err := h.service.ResolveURL(ctx, c.Param("shortCode"))
	if err != nil {
		return badRequest()
	}

	return c.JSON(http.StatusOK, dto.URLResponse{LongURL: longURL})
}

func (h *Handler) GetQRCode(c echo.Context) error {
	ctx := c.Request().Context()

	qrCode, err := h.service.ResolveQRCode(ctx, c.Param("shortCode"))
	if err != nil {
		return badRequest()
	}

	return c.JSON(http.StatusOK, dto.QRCodeResponse{QRCode: qrCode})
}

func (h *Handler) Redirect(c echo.Context) error {
	ctx := c.Request().Context()

	longURL, err := h.service.ResolveURL(ctx, c.Param("shortCode"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	}

	return c.Redirect(http.StatusFound, longURL)
}

func validLongURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
