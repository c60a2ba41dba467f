package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/tedymoisa/micro-link-shortener/internal/models"
)

func Test_Shorten(t *testing.T) {
	createdAt := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		Name           string
		RequestBody    string
		ExpectedStatus int
		ExpectedBody   string
		SetUpMocks     func(service *mockservice)
	}{
		{
			Name:           "Successfully Shortened",
			RequestBody:    `{ "longUrl": "https://example.com" }`,
			ExpectedStatus: http.StatusCreated,
			ExpectedBody:   `{ "id": 1, "short_code": "a1B2c3D4e5", "long_url": "https://example.com", "created_at": "2025-01-02T03:04:05Z", "qr_code": "" }`,
			SetUpMocks: func(service *mockservice) {
				service.On("Create", mock.Anything, "https://example.com").
					Return(&models.ShortURL{
						ID:        1,
						ShortCode: "a1B2c3D4e5",
						LongURL:   "https://example.com",
						CreatedAt: createdAt,
					}, nil).Once()
			},
		},
		{
			Name:           "Not A URL",
			RequestBody:    `{ "longUrl": "not a url" }`,
			ExpectedStatus: http.StatusBadRequest,
			ExpectedBody:   `{ "message": "invalid request" }`,
			SetUpMocks:     func(service *mockservice) {},
		},
		{
			Name:           "longUrl Is Not A String",
			RequestBody:    `{ "longUrl": 1 }`,
			ExpectedStatus: http.StatusBadRequest,
			ExpectedBody:   `{ "message": "invalid request" }`,
			SetUpMocks:     func(service *mockservice) {},
		},
		{
			Name:           "Service Failure Maps To Generic 400",
			RequestBody:    `{ "longUrl": "https://example.com" }`,
			ExpectedStatus: http.StatusBadRequest,
			ExpectedBody:   `{ "message": "invalid request" }`,
			SetUpMocks: func(service *mockservice) {
				service.On("Create", mock.Anything, "https://example.com").
					Return(nil, errors.New("store is down")).Once()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.Name, func(t *testing.T) {
			mockService := mockservice{}

			tt.SetUpMocks(&mockService)

			e := echo.New()

			req := httptest.NewRequest(http.MethodPost, "/api/shorten", strings.NewReader(tt.RequestBody))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

			rec := httptest.NewRecorder()

			c := e.NewContext(req, rec)

			handler := NewHandler(&mockService)

			err := handler.Shorten(c)
			if err != nil {
				e.HTTPErrorHandler(err, c)
			}

			assert.Equal(t, tt.ExpectedStatus, rec.Code)
			assert.JSONEq(t, tt.ExpectedBody, rec.Body.String())

			mockService.AssertExpectations(t)
		})
	}
}

func Test_GetURL(t *testing.T) {
	tests := []struct {
		Name           string
		ShortCode      string
		ExpectedStatus int
		ExpectedBody   string
		SetUpMocks     func(service *mockservice)
	}{
		{
			Name:           "Resolved",
			ShortCode:      "a1B2c3D4e5",
			ExpectedStatus: http.StatusOK,
			ExpectedBody:   `{ "longUrl": "https://example.com" }`,
			SetUpMocks: func(service *mockservice) {
				service.On("ResolveURL", mock.Anything, "a1B2c3D4e5").
					Return("https://example.com", nil).Once()
			},
		},
		{
			Name:           "Unknown Short Code",
			ShortCode:      "zzzzzzzzzz",
			ExpectedStatus: http.StatusBadRequest,
			ExpectedBody:   `{ "message": "invalid request" }`,
			SetUpMocks: func(service *mockservice) {
				service.On("ResolveURL", mock.Anything, "zzzzzzzzzz").
					Return("", models.ErrNotFound).Once()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.Name, func(t *testing.T) {
			mockService := mockservice{}

			tt.SetUpMocks(&mockService)

			e := echo.New()

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()

			c := e.NewContext(req, rec)
			c.SetPath("/api/:shortCode/url")
			c.SetParamNames("shortCode")
			c.SetParamValues(tt.ShortCode)

			handler := NewHandler(&mockService)

			err := handler.GetURL(c)
			if err != nil {
				e.HTTPErrorHandler(err, c)
			}

			assert.Equal(t, tt.ExpectedStatus, rec.Code)
			assert.JSONEq(t, tt.ExpectedBody, rec.Body.String())

			mockService.AssertExpectations(t)
		})
	}
}

func Test_GetQRCode(t *testing.T) {
	mockService := mockservice{}
	mockService.On("ResolveQRCode", mock.Anything, "a1B2c3D4e5").
		Return("data:image/png;base64,xyz", nil).Once()

	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	c := e.NewContext(req, rec)
	c.SetPath("/api/:shortCode/qr")
	c.SetParamNames("shortCode")
	c.SetParamValues("a1B2c3D4e5")

	handler := NewHandler(&mockService)

	assert.NoError(t, handler.GetQRCode(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{ "qrCode": "data:image/png;base64,xyz" }`, rec.Body.String())

	mockService.AssertExpectations(t)
}

func Test_Redirect(t *testing.T) {
	mockService := mockservice{}
	mockService.On("ResolveURL", mock.Anything, "a1B2c3D4e5").
		Return("https://example.com", nil).Once()

	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	c := e.NewContext(req, rec)
	c.SetPath("/:shortCode")
	c.SetParamNames("shortCode")
	c.SetParamValues("a1B2c3D4e5")

	handler := NewHandler(&mockService)

	assert.NoError(t, handler.Redirect(c))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://example.com", rec.Header().Get(echo.HeaderLocation))

	mockService.AssertExpectations(t)
}
