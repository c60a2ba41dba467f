package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/tedymoisa/micro-link-shortener/internal/models"
)

type mockurlRepo struct {
	mock.Mock
}

func (m *mockurlRepo) UpdateQRCode(ctx context.Context, shortCode, qrCode string) (*models.ShortURL, error) {
	args := m.Called(ctx, shortCode, qrCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ShortURL), args.Error(1)
}

type mockurlCache struct {
	mock.Mock
}

func (m *mockurlCache) HSetWithTTL(ctx context.Context, key string, fields map[string]string, ttl time.Duration) {
	m.Called(ctx, key, fields, ttl)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))
}

func isDataURI(v any) bool {
	s, ok := v.(string)
	return ok && strings.HasPrefix(s, "data:image/png;base64,") && len(s) > len("data:image/png;base64,")
}

func Test_GenerateQRCode(t *testing.T) {
	updated := &models.ShortURL{
		ID:        1,
		ShortCode: "a1B2c3D4e5",
		LongURL:   "https://example.com",
		CreatedAt: time.Now(),
		QRCode:    "data:image/png;base64,xyz",
	}

	tests := []struct {
		Name       string
		Body       string
		WantErr    bool
		WantPoison bool
		SetUpMocks func(repo *mockurlRepo, cache *mockurlCache)
	}{
		{
			Name:    "Rendered And Saved",
			Body:    `{ "shortCode": "a1B2c3D4e5", "longUrl": "https://example.com" }`,
			WantErr: false,
			SetUpMocks: func(repo *mockurlRepo, cache *mockurlCache) {
				repo.On("UpdateQRCode", mock.Anything, "a1B2c3D4e5", mock.MatchedBy(isDataURI)).
					Return(updated, nil).Once()
				cache.On("HSetWithTTL", mock.Anything, "url:a1B2c3D4e5", map[string]string{
					"long_url": "https://example.com",
					"qr_code":  "data:image/png;base64,xyz",
				}, 120*time.Second).Once()
			},
		},
		{
			Name:       "Malformed Payload Is Poison",
			Body:       `not json at all`,
			WantErr:    true,
			WantPoison: true,
			SetUpMocks: func(repo *mockurlRepo, cache *mockurlCache) {},
		},
		{
			Name:    "Store Failure Skips Cache Refresh",
			Body:    `{ "shortCode": "a1B2c3D4e5", "longUrl": "https://example.com" }`,
			WantErr: true,
			SetUpMocks: func(repo *mockurlRepo, cache *mockurlCache) {
				repo.On("UpdateQRCode", mock.Anything, "a1B2c3D4e5", mock.MatchedBy(isDataURI)).
					Return(nil, errors.New("connection refused")).Once()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.Name, func(t *testing.T) {
			repo := mockurlRepo{}
			cache := mockurlCache{}

			tt.SetUpMocks(&repo, &cache)

			svc := New(&repo, &cache, testLogger())

			err := svc.GenerateQRCode(context.Background(), []byte(tt.Body))
			if tt.WantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			if tt.WantPoison {
				assert.ErrorIs(t, err, ErrMalformedMessage)
			}

			repo.AssertExpectations(t)
			cache.AssertExpectations(t)
		})
	}
}

// Delivering the same event twice must leave the store in the same terminal
// state: the artifact is re-rendered and overwritten, never duplicated.
func Test_GenerateQRCode_Idempotent(t *testing.T) {
	updated := &models.ShortURL{
		ID:        1,
		ShortCode: "a1B2c3D4e5",
		LongURL:   "https://example.com",
		QRCode:    "data:image/png;base64,xyz",
	}

	repo := mockurlRepo{}
	cache := mockurlCache{}

	repo.On("UpdateQRCode", mock.Anything, "a1B2c3D4e5", mock.MatchedBy(isDataURI)).
		Return(updated, nil).Twice()
	cache.On("HSetWithTTL", mock.Anything, "url:a1B2c3D4e5", mock.Anything, 120*time.Second).Twice()

	svc := New(&repo, &cache, testLogger())

	body := []byte(`{ "shortCode": "a1B2c3D4e5", "longUrl": "https://example.com" }`)
	assert.NoError(t, svc.GenerateQRCode(context.Background(), body))
	assert.NoError(t, svc.GenerateQRCode(context.Background(), body))

	repo.AssertExpectations(t)
	cache.AssertExpectations(t)
}

func Test_renderQRCode(t *testing.T) {
	qr, err := renderQRCode("https://example.com")

	assert.NoError(t, err)
	assert.True(t, strings.HasPrefix(qr, "data:image/png;base64,"))

	// Deterministic for the same input.
	again, err := renderQRCode("https://example.com")
	assert.NoError(t, err)
	assert.Equal(t, qr, again)
}
